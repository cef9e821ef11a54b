package mesh

import (
	"encoding/json"
	"net/http"

	"github.com/meshgate/meshgate/internal/audit"
	"github.com/meshgate/meshgate/internal/platform/httpx"
)

func (h *Handler) getPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.gateway.GetPolicy(r.Context())
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"policy": policy})
}

type setPolicyRequest struct {
	Policy string `json:"policy" validate:"required"`
}

func (h *Handler) setPolicy(w http.ResponseWriter, r *http.Request) {
	var req setPolicyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !json.Valid([]byte(req.Policy)) {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", "policy document is not valid JSON")
		return
	}

	old, err := h.gateway.GetPolicy(r.Context())
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}
	updated, err := h.gateway.SetPolicy(r.Context(), req.Policy)
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}
	h.recordAudit(r, audit.ActionUpdateACL, audit.ResourceACL, "policy", old, updated)
	httpx.JSON(w, http.StatusOK, map[string]string{"policy": updated})
}
