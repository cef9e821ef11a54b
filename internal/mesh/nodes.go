package mesh

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meshgate/meshgate/internal/audit"
	"github.com/meshgate/meshgate/internal/platform/httpx"
)

func (h *Handler) listNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.gateway.ListNodes(r.Context())
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

func (h *Handler) getNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.gateway.GetNode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"node": node})
}

func (h *Handler) expireNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node, err := h.gateway.ExpireNode(r.Context(), id)
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}
	h.recordAudit(r, audit.ActionExpireNode, audit.ResourceNode, id, "", "expired")
	httpx.JSON(w, http.StatusOK, map[string]any{"node": node})
}

type renameNodeRequest struct {
	Name string `json:"name" validate:"required,hostname_rfc1123"`
}

func (h *Handler) renameNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req renameNodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	old, err := h.gateway.GetNode(r.Context(), id)
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}
	node, err := h.gateway.RenameNode(r.Context(), id, req.Name)
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}
	h.recordAudit(r, audit.ActionRenameNode, audit.ResourceNode, id, old.Name, node.Name)
	httpx.JSON(w, http.StatusOK, map[string]any{"node": node})
}

func (h *Handler) deleteNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.gateway.DeleteNode(r.Context(), id); err != nil {
		h.respondGatewayError(w, err)
		return
	}
	h.recordAudit(r, audit.ActionDeleteNode, audit.ResourceNode, id, "", "")
	w.WriteHeader(http.StatusNoContent)
}
