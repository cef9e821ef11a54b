package mesh

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meshgate/meshgate/internal/audit"
	"github.com/meshgate/meshgate/internal/platform/httpx"
	"github.com/meshgate/meshgate/internal/upstream"
)

func (h *Handler) listPreAuthKeys(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", "user query parameter is required")
		return
	}
	keys, err := h.gateway.ListPreAuthKeys(r.Context(), user)
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"preAuthKeys": keys})
}

func (h *Handler) createPreAuthKey(w http.ResponseWriter, r *http.Request) {
	var req upstream.CreatePreAuthKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	key, err := h.gateway.CreatePreAuthKey(r.Context(), req)
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}
	h.recordAudit(r, audit.ActionCreatePreAuthKey, audit.ResourceKey, key.ID, "", req.User)
	httpx.JSON(w, http.StatusCreated, map[string]any{"preAuthKey": key})
}

type expirePreAuthKeyRequest struct {
	User string `json:"user" validate:"required"`
	Key  string `json:"key" validate:"required"`
}

func (h *Handler) expirePreAuthKey(w http.ResponseWriter, r *http.Request) {
	var req expirePreAuthKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.gateway.ExpirePreAuthKey(r.Context(), req.User, req.Key); err != nil {
		h.respondGatewayError(w, err)
		return
	}
	h.recordAudit(r, audit.ActionExpirePreAuthKey, audit.ResourceKey, req.Key, "", "expired")
	httpx.JSON(w, http.StatusOK, map[string]any{"expired": true})
}

func (h *Handler) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.gateway.ListAPIKeys(r.Context())
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"apiKeys": keys})
}

type createAPIKeyRequest struct {
	Expiration time.Time `json:"expiration"`
}

func (h *Handler) createAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	key, err := h.gateway.CreateAPIKey(r.Context(), req.Expiration)
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}
	// The full key is only shown once; the audit trail keeps the prefix.
	h.recordAudit(r, audit.ActionCreateAPIKey, audit.ResourceAPIKey, keyPrefix(key), "", "")
	httpx.JSON(w, http.StatusCreated, map[string]string{"apiKey": key})
}

type expireAPIKeyRequest struct {
	Prefix string `json:"prefix" validate:"required"`
}

func (h *Handler) expireAPIKey(w http.ResponseWriter, r *http.Request) {
	var req expireAPIKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.gateway.ExpireAPIKey(r.Context(), req.Prefix); err != nil {
		h.respondGatewayError(w, err)
		return
	}
	h.recordAudit(r, audit.ActionExpireAPIKey, audit.ResourceAPIKey, req.Prefix, "", "expired")
	httpx.JSON(w, http.StatusOK, map[string]any{"expired": true})
}

func (h *Handler) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	prefix := chi.URLParam(r, "prefix")
	if err := h.gateway.DeleteAPIKey(r.Context(), prefix); err != nil {
		h.respondGatewayError(w, err)
		return
	}
	h.recordAudit(r, audit.ActionDeleteAPIKey, audit.ResourceAPIKey, prefix, "", "")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.gateway.ListUsers(r.Context())
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users})
}

// keyPrefix trims a freshly minted API key down to its identifying prefix so
// the secret part never lands in the audit trail.
func keyPrefix(key string) string {
	const n = 10
	if len(key) <= n {
		return key
	}
	return key[:n]
}
