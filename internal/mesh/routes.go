package mesh

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meshgate/meshgate/internal/audit"
	"github.com/meshgate/meshgate/internal/platform/httpx"
)

func (h *Handler) listRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.gateway.ListRoutes(r.Context())
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"routes": routes})
}

func (h *Handler) enableRoute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.gateway.EnableRoute(r.Context(), id); err != nil {
		h.respondGatewayError(w, err)
		return
	}
	h.recordAudit(r, audit.ActionEnableRoute, audit.ResourceRoute, id, "disabled", "enabled")
	httpx.JSON(w, http.StatusOK, map[string]any{"enabled": true})
}

func (h *Handler) disableRoute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.gateway.DisableRoute(r.Context(), id); err != nil {
		h.respondGatewayError(w, err)
		return
	}
	h.recordAudit(r, audit.ActionDisableRoute, audit.ResourceRoute, id, "enabled", "disabled")
	httpx.JSON(w, http.StatusOK, map[string]any{"enabled": false})
}
