package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/meshgate/meshgate/internal/authz"
	"github.com/meshgate/meshgate/internal/platform/httpx"
	"github.com/meshgate/meshgate/internal/rbac"
)

// Handler serves the read-only audit trail.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   authz.Middleware
}

// NewHandler constructs an audit Handler.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: mw}
}

// MountRoutes registers the audit endpoint behind the AUDITOR threshold.
// Queries are rate limited per actor so trail scans cannot starve the API.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(h.authz.RequireMinimumRole(rbac.RoleAuditor))
		gr.Use(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(actorKey)))
		gr.Get("/audit", h.query)
	})
}

func actorKey(r *http.Request) (string, error) {
	actor, ok := authz.ActorFromContext(r.Context())
	if !ok {
		return httprate.KeyByIP(r)
	}
	return strconv.FormatInt(actor.UserID, 10), nil
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	result, err := h.service.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("audit query failed", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Internal Error")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) parseFilter(w http.ResponseWriter, r *http.Request) (Filter, bool) {
	q := r.URL.Query()
	var filter Filter

	if raw := q.Get("action"); raw != "" {
		action := Action(raw)
		if !ValidAction(action) {
			httpx.JSON(w, http.StatusBadRequest, httpx.ErrorBody{
				Error:  "Validation Failed",
				Detail: "unknown action " + strconv.Quote(raw),
				Valid:  actionNames(),
			})
			return Filter{}, false
		}
		filter.Action = action
	}
	if raw := q.Get("resourceType"); raw != "" {
		rt := ResourceType(raw)
		if !ValidResourceType(rt) {
			httpx.JSON(w, http.StatusBadRequest, httpx.ErrorBody{
				Error:  "Validation Failed",
				Detail: "unknown resource type " + strconv.Quote(raw),
				Valid:  resourceTypeNames(),
			})
			return Filter{}, false
		}
		filter.ResourceType = rt
	}
	filter.ResourceID = q.Get("resourceId")

	for name, dst := range map[string]*time.Time{"startDate": &filter.Start, "endDate": &filter.End} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", name+" must be RFC 3339")
			return Filter{}, false
		}
		*dst = ts
	}

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", name+" must be a non-negative integer")
			return Filter{}, false
		}
		*dst = n
	}
	return filter, true
}

func actionNames() []string {
	actions := Actions()
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return names
}

func resourceTypeNames() []string {
	types := ResourceTypes()
	names := make([]string, len(types))
	for i, rt := range types {
		names[i] = string(rt)
	}
	return names
}
