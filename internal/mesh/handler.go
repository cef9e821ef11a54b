package mesh

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meshgate/meshgate/internal/audit"
	"github.com/meshgate/meshgate/internal/auth"
	"github.com/meshgate/meshgate/internal/authz"
	"github.com/meshgate/meshgate/internal/platform/httpx"
	"github.com/meshgate/meshgate/internal/rbac"
	"github.com/meshgate/meshgate/internal/upstream"
)

// Gateway is the slice of the upstream client the handlers use. Narrowed to
// an interface so tests can substitute a stub.
type Gateway interface {
	ListNodes(ctx context.Context) ([]upstream.Node, error)
	GetNode(ctx context.Context, id string) (upstream.Node, error)
	ExpireNode(ctx context.Context, id string) (upstream.Node, error)
	RenameNode(ctx context.Context, id, name string) (upstream.Node, error)
	DeleteNode(ctx context.Context, id string) error
	ListRoutes(ctx context.Context) ([]upstream.Route, error)
	EnableRoute(ctx context.Context, id string) error
	DisableRoute(ctx context.Context, id string) error
	GetPolicy(ctx context.Context) (string, error)
	SetPolicy(ctx context.Context, policy string) (string, error)
	ListPreAuthKeys(ctx context.Context, user string) ([]upstream.PreAuthKey, error)
	CreatePreAuthKey(ctx context.Context, req upstream.CreatePreAuthKeyRequest) (upstream.PreAuthKey, error)
	ExpirePreAuthKey(ctx context.Context, user, key string) error
	ListAPIKeys(ctx context.Context) ([]upstream.APIKey, error)
	CreateAPIKey(ctx context.Context, expiration time.Time) (string, error)
	ExpireAPIKey(ctx context.Context, prefix string) error
	DeleteAPIKey(ctx context.Context, prefix string) error
	ListUsers(ctx context.Context) ([]upstream.User, error)
}

// UpstreamMonitor counts upstream failures by taxonomy kind.
type UpstreamMonitor interface {
	UpstreamError(kind string)
}

// Handler exposes the protected mesh management endpoints. Authorization is
// decided by the middleware before any handler runs; every successful
// mutation appends exactly one audit entry before the response is written.
type Handler struct {
	logger    *slog.Logger
	gateway   Gateway
	recorder  *audit.Recorder
	authz     authz.Middleware
	monitor   UpstreamMonitor
	validator *validator.Validate
}

// NewHandler constructs a mesh Handler. The monitor may be nil.
func NewHandler(logger *slog.Logger, gateway Gateway, recorder *audit.Recorder, mw authz.Middleware, monitor UpstreamMonitor) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		gateway:   gateway,
		recorder:  recorder,
		authz:     mw,
		monitor:   monitor,
		validator: validator.New(),
	}
}

// MountRoutes registers the mesh endpoints with their role gates.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(h.authz.RequireMinimumRole(rbac.RoleUser))
		gr.Get("/nodes", h.listNodes)
		gr.Get("/nodes/{id}", h.getNode)
		gr.Get("/routes", h.listRoutes)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.authz.RequireMinimumRole(rbac.RoleOperator))
		gr.Post("/nodes/{id}/expire", h.expireNode)
		gr.Post("/nodes/{id}/rename", h.renameNode)
		gr.Post("/routes/{id}/enable", h.enableRoute)
		gr.Post("/routes/{id}/disable", h.disableRoute)
		gr.Get("/preauthkeys", h.listPreAuthKeys)
		gr.Post("/preauthkeys", h.createPreAuthKey)
		gr.Post("/preauthkeys/expire", h.expirePreAuthKey)
		gr.Get("/users", h.listUsers)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.authz.RequireMinimumRole(rbac.RoleAuditor))
		gr.Get("/acl", h.getPolicy)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.authz.RequireMinimumRole(rbac.RoleAdmin))
		gr.Delete("/nodes/{id}", h.deleteNode)
		gr.Put("/acl", h.setPolicy)
		gr.Get("/apikeys", h.listAPIKeys)
		gr.Post("/apikeys", h.createAPIKey)
		gr.Post("/apikeys/expire", h.expireAPIKey)
		gr.Delete("/apikeys/{prefix}", h.deleteAPIKey)
	})
}

// respondGatewayError translates the closed upstream taxonomy into HTTP
// statuses. Raw transport errors never reach this point.
func (h *Handler) respondGatewayError(w http.ResponseWriter, err error) {
	ue, ok := upstream.AsError(err)
	if !ok {
		h.logger.Error("unclassified gateway failure", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Internal Error")
		return
	}
	if h.monitor != nil {
		h.monitor.UpstreamError(string(ue.Kind))
	}
	switch ue.Kind {
	case upstream.KindTimeout:
		httpx.Error(w, http.StatusServiceUnavailable, "Upstream Temporarily Unavailable")
	case upstream.KindConnection:
		httpx.Error(w, http.StatusServiceUnavailable, "Unable To Connect To Upstream")
	case upstream.KindNotFound:
		httpx.Error(w, http.StatusNotFound, "Not Found")
	case upstream.KindBadRequest:
		httpx.ErrorDetail(w, http.StatusBadRequest, "Upstream Rejected Request", ue.Message)
	default:
		httpx.Error(w, http.StatusBadGateway, "Upstream Error")
	}
}

// recordAudit appends the entry for a completed mutation. Failures are
// already logged and counted inside the recorder; they never fail the
// response.
func (h *Handler) recordAudit(r *http.Request, action audit.Action, resource audit.ResourceType, resourceID, oldValue, newValue string) {
	actor, _ := authz.ActorFromContext(r.Context())
	_ = h.recorder.Record(r.Context(), audit.Entry{
		Action:       action,
		ActorID:      actor.UserID,
		ActorEmail:   actor.Email,
		Origin:       auth.OriginAddr(r),
		ResourceType: resource,
		ResourceID:   resourceID,
		OldValue:     oldValue,
		NewValue:     newValue,
	})
}
