// Package accounts exposes the account profile and role membership endpoints.
// It sits above the identity service so session verification can depend on
// identity without a cycle.
package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meshgate/meshgate/internal/audit"
	"github.com/meshgate/meshgate/internal/auth"
	"github.com/meshgate/meshgate/internal/authz"
	"github.com/meshgate/meshgate/internal/identity"
	"github.com/meshgate/meshgate/internal/platform/httpx"
	"github.com/meshgate/meshgate/internal/rbac"
)

// Handler serves /me and the role membership mutations.
type Handler struct {
	logger    *slog.Logger
	service   *identity.Service
	recorder  *audit.Recorder
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler constructs an accounts Handler.
func NewHandler(logger *slog.Logger, service *identity.Service, recorder *audit.Recorder, mw authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		recorder:  recorder,
		authz:     mw,
		validator: validator.New(),
	}
}

// MountRoutes registers the account endpoints. Role membership changes are
// restricted to the exact set {ADMIN, OWNER}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(h.authz.RequireMinimumRole(rbac.RoleUser))
		gr.Get("/me", h.me)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.authz.RequireRole(rbac.RoleAdmin, rbac.RoleOwner))
		gr.Post("/accounts/{id}/roles", h.assignRole)
		gr.Delete("/accounts/{id}/roles/{role}", h.revokeRole)
	})
}

type meResponse struct {
	ID    int64    `json:"id"`
	Email string   `json:"email,omitempty"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor, _ := authz.ActorFromContext(r.Context())
	roles, err := h.service.Roles(r.Context(), actor.UserID)
	if err != nil {
		h.logger.Error("role lookup failed", slog.Int64("user_id", actor.UserID), slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Internal Error")
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse{
		ID:    actor.UserID,
		Email: actor.Email,
		Name:  actor.Name,
		Roles: roleNames(roles),
	})
}

type assignRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	before, err := h.service.Roles(r.Context(), userID)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	role := rbac.RoleName(strings.ToUpper(strings.TrimSpace(req.Role)))
	if err := h.service.AssignRole(r.Context(), userID, role); err != nil {
		if errors.Is(err, identity.ErrOwnerHeld) {
			httpx.ErrorDetail(w, http.StatusConflict, "Conflict", "the OWNER role already has a holder")
			return
		}
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	after, err := h.service.Roles(r.Context(), userID)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	h.recordRoleChange(r, audit.ActionAssignRole, userID, before, after)
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roleNames(after)})
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	role := rbac.RoleName(strings.ToUpper(chi.URLParam(r, "role")))

	before, err := h.service.Roles(r.Context(), userID)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}
	if err := h.service.RevokeRole(r.Context(), userID, role); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	after, err := h.service.Roles(r.Context(), userID)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	h.recordRoleChange(r, audit.ActionRevokeRole, userID, before, after)
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roleNames(after)})
}

func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", "account id must be a positive integer")
		return 0, false
	}
	if _, err := h.service.User(r.Context(), id); err != nil {
		h.respondStoreError(w, err)
		return 0, false
	}
	return id, true
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, identity.ErrNotFound) {
		httpx.Error(w, http.StatusNotFound, "Not Found")
		return
	}
	h.logger.Error("account store failure", slog.Any("error", err))
	httpx.Error(w, http.StatusInternalServerError, "Internal Error")
}

func (h *Handler) recordRoleChange(r *http.Request, action audit.Action, userID int64, before, after []rbac.RoleName) {
	oldValue := strings.Join(roleNames(before), ",")
	newValue := strings.Join(roleNames(after), ",")
	if oldValue == newValue {
		// A no-op mutation leaves nothing to attest.
		return
	}
	actor, _ := authz.ActorFromContext(r.Context())
	_ = h.recorder.Record(r.Context(), audit.Entry{
		Action:       action,
		ActorID:      actor.UserID,
		ActorEmail:   actor.Email,
		Origin:       auth.OriginAddr(r),
		ResourceType: audit.ResourceRole,
		ResourceID:   strconv.FormatInt(userID, 10),
		OldValue:     oldValue,
		NewValue:     newValue,
	})
}

func roleNames(roles []rbac.RoleName) []string {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return names
}
