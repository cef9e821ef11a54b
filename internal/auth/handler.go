package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meshgate/meshgate/internal/platform/httpx"
)

// CallbackSecretHeader carries the shared secret that authenticates the
// identity provider callback hop.
const CallbackSecretHeader = "X-Callback-Secret"

// LoginEvent describes a completed login for the audit trail.
type LoginEvent struct {
	UserID   int64
	Email    string
	Origin   string
	Degraded bool
}

// LoginRecorder appends completed logins to the audit trail. Failures are the
// recorder's concern; a login is never rolled back over a missed trail entry.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, event LoginEvent)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	recorder       LoginRecorder
	validator      *validator.Validate
	callbackSecret string
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, recorder LoginRecorder, callbackSecret string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		recorder:       recorder,
		validator:      validator.New(),
		callbackSecret: callbackSecret,
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/callback", h.handleCallback)
	r.Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/logout", h.handleLogout)
}

type callbackRequest struct {
	Subject string   `json:"subject" validate:"required"`
	Email   string   `json:"email" validate:"omitempty,email"`
	Name    string   `json:"name"`
	Groups  []string `json:"groups"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    int64     `json:"userId"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Roles     []string  `json:"roles"`
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	provided := r.Header.Get(CallbackSecretHeader)
	if h.callbackSecret == "" ||
		subtle.ConstantTimeCompare([]byte(provided), []byte(h.callbackSecret)) != 1 {
		httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req callbackRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.CallbackLogin(r.Context(), req.Subject, req.Email, req.Name, req.Groups)
	if err != nil {
		h.logger.Error("callback login", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Internal Error")
		return
	}
	if result.Degraded {
		h.logger.Warn("session issued with degraded role set",
			slog.Int64("user_id", result.User.ID))
	}
	h.auditLogin(r, result)
	httpx.JSON(w, http.StatusOK, toTokenResponse(result))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ErrorDetail(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.PasswordLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		h.logger.Error("password login", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Internal Error")
		return
	}
	h.auditLogin(r, result)
	httpx.JSON(w, http.StatusOK, toTokenResponse(result))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.verifyBearer(w, r)
	if !ok {
		return
	}
	result, err := h.service.Refresh(r.Context(), claims)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		h.logger.Error("refresh", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Internal Error")
		return
	}
	httpx.JSON(w, http.StatusOK, toTokenResponse(result))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.verifyBearer(w, r)
	if !ok {
		return
	}
	if err := h.service.Logout(r.Context(), claims); err != nil {
		h.logger.Warn("logout", slog.Any("error", err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) verifyBearer(w http.ResponseWriter, r *http.Request) (*Claims, bool) {
	raw := BearerToken(r)
	if raw == "" {
		httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	claims, err := h.service.VerifyToken(r.Context(), raw)
	if err != nil {
		httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	return claims, true
}

func (h *Handler) auditLogin(r *http.Request, result TokenResult) {
	if h.recorder == nil {
		return
	}
	h.recorder.RecordLogin(r.Context(), LoginEvent{
		UserID:   result.User.ID,
		Email:    result.User.Email,
		Origin:   OriginAddr(r),
		Degraded: result.Degraded,
	})
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// OriginAddr returns the caller address without the ephemeral port.
func OriginAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func toTokenResponse(result TokenResult) tokenResponse {
	roles := make([]string, len(result.Roles))
	for i, role := range result.Roles {
		roles[i] = string(role)
	}
	return tokenResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		UserID:    result.User.ID,
		Email:     result.User.Email,
		Name:      result.User.Name,
		Roles:     roles,
	}
}
