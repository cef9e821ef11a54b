package authz

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/meshgate/meshgate/internal/auth"
	"github.com/meshgate/meshgate/internal/platform/httpx"
	"github.com/meshgate/meshgate/internal/rbac"
)

// TokenVerifier validates a raw session token and returns its claims.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (*auth.Claims, error)
}

// Middleware gates protected operations behind authentication and one of the
// two authorization modes. It makes the decision and constructs the actor
// context; it performs no business logic.
type Middleware struct {
	Verifier TokenVerifier
	Catalog  *rbac.Catalog
	Logger   *slog.Logger
}

// RequireRole allows the request through when the caller holds at least one
// of the listed roles (exact-set mode).
func (m Middleware) RequireRole(allowed ...rbac.RoleName) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := m.authenticate(w, r)
			if !ok {
				return
			}
			for _, want := range allowed {
				if m.Catalog.HasRole(actor.Roles, want) {
					next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
					return
				}
			}
			m.deny(r, actor)
			required := make([]string, len(allowed))
			for i, role := range allowed {
				required[i] = string(role)
			}
			httpx.JSON(w, http.StatusForbidden, httpx.ErrorBody{Error: "Forbidden", Required: required})
		})
	}
}

// RequireMinimumRole allows the request through when the caller holds a role
// at or above the threshold (hierarchy mode).
func (m Middleware) RequireMinimumRole(min rbac.RoleName) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := m.authenticate(w, r)
			if !ok {
				return
			}
			if m.Catalog.MeetsMinimumRole(actor.Roles, min) {
				next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
				return
			}
			m.deny(r, actor)
			httpx.JSON(w, http.StatusForbidden, httpx.ErrorBody{Error: "Forbidden", RequiredLevel: string(min)})
		})
	}
}

func (m Middleware) authenticate(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	raw := auth.BearerToken(r)
	if raw == "" {
		httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
		return Actor{}, false
	}
	claims, err := m.Verifier.VerifyToken(r.Context(), raw)
	if err != nil {
		httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
		return Actor{}, false
	}
	return Actor{
		UserID:  claims.UserID,
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Roles:   claims.RoleNames(),
	}, true
}

func (m Middleware) deny(r *http.Request, actor Actor) {
	if m.Logger == nil {
		return
	}
	m.Logger.Warn("authorization denied",
		slog.Int64("user_id", actor.UserID),
		slog.String("path", r.URL.Path),
		slog.Any("held", actor.Roles))
}
