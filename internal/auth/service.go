package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/meshgate/meshgate/internal/identity"
	"github.com/meshgate/meshgate/internal/rbac"
)

// ErrInvalidCredentials indicates a failed local login.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// TokenResult is the outcome of a successful login or refresh.
type TokenResult struct {
	Token     string
	ExpiresAt time.Time
	User      identity.User
	Roles     []rbac.RoleName
	Degraded  bool
}

// Service orchestrates login, refresh and logout around the token manager,
// the session registry and the identity store.
type Service struct {
	tokens   *TokenManager
	registry *SessionRegistry
	identity *identity.Service
	repo     identity.Repository
	logger   *slog.Logger
}

// NewService constructs an auth Service.
func NewService(tokens *TokenManager, registry *SessionRegistry, ids *identity.Service, repo identity.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tokens: tokens, registry: registry, identity: ids, repo: repo, logger: logger}
}

// CallbackLogin handles a verified identity-provider assertion: sync roles,
// ensure a bootstrap owner exists, then issue a session token. A degraded
// role sync downgrades the session instead of failing the login.
func (s *Service) CallbackLogin(ctx context.Context, subject, email, name string, groups []string) (TokenResult, error) {
	user, roles, err := s.identity.SyncRoles(ctx, subject, email, name, groups)
	degraded := errors.Is(err, identity.ErrRoleSyncDegraded)
	if err != nil && !degraded {
		return TokenResult{}, err
	}
	if !degraded {
		if err := s.identity.EnsureOwnerExists(ctx, user.ID); err != nil {
			s.logger.Error("owner bootstrap failed", slog.Any("error", err))
		} else {
			// Membership may have changed if this login won the bootstrap.
			if current, rerr := s.identity.Roles(ctx, user.ID); rerr == nil {
				roles = current
			}
		}
	}
	return s.issue(ctx, user, roles, degraded)
}

// PasswordLogin authenticates a local fallback account.
func (s *Service) PasswordLogin(ctx context.Context, email, password string) (TokenResult, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return TokenResult{}, ErrInvalidCredentials
	}
	if !user.IsActive || user.PasswordHash == "" {
		return TokenResult{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return TokenResult{}, ErrInvalidCredentials
	}
	roles, err := s.identity.Roles(ctx, user.ID)
	if err != nil {
		s.logger.Error("role lookup failed, downgrading session", slog.Any("error", err))
		roles = []rbac.RoleName{rbac.RoleUser}
	}
	return s.issue(ctx, user, roles, false)
}

// Refresh revokes the presented session and issues a new token with the
// user's current membership from the store. This is the explicit staleness
// bound on the role snapshot.
func (s *Service) Refresh(ctx context.Context, claims *Claims) (TokenResult, error) {
	user, err := s.identity.User(ctx, claims.UserID)
	if err != nil {
		return TokenResult{}, ErrInvalidToken
	}
	roles, err := s.identity.Roles(ctx, user.ID)
	if err != nil {
		return TokenResult{}, err
	}
	if err := s.registry.Revoke(ctx, claims.ID); err != nil {
		s.logger.Warn("revoke refreshed session", slog.Any("error", err))
	}
	return s.issue(ctx, user, roles, false)
}

// Logout revokes the session id.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	return s.registry.Revoke(ctx, claims.ID)
}

// VerifyToken checks signature, expiry and registry liveness of a raw token.
func (s *Service) VerifyToken(ctx context.Context, raw string) (*Claims, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, err
	}
	alive, err := s.registry.Alive(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if !alive {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) issue(ctx context.Context, user identity.User, roles []rbac.RoleName, degraded bool) (TokenResult, error) {
	token, jti, expiresAt, err := s.tokens.Issue(user, roles)
	if err != nil {
		return TokenResult{}, err
	}
	if err := s.registry.Register(ctx, jti, user.ID, s.tokens.TTL()); err != nil {
		return TokenResult{}, err
	}
	return TokenResult{Token: token, ExpiresAt: expiresAt, User: user, Roles: roles, Degraded: degraded}, nil
}
