package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/meshgate/meshgate/internal/identity"
	"github.com/meshgate/meshgate/internal/rbac"
)

// ErrInvalidToken indicates a missing, malformed, expired or revoked token.
var ErrInvalidToken = errors.New("auth: invalid token")

const minSecretLength = 32

// Claims is the session payload embedded in every issued token. Roles is a
// snapshot of membership at issuance; its staleness is bounded by the token
// TTL, which doubles as the refresh interval.
type Claims struct {
	UserID int64    `json:"uid"`
	Email  string   `json:"email,omitempty"`
	Name   string   `json:"name,omitempty"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// RoleNames returns the role snapshot as typed names.
func (c *Claims) RoleNames() []rbac.RoleName {
	roles := make([]rbac.RoleName, len(c.Roles))
	for i, r := range c.Roles {
		roles[i] = rbac.RoleName(r)
	}
	return roles
}

// TokenManager creates and verifies HMAC-SHA256 session tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager constructs a TokenManager. The secret must be at least 32
// characters.
func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: session secret must be at least %d characters", minSecretLength)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("auth: token ttl must be positive")
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the token lifetime, which is also the role snapshot refresh
// interval.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for the user with the given role snapshot. The jti is
// returned so the caller can register the session.
func (m *TokenManager) Issue(user identity.User, roles []rbac.RoleName) (token, jti string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(m.ttl)
	jti = uuid.NewString()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Roles:  names,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, jti, expiresAt, nil
}

// Parse verifies the signature and standard claims of a raw token.
func (m *TokenManager) Parse(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
