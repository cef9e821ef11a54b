package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionRegistry tracks live session ids in Redis so logout revokes tokens
// before their natural expiry. Keys carry the token TTL.
type SessionRegistry struct {
	client *redis.Client
}

// NewSessionRegistry constructs a registry backed by the given client.
func NewSessionRegistry(client *redis.Client) *SessionRegistry {
	return &SessionRegistry{client: client}
}

func sessionKey(jti string) string {
	return "session:" + jti
}

// Register records a freshly issued session id.
func (r *SessionRegistry) Register(ctx context.Context, jti string, userID int64, ttl time.Duration) error {
	return r.client.Set(ctx, sessionKey(jti), userID, ttl).Err()
}

// Alive reports whether the session id is still registered.
func (r *SessionRegistry) Alive(ctx context.Context, jti string) (bool, error) {
	err := r.client.Get(ctx, sessionKey(jti)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Revoke removes the session id, invalidating its token immediately.
func (r *SessionRegistry) Revoke(ctx context.Context, jti string) error {
	err := r.client.Del(ctx, sessionKey(jti)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
