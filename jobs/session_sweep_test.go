package jobs

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/meshgate/meshgate/internal/identity"
	"github.com/meshgate/meshgate/internal/rbac"
)

type sweepIdentityRepo struct {
	users map[int64]identity.User
}

func (r *sweepIdentityRepo) FindByID(_ context.Context, id int64) (identity.User, error) {
	u, ok := r.users[id]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (r *sweepIdentityRepo) UpsertUser(context.Context, string, string, string) (identity.User, error) {
	return identity.User{}, nil
}
func (r *sweepIdentityRepo) FindByEmail(context.Context, string) (identity.User, error) {
	return identity.User{}, identity.ErrNotFound
}
func (r *sweepIdentityRepo) ReplaceUserRoles(context.Context, int64, []rbac.RoleName) error {
	return nil
}
func (r *sweepIdentityRepo) UserRoles(context.Context, int64) ([]rbac.RoleName, error) {
	return nil, nil
}
func (r *sweepIdentityRepo) GrantRole(context.Context, int64, rbac.RoleName) error   { return nil }
func (r *sweepIdentityRepo) RevokeRole(context.Context, int64, rbac.RoleName) error  { return nil }
func (r *sweepIdentityRepo) GrantOwnerIfAbsent(context.Context, int64, rbac.RoleName) (bool, error) {
	return false, nil
}

func TestSessionSweepRevokesStaleSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	// Active account, deactivated account, deleted account.
	if err := client.Set(ctx, "session:alive", "1", 0).Err(); err != nil {
		t.Fatalf("seed redis: %v", err)
	}
	if err := client.Set(ctx, "session:disabled", "2", 0).Err(); err != nil {
		t.Fatalf("seed redis: %v", err)
	}
	if err := client.Set(ctx, "session:gone", "3", 0).Err(); err != nil {
		t.Fatalf("seed redis: %v", err)
	}

	repo := &sweepIdentityRepo{users: map[int64]identity.User{
		1: {ID: 1, IsActive: true},
		2: {ID: 2, IsActive: false},
	}}
	job := NewSessionSweepJob(client, repo, nil, nil)

	if err := job.Handle(ctx, NewSessionSweepTask()); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if err := client.Get(ctx, "session:alive").Err(); err != nil {
		t.Fatal("active session must survive the sweep")
	}
	if err := client.Get(ctx, "session:disabled").Err(); err != redis.Nil {
		t.Fatal("deactivated account session must be revoked")
	}
	if err := client.Get(ctx, "session:gone").Err(); err != redis.Nil {
		t.Fatal("deleted account session must be revoked")
	}
}
