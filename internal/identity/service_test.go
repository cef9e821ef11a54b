package identity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/meshgate/meshgate/internal/rbac"
)

type stubRepo struct {
	mu        sync.Mutex
	users     map[string]User
	nextID    int64
	roles     map[int64][]rbac.RoleName
	failRoles error
	syncCalls int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:  make(map[string]User),
		roles:  make(map[int64][]rbac.RoleName),
		nextID: 1,
	}
}

func (r *stubRepo) UpsertUser(ctx context.Context, subject, email, name string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[subject]; ok {
		u.Email = email
		u.Name = name
		r.users[subject] = u
		return u, nil
	}
	u := User{ID: r.nextID, Subject: subject, Email: email, Name: name, IsActive: true}
	r.nextID++
	r.users[subject] = u
	return u, nil
}

func (r *stubRepo) FindByEmail(ctx context.Context, email string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *stubRepo) FindByID(ctx context.Context, id int64) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *stubRepo) ReplaceUserRoles(ctx context.Context, userID int64, roles []rbac.RoleName) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncCalls++
	if r.failRoles != nil {
		return r.failRoles
	}
	out := make([]rbac.RoleName, len(roles))
	copy(out, roles)
	r.roles[userID] = out
	return nil
}

func (r *stubRepo) UserRoles(ctx context.Context, userID int64) ([]rbac.RoleName, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]rbac.RoleName, len(r.roles[userID]))
	copy(out, r.roles[userID])
	return out, nil
}

func (r *stubRepo) GrantRole(ctx context.Context, userID int64, role rbac.RoleName) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, held := range r.roles[userID] {
		if held == role {
			return nil
		}
	}
	r.roles[userID] = append(r.roles[userID], role)
	return nil
}

func (r *stubRepo) RevokeRole(ctx context.Context, userID int64, role rbac.RoleName) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.roles[userID][:0]
	for _, held := range r.roles[userID] {
		if held != role {
			kept = append(kept, held)
		}
	}
	r.roles[userID] = kept
	return nil
}

// GrantOwnerIfAbsent mirrors the conditional insert semantics: the check and
// grant happen under one lock, so exactly one caller wins.
func (r *stubRepo) GrantOwnerIfAbsent(ctx context.Context, userID int64, owner rbac.RoleName) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, held := range r.roles {
		for _, role := range held {
			if role == owner {
				return false, nil
			}
		}
	}
	r.roles[userID] = append(r.roles[userID], owner)
	return true, nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, rbac.DefaultCatalog(), DefaultGroupMap(), slog.Default())
}

func TestSyncRolesMapsGroups(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)

	user, roles, err := svc.SyncRoles(context.Background(), "oidc|123", "a@example.com", "Alice", []string{"vpn-operators", "unknown-group", "vpn-auditors"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if user.ID == 0 {
		t.Fatalf("expected persisted user")
	}
	if len(roles) != 2 {
		t.Fatalf("expected 2 mapped roles, got %v", roles)
	}
	stored, _ := repo.UserRoles(context.Background(), user.ID)
	if len(stored) != 2 {
		t.Fatalf("expected stored membership, got %v", stored)
	}
}

func TestSyncRolesIdempotent(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	groups := []string{"vpn-admins", "vpn-users"}
	u1, r1, err := svc.SyncRoles(ctx, "oidc|77", "b@example.com", "Bob", groups)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	u2, r2, err := svc.SyncRoles(ctx, "oidc|77", "b@example.com", "Bob", groups)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if u1.ID != u2.ID {
		t.Fatalf("expected same user, got %d and %d", u1.ID, u2.ID)
	}
	if len(r1) != len(r2) {
		t.Fatalf("expected identical role sets, got %v and %v", r1, r2)
	}
	for i := range r1 {
		if r1[i] != r2[i] {
			t.Fatalf("expected identical role sets, got %v and %v", r1, r2)
		}
	}
}

func TestSyncRolesDowngradesOnStoreFailure(t *testing.T) {
	repo := newStubRepo()
	repo.failRoles = errors.New("store unavailable")
	svc := newTestService(repo)

	user, roles, err := svc.SyncRoles(context.Background(), "oidc|9", "c@example.com", "Cara", []string{"vpn-admins"})
	if !errors.Is(err, ErrRoleSyncDegraded) {
		t.Fatalf("expected ErrRoleSyncDegraded, got %v", err)
	}
	if user.ID == 0 {
		t.Fatalf("expected user despite degraded sync")
	}
	if len(roles) != 1 || roles[0] != rbac.RoleUser {
		t.Fatalf("expected lowest privilege fallback, got %v", roles)
	}
}

func TestEnsureOwnerExistsExactlyOnce(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	const logins = 16
	ids := make([]int64, logins)
	for i := range ids {
		u, _, err := svc.SyncRoles(ctx, "oidc|race-"+string(rune('a'+i)), "", "", nil)
		if err != nil {
			t.Fatalf("sync %d: %v", i, err)
		}
		ids[i] = u.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			if err := svc.EnsureOwnerExists(ctx, uid); err != nil {
				t.Errorf("ensure owner: %v", err)
			}
		}(id)
	}
	wg.Wait()

	owners := 0
	for _, id := range ids {
		roles, _ := repo.UserRoles(ctx, id)
		for _, role := range roles {
			if role == rbac.RoleOwner {
				owners++
			}
		}
	}
	if owners != 1 {
		t.Fatalf("expected exactly one owner, got %d", owners)
	}
}

func TestMapGroupsDeduplicates(t *testing.T) {
	svc := newTestService(newStubRepo())
	roles := svc.MapGroups([]string{"vpn-users", "vpn-users", " vpn-operators "})
	if len(roles) != 2 {
		t.Fatalf("expected deduplicated set, got %v", roles)
	}
}

func TestAssignRoleRejectsUnknown(t *testing.T) {
	svc := newTestService(newStubRepo())
	if err := svc.AssignRole(context.Background(), 1, "GHOST"); err == nil {
		t.Fatalf("expected unknown role error")
	}
}
