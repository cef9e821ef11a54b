package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/meshgate/meshgate/internal/identity"
	"github.com/meshgate/meshgate/internal/rbac"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenRoundTrip(t *testing.T) {
	mgr, err := NewTokenManager(testSecret, time.Minute)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	user := identity.User{ID: 7, Subject: "sub-7", Email: "a@b.example", Name: "Alice"}
	token, jti, expiresAt, err := mgr.Issue(user, []rbac.RoleName{rbac.RoleOperator, rbac.RoleUser})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if jti == "" {
		t.Fatal("expected non-empty jti")
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expiry %v not in the future", expiresAt)
	}

	claims, err := mgr.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != 7 || claims.Subject != "sub-7" || claims.ID != jti {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	roles := claims.RoleNames()
	if len(roles) != 2 || roles[0] != rbac.RoleOperator || roles[1] != rbac.RoleUser {
		t.Fatalf("role snapshot mismatch: %v", roles)
	}
}

func TestShortSecretRejected(t *testing.T) {
	if _, err := NewTokenManager("tooshort", time.Minute); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	mgr, err := NewTokenManager(testSecret, time.Minute)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	token, _, _, err := mgr.Issue(identity.User{ID: 1, Subject: "s"}, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]
	if _, err := mgr.Parse(tampered); err == nil {
		t.Fatal("expected tampered token to be rejected")
	}
}

func TestTokenSignedWithDifferentSecretRejected(t *testing.T) {
	mgr1, _ := NewTokenManager(testSecret, time.Minute)
	mgr2, _ := NewTokenManager("ffffffffffffffffffffffffffffffff", time.Minute)
	token, _, _, err := mgr2.Issue(identity.User{ID: 1, Subject: "s"}, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := mgr1.Parse(token); err == nil {
		t.Fatal("expected foreign token to be rejected")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr, err := NewTokenManager(testSecret, time.Millisecond)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	token, _, _, err := mgr.Issue(identity.User{ID: 1, Subject: "s"}, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := mgr.Parse(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}
