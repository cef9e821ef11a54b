package authz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meshgate/meshgate/internal/auth"
	"github.com/meshgate/meshgate/internal/rbac"
)

type stubVerifier struct {
	claims map[string]*auth.Claims
}

func (s *stubVerifier) VerifyToken(ctx context.Context, raw string) (*auth.Claims, error) {
	if claims, ok := s.claims[raw]; ok {
		return claims, nil
	}
	return nil, auth.ErrInvalidToken
}

func newTestMiddleware() (Middleware, *stubVerifier) {
	verifier := &stubVerifier{claims: map[string]*auth.Claims{
		"user-token":     {UserID: 1, Email: "u@example.com", Roles: []string{"USER"}},
		"operator-token": {UserID: 2, Email: "o@example.com", Roles: []string{"OPERATOR"}},
		"owner-token":    {UserID: 3, Email: "own@example.com", Roles: []string{"OWNER"}},
	}}
	return Middleware{Verifier: verifier, Catalog: rbac.DefaultCatalog()}, verifier
}

func okHandler(t *testing.T, wantActor bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantActor {
			if _, ok := ActorFromContext(r.Context()); !ok {
				t.Errorf("expected actor in context")
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(handler http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	mw, _ := newTestMiddleware()
	rec := doRequest(mw.RequireMinimumRole(rbac.RoleUser)(okHandler(t, false)), "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "Unauthorized" {
		t.Fatalf("expected Unauthorized error body, got %v", body)
	}
}

func TestInvalidTokenIsUnauthorized(t *testing.T) {
	mw, _ := newTestMiddleware()
	rec := doRequest(mw.RequireRole(rbac.RoleAdmin)(okHandler(t, false)), "forged")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMinimumRoleDenialDisclosesThreshold(t *testing.T) {
	mw, _ := newTestMiddleware()
	rec := doRequest(mw.RequireMinimumRole(rbac.RoleOperator)(okHandler(t, false)), "user-token")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var body struct {
		Error         string `json:"error"`
		RequiredLevel string `json:"requiredLevel"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "Forbidden" || body.RequiredLevel != "OPERATOR" {
		t.Fatalf("unexpected denial body: %+v", body)
	}
}

func TestMinimumRolePassesAtOrAbove(t *testing.T) {
	mw, _ := newTestMiddleware()
	for _, token := range []string{"operator-token", "owner-token"} {
		rec := doRequest(mw.RequireMinimumRole(rbac.RoleOperator)(okHandler(t, true)), token)
		if rec.Code != http.StatusOK {
			t.Fatalf("token %s: expected 200, got %d", token, rec.Code)
		}
	}
}

func TestExactSetDenialDisclosesAllowList(t *testing.T) {
	mw, _ := newTestMiddleware()
	rec := doRequest(mw.RequireRole(rbac.RoleAdmin, rbac.RoleOwner)(okHandler(t, false)), "operator-token")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var body struct {
		Error    string   `json:"error"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "Forbidden" || len(body.Required) != 2 {
		t.Fatalf("unexpected denial body: %+v", body)
	}
}

func TestExactSetPassesOnMembership(t *testing.T) {
	mw, _ := newTestMiddleware()
	rec := doRequest(mw.RequireRole(rbac.RoleOwner)(okHandler(t, true)), "owner-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestActorCarriesClaims(t *testing.T) {
	mw, _ := newTestMiddleware()
	var got Actor
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	rec := doRequest(mw.RequireMinimumRole(rbac.RoleUser)(handler), "operator-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.UserID != 2 || got.Email != "o@example.com" {
		t.Fatalf("unexpected actor %+v", got)
	}
	if len(got.Roles) != 1 || got.Roles[0] != rbac.RoleOperator {
		t.Fatalf("unexpected roles %v", got.Roles)
	}
}
