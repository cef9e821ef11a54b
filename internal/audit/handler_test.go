package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/meshgate/meshgate/internal/auth"
	"github.com/meshgate/meshgate/internal/authz"
	"github.com/meshgate/meshgate/internal/rbac"
)

type stubVerifier struct {
	sessions map[string][]string
}

func (v stubVerifier) VerifyToken(_ context.Context, raw string) (*auth.Claims, error) {
	roles, ok := v.sessions[raw]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{
		UserID: 9,
		Email:  "auditor@example.com",
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "sub-9",
			ID:      "jti-" + raw,
		},
	}, nil
}

func newTestRouter(t *testing.T, repo Repository) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	h := NewHandler(logger, NewService(repo), authz.Middleware{
		Verifier: stubVerifier{sessions: map[string][]string{
			"operator-token": {"OPERATOR"},
			"auditor-token":  {"AUDITOR"},
		}},
		Catalog: rbac.DefaultCatalog(),
		Logger:  logger,
	})
	r := chi.NewRouter()
	h.MountRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func TestAuditQueryRequiresAuditor(t *testing.T) {
	srv := newTestRouter(t, &stubAuditRepo{})

	resp, body := get(t, srv.URL+"/audit", "operator-token")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if body["requiredLevel"] != "AUDITOR" {
		t.Fatalf("expected requiredLevel AUDITOR, got %v", body["requiredLevel"])
	}

	resp, _ = get(t, srv.URL+"/audit", "auditor-token")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for auditor, got %d", resp.StatusCode)
	}
}

func TestAuditQueryUnknownActionListsValidValues(t *testing.T) {
	srv := newTestRouter(t, &stubAuditRepo{})

	resp, body := get(t, srv.URL+"/audit?action=FORMAT_DISK", "auditor-token")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	valid, ok := body["valid"].([]any)
	if !ok || len(valid) != len(Actions()) {
		t.Fatalf("expected full valid action list, got %v", body["valid"])
	}
}

func TestAuditQueryFiltersByAction(t *testing.T) {
	repo := &stubAuditRepo{}
	rec := NewRecorder(repo, nil, nil, nil)
	ctx := context.Background()

	deletion := validEntry()
	deletion.Action = ActionDeleteNode
	deletion.ResourceType = ResourceNode
	deletion.ResourceID = "n3"
	_ = rec.Record(ctx, validEntry())
	_ = rec.Record(ctx, deletion)

	srv := newTestRouter(t, repo)
	resp, body := get(t, srv.URL+"/audit?action=DELETE_NODE", "auditor-token")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	entries, ok := body["entries"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("expected one DELETE_NODE entry, got %v", body["entries"])
	}
	entry := entries[0].(map[string]any)
	if entry["resourceId"] != "n3" {
		t.Fatalf("expected resourceId n3, got %v", entry["resourceId"])
	}
}

func TestAuditQueryRejectsMalformedTimestamp(t *testing.T) {
	srv := newTestRouter(t, &stubAuditRepo{})

	resp, _ := get(t, srv.URL+"/audit?startDate=yesterday", "auditor-token")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAuditQueryDateBoundsReachStore(t *testing.T) {
	repo := &stubAuditRepo{}
	rec := NewRecorder(repo, nil, nil, nil)
	_ = rec.Record(context.Background(), validEntry())

	srv := newTestRouter(t, repo)
	resp, _ := get(t, srv.URL+"/audit?startDate=2099-01-01T00:00:00Z&endDate=2099-06-01T00:00:00Z", "auditor-token")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	wantStart, _ := time.Parse(time.RFC3339, "2099-01-01T00:00:00Z")
	if !repo.lastFilter.Start.Equal(wantStart) {
		t.Fatalf("start bound did not reach the store, got %v", repo.lastFilter.Start)
	}
	wantEnd, _ := time.Parse(time.RFC3339, "2099-06-01T00:00:00Z")
	if !repo.lastFilter.End.Equal(wantEnd) {
		t.Fatalf("end bound did not reach the store, got %v", repo.lastFilter.End)
	}
}
