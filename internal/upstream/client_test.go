package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string, timeout time.Duration) *Client {
	return NewClient(Config{BaseURL: baseURL, APIKey: "secret", Timeout: timeout})
}

func TestTimeoutClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 20*time.Millisecond)
	_, err := client.ListNodes(context.Background())
	require.Error(t, err)

	ue, ok := AsError(err)
	require.True(t, ok, "expected gateway error, got %T", err)
	assert.Equal(t, KindTimeout, ue.Kind)
	assert.True(t, ue.Retryable())
}

func TestConnectionRefusedClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // port is now closed

	client := newTestClient(srv.URL, time.Second)
	_, err := client.ListRoutes(context.Background())
	require.Error(t, err)

	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindConnection, ue.Kind)
	assert.True(t, ue.Retryable())
}

func TestNotFoundClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"node not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, time.Second)
	_, err := client.GetNode(context.Background(), "n404")
	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, ue.Kind)
	assert.False(t, ue.Retryable())
	assert.Equal(t, "node not found", ue.Message)
}

func TestBadRequestPreservesUpstreamMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"acl rule 3: unknown user"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, time.Second)
	_, err := client.SetPolicy(context.Background(), `{"acls":[]}`)
	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindBadRequest, ue.Kind)
	assert.Equal(t, "acl rule 3: unknown user", ue.Message)
	assert.False(t, ue.Retryable())
}

func TestServerErrorIsUpstreamKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, time.Second)
	err := client.EnableRoute(context.Background(), "r1")
	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindUpstream, ue.Kind)
	assert.False(t, ue.Retryable())
}

func TestSetPolicyRejectsMalformedJSONBeforeSend(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, time.Second)
	_, err := client.SetPolicy(context.Background(), `{"acls": [`)
	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindBadRequest, ue.Kind)
	assert.False(t, called, "malformed policy must not reach the upstream")
}

func TestListNodesDecodesWrappedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v1/node", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nodes":[{"id":"1","name":"relay","online":true},{"id":"2","name":"edge"}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, time.Second)
	nodes, err := client.ListNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "relay", nodes[0].Name)
	assert.True(t, nodes[0].Online)
}

func TestExpireNodeHitsExpectedPath(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		_, _ = w.Write([]byte(`{"node":{"id":"7","expired":true}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, time.Second)
	node, err := client.ExpireNode(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/node/7/expire", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.True(t, node.Expired)
}

func TestCreateAPIKeyReturnsFullKeyOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"apiKey":"hskey-abcdef123456"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, time.Second)
	key, err := client.CreateAPIKey(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "hskey-abcdef123456", key)
}
