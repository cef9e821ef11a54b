package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// Config holds upstream connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client issues typed calls against the upstream control-plane API. Every
// call carries a bounded deadline; the client never retries internally —
// retry policy belongs to the caller, driven by the error kind.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient constructs a Client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Ping checks upstream reachability.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/health", nil, nil)
}

// ListNodes returns every registered node.
func (c *Client) ListNodes(ctx context.Context) ([]Node, error) {
	var out struct {
		Nodes []Node `json:"nodes"`
	}
	if err := c.do(ctx, "list nodes", http.MethodGet, "/api/v1/node", nil, &out); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

// GetNode fetches a single node.
func (c *Client) GetNode(ctx context.Context, id string) (Node, error) {
	var out struct {
		Node Node `json:"node"`
	}
	if err := c.do(ctx, "get node", http.MethodGet, "/api/v1/node/"+url.PathEscape(id), nil, &out); err != nil {
		return Node{}, err
	}
	return out.Node, nil
}

// ExpireNode forces a node to re-authenticate.
func (c *Client) ExpireNode(ctx context.Context, id string) (Node, error) {
	var out struct {
		Node Node `json:"node"`
	}
	if err := c.do(ctx, "expire node", http.MethodPost, "/api/v1/node/"+url.PathEscape(id)+"/expire", nil, &out); err != nil {
		return Node{}, err
	}
	return out.Node, nil
}

// RenameNode changes a node's name.
func (c *Client) RenameNode(ctx context.Context, id, name string) (Node, error) {
	var out struct {
		Node Node `json:"node"`
	}
	path := "/api/v1/node/" + url.PathEscape(id) + "/rename/" + url.PathEscape(name)
	if err := c.do(ctx, "rename node", http.MethodPost, path, nil, &out); err != nil {
		return Node{}, err
	}
	return out.Node, nil
}

// DeleteNode removes a node from the network.
func (c *Client) DeleteNode(ctx context.Context, id string) error {
	return c.do(ctx, "delete node", http.MethodDelete, "/api/v1/node/"+url.PathEscape(id), nil, nil)
}

// ListRoutes returns every advertised route.
func (c *Client) ListRoutes(ctx context.Context) ([]Route, error) {
	var out struct {
		Routes []Route `json:"routes"`
	}
	if err := c.do(ctx, "list routes", http.MethodGet, "/api/v1/routes", nil, &out); err != nil {
		return nil, err
	}
	return out.Routes, nil
}

// EnableRoute enables an advertised route.
func (c *Client) EnableRoute(ctx context.Context, id string) error {
	return c.do(ctx, "enable route", http.MethodPost, "/api/v1/routes/"+url.PathEscape(id)+"/enable", nil, nil)
}

// DisableRoute disables a route.
func (c *Client) DisableRoute(ctx context.Context, id string) error {
	return c.do(ctx, "disable route", http.MethodPost, "/api/v1/routes/"+url.PathEscape(id)+"/disable", nil, nil)
}

// GetPolicy fetches the ACL policy document.
func (c *Client) GetPolicy(ctx context.Context) (string, error) {
	var out struct {
		Policy string `json:"policy"`
	}
	if err := c.do(ctx, "get policy", http.MethodGet, "/api/v1/policy", nil, &out); err != nil {
		return "", err
	}
	return out.Policy, nil
}

// SetPolicy replaces the ACL policy document. The document must be
// well-formed JSON; malformed input is rejected before any network call.
func (c *Client) SetPolicy(ctx context.Context, policy string) (string, error) {
	if !json.Valid([]byte(policy)) {
		return "", &Error{Kind: KindBadRequest, Op: "set policy", Message: "policy document is not valid JSON"}
	}
	body := map[string]string{"policy": policy}
	var out struct {
		Policy string `json:"policy"`
	}
	if err := c.do(ctx, "set policy", http.MethodPut, "/api/v1/policy", body, &out); err != nil {
		return "", err
	}
	return out.Policy, nil
}

// ListPreAuthKeys returns registration keys for a user.
func (c *Client) ListPreAuthKeys(ctx context.Context, user string) ([]PreAuthKey, error) {
	var out struct {
		PreAuthKeys []PreAuthKey `json:"preAuthKeys"`
	}
	path := "/api/v1/preauthkey"
	if user != "" {
		path += "?user=" + url.QueryEscape(user)
	}
	if err := c.do(ctx, "list preauth keys", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.PreAuthKeys, nil
}

// CreatePreAuthKey creates a registration key.
func (c *Client) CreatePreAuthKey(ctx context.Context, req CreatePreAuthKeyRequest) (PreAuthKey, error) {
	var out struct {
		PreAuthKey PreAuthKey `json:"preAuthKey"`
	}
	if err := c.do(ctx, "create preauth key", http.MethodPost, "/api/v1/preauthkey", req, &out); err != nil {
		return PreAuthKey{}, err
	}
	return out.PreAuthKey, nil
}

// ExpirePreAuthKey invalidates a registration key.
func (c *Client) ExpirePreAuthKey(ctx context.Context, user, key string) error {
	body := map[string]string{"user": user, "key": key}
	return c.do(ctx, "expire preauth key", http.MethodPost, "/api/v1/preauthkey/expire", body, nil)
}

// ListAPIKeys returns upstream API credentials.
func (c *Client) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	var out struct {
		APIKeys []APIKey `json:"apiKeys"`
	}
	if err := c.do(ctx, "list api keys", http.MethodGet, "/api/v1/apikey", nil, &out); err != nil {
		return nil, err
	}
	return out.APIKeys, nil
}

// CreateAPIKey creates an upstream API credential and returns the full key,
// shown exactly once.
func (c *Client) CreateAPIKey(ctx context.Context, expiration time.Time) (string, error) {
	body := map[string]any{}
	if !expiration.IsZero() {
		body["expiration"] = expiration.UTC().Format(time.RFC3339)
	}
	var out struct {
		APIKey string `json:"apiKey"`
	}
	if err := c.do(ctx, "create api key", http.MethodPost, "/api/v1/apikey", body, &out); err != nil {
		return "", err
	}
	return out.APIKey, nil
}

// ExpireAPIKey invalidates an API credential by prefix.
func (c *Client) ExpireAPIKey(ctx context.Context, prefix string) error {
	body := map[string]string{"prefix": prefix}
	return c.do(ctx, "expire api key", http.MethodPost, "/api/v1/apikey/expire", body, nil)
}

// DeleteAPIKey removes an API credential by prefix.
func (c *Client) DeleteAPIKey(ctx context.Context, prefix string) error {
	return c.do(ctx, "delete api key", http.MethodDelete, "/api/v1/apikey/"+url.PathEscape(prefix), nil, nil)
}

// ListUsers returns upstream user namespaces.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	if err := c.do(ctx, "list users", http.MethodGet, "/api/v1/user", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindBadRequest, Op: op, Message: fmt.Sprintf("encode request: %v", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindConnection, Op: op, Message: err.Error()}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(op, resp.StatusCode, readMessage(resp.Body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindUpstream, Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

// readMessage extracts the upstream error message, preferring the JSON
// message field over the raw body.
func readMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var wrapped struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Message != "" {
		return wrapped.Message
	}
	return strings.TrimSpace(string(data))
}
