package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/cuemby/agora/pkg/api"
	"github.com/cuemby/agora/pkg/client"
	"github.com/cuemby/agora/pkg/config"
	"github.com/cuemby/agora/pkg/manager"
)

// adminToken authenticates the operator client against the stack under test.
const adminToken = "integration-admin-token"

// stack is one fully started Agora process: manager, job dispatch, cache
// invalidation, and the HTTP surface on a real listener.
type stack struct {
	ts    *httptest.Server
	mgr   *manager.Manager
	admin *client.Client
}

// startStack boots the whole platform against temp directories and tears it
// down with the test. Unlike the api package's router tests the manager is
// started, so background workers and invalidation are live.
func startStack(t *testing.T, mutate ...func(*config.Config)) *stack {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Media.LocalDir = t.TempDir()
	cfg.Server.BaseDomain = "agora.test"
	cfg.Server.AdminToken = adminToken
	for _, m := range mutate {
		m(cfg)
	}

	mgr, err := manager.NewManager(cfg)
	if err != nil {
		t.Fatalf("Failed to build manager: %v", err)
	}
	if err := mgr.Start(); err != nil {
		mgr.Stop()
		t.Fatalf("Failed to start manager: %v", err)
	}

	ts := httptest.NewServer(api.NewServer(mgr).Router())
	t.Cleanup(func() {
		ts.Close()
		mgr.Stop()
	})

	admin, err := client.New(ts.URL, adminToken)
	if err != nil {
		t.Fatalf("Failed to build admin client: %v", err)
	}
	return &stack{ts: ts, mgr: mgr, admin: admin}
}

// storefront sends one request routed by Host header, the way the edge would
// deliver it, and returns the status plus the raw body.
func (s *stack) storefront(t *testing.T, method, host, path string, body any, hdr map[string]string) (int, []byte) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Host = host
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}

	resp, err := s.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	return resp.StatusCode, raw
}

// unmarshal decodes raw into v, failing the test on bad JSON.
func unmarshal(t *testing.T, raw []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", raw, err)
	}
}

// listItems pulls the items out of a collection envelope.
func listItems(t *testing.T, raw []byte, v any) {
	t.Helper()
	var env struct {
		Items json.RawMessage `json:"items"`
	}
	unmarshal(t, raw, &env)
	if len(env.Items) == 0 || string(env.Items) == "null" {
		return
	}
	unmarshal(t, env.Items, v)
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("Timeout waiting for %s", what)
}

// relocate rewrites a presigned URL onto the test listener. Signatures cover
// method, key, and expiry, never the host, so the swap is transparent.
func (s *stack) relocate(t *testing.T, presigned string) string {
	t.Helper()
	u, err := url.Parse(presigned)
	if err != nil {
		t.Fatalf("Failed to parse presigned URL %q: %v", presigned, err)
	}
	base, err := url.Parse(s.ts.URL)
	if err != nil {
		t.Fatalf("Failed to parse server URL: %v", err)
	}
	u.Scheme = base.Scheme
	u.Host = base.Host
	return u.String()
}
