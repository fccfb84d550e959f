package client

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

	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/security"
	"github.com/cuemby/agora/pkg/types"
)

// requestTimeout bounds every admin call. CLI commands have no business
// waiting longer than this on a control-plane answer.
const requestTimeout = 10 * time.Second

// Client wraps the Agora admin API for easy CLI usage.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New creates an admin client for the manager at addr. The token is the
// operator bearer token the server was started with; an empty token still
// works for the unauthenticated health endpoints.
func New(addr, token string) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse manager address %q: %w", addr, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("manager address %q has no host", addr)
	}
	return &Client{
		base:  strings.TrimRight(u.String(), "/"),
		token: token,
		http:  &http.Client{Timeout: requestTimeout},
	}, nil
}

// ProblemError is a non-2xx admin API answer, decoded from its RFC 7807
// body when one was sent.
type ProblemError struct {
	Status      int    `json:"status"`
	Title       string `json:"title"`
	Detail      string `json:"detail"`
	Remediation string `json:"remediation"`
}

func (e *ProblemError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", strings.ToLower(e.Title), e.Detail)
	}
	return strings.ToLower(e.Title)
}

// CreateTenant provisions a new store.
func (c *Client) CreateTenant(name, subdomain string, quotas types.TenantQuotas) (*types.Tenant, error) {
	in := map[string]any{"name": name, "subdomain": subdomain, "quotas": quotas}
	var t types.Tenant
	if err := c.do(http.MethodPost, "/admin/v1/tenants", in, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTenants returns every tenant on the platform.
func (c *Client) ListTenants() ([]*types.Tenant, error) {
	var tenants []*types.Tenant
	if err := c.getList("/admin/v1/tenants", &tenants); err != nil {
		return nil, err
	}
	return tenants, nil
}

// GetTenant returns one tenant by id.
func (c *Client) GetTenant(id string) (*types.Tenant, error) {
	var t types.Tenant
	if err := c.do(http.MethodGet, "/admin/v1/tenants/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SuspendTenant blocks all storefront traffic for the tenant.
func (c *Client) SuspendTenant(id, reason string) (*types.Tenant, error) {
	var t types.Tenant
	err := c.do(http.MethodPost, "/admin/v1/tenants/"+url.PathEscape(id)+"/suspend",
		map[string]string{"reason": reason}, &t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ActivateTenant restores a suspended tenant.
func (c *Client) ActivateTenant(id string) (*types.Tenant, error) {
	var t types.Tenant
	if err := c.do(http.MethodPost, "/admin/v1/tenants/"+url.PathEscape(id)+"/activate", nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTenant starts the tenant teardown.
func (c *Client) DeleteTenant(id string) error {
	return c.do(http.MethodDelete, "/admin/v1/tenants/"+url.PathEscape(id), nil, nil)
}

// UpdateQuotas replaces the tenant's resource quotas.
func (c *Client) UpdateQuotas(id string, quotas types.TenantQuotas) (*types.Tenant, error) {
	var t types.Tenant
	if err := c.do(http.MethodPut, "/admin/v1/tenants/"+url.PathEscape(id)+"/quotas", quotas, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// AttachDomain adds a custom domain to the tenant, pending verification.
func (c *Client) AttachDomain(id, domain string) (*types.Tenant, error) {
	var t types.Tenant
	err := c.do(http.MethodPost, "/admin/v1/tenants/"+url.PathEscape(id)+"/domains",
		map[string]string{"domain": domain}, &t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// VerifyDomain marks a custom domain as DNS-verified so hosts on it resolve.
func (c *Client) VerifyDomain(id, domain string) (*types.Tenant, error) {
	var t types.Tenant
	err := c.do(http.MethodPost, "/admin/v1/tenants/"+url.PathEscape(id)+"/domains/verify",
		map[string]string{"domain": domain}, &t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RemoveDomain detaches a custom domain from the tenant.
func (c *Client) RemoveDomain(id, domain string) (*types.Tenant, error) {
	var t types.Tenant
	err := c.do(http.MethodDelete, "/admin/v1/tenants/"+url.PathEscape(id)+"/domains/"+url.PathEscape(domain), nil, &t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListFlags returns the tenant's feature flags.
func (c *Client) ListFlags(id string) ([]*types.FeatureFlag, error) {
	var flags []*types.FeatureFlag
	if err := c.getList("/admin/v1/tenants/"+url.PathEscape(id)+"/flags", &flags); err != nil {
		return nil, err
	}
	return flags, nil
}

// SetFlag sets one feature flag on the tenant.
func (c *Client) SetFlag(id, key string, enabled bool) error {
	return c.do(http.MethodPut, "/admin/v1/tenants/"+url.PathEscape(id)+"/flags/"+url.PathEscape(key),
		map[string]bool{"enabled": enabled}, nil)
}

// PutPaymentCredentials stores the tenant's payment provider secrets. They
// are sealed server-side and never readable back through the API.
func (c *Client) PutPaymentCredentials(id string, creds security.PaymentCredentials) error {
	return c.do(http.MethodPut, "/admin/v1/tenants/"+url.PathEscape(id)+"/payment-credentials", creds, nil)
}

// ListDLQ returns dead-lettered jobs, optionally filtered by tenant and
// job kind. Empty filters match everything.
func (c *Client) ListDLQ(tenantID, kind string) ([]*types.DLQEntry, error) {
	q := url.Values{}
	if tenantID != "" {
		q.Set("tenant_id", tenantID)
	}
	if kind != "" {
		q.Set("kind", kind)
	}
	path := "/admin/v1/dlq"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var entries []*types.DLQEntry
	if err := c.getList(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// RequeueDLQ puts one dead-lettered job back on the queue.
func (c *Client) RequeueDLQ(id string) error {
	return c.do(http.MethodPost, "/admin/v1/dlq/"+url.PathEscape(id)+"/requeue", nil, nil)
}

// PurgeDLQ removes dead-lettered jobs matching the filters and returns how
// many were dropped.
func (c *Client) PurgeDLQ(tenantID, kind string) (int, error) {
	q := url.Values{}
	if tenantID != "" {
		q.Set("tenant_id", tenantID)
	}
	if kind != "" {
		q.Set("kind", kind)
	}
	path := "/admin/v1/dlq"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Purged int `json:"purged"`
	}
	if err := c.do(http.MethodDelete, path, nil, &out); err != nil {
		return 0, err
	}
	return out.Purged, nil
}

// ResetRateLimits drops one bucket when clientID and scope are both given,
// every bucket otherwise.
func (c *Client) ResetRateLimits(clientID, scope string) error {
	path := "/admin/v1/rate-limits"
	if clientID != "" && scope != "" {
		q := url.Values{}
		q.Set("client", clientID)
		q.Set("scope", scope)
		path += "?" + q.Encode()
	}
	return c.do(http.MethodDelete, path, nil, nil)
}

// IssueImpersonation mints a support session token for acting as the tenant.
func (c *Client) IssueImpersonation(actorID, tenantID, reason string) (*types.ImpersonationToken, error) {
	in := map[string]string{"actor_id": actorID, "tenant_id": tenantID, "reason": reason}
	var it types.ImpersonationToken
	if err := c.do(http.MethodPost, "/admin/v1/impersonation", in, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

// RevokeImpersonation kills a support session immediately.
func (c *Client) RevokeImpersonation(token string) error {
	return c.do(http.MethodDelete, "/admin/v1/impersonation/"+url.PathEscape(token), nil, nil)
}

// Health returns the manager's component health. Unlike the admin calls it
// needs no token, and a degraded manager still answers with the report.
func (c *Client) Health() (*metrics.HealthStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach manager: %w", err)
	}
	defer resp.Body.Close()

	var hs metrics.HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return nil, fmt.Errorf("decode health report: %w", err)
	}
	return &hs, nil
}

// do runs one admin request. A nil in sends no body; a nil out discards the
// response body. Non-2xx answers come back as *ProblemError.
func (c *Client) do(method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeProblem(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// getList unwraps the list envelope around every collection endpoint.
func (c *Client) getList(path string, items any) error {
	var env struct {
		Items json.RawMessage `json:"items"`
	}
	if err := c.do(http.MethodGet, path, nil, &env); err != nil {
		return err
	}
	if len(env.Items) == 0 || string(env.Items) == "null" {
		return nil
	}
	return json.Unmarshal(env.Items, items)
}

func decodeProblem(resp *http.Response) error {
	pe := &ProblemError{
		Status: resp.StatusCode,
		Title:  http.StatusText(resp.StatusCode),
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil && len(raw) > 0 {
		_ = json.Unmarshal(raw, pe)
	}
	// The wire status wins over anything the body claims.
	pe.Status = resp.StatusCode
	if pe.Title == "" {
		pe.Title = http.StatusText(resp.StatusCode)
	}
	return pe
}
