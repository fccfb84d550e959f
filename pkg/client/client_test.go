package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agora/pkg/types"
)

func newStub(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "op-token")
	require.NoError(t, err)
	return c
}

func TestNewNormalizesAddress(t *testing.T) {
	c, err := New("manager.internal:8080", "tok")
	require.NoError(t, err)
	assert.Equal(t, "http://manager.internal:8080", c.base)

	_, err = New("http://", "tok")
	require.Error(t, err)
}

func TestCreateTenantSendsTokenAndBody(t *testing.T) {
	c := newStub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/v1/tenants", r.URL.Path)
		assert.Equal(t, "Bearer op-token", r.Header.Get("Authorization"))

		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "Maple Vintage", in["name"])
		assert.Equal(t, "maple", in["subdomain"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(types.Tenant{ID: "t-1", Subdomain: "maple"})
	}))

	tnt, err := c.CreateTenant("Maple Vintage", "maple", types.TenantQuotas{})
	require.NoError(t, err)
	assert.Equal(t, "t-1", tnt.ID)
}

func TestListUnwrapsEnvelope(t *testing.T) {
	c := newStub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items":       []types.Tenant{{ID: "t-1"}, {ID: "t-2"}},
			"total_count": 2,
		})
	}))

	tenants, err := c.ListTenants()
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "t-2", tenants[1].ID)
}

func TestProblemDocumentBecomesError(t *testing.T) {
	c := newStub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"type":   "about:blank",
			"title":  "Not Found",
			"status": 404,
			"detail": "tenant nope not found",
		})
	}))

	_, err := c.GetTenant("nope")
	require.Error(t, err)
	var pe *ProblemError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusNotFound, pe.Status)
	assert.Contains(t, pe.Detail, "nope")
	assert.Contains(t, err.Error(), "not found")
}

func TestPurgeDLQForwardsFilters(t *testing.T) {
	c := newStub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "t-1", r.URL.Query().Get("tenant_id"))
		assert.Equal(t, "media_transcode", r.URL.Query().Get("kind"))
		json.NewEncoder(w).Encode(map[string]int{"purged": 3})
	}))

	n, err := c.PurgeDLQ("t-1", "media_transcode")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestResetRateLimitsScopesQuery(t *testing.T) {
	var gotQuery string
	c := newStub(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, c.ResetRateLimits("t-1", "api"))
	assert.Contains(t, gotQuery, "client=t-1")

	// One side of the pair missing means clear everything.
	require.NoError(t, c.ResetRateLimits("t-1", ""))
	assert.Empty(t, gotQuery)
}
