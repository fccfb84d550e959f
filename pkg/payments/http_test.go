package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agora/pkg/config"
	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/security"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

type staticCreds map[string]*security.PaymentCredentials

func (s staticCreds) Get(tenantID string) (*security.PaymentCredentials, error) {
	creds, ok := s[tenantID]
	if !ok {
		return nil, errdefs.NotFoundf("payment credentials for tenant %s", tenantID)
	}
	return creds, nil
}

func tenantCtx(t *testing.T, tenantID string) context.Context {
	t.Helper()
	ctx, err := tenant.Bind(context.Background(), &tenant.Binding{
		Tenant: &types.Tenant{ID: tenantID, Status: types.TenantStatusActive},
		Actor:  "test",
	})
	require.NoError(t, err)
	return ctx
}

func testProvider(t *testing.T, gatewayURL string, maxFail uint32) *HTTPProvider {
	t.Helper()
	return NewHTTPProvider(config.PaymentsConfig{
		BaseURL:        gatewayURL,
		Timeout:        config.Duration(2 * time.Second),
		RequestsPerSec: 1000,
		BreakerMaxFail: maxFail,
		BreakerCooloff: config.Duration(time.Minute),
	}, staticCreds{
		"t1": {Provider: "stripe", APIKey: "sk_test_t1", WebhookSecret: "whsec_t1"},
	})
}

func TestCreateIntentSendsAuthAndIdempotencyKey(t *testing.T) {
	var gotAuth, gotKey string
	var gotBody map[string]any
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"provider_ref":"pi_123","status":"pending"}`))
	}))
	defer gw.Close()

	p := testProvider(t, gw.URL, 5)
	ref, err := p.CreateIntent(tenantCtx(t, "t1"), 6000, "USD",
		map[string]string{"order_id": "o1"}, "saga-run-42")
	require.NoError(t, err)

	assert.Equal(t, "pi_123", ref.ProviderRef)
	assert.Equal(t, "pending", ref.Status)
	assert.Equal(t, "Bearer sk_test_t1", gotAuth)
	assert.Equal(t, "saga-run-42", gotKey)
	assert.Equal(t, float64(6000), gotBody["amount_cents"])
	assert.Equal(t, "USD", gotBody["currency"])
}

func TestCardDeclineIsPermanent(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"code":"card_declined","message":"Your card was declined."}}`))
	}))
	defer gw.Close()

	p := testProvider(t, gw.URL, 5)
	_, err := p.CreateIntent(tenantCtx(t, "t1"), 6000, "USD", nil, "saga-run-1")
	require.Error(t, err)

	assert.False(t, errdefs.Retryable(err), "a declined card must not be retried")
	var decline *DeclineError
	require.ErrorAs(t, err, &decline)
	assert.Equal(t, "card_declined", decline.Code)
}

func TestServerErrorIsTransient(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer gw.Close()

	p := testProvider(t, gw.URL, 5)
	_, err := p.CreateIntent(tenantCtx(t, "t1"), 6000, "USD", nil, "saga-run-1")
	require.Error(t, err)
	assert.True(t, errdefs.Retryable(err), "gateway 5xx should be retried")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int64
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gw.Close()

	p := testProvider(t, gw.URL, 2)
	ctx := tenantCtx(t, "t1")

	for i := 0; i < 2; i++ {
		_, err := p.CreateIntent(ctx, 100, "USD", nil, "run")
		require.Error(t, err)
	}
	require.EqualValues(t, 2, calls.Load())

	// Breaker is open now; the gateway must not see the third call.
	_, err := p.CreateIntent(ctx, 100, "USD", nil, "run")
	require.Error(t, err)
	assert.True(t, errdefs.Retryable(err))
	assert.EqualValues(t, 2, calls.Load())
}

func TestDeclineDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int64
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"code":"card_declined","message":"declined"}}`))
	}))
	defer gw.Close()

	p := testProvider(t, gw.URL, 2)
	ctx := tenantCtx(t, "t1")

	for i := 0; i < 5; i++ {
		_, err := p.CreateIntent(ctx, 100, "USD", nil, "run")
		var decline *DeclineError
		require.ErrorAs(t, err, &decline)
	}
	assert.EqualValues(t, 5, calls.Load(), "declines must keep reaching the gateway")
}

func TestRefundHitsIntentEndpoint(t *testing.T) {
	var gotPath string
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"provider_ref":"re_9"}`))
	}))
	defer gw.Close()

	p := testProvider(t, gw.URL, 5)
	ref, err := p.Refund(tenantCtx(t, "t1"), "pi_123", 4000)
	require.NoError(t, err)
	assert.Equal(t, "re_9", ref.ProviderRef)
	assert.Equal(t, "/v1/intents/pi_123/refunds", gotPath)
}

func TestCreateIntentRequiresTenantContext(t *testing.T) {
	p := testProvider(t, "http://gateway.invalid", 5)
	_, err := p.CreateIntent(context.Background(), 100, "USD", nil, "run")
	assert.ErrorIs(t, err, errdefs.ErrNoContext)
}

func TestCreateIntentValidatesInput(t *testing.T) {
	p := testProvider(t, "http://gateway.invalid", 5)
	ctx := tenantCtx(t, "t1")

	_, err := p.CreateIntent(ctx, 0, "USD", nil, "run")
	assert.ErrorIs(t, err, errdefs.ErrValidation)

	_, err = p.CreateIntent(ctx, 100, "", nil, "run")
	assert.ErrorIs(t, err, errdefs.ErrValidation)

	_, err = p.CreateIntent(ctx, 100, "USD", nil, "")
	assert.ErrorIs(t, err, errdefs.ErrValidation)
}

func TestUnknownTenantCredentialsFailClosed(t *testing.T) {
	p := testProvider(t, "http://gateway.invalid", 5)
	_, err := p.CreateIntent(tenantCtx(t, "t-unknown"), 100, "USD", nil, "run")
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}
