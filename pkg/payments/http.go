package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/cuemby/agora/pkg/config"
	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/security"
	"github.com/cuemby/agora/pkg/tenant"
)

// CredentialSource resolves a tenant's gateway credentials. pkg/security's
// CredentialVault satisfies it.
type CredentialSource interface {
	Get(tenantID string) (*security.PaymentCredentials, error)
}

// DeclineError is a terminal gateway rejection (card declined, bad request).
// It unwraps to ErrPermanent, so retry policies leave it alone.
type DeclineError struct {
	Op     string
	Code   string
	Detail string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("payment provider rejected %s (%s): %s", e.Op, e.Code, e.Detail)
}

func (e *DeclineError) Unwrap() error { return errdefs.ErrPermanent }

// HTTPProvider talks to the payment gateway over HTTP. Outbound calls are
// throttled and pass through a circuit breaker so a melting gateway cannot
// take checkout workers down with it. Terminal gateway rejections (4xx) do
// not count against the breaker; only transport failures, 429s, and 5xx do.
type HTTPProvider struct {
	baseURL  string
	creds    CredentialSource
	client   *http.Client
	throttle *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	logger   zerolog.Logger
}

// NewHTTPProvider builds a provider from config. Credentials are resolved
// per call from the tenant bound to the context.
func NewHTTPProvider(cfg config.PaymentsConfig, creds CredentialSource) *HTTPProvider {
	logger := log.WithComponent("payments")

	limit := rate.Limit(cfg.RequestsPerSec)
	burst := int(cfg.RequestsPerSec)
	if cfg.RequestsPerSec <= 0 {
		limit = rate.Inf
		burst = 1
	}
	if burst < 1 {
		burst = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "payment-provider",
		Timeout: cfg.BreakerCooloff.Std(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFail
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1
			}
			metrics.BreakerOpen.WithLabelValues(name).Set(open)
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &HTTPProvider{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		creds:    creds,
		client:   &http.Client{Timeout: cfg.Timeout.Std()},
		throttle: rate.NewLimiter(limit, burst),
		breaker:  breaker,
		logger:   logger,
	}
}

// CreateIntent charges the card residual of a checkout run.
func (p *HTTPProvider) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string, idempotencyKey string) (*IntentRef, error) {
	if amountCents <= 0 {
		return nil, errdefs.Validationf("intent amount must be positive, got %d", amountCents)
	}
	if currency == "" {
		return nil, errdefs.Validationf("intent currency is required")
	}
	if idempotencyKey == "" {
		return nil, errdefs.Validationf("intent requires an idempotency key")
	}
	apiKey, err := p.apiKey(ctx)
	if err != nil {
		return nil, err
	}

	var ref IntentRef
	body := map[string]any{
		"amount_cents": amountCents,
		"currency":     currency,
		"metadata":     metadata,
	}
	if err := p.call(ctx, "create_intent", http.MethodPost, "/v1/intents", apiKey, idempotencyKey, body, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// Refund returns part or all of a captured intent during compensation.
func (p *HTTPProvider) Refund(ctx context.Context, intentRef string, amountCents int64) (*RefundRef, error) {
	if intentRef == "" {
		return nil, errdefs.Validationf("refund requires an intent ref")
	}
	if amountCents <= 0 {
		return nil, errdefs.Validationf("refund amount must be positive, got %d", amountCents)
	}
	apiKey, err := p.apiKey(ctx)
	if err != nil {
		return nil, err
	}

	var ref RefundRef
	path := "/v1/intents/" + url.PathEscape(intentRef) + "/refunds"
	body := map[string]any{"amount_cents": amountCents}
	if err := p.call(ctx, "refund", http.MethodPost, path, apiKey, "", body, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

func (p *HTTPProvider) apiKey(ctx context.Context) (string, error) {
	bind, err := tenant.Current(ctx)
	if err != nil {
		return "", err
	}
	creds, err := p.creds.Get(bind.Tenant.ID)
	if err != nil {
		return "", fmt.Errorf("load payment credentials for tenant %s: %w", bind.Tenant.ID, err)
	}
	return creds.APIKey, nil
}

type gatewayResponse struct {
	status int
	body   []byte
}

type gatewayError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *HTTPProvider) call(ctx context.Context, op, method, path, apiKey, idempotencyKey string, body, out any) error {
	if err := p.throttle.Wait(ctx); err != nil {
		return errdefs.Transientf("throttled %s aborted: %v", op, err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}

	res, err := p.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", op, err)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("provider returned %d", resp.StatusCode)
		}
		return &gatewayResponse{status: resp.StatusCode, body: raw}, nil
	})
	if err != nil {
		metrics.PaymentProviderErrors.WithLabelValues(op).Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			p.logger.Warn().Str("op", op).Msg("payment call rejected, circuit open")
			return errdefs.Transientf("payment provider circuit open, %s rejected", op)
		}
		p.logger.Warn().Err(err).Str("op", op).Msg("payment call failed")
		return errdefs.Transientf("payment provider %s: %v", op, err)
	}

	resp := res.(*gatewayResponse)
	if resp.status >= 400 {
		metrics.PaymentProviderErrors.WithLabelValues(op).Inc()
		var ge gatewayError
		_ = json.Unmarshal(resp.body, &ge)
		code := ge.Error.Code
		if code == "" {
			code = fmt.Sprintf("http_%d", resp.status)
		}
		detail := ge.Error.Message
		if detail == "" {
			detail = http.StatusText(resp.status)
		}
		p.logger.Info().Str("op", op).Str("code", code).Msg("payment call rejected by gateway")
		return &DeclineError{Op: op, Code: code, Detail: detail}
	}

	if out != nil {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
	}
	return nil
}
