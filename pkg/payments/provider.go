package payments

import (
	"context"
)

// Provider is the payment gateway seam. The checkout saga creates one
// intent per run for the card residual and reacts to webhook events; refunds
// run during compensation.
type Provider interface {
	// CreateIntent asks the gateway to charge amountCents in currency.
	// The idempotency key is the saga-run id, so a retried step never
	// double-charges.
	CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string, idempotencyKey string) (*IntentRef, error)

	// ParseWebhook authenticates a gateway callback and decodes it.
	// Deliveries are at-least-once; callers dedupe by Event.ID.
	ParseWebhook(signature string, body []byte) (*Event, error)

	// Refund returns amountCents of a previously created intent.
	Refund(ctx context.Context, intentRef string, amountCents int64) (*RefundRef, error)
}

// IntentRef identifies a charge on the provider side.
type IntentRef struct {
	ProviderRef string `json:"provider_ref"`
	Status      string `json:"status"`
}

// RefundRef identifies a refund on the provider side.
type RefundRef struct {
	ProviderRef string `json:"provider_ref"`
}

// Event is a decoded, authenticated webhook delivery.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	TenantID  string            `json:"tenant_id"`
	IntentRef string            `json:"intent_ref"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Webhook event types.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.failed"
	EventRefundSucceeded = "refund.succeeded"
)
