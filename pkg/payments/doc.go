/*
Package payments is the payment gateway seam for checkout.

The Provider interface covers the three interactions the saga needs: create
an intent for the card residual, authenticate webhook deliveries, and refund
during compensation. HTTPProvider is the production implementation.

# Call Protection

Every outbound call is throttled with a token-bucket rate limiter and runs
inside a circuit breaker. Transport failures, 429s, and 5xx responses count
against the breaker and surface as transient errors, so retry policies back
off and the saga can park the run. Terminal rejections (card declined,
validation) surface as DeclineError, which unwraps to the permanent error
class and is never retried: a declined card stays declined.

# Idempotency

CreateIntent requires an idempotency key. The saga passes its run id, so a
redelivered step reaches the gateway with the same key and the gateway
deduplicates the charge.

# Webhooks

Deliveries are at-least-once. ParseWebhook verifies the HMAC-SHA256
signature against the webhook secret of the tenant the event names; callers
dedupe by event id before acting.
*/
package payments
