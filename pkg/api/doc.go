// Package api serves Agora's HTTP surfaces from a single chi router.
//
// Four surfaces share the listener:
//
//   - /api/v1: the storefront API. Every request resolves its tenant from
//     the Host header before any handler runs, then passes through rate
//     limiting and idempotency-key replay. Identity is optional: a JWT
//     bearer authenticates a storefront user, an X-Impersonation-Token
//     lets a platform operator act as the tenant, and everything else is
//     anonymous session traffic.
//   - /webhooks: payment gateway deliveries. The event body names its
//     tenant and is authenticated against that tenant's webhook secret,
//     so these routes skip host resolution.
//   - /objects: signed upload and download for local object storage.
//     Possession of an unexpired signed URL is the authorization.
//   - /admin/v1: the platform-operator surface, guarded by a static
//     bearer token and mounted only when one is configured.
//
// Errors render as RFC 7807 problem documents extended with tenantId,
// traceId, impersonationId, featureFlag and remediation members. The one
// exception is a suspended store, which always answers a fixed
// {"error":"store_suspended"} body so storefront clients can key on it.
//
// List responses share an envelope carrying total_count, page_count,
// links and a data_freshness_timestamp: time.Now for live reads, the
// aggregate's last rebuild for report-backed reads.
package api
