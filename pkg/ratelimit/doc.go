/*
Package ratelimit implements the per-tenant token bucket behind the API's
X-RateLimit headers.

Each (client, scope) pair owns one bucket of RequestsPerMinute tokens that
refills continuously at capacity/60 tokens per second. A request spends one
token; a bucket below one token rejects with the time the next token lands.
State lives in process memory. Every pod enforces the limit independently,
so a client spread across N pods sees an effective budget of about N times
the configured rate; the tradeoff is zero shared infrastructure on the hot
path.

Idle buckets are swept once a minute, and only once their notional refill
has reached capacity, so eviction never takes back tokens a client had
accumulated.
*/
package ratelimit
