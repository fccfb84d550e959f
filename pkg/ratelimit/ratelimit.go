package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/agora/pkg/config"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/metrics"
)

// Result is the outcome of one Allow call. ResetAt is when the bucket is
// full again on success, or when the next token lands on rejection; the API
// layer turns it into X-RateLimit-Reset and Retry-After.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type key struct {
	client string
	scope  string
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
}

// Limiter is a token-bucket limiter keyed by (client, scope). Buckets start
// full and refill continuously at capacity/60 tokens per second, so the
// capacity is a per-minute budget. State is per process: with N pods a
// client's effective budget approaches N times the limit.
type Limiter struct {
	capacity atomic.Int64
	idle     time.Duration
	buckets  sync.Map // key → *bucket
	logger   zerolog.Logger
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// evictInterval is how often idle buckets are swept.
const evictInterval = time.Minute

// New builds a limiter and starts its eviction sweep. Call Stop on shutdown.
func New(cfg config.RateLimitConfig) *Limiter {
	capacity := cfg.RequestsPerMinute
	if capacity <= 0 {
		capacity = 60
	}
	idle := cfg.IdleEviction.Std()
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	l := &Limiter{
		idle:   idle,
		logger: log.WithComponent("ratelimit"),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	l.capacity.Store(int64(capacity))
	go l.evictLoop()
	return l
}

// SetCapacity applies a new per-minute budget, as on a config reload.
// Existing buckets keep their fill and adopt the new rate and ceiling on
// their next refill.
func (l *Limiter) SetCapacity(requestsPerMinute int) {
	if requestsPerMinute <= 0 {
		return
	}
	old := l.capacity.Swap(int64(requestsPerMinute))
	if int(old) != requestsPerMinute {
		l.logger.Info().Int("from", int(old)).Int("to", requestsPerMinute).Msg("Rate limit capacity changed")
	}
}

// Stop ends the eviction sweep.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Allow spends one token from the (client, scope) bucket.
func (l *Limiter) Allow(client, scope string) Result {
	capacity := float64(l.capacity.Load())
	v, _ := l.buckets.LoadOrStore(key{client, scope}, &bucket{
		tokens:     capacity,
		lastRefill: l.now(),
	})
	b := v.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	b.lastSeen = now

	// Continuous refill: capacity per minute, clamped at capacity.
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * capacity / 60.0
	if b.tokens > capacity {
		b.tokens = capacity
	}
	b.lastRefill = now

	if b.tokens >= 1.0 {
		b.tokens--
		return Result{
			Allowed:   true,
			Limit:     int(capacity),
			Remaining: int(b.tokens),
			ResetAt:   now.Add(tokensToWait(capacity-b.tokens, capacity)),
		}
	}

	metrics.RateLimitedTotal.Inc()
	l.logger.Debug().Str("client", client).Str("scope", scope).Msg("rate limited")
	return Result{
		Allowed:   false,
		Limit:     int(capacity),
		Remaining: 0,
		ResetAt:   now.Add(tokensToWait(1.0-b.tokens, capacity)),
	}
}

// Reset drops one bucket; the next call starts from a full budget. Exposed
// to operators through the admin API.
func (l *Limiter) Reset(client, scope string) {
	l.buckets.Delete(key{client, scope})
}

// ClearAll drops every bucket.
func (l *Limiter) ClearAll() {
	l.buckets.Range(func(k, _ any) bool {
		l.buckets.Delete(k)
		return true
	})
}

// tokensToWait converts a token deficit into wall time at the refill rate.
func tokensToWait(tokens, capacity float64) time.Duration {
	seconds := tokens * 60.0 / capacity
	return time.Duration(seconds * float64(time.Second))
}

func (l *Limiter) evictLoop() {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evict()
		case <-l.stopCh:
			return
		}
	}
}

// evict removes buckets idle past the threshold, but only once their
// notional refill has reached capacity: a recreated bucket starts full, so
// evicting a full bucket can never cost a client tokens it had earned.
func (l *Limiter) evict() {
	now := l.now()
	threshold := now.Add(-l.idle)
	capacity := float64(l.capacity.Load())
	l.buckets.Range(func(k, v any) bool {
		b := v.(*bucket)
		b.mu.Lock()
		idle := b.lastSeen.Before(threshold)
		notional := b.tokens + now.Sub(b.lastRefill).Seconds()*capacity/60.0
		full := notional >= capacity
		b.mu.Unlock()
		if idle && full {
			l.buckets.Delete(k)
		}
		return true
	})
}
