package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agora/pkg/config"
)

func testLimiter(t *testing.T, perMinute int, at time.Time) (*Limiter, *time.Time) {
	t.Helper()
	l := New(config.RateLimitConfig{RequestsPerMinute: perMinute})
	t.Cleanup(l.Stop)
	now := at
	l.now = func() time.Time { return now }
	return l, &now
}

func TestBurstUpToCapacityThenRejected(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _ := testLimiter(t, 60, start)

	// the whole minute's budget is available as an immediate burst
	for i := 0; i < 60; i++ {
		res := l.Allow("t1", "api")
		require.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 60, res.Limit)
		assert.Equal(t, 59-i, res.Remaining)
	}

	res := l.Allow("t1", "api")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, start.Add(time.Second), res.ResetAt, "one token refills in one second at 60/min")
}

func TestRefillRestoresBudgetOverTime(t *testing.T) {
	start := time.Now()
	l, now := testLimiter(t, 60, start)

	for i := 0; i < 60; i++ {
		require.True(t, l.Allow("t1", "api").Allowed)
	}
	require.False(t, l.Allow("t1", "api").Allowed)

	// one second buys exactly one token at 60/min
	*now = start.Add(time.Second)
	res := l.Allow("t1", "api")
	assert.True(t, res.Allowed)
	assert.False(t, l.Allow("t1", "api").Allowed)
}

func TestRefillClampsAtCapacity(t *testing.T) {
	start := time.Now()
	l, now := testLimiter(t, 10, start)

	require.True(t, l.Allow("t1", "api").Allowed)

	// an hour of idle never stacks beyond one bucket
	*now = start.Add(time.Hour)
	res := l.Allow("t1", "api")
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, res.Remaining)
}

func TestBucketsIndependentPerClientAndScope(t *testing.T) {
	l, _ := testLimiter(t, 2, time.Now())

	require.True(t, l.Allow("t1", "api").Allowed)
	require.True(t, l.Allow("t1", "api").Allowed)
	require.False(t, l.Allow("t1", "api").Allowed)

	assert.True(t, l.Allow("t1", "webhooks").Allowed, "scopes meter separately")
	assert.True(t, l.Allow("t2", "api").Allowed, "clients meter separately")
}

func TestResetRestoresFullBudget(t *testing.T) {
	l, _ := testLimiter(t, 2, time.Now())

	require.True(t, l.Allow("t1", "api").Allowed)
	require.True(t, l.Allow("t1", "api").Allowed)
	require.False(t, l.Allow("t1", "api").Allowed)

	l.Reset("t1", "api")
	res := l.Allow("t1", "api")
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
}

func TestClearAllDropsEveryBucket(t *testing.T) {
	l, _ := testLimiter(t, 1, time.Now())

	require.True(t, l.Allow("t1", "api").Allowed)
	require.True(t, l.Allow("t2", "api").Allowed)
	require.False(t, l.Allow("t1", "api").Allowed)

	l.ClearAll()
	assert.True(t, l.Allow("t1", "api").Allowed)
	assert.True(t, l.Allow("t2", "api").Allowed)
}

func TestSetCapacityAppliesOnNextRefill(t *testing.T) {
	start := time.Now()
	l, now := testLimiter(t, 2, start)

	require.True(t, l.Allow("t1", "api").Allowed)
	require.True(t, l.Allow("t1", "api").Allowed)
	require.False(t, l.Allow("t1", "api").Allowed)

	// A raised budget changes the ceiling and the refill rate; the bucket's
	// current fill is kept, not reset.
	l.SetCapacity(120)
	res := l.Allow("t1", "api")
	assert.False(t, res.Allowed, "no tokens appear out of thin air")
	assert.Equal(t, 120, res.Limit)

	// 120/min refills two tokens per second.
	*now = start.Add(time.Second)
	res = l.Allow("t1", "api")
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	// Nonsense budgets are ignored.
	l.SetCapacity(0)
	assert.Equal(t, 120, l.Allow("t1", "api").Limit)
}

func TestEvictionSparesBucketsStillOwingTokens(t *testing.T) {
	start := time.Now()
	l, now := testLimiter(t, 60, start)
	l.idle = 10 * time.Second

	// t1 drained its budget; t2 only peeked
	for i := 0; i < 60; i++ {
		require.True(t, l.Allow("t1", "api").Allowed)
	}
	require.True(t, l.Allow("t2", "api").Allowed)

	// 15s idle: t1's notional refill is 15 tokens, far from full, so it
	// must survive the sweep; evicting it would hand back a full bucket.
	*now = start.Add(15 * time.Second)
	l.evict()

	_, t1Alive := l.buckets.Load(key{"t1", "api"})
	assert.True(t, t1Alive, "partially refilled bucket must not be evicted")

	// after a full refill the idle bucket goes
	*now = start.Add(2 * time.Minute)
	l.evict()
	_, t1Alive = l.buckets.Load(key{"t1", "api"})
	assert.False(t, t1Alive)
	_, t2Alive := l.buckets.Load(key{"t2", "api"})
	assert.False(t, t2Alive)
}
