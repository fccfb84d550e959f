package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/agora/pkg/config"
)

func TestExponentialDelayNondecreasingAndCapped(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, InitialDelay: time.Second, Multiplier: 2, MaxDelay: 30 * time.Second}

	assert.Equal(t, 1*time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 8*time.Second, p.Delay(4))

	var prev time.Duration
	for n := 1; n <= 12; n++ {
		d := p.Delay(n)
		assert.GreaterOrEqual(t, d, prev, "delay must never shrink between attempts (n=%d)", n)
		assert.LessOrEqual(t, d, 30*time.Second)
		prev = d
	}
	assert.Equal(t, 30*time.Second, p.Delay(12))
}

func TestLinearDelayWhenMultiplierNotAboveOne(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialDelay: 2 * time.Second, Multiplier: 1}
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 6*time.Second, p.Delay(3))
}

func TestDelayFloorsAttemptAtOne(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, time.Second, p.Delay(-3))
}

func TestPoliciesFallBackToDefaultLane(t *testing.T) {
	ps := Policies{PriorityDefault: {MaxAttempts: 3, InitialDelay: time.Second}}
	got := ps.For(PriorityBulk)
	assert.Equal(t, 3, got.MaxAttempts)
	assert.Equal(t, time.Second, got.InitialDelay)
}

func TestNewPoliciesCoversEveryLane(t *testing.T) {
	ps := NewPolicies(config.RetryConfig{
		MaxAttempts:  4,
		InitialDelay: config.Duration(time.Second),
		Multiplier:   2,
		MaxDelay:     config.Duration(time.Minute),
	})
	for _, p := range priorityOrder {
		pol := ps.For(p)
		assert.Equal(t, 4, pol.MaxAttempts, p.String())
		assert.Equal(t, time.Second, pol.InitialDelay, p.String())
		assert.Equal(t, time.Minute, pol.MaxDelay, p.String())
	}
}
