package jobs

import (
	"math"
	"time"

	"github.com/cuemby/agora/pkg/config"
)

// RetryPolicy shapes the delay before a failed job runs again. A multiplier
// above 1 gives exponential backoff; otherwise the delay grows linearly with
// the attempt number. MaxDelay caps both curves.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// Delay returns the wait before attempt n runs (n is 1-based: the delay
// scheduled after the n-th failure). Nondecreasing in n.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	if p.Multiplier > 1 {
		d = time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	} else {
		d = p.InitialDelay * time.Duration(attempt)
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Policies maps each lane to its retry shape. The composition root may tune
// individual lanes; lookups fall back to the DEFAULT lane.
type Policies map[Priority]RetryPolicy

// NewPolicies applies one configured shape to every lane.
func NewPolicies(rc config.RetryConfig) Policies {
	base := RetryPolicy{
		MaxAttempts:  rc.MaxAttempts,
		InitialDelay: rc.InitialDelay.Std(),
		Multiplier:   rc.Multiplier,
		MaxDelay:     rc.MaxDelay.Std(),
	}
	ps := make(Policies, len(priorityOrder))
	for _, p := range priorityOrder {
		ps[p] = base
	}
	return ps
}

// For returns the lane's policy, falling back to DEFAULT.
func (ps Policies) For(p Priority) RetryPolicy {
	if pol, ok := ps[p]; ok {
		return pol
	}
	return ps[PriorityDefault]
}
