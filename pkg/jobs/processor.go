package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/agora/pkg/config"
	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

// Handler executes one job. The envelope's tenant is already bound on ctx,
// so handlers call guarded services the same way request handlers do.
type Handler func(ctx context.Context, env *Envelope) error

// TenantLoader resolves the tenant a job runs as.
type TenantLoader interface {
	GetTenant(id string) (*types.Tenant, error)
}

// Processor pulls items off the queue, binds the owning tenant onto the
// execution context, and dispatches to the handler registered for the
// payload kind. Failures either re-enqueue with backoff or dead-letter.
type Processor struct {
	queue    *Queue
	dlq      *DeadLetter
	tenants  TenantLoader
	policies Policies
	maxExec  time.Duration
	workers  int

	mu       sync.RWMutex
	handlers map[string]Handler

	inFlight atomic.Bool
	logger   zerolog.Logger
	now      func() time.Time
}

// NewProcessor wires a processor over the queue and dead letter queue.
func NewProcessor(q *Queue, dlq *DeadLetter, tenants TenantLoader, policies Policies, cfg config.QueueConfig) *Processor {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	maxExec := cfg.MaxExecution.Std()
	if maxExec <= 0 {
		maxExec = 5 * time.Minute
	}
	return &Processor{
		queue:    q,
		dlq:      dlq,
		tenants:  tenants,
		policies: policies,
		maxExec:  maxExec,
		workers:  workers,
		handlers: make(map[string]Handler),
		logger:   log.WithComponent("jobs.processor"),
		now:      time.Now,
	}
}

// Register installs the handler for a payload kind. Later registrations
// replace earlier ones; registration happens at startup, before the loop.
func (p *Processor) Register(kind string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = h
}

func (p *Processor) handler(kind string) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[kind]
	return h, ok
}

// ProcessNext executes at most one runnable job. It returns false when the
// queue has nothing runnable, which lets drain loops terminate.
func (p *Processor) ProcessNext(ctx context.Context) bool {
	item, ok := p.queue.TryDequeue()
	if !ok {
		return false
	}
	p.execute(ctx, item)
	return true
}

func (p *Processor) execute(ctx context.Context, item *Item) {
	logger := p.logger.With().Str("job_id", item.ID).Str("kind", item.Kind).Str("tenant_id", item.TenantID).Logger()

	// Payloads are validated at enqueue, but the binary that enqueued may
	// not be the binary dispatching. Reject again rather than handing a
	// handler bytes it cannot trust.
	env, err := ValidatePayload(item.Payload)
	if err != nil {
		p.fail(item, fmt.Errorf("payload rejected at dispatch: %w", err), logger)
		return
	}

	h, ok := p.handler(item.Kind)
	if !ok {
		p.fail(item, errdefs.Permanentf("no handler registered for kind %s", item.Kind), logger)
		return
	}

	t, err := p.tenants.GetTenant(item.TenantID)
	if err != nil {
		p.fail(item, fmt.Errorf("load tenant %s: %w", item.TenantID, err), logger)
		return
	}
	if t.Status != types.TenantStatusActive {
		// Suspended and deleted tenants never run work; retrying would
		// only spin until the attempt budget drains.
		p.fail(item, errdefs.Permanentf("tenant %s is %s", t.ID, t.Status), logger)
		return
	}

	metrics.JobsStarted.WithLabelValues(item.Kind).Inc()
	start := p.now()

	runCtx, cancel := context.WithTimeout(ctx, p.maxExec)
	err = tenant.RunAs(runCtx, &tenant.Binding{Tenant: t, Actor: "system:jobs"}, func(ctx context.Context) error {
		return h(ctx, env)
	})
	cancel()

	metrics.JobDuration.WithLabelValues(item.Kind).Observe(p.now().Sub(start).Seconds())
	if err != nil {
		metrics.JobsFailed.WithLabelValues(item.Kind).Inc()
		p.fail(item, err, logger)
		return
	}
	metrics.JobsSucceeded.WithLabelValues(item.Kind).Inc()
	logger.Debug().Dur("took", p.now().Sub(start)).Msg("job completed")
}

// fail routes a failed item: retryable errors re-enqueue with backoff until
// the lane's attempt budget is spent, everything else dead-letters.
func (p *Processor) fail(item *Item, cause error, logger zerolog.Logger) {
	item.Attempts++
	item.LastError = cause.Error()
	if item.FirstFailedAt.IsZero() {
		item.FirstFailedAt = p.now().UTC()
	}

	policy := p.policies.For(item.Priority)
	if !errdefs.Retryable(cause) || item.Attempts >= policy.MaxAttempts {
		if err := p.dlq.Push(item, cause); err != nil {
			logger.Error().Err(err).Msg("dead-letter push failed, job lost")
		}
		return
	}

	delay := policy.Delay(item.Attempts)
	item.RunNotBefore = p.now().Add(delay)
	metrics.JobsRetried.WithLabelValues(item.Kind).Inc()
	logger.Warn().Err(cause).Int("attempt", item.Attempts).Dur("retry_in", delay).Msg("job failed, will retry")
	if !p.queue.Enqueue(item) {
		// Lane filled up while the job was executing. Parking beats dropping.
		if err := p.dlq.Push(item, fmt.Errorf("retry rejected, lane %s full: %w", item.Priority, cause)); err != nil {
			logger.Error().Err(err).Msg("dead-letter push failed, job lost")
		}
	}
}

// DispatchLoop drains the queue on a fixed cadence until ctx is cancelled.
// Each tick starts a drain only if the previous one has finished; a tick
// that lands mid-drain is skipped rather than stacked.
func (p *Processor) DispatchLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	p.logger.Info().Dur("interval", interval).Int("workers", p.workers).Msg("dispatch loop started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("dispatch loop stopped")
			return
		case <-ticker.C:
			p.dispatchOnce(ctx)
		}
	}
}

// dispatchOnce runs one drain pass, returning false if a previous pass was
// still in flight.
func (p *Processor) dispatchOnce(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug().Msg("previous dispatch still running, tick skipped")
		return false
	}
	defer p.inFlight.Store(false)
	p.drain(ctx)
	p.reportDepths()
	return true
}

// drain runs the worker pool until the queue has no runnable items.
func (p *Processor) drain(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if !p.ProcessNext(ctx) {
					return
				}
			}
		}()
	}
	wg.Wait()
}

func (p *Processor) reportDepths() {
	for priority, depth := range p.queue.Depths() {
		metrics.QueueDepth.WithLabelValues(priority).Set(float64(depth))
	}
	if n, err := p.dlq.Depth(); err == nil {
		metrics.DLQDepth.Set(float64(n))
	}
}
