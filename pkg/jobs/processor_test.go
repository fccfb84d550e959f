package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agora/pkg/config"
	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

type memTenants struct {
	mu      sync.Mutex
	tenants map[string]*types.Tenant
}

func (m *memTenants) GetTenant(id string) (*types.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, errdefs.ErrTenantNotFound
	}
	return t, nil
}

func testProcessor(t *testing.T, maxAttempts int) (*Processor, *Queue, *memDLQStore, *memTenants) {
	t.Helper()
	q := NewQueue(nil)
	store := newMemDLQStore()
	tenants := &memTenants{tenants: map[string]*types.Tenant{
		"t1": {ID: "t1", Status: types.TenantStatusActive},
	}}
	policies := make(Policies, len(priorityOrder))
	for _, p := range priorityOrder {
		policies[p] = RetryPolicy{MaxAttempts: maxAttempts, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Second}
	}
	proc := NewProcessor(q, NewDeadLetter(store, nil), tenants, policies, config.QueueConfig{
		Workers:      2,
		MaxExecution: config.Duration(time.Second),
	})
	return proc, q, store, tenants
}

func enqueueJob(t *testing.T, q *Queue, tenantID, kind string, p Priority) *Envelope {
	t.Helper()
	env, raw, err := NewEnvelope(tenantID, kind, map[string]string{})
	require.NoError(t, err)
	require.True(t, q.Enqueue(&Item{ID: env.JobID, TenantID: tenantID, Kind: kind, Payload: raw, Priority: p}))
	return env
}

func dlqDepth(t *testing.T, store *memDLQStore) int {
	t.Helper()
	n, err := store.CountDLQEntries()
	require.NoError(t, err)
	return n
}

func TestProcessNextRunsHandlerUnderTenantBinding(t *testing.T) {
	proc, q, store, _ := testProcessor(t, 3)

	var gotTenant, gotActor string
	proc.Register("report.refresh", func(ctx context.Context, env *Envelope) error {
		b, err := tenant.Current(ctx)
		if err != nil {
			return err
		}
		gotTenant = b.Tenant.ID
		gotActor = b.Actor
		return nil
	})

	enqueueJob(t, q, "t1", "report.refresh", PriorityDefault)
	assert.True(t, proc.ProcessNext(context.Background()))

	assert.Equal(t, "t1", gotTenant)
	assert.Equal(t, "system:jobs", gotActor)
	assert.Equal(t, 0, q.TotalDepth())
	assert.Equal(t, 0, dlqDepth(t, store))
}

func TestProcessNextReturnsFalseOnEmptyQueue(t *testing.T) {
	proc, _, _, _ := testProcessor(t, 3)
	assert.False(t, proc.ProcessNext(context.Background()))
}

func TestRetryableFailureReenqueuesWithBackoff(t *testing.T) {
	proc, q, store, _ := testProcessor(t, 3)
	now := time.Now()
	proc.now = func() time.Time { return now }
	q.now = func() time.Time { return now }

	proc.Register("flaky.sync", func(ctx context.Context, env *Envelope) error {
		return errdefs.Transientf("provider 503")
	})

	enqueueJob(t, q, "t1", "flaky.sync", PriorityDefault)
	require.True(t, proc.ProcessNext(context.Background()))

	// back in its lane, held until the backoff passes
	assert.Equal(t, 1, q.Depth(PriorityDefault))
	_, ok := q.TryDequeue()
	assert.False(t, ok, "retried item must wait out its delay")

	q.now = func() time.Time { return now.Add(time.Minute) }
	item, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 1, item.Attempts)
	assert.Contains(t, item.LastError, "provider 503")
	assert.False(t, item.FirstFailedAt.IsZero())
	assert.Equal(t, 0, dlqDepth(t, store))
}

func TestJobDeadLettersAfterAttemptBudget(t *testing.T) {
	proc, q, store, _ := testProcessor(t, 2)
	now := time.Now()
	proc.now = func() time.Time { return now }
	q.now = func() time.Time { return now }

	calls := 0
	proc.Register("flaky.sync", func(ctx context.Context, env *Envelope) error {
		calls++
		return errdefs.Transientf("still down")
	})

	enqueueJob(t, q, "t1", "flaky.sync", PriorityDefault)

	require.True(t, proc.ProcessNext(context.Background()))
	q.now = func() time.Time { return now.Add(time.Hour) }
	require.True(t, proc.ProcessNext(context.Background()))

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, q.TotalDepth())
	require.Equal(t, 1, dlqDepth(t, store))

	entries, err := store.ListDLQEntries()
	require.NoError(t, err)
	assert.Equal(t, 2, entries[0].Attempts)
	assert.Contains(t, entries[0].LastError, "still down")
}

func TestNonRetryableFailureDeadLettersImmediately(t *testing.T) {
	proc, q, store, _ := testProcessor(t, 5)
	proc.Register("bad.request", func(ctx context.Context, env *Envelope) error {
		return errdefs.Validationf("malformed input")
	})

	enqueueJob(t, q, "t1", "bad.request", PriorityDefault)
	require.True(t, proc.ProcessNext(context.Background()))

	assert.Equal(t, 0, q.TotalDepth(), "validation failures never retry")
	assert.Equal(t, 1, dlqDepth(t, store))
}

func TestSuspendedTenantJobNeverRuns(t *testing.T) {
	proc, q, store, tenants := testProcessor(t, 5)
	tenants.tenants["t2"] = &types.Tenant{ID: "t2", Status: types.TenantStatusSuspended}

	called := false
	proc.Register("report.refresh", func(ctx context.Context, env *Envelope) error {
		called = true
		return nil
	})

	enqueueJob(t, q, "t2", "report.refresh", PriorityDefault)
	require.True(t, proc.ProcessNext(context.Background()))

	assert.False(t, called, "suspended tenant work must not execute")
	assert.Equal(t, 0, q.TotalDepth())
	assert.Equal(t, 1, dlqDepth(t, store))
}

func TestUnknownKindDeadLetters(t *testing.T) {
	proc, q, store, _ := testProcessor(t, 5)
	enqueueJob(t, q, "t1", "nobody.handles", PriorityDefault)
	require.True(t, proc.ProcessNext(context.Background()))
	assert.Equal(t, 1, dlqDepth(t, store))
}

func TestCorruptPayloadRejectedAtDispatch(t *testing.T) {
	proc, q, store, _ := testProcessor(t, 5)
	called := false
	proc.Register("report.refresh", func(ctx context.Context, env *Envelope) error {
		called = true
		return nil
	})

	require.True(t, q.Enqueue(&Item{
		ID: "j1", TenantID: "t1", Kind: "report.refresh",
		Payload:  []byte(`{"schema_version":99}`),
		Priority: PriorityDefault,
	}))
	require.True(t, proc.ProcessNext(context.Background()))

	assert.False(t, called)
	assert.Equal(t, 1, dlqDepth(t, store))
}

func TestExecutionBudgetOverrunIsAFailure(t *testing.T) {
	proc, q, store, _ := testProcessor(t, 1)
	proc.maxExec = 20 * time.Millisecond

	proc.Register("slow.sync", func(ctx context.Context, env *Envelope) error {
		<-ctx.Done()
		return ctx.Err()
	})

	enqueueJob(t, q, "t1", "slow.sync", PriorityDefault)
	require.True(t, proc.ProcessNext(context.Background()))

	assert.Equal(t, 1, dlqDepth(t, store), "overrun spent the single attempt")
}

func TestDispatchTickSkipsWhileDraining(t *testing.T) {
	proc, q, _, _ := testProcessor(t, 3)

	started := make(chan struct{})
	release := make(chan struct{})
	proc.Register("slow.sync", func(ctx context.Context, env *Envelope) error {
		close(started)
		<-release
		return nil
	})
	enqueueJob(t, q, "t1", "slow.sync", PriorityDefault)

	done := make(chan bool, 1)
	go func() { done <- proc.dispatchOnce(context.Background()) }()
	<-started

	assert.False(t, proc.dispatchOnce(context.Background()), "tick landing mid-drain must skip")

	close(release)
	assert.True(t, <-done)
	assert.True(t, proc.dispatchOnce(context.Background()), "next tick runs once the drain finished")
}

func TestRequeueFromDLQGetsFreshBudget(t *testing.T) {
	proc, q, store, _ := testProcessor(t, 1)
	proc.Register("flaky.sync", func(ctx context.Context, env *Envelope) error {
		return errdefs.Transientf("down")
	})

	env := enqueueJob(t, q, "t1", "flaky.sync", PriorityHigh)
	require.True(t, proc.ProcessNext(context.Background()))
	require.Equal(t, 1, dlqDepth(t, store))

	require.NoError(t, NewDeadLetter(store, nil).Requeue(env.JobID, q))

	item, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, env.JobID, item.ID)
	assert.Equal(t, PriorityHigh, item.Priority)
	assert.Equal(t, 0, item.Attempts)
	assert.Equal(t, 0, dlqDepth(t, store))
}
