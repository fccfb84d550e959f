package jobs

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agora/pkg/errdefs"
)

func queuedItem(id string, p Priority) *Item {
	return &Item{ID: id, TenantID: "t1", Kind: "report.refresh", Payload: []byte(`{}`), Priority: p}
}

func TestDequeueDrainsLanesInStrictOrder(t *testing.T) {
	q := NewQueue(nil)
	require.True(t, q.Enqueue(queuedItem("bulk", PriorityBulk)))
	require.True(t, q.Enqueue(queuedItem("low", PriorityLow)))
	require.True(t, q.Enqueue(queuedItem("crit", PriorityCritical)))
	require.True(t, q.Enqueue(queuedItem("def", PriorityDefault)))
	require.True(t, q.Enqueue(queuedItem("high", PriorityHigh)))

	var got []string
	for {
		item, ok := q.TryDequeue()
		if !ok {
			break
		}
		got = append(got, item.ID)
	}
	assert.Equal(t, []string{"crit", "high", "def", "low", "bulk"}, got)
}

func TestLateCriticalArrivalPreemptsQueuedBulkWork(t *testing.T) {
	q := NewQueue(nil)
	require.True(t, q.Enqueue(queuedItem("bulk1", PriorityBulk)))
	require.True(t, q.Enqueue(queuedItem("bulk2", PriorityBulk)))

	item, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "bulk1", item.ID)

	// critical work arrives while bulk is already waiting
	require.True(t, q.Enqueue(queuedItem("crit", PriorityCritical)))

	item, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "crit", item.ID, "critical must run before older bulk work")

	item, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "bulk2", item.ID)
}

func TestFIFOWithinLane(t *testing.T) {
	q := NewQueue(nil)
	for i := 0; i < 5; i++ {
		require.True(t, q.Enqueue(queuedItem(fmt.Sprintf("j%d", i), PriorityDefault)))
	}
	for i := 0; i < 5; i++ {
		item, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("j%d", i), item.ID)
	}
}

func TestEnqueueRejectsWhenLaneFull(t *testing.T) {
	q := NewQueue(map[string]int{"DEFAULT": 2})
	require.True(t, q.Enqueue(queuedItem("a", PriorityDefault)))
	require.True(t, q.Enqueue(queuedItem("b", PriorityDefault)))

	assert.False(t, q.Enqueue(queuedItem("c", PriorityDefault)))
	assert.Equal(t, 2, q.Depth(PriorityDefault))

	// other lanes keep their own bound
	assert.True(t, q.Enqueue(queuedItem("d", PriorityHigh)))
}

func TestDequeueSkipsDelayedItemsInPlace(t *testing.T) {
	now := time.Now()
	q := NewQueue(nil)
	q.now = func() time.Time { return now }

	delayed := queuedItem("delayed", PriorityDefault)
	delayed.RunNotBefore = now.Add(time.Minute)
	require.True(t, q.Enqueue(delayed))
	require.True(t, q.Enqueue(queuedItem("runnable", PriorityDefault)))

	item, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "runnable", item.ID, "delayed item must be skipped, not dequeued")

	// the delayed item kept its slot
	assert.Equal(t, 1, q.Depth(PriorityDefault))
	_, ok = q.TryDequeue()
	assert.False(t, ok)

	q.now = func() time.Time { return now.Add(2 * time.Minute) }
	item, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "delayed", item.ID)
}

func TestDelayedHighPriorityDoesNotBlockLowerLanes(t *testing.T) {
	now := time.Now()
	q := NewQueue(nil)
	q.now = func() time.Time { return now }

	held := queuedItem("held", PriorityCritical)
	held.RunNotBefore = now.Add(time.Hour)
	require.True(t, q.Enqueue(held))
	require.True(t, q.Enqueue(queuedItem("bulk", PriorityBulk)))

	item, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "bulk", item.ID, "a sleeping critical item must not starve lower lanes")
}

func TestDepthCounters(t *testing.T) {
	q := NewQueue(nil)
	require.True(t, q.Enqueue(queuedItem("a", PriorityCritical)))
	require.True(t, q.Enqueue(queuedItem("b", PriorityBulk)))
	require.True(t, q.Enqueue(queuedItem("c", PriorityBulk)))

	assert.Equal(t, 3, q.TotalDepth())
	depths := q.Depths()
	assert.Equal(t, 1, depths["CRITICAL"])
	assert.Equal(t, 2, depths["BULK"])
	assert.Equal(t, 0, depths["HIGH"])
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("HIGH")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)

	p, err = ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityDefault, p)

	p, err = ParsePriority("URGENT")
	assert.ErrorIs(t, err, errdefs.ErrValidation)
	assert.Equal(t, PriorityDefault, p)
}
