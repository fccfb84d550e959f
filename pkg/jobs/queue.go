package jobs

import (
	"sync"
	"time"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/metrics"
)

// Priority orders the queue's lanes. Lower value dequeues first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityDefault
	PriorityLow
	PriorityBulk
)

// priorityOrder is the strict dequeue order.
var priorityOrder = []Priority{PriorityCritical, PriorityHigh, PriorityDefault, PriorityLow, PriorityBulk}

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityDefault:
		return "DEFAULT"
	case PriorityLow:
		return "LOW"
	case PriorityBulk:
		return "BULK"
	default:
		return "UNKNOWN"
	}
}

// ParsePriority converts a lane name as stored in config or the DLQ.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "CRITICAL":
		return PriorityCritical, nil
	case "HIGH":
		return PriorityHigh, nil
	case "DEFAULT", "":
		return PriorityDefault, nil
	case "LOW":
		return PriorityLow, nil
	case "BULK":
		return PriorityBulk, nil
	default:
		return PriorityDefault, errdefs.Validationf("unknown priority %q", s)
	}
}

// Item is one queued job execution. Payload is the immutable envelope bytes;
// bookkeeping that changes between attempts (Attempts, RunNotBefore,
// LastError) lives here, never inside the payload.
type Item struct {
	ID            string
	TenantID      string
	Kind          string
	Payload       []byte
	Priority      Priority
	Attempts      int
	RunNotBefore  time.Time
	EnqueuedAt    time.Time
	FirstFailedAt time.Time
	LastError     string
}

// Queue is a bounded in-memory priority queue with five lanes. Dequeue is
// strict: a CRITICAL item always leaves before anything in HIGH, and so on
// down. Within a lane order is FIFO among items whose RunNotBefore has
// passed; delayed items are skipped in place, not reordered.
type Queue struct {
	mu     sync.Mutex
	lanes  map[Priority][]*Item
	bounds map[Priority]int
	now    func() time.Time
}

// DefaultLaneBound applies to lanes missing from the config map.
const DefaultLaneBound = 1024

// NewQueue builds a queue with per-lane capacity bounds keyed by lane name
// ("CRITICAL".."BULK"). Missing lanes get DefaultLaneBound.
func NewQueue(bounds map[string]int) *Queue {
	q := &Queue{
		lanes:  make(map[Priority][]*Item, len(priorityOrder)),
		bounds: make(map[Priority]int, len(priorityOrder)),
		now:    time.Now,
	}
	for _, p := range priorityOrder {
		q.bounds[p] = DefaultLaneBound
	}
	for name, n := range bounds {
		p, err := ParsePriority(name)
		if err != nil || n <= 0 {
			continue
		}
		q.bounds[p] = n
	}
	return q
}

// Enqueue appends an item to its lane. Returns false when the lane is full;
// the item is dropped and the rejection counted.
func (q *Queue) Enqueue(item *Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	lane := q.lanes[item.Priority]
	if len(lane) >= q.bounds[item.Priority] {
		metrics.JobsEnqueueRejected.WithLabelValues(item.Priority.String()).Inc()
		return false
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = q.now().UTC()
	}
	q.lanes[item.Priority] = append(lane, item)
	metrics.JobsEnqueued.WithLabelValues(item.Kind, item.Priority.String()).Inc()
	return true
}

// TryDequeue removes and returns the oldest runnable item of the highest
// non-empty lane. Items whose RunNotBefore is in the future are skipped but
// stay queued. Returns ok=false when nothing is runnable.
func (q *Queue) TryDequeue() (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for _, p := range priorityOrder {
		lane := q.lanes[p]
		for i, item := range lane {
			if !item.RunNotBefore.IsZero() && item.RunNotBefore.After(now) {
				continue
			}
			q.lanes[p] = append(lane[:i], lane[i+1:]...)
			return item, true
		}
	}
	return nil, false
}

// Depth returns the number of items queued in one lane, runnable or not.
func (q *Queue) Depth(p Priority) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes[p])
}

// TotalDepth returns the number of items queued across all lanes.
func (q *Queue) TotalDepth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, lane := range q.lanes {
		total += len(lane)
	}
	return total
}

// Depths snapshots per-lane depth by lane name, for the metrics collector.
func (q *Queue) Depths() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]int, len(priorityOrder))
	for _, p := range priorityOrder {
		out[p.String()] = len(q.lanes[p])
	}
	return out
}
