package metrics

import (
	"time"
)

// Sources supplies the gauge readings the collector samples. Fields are
// functions rather than concrete types so domain packages can bump counters
// from this package without an import cycle. Nil fields are skipped.
type Sources struct {
	QueueDepths    func() map[string]int // priority -> waiting jobs
	DLQDepth       func() int
	ReportJobs     func() map[string]int // status -> count
	PendingPayouts func() int
	MediaBytes     func() int64
}

// Collector periodically samples gauge metrics from the running system.
type Collector struct {
	sources  Sources
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector. A zero interval defaults to 15s.
func NewCollector(sources Sources, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		sources:  sources,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.sources.QueueDepths != nil {
		for priority, depth := range c.sources.QueueDepths() {
			QueueDepth.WithLabelValues(priority).Set(float64(depth))
		}
	}

	if c.sources.DLQDepth != nil {
		DLQDepth.Set(float64(c.sources.DLQDepth()))
	}

	if c.sources.ReportJobs != nil {
		for status, count := range c.sources.ReportJobs() {
			ReportJobsActive.WithLabelValues(status).Set(float64(count))
		}
	}

	if c.sources.PendingPayouts != nil {
		PayoutsPending.Set(float64(c.sources.PendingPayouts()))
	}

	if c.sources.MediaBytes != nil {
		MediaBytesStored.Set(float64(c.sources.MediaBytes()))
	}
}
