package manager

import (
	"context"
	"time"

	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/types"
)

// Collector periodically samples platform-level gauges that no single
// request path owns: tenant counts, stored media bytes, report job and
// payout backlogs, and the reporting store's reachability.
type Collector struct {
	manager *Manager
	stopCh  chan struct{}
}

// NewCollector creates a collector over the manager's stores.
func NewCollector(mgr *Manager) *Collector {
	return &Collector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting on a fixed cadence.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
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

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectTenantMetrics()
	c.collectReportJobMetrics()
	c.collectPayoutMetrics()
	c.collectReportingHealth()
}

func (c *Collector) collectTenantMetrics() {
	tenants, err := c.manager.store.ListTenants()
	if err != nil {
		return
	}

	statusCounts := make(map[string]int)
	var mediaBytes int64
	for _, t := range tenants {
		statusCounts[string(t.Status)]++
		mediaBytes += t.Quotas.MediaUsedBytes
	}

	for status, count := range statusCounts {
		metrics.TenantsByStatus.WithLabelValues(status).Set(float64(count))
	}
	metrics.MediaBytesStored.Set(float64(mediaBytes))
}

func (c *Collector) collectReportJobMetrics() {
	active, err := c.manager.store.ListActiveReportJobs()
	if err != nil {
		return
	}

	statusCounts := make(map[types.ReportJobStatus]int)
	for _, j := range active {
		statusCounts[j.Status]++
	}
	for _, status := range []types.ReportJobStatus{types.ReportJobStatusPending, types.ReportJobStatusRunning} {
		metrics.ReportJobsActive.WithLabelValues(string(status)).Set(float64(statusCounts[status]))
	}
}

func (c *Collector) collectPayoutMetrics() {
	tenants, err := c.manager.store.ListTenants()
	if err != nil {
		return
	}

	pending := 0
	for _, t := range tenants {
		batches, err := c.manager.store.ListPayoutBatches(t.ID)
		if err != nil {
			continue
		}
		for _, b := range batches {
			if b.Status == types.PayoutBatchStatusPending {
				pending++
			}
		}
	}
	metrics.PayoutsPending.Set(float64(pending))
}

func (c *Collector) collectReportingHealth() {
	db := c.manager.reportingDB
	if db == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		metrics.UpdateComponent("reporting", false, err.Error())
		return
	}
	metrics.UpdateComponent("reporting", true, "reachable")
}
