/*
Package reconciler converges persisted state that request handlers and job
workers can leave dangling when a process dies mid-flight.

Every write path in Agora is designed so a crash leaves behind rows that are
safe but stale: an inventory hold whose checkout never resolved it, a report
job marked running whose worker is gone, idempotency records and dedupe
markers past their retention. The reconciler sweeps these on a fixed
interval and repairs each one the same way the owning code path would have.

# Repairs

Each pass performs three independent, idempotent repairs:

  - Expired inventory holds are released back to the available pool. The
    release runs under the owning tenant's binding so the audit trail and
    events look the same as a saga-driven release.
  - Report jobs stuck in running past the worker execution ceiling are
    marked failed. The queue item died with the worker, so without this the
    row would read running forever.
  - Idempotency records, impersonation tokens, and webhook dedupe markers
    past their retention windows are purged.

Repairs never abort the pass: an error in one is logged and the next tick
retries whatever is still dangling.

# Usage

	recon := reconciler.NewReconciler(mgr)
	recon.Start()
	defer recon.Stop()

Stop blocks until any in-flight pass finishes, so it is safe to tear down
the manager afterwards.
*/
package reconciler
