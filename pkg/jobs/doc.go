/*
Package jobs implements the prioritized background work pipeline: a bounded
five-lane queue, a retrying processor, and a persistent dead letter queue.

# Lanes

Work enters one of five lanes, CRITICAL > HIGH > DEFAULT > LOW > BULK.
Dequeue is strictly preemptive: a BULK item never runs while anything
higher-priority is runnable, and within a lane order is FIFO. Each lane is
bounded; Enqueue on a full lane returns false and bumps
agora_jobs_enqueue_rejected_total rather than blocking a request handler.
Items carrying a future RunNotBefore are skipped in place, not removed, so
a delayed retry holds no slot hostage and steals no one's turn.

# Payloads

Payloads cross the queue as an immutable JSON envelope:

	{job_id, tenant_id, schema_version, kind, data}

The envelope is validated against an embedded JSON schema at enqueue and
again at dispatch, because the binary that enqueued an item is not always
the binary that drains it. Attempt counts and retry bookkeeping live on the
queue item, never inside the payload, so retries replay exactly the bytes
that first failed.

# Execution

The processor maps kind to a registered Handler, loads the owning tenant,
and runs the handler inside tenant.RunAs with a per-execution deadline.
Suspended and deleted tenants fail permanently. Retryable failures
re-enqueue with per-priority exponential backoff; validation and permanent
failures, and anything that exhausts its attempt budget, land in the dead
letter queue. DLQ entries persist through the store and wait for an
operator to requeue or purge them.
*/
package jobs
