package jobs

import (
	"github.com/cuemby/agora/pkg/errdefs"
)

// Submit builds a validated envelope for kind and enqueues it at priority.
// It returns the job id, or an error when the payload is rejected or the
// lane has no room.
func Submit(q *Queue, tenantID, kind string, data any, priority Priority) (string, error) {
	env, raw, err := NewEnvelope(tenantID, kind, data)
	if err != nil {
		return "", err
	}
	item := &Item{
		ID:       env.JobID,
		TenantID: tenantID,
		Kind:     kind,
		Payload:  raw,
		Priority: priority,
	}
	if !q.Enqueue(item) {
		return "", errdefs.Conflictf("lane %s full, %s rejected", priority, kind)
	}
	return env.JobID, nil
}
