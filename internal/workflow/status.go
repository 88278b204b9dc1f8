package workflow

import (
	"context"
	"slices"

	"lectern/internal/queue"
	"lectern/internal/stage"
)

// StatusSummary is a point-in-time view of the orchestrator.
type StatusSummary struct {
	Paused      bool           `json:"paused"`
	Active      *queue.Job     `json:"active,omitempty"`
	Progress    queue.Progress `json:"progress"`
	Pending     int            `json:"pending"`
	Recent      int            `json:"recent"`
	Failed      int            `json:"failed"`
	StageHealth []stage.Health `json:"stage_health,omitempty"`
}

// Status returns the queue summary and, when the runner supports it, stage
// readiness.
func (o *Orchestrator) Status(ctx context.Context) StatusSummary {
	o.mu.Lock()
	summary := StatusSummary{
		Paused:   o.paused,
		Progress: o.progress,
		Pending:  o.pending.Len(),
		Recent:   len(o.recent),
		Failed:   len(o.failed),
	}
	if o.active != nil {
		cp := o.active.Clone()
		summary.Active = &cp
	}
	o.mu.Unlock()

	if checker, ok := o.runner.(healthChecker); ok {
		summary.StageHealth = checker.HealthCheck(ctx)
	}
	return summary
}

// ProgressSnapshot returns progress for the active job, or the zero value.
func (o *Orchestrator) ProgressSnapshot() queue.Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// Paused reports whether dispatch is suspended.
func (o *Orchestrator) Paused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

// ListQueue returns the pending jobs head first, followed by recent terminal
// jobs newest first.
func (o *Orchestrator) ListQueue() []queue.Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.pending.Snapshot()
	for _, job := range o.recent {
		out = append(out, job.Clone())
	}
	return out
}

// Pending returns only the waiting and running jobs.
func (o *Orchestrator) Pending() []queue.Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending.Snapshot()
}

// Recent returns terminal jobs newest first.
func (o *Orchestrator) Recent() []queue.Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]queue.Job, 0, len(o.recent))
	for _, job := range o.recent {
		out = append(out, job.Clone())
	}
	return out
}

// FailedIDs lists ids held back from scans until retried.
func (o *Orchestrator) FailedIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.failed))
	for id := range o.failed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
