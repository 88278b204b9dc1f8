package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"lectern/internal/library"
	"lectern/internal/logging"
	"lectern/internal/queue"
	"lectern/internal/services"
)

// ScanResult summarizes one reconciliation pass.
type ScanResult struct {
	Queued     []string `json:"queued"`
	Incomplete []string `json:"incomplete"`
	Skipped    int      `json:"skipped"`
}

type scanCandidate struct {
	id      string
	path    string
	missing []string
}

// EnqueueFromScan reconciles the PDFs in dir against the library and the
// queue. Files whose id already has a queue entry are left alone, as are
// papers that failed until they are retried or uploaded again.
func (o *Orchestrator) EnqueueFromScan(ctx context.Context, dir string) (ScanResult, error) {
	var result ScanResult
	entries, err := os.ReadDir(dir)
	if err != nil {
		return result, services.Wrap(services.ErrNotFound, "workflow", "scan", fmt.Sprintf("Cannot read %s", dir), err)
	}

	o.mu.Lock()
	skip := make(map[string]struct{}, o.pending.Len()+len(o.failed))
	for _, job := range o.pending.Snapshot() {
		skip[job.ID] = struct{}{}
	}
	for id := range o.failed {
		skip[id] = struct{}{}
	}
	o.mu.Unlock()

	var candidates []scanCandidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		id := library.ScanID(entry.Name())
		if !library.ValidID(id) {
			result.Skipped++
			continue
		}
		if _, ok := skip[id]; ok {
			result.Skipped++
			continue
		}
		missing, err := o.missingFor(ctx, id)
		if err != nil {
			logging.WarnWithContext(o.logger, "library lookup failed during scan", "scan_lookup_failed",
				logging.String(logging.FieldJobID, id),
				logging.Error(err),
				logging.String(logging.FieldImpact, "paper not queued this pass"),
			)
			result.Skipped++
			continue
		}
		if len(missing) == 0 {
			result.Skipped++
			continue
		}
		candidates = append(candidates, scanCandidate{id: id, path: filepath.Join(dir, entry.Name()), missing: missing})
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, c := range candidates {
		if o.pending.Contains(c.id) {
			result.Skipped++
			continue
		}
		if _, failed := o.failed[c.id]; failed {
			result.Skipped++
			continue
		}
		job := &queue.Job{ID: c.id, SourcePath: c.path, Status: queue.StatusPending, MissingSteps: c.missing}
		if slices.Contains(c.missing, queue.ArtifactAll) {
			result.Queued = append(result.Queued, c.id)
		} else {
			job.Status = queue.StatusIncomplete
			result.Incomplete = append(result.Incomplete, c.id)
		}
		o.pending.Append(job)
		o.publishLocked(EventJobQueued, job)
	}
	o.pending.Sort(o.active != nil)
	if len(candidates) > 0 {
		o.logger.Info("scan reconciled",
			logging.String(logging.FieldEventType, "scan_complete"),
			logging.Int("queued", len(result.Queued)),
			logging.Int("incomplete", len(result.Incomplete)),
			logging.Int("pending", o.pending.Len()),
		)
	}
	o.dispatchLocked()
	return result, nil
}

func (o *Orchestrator) missingFor(ctx context.Context, id string) ([]string, error) {
	known, err := o.library.Known(ctx, id)
	if err != nil {
		return nil, err
	}
	if !known {
		return queue.NothingProduced(), nil
	}
	return o.library.MissingArtifacts(ctx, id)
}

// EnqueueUpload queues id at the front with a priority above every queued
// job. A running job with the same id keeps running and only has its entry
// updated.
func (o *Orchestrator) EnqueueUpload(id, path string) (queue.Job, error) {
	if !library.ValidID(id) {
		return queue.Job{}, services.Wrap(services.ErrValidation, "workflow", "upload", fmt.Sprintf("invalid paper id %q", id), nil)
	}
	if strings.TrimSpace(path) == "" {
		return queue.Job{}, services.Wrap(services.ErrValidation, "workflow", "upload", "source path required", nil)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return queue.Job{}, services.Wrap(services.ErrValidation, "workflow", "upload", "orchestrator closed", nil)
	}
	priority := o.pending.MaxPriority() + 1
	delete(o.failed, id)

	if o.active != nil && o.active.ID == id {
		o.active.SourcePath = path
		o.active.Priority = priority
		return o.active.Clone(), nil
	}

	job := o.pending.Get(id)
	if job == nil {
		job = &queue.Job{ID: id, MissingSteps: queue.NothingProduced()}
	}
	job.SourcePath = path
	job.Priority = priority
	job.Status = queue.StatusPending
	job.ErrorMessage = ""
	job = o.pending.PushFront(job, o.active != nil)

	o.logger.Info("upload queued",
		logging.String(logging.FieldJobID, id),
		logging.Int("priority", priority),
		logging.String(logging.FieldEventType, "job_queued"),
	)
	o.publishLocked(EventJobQueued, job)
	o.dispatchLocked()
	return job.Clone(), nil
}

// Remove drops a waiting job. The running job cannot be removed.
func (o *Orchestrator) Remove(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil && o.active.ID == id {
		return services.Wrap(services.ErrValidation, "workflow", "remove", fmt.Sprintf("%s is running; pause first", id), nil)
	}
	job := o.pending.Remove(id)
	if job == nil {
		return services.Wrap(services.ErrNotFound, "workflow", "remove", fmt.Sprintf("%s is not queued", id), nil)
	}
	o.publishLocked(EventJobRemoved, job)
	return nil
}

// RetryFailed queues a previously failed job again.
func (o *Orchestrator) RetryFailed(id string) (queue.Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	held, ok := o.failed[id]
	if !ok {
		return queue.Job{}, services.Wrap(services.ErrNotFound, "workflow", "retry", fmt.Sprintf("%s has not failed", id), nil)
	}
	source := held.SourcePath
	delete(o.failed, id)
	if existing := o.pending.Get(id); existing != nil {
		return existing.Clone(), nil
	}
	job := &queue.Job{
		ID:           id,
		SourcePath:   source,
		Status:       queue.StatusPending,
		MissingSteps: queue.NothingProduced(),
		EnqueuedAt:   time.Now().UTC(),
	}
	o.pending.Append(job)
	o.pending.Sort(o.active != nil)
	o.publishLocked(EventJobQueued, job)
	o.dispatchLocked()
	return job.Clone(), nil
}
