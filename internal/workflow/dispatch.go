package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"lectern/internal/library"
	"lectern/internal/logging"
	"lectern/internal/pipeline"
	"lectern/internal/queue"
	"lectern/internal/services"
)

// DispatchNext starts the head job unless the queue is paused, a worker is
// still running, or nothing is pending. It reports whether a job started.
func (o *Orchestrator) DispatchNext() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dispatchLocked()
}

func (o *Orchestrator) dispatchLocked() bool {
	if o.closed || o.paused || o.active != nil || o.running > 0 || o.pending.Len() == 0 {
		return false
	}
	head := o.pending.Head()
	head.Status = queue.StatusProcessing
	head.Attempt = uuid.NewString()
	head.StartedAt = time.Now().UTC()
	head.FinishedAt = time.Time{}
	head.ErrorMessage = ""
	o.active = head
	o.progress = queue.Progress{JobID: head.ID, Stage: "starting", Total: o.stageTotal()}

	ctx, cancel := context.WithCancel(o.baseCtx)
	ctx = services.WithJobID(services.WithAttempt(ctx, head.Attempt), head.ID)
	o.cancel = cancel
	o.running++
	o.wg.Add(1)

	o.logger.Info("job dispatched",
		logging.String(logging.FieldJobID, head.ID),
		logging.String(logging.FieldAttempt, head.Attempt),
		logging.String("source", head.SourcePath),
		logging.Strings("missing_steps", head.MissingSteps),
		logging.String(logging.FieldEventType, "job_started"),
	)
	o.publishLocked(EventJobStarted, head)
	go o.execute(ctx, cancel, head.Clone())
	return true
}

func (o *Orchestrator) execute(ctx context.Context, cancel context.CancelFunc, job queue.Job) {
	defer o.wg.Done()
	defer cancel()

	result, err := o.runner.Run(ctx, job.SourcePath, o.outputDir, func(stageName string, index, total int, percent float64) {
		o.updateProgress(job.ID, job.Attempt, stageName, index, total, percent)
	})
	switch {
	case err == nil:
		o.complete(job, result)
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		o.cancelled(job)
	default:
		o.fail(job, err)
	}
}

func (o *Orchestrator) isCurrentLocked(id, attempt string) bool {
	return o.active != nil && o.active.ID == id && o.active.Attempt == attempt
}

func (o *Orchestrator) updateProgress(id, attempt, stageName string, index, total int, percent float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.isCurrentLocked(id, attempt) {
		return
	}
	o.progress = queue.Progress{JobID: id, Stage: stageName, Index: index, Total: total, Percent: percent}
	o.publishLocked(EventJobProgress, o.active)
}

// finishLocked moves the active job out of pending into the recent list.
// It returns false when the callback belongs to a superseded attempt.
func (o *Orchestrator) finishLocked(job queue.Job, status queue.Status, cause string) (queue.Job, bool) {
	if !o.isCurrentLocked(job.ID, job.Attempt) {
		o.logger.Debug("stale completion dropped",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldAttempt, job.Attempt),
		)
		return queue.Job{}, false
	}
	active := o.active
	o.active = nil
	o.cancel = nil
	o.progress = queue.Progress{}
	if head := o.pending.Head(); head == nil || head.ID != job.ID {
		logging.WarnWithContext(o.logger, "finished job was not at the queue head", "queue_head_mismatch",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldImpact, "queue entry left in place"),
		)
	} else {
		o.pending.Remove(job.ID)
	}
	active.Status = status
	active.ErrorMessage = cause
	active.FinishedAt = time.Now().UTC()
	if status != queue.StatusFailed {
		active.MissingSteps = nil
	}
	done := active.Clone()
	if status == queue.StatusFailed {
		o.holdFailedLocked(done)
	}
	o.pushRecentLocked(done)
	return done, true
}

// holdFailedLocked keeps job out of scans, evicting the oldest failure once
// failedLimit is reached.
func (o *Orchestrator) holdFailedLocked(job queue.Job) {
	o.failed[job.ID] = job
	for len(o.failed) > o.failedLimit {
		var oldest string
		var at time.Time
		for id, held := range o.failed {
			if id == job.ID {
				continue
			}
			if oldest == "" || held.FinishedAt.Before(at) {
				oldest, at = id, held.FinishedAt
			}
		}
		delete(o.failed, oldest)
		o.logger.Info("failed paper released to scans",
			logging.String(logging.FieldJobID, oldest),
			logging.String(logging.FieldEventType, "failed_released"),
		)
	}
}

func (o *Orchestrator) pushRecentLocked(job queue.Job) {
	o.recent = append([]queue.Job{job}, o.recent...)
	if len(o.recent) > o.recentLimit {
		o.recent = o.recent[:o.recentLimit]
	}
}

func (o *Orchestrator) complete(job queue.Job, result pipeline.Result) {
	o.mu.Lock()
	done, ok := o.finishLocked(job, queue.StatusCompleted, "")
	if ok {
		o.publishLocked(EventJobCompleted, &done)
	}
	o.mu.Unlock()

	if ok {
		ctx := services.WithJobID(context.Background(), job.ID)
		logger := logging.WithContext(ctx, o.logger)
		logger.Info("job completed",
			logging.String(logging.FieldEventType, "job_completed"),
			logging.Strings("artifacts", result.Produced),
			logging.Duration("duration", done.FinishedAt.Sub(done.StartedAt)),
		)
		if err := o.library.RefreshIndex(ctx); err != nil {
			logging.WarnWithContext(logger, "library index refresh failed", "index_refresh_failed",
				append(logging.ErrorAttrs(err), logging.String(logging.FieldImpact, "paper list may be stale until the next refresh"))...)
		}
		vectors := library.PathsFor(o.outputDir, job.ID).Vectors
		if err := o.indexer.Register(ctx, job.ID, vectors); err != nil {
			logging.WarnWithContext(logger, "retrieval registration failed", "retrieval_register_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "paper not available to retrieval"),
			)
		}
		o.record(ctx, done)
	}
	o.release()
}

func (o *Orchestrator) fail(job queue.Job, err error) {
	cause := err.Error()
	o.mu.Lock()
	done, ok := o.finishLocked(job, queue.StatusFailed, cause)
	if ok {
		o.publishLocked(EventJobFailed, &done)
	}
	o.mu.Unlock()

	if ok {
		ctx := services.WithJobID(context.Background(), job.ID)
		logging.ErrorWithContext(logging.WithContext(ctx, o.logger), "job failed", "job_failed",
			append(logging.ErrorAttrs(err), logging.String(logging.FieldAttempt, job.Attempt))...)
		o.record(ctx, done)
	}
	o.release()
}

func (o *Orchestrator) cancelled(job queue.Job) {
	o.logger.Info("attempt cancelled",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldAttempt, job.Attempt),
		logging.String(logging.FieldEventType, "job_cancelled"),
	)
	o.release()
}

// release marks the worker idle and dispatches the next job.
func (o *Orchestrator) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running--
	o.dispatchLocked()
}

func (o *Orchestrator) record(ctx context.Context, job queue.Job) {
	if o.journal == nil {
		return
	}
	if _, err := o.journal.Record(ctx, job); err != nil {
		logging.WarnWithContext(o.logger, "outcome not journaled", "journal_write_failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "history missing this attempt"),
		)
	}
}

// Pause stops dispatching and cancels the running attempt. The cancelled job
// returns to pending at the head of the queue and restarts from scratch.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.paused {
		return
	}
	o.paused = true
	if o.active != nil {
		o.requeueActiveLocked()
	}
	o.logger.Info("queue paused", logging.String(logging.FieldEventType, "queue_paused"))
	o.publishLocked(EventQueuePaused, nil)
}

func (o *Orchestrator) requeueActiveLocked() {
	job := o.active
	if o.cancel != nil {
		o.cancel()
	}
	o.cancel = nil
	o.active = nil
	o.progress = queue.Progress{}
	job.Status = queue.StatusPending
	job.Attempt = ""
	job.StartedAt = time.Time{}
	o.publishLocked(EventJobCancelled, job)
}

// Resume clears the paused flag and dispatches if the worker is idle.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.paused {
		return
	}
	o.paused = false
	o.logger.Info("queue resumed", logging.String(logging.FieldEventType, "queue_resumed"))
	o.publishLocked(EventQueueResumed, nil)
	o.dispatchLocked()
}
