package api

import (
	"time"

	"lectern/internal/library"
	"lectern/internal/logging"
	"lectern/internal/matcher"
	"lectern/internal/queue"
	"lectern/internal/stage"
	"lectern/internal/workflow"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromJob converts a queue job to its API representation.
func FromJob(job queue.Job) Job {
	steps := job.MissingSteps
	if steps == nil {
		steps = []string{}
	}
	return Job{
		ID:           job.ID,
		SourcePath:   job.SourcePath,
		Status:       string(job.Status),
		MissingSteps: steps,
		Priority:     job.Priority,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		EnqueuedAt:   formatTime(job.EnqueuedAt),
		StartedAt:    formatTime(job.StartedAt),
		FinishedAt:   formatTime(job.FinishedAt),
	}
}

// FromJobs converts a slice of queue jobs into API DTOs.
func FromJobs(jobs []queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromProgress converts orchestrator progress.
func FromProgress(p queue.Progress) Progress {
	return Progress{
		JobID:   p.JobID,
		Stage:   p.Stage,
		Index:   p.Index,
		Total:   p.Total,
		Percent: p.Percent,
	}
}

// FromStageHealth keeps the runner's stage order.
func FromStageHealth(records []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(records))
	for _, h := range records {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromStatusSummary converts workflow.StatusSummary to WorkflowStatus.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Paused:      summary.Paused,
		Progress:    FromProgress(summary.Progress),
		Pending:     summary.Pending,
		Recent:      summary.Recent,
		Failed:      summary.Failed,
		StageHealth: FromStageHealth(summary.StageHealth),
	}
	if summary.Active != nil {
		active := FromJob(*summary.Active)
		status.Active = &active
	}
	return status
}

// FromScanResult converts a scan report.
func FromScanResult(result workflow.ScanResult) ScanResponse {
	resp := ScanResponse{Queued: result.Queued, Incomplete: result.Incomplete, Skipped: result.Skipped}
	if resp.Queued == nil {
		resp.Queued = []string{}
	}
	if resp.Incomplete == nil {
		resp.Incomplete = []string{}
	}
	return resp
}

// FromEvent converts an orchestrator event for the websocket stream.
func FromEvent(evt workflow.Event) Event {
	out := Event{
		Type:     string(evt.Type),
		Time:     evt.Time,
		Progress: FromProgress(evt.Progress),
	}
	if evt.Job != nil {
		job := FromJob(*evt.Job)
		out.Job = &job
	}
	return out
}

// FromOutcome converts a journal row.
func FromOutcome(o queue.Outcome) Outcome {
	return Outcome{
		JobID:      o.JobID,
		SourcePath: o.SourcePath,
		Status:     string(o.Status),
		Error:      o.Error,
		Attempt:    o.Attempt,
		StartedAt:  formatTime(o.StartedAt),
		FinishedAt: formatTime(o.FinishedAt),
		Seconds:    o.Duration().Seconds(),
	}
}

// FromOutcomes converts journal rows in order.
func FromOutcomes(outcomes []queue.Outcome) []Outcome {
	out := make([]Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, FromOutcome(o))
	}
	return out
}

// FromEntry converts a library index row.
func FromEntry(entry library.Entry) Paper {
	return Paper{
		ID:              entry.ID,
		Title:           entry.Title,
		TranslatedTitle: entry.TranslatedTitle,
		UpdatedAt:       formatTime(entry.UpdatedAt),
	}
}

// FromEntries converts the library index.
func FromEntries(entries []library.Entry) []Paper {
	out := make([]Paper, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromEntry(entry))
	}
	return out
}

// FromContent converts loaded paper content.
func FromContent(content library.Content, missing []string) PaperResponse {
	return PaperResponse{
		Paper:     FromEntry(content.Entry),
		ArticleEN: content.ArticleEN,
		ArticleZH: content.ArticleZH,
		Missing:   missing,
	}
}

// FromMatch converts a matcher result.
func FromMatch(match matcher.Match, found bool) MatchResponse {
	if !found {
		return MatchResponse{}
	}
	return MatchResponse{Found: true, Text: match.Text, Kind: string(match.Kind)}
}

// FromLogEvents converts hub events to API log events.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		var details []DetailField
		if len(evt.Details) > 0 {
			details = make([]DetailField, 0, len(evt.Details))
			for _, detail := range evt.Details {
				details = append(details, DetailField{Label: detail.Label, Value: detail.Value})
			}
		}
		out = append(out, LogEvent{
			Sequence:      evt.Sequence,
			Timestamp:     evt.Timestamp,
			Level:         evt.Level,
			Message:       evt.Message,
			Component:     evt.Component,
			Stage:         evt.Stage,
			JobID:         evt.JobID,
			CorrelationID: evt.CorrelationID,
			Fields:        evt.Fields,
			Details:       details,
		})
	}
	return out
}
