package api

import "time"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a queue entry in a transport-friendly format.
type Job struct {
	ID           string   `json:"id"`
	SourcePath   string   `json:"sourcePath"`
	Status       string   `json:"status"`
	MissingSteps []string `json:"missingSteps"`
	Priority     int      `json:"priority"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
	Attempt      string   `json:"attempt,omitempty"`
	EnqueuedAt   string   `json:"enqueuedAt,omitempty"`
	StartedAt    string   `json:"startedAt,omitempty"`
	FinishedAt   string   `json:"finishedAt,omitempty"`
}

// Progress captures stage progress for the active job.
type Progress struct {
	JobID   string  `json:"jobId,omitempty"`
	Stage   string  `json:"stage"`
	Index   int     `json:"index"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// WorkflowStatus summarizes orchestrator state.
type WorkflowStatus struct {
	Paused      bool          `json:"paused"`
	Active      *Job          `json:"active,omitempty"`
	Progress    Progress      `json:"progress"`
	Pending     int           `json:"pending"`
	Recent      int           `json:"recent"`
	Failed      int           `json:"failed"`
	StageHealth []StageHealth `json:"stageHealth"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DataDir      string         `json:"dataDir"`
	OutputDir    string         `json:"outputDir"`
	LibraryPath  string         `json:"libraryDbPath"`
	JournalPath  string         `json:"journalDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// QueueListResponse wraps the pending queue followed by recent terminal jobs.
type QueueListResponse struct {
	Items []Job `json:"items"`
}

// JobResponse wraps a single queue entry.
type JobResponse struct {
	Job Job `json:"job"`
}

// UploadRequest registers a PDF that already sits on the daemon's filesystem.
type UploadRequest struct {
	ID    string `json:"id" validate:"omitempty,max=50,paperid"`
	Path  string `json:"path" validate:"required,pdfpath"`
	Force bool   `json:"force"`
}

// RetryRequest re-queues a failed job.
type RetryRequest struct {
	ID string `json:"id" validate:"required,paperid"`
}

// ScanResponse reports what a data directory scan queued.
type ScanResponse struct {
	Queued     []string `json:"queued"`
	Incomplete []string `json:"incomplete"`
	Skipped    int      `json:"skipped"`
}

// Outcome is a journaled terminal result.
type Outcome struct {
	JobID      string  `json:"jobId"`
	SourcePath string  `json:"sourcePath"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
	Attempt    string  `json:"attempt,omitempty"`
	StartedAt  string  `json:"startedAt,omitempty"`
	FinishedAt string  `json:"finishedAt,omitempty"`
	Seconds    float64 `json:"seconds"`
}

// HistoryResponse wraps journal entries, newest first.
type HistoryResponse struct {
	Outcomes []Outcome `json:"outcomes"`
}

// Paper is an entry of the library index.
type Paper struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	TranslatedTitle string `json:"translatedTitle"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

// PaperListResponse wraps the library index.
type PaperListResponse struct {
	Papers []Paper `json:"papers"`
}

// PaperResponse carries a paper's metadata with both articles.
type PaperResponse struct {
	Paper     Paper    `json:"paper"`
	ArticleEN string   `json:"articleEn"`
	ArticleZH string   `json:"articleZh"`
	Missing   []string `json:"missing,omitempty"`
}

// DedupeResponse lists index rows dropped because their directory vanished.
type DedupeResponse struct {
	Removed []string `json:"removed"`
}

// MatchRequest asks for the counterpart of a fragment.
type MatchRequest struct {
	Fragment string `json:"fragment" validate:"required"`
	Kind     string `json:"kind" validate:"omitempty,oneof=title text table"`
	Lang     string `json:"lang" validate:"omitempty,oneof=en zh"`
}

// MatchResponse reports a counterpart lookup. Found is false for every
// failure, including unknown papers.
type MatchResponse struct {
	Found bool   `json:"found"`
	Text  string `json:"text,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// Event mirrors an orchestrator event on the websocket stream.
type Event struct {
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	Job      *Job      `json:"job,omitempty"`
	Progress Progress  `json:"progress"`
}

// DetailField is a rendered log detail line.
type DetailField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// LogEvent is one structured log line.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	JobID         string            `json:"jobId,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
	Details       []DetailField     `json:"details,omitempty"`
}

// LogStreamResponse is a page of log events and the cursor for the next call.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Hint  string `json:"hint,omitempty"`
}
