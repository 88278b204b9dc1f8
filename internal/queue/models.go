package queue

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Status represents the lifecycle of a queued job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusIncomplete Status = "incomplete"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusIncomplete,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

// ParseStatus converts a user or database supplied string into a Status.
func ParseStatus(value string) (Status, error) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", value)
}

// IsTerminal reports whether the status ends a job's life in the queue.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Artifact names reported in Job.MissingSteps.
const (
	ArtifactAll       = "all"
	ArtifactArticleEN = "article_en"
	ArtifactArticleZH = "article_zh"
	ArtifactRagTree   = "rag_tree"
)

// RequiredArtifacts lists the artifacts a paper needs before it counts as
// fully processed, in the order they are checked.
var RequiredArtifacts = []string{ArtifactArticleEN, ArtifactArticleZH, ArtifactRagTree}

// NothingProduced is the missing-step set for a paper with no output at all.
func NothingProduced() []string {
	return []string{ArtifactAll}
}

// Job is one paper waiting for, or moving through, the pipeline.
type Job struct {
	ID           string
	SourcePath   string
	Status       Status
	MissingSteps []string
	Priority     int
	ErrorMessage string
	EnqueuedAt   time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
	// Attempt identifies the current dispatch; empty while not running.
	Attempt string

	seq uint64
}

// Clone returns a deep copy safe to hand outside the orchestrator lock.
func (j *Job) Clone() Job {
	if j == nil {
		return Job{}
	}
	cp := *j
	cp.MissingSteps = slices.Clone(j.MissingSteps)
	return cp
}

// NeedsEverything reports whether the paper has no artifacts at all.
func (j *Job) NeedsEverything() bool {
	return slices.Contains(j.MissingSteps, ArtifactAll)
}

// Progress describes the running stage of the active job.
type Progress struct {
	JobID   string  `json:"job_id,omitempty"`
	Stage   string  `json:"stage"`
	Index   int     `json:"index"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// IsZero reports whether no progress has been recorded.
func (p Progress) IsZero() bool {
	return p == Progress{}
}

// Outcome is a journaled terminal result.
type Outcome struct {
	ID         int64
	JobID      string
	SourcePath string
	Status     Status
	Error      string
	Attempt    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the attempt ran.
func (o Outcome) Duration() time.Duration {
	if o.StartedAt.IsZero() || o.FinishedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}
