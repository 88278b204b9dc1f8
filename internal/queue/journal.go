package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const outcomeColumns = "id, job_id, source_path, status, error, attempt, started_at, finished_at"

// Record journals the terminal state of job.
func (s *Store) Record(ctx context.Context, job Job) (Outcome, error) {
	if s == nil {
		return Outcome{}, errors.New("journal store not initialized")
	}
	if strings.TrimSpace(job.ID) == "" {
		return Outcome{}, errors.New("record outcome: job id required")
	}
	finished := job.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	res, err := s.exec(ctx,
		`INSERT INTO outcomes (job_id, source_path, status, error, attempt, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		nullableString(job.SourcePath),
		string(job.Status),
		nullableString(job.ErrorMessage),
		nullableString(job.Attempt),
		nullableTime(job.StartedAt),
		finished.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return Outcome{}, fmt.Errorf("insert outcome: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Outcome{}, fmt.Errorf("outcome id: %w", err)
	}
	return Outcome{
		ID:         id,
		JobID:      job.ID,
		SourcePath: job.SourcePath,
		Status:     job.Status,
		Error:      job.ErrorMessage,
		Attempt:    job.Attempt,
		StartedAt:  job.StartedAt,
		FinishedAt: finished.UTC(),
	}, nil
}

// Recent returns the newest outcomes first, at most limit rows.
func (s *Store) Recent(ctx context.Context, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+outcomeColumns+" FROM outcomes ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()
	return scanOutcomes(rows)
}

// ForJob returns the outcomes recorded for one paper, newest first.
func (s *Store) ForJob(ctx context.Context, jobID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+outcomeColumns+" FROM outcomes WHERE job_id = ? ORDER BY id DESC", jobID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes for %s: %w", jobID, err)
	}
	defer rows.Close()
	return scanOutcomes(rows)
}

// Prune deletes outcomes finished before cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, "DELETE FROM outcomes WHERE finished_at < ?", cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune outcomes: %w", err)
	}
	return res.RowsAffected()
}

func scanOutcomes(rows *sql.Rows) ([]Outcome, error) {
	var out []Outcome
	for rows.Next() {
		var (
			o          Outcome
			source     sql.NullString
			status     string
			errText    sql.NullString
			attempt    sql.NullString
			startedRaw sql.NullString
			finishRaw  string
		)
		if err := rows.Scan(&o.ID, &o.JobID, &source, &status, &errText, &attempt, &startedRaw, &finishRaw); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		parsed, err := ParseStatus(status)
		if err != nil {
			return nil, err
		}
		o.Status = parsed
		o.SourcePath = source.String
		o.Error = errText.String
		o.Attempt = attempt.String
		o.StartedAt = parseTime(startedRaw.String)
		o.FinishedAt = parseTime(finishRaw)
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullableString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullableTime(value time.Time) sql.NullString {
	if value.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: value.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}
