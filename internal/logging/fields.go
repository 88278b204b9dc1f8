package logging

import (
	"context"
	"log/slog"

	"lectern/internal/services"
)

// Structured keys shared across lectern log lines. Component, job, stage and
// correlation are lifted into the console header and the LogEvent identity
// fields; the rest render as detail lines.
const (
	FieldComponent       = "component"
	FieldJobID           = "job_id"
	FieldStage           = "stage"
	FieldAttempt         = "attempt"
	FieldCorrelationID   = "correlation_id"
	FieldEventType       = "event_type"
	FieldErrorHint       = "error_hint"
	FieldErrorCode       = "error_code"
	FieldImpact          = "impact"
	FieldProgressStage   = "progress_stage"
	FieldProgressPercent = "progress_percent"
)

// ContextFields extracts the job, stage, attempt and request id carried by ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	add := func(key string, value string, ok bool) {
		if ok {
			fields = append(fields, slog.String(key, value))
		}
	}
	id, ok := services.JobIDFromContext(ctx)
	add(FieldJobID, id, ok)
	stage, ok := services.StageFromContext(ctx)
	add(FieldStage, stage, ok)
	attempt, ok := services.AttemptFromContext(ctx)
	add(FieldAttempt, attempt, ok)
	rid, ok := services.RequestIDFromContext(ctx)
	add(FieldCorrelationID, rid, ok)
	return fields
}

// WithContext returns logger tagged with ContextFields(ctx).
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}

// ErrorAttrs expands err into the error, code and hint fields used across
// failure logs.
func ErrorAttrs(err error) []Attr {
	if err == nil {
		return nil
	}
	return []Attr{
		Error(err),
		String(FieldErrorCode, services.Code(err)),
		String(FieldErrorHint, services.Hint(err)),
	}
}
