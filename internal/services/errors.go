package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	// ErrPipeline tags failures raised while converting a paper.
	ErrPipeline = errors.New("pipeline failure")
	// ErrMalformed tags structured artifacts that exist but cannot be decoded.
	ErrMalformed = errors.New("malformed document")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Code returns a short machine-readable label for the marker carried by err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrPipeline):
		return "pipeline"
	default:
		return "internal"
	}
}

// Hint suggests a next step for operators reading a failure.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "check the lectern configuration file"
	case errors.Is(err, ErrExternalTool):
		return "verify the external translator is installed and reachable"
	case errors.Is(err, ErrMalformed):
		return "re-run the paper through the queue to rebuild its artifacts"
	case errors.Is(err, ErrValidation):
		return "fix the request and try again"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
