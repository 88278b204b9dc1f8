package stage

import (
	"context"
	"errors"

	"lectern/internal/services"
)

// Fail tags err as a pipeline failure of stageName. Cancellation passes through
// untouched so callers can tell a pause from a broken stage.
func Fail(stageName, operation, message string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return services.Wrap(services.ErrPipeline, stageName, operation, message, err)
}

// ClampPercent bounds percent to [0, 100].
func ClampPercent(percent float64) float64 {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}

// Fraction converts done out of total into a percentage.
func Fraction(done, total int) float64 {
	if total <= 0 {
		return 100
	}
	return ClampPercent(float64(done) * 100 / float64(total))
}
