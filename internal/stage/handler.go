package stage

import "log/slog"

// Reporter receives the completion percentage (0-100) of the running stage.
type Reporter func(percent float64)

// Report calls r when it is set.
func (r Reporter) Report(percent float64) {
	if r != nil {
		r(ClampPercent(percent))
	}
}

// LoggerAware stages receive a logger scoped to the job and stage before they run.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
