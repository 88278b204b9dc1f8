package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
)

// consoleHandler writes one header line per record followed by indented
// detail lines:
//
//	2026-01-02 15:04:05 INFO  [workflow] attention/translate: stage completed
//	    - Chunks: 12
//	    - Duration: 41.2s
//
// Debug records list every attribute as key=value instead.
type consoleHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  *slog.LevelVar
	source bool
	scope  scope
}

func newConsoleHandler(w io.Writer, level *slog.LevelVar, source bool) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level, source: source}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	e := h.scope.entry(record)

	var buf bytes.Buffer
	h.writeHeader(&buf, e)
	if e.level < slog.LevelInfo {
		for _, f := range e.fields {
			fmt.Fprintf(&buf, "    %s=%s\n", f.key, formatValue(f.value))
		}
	} else {
		lines, hidden := details(e.fields, 0, true)
		for _, line := range lines {
			fmt.Fprintf(&buf, "    - %s: %s\n", line.Label, line.Value)
		}
		if hidden > 0 {
			fmt.Fprintf(&buf, "    + %d hidden\n", hidden)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) writeHeader(buf *bytes.Buffer, e entry) {
	fmt.Fprintf(buf, "%s %-5s", formatTimestamp(e.time), levelName(e.level))
	if e.component != "" {
		buf.WriteString(" [" + e.component + "]")
	}
	subject := e.jobID
	if e.stage != "" {
		if subject != "" {
			subject += "/"
		}
		subject += e.stage
	}
	if subject != "" {
		buf.WriteString(" " + subject + ":")
	}
	message := e.message
	if message == "" {
		message = "(no message)"
	}
	buf.WriteString(" " + message)
	if h.source && e.source != nil && e.source.File != "" {
		fmt.Fprintf(buf, " (%s:%d)", filepath.Base(e.source.File), e.source.Line)
	}
	buf.WriteByte('\n')
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.scope = h.scope.withAttrs(attrs)
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.scope = h.scope.withGroup(name)
	return &clone
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
