package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lectern/internal/logging"
	"lectern/internal/services"
)

func newFileLogger(t *testing.T, opts logging.Options) (*slog.Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "test.log")
	opts.OutputPaths = []string{path}
	opts.ErrorOutputPaths = []string{path}
	logger, err := logging.New(opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return logger, path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestJSONLoggerWritesFile(t *testing.T) {
	logger, path := newFileLogger(t, logging.Options{Format: "json"})
	logger.Info("hello", logging.Int("pages", 3))

	var record map[string]any
	if err := json.Unmarshal([]byte(readLog(t, path)), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["msg"] != "hello" || record["level"] != "info" || record["pages"] != float64(3) {
		t.Fatalf("unexpected record %v", record)
	}
	if _, err := time.Parse(time.RFC3339, record["ts"].(string)); err != nil {
		t.Fatalf("ts not RFC 3339: %v", record["ts"])
	}
}

func TestConsoleLoggerHeaderAndDetails(t *testing.T) {
	logger, path := newFileLogger(t, logging.Options{Level: "info"})
	logging.NewComponentLogger(logger, "workflow").Info("stage completed",
		logging.String(logging.FieldJobID, "attention"),
		logging.String(logging.FieldStage, "translate"),
		logging.Int("chunks", 12),
		logging.Bool("cached", false),
	)

	content := readLog(t, path)
	if !strings.Contains(content, "INFO  [workflow] attention/translate: stage completed") {
		t.Fatalf("unexpected header: %q", content)
	}
	if !strings.Contains(content, "    - Chunks: 12\n") || !strings.Contains(content, "    - Cached: no\n") {
		t.Fatalf("missing detail lines: %q", content)
	}
	if strings.Contains(content, ".go:") {
		t.Fatalf("info logs should not carry a source location: %q", content)
	}
}

func TestConsoleLoggerDebugListsRawAttrs(t *testing.T) {
	logger, path := newFileLogger(t, logging.Options{Level: "debug"})
	logger.Debug("probe", logging.String("source_path", "/tmp/a b.pdf"))

	content := readLog(t, path)
	if !strings.Contains(content, ".go:") {
		t.Fatalf("expected source location in debug logs, got %q", content)
	}
	if !strings.Contains(content, `    source_path="/tmp/a b.pdf"`) {
		t.Fatalf("expected quoted raw attribute, got %q", content)
	}
}

func TestConsoleLoggerRespectsLevel(t *testing.T) {
	logger, path := newFileLogger(t, logging.Options{Level: "warn"})
	logger.Info("quiet")
	logger.Warn("loud")

	content := readLog(t, path)
	if strings.Contains(content, "quiet") || !strings.Contains(content, "WARN  loud") {
		t.Fatalf("unexpected output: %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "attention")
	ctx = services.WithStage(ctx, "translate")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, base).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	want := map[string]string{
		logging.FieldJobID:         "attention",
		logging.FieldStage:         "translate",
		logging.FieldCorrelationID: "req-xyz",
	}
	for key, value := range want {
		if record[key] != value {
			t.Fatalf("field %s = %v, want %s", key, record[key], value)
		}
	}
}

func TestWarnWithContextKeepsCallerValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "scan skipped", "scan_skipped", logging.String(logging.FieldImpact, "paper not queued"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record[logging.FieldEventType] != "scan_skipped" || record[logging.FieldImpact] != "paper not queued" {
		t.Fatalf("unexpected record %v", record)
	}
	if record[logging.FieldErrorHint] != "check logs for details" {
		t.Fatalf("expected default hint, got %v", record[logging.FieldErrorHint])
	}
}

func TestErrorAttrsClassifiesError(t *testing.T) {
	err := services.Wrap(services.ErrConfiguration, "translate", "llm", "no key", nil)
	attrs := logging.ErrorAttrs(err)
	if len(attrs) != 3 {
		t.Fatalf("expected 3 attrs, got %d", len(attrs))
	}
	if attrs[1].Value.String() != "configuration" {
		t.Fatalf("error code = %q", attrs[1].Value.String())
	}
	if logging.ErrorAttrs(nil) != nil {
		t.Fatal("expected no attrs for nil error")
	}
	if got := logging.Error(errors.New("boom")).Value.Any().(error).Error(); got != "boom" {
		t.Fatalf("Error attr = %q", got)
	}
}
