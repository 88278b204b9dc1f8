package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"lectern/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Background scanning and directory watching are off so tests drive the queue
// explicitly; the API binds an ephemeral port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Workflow.ScanInterval = 0
	cfgVal.Workflow.WatchDataDir = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithAPIToken requires bearer authentication on the test API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithoutAPI disables the HTTP listener.
func WithoutAPI() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIBind = ""
	}
}

// WithWatch enables the data directory watcher with a short debounce.
func WithWatch() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.WatchDataDir = true
		b.cfg.Workflow.WatchDebounceMS = 50
	}
}

// WithStartPaused starts the orchestrator paused.
func WithStartPaused() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.StartPaused = true
	}
}

// WithStubbedTranslator writes a shell translator that prefixes every line of
// its input with "ZH " and configures it as the translate command.
func WithStubbedTranslator() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "translate")
		script := []byte("#!/bin/sh\nsed 's/^/ZH /' \"$1\" > \"$2\"\n")
		if err := os.WriteFile(target, script, 0o755); err != nil {
			b.t.Fatalf("write translator stub: %v", err)
		}
		b.cfg.Pipeline.TranslateCommand = []string{target, "{input}", "{output}"}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
