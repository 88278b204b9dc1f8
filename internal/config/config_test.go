package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"lectern/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("LECTERN_TRANSLATE_COMMAND", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "lectern", "data")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7510" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Workflow.ScanInterval != config.Default().Workflow.ScanInterval {
		t.Fatalf("unexpected scan interval: %d", cfg.Workflow.ScanInterval)
	}
	if got := cfg.DatabasePath(); got != filepath.Join(cfg.Paths.OutputDir, "library.db") {
		t.Fatalf("unexpected database path: %q", got)
	}
	if cfg.TranslatorConfigured() {
		t.Fatal("expected no translator by default")
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "lectern.toml")
	content := `
[paths]
data_dir = "~/papers"
output_dir = "~/out"
api_bind = "0.0.0.0:9000"

[workflow]
scan_interval = 0
recent_limit = -3

[pipeline]
translate_command = ["trans", "{input}", "{output}"]

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom path to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "papers") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Workflow.ScanInterval != 0 {
		t.Fatalf("expected scans disabled, got %d", cfg.Workflow.ScanInterval)
	}
	if cfg.Workflow.RecentLimit != config.Default().Workflow.RecentLimit {
		t.Fatalf("expected recent limit default, got %d", cfg.Workflow.RecentLimit)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	if !cfg.TranslatorConfigured() {
		t.Fatal("expected translate command to configure the translator")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "lectern.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\nstaging_dir = \"/tmp\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LECTERN_TRANSLATE_COMMAND", "trans --from en {input} {output}")
	t.Setenv("LECTERN_LLM_API_KEY", "secret")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := strings.Join(cfg.Pipeline.TranslateCommand, " "); got != "trans --from en {input} {output}" {
		t.Fatalf("unexpected translate command %q", got)
	}
	if cfg.LLM.APIKey != "secret" {
		t.Fatalf("expected api key from env, got %q", cfg.LLM.APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config is not valid toml: %v", err)
	}
	if _, _, _, err := config.Load(target); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	base := config.Default()
	base.Paths.DataDir = "/srv/data"
	base.Paths.OutputDir = "/srv/out"

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"same dirs", func(c *config.Config) { c.Paths.OutputDir = c.Paths.DataDir }, "must differ"},
		{"bad bind", func(c *config.Config) { c.Paths.APIBind = "localhost" }, "paths.api_bind"},
		{"bad language", func(c *config.Config) { c.Pipeline.TargetLanguage = "fr" }, "languages"},
		{"same language", func(c *config.Config) { c.Pipeline.TargetLanguage = "en" }, "must differ"},
		{"command placeholders", func(c *config.Config) { c.Pipeline.TranslateCommand = []string{"trans"} }, "{input}"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tc.want)
			}
		})
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}
}
