package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"lectern/internal/api"
	"lectern/internal/config"
	"lectern/internal/daemon"
	"lectern/internal/library"
	"lectern/internal/logging"
	"lectern/internal/pipeline"
	"lectern/internal/testsupport"
	"lectern/internal/workflow"
)

type idleRunner struct{}

func (idleRunner) Run(context.Context, string, string, pipeline.ProgressFunc) (pipeline.Result, error) {
	return pipeline.Result{}, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	lib        *library.Store
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStartPaused())
	lib := testsupport.MustOpenLibrary(t, cfg)
	journal := testsupport.MustOpenJournal(t, cfg)
	logger := logging.NewNop()

	orch := workflow.New(lib, idleRunner{}, logger, workflow.Options{
		OutputDir:   cfg.Paths.OutputDir,
		StartPaused: true,
		Journal:     journal,
	})
	t.Cleanup(orch.Close)

	d, err := daemon.New(cfg, daemon.Dependencies{
		Library:      lib,
		Journal:      journal,
		Orchestrator: orch,
		LogHub:       logging.NewStreamHub(64),
	}, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	fileCfg := *cfg
	fileCfg.Paths.APIBind = d.APIAddr()
	data, err := toml.Marshal(fileCfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	testsupport.WriteFile(t, configPath, string(data))

	return &cliTestEnv{cfg: cfg, lib: lib, configPath: configPath}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestCLIQueueCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(out, "Queue is empty") {
		t.Fatalf("unexpected empty queue output: %q", out)
	}

	pdf := testsupport.WritePDF(t, testsupport.BaseDir(env.cfg), "Graph Networks.pdf")
	out, _, err = runCLI(t, env.configPath, "queue", "add", pdf)
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	if !strings.Contains(out, "Queued Graph_Networks") {
		t.Fatalf("unexpected add output: %q", out)
	}

	out, _, err = runCLI(t, env.configPath, "queue", "list", "--output", "json")
	if err != nil {
		t.Fatalf("queue list json: %v", err)
	}
	var listed api.QueueListResponse
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode queue list: %v (%q)", err, out)
	}
	if len(listed.Items) != 1 || listed.Items[0].ID != "Graph_Networks" {
		t.Fatalf("queue items = %+v", listed.Items)
	}

	out, _, err = runCLI(t, env.configPath, "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	if !strings.Contains(out, "Pending") {
		t.Fatalf("queue status missing pending row: %q", out)
	}

	out, _, err = runCLI(t, env.configPath, "queue", "remove", "Graph_Networks")
	if err != nil {
		t.Fatalf("queue remove: %v", err)
	}
	if !strings.Contains(out, "Removed Graph_Networks") {
		t.Fatalf("unexpected remove output: %q", out)
	}

	if _, _, err := runCLI(t, env.configPath, "queue", "remove", "Graph_Networks"); err == nil {
		t.Fatal("expected removing an unknown job to fail")
	}
}

func TestCLIAddRejectsNonPDF(t *testing.T) {
	env := setupCLITestEnv(t)
	notes := filepath.Join(testsupport.BaseDir(env.cfg), "notes.txt")
	testsupport.WriteFile(t, notes, "not a pdf")

	_, _, err := runCLI(t, env.configPath, "queue", "add", notes)
	if err == nil || !strings.Contains(err.Error(), "not a PDF") {
		t.Fatalf("expected not a PDF error, got %v", err)
	}
}

func TestCLIPapersAndMatch(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WritePaper(t, env.lib, "attention", "Attention Is All You Need", "注意力就是你所需要的")

	out, _, err := runCLI(t, env.configPath, "papers", "list")
	if err != nil {
		t.Fatalf("papers list: %v", err)
	}
	if !strings.Contains(out, "attention") || !strings.Contains(out, "注意力就是你所需要的") {
		t.Fatalf("papers list missing entry: %q", out)
	}

	out, _, err = runCLI(t, env.configPath, "-o", "yaml", "papers", "list")
	if err != nil {
		t.Fatalf("papers list yaml: %v", err)
	}
	if !strings.Contains(out, "translatedTitle: 注意力就是你所需要的") {
		t.Fatalf("yaml output unexpected: %q", out)
	}

	out, _, err = runCLI(t, env.configPath, "papers", "show", "attention", "--lang", "zh")
	if err != nil {
		t.Fatalf("papers show: %v", err)
	}
	if strings.TrimSpace(out) != "# 注意力就是你所需要的" {
		t.Fatalf("papers show output: %q", out)
	}

	out, _, err = runCLI(t, env.configPath, "match", "attention", "引言", "--kind", "title")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if strings.TrimSpace(out) != "Introduction" {
		t.Fatalf("match output: %q", out)
	}

	out, _, err = runCLI(t, env.configPath, "match", "attention", "nothing like this", "--lang", "en")
	if err != nil {
		t.Fatalf("match miss: %v", err)
	}
	if strings.TrimSpace(out) != "No match" {
		t.Fatalf("match miss output: %q", out)
	}

	out, _, err = runCLI(t, env.configPath, "papers", "tree", "attention")
	if err != nil {
		t.Fatalf("papers tree: %v", err)
	}
	if !strings.Contains(out, `"translated_title": "引言"`) {
		t.Fatalf("tree output: %q", out)
	}

	if _, _, err := runCLI(t, env.configPath, "papers", "delete", "attention"); err != nil {
		t.Fatalf("papers delete: %v", err)
	}
	out, _, err = runCLI(t, env.configPath, "papers", "list")
	if err != nil {
		t.Fatalf("papers list after delete: %v", err)
	}
	if !strings.Contains(out, "Library is empty") {
		t.Fatalf("expected empty library: %q", out)
	}
}

func TestCLIStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"== Daemon ==", "== Queue ==", "Paused", env.cfg.Paths.DataDir} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q: %q", want, out)
		}
	}
}

func TestCLIReportsUnreachableDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env.configPath, "--api", "127.0.0.1:1", "queue", "list")
	if err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Fatalf("expected unreachable error, got %v", err)
	}
}

func TestCLIConfigInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "lectern.toml")

	out, _, err := runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("config init output: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}
	if _, _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}

	// Point the sample at temp directories so validate does not touch $HOME.
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.OutputDir = filepath.Join(dir, "output")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	testsupport.WriteFile(t, target, string(data))

	out, _, err = runCLI(t, target, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("validate output: %q", out)
	}
}

func TestCLIConfigShowMasksSecrets(t *testing.T) {
	env := setupCLITestEnv(t)
	cfg := *env.cfg
	cfg.Paths.APIToken = "super-secret"
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(env.cfg), "secret.toml")
	testsupport.WriteFile(t, path, string(data))

	out, _, err := runCLI(t, path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "super-secret") {
		t.Fatalf("token leaked: %q", out)
	}
}
