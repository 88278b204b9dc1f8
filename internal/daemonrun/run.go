package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"lectern/internal/config"
	"lectern/internal/daemon"
	"lectern/internal/library"
	"lectern/internal/logging"
	"lectern/internal/pipeline"
	"lectern/internal/queue"
	"lectern/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the lectern daemon and blocks until cmdCtx ends or the process
// receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("lectern-%s.log", runID))
	logHub := logging.NewStreamHub(4096)

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Stream:           logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logTranslatorSnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update lectern.log link: %v\n", err)
	}
	pidPath := filepath.Join(cfg.Paths.LogDir, "lectern.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	lib, err := library.Open(cfg.Paths.OutputDir, cfg.DatabasePath(), logger)
	if err != nil {
		logger.Error("open library index", logging.Error(err))
		return err
	}
	journal, err := queue.Open(cfg.JournalPath())
	if err != nil {
		_ = lib.Close()
		logger.Error("open outcome journal", logging.Error(err))
		return err
	}
	runner, err := pipeline.New(cfg, logger)
	if err != nil {
		_ = journal.Close()
		_ = lib.Close()
		return fmt.Errorf("build pipeline: %w", err)
	}

	orchestrator := workflow.New(lib, runner, logger, workflow.Options{
		OutputDir:   cfg.Paths.OutputDir,
		RecentLimit: cfg.Workflow.RecentLimit,
		StartPaused: cfg.Workflow.StartPaused,
		Indexer:     workflow.NewLogIndexer(logger),
		Journal:     journal,
	})

	d, err := daemon.New(cfg, daemon.Dependencies{
		Library:      lib,
		Journal:      journal,
		Orchestrator: orchestrator,
		LogHub:       logHub,
	}, logger)
	if err != nil {
		orchestrator.Close()
		_ = journal.Close()
		_ = lib.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("daemon shutdown incomplete", logging.Error(err))
		}
	}()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that no other lectern daemon is running and the API port is free"),
			logging.String(logging.FieldImpact, "no papers will be processed"),
		)
		return err
	}
	logger.Info("lectern daemon ready",
		logging.String("api", d.APIAddr()),
		logging.String("log_path", logPath),
	)

	<-signalCtx.Done()
	logger.Info("lectern daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "lectern.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logTranslatorSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "translator_snapshot"),
		logging.Bool("translator_configured", cfg.TranslatorConfigured()),
		logging.String("source_language", cfg.Pipeline.SourceLanguage),
		logging.String("target_language", cfg.Pipeline.TargetLanguage),
	}
	if argv := cfg.Pipeline.TranslateCommand; len(argv) > 0 {
		attrs = append(attrs,
			logging.String("translate_command", argv[0]),
			logging.Bool("translate_command_available", binaryAvailable(argv[0])),
		)
	} else {
		attrs = append(attrs,
			logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
			logging.String("llm_model", cfg.LLM.Model),
		)
	}
	logger.Info("translator snapshot", logging.Args(attrs...)...)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
