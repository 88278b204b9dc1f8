package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"lectern/internal/config"
	"lectern/internal/library"
	"lectern/internal/logging"
	"lectern/internal/matcher"
	"lectern/internal/queue"
	"lectern/internal/watch"
	"lectern/internal/workflow"
)

// Dependencies are the long-lived services the daemon coordinates. The daemon
// takes ownership and closes them in Close.
type Dependencies struct {
	Library      *library.Store
	Journal      *queue.Store
	Orchestrator *workflow.Orchestrator
	Matcher      *matcher.Service
	LogHub       *logging.StreamHub
}

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	library      *library.Store
	journal      *queue.Store
	orchestrator *workflow.Orchestrator
	matcher      *matcher.Service
	logHub       *logging.StreamHub

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	DataDir      string
	OutputDir    string
	LibraryPath  string
	JournalPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Library == nil || deps.Orchestrator == nil {
		return nil, errors.New("daemon requires config, library, and orchestrator")
	}
	if deps.Matcher == nil {
		deps.Matcher = matcher.NewService(deps.Library, logger)
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		library:      deps.Library,
		journal:      deps.Journal,
		orchestrator: deps.Orchestrator,
		matcher:      deps.Matcher,
		logHub:       deps.LogHub,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, starts the API server and begins
// reconciling the data directory.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lectern daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel
	d.running.Store(true)

	if _, err := d.Scan(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "initial scan failed", "scan_failed",
			logging.Error(err),
			logging.String("data_dir", d.cfg.Paths.DataDir),
			logging.String(logging.FieldImpact, "existing PDFs are not queued until the next scan"),
		)
	}
	if interval := time.Duration(d.cfg.Workflow.ScanInterval) * time.Second; interval > 0 {
		d.wg.Add(1)
		go d.scanLoop(runCtx, interval)
	}
	if d.cfg.Workflow.WatchDataDir {
		d.startWatcher(runCtx)
	}

	d.logger.Info("lectern daemon started",
		logging.String("lock", d.lockPath),
		logging.String("data_dir", d.cfg.Paths.DataDir),
		logging.String("output_dir", d.cfg.Paths.OutputDir),
	)
	return nil
}

func (d *Daemon) scanLoop(ctx context.Context, interval time.Duration) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Scan(ctx); err != nil && ctx.Err() == nil {
				logging.WarnWithContext(d.logger, "periodic scan failed", "scan_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "new PDFs wait for the next scan"),
				)
			}
		}
	}
}

func (d *Daemon) startWatcher(ctx context.Context) {
	debounce := time.Duration(d.cfg.Workflow.WatchDebounceMS) * time.Millisecond
	w := watch.New(d.cfg.Paths.DataDir, debounce, func(ctx context.Context, paths []string) {
		d.logger.Debug("data directory changed", logging.Strings("paths", paths))
		if _, err := d.Scan(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(d.logger, "watch-triggered scan failed", "scan_failed", logging.Error(err))
		}
	}, d.logger)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := w.Run(ctx); err != nil {
			logging.WarnWithContext(d.logger, "data directory watcher stopped", "watch_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "new PDFs are only picked up by periodic scans"),
			)
		}
	}()
}

// Stop stops background scanning and the API server and releases the lock.
// Queue state is left untouched so Start can resume it.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("lectern daemon stopped")
}

// Close stops the daemon and releases every dependency it owns.
func (d *Daemon) Close() error {
	d.Stop()
	d.orchestrator.Close()
	var errs []error
	if d.journal != nil {
		errs = append(errs, d.journal.Close())
	}
	errs = append(errs, d.library.Close())
	return errors.Join(errs...)
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddr returns the address the API listener is bound to, or "" when the
// API is disabled or the daemon is stopped.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// LogStream exposes the in-memory log hub backing /api/logs.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.orchestrator.Status(ctx),
		DataDir:      d.cfg.Paths.DataDir,
		OutputDir:    d.cfg.Paths.OutputDir,
		LibraryPath:  d.cfg.DatabasePath(),
		JournalPath:  d.cfg.JournalPath(),
		LockFilePath: d.lockPath,
	}
}

// Scan reconciles the data directory with the queue.
func (d *Daemon) Scan(ctx context.Context) (workflow.ScanResult, error) {
	result, err := d.orchestrator.EnqueueFromScan(ctx, d.cfg.Paths.DataDir)
	if err != nil {
		return result, err
	}
	if len(result.Queued)+len(result.Incomplete) > 0 {
		d.logger.Info("data directory scanned",
			logging.String(logging.FieldEventType, "scan_completed"),
			logging.Int("queued", len(result.Queued)),
			logging.Int("incomplete", len(result.Incomplete)),
			logging.Int("skipped", result.Skipped),
		)
	}
	return result, nil
}
