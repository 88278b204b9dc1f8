package workflow

import (
	"context"
	"log/slog"
	"sync"

	"lectern/internal/logging"
	"lectern/internal/pipeline"
	"lectern/internal/queue"
	"lectern/internal/stage"
)

// DefaultRecentLimit bounds the terminal jobs kept for reporting.
const DefaultRecentLimit = 50

// DefaultFailedLimit bounds the failed papers held back from scans. The
// oldest failure is forgotten first, which lets its paper rescan.
const DefaultFailedLimit = 500

// Library is the part of the document store the orchestrator consults.
type Library interface {
	Known(ctx context.Context, id string) (bool, error)
	MissingArtifacts(ctx context.Context, id string) ([]string, error)
	RefreshIndex(ctx context.Context) error
}

// Runner executes the conversion pipeline for one source file.
type Runner interface {
	Run(ctx context.Context, sourcePath, outputDir string, onProgress pipeline.ProgressFunc) (pipeline.Result, error)
}

// Indexer registers a finished paper with retrieval.
type Indexer interface {
	Register(ctx context.Context, paperID, vectorDir string) error
}

// Journal persists terminal outcomes.
type Journal interface {
	Record(ctx context.Context, job queue.Job) (queue.Outcome, error)
}

// stageLister and healthChecker are optional Runner capabilities.
type stageLister interface {
	Stages() []string
}

type healthChecker interface {
	HealthCheck(ctx context.Context) []stage.Health
}

// Options configures an Orchestrator.
type Options struct {
	OutputDir   string
	RecentLimit int
	FailedLimit int
	StartPaused bool
	Indexer     Indexer
	Journal     Journal
}

// Orchestrator owns the pending queue and drives a single pipeline worker.
type Orchestrator struct {
	library     Library
	runner      Runner
	indexer     Indexer
	journal     Journal
	logger      *slog.Logger
	outputDir   string
	recentLimit int
	failedLimit int

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu       sync.Mutex
	pending  queue.Pending
	active   *queue.Job
	paused   bool
	progress queue.Progress
	recent   []queue.Job
	// failed keeps the terminal job of every paper held back from scans so a
	// retry still knows its source after it leaves recent.
	failed map[string]queue.Job
	cancel context.CancelFunc
	// running counts live runner goroutines, including cancelled attempts
	// that have not returned yet.
	running int
	closed  bool

	subscribers map[int]chan Event
	nextSub     int
}

// New constructs an orchestrator. Nothing runs until a job is queued.
func New(library Library, runner Runner, logger *slog.Logger, opts Options) *Orchestrator {
	limit := opts.RecentLimit
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	failedLimit := opts.FailedLimit
	if failedLimit <= 0 {
		failedLimit = DefaultFailedLimit
	}
	logger = logging.NewComponentLogger(logger, "orchestrator")
	indexer := opts.Indexer
	if indexer == nil {
		indexer = NewLogIndexer(logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		library:     library,
		runner:      runner,
		indexer:     indexer,
		journal:     opts.Journal,
		logger:      logger,
		outputDir:   opts.OutputDir,
		recentLimit: limit,
		failedLimit: failedLimit,
		baseCtx:     ctx,
		baseCancel:  cancel,
		paused:      opts.StartPaused,
		failed:      make(map[string]queue.Job),
		subscribers: make(map[int]chan Event),
	}
}

// OutputDir returns the library root the runner writes into.
func (o *Orchestrator) OutputDir() string { return o.outputDir }

func (o *Orchestrator) stageTotal() int {
	if lister, ok := o.runner.(stageLister); ok {
		return len(lister.Stages())
	}
	return 0
}

// Close cancels any running attempt, waits for the worker and closes
// subscriber channels. The cancelled job is left pending.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if o.active != nil {
		o.requeueActiveLocked()
	}
	o.mu.Unlock()

	o.baseCancel()
	o.wg.Wait()

	o.mu.Lock()
	for id, ch := range o.subscribers {
		close(ch)
		delete(o.subscribers, id)
	}
	o.mu.Unlock()
}
