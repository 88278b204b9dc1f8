package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"lectern/internal/logging"
	"lectern/internal/pipeline"
	"lectern/internal/queue"
	"lectern/internal/services"
	"lectern/internal/workflow"
)

type fakeLibrary struct {
	mu        sync.Mutex
	missing   map[string][]string
	refreshes int
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{missing: make(map[string][]string)}
}

func (l *fakeLibrary) Known(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.missing[id]
	return ok, nil
}

func (l *fakeLibrary) MissingArtifacts(_ context.Context, id string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.missing[id]), nil
}

func (l *fakeLibrary) RefreshIndex(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshes++
	return nil
}

func (l *fakeLibrary) refreshCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refreshes
}

// scriptedRunner reports two checkpoints and then, when blocking, waits for
// the gate or cancellation.
type scriptedRunner struct {
	mu           sync.Mutex
	block        bool
	lateProgress bool
	failures     map[string]error
	calls        []string

	gate     chan struct{}
	started  chan string
	returned chan string
}

func newScriptedRunner(block bool) *scriptedRunner {
	return &scriptedRunner{
		block:    block,
		failures: make(map[string]error),
		gate:     make(chan struct{}),
		started:  make(chan string, 64),
		returned: make(chan string, 64),
	}
}

func (r *scriptedRunner) Stages() []string { return []string{"extract", "translate"} }

func (r *scriptedRunner) setBlock(block bool) {
	r.mu.Lock()
	r.block = block
	r.mu.Unlock()
}

func (r *scriptedRunner) callLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func (r *scriptedRunner) Run(ctx context.Context, _ string, _ string, onProgress pipeline.ProgressFunc) (pipeline.Result, error) {
	id, _ := services.JobIDFromContext(ctx)
	r.mu.Lock()
	r.calls = append(r.calls, id)
	block, late, failure := r.block, r.lateProgress, r.failures[id]
	r.mu.Unlock()

	r.started <- id
	defer func() { r.returned <- id }()

	onProgress("extract", 0, 2, 25)
	onProgress("translate", 1, 2, 60)
	if block {
		select {
		case <-ctx.Done():
			if late {
				onProgress("translate", 1, 2, 99)
			}
			return pipeline.Result{}, ctx.Err()
		case <-r.gate:
		}
	}
	if failure != nil {
		return pipeline.Result{}, failure
	}
	return pipeline.Result{PaperID: id, Produced: []string{queue.ArtifactArticleEN}}, nil
}

type recordingIndexer struct {
	mu  sync.Mutex
	ids []string
}

func (i *recordingIndexer) Register(_ context.Context, paperID, _ string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ids = append(i.ids, paperID)
	return nil
}

func (i *recordingIndexer) registered() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.ids)
}

func newOrchestrator(t *testing.T, lib workflow.Library, runner workflow.Runner, opts workflow.Options) *workflow.Orchestrator {
	t.Helper()
	if opts.OutputDir == "" {
		opts.OutputDir = t.TempDir()
	}
	if opts.Indexer == nil {
		opts.Indexer = &recordingIndexer{}
	}
	orch := workflow.New(lib, runner, logging.NewNop(), opts)
	t.Cleanup(orch.Close)
	return orch
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for runner")
		return ""
	}
}

func nextEvent(t *testing.T, events <-chan workflow.Event, want workflow.EventType) workflow.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed before %s", want)
			}
			if evt.Type == want {
				return evt
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func pendingIDs(jobs []queue.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job.ID)
	}
	return out
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRepeatedUploadKeepsSingleEntry(t *testing.T) {
	orch := newOrchestrator(t, newFakeLibrary(), newScriptedRunner(true), workflow.Options{StartPaused: true})

	for _, id := range []string{"a", "b", "a"} {
		if _, err := orch.EnqueueUpload(id, "/data/"+id+".pdf"); err != nil {
			t.Fatalf("EnqueueUpload(%s): %v", id, err)
		}
	}
	last, err := orch.EnqueueUpload("a", "/data/a-v2.pdf")
	if err != nil {
		t.Fatal(err)
	}

	pending := orch.Pending()
	if got := pendingIDs(pending); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("pending = %v", got)
	}
	if pending[0].Priority != 4 || pending[0].SourcePath != "/data/a-v2.pdf" || last.Priority != 4 {
		t.Fatalf("latest upload should win, got %+v", pending[0])
	}
	if pending[0].Priority <= pending[1].Priority {
		t.Fatalf("priority not boosted: %d vs %d", pending[0].Priority, pending[1].Priority)
	}
	if pending[0].Status != queue.StatusPending || !slices.Equal(pending[0].MissingSteps, []string{queue.ArtifactAll}) {
		t.Fatalf("unexpected entry %+v", pending[0])
	}

	if _, err := orch.EnqueueUpload("../escape", "/data/x.pdf"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for bad id, got %v", err)
	}
}

func TestUploadOfRunningJobUpdatesInPlace(t *testing.T) {
	runner := newScriptedRunner(true)
	orch := newOrchestrator(t, newFakeLibrary(), runner, workflow.Options{})

	if _, err := orch.EnqueueUpload("p1", "/data/p1.pdf"); err != nil {
		t.Fatal(err)
	}
	receive(t, runner.started)
	if _, err := orch.EnqueueUpload("p2", "/data/p2.pdf"); err != nil {
		t.Fatal(err)
	}
	job, err := orch.EnqueueUpload("p1", "/data/p1-new.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != queue.StatusProcessing || job.SourcePath != "/data/p1-new.pdf" {
		t.Fatalf("running entry not updated in place: %+v", job)
	}
	if got := pendingIDs(orch.Pending()); !slices.Equal(got, []string{"p1", "p2"}) {
		t.Fatalf("pending = %v", got)
	}
	if calls := runner.callLog(); len(calls) != 1 {
		t.Fatalf("running attempt restarted: %v", calls)
	}
}

func TestPauseResumeRestartsActiveJob(t *testing.T) {
	runner := newScriptedRunner(true)
	orch := newOrchestrator(t, newFakeLibrary(), runner, workflow.Options{})
	events, unsubscribe := orch.Subscribe(256)
	defer unsubscribe()

	if _, err := orch.EnqueueUpload("p1", "/data/p1.pdf"); err != nil {
		t.Fatal(err)
	}
	first := nextEvent(t, events, workflow.EventJobStarted)
	receive(t, runner.started)
	waitFor(t, "second checkpoint", func() bool { return orch.ProgressSnapshot().Index == 1 })

	orch.Pause()
	if snap := orch.ProgressSnapshot(); !snap.IsZero() {
		t.Fatalf("progress not reset on pause: %+v", snap)
	}
	pending := orch.Pending()
	if len(pending) != 1 || pending[0].ID != "p1" || pending[0].Status != queue.StatusPending {
		t.Fatalf("paused job should be pending at head: %+v", pending)
	}
	receive(t, runner.returned)
	if orch.DispatchNext() {
		t.Fatal("dispatch while paused")
	}

	orch.Resume()
	second := nextEvent(t, events, workflow.EventJobStarted)
	if second.Job.ID != "p1" {
		t.Fatalf("resumed job = %s", second.Job.ID)
	}
	if second.Job.Attempt == first.Job.Attempt {
		t.Fatal("resume should start a new attempt")
	}
	if second.Progress.Index != 0 || second.Progress.Stage != "starting" || second.Progress.Percent != 0 {
		t.Fatalf("restarted progress = %+v", second.Progress)
	}
	if second.Progress.Total != 2 {
		t.Fatalf("stage total = %d", second.Progress.Total)
	}
	receive(t, runner.started)
	runner.gate <- struct{}{}
	nextEvent(t, events, workflow.EventJobCompleted)
	if calls := runner.callLog(); !slices.Equal(calls, []string{"p1", "p1"}) {
		t.Fatalf("runner calls = %v", calls)
	}
}

func TestStaleProgressAfterPauseIsDropped(t *testing.T) {
	runner := newScriptedRunner(true)
	runner.lateProgress = true
	orch := newOrchestrator(t, newFakeLibrary(), runner, workflow.Options{})

	if _, err := orch.EnqueueUpload("p1", "/data/p1.pdf"); err != nil {
		t.Fatal(err)
	}
	receive(t, runner.started)
	orch.Pause()
	receive(t, runner.returned)
	waitFor(t, "worker idle", func() bool { return orch.Status(context.Background()).Active == nil })
	if snap := orch.ProgressSnapshot(); !snap.IsZero() {
		t.Fatalf("late callback leaked into progress: %+v", snap)
	}
	if recent := orch.Recent(); len(recent) != 0 {
		t.Fatalf("cancelled attempt must not be terminal: %+v", recent)
	}
}

func TestScanIsIdempotentAndOrdersByMissingSteps(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.pdf", "b.pdf", "c.PDF", "d.pdf", "notes.txt")
	lib := newFakeLibrary()
	lib.missing["b"] = []string{queue.ArtifactArticleZH, queue.ArtifactRagTree}
	lib.missing["c"] = nil
	lib.missing["d"] = []string{queue.ArtifactRagTree}
	orch := newOrchestrator(t, lib, newScriptedRunner(true), workflow.Options{StartPaused: true})

	result, err := orch.EnqueueFromScan(context.Background(), dir)
	if err != nil {
		t.Fatalf("EnqueueFromScan: %v", err)
	}
	if !slices.Equal(result.Queued, []string{"a"}) || !slices.Equal(result.Incomplete, []string{"b", "d"}) {
		t.Fatalf("scan result = %+v", result)
	}
	first := orch.Pending()
	if got := pendingIDs(first); !slices.Equal(got, []string{"a", "d", "b"}) {
		t.Fatalf("pending = %v", got)
	}
	if first[2].Status != queue.StatusIncomplete {
		t.Fatalf("b should be incomplete: %+v", first[2])
	}

	again, err := orch.EnqueueFromScan(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Queued)+len(again.Incomplete) != 0 {
		t.Fatalf("second scan queued more work: %+v", again)
	}
	second := orch.Pending()
	if len(first) != len(second) {
		t.Fatalf("pending changed: %v vs %v", pendingIDs(first), pendingIDs(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Status != second[i].Status || !slices.Equal(first[i].MissingSteps, second[i].MissingSteps) {
			t.Fatalf("entry %d changed: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestScanKeepsUploadAheadAndRunningHeadPinned(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.pdf", "b.pdf")
	runner := newScriptedRunner(true)
	orch := newOrchestrator(t, newFakeLibrary(), runner, workflow.Options{})

	if _, err := orch.EnqueueUpload("z", "/uploads/z.pdf"); err != nil {
		t.Fatal(err)
	}
	receive(t, runner.started)
	if _, err := orch.EnqueueUpload("y", "/uploads/y.pdf"); err != nil {
		t.Fatal(err)
	}
	if _, err := orch.EnqueueFromScan(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	if got := pendingIDs(orch.Pending()); !slices.Equal(got, []string{"z", "y", "a", "b"}) {
		t.Fatalf("pending = %v", got)
	}
}

func TestUploadsThenPauseRunsOneJob(t *testing.T) {
	runner := newScriptedRunner(true)
	orch := newOrchestrator(t, newFakeLibrary(), runner, workflow.Options{})
	events, unsubscribe := orch.Subscribe(256)
	defer unsubscribe()

	if _, err := orch.EnqueueUpload("p1", "/data/p1.pdf"); err != nil {
		t.Fatal(err)
	}
	if _, err := orch.EnqueueUpload("p2", "/data/p2.pdf"); err != nil {
		t.Fatal(err)
	}
	orch.Pause()

	started := 0
	var startedID string
drain:
	for {
		select {
		case evt := <-events:
			if evt.Type == workflow.EventJobStarted {
				started++
				startedID = evt.Job.ID
			}
			if evt.Type == workflow.EventQueuePaused {
				break drain
			}
		case <-time.After(5 * time.Second):
			t.Fatal("no pause event")
		}
	}
	if started != 1 || startedID != "p1" {
		t.Fatalf("expected exactly p1 to start before pause, got %d (%s)", started, startedID)
	}
	for _, job := range orch.Pending() {
		if job.Status != queue.StatusPending {
			t.Fatalf("%s should be pending after pause, got %s", job.ID, job.Status)
		}
	}

	runner.setBlock(false)
	orch.Resume()
	waitFor(t, "both jobs terminal", func() bool { return len(orch.Recent()) == 2 })
	recent := orch.Recent()
	if recent[0].ID != "p2" || recent[1].ID != "p1" {
		t.Fatalf("completion order = %v", pendingIDs(recent))
	}
	for _, job := range recent {
		if job.Status != queue.StatusCompleted {
			t.Fatalf("%s status = %s", job.ID, job.Status)
		}
	}
	if len(orch.Pending()) != 0 {
		t.Fatal("queue should be empty")
	}
}

func TestFailureIsRecordedAndQueueContinues(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "bad.pdf", "good.pdf")
	runner := newScriptedRunner(false)
	runner.failures["bad"] = services.Wrap(services.ErrPipeline, "translate", "run", "translator crashed", nil)
	lib := newFakeLibrary()
	indexer := &recordingIndexer{}
	journal, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { journal.Close() })
	orch := newOrchestrator(t, lib, runner, workflow.Options{Indexer: indexer, Journal: journal})

	if _, err := orch.EnqueueFromScan(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "both jobs terminal", func() bool {
		return len(orch.Recent()) == 2 && lib.refreshCount() == 1 && len(indexer.registered()) == 1
	})

	recent := orch.Recent()
	byID := map[string]queue.Job{recent[0].ID: recent[0], recent[1].ID: recent[1]}
	if byID["bad"].Status != queue.StatusFailed || byID["bad"].ErrorMessage == "" {
		t.Fatalf("bad = %+v", byID["bad"])
	}
	if byID["good"].Status != queue.StatusCompleted {
		t.Fatalf("good = %+v", byID["good"])
	}
	if got := indexer.registered(); !slices.Equal(got, []string{"good"}) {
		t.Fatalf("indexer saw %v", got)
	}
	if lib.refreshCount() != 1 {
		t.Fatalf("refreshes = %d", lib.refreshCount())
	}
	outcomes, err := journal.ForJob(context.Background(), "bad")
	if err != nil || len(outcomes) != 1 || outcomes[0].Status != queue.StatusFailed {
		t.Fatalf("journal = %+v, %v", outcomes, err)
	}

	lib.mu.Lock()
	lib.missing["good"] = nil
	lib.mu.Unlock()

	// failed papers stay out of scans until retried
	result, err := orch.EnqueueFromScan(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Queued) != 0 {
		t.Fatalf("failed paper rescanned: %+v", result)
	}
	if got := orch.FailedIDs(); !slices.Equal(got, []string{"bad"}) {
		t.Fatalf("failed ids = %v", got)
	}

	runner.mu.Lock()
	delete(runner.failures, "bad")
	runner.mu.Unlock()
	if _, err := orch.RetryFailed("bad"); err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	waitFor(t, "retry completes", func() bool {
		r := orch.Recent()
		return len(r) == 3 && r[0].Status == queue.StatusCompleted
	})
	if _, err := orch.RetryFailed("bad"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("second retry should be not found, got %v", err)
	}
}

func TestRetryFailedAfterLeavingRecent(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "bad.pdf", "good.pdf")
	runner := newScriptedRunner(false)
	runner.failures["bad"] = services.Wrap(services.ErrPipeline, "translate", "run", "translator crashed", nil)
	lib := newFakeLibrary()
	orch := newOrchestrator(t, lib, runner, workflow.Options{RecentLimit: 1})

	if _, err := orch.EnqueueFromScan(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "good completes after bad", func() bool {
		r := orch.Recent()
		return len(orch.Pending()) == 0 && len(r) == 1 && r[0].ID == "good"
	})
	if got := orch.FailedIDs(); !slices.Equal(got, []string{"bad"}) {
		t.Fatalf("failed ids = %v", got)
	}

	runner.mu.Lock()
	delete(runner.failures, "bad")
	runner.mu.Unlock()
	job, err := orch.RetryFailed("bad")
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if job.SourcePath != filepath.Join(dir, "bad.pdf") {
		t.Fatalf("retried source = %q", job.SourcePath)
	}
	waitFor(t, "retry completes", func() bool {
		r := orch.Recent()
		return len(r) == 1 && r[0].ID == "bad" && r[0].Status == queue.StatusCompleted
	})
	if got := orch.FailedIDs(); len(got) != 0 {
		t.Fatalf("failed ids after retry = %v", got)
	}
}

func TestFailedLimitReleasesOldestToScans(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "bad1.pdf", "bad2.pdf")
	runner := newScriptedRunner(false)
	runner.failures["bad1"] = services.Wrap(services.ErrPipeline, "extract", "run", "garbage", nil)
	runner.failures["bad2"] = services.Wrap(services.ErrPipeline, "extract", "run", "garbage", nil)
	orch := newOrchestrator(t, newFakeLibrary(), runner, workflow.Options{FailedLimit: 1})

	if _, err := orch.EnqueueFromScan(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "both jobs fail", func() bool { return len(orch.Recent()) == 2 })
	if got := orch.FailedIDs(); !slices.Equal(got, []string{"bad2"}) {
		t.Fatalf("failed ids = %v, want only the newest failure", got)
	}

	orch.Pause()
	result, err := orch.EnqueueFromScan(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(result.Queued, []string{"bad1"}) {
		t.Fatalf("rescan queued %v, want [bad1]", result.Queued)
	}
}

func TestRemove(t *testing.T) {
	runner := newScriptedRunner(true)
	orch := newOrchestrator(t, newFakeLibrary(), runner, workflow.Options{})
	if _, err := orch.EnqueueUpload("p1", "/data/p1.pdf"); err != nil {
		t.Fatal(err)
	}
	receive(t, runner.started)
	if _, err := orch.EnqueueUpload("p2", "/data/p2.pdf"); err != nil {
		t.Fatal(err)
	}
	if err := orch.Remove("p1"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("removing running job: %v", err)
	}
	if err := orch.Remove("p2"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := orch.Remove("p2"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("removing twice: %v", err)
	}
	if got := pendingIDs(orch.ListQueue()); !slices.Equal(got, []string{"p1"}) {
		t.Fatalf("queue = %v", got)
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	orch := newOrchestrator(t, newFakeLibrary(), newScriptedRunner(true), workflow.Options{StartPaused: true})
	events, unsubscribe := orch.Subscribe(1)
	for i := 0; i < 20; i++ {
		if _, err := orch.EnqueueUpload("p"+string(rune('a'+i)), "/data/x.pdf"); err != nil {
			t.Fatal(err)
		}
	}
	if len(events) != 1 {
		t.Fatalf("buffered events = %d", len(events))
	}
	unsubscribe()
	unsubscribe()
	for range events {
	}
}

func TestCloseCancelsRunningJob(t *testing.T) {
	runner := newScriptedRunner(true)
	orch := workflow.New(newFakeLibrary(), runner, logging.NewNop(), workflow.Options{OutputDir: t.TempDir()})
	events, _ := orch.Subscribe(16)
	if _, err := orch.EnqueueUpload("p1", "/data/p1.pdf"); err != nil {
		t.Fatal(err)
	}
	receive(t, runner.started)
	orch.Close()
	receive(t, runner.returned)
	for range events {
	}
	if _, err := orch.EnqueueUpload("p2", "/data/p2.pdf"); err == nil {
		t.Fatal("upload after close should fail")
	}
}
