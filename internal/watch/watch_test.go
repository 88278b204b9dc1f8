package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"lectern/internal/logging"
	"lectern/internal/watch"
)

func startWatcher(t *testing.T, dir string, debounce time.Duration) <-chan []string {
	t.Helper()
	bursts := make(chan []string, 8)
	w := watch.New(dir, debounce, func(_ context.Context, paths []string) {
		bursts <- paths
	}, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}
	return bursts
}

func TestBurstCoalescesPDFs(t *testing.T) {
	dir := t.TempDir()
	bursts := startWatcher(t, dir, 200*time.Millisecond)

	for _, name := range []string{"a.pdf", "B.PDF", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	seen := map[string]bool{}
	deadline := time.After(5 * time.Second)
	for len(seen) < 2 {
		select {
		case paths := <-bursts:
			for _, p := range paths {
				seen[filepath.Base(p)] = true
			}
		case <-deadline:
			t.Fatalf("bursts incomplete: %v", seen)
		}
	}
	if seen["notes.txt"] {
		t.Fatal("non-PDF reported")
	}
	if !seen["a.pdf"] || !seen["B.PDF"] {
		t.Fatalf("seen = %v", seen)
	}
}

func TestIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	bursts := startWatcher(t, dir, 50*time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case paths := <-bursts:
		t.Fatalf("unexpected burst %v", paths)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestBurstPathsAreSorted(t *testing.T) {
	dir := t.TempDir()
	bursts := startWatcher(t, dir, 300*time.Millisecond)
	for _, name := range []string{"c.pdf", "a.pdf", "b.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case paths := <-bursts:
		if !slices.IsSorted(paths) {
			t.Fatalf("paths not sorted: %v", paths)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no burst")
	}
}

func TestRunFailsForMissingDirectory(t *testing.T) {
	w := watch.New(filepath.Join(t.TempDir(), "missing"), 0, nil, logging.NewNop())
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
