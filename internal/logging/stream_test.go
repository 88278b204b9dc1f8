package logging

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestStreamHandlerCarriesJobFields(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(io.Discard, nil)
	logger := slog.New(newStreamHandler(base, hub)).
		With(slog.String(FieldComponent, "workflow")).
		With(slog.String(FieldJobID, "attention"))

	logger.Info("stage started", slog.String(FieldStage, "translate"), slog.String("extra", "value"))

	events, next := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.JobID != "attention" || evt.Stage != "translate" || evt.Component != "workflow" {
		t.Fatalf("unexpected event fields: %+v", evt)
	}
	if evt.Fields["extra"] != "value" || evt.Level != "INFO" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if next != evt.Sequence {
		t.Fatalf("next sequence = %d, want %d", next, evt.Sequence)
	}
}

func TestStreamHandlerCallSiteOverridesWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	logger := slog.New(newStreamHandler(slog.NewTextHandler(io.Discard, nil), hub)).With(slog.String(FieldStage, "original"))

	logger.Info("message", slog.String(FieldStage, "overridden"))

	events, _ := hub.Tail(10)
	if len(events) != 1 || events[0].Stage != "overridden" {
		t.Fatalf("expected overridden stage, got %+v", events)
	}
}

func TestStreamHandlerGroupsPrefixKeys(t *testing.T) {
	hub := NewStreamHub(10)
	logger := slog.New(newStreamHandler(slog.NewTextHandler(io.Discard, nil), hub)).WithGroup("llm")

	logger.Info("request", slog.Int("status", 429))

	events, _ := hub.Tail(1)
	if len(events) != 1 || events[0].Fields["llm.status"] != "429" {
		t.Fatalf("expected grouped key, got %+v", events)
	}
}

func TestStreamDetailsHideInternalKeys(t *testing.T) {
	hub := NewStreamHub(10)
	logger := slog.New(newStreamHandler(slog.NewTextHandler(io.Discard, nil), hub))

	logger.Warn("paper failed",
		slog.String("source_path", "/data/a.pdf"),
		slog.String(FieldAttempt, "3"),
		slog.String("error", "translator exited 1"),
		slog.String(FieldEventType, "job_failed"),
	)

	events, _ := hub.Tail(1)
	details := events[0].Details
	if len(details) != 2 {
		t.Fatalf("expected 2 visible details, got %+v", details)
	}
	if details[0].Label != "Event" || details[1].Label != "Error" {
		t.Fatalf("details not ranked: %+v", details)
	}
	if events[0].Fields["source_path"] != "/data/a.pdf" {
		t.Fatalf("hidden keys must stay in Fields: %+v", events[0].Fields)
	}
}

func TestStreamHandlerNilHub(t *testing.T) {
	base := slog.NewTextHandler(io.Discard, nil)
	if handler := newStreamHandler(base, nil); handler != base {
		t.Fatal("expected base handler when hub is nil")
	}
}

func TestStreamHubEvictsOldest(t *testing.T) {
	hub := NewStreamHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish(LogEvent{Message: "m"})
	}
	if first := hub.FirstSequence(); first != 3 {
		t.Fatalf("FirstSequence = %d, want 3", first)
	}
	events, next, err := hub.Fetch(context.Background(), 3, 10, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 2 || next != 5 || events[0].Sequence != 4 {
		t.Fatalf("Fetch returned %+v next=%d", events, next)
	}
	tail, _ := hub.Tail(2)
	if len(tail) != 2 || tail[1].Sequence != 5 {
		t.Fatalf("Tail returned %+v", tail)
	}
}

func TestStreamHubFetchWakesOnPublish(t *testing.T) {
	hub := NewStreamHub(10)
	done := make(chan []LogEvent, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 0, 10, true)
		done <- events
	}()
	time.Sleep(20 * time.Millisecond)
	hub.Publish(LogEvent{Message: "late"})

	select {
	case events := <-done:
		if len(events) != 1 || events[0].Message != "late" {
			t.Fatalf("unexpected events %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake after publish")
	}
}

func TestStreamHubFetchWaitHonoursContext(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := hub.Fetch(ctx, 0, 10, true); err == nil {
		t.Fatal("expected context error while waiting on an empty hub")
	}
}
