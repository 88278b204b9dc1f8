package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"lectern/internal/pipeline"
	"lectern/internal/services"
)

func TestSplitChunks(t *testing.T) {
	text := "aaaa\n\nbbbb\n\ncccccccccc\n\ndd"
	got := pipeline.SplitChunks(text, 10)
	want := []string{"aaaa\n\nbbbb", "cccccccccc", "dd"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("SplitChunks = %q, want %q", got, want)
	}
	if got := pipeline.SplitChunks(text, 0); len(got) != 1 {
		t.Fatalf("limit 0 should return one chunk, got %d", len(got))
	}
	if got := pipeline.SplitChunks("   ", 10); got != nil {
		t.Fatalf("blank text should yield nil, got %q", got)
	}
}

func TestCommandTranslatorRunsTemplate(t *testing.T) {
	translator := &pipeline.CommandTranslator{
		Argv: []string{"sh", "-c", `sed "s/Hello/你好/" "$1" > "$2"; echo "$3" >> "$2"`, "translate", "{input}", "{output}", "{to}"},
	}
	out, err := translator.Translate(context.Background(), "Hello world\n", "en", "zh")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out != "你好 world\nzh\n" {
		t.Fatalf("output = %q", out)
	}
}

func TestCommandTranslatorFailure(t *testing.T) {
	translator := &pipeline.CommandTranslator{
		Argv: []string{"sh", "-c", `echo "model unavailable" >&2; exit 3`},
	}
	_, err := translator.Translate(context.Background(), "Hello", "en", "zh")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("stderr not surfaced: %v", err)
	}
}

func TestCommandTranslatorMissingOutput(t *testing.T) {
	translator := &pipeline.CommandTranslator{Argv: []string{"true"}}
	if _, err := translator.Translate(context.Background(), "Hello", "en", "zh"); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
}

func TestCommandTranslatorTimeout(t *testing.T) {
	translator := &pipeline.CommandTranslator{
		Argv:    []string{"sleep", "5"},
		Timeout: 50 * time.Millisecond,
	}
	_, err := translator.Translate(context.Background(), "Hello", "en", "zh")
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCommandTranslatorCancellation(t *testing.T) {
	translator := &pipeline.CommandTranslator{Argv: []string{"sleep", "5"}}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := translator.Translate(ctx, "Hello", "en", "zh")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
