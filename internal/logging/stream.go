package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LogEvent is a structured log line retained by a StreamHub.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	JobID         string            `json:"job_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
	Details       []DetailField     `json:"details,omitempty"`
}

// StreamHub keeps the most recent log events in a ring buffer so the daemon
// API can serve tails and long-poll followers. Sequence numbers start at 1
// and never repeat.
type StreamHub struct {
	mu    sync.Mutex
	ring  []LogEvent
	head  int // index of the oldest event
	size  int
	seq   uint64
	ready chan struct{} // closed and replaced on every publish
}

// NewStreamHub constructs a hub retaining up to capacity events (512 when
// capacity is not positive).
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	return &StreamHub{ring: make([]LogEvent, capacity), ready: make(chan struct{})}
}

// Publish assigns the next sequence number to evt and retains it, evicting the
// oldest event when full.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	evt.Sequence = h.seq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if h.size == len(h.ring) {
		h.ring[h.head] = evt
		h.head = (h.head + 1) % len(h.ring)
	} else {
		h.ring[(h.head+h.size)%len(h.ring)] = evt
		h.size++
	}
	close(h.ready)
	h.ready = make(chan struct{})
}

// Fetch returns up to limit events newer than since plus the latest sequence
// number. With wait set and nothing new, it blocks until an event arrives or
// ctx ends, returning ctx's error in the latter case.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	for {
		h.mu.Lock()
		events := h.collectLocked(since, limit)
		next, ready := h.seq, h.ready
		h.mu.Unlock()

		if len(events) > 0 || !wait {
			return events, next, nil
		}
		select {
		case <-ctx.Done():
			return nil, next, ctx.Err()
		case <-ready:
		}
	}
}

// Tail returns the newest limit events and the latest sequence number.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > h.size {
		limit = h.size
	}
	out := make([]LogEvent, 0, limit)
	for i := h.size - limit; i < h.size; i++ {
		out = append(out, h.at(i))
	}
	return out, h.seq
}

// FirstSequence reports the oldest retained sequence number, or the latest
// one when the hub is empty.
func (h *StreamHub) FirstSequence() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.size == 0 {
		return h.seq
	}
	return h.ring[h.head].Sequence
}

func (h *StreamHub) at(i int) LogEvent {
	return h.ring[(h.head+i)%len(h.ring)]
}

func (h *StreamHub) collectLocked(since uint64, limit int) []LogEvent {
	if limit <= 0 || limit > len(h.ring) {
		limit = len(h.ring)
	}
	var out []LogEvent
	for i := 0; i < h.size && len(out) < limit; i++ {
		if evt := h.at(i); evt.Sequence > since {
			out = append(out, evt)
		}
	}
	return out
}

// streamHandler copies every record into a StreamHub before passing it on.
type streamHandler struct {
	next  slog.Handler
	hub   *StreamHub
	scope scope
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	h.hub.Publish(h.event(record))
	return h.next.Handle(ctx, record)
}

func (h *streamHandler) event(record slog.Record) LogEvent {
	e := h.scope.entry(record)
	evt := LogEvent{
		Timestamp:     e.time,
		Level:         levelName(e.level),
		Message:       e.message,
		Component:     e.component,
		Stage:         e.stage,
		JobID:         e.jobID,
		CorrelationID: e.correlation,
	}
	if len(e.fields) > 0 {
		evt.Fields = make(map[string]string, len(e.fields))
		for _, f := range e.fields {
			evt.Fields[f.key] = attrString(f.value)
		}
		evt.Details, _ = details(e.fields, streamDetailLimit, false)
	}
	return evt
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &streamHandler{next: h.next.WithAttrs(attrs), hub: h.hub, scope: h.scope.withAttrs(attrs)}
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	return &streamHandler{next: h.next.WithGroup(name), hub: h.hub, scope: h.scope.withGroup(name)}
}
