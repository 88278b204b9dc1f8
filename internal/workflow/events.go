package workflow

import (
	"time"

	"lectern/internal/queue"
)

// EventType names an orchestrator notification.
type EventType string

const (
	EventJobQueued    EventType = "job_queued"
	EventJobStarted   EventType = "job_started"
	EventJobProgress  EventType = "job_progress"
	EventJobCompleted EventType = "job_completed"
	EventJobFailed    EventType = "job_failed"
	EventJobCancelled EventType = "job_cancelled"
	EventJobRemoved   EventType = "job_removed"
	EventQueuePaused  EventType = "queue_paused"
	EventQueueResumed EventType = "queue_resumed"
)

// Event is delivered to subscribers.
type Event struct {
	Type     EventType      `json:"type"`
	Time     time.Time      `json:"time"`
	Job      *queue.Job     `json:"job,omitempty"`
	Progress queue.Progress `json:"progress"`
}

// Subscribe registers an observer. Events are dropped for a subscriber whose
// buffer is full. The returned func unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subscribers[id] = ch
	o.mu.Unlock()

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if existing, ok := o.subscribers[id]; ok {
			close(existing)
			delete(o.subscribers, id)
		}
	}
}

func (o *Orchestrator) publishLocked(eventType EventType, job *queue.Job) {
	if len(o.subscribers) == 0 {
		return
	}
	evt := Event{Type: eventType, Time: time.Now().UTC(), Progress: o.progress}
	if job != nil {
		cp := job.Clone()
		evt.Job = &cp
	}
	for _, ch := range o.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}
