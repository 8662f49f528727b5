package jobs

import (
	"sync"
	"time"

	"video-upscaler/internal/domain"
)

// EventType classifies messages emitted by the flow and export pipeline.
type EventType string

const (
	EventTypeStatus     EventType = "status"
	EventTypeProgress   EventType = "progress"
	EventTypeLog        EventType = "log"
	EventTypeResult     EventType = "result"
	EventTypeError      EventType = "error"
	EventTypeStep       EventType = "step"
	EventTypeProcessing EventType = "processing"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq          int64                   `json:"seq"`
	Timestamp    time.Time               `json:"timestamp"`
	JobID        string                  `json:"jobId,omitempty"`
	Type         EventType               `json:"type"`
	Status       domain.ExportStatus     `json:"status,omitempty"`
	Step         domain.AppStep          `json:"step,omitempty"`
	Progress     int                     `json:"progress,omitempty"`
	Processing   *domain.ProcessingState `json:"processing,omitempty"`
	Message      string                  `json:"message,omitempty"`
	Command      string                  `json:"command,omitempty"`
	ArtifactName string                  `json:"artifactName,omitempty"`
	ArtifactPath string                  `json:"artifactPath,omitempty"`
	MimeType     string                  `json:"mimeType,omitempty"`
	Fallback     bool                    `json:"fallback,omitempty"`
}

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu          sync.RWMutex
	nextSeq     int64
	maxEvents   int
	events      []Event
	subscribers map[int]func(Event)
	nextSub     int
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents:   maxEvents,
		events:      make([]Event, 0, maxEvents),
		subscribers: make(map[int]func(Event)),
	}
}

// Publish appends one event and assigns sequence and timestamp. Subscribers
// are called synchronously after the event is stored.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	subs := make([]func(Event), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
	return event
}

// Subscribe registers fn for every future event and returns an unsubscribe
// function.
func (b *EventBus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	b.subscribers[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
