// Package events provides the activity log of the lot: an append-only record
// of every guidance decision, reservation and classification. The log feeds
// the live dashboard, the operator insight and the durable stores.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a lot event.
type EventType string

const (
	EventTypeTargetAssigned        EventType = "TARGET_ASSIGNED"
	EventTypeTargetCleared         EventType = "TARGET_CLEARED"
	EventTypeGuidanceInstruction   EventType = "GUIDANCE_INSTRUCTION"
	EventTypeArrived               EventType = "ARRIVED"
	EventTypeNoSpotAvailable       EventType = "NO_SPOT_AVAILABLE"
	EventTypeSpotReserved          EventType = "SPOT_RESERVED"
	EventTypeSpotReleased          EventType = "SPOT_RELEASED"
	EventTypeClassificationApplied EventType = "CLASSIFICATION_APPLIED"
	EventTypeClassificationStale   EventType = "CLASSIFICATION_STALE"
	EventTypeClassificationFailed  EventType = "CLASSIFICATION_FAILED"
)

// LotEvent represents an immutable record of something that happened on the lot.
type LotEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	ActorID   string    `json:"actor_id"`            // Vehicle, operator or "classifier"
	TargetID  string    `json:"target_id,omitempty"` // Spot or upload affected (optional)
	Payload   any       `json:"payload,omitempty"`   // Event-specific data
}

// NewEvent stamps a fresh event with an ID and the current time.
func NewEvent(eventType EventType, actorID, targetID string, payload any) LotEvent {
	return LotEvent{
		ID:        GenerateEventID(),
		Timestamp: time.Now(),
		Type:      eventType,
		ActorID:   actorID,
		TargetID:  targetID,
		Payload:   payload,
	}
}

// EventPersister defines how an event is durably stored or forwarded.
type EventPersister interface {
	Append(event LotEvent) error
}

// DefaultQueueSize is the per-persister backlog used by NewEventLog.
const DefaultQueueSize = 1024

// EventLog is the in-memory append-only log of lot events. Appends are
// written through to every persister in the background. Each persister has a
// single writer fed by a queue, so it receives events in log order.
type EventLog struct {
	mu      sync.RWMutex
	events  []LotEvent
	onError func(LotEvent, error)

	// sendMu serialises append+enqueue so queue order matches log order.
	sendMu  sync.Mutex
	writers []*persistWriter
	pending sync.WaitGroup
	closed  bool
}

type persistWriter struct {
	persister EventPersister
	queue     chan LotEvent
	done      chan struct{}
}

// NewEventLog creates a new event log with optional persisters.
func NewEventLog(persisters ...EventPersister) *EventLog {
	return NewBufferedEventLog(DefaultQueueSize, persisters...)
}

// NewBufferedEventLog creates an event log whose persisters each buffer up to
// queueSize events. Append blocks while a persister's queue is full.
func NewBufferedEventLog(queueSize int, persisters ...EventPersister) *EventLog {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	el := &EventLog{
		events: make([]LotEvent, 0, 256),
	}
	for _, p := range persisters {
		w := &persistWriter{
			persister: p,
			queue:     make(chan LotEvent, queueSize),
			done:      make(chan struct{}),
		}
		el.writers = append(el.writers, w)
		go el.drain(w)
	}
	return el
}

func (el *EventLog) drain(w *persistWriter) {
	defer close(w.done)
	for e := range w.queue {
		if err := w.persister.Append(e); err != nil {
			el.mu.RLock()
			onError := el.onError
			el.mu.RUnlock()
			if onError != nil {
				onError(e, err)
			}
		}
		el.pending.Done()
	}
}

// OnPersistError installs a callback for failed background writes.
func (el *EventLog) OnPersistError(fn func(LotEvent, error)) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.onError = fn
}

// Append adds a new event to the log. Events are immutable once appended.
// After Close the event is still kept in memory but no longer persisted.
func (el *EventLog) Append(event LotEvent) {
	if event.ID == "" {
		event.ID = GenerateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	el.sendMu.Lock()
	defer el.sendMu.Unlock()

	el.mu.Lock()
	el.events = append(el.events, event)
	el.mu.Unlock()

	if el.closed {
		return
	}
	for _, w := range el.writers {
		el.pending.Add(1)
		w.queue <- event
	}
}

// Flush blocks until every event appended so far has been handed to all
// persisters.
func (el *EventLog) Flush() {
	el.pending.Wait()
}

// Close drains the persister queues and stops their writers.
func (el *EventLog) Close() {
	el.sendMu.Lock()
	if el.closed {
		el.sendMu.Unlock()
		return
	}
	el.closed = true
	for _, w := range el.writers {
		close(w.queue)
	}
	el.sendMu.Unlock()

	for _, w := range el.writers {
		<-w.done
	}
}

// Len returns the number of events.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// GetByActor returns all events performed by a specific actor.
func (el *EventLog) GetByActor(actorID string) []LotEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []LotEvent
	for _, e := range el.events {
		if e.ActorID == actorID {
			result = append(result, e)
		}
	}
	return result
}

// GetByType returns all events of one type.
func (el *EventLog) GetByType(t EventType) []LotEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []LotEvent
	for _, e := range el.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of the full history.
func (el *EventLog) Replay() []LotEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	out := make([]LotEvent, len(el.events))
	copy(out, el.events)
	return out
}

// Since returns the events appended after offset and the new offset. Pollers
// keep the returned offset for their next call.
func (el *EventLog) Since(offset int) ([]LotEvent, int) {
	el.mu.RLock()
	defer el.mu.RUnlock()
	if offset < 0 || offset > len(el.events) {
		offset = 0
	}
	out := make([]LotEvent, len(el.events)-offset)
	copy(out, el.events[offset:])
	return out, len(el.events)
}

// Recent returns up to n of the newest events, oldest first.
func (el *EventLog) Recent(n int) []LotEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	start := max(len(el.events)-n, 0)
	out := make([]LotEvent, len(el.events)-start)
	copy(out, el.events[start:])
	return out
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
