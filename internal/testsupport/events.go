package testsupport

import (
	"context"
	"sync"

	"syndicate/internal/events"
)

// EventRecorder captures published events in memory.
type EventRecorder struct {
	mu     sync.Mutex
	events []events.Event
	Err    error
}

// Publish records the event and returns Err.
func (r *EventRecorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.Err
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// Count returns how many events of type t were recorded.
func (r *EventRecorder) Count(t events.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
