// Package memory provides an in-memory Notifier used by tests to assert on
// emitted events.
package memory

import (
	"context"
	"sync"

	"pact/internal/notify"
)

type Recorder struct {
	mu       sync.Mutex
	messages []notify.Message
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of everything published so far.
func (r *Recorder) Messages() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message{}, r.messages...)
}

// Events returns just the event names, in publish order.
func (r *Recorder) Events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]notify.Event, len(r.messages))
	for i, m := range r.messages {
		events[i] = m.Event
	}
	return events
}
