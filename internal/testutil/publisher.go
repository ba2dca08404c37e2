package testutil

import (
	"sync"

	"github.com/gensart-projs/openai-like-api/internal/domain"
)

// Event is one publication captured by Recorder.
type Event struct {
	Topic   string
	Name    domain.EventName
	Payload interface{}
}

// Recorder captures published events.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) PublishToUser(ownerID string, event domain.EventName, payload interface{}) {
	r.record("user:"+ownerID, event, payload)
}

func (r *Recorder) PublishToSession(sessionID string, event domain.EventName, payload interface{}) {
	r.record("session:"+sessionID, event, payload)
}

func (r *Recorder) record(topic string, event domain.EventName, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Topic: topic, Name: event, Payload: payload})
}

// Events returns a copy of the captured events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Named returns the captured events with the given name.
func (r *Recorder) Named(name domain.EventName) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
