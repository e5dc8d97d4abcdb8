package events

import (
	"context"
	"sync"
)

// Local delivers published events straight to in-process subscribers. It is
// used when no Kafka brokers are configured.
type Local struct {
	mu       sync.RWMutex
	handlers []func(Event)
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Subscribe(handler func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, handler)
}

func (l *Local) Publish(_ context.Context, event Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, h := range l.handlers {
		h(event)
	}
	return nil
}

// Recorder keeps every published event. Test helper.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, event)
	return nil
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]EventType, 0, len(r.Events))
	for _, e := range r.Events {
		types = append(types, e.Type)
	}
	return types
}
