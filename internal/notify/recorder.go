package notify

import (
	"context"
	"sync"
)

// Recorder is a Sink that keeps events in memory. Used in tests and when no broker is configured.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 64)}
}

func (r *Recorder) Send(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Wait blocks until at least n events are recorded or ctx ends, and returns what was recorded.
func (r *Recorder) Wait(ctx context.Context, n int) []Event {
	for {
		if evs := r.Events(); len(evs) >= n {
			return evs
		}
		select {
		case <-r.notify:
		case <-ctx.Done():
			return r.Events()
		}
	}
}
