// Package notify delivers loan lifecycle events to agents and operators
package notify

import (
	"context"
	"time"
)

// Event is a lifecycle transition that already committed
type Event struct {
	Name       string    `json:"event"`
	Recipients []string  `json:"-"` // Agent addresses whose webhooks receive the event
	Data       any       `json:"data"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier receives events. Implementations must not block the caller for long.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Multi fans an event out to several notifiers
type Multi []Notifier

// Notify implements Notifier
func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, n := range m {
		n.Notify(ctx, ev)
	}
}

// Nop discards events
type Nop struct{}

// Notify implements Notifier
func (Nop) Notify(context.Context, Event) {}

// Recorder keeps every event in memory. Useful in tests.
type Recorder struct {
	ch chan Event
}

// NewRecorder creates a recorder buffering up to size events
func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan Event, size)}
}

// Notify implements Notifier
func (r *Recorder) Notify(_ context.Context, ev Event) {
	select {
	case r.ch <- ev:
	default:
	}
}

// Events drains the recorded events
func (r *Recorder) Events() []Event {
	var out []Event
	for {
		select {
		case ev := <-r.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}
