// Package events is the fire-and-forget broadcast boundary. Emission
// failures are the caller's problem only insofar as they get logged; a
// failed publish never rolls back a committed bid or transition.
package events

import (
	"context"
	"sync"

	"github.com/sss97133/nuke-sub012/internal/domain"
)

// Emitter publishes committed state changes to external consumers.
type Emitter interface {
	Emit(ctx context.Context, ev domain.Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, domain.Event) error { return nil }

// Capture records events in memory for tests.
type Capture struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *Capture) Emit(_ context.Context, ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

// Events returns a copy of everything captured so far.
func (c *Capture) Events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, len(c.events))
	copy(out, c.events)
	return out
}

// OfType filters captured events by type.
func (c *Capture) OfType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, ev := range c.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
