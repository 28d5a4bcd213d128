package events

import "fundtreasury/core/types"

// Event represents a structured state change emitted by the treasury.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can render their canonical
// attribute payload for journals, audit trails and websocket subscribers.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects emitted events in order until drained.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Drain returns the buffered events and resets the buffer.
func (b *Buffer) Drain() []Event {
	out := b.events
	b.events = nil
	return out
}

// Len reports how many events are buffered.
func (b *Buffer) Len() int { return len(b.events) }

// Discard drops any buffered events.
func (b *Buffer) Discard() { b.events = nil }

// Render converts an event into its canonical payload. Events that do not
// implement Payload render with their type only.
func Render(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if payload, ok := evt.(Payload); ok {
		if rendered := payload.Event(); rendered != nil {
			return rendered
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}
