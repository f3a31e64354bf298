package events

import "burnrouter/core/types"

// Event represents a structured state change emitted by the settlement engine.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can render themselves into the
// attribute form consumed by logs and API responses.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. logs, API).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer holds events raised during a call until the call either commits, in
// which case they are flushed downstream, or aborts and they are dropped.
type Buffer struct {
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.pending = append(b.pending, evt)
}

// Mark returns a position that Truncate can roll back to.
func (b *Buffer) Mark() int {
	if b == nil {
		return 0
	}
	return len(b.pending)
}

// Truncate discards every event raised after mark.
func (b *Buffer) Truncate(mark int) {
	if b == nil || mark < 0 || mark > len(b.pending) {
		return
	}
	for i := mark; i < len(b.pending); i++ {
		b.pending[i] = nil
	}
	b.pending = b.pending[:mark]
}

// Flush hands every pending event to dst in emission order and empties the
// buffer.
func (b *Buffer) Flush(dst Emitter) {
	if b == nil {
		return
	}
	pending := b.pending
	b.pending = nil
	if dst == nil {
		return
	}
	for _, evt := range pending {
		dst.Emit(evt)
	}
}

// Len reports the number of pending events.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.pending)
}

// Recorder keeps every emitted event in memory. Tests and the API layer use it
// to surface the events of a committed call.
type Recorder struct {
	Events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.Events = append(r.Events, evt)
}

// OfType returns the recorded events matching the supplied type.
func (r *Recorder) OfType(eventType string) []Event {
	if r == nil {
		return nil
	}
	var out []Event
	for _, evt := range r.Events {
		if evt.EventType() == eventType {
			out = append(out, evt)
		}
	}
	return out
}

// Reset forgets all recorded events.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.Events = nil
}

// Fanout forwards every event to each configured emitter.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, dst := range f {
		if dst != nil {
			dst.Emit(evt)
		}
	}
}
