package events

import (
	"sort"
	"strconv"
	"sync"

	"assetpool/core/types"
)

// Event represents a structured state change emitted by the core.
type Event interface {
	EventType() string
	Event() *types.Event
	Record() Record
}

// Emitter broadcasts events to downstream subscribers (e.g. audit log,
// websocket clients, message brokers). Delivery is fire-and-forget.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts ordinary functions to Emitter.
type EmitterFunc func(Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(evt Event) {
	if f != nil {
		f(evt)
	}
}

// Fanout forwards every event to each configured emitter in order.
type Fanout []Emitter

// Emit implements Emitter.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Record is the flattened notification handed to external observers.
type Record struct {
	Kind      string            `json:"kind"`
	Actor     string            `json:"actor"`
	Amounts   map[string]uint64 `json:"amounts"`
	Timestamp uint64            `json:"timestamp"`
}

// AmountKeys returns the amount labels in a stable order.
func (r Record) AmountKeys() []string {
	keys := make([]string, 0, len(r.Amounts))
	for key := range r.Amounts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Recorder keeps emitted events in memory. Tests and the HTTP layer use it to
// inspect the notifications produced by a single operation.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Reset discards the recorded events.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}
