package events

import (
	"log/slog"
	"sync"

	"namehaus/pkg/domain"
)

// Recorder is an in-memory Emitter. Tests use it to assert that operations
// emitted the required signals in order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// All returns a copy of every recorded event in emission order.
func (r *Recorder) All() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByName returns recorded events matching the given name, in order.
func (r *Recorder) ByName(name Name) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears recorded events between test cases.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// SlogEmitter writes each emitted signal to a structured logger. The server
// wires this sink; the amount is logged as a decimal string to keep money out
// of float formatting.
type SlogEmitter struct {
	logger *slog.Logger
}

func NewSlogEmitter(logger *slog.Logger) *SlogEmitter {
	return &SlogEmitter{logger: logger}
}

func (s *SlogEmitter) Emit(event Event) {
	args := []any{
		"event", string(event.Name),
		"at", event.At,
	}
	if event.Label != "" {
		args = append(args, "label", event.Label)
	}
	if event.TokenID != (domain.TokenID{}) {
		args = append(args, "token_id", event.TokenID.Hex())
	}
	if !event.Actor.IsZero() {
		args = append(args, "actor", event.Actor.Hex())
	}
	if event.Amount != nil {
		args = append(args, "amount_wei", event.Amount.String())
	}
	if event.RequestID != "" {
		args = append(args, "request_id", event.RequestID)
	}
	s.logger.Info(string(event.Name), args...)
}

// Multi fans one emission out to several sinks.
type Multi []Emitter

func (m Multi) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
