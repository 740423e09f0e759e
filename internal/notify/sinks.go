package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LogSink writes every event to a structured logger at info level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit implements Sink.
func (s *LogSink) Emit(_ context.Context, event Event) {
	fields := make([]zap.Field, 0, len(event.Payload))
	for k, v := range event.Payload {
		fields = append(fields, zap.Any(k, v))
	}
	s.logger.Info(event.Name, fields...)
}

// MemorySink records every event in order. For testing.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty recording sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit implements Sink.
func (s *MemorySink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of every recorded event in emission order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Named returns the recorded events with the given name.
func (s *MemorySink) Named(name string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards all recorded events.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
