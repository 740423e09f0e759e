// Package notify defines the notification sink the engine emits lifecycle
// events into. Emission is fire-and-forget: sink failures never propagate
// into the operation that triggered them.
package notify

import "context"

// Event names emitted by the engine, in control-flow order.
const (
	EventWorkflowStarted     = "workflow.started"
	EventWorkflowCompleted   = "workflow.completed"
	EventWorkflowFailed      = "workflow.failed"
	EventPhaseStarted        = "phase.started"
	EventPhaseExecuting      = "phase.executing"
	EventTaskStarted         = "task.started"
	EventTaskExecuting       = "task.executing"
	EventTransitionRequested = "transition.requested"
	EventApprovalRequested   = "transition.approval_requested"
)

// Event is a named notification with a structured payload.
type Event struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Sink receives engine events. Implementations must be safe for concurrent
// use and must not block the caller for long.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// nopSink discards every event.
type nopSink struct{}

func (nopSink) Emit(context.Context, Event) {}

// Nop returns a sink that discards everything.
func Nop() Sink { return nopSink{} }

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		s.Emit(ctx, event)
	}
}
