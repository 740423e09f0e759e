package notify

import (
	"context"
	"testing"
)

func TestMemorySink_recordsInOrder(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	sink.Emit(ctx, Event{Name: EventWorkflowStarted, Payload: map[string]any{"instanceId": "i-1"}})
	sink.Emit(ctx, Event{Name: EventPhaseStarted, Payload: map[string]any{"phaseId": "build"}})
	sink.Emit(ctx, Event{Name: EventWorkflowCompleted})

	events := sink.Events()
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].Name != EventWorkflowStarted || events[2].Name != EventWorkflowCompleted {
		t.Errorf("order = %s, %s, %s", events[0].Name, events[1].Name, events[2].Name)
	}

	phases := sink.Named(EventPhaseStarted)
	if len(phases) != 1 || phases[0].Payload["phaseId"] != "build" {
		t.Errorf("Named(phase.started) = %+v", phases)
	}
}

func TestMultiSink_fansOut(t *testing.T) {
	a := NewMemorySink()
	b := NewMemorySink()
	multi := MultiSink{a, b, Nop()}

	multi.Emit(context.Background(), Event{Name: EventTaskStarted})

	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Errorf("fan-out missed a sink: a=%d b=%d", len(a.Events()), len(b.Events()))
	}
}
