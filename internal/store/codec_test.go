package store

import (
	"reflect"
	"testing"
	"time"

	"github.com/pitabwire/orchest/model"
)

// sampleInstance builds an instance exercising every snapshot field.
// Metadata values stay within JSON-native types so equality survives the
// round trip.
func sampleInstance() *model.WorkflowInstance {
	started := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	phaseDone := started.Add(3 * time.Second)
	taskStart := started.Add(time.Second)
	taskDone := started.Add(2 * time.Second)
	completed := started.Add(5 * time.Second)

	return &model.WorkflowInstance{
		ID:           "inst-42",
		WorkflowID:   "release",
		State:        model.MachineStateCompleted,
		CurrentPhase: "deploy",
		StartedAt:    started,
		CompletedAt:  &completed,
		Error:        "",
		Metadata: map[string]any{
			"approved":    true,
			"requestedBy": "ops",
			"attempt":     float64(2),
		},
		PhaseStates: map[string]*model.PhaseInstance{
			"build": {
				PhaseID:     "build",
				State:       model.PhaseStateCompleted,
				StartedAt:   &started,
				CompletedAt: &phaseDone,
				Retries:     1,
				Tasks: map[string]*model.TaskInstance{
					"compile": {
						TaskID:      "compile",
						State:       model.TaskStateCompleted,
						StartedAt:   &taskStart,
						CompletedAt: &taskDone,
						Result:      model.TaskResult{"status": "success", "executedAt": taskDone.Format(time.RFC3339Nano)},
					},
					"lint": {
						TaskID: "lint",
						State:  model.TaskStateSkipped,
						Error:  "linter unavailable",
					},
				},
			},
			"deploy": {
				PhaseID: "deploy",
				State:   model.PhaseStateFailed,
				Error:   "required tasks failed",
				Tasks: map[string]*model.TaskInstance{
					"ship": {
						TaskID:  "ship",
						State:   model.TaskStateFailed,
						Error:   "simulated task failure",
						Retries: 2,
					},
				},
			},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := sampleInstance()

	data, err := EncodeInstance(original)
	if err != nil {
		t.Fatalf("EncodeInstance: %v", err)
	}
	decoded, err := DecodeInstance(data)
	if err != nil {
		t.Fatalf("DecodeInstance: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Errorf("round trip mismatch:\n got: %+v\nwant: %+v", decoded, original)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	inst := sampleInstance()

	first, err := EncodeInstance(inst)
	if err != nil {
		t.Fatalf("EncodeInstance: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := EncodeInstance(inst)
		if err != nil {
			t.Fatalf("EncodeInstance: %v", err)
		}
		if string(first) != string(again) {
			t.Fatal("encoding is not deterministic across runs")
		}
	}
}

func TestCloneInstance_Independence(t *testing.T) {
	original := sampleInstance()

	clone, err := CloneInstance(original)
	if err != nil {
		t.Fatalf("CloneInstance: %v", err)
	}

	// Mutate the clone deeply.
	clone.State = model.MachineStateFailed
	clone.Error = "mutated"
	clone.PhaseStates["build"].State = model.PhaseStateRolledBack
	clone.PhaseStates["build"].Tasks["compile"].State = model.TaskStatePending
	clone.PhaseStates["build"].Tasks["compile"].Result = nil
	clone.Metadata["approved"] = false

	if original.State != model.MachineStateCompleted {
		t.Error("mutating clone changed original state")
	}
	if original.PhaseStates["build"].State != model.PhaseStateCompleted {
		t.Error("mutating clone changed original phase state")
	}
	if original.PhaseStates["build"].Tasks["compile"].State != model.TaskStateCompleted {
		t.Error("mutating clone changed original task state")
	}
	if original.PhaseStates["build"].Tasks["compile"].Result == nil {
		t.Error("mutating clone cleared original task result")
	}
	if original.Metadata["approved"] != true {
		t.Error("mutating clone changed original metadata")
	}
}

func TestDecodeRejectsBadTimestamps(t *testing.T) {
	if _, err := DecodeInstance([]byte(`{"id":"x","started_at":"not-a-time"}`)); err == nil {
		t.Error("expected error for malformed started_at")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeInstance([]byte(`{{`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestEncodeEmptyInstance(t *testing.T) {
	inst := &model.WorkflowInstance{
		ID:         "inst-empty",
		WorkflowID: "release",
		State:      model.MachineStateIdle,
		StartedAt:  time.Now().UTC(),
	}

	clone, err := CloneInstance(inst)
	if err != nil {
		t.Fatalf("CloneInstance: %v", err)
	}
	if clone.ID != inst.ID || clone.State != inst.State {
		t.Error("empty instance round trip lost fields")
	}
	if len(clone.PhaseStates) != 0 {
		t.Errorf("expected no phase states, got %d", len(clone.PhaseStates))
	}
}
