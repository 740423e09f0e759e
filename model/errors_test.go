package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	err := NewWorkflowNotFoundError("deploy")
	want := `WORKFLOW_NOT_FOUND: workflow "deploy" not found`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"envelope", NewInstanceNotFoundError("i-1"), ErrInstanceNotFound},
		{"wrapped envelope", fmt.Errorf("save: %w", NewInvalidStateError("nope")), ErrInvalidState},
		{"phase execution", NewPhaseExecutionError("build", "tasks failed", []string{"compile"}, nil), ErrPhaseExecution},
		{"transition", NewTransitionError("build", "deploy", "no valid transition found"), ErrTransition},
		{"transition phase missing", NewTransitionPhaseNotFoundError("build", "deploy", "deploy"), ErrPhaseNotFound},
		{"plain error", errors.New("boom"), ErrInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPhaseExecutionError_carriesTaskSets(t *testing.T) {
	err := NewPhaseExecutionError("build", "unresolvable tasks", []string{"lint"}, []string{"compile", "test"})
	if err.PhaseID != "build" {
		t.Errorf("PhaseID = %s, want build", err.PhaseID)
	}
	if len(err.FailedTasks) != 1 || err.FailedTasks[0] != "lint" {
		t.Errorf("FailedTasks = %v", err.FailedTasks)
	}
	if len(err.PendingTasks) != 2 {
		t.Errorf("PendingTasks = %v", err.PendingTasks)
	}
}

func TestMachineState_Terminal(t *testing.T) {
	for _, s := range []MachineState{MachineStateIdle, MachineStateRunning, MachineStatePaused} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
	for _, s := range []MachineState{MachineStateCompleted, MachineStateFailed} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
}

func TestPhaseInstance_Task_idempotent(t *testing.T) {
	pi := &PhaseInstance{PhaseID: "build", State: PhaseStateActive}

	ti := pi.Task("compile")
	if ti.State != TaskStatePending {
		t.Fatalf("new task state = %s, want pending", ti.State)
	}

	ti.State = TaskStateRunning
	again := pi.Task("compile")
	if again != ti {
		t.Error("Task() created a new instance for an existing task")
	}
	if again.State != TaskStateRunning {
		t.Errorf("Task() reset state to %s", again.State)
	}
}
