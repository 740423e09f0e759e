package phase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/orchest/internal/notify"
	"github.com/pitabwire/orchest/internal/task"
	"github.com/pitabwire/orchest/model"
)

// stubExecutor records execution order and fails configured task ids.
type stubExecutor struct {
	mu    sync.Mutex
	order []string
	fail  map[string]bool
}

func (s *stubExecutor) ExecuteTask(_ context.Context, tc task.Context) (model.TaskResult, error) {
	s.mu.Lock()
	s.order = append(s.order, tc.Task.ID)
	s.mu.Unlock()
	if s.fail[tc.Task.ID] {
		return nil, errors.New("simulated task failure")
	}
	return model.TaskResult{"status": "success"}, nil
}

func (s *stubExecutor) ValidateTaskResult(task.Context) bool { return true }

func (s *stubExecutor) executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *stubExecutor) indexOf(taskID string) int {
	for i, id := range s.executed() {
		if id == taskID {
			return i
		}
	}
	return -1
}

func newTestContext(def model.PhaseDefinition) Context {
	return Context{
		WorkflowID: "release",
		InstanceID: "inst-1",
		Phase:      def,
		Instance:   &model.PhaseInstance{PhaseID: def.ID, State: model.PhaseStateActive},
	}
}

func requiredTask(id string, deps ...string) model.TaskDefinition {
	return model.TaskDefinition{ID: id, Name: id, Type: model.TaskTypeAutomated, Required: true, DependsOn: deps}
}

func optionalTask(id string, deps ...string) model.TaskDefinition {
	return model.TaskDefinition{ID: id, Name: id, Type: model.TaskTypeAutomated, Required: false, DependsOn: deps}
}

func TestExecutePhase_DependencyChainOrder(t *testing.T) {
	stub := &stubExecutor{}
	exec := NewExecutor(stub, notify.Nop(), zap.NewNop(), nil)

	pc := newTestContext(model.PhaseDefinition{
		ID: "build",
		Tasks: []model.TaskDefinition{
			requiredTask("c", "b"),
			requiredTask("a"),
			requiredTask("b", "a"),
		},
	})

	if err := exec.ExecutePhase(context.Background(), pc); err != nil {
		t.Fatalf("ExecutePhase: %v", err)
	}

	a, b, c := stub.indexOf("a"), stub.indexOf("b"), stub.indexOf("c")
	if a < 0 || b < 0 || c < 0 {
		t.Fatalf("not all tasks ran: order = %v", stub.executed())
	}
	if !(a < b && b < c) {
		t.Errorf("execution order violates dependencies: %v", stub.executed())
	}

	for _, id := range []string{"a", "b", "c"} {
		ti := pc.Instance.Tasks[id]
		if ti.State != model.TaskStateCompleted {
			t.Errorf("task %s state = %s, want completed", id, ti.State)
		}
		if ti.StartedAt == nil || ti.CompletedAt == nil {
			t.Errorf("task %s missing timestamps", id)
		}
		if ti.Result["status"] != "success" {
			t.Errorf("task %s result not recorded", id)
		}
	}
}

func TestExecutePhase_IndependentTasksAllRun(t *testing.T) {
	stub := &stubExecutor{}
	exec := NewExecutor(stub, notify.Nop(), zap.NewNop(), nil)

	pc := newTestContext(model.PhaseDefinition{
		ID: "build",
		Tasks: []model.TaskDefinition{
			requiredTask("x"), requiredTask("y"), requiredTask("z"),
		},
	})

	if err := exec.ExecutePhase(context.Background(), pc); err != nil {
		t.Fatalf("ExecutePhase: %v", err)
	}
	if got := len(stub.executed()); got != 3 {
		t.Errorf("executed %d tasks, want 3", got)
	}
}

func TestExecutePhase_OptionalFailureSkipsAndUnblocks(t *testing.T) {
	stub := &stubExecutor{fail: map[string]bool{"lint": true}}
	exec := NewExecutor(stub, notify.Nop(), zap.NewNop(), nil)

	pc := newTestContext(model.PhaseDefinition{
		ID: "build",
		Tasks: []model.TaskDefinition{
			optionalTask("lint"),
			requiredTask("compile", "lint"),
		},
	})

	if err := exec.ExecutePhase(context.Background(), pc); err != nil {
		t.Fatalf("ExecutePhase should tolerate optional failure: %v", err)
	}

	if got := pc.Instance.Tasks["lint"].State; got != model.TaskStateSkipped {
		t.Errorf("lint state = %s, want skipped", got)
	}
	if got := pc.Instance.Tasks["compile"].State; got != model.TaskStateCompleted {
		t.Errorf("compile state = %s, want completed", got)
	}
}

func TestExecutePhase_RequiredFailureFailsPhase(t *testing.T) {
	stub := &stubExecutor{fail: map[string]bool{"compile": true}}
	exec := NewExecutor(stub, notify.Nop(), zap.NewNop(), nil)

	pc := newTestContext(model.PhaseDefinition{
		ID: "build",
		Tasks: []model.TaskDefinition{
			requiredTask("compile"),
			requiredTask("docs"),
		},
	})

	err := exec.ExecutePhase(context.Background(), pc)
	if err == nil {
		t.Fatal("expected phase execution error")
	}
	var perr *model.PhaseExecutionError
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *model.PhaseExecutionError", err)
	}
	if perr.PhaseID != "build" {
		t.Errorf("PhaseID = %q, want build", perr.PhaseID)
	}
	if len(perr.FailedTasks) != 1 || perr.FailedTasks[0] != "compile" {
		t.Errorf("FailedTasks = %v, want [compile]", perr.FailedTasks)
	}

	// The independent sibling is not starved by the failure.
	if got := pc.Instance.Tasks["docs"].State; got != model.TaskStateCompleted {
		t.Errorf("docs state = %s, want completed", got)
	}
	if got := pc.Instance.Tasks["compile"].State; got != model.TaskStateFailed {
		t.Errorf("compile state = %s, want failed", got)
	}
	if pc.Instance.Tasks["compile"].Error == "" {
		t.Error("failed task should record its error")
	}
}

func TestExecutePhase_FailedDependencyBlocksDownstream(t *testing.T) {
	stub := &stubExecutor{fail: map[string]bool{"compile": true}}
	exec := NewExecutor(stub, notify.Nop(), zap.NewNop(), nil)

	pc := newTestContext(model.PhaseDefinition{
		ID: "build",
		Tasks: []model.TaskDefinition{
			requiredTask("compile"),
			requiredTask("test", "compile"),
		},
	})

	err := exec.ExecutePhase(context.Background(), pc)
	var perr *model.PhaseExecutionError
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *model.PhaseExecutionError", err)
	}
	if len(perr.PendingTasks) != 1 || perr.PendingTasks[0] != "test" {
		t.Errorf("PendingTasks = %v, want [test]", perr.PendingTasks)
	}
	if len(perr.FailedTasks) != 1 || perr.FailedTasks[0] != "compile" {
		t.Errorf("FailedTasks = %v, want [compile]", perr.FailedTasks)
	}
	if stub.indexOf("test") != -1 {
		t.Error("task blocked by a failed dependency must not run")
	}
}

func TestExecutePhase_CycleFailsBeforeAnyTaskRuns(t *testing.T) {
	stub := &stubExecutor{}
	exec := NewExecutor(stub, notify.Nop(), zap.NewNop(), nil)

	pc := newTestContext(model.PhaseDefinition{
		ID: "build",
		Tasks: []model.TaskDefinition{
			requiredTask("a", "b"),
			requiredTask("b", "a"),
		},
	})

	err := exec.ExecutePhase(context.Background(), pc)
	var perr *model.PhaseExecutionError
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *model.PhaseExecutionError", err)
	}
	if len(perr.PendingTasks) != 2 {
		t.Errorf("PendingTasks = %v, want both cycle members", perr.PendingTasks)
	}
	if len(stub.executed()) != 0 {
		t.Errorf("cycle must be detected before any task runs, ran %v", stub.executed())
	}
}

func TestExecutePhase_DoesNotRedoCompletedTasks(t *testing.T) {
	stub := &stubExecutor{}
	exec := NewExecutor(stub, notify.Nop(), zap.NewNop(), nil)

	pc := newTestContext(model.PhaseDefinition{
		ID: "build",
		Tasks: []model.TaskDefinition{
			requiredTask("compile"),
			requiredTask("test", "compile"),
		},
	})

	// Simulate a prior attempt that already completed compile.
	done := time.Now().UTC()
	ti := pc.Instance.Task("compile")
	ti.State = model.TaskStateCompleted
	ti.CompletedAt = &done
	ti.Result = model.TaskResult{"status": "success"}

	if err := exec.ExecutePhase(context.Background(), pc); err != nil {
		t.Fatalf("ExecutePhase: %v", err)
	}
	if stub.indexOf("compile") != -1 {
		t.Error("completed task must not be re-executed")
	}
	if stub.indexOf("test") == -1 {
		t.Error("pending dependent task should run")
	}
}

func TestExecutePhase_EmitsEvents(t *testing.T) {
	sink := notify.NewMemorySink()
	exec := NewExecutor(&stubExecutor{}, sink, zap.NewNop(), nil)

	pc := newTestContext(model.PhaseDefinition{
		ID:    "build",
		Tasks: []model.TaskDefinition{requiredTask("compile")},
	})

	if err := exec.ExecutePhase(context.Background(), pc); err != nil {
		t.Fatalf("ExecutePhase: %v", err)
	}

	if got := len(sink.Named(notify.EventPhaseExecuting)); got != 1 {
		t.Errorf("phase.executing events = %d, want 1", got)
	}
	started := sink.Named(notify.EventTaskStarted)
	if len(started) != 1 {
		t.Fatalf("task.started events = %d, want 1", len(started))
	}
	if started[0].Payload["taskId"] != "compile" {
		t.Errorf("task.started payload taskId = %v, want compile", started[0].Payload["taskId"])
	}
}

func TestValidatePhaseCompletion(t *testing.T) {
	exec := NewExecutor(&stubExecutor{}, notify.Nop(), zap.NewNop(), nil)

	def := model.PhaseDefinition{
		ID: "build",
		Tasks: []model.TaskDefinition{
			requiredTask("compile"),
			optionalTask("lint"),
		},
	}

	tests := []struct {
		name    string
		compile model.TaskState
		want    bool
	}{
		{"required completed", model.TaskStateCompleted, true},
		{"required failed", model.TaskStateFailed, false},
		{"required pending", model.TaskStatePending, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pc := newTestContext(def)
			pc.Instance.Task("compile").State = tc.compile
			// Optional task state is irrelevant; leave it absent.
			if got := exec.ValidatePhaseCompletion(pc); got != tc.want {
				t.Errorf("ValidatePhaseCompletion = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRollbackPhase(t *testing.T) {
	exec := NewExecutor(&stubExecutor{}, notify.Nop(), zap.NewNop(), nil)

	pc := newTestContext(model.PhaseDefinition{ID: "build"})
	now := time.Now().UTC()

	completed := pc.Instance.Task("compile")
	completed.State = model.TaskStateCompleted
	completed.StartedAt = &now
	completed.CompletedAt = &now
	completed.Result = model.TaskResult{"status": "success"}
	completed.Retries = 2

	failedTask := pc.Instance.Task("test")
	failedTask.State = model.TaskStateFailed
	failedTask.Error = "simulated task failure"

	exec.RollbackPhase(pc)

	if pc.Instance.State != model.PhaseStateRolledBack {
		t.Errorf("phase state = %s, want rolled_back", pc.Instance.State)
	}
	if completed.State != model.TaskStatePending {
		t.Errorf("completed task state = %s, want pending", completed.State)
	}
	if completed.Result != nil || completed.Error != "" {
		t.Error("rollback should clear result and error")
	}
	if completed.StartedAt != nil || completed.CompletedAt != nil {
		t.Error("rollback should clear timestamps")
	}
	if completed.Retries != 2 {
		t.Errorf("rollback must preserve retry counter, got %d", completed.Retries)
	}
	// Non-completed tasks are left as they are.
	if failedTask.State != model.TaskStateFailed {
		t.Errorf("failed task state = %s, want failed (untouched)", failedTask.State)
	}
}
