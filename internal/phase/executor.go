// Package phase runs a single phase's task graph to completion. Tasks are
// scheduled in dependency order: each round executes the frontier of tasks
// whose dependencies are all resolved, concurrently, and collects every
// outcome before computing the next frontier.
package phase

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/orchest/internal/notify"
	"github.com/pitabwire/orchest/internal/observability"
	"github.com/pitabwire/orchest/internal/task"
	"github.com/pitabwire/orchest/model"
)

// Context carries everything the executor needs to run one phase.
type Context struct {
	WorkflowID string
	InstanceID string
	Phase      model.PhaseDefinition
	Instance   *model.PhaseInstance

	// Mu, when set, guards Instance's nested task state. The engine snapshots
	// live instances while tasks run, so every task-state write must hold it.
	Mu *sync.RWMutex

	// Metadata is the owning workflow instance's control metadata, passed
	// through to task execution.
	Metadata map[string]any
}

func (pc Context) lock() {
	if pc.Mu != nil {
		pc.Mu.Lock()
	}
}

func (pc Context) unlock() {
	if pc.Mu != nil {
		pc.Mu.Unlock()
	}
}

func (pc Context) rlock() {
	if pc.Mu != nil {
		pc.Mu.RLock()
	}
}

func (pc Context) runlock() {
	if pc.Mu != nil {
		pc.Mu.RUnlock()
	}
}

// Executor schedules and runs a phase's tasks respecting their declared
// dependencies, and supports rolling a phase back to pre-execution state.
type Executor struct {
	tasks   task.Executor
	sink    notify.Sink
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewExecutor creates a phase executor. metrics may be nil.
func NewExecutor(tasks task.Executor, sink notify.Sink, logger *zap.Logger, metrics *observability.Metrics) *Executor {
	return &Executor{tasks: tasks, sink: sink, logger: logger, metrics: metrics}
}

type taskOutcome struct {
	def model.TaskDefinition
	err error
}

// ExecutePhase runs every task in the phase. Required task failures are
// collected rather than aborting in-flight siblings; optional task failures
// mark the task skipped and unblock its dependents. The returned error is a
// *model.PhaseExecutionError when scheduling stalls, a required task fails,
// or completion validation fails.
func (e *Executor) ExecutePhase(ctx context.Context, pc Context) error {
	logger := e.logger.With(
		zap.String("instance_id", pc.InstanceID),
		zap.String("phase_id", pc.Phase.ID),
	)

	e.sink.Emit(ctx, notify.Event{
		Name: notify.EventPhaseExecuting,
		Payload: map[string]any{
			"instanceId": pc.InstanceID,
			"phaseId":    pc.Phase.ID,
			"taskCount":  len(pc.Phase.Tasks),
		},
	})

	// Ensure every declared task has an instance. Idempotent: a task that
	// already ran keeps its state, so a retried phase does not redo work.
	executed := make(map[string]bool, len(pc.Phase.Tasks))
	failed := make(map[string]bool)
	pc.lock()
	for _, td := range pc.Phase.Tasks {
		ti := pc.Instance.Task(td.ID)
		if ti.State == model.TaskStateCompleted || ti.State == model.TaskStateSkipped {
			executed[td.ID] = true
		}
	}
	pc.unlock()

	for len(executed)+len(failed) < len(pc.Phase.Tasks) {
		frontier := e.frontier(pc.Phase, executed, failed)
		if len(frontier) == 0 {
			pending := e.unresolved(pc.Phase, executed, failed)
			logger.Error("task scheduling stalled",
				zap.Strings("pending_tasks", pending),
				zap.Strings("failed_tasks", sortedKeys(failed)))
			return model.NewPhaseExecutionError(pc.Phase.ID,
				"cannot execute tasks: unresolved dependencies",
				sortedKeys(failed), pending)
		}

		outcomes := make(chan taskOutcome, len(frontier))
		var wg sync.WaitGroup
		for _, td := range frontier {
			wg.Add(1)
			go func(td model.TaskDefinition) {
				defer wg.Done()
				outcomes <- taskOutcome{def: td, err: e.runTask(ctx, pc, td)}
			}(td)
		}
		wg.Wait()
		close(outcomes)

		for out := range outcomes {
			switch {
			case out.err == nil:
				executed[out.def.ID] = true
			case out.def.Required:
				failed[out.def.ID] = true
				logger.Error("required task failed",
					zap.String("task_id", out.def.ID),
					zap.Error(out.err))
			default:
				// Optional task failure resolves its dependents rather than
				// blocking them.
				pc.lock()
				pc.Instance.Task(out.def.ID).State = model.TaskStateSkipped
				pc.unlock()
				executed[out.def.ID] = true
				logger.Warn("optional task failed, skipping",
					zap.String("task_id", out.def.ID),
					zap.Error(out.err))
			}
		}
	}

	if len(failed) > 0 {
		return model.NewPhaseExecutionError(pc.Phase.ID,
			"required tasks failed", sortedKeys(failed), nil)
	}

	if !e.ValidatePhaseCompletion(pc) {
		return model.NewPhaseExecutionError(pc.Phase.ID,
			"phase completion validation failed", nil, nil)
	}

	logger.Info("phase tasks completed", zap.Int("tasks", len(pc.Phase.Tasks)))
	return nil
}

// frontier returns the tasks not yet resolved whose every dependency is in
// the executed set, in declaration order.
func (e *Executor) frontier(def model.PhaseDefinition, executed, failed map[string]bool) []model.TaskDefinition {
	var out []model.TaskDefinition
	for _, td := range def.Tasks {
		if executed[td.ID] || failed[td.ID] {
			continue
		}
		ready := true
		for _, dep := range td.DependsOn {
			if !executed[dep] {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, td)
		}
	}
	return out
}

// unresolved returns the ids of tasks in neither the executed nor the
// failed set, sorted.
func (e *Executor) unresolved(def model.PhaseDefinition, executed, failed map[string]bool) []string {
	var out []string
	for _, td := range def.Tasks {
		if !executed[td.ID] && !failed[td.ID] {
			out = append(out, td.ID)
		}
	}
	sort.Strings(out)
	return out
}

// runTask wraps one task execution: marks the instance running, dispatches
// to the task executor, and records the terminal state with timestamps.
func (e *Executor) runTask(ctx context.Context, pc Context, td model.TaskDefinition) error {
	started := time.Now().UTC()
	pc.lock()
	ti := pc.Instance.Task(td.ID)
	ti.State = model.TaskStateRunning
	ti.StartedAt = &started
	ti.Error = ""
	pc.unlock()

	e.sink.Emit(ctx, notify.Event{
		Name: notify.EventTaskStarted,
		Payload: map[string]any{
			"instanceId": pc.InstanceID,
			"phaseId":    pc.Phase.ID,
			"taskId":     td.ID,
			"taskType":   string(td.Type),
		},
	})

	result, err := e.tasks.ExecuteTask(ctx, task.Context{
		InstanceID: pc.InstanceID,
		PhaseID:    pc.Phase.ID,
		Task:       td,
		Instance:   ti,
		Metadata:   pc.Metadata,
	})

	completed := time.Now().UTC()

	if err != nil {
		pc.lock()
		ti.CompletedAt = &completed
		ti.State = model.TaskStateFailed
		ti.Error = err.Error()
		pc.unlock()
		if e.metrics != nil {
			e.metrics.RecordTaskExecution(string(td.Type), "failed", completed.Sub(started))
		}
		return err
	}

	pc.lock()
	ti.CompletedAt = &completed
	ti.State = model.TaskStateCompleted
	ti.Result = result
	pc.unlock()
	if e.metrics != nil {
		e.metrics.RecordTaskExecution(string(td.Type), "completed", completed.Sub(started))
	}
	return nil
}

// ValidatePhaseCompletion reports whether every required task in the phase
// definition has a completed task instance. Exit conditions declared on the
// definition are advisory; evaluating them belongs to the transition layer.
func (e *Executor) ValidatePhaseCompletion(pc Context) bool {
	pc.rlock()
	defer pc.runlock()
	for _, td := range pc.Phase.Tasks {
		if !td.Required {
			continue
		}
		ti, ok := pc.Instance.Tasks[td.ID]
		if !ok || ti.State != model.TaskStateCompleted {
			return false
		}
	}
	return true
}

// RollbackPhase reverts the phase to pre-execution state: the phase instance
// is marked rolled_back and every completed task is reset to pending with its
// result and error cleared. Retry counters are preserved.
func (e *Executor) RollbackPhase(pc Context) {
	pc.lock()
	pc.Instance.State = model.PhaseStateRolledBack
	for _, ti := range pc.Instance.Tasks {
		if ti.State != model.TaskStateCompleted {
			continue
		}
		ti.State = model.TaskStatePending
		ti.Result = nil
		ti.Error = ""
		ti.StartedAt = nil
		ti.CompletedAt = nil
	}
	pc.unlock()

	if e.metrics != nil {
		e.metrics.RecordPhaseRollback(pc.WorkflowID, pc.Phase.ID)
	}
	e.logger.Info("phase rolled back",
		zap.String("instance_id", pc.InstanceID),
		zap.String("phase_id", pc.Phase.ID))
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
