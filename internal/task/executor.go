// Package task executes single workflow tasks. The executor dispatches on
// the task's declared type through a closed strategy table; concrete
// business logic is out of scope, so execution is simulated against the
// task's estimated duration and the instance's control metadata.
package task

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/orchest/internal/notify"
	"github.com/pitabwire/orchest/model"
)

// Metadata keys consumed by the executor. The state machine passes instance
// metadata through without interpreting it.
const (
	metaCompletedTasks    = "completedTasks"
	metaApprovedReviews   = "approvedReviews"
	metaApprovedTasks     = "approvedTasks"
	metaAutoApprove       = "autoApprove"
	metaApprovalDecisions = "approvalDecisions"
)

// Context carries everything the executor needs to run one task.
type Context struct {
	InstanceID string
	PhaseID    string
	Task       model.TaskDefinition
	Instance   *model.TaskInstance
	Metadata   map[string]any
}

// Executor performs a single task and validates completed results.
type Executor interface {
	// ExecuteTask runs the task and returns its result payload.
	ExecuteTask(ctx context.Context, tc Context) (model.TaskResult, error)

	// ValidateTaskResult reports whether the task instance carries a result
	// of the shape its type requires.
	ValidateTaskResult(tc Context) bool
}

type handlerFunc func(ctx context.Context, tc Context) (model.TaskResult, error)

// SimulatedExecutor dispatches on task type through a strategy table.
// Unknown types fall back to the manual handler.
type SimulatedExecutor struct {
	sink   notify.Sink
	logger *zap.Logger

	// MaxSimulatedWait caps the simulated execution delay per task.
	MaxSimulatedWait time.Duration

	handlers map[model.TaskType]handlerFunc
}

// NewSimulatedExecutor creates the default task executor.
func NewSimulatedExecutor(sink notify.Sink, logger *zap.Logger) *SimulatedExecutor {
	e := &SimulatedExecutor{
		sink:             sink,
		logger:           logger,
		MaxSimulatedWait: defaultMaxSimulatedWait,
	}
	e.handlers = map[model.TaskType]handlerFunc{
		model.TaskTypeAutomated: e.executeAutomated,
		model.TaskTypeManual:    e.executeManual,
		model.TaskTypeReview:    e.executeReview,
		model.TaskTypeApproval:  e.executeApproval,
	}
	return e
}

// ExecuteTask implements Executor.
func (e *SimulatedExecutor) ExecuteTask(ctx context.Context, tc Context) (model.TaskResult, error) {
	e.sink.Emit(ctx, notify.Event{
		Name: notify.EventTaskExecuting,
		Payload: map[string]any{
			"taskId":   tc.Task.ID,
			"taskType": string(tc.Task.Type),
			"phaseId":  tc.PhaseID,
		},
	})

	handler, ok := e.handlers[tc.Task.Type]
	if !ok {
		handler = e.executeManual
	}
	return handler(ctx, tc)
}

func (e *SimulatedExecutor) executeAutomated(ctx context.Context, tc Context) (model.TaskResult, error) {
	if err := e.simulate(ctx, tc.Task.EstimatedDuration); err != nil {
		return nil, err
	}
	return model.TaskResult{
		"status":     "success",
		"outputs":    tc.Task.Outputs,
		"executedAt": time.Now().UTC().Format(time.RFC3339Nano),
		"metadata": map[string]any{
			"tools":     tc.Task.Tools,
			"automated": true,
		},
	}, nil
}

func (e *SimulatedExecutor) executeManual(ctx context.Context, tc Context) (model.TaskResult, error) {
	if metaContains(tc.Metadata, metaCompletedTasks, tc.Task.ID) {
		return model.TaskResult{
			"status":      "completed",
			"completedBy": "system",
			"completedAt": time.Now().UTC().Format(time.RFC3339Nano),
		}, nil
	}

	if err := e.simulate(ctx, tc.Task.EstimatedDuration); err != nil {
		return nil, err
	}
	completedBy := tc.Task.Assignee
	if completedBy == "" {
		completedBy = "unknown"
	}
	return model.TaskResult{
		"status":      "completed",
		"completedBy": completedBy,
		"completedAt": time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

func (e *SimulatedExecutor) executeReview(ctx context.Context, tc Context) (model.TaskResult, error) {
	if metaContains(tc.Metadata, metaApprovedReviews, tc.Task.ID) {
		return model.TaskResult{
			"status":     "approved",
			"reviewedBy": "system",
		}, nil
	}

	if err := e.simulate(ctx, tc.Task.EstimatedDuration); err != nil {
		return nil, err
	}
	reviewedBy := tc.Task.Assignee
	if reviewedBy == "" {
		reviewedBy = "reviewer"
	}
	return model.TaskResult{
		"status":     "approved",
		"reviewedBy": reviewedBy,
	}, nil
}

// executeApproval resolves approval tasks from instance metadata. Only an
// explicit false decision rejects; absence approves.
func (e *SimulatedExecutor) executeApproval(ctx context.Context, tc Context) (model.TaskResult, error) {
	if metaBool(tc.Metadata, metaAutoApprove) || metaContains(tc.Metadata, metaApprovedTasks, tc.Task.ID) {
		return model.TaskResult{
			"status":     "approved",
			"approvedBy": "system",
			"reason":     "auto-approved",
		}, nil
	}

	if err := e.wait(ctx, approvalSimulatedWait); err != nil {
		return nil, err
	}

	approvedBy := tc.Task.Assignee
	if approvedBy == "" {
		approvedBy = "approver"
	}

	if decision, ok := metaDecision(tc.Metadata, metaApprovalDecisions, tc.Task.ID); ok && !decision {
		return model.TaskResult{
			"status":     "rejected",
			"approvedBy": approvedBy,
			"reason":     "rejected by approval decision",
		}, nil
	}
	return model.TaskResult{
		"status":     "approved",
		"approvedBy": approvedBy,
		"reason":     "approved",
	}, nil
}

// ValidateTaskResult implements Executor.
func (e *SimulatedExecutor) ValidateTaskResult(tc Context) bool {
	if tc.Instance == nil || tc.Instance.Result == nil {
		return false
	}
	status, _ := tc.Instance.Result["status"].(string)

	switch tc.Task.Type {
	case model.TaskTypeManual:
		completedBy, _ := tc.Instance.Result["completedBy"].(string)
		return (status == "success" || status == "completed") && completedBy != ""
	case model.TaskTypeReview:
		return status == "approved" || status == "passed"
	case model.TaskTypeApproval:
		return status == "approved"
	default:
		return status == "success" || status == "completed"
	}
}

func (e *SimulatedExecutor) simulate(ctx context.Context, estimate string) error {
	return e.wait(ctx, simulatedWait(estimate, e.MaxSimulatedWait))
}

func (e *SimulatedExecutor) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
