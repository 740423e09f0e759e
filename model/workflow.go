package model

import "time"

// MachineState is the top-level lifecycle state of a workflow instance.
type MachineState string

// Workflow instance machine states.
const (
	MachineStateIdle      MachineState = "idle"
	MachineStateRunning   MachineState = "running"
	MachineStatePaused    MachineState = "paused"
	MachineStateCompleted MachineState = "completed"
	MachineStateFailed    MachineState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s MachineState) Terminal() bool {
	return s == MachineStateCompleted || s == MachineStateFailed
}

// PhaseState is the lifecycle state of a phase within a workflow instance.
type PhaseState string

// Phase instance states.
const (
	PhaseStatePending    PhaseState = "pending"
	PhaseStateActive     PhaseState = "active"
	PhaseStateCompleted  PhaseState = "completed"
	PhaseStateFailed     PhaseState = "failed"
	PhaseStateSkipped    PhaseState = "skipped"
	PhaseStateRolledBack PhaseState = "rolled_back"
)

// TaskState is the lifecycle state of a task within a phase instance.
type TaskState string

// Task instance states.
const (
	TaskStatePending   TaskState = "pending"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateSkipped   TaskState = "skipped"
)

// TaskResult is the opaque payload a task execution produces.
type TaskResult map[string]any

// WorkflowInstance is one execution of a workflow definition. The state
// machine exclusively owns the in-memory instance table; phase and task
// executors mutate the nested PhaseInstance/TaskInstance objects they are
// handed by reference.
type WorkflowInstance struct {
	ID           string                    `json:"id"`
	WorkflowID   string                    `json:"workflow_id"`
	State        MachineState              `json:"state"`
	CurrentPhase string                    `json:"current_phase,omitempty"`
	PhaseStates  map[string]*PhaseInstance `json:"phase_states"`
	StartedAt    time.Time                 `json:"started_at"`
	CompletedAt  *time.Time                `json:"completed_at,omitempty"`
	Error        string                    `json:"error,omitempty"`

	// Metadata carries run-time control flags (auto_approve, pre-completed
	// task lists, approval decisions). The state machine passes it through
	// untouched; task execution and transition validation consume it.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PhaseInstance tracks the execution of one phase of a workflow instance.
// The keys of Tasks are task IDs; entries are created lazily on first
// execution attempt and never removed.
type PhaseInstance struct {
	PhaseID     string                   `json:"phase_id"`
	State       PhaseState               `json:"state"`
	Tasks       map[string]*TaskInstance `json:"tasks"`
	StartedAt   *time.Time               `json:"started_at,omitempty"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
	Error       string                   `json:"error,omitempty"`
	Retries     int                      `json:"retries"`
}

// Task returns the task instance with the given ID, creating it in state
// pending if absent. The creation is idempotent: an already-started task is
// returned unchanged.
func (p *PhaseInstance) Task(taskID string) *TaskInstance {
	if p.Tasks == nil {
		p.Tasks = make(map[string]*TaskInstance)
	}
	if ti, ok := p.Tasks[taskID]; ok {
		return ti
	}
	ti := &TaskInstance{TaskID: taskID, State: TaskStatePending}
	p.Tasks[taskID] = ti
	return ti
}

// TaskInstance tracks the execution of one task within a phase instance.
type TaskInstance struct {
	TaskID      string     `json:"task_id"`
	State       TaskState  `json:"state"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      TaskResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`

	// Retries is carried in the model for persistence parity; the scheduler
	// retries tasks only through the enclosing phase retry.
	Retries int `json:"retries"`
}

// WorkflowSummary is a lightweight representation of a workflow instance
// used in list views.
type WorkflowSummary struct {
	ID           string       `json:"id"`
	WorkflowID   string       `json:"workflow_id"`
	State        MachineState `json:"state"`
	CurrentPhase string       `json:"current_phase,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// Summary builds the list-view representation of the instance.
func (w *WorkflowInstance) Summary() WorkflowSummary {
	return WorkflowSummary{
		ID:           w.ID,
		WorkflowID:   w.WorkflowID,
		State:        w.State,
		CurrentPhase: w.CurrentPhase,
		StartedAt:    w.StartedAt,
		CompletedAt:  w.CompletedAt,
		Error:        w.Error,
	}
}
