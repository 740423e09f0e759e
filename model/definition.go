// Package model contains the shared types used across the orchestration
// engine: workflow definitions, workflow instances, and the error envelope.
package model

// TaskType classifies the kind of work a task represents. The set is closed;
// unknown values are executed as manual tasks.
type TaskType string

// Known task types.
const (
	TaskTypeAutomated TaskType = "automated"
	TaskTypeManual    TaskType = "manual"
	TaskTypeReview    TaskType = "review"
	TaskTypeApproval  TaskType = "approval"
)

// WorkflowDefinition is the static description of a workflow: its phases,
// their tasks, and the legal transitions between phases. Definitions are
// loaded from YAML files and are read-only to the engine.
type WorkflowDefinition struct {
	ID           string                 `yaml:"id" json:"id"`
	Name         string                 `yaml:"name" json:"name"`
	InitialPhase string                 `yaml:"initial_phase" json:"initial_phase"`
	Phases       []PhaseDefinition      `yaml:"phases" json:"phases"`
	Transitions  []TransitionDefinition `yaml:"transitions" json:"transitions"`

	// Checksum and SourceFile are populated by the loader.
	Checksum   string `yaml:"-" json:"-"`
	SourceFile string `yaml:"-" json:"-"`
}

// Phase returns the phase definition with the given ID, or nil.
func (w *WorkflowDefinition) Phase(phaseID string) *PhaseDefinition {
	for i := range w.Phases {
		if w.Phases[i].ID == phaseID {
			return &w.Phases[i]
		}
	}
	return nil
}

// PhaseDefinition is a named stage of a workflow containing a task
// dependency graph.
type PhaseDefinition struct {
	ID              string           `yaml:"id" json:"id"`
	Name            string           `yaml:"name" json:"name"`
	Tasks           []TaskDefinition `yaml:"tasks" json:"tasks"`
	NextPhases      []string         `yaml:"next_phases" json:"next_phases,omitempty"`
	EntryConditions []string         `yaml:"entry_conditions" json:"entry_conditions,omitempty"`
	ExitConditions  []string         `yaml:"exit_conditions" json:"exit_conditions,omitempty"`
}

// Task returns the task definition with the given ID, or nil.
func (p *PhaseDefinition) Task(taskID string) *TaskDefinition {
	for i := range p.Tasks {
		if p.Tasks[i].ID == taskID {
			return &p.Tasks[i]
		}
	}
	return nil
}

// TaskDefinition is a unit of work within a phase. DependsOn references
// other task IDs in the same phase.
type TaskDefinition struct {
	ID                string   `yaml:"id" json:"id"`
	Name              string   `yaml:"name" json:"name"`
	Type              TaskType `yaml:"type" json:"type"`
	Required          bool     `yaml:"required" json:"required"`
	DependsOn         []string `yaml:"depends_on" json:"depends_on,omitempty"`
	Assignee          string   `yaml:"assignee" json:"assignee,omitempty"`
	EstimatedDuration string   `yaml:"estimated_duration" json:"estimated_duration,omitempty"`
	Tools             []string `yaml:"tools" json:"tools,omitempty"`
	Outputs           []string `yaml:"outputs" json:"outputs,omitempty"`
}

// TransitionDefinition is a directed edge between two phases, optionally
// gated by conditions and/or human approval.
type TransitionDefinition struct {
	From             string   `yaml:"from" json:"from"`
	To               string   `yaml:"to" json:"to"`
	Conditions       []string `yaml:"conditions" json:"conditions,omitempty"`
	RequiresApproval bool     `yaml:"requires_approval" json:"requires_approval"`
	Approvers        []string `yaml:"approvers" json:"approvers,omitempty"`
}
