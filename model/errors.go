package model

import (
	"errors"
	"fmt"
)

// Machine-readable error codes used by the engine.
const (
	ErrBadRequest            = "BAD_REQUEST"
	ErrUnauthorized          = "UNAUTHORIZED"
	ErrConflict              = "CONFLICT"
	ErrInternalError         = "INTERNAL_ERROR"
	ErrWorkflowNotFound      = "WORKFLOW_NOT_FOUND"
	ErrInstanceNotFound      = "INSTANCE_NOT_FOUND"
	ErrInvalidState          = "INVALID_STATE"
	ErrNoCurrentPhase        = "NO_CURRENT_PHASE"
	ErrPhaseNotFound         = "PHASE_NOT_FOUND"
	ErrPhaseInstanceNotFound = "PHASE_INSTANCE_NOT_FOUND"
	ErrPhaseExecution        = "PHASE_EXECUTION_ERROR"
	ErrTransition            = "TRANSITION_ERROR"
)

// ErrorEnvelope is the base orchestration error: a machine-readable code,
// a human-readable message, and free-form context. It implements error.
type ErrorEnvelope struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CodeOf returns the machine-readable code of err, or INTERNAL_ERROR when
// err carries no envelope.
func CodeOf(err error) string {
	var ee *ErrorEnvelope
	if errors.As(err, &ee) {
		return ee.Code
	}
	var pe *PhaseExecutionError
	if errors.As(err, &pe) {
		return pe.Code
	}
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Code
	}
	return ErrInternalError
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInternalError, Message: "An unexpected error occurred"}
}

// NewWorkflowNotFoundError reports an unknown workflow definition.
func NewWorkflowNotFoundError(workflowID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrWorkflowNotFound,
		Message: fmt.Sprintf("workflow %q not found", workflowID),
	}
}

// NewInstanceNotFoundError reports an unknown workflow instance.
func NewInstanceNotFoundError(instanceID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInstanceNotFound,
		Message: fmt.Sprintf("workflow instance %q not found", instanceID),
	}
}

// NewInvalidStateError reports an operation attempted in a machine state
// that does not permit it.
func NewInvalidStateError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidState, Message: msg}
}

// NewNoCurrentPhaseError reports an instance with no current phase set.
func NewNoCurrentPhaseError(instanceID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrNoCurrentPhase,
		Message: fmt.Sprintf("workflow instance %q has no current phase", instanceID),
	}
}

// NewPhaseNotFoundError reports a phase missing from the definition.
func NewPhaseNotFoundError(workflowID, phaseID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrPhaseNotFound,
		Message: fmt.Sprintf("phase %q not found in workflow %q", phaseID, workflowID),
	}
}

// NewPhaseInstanceNotFoundError reports a phase instance missing from an
// instance's phase table.
func NewPhaseInstanceNotFoundError(instanceID, phaseID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrPhaseInstanceNotFound,
		Message: fmt.Sprintf("phase instance %q not found on workflow instance %q", phaseID, instanceID),
	}
}

// PhaseExecutionError reports a failed phase execution: which phase failed
// and which task IDs failed or were left unresolved.
type PhaseExecutionError struct {
	ErrorEnvelope
	PhaseID      string   `json:"phase_id"`
	FailedTasks  []string `json:"failed_tasks,omitempty"`
	PendingTasks []string `json:"pending_tasks,omitempty"`
}

// NewPhaseExecutionError builds a PHASE_EXECUTION_ERROR.
func NewPhaseExecutionError(phaseID, msg string, failed, pending []string) *PhaseExecutionError {
	return &PhaseExecutionError{
		ErrorEnvelope: ErrorEnvelope{Code: ErrPhaseExecution, Message: msg},
		PhaseID:       phaseID,
		FailedTasks:   failed,
		PendingTasks:  pending,
	}
}

// TransitionError reports a rejected or unresolvable phase transition.
type TransitionError struct {
	ErrorEnvelope
	FromPhase string `json:"from_phase"`
	ToPhase   string `json:"to_phase"`
}

// NewTransitionError builds a TRANSITION_ERROR.
func NewTransitionError(fromPhase, toPhase, msg string) *TransitionError {
	return &TransitionError{
		ErrorEnvelope: ErrorEnvelope{Code: ErrTransition, Message: msg},
		FromPhase:     fromPhase,
		ToPhase:       toPhase,
	}
}

// NewTransitionPhaseNotFoundError builds a transition error for a phase
// definition missing from the provider.
func NewTransitionPhaseNotFoundError(fromPhase, toPhase, missing string) *TransitionError {
	return &TransitionError{
		ErrorEnvelope: ErrorEnvelope{
			Code:    ErrPhaseNotFound,
			Message: fmt.Sprintf("phase %q not found", missing),
		},
		FromPhase: fromPhase,
		ToPhase:   toPhase,
	}
}
