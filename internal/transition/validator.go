// Package transition decides whether a workflow instance may move from one
// phase to another: source-phase validity, transition conditions, and
// approval gates.
package transition

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/pitabwire/orchest/internal/notify"
	"github.com/pitabwire/orchest/model"
)

// Context describes one requested transition.
type Context struct {
	Instance   *model.WorkflowInstance
	FromPhase  model.PhaseDefinition
	ToPhase    model.PhaseDefinition
	Transition model.TransitionDefinition

	// Metadata is the transition context supplied by the caller, falling
	// back to the instance's metadata on auto-transitions.
	Metadata map[string]any
}

// Validator gates phase transitions.
type Validator interface {
	// CanTransition reports whether the transition may be taken.
	CanTransition(ctx context.Context, tc Context) bool

	// ValidateTransitionConditions returns the declared conditions that
	// fail for this transition. Empty means all conditions hold.
	ValidateTransitionConditions(tc Context) []string

	// RequestApproval resolves an approval gate. Default-deny: it returns
	// true only on an explicit approval signal in the metadata.
	RequestApproval(ctx context.Context, tc Context) bool
}

// ConditionEvaluator evaluates a single declared condition. Condition
// semantics are pluggable; the default evaluator applies a keyword
// heuristic.
type ConditionEvaluator interface {
	Evaluate(condition string, tc Context) bool
}

// HeuristicEvaluator is the default condition evaluator. A condition
// mentioning "completed" holds only when the source phase instance is
// completed; one mentioning "approved" holds only when the metadata carries
// an approved flag. Anything else is treated as holding.
type HeuristicEvaluator struct{}

// Evaluate implements ConditionEvaluator.
func (HeuristicEvaluator) Evaluate(condition string, tc Context) bool {
	lowered := strings.ToLower(condition)

	if strings.Contains(lowered, "completed") {
		pi := tc.Instance.PhaseStates[tc.Transition.From]
		if pi == nil || pi.State != model.PhaseStateCompleted {
			return false
		}
	}
	if strings.Contains(lowered, "approved") {
		if approved, _ := tc.Metadata["approved"].(bool); !approved {
			return false
		}
	}
	return true
}

// GateValidator is the default Validator.
type GateValidator struct {
	evaluator ConditionEvaluator
	sink      notify.Sink
	logger    *zap.Logger
}

// NewGateValidator creates a validator with the given condition evaluator.
// A nil evaluator selects the heuristic default.
func NewGateValidator(evaluator ConditionEvaluator, sink notify.Sink, logger *zap.Logger) *GateValidator {
	if evaluator == nil {
		evaluator = HeuristicEvaluator{}
	}
	return &GateValidator{evaluator: evaluator, sink: sink, logger: logger}
}

// CanTransition implements Validator.
func (v *GateValidator) CanTransition(ctx context.Context, tc Context) bool {
	pi := tc.Instance.PhaseStates[tc.Transition.From]
	if pi == nil {
		v.logger.Warn("transition rejected: source phase instance missing",
			zap.String("instance_id", tc.Instance.ID),
			zap.String("from", tc.Transition.From),
		)
		return false
	}
	if pi.State != model.PhaseStateActive && pi.State != model.PhaseStateCompleted {
		v.logger.Warn("transition rejected: source phase not active or completed",
			zap.String("instance_id", tc.Instance.ID),
			zap.String("from", tc.Transition.From),
			zap.String("phase_state", string(pi.State)),
		)
		return false
	}

	if failed := v.ValidateTransitionConditions(tc); len(failed) > 0 {
		v.logger.Warn("transition rejected: conditions failed",
			zap.String("instance_id", tc.Instance.ID),
			zap.String("from", tc.Transition.From),
			zap.String("to", tc.Transition.To),
			zap.Strings("failed_conditions", failed),
		)
		return false
	}

	if tc.Transition.RequiresApproval {
		return v.RequestApproval(ctx, tc)
	}
	return true
}

// ValidateTransitionConditions implements Validator.
func (v *GateValidator) ValidateTransitionConditions(tc Context) []string {
	var failed []string
	for _, cond := range tc.Transition.Conditions {
		if !v.evaluator.Evaluate(cond, tc) {
			failed = append(failed, cond)
		}
	}
	return failed
}

// RequestApproval implements Validator.
func (v *GateValidator) RequestApproval(ctx context.Context, tc Context) bool {
	v.sink.Emit(ctx, notify.Event{
		Name: notify.EventApprovalRequested,
		Payload: map[string]any{
			"from":      tc.Transition.From,
			"to":        tc.Transition.To,
			"approvers": tc.Transition.Approvers,
		},
	})

	if approved, _ := tc.Metadata["approved"].(bool); approved {
		return true
	}
	if auto, _ := tc.Metadata["autoApprove"].(bool); auto {
		return true
	}
	return false
}
