package definition

import (
	"fmt"

	"github.com/pitabwire/orchest/model"
)

// ValidationError describes a single problem found in a definition.
type ValidationError struct {
	WorkflowID string
	Message    string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("workflow %q: %s", e.WorkflowID, e.Message)
}

// Validator checks loaded workflow definitions for structural consistency
// before they enter the registry.
type Validator struct{}

// NewValidator creates a definition Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks every definition and returns all problems found. The run
// loop treats any returned error as fatal at startup.
func (v *Validator) Validate(defs []model.WorkflowDefinition) []error {
	var errs []error

	seen := make(map[string]bool, len(defs))
	for i := range defs {
		def := &defs[i]
		if def.ID == "" {
			errs = append(errs, ValidationError{WorkflowID: def.SourceFile, Message: "missing id"})
			continue
		}
		if seen[def.ID] {
			errs = append(errs, ValidationError{WorkflowID: def.ID, Message: "duplicate workflow id"})
			continue
		}
		seen[def.ID] = true
		errs = append(errs, v.validateWorkflow(def)...)
	}

	return errs
}

func (v *Validator) validateWorkflow(def *model.WorkflowDefinition) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, ValidationError{WorkflowID: def.ID, Message: fmt.Sprintf(format, args...)})
	}

	phases := make(map[string]*model.PhaseDefinition, len(def.Phases))
	for i := range def.Phases {
		p := &def.Phases[i]
		if p.ID == "" {
			fail("phase %d: missing id", i)
			continue
		}
		if _, dup := phases[p.ID]; dup {
			fail("duplicate phase id %q", p.ID)
			continue
		}
		phases[p.ID] = p
	}

	if def.InitialPhase == "" {
		fail("missing initial_phase")
	} else if _, ok := phases[def.InitialPhase]; !ok {
		fail("initial_phase %q is not a defined phase", def.InitialPhase)
	}

	for _, t := range def.Transitions {
		if _, ok := phases[t.From]; !ok {
			fail("transition from undefined phase %q", t.From)
		}
		if _, ok := phases[t.To]; !ok {
			fail("transition to undefined phase %q", t.To)
		}
	}

	for _, p := range def.Phases {
		for _, next := range p.NextPhases {
			if _, ok := phases[next]; !ok {
				fail("phase %q lists undefined next phase %q", p.ID, next)
			}
		}
		errs = append(errs, v.validateTaskGraph(def.ID, &p)...)
	}

	return errs
}

// validateTaskGraph verifies that task dependencies stay inside the phase
// and that the graph is acyclic. The run-time scheduler detects cycles too,
// but a misconfigured definition should be rejected at load time.
func (v *Validator) validateTaskGraph(workflowID string, p *model.PhaseDefinition) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, ValidationError{WorkflowID: workflowID, Message: fmt.Sprintf(format, args...)})
	}

	tasks := make(map[string]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if t.ID == "" {
			fail("phase %q: task with missing id", p.ID)
			continue
		}
		if tasks[t.ID] {
			fail("phase %q: duplicate task id %q", p.ID, t.ID)
			continue
		}
		tasks[t.ID] = true
	}

	indegree := make(map[string]int, len(p.Tasks))
	dependents := make(map[string][]string)
	for _, t := range p.Tasks {
		for _, dep := range t.DependsOn {
			if !tasks[dep] {
				fail("phase %q: task %q depends on unknown task %q", p.ID, t.ID, dep)
				continue
			}
			indegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}
	if len(errs) > 0 {
		return errs
	}

	// Kahn's algorithm: if not every task can be ordered, there is a cycle.
	var ready []string
	for id := range tasks {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	ordered := 0
	for len(ready) > 0 {
		id := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		ordered++
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	if ordered != len(tasks) {
		fail("phase %q: task dependency cycle", p.ID)
	}

	return errs
}
