package definition

import (
	"testing"

	"github.com/pitabwire/orchest/model"
)

func testDefs() []model.WorkflowDefinition {
	return []model.WorkflowDefinition{
		{
			ID:           "release",
			Name:         "Release Pipeline",
			InitialPhase: "build",
			Checksum:     "abc",
			Phases: []model.PhaseDefinition{
				{ID: "build", Tasks: []model.TaskDefinition{{ID: "compile", Type: model.TaskTypeAutomated, Required: true}}, NextPhases: []string{"deploy"}},
				{ID: "deploy", Tasks: []model.TaskDefinition{{ID: "ship", Type: model.TaskTypeAutomated, Required: true}}},
			},
			Transitions: []model.TransitionDefinition{
				{From: "build", To: "deploy"},
			},
		},
		{
			ID:           "onboarding",
			InitialPhase: "intake",
			Checksum:     "def",
			Phases:       []model.PhaseDefinition{{ID: "intake"}},
		},
	}
}

func TestRegistry_Workflow(t *testing.T) {
	r := NewRegistry(testDefs())

	def, ok := r.Workflow("release")
	if !ok {
		t.Fatal("Workflow(release) not found")
	}
	if def.InitialPhase != "build" {
		t.Errorf("InitialPhase = %s, want build", def.InitialPhase)
	}

	if _, ok := r.Workflow("unknown"); ok {
		t.Error("Workflow(unknown) found, want miss")
	}
}

func TestRegistry_Phase(t *testing.T) {
	r := NewRegistry(testDefs())

	p, ok := r.Phase("release", "deploy")
	if !ok {
		t.Fatal("Phase(release, deploy) not found")
	}
	if len(p.Tasks) != 1 || p.Tasks[0].ID != "ship" {
		t.Errorf("tasks = %+v", p.Tasks)
	}

	if _, ok := r.Phase("release", "qa"); ok {
		t.Error("Phase(release, qa) found, want miss")
	}
	if _, ok := r.Phase("unknown", "build"); ok {
		t.Error("Phase(unknown, build) found, want miss")
	}
}

func TestRegistry_AvailableTransitions(t *testing.T) {
	r := NewRegistry(testDefs())

	ts := r.AvailableTransitions("release", "build")
	if len(ts) != 1 || ts[0].To != "deploy" {
		t.Errorf("transitions = %+v", ts)
	}

	if ts := r.AvailableTransitions("release", "deploy"); len(ts) != 0 {
		t.Errorf("transitions from terminal phase = %+v", ts)
	}
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry(testDefs())
	before := r.Checksum()

	r.Replace([]model.WorkflowDefinition{{ID: "release", InitialPhase: "build", Checksum: "xyz"}})

	if _, ok := r.Workflow("onboarding"); ok {
		t.Error("stale definition survived Replace")
	}
	if r.Checksum() == before {
		t.Error("checksum unchanged after Replace")
	}
	if got := len(r.All()); got != 1 {
		t.Errorf("All() len = %d, want 1", got)
	}
}
