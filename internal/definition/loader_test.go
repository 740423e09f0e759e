package definition

import (
	"testing"

	"github.com/pitabwire/orchest/model"
)

func TestLoader_LoadFile(t *testing.T) {
	loader := NewLoader()

	def, err := loader.LoadFile("testdata/release.yaml")
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	if def.ID != "release" {
		t.Errorf("ID = %s, want release", def.ID)
	}
	if def.InitialPhase != "build" {
		t.Errorf("InitialPhase = %s, want build", def.InitialPhase)
	}
	if len(def.Phases) != 3 {
		t.Fatalf("phases = %d, want 3", len(def.Phases))
	}
	if def.Checksum == "" {
		t.Error("Checksum not populated")
	}
	if def.SourceFile != "testdata/release.yaml" {
		t.Errorf("SourceFile = %s", def.SourceFile)
	}

	build := def.Phase("build")
	if build == nil {
		t.Fatal("build phase missing")
	}
	unit := build.Task("unit-tests")
	if unit == nil {
		t.Fatal("unit-tests task missing")
	}
	if unit.Type != model.TaskTypeAutomated || !unit.Required {
		t.Errorf("unit-tests = %+v", unit)
	}
	if len(unit.DependsOn) != 1 || unit.DependsOn[0] != "compile" {
		t.Errorf("unit-tests depends_on = %v", unit.DependsOn)
	}

	var gated *model.TransitionDefinition
	for i := range def.Transitions {
		if def.Transitions[i].To == "deploy" {
			gated = &def.Transitions[i]
		}
	}
	if gated == nil || !gated.RequiresApproval {
		t.Errorf("deploy transition not approval-gated: %+v", gated)
	}
}

func TestLoader_LoadFile_missing(t *testing.T) {
	loader := NewLoader()
	if _, err := loader.LoadFile("testdata/nonexistent.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoader_LoadAll(t *testing.T) {
	loader := NewLoader()

	defs, err := loader.LoadAll([]string{"testdata"})
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("defs = %d, want 1", len(defs))
	}
}

func TestLoader_LoadAll_badDirectory(t *testing.T) {
	loader := NewLoader()
	if _, err := loader.LoadAll([]string{"testdata/nonexistent"}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
