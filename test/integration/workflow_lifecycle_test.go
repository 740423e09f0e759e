package integration

import (
	"net/http"
	"testing"

	"github.com/pitabwire/orchest/internal/notify"
	"github.com/pitabwire/orchest/model"
)

// instanceBody is the wire shape of a workflow instance response.
type instanceBody struct {
	ID           string `json:"id"`
	WorkflowID   string `json:"workflow_id"`
	State        string `json:"state"`
	CurrentPhase string `json:"current_phase"`
	Error        string `json:"error"`
	PhaseStates  map[string]struct {
		State   string `json:"state"`
		Retries int    `json:"retries"`
		Tasks   map[string]struct {
			State string `json:"state"`
		} `json:"tasks"`
	} `json:"phase_states"`
}

func TestLifecycle_StraightLineWorkflowCompletes(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.POST("/v1/workflows/release/start", map[string]any{
		"metadata": map[string]any{"version": "1.4.0"},
	}, "")
	h.AssertStatus(t, resp, http.StatusCreated)

	var inst instanceBody
	h.ParseJSON(resp, &inst)

	if inst.State != string(model.MachineStateCompleted) {
		t.Fatalf("state = %q, want completed", inst.State)
	}
	for phaseID, ps := range inst.PhaseStates {
		if ps.State != string(model.PhaseStateCompleted) {
			t.Errorf("phase %s state = %q, want completed", phaseID, ps.State)
		}
	}
	build := inst.PhaseStates["build"]
	for _, taskID := range []string{"compile", "unit-tests", "lint"} {
		if build.Tasks[taskID].State != string(model.TaskStateCompleted) {
			t.Errorf("task %s state = %q, want completed", taskID, build.Tasks[taskID].State)
		}
	}

	// Snapshot survives in the store and is served back by ID.
	resp = h.GET("/v1/instances/"+inst.ID, "")
	h.AssertStatus(t, resp, http.StatusOK)

	// Lifecycle events arrived in order.
	events := h.Sink.Events()
	if len(events) == 0 {
		t.Fatal("no events emitted")
	}
	if events[0].Name != notify.EventWorkflowStarted {
		t.Errorf("first event = %q, want %q", events[0].Name, notify.EventWorkflowStarted)
	}
	if last := events[len(events)-1]; last.Name != notify.EventWorkflowCompleted {
		t.Errorf("last event = %q, want %q", last.Name, notify.EventWorkflowCompleted)
	}
}

func TestLifecycle_ApprovalGateEndToEnd(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.POST("/v1/workflows/hotfix/start", nil, "")
	h.AssertStatus(t, resp, http.StatusCreated)
	var inst instanceBody
	h.ParseJSON(resp, &inst)

	if inst.State != string(model.MachineStateRunning) {
		t.Fatalf("state = %q, want running at the approval gate", inst.State)
	}
	if inst.CurrentPhase != "patch" {
		t.Fatalf("current_phase = %q, want patch", inst.CurrentPhase)
	}

	base := "/v1/instances/" + inst.ID

	// Unapproved transition is rejected.
	resp = h.POST(base+"/transition", map[string]any{"target_phase": "rollout"}, "")
	h.AssertStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	// Approved transition runs the workflow to completion.
	resp = h.POST(base+"/transition", map[string]any{
		"target_phase": "rollout",
		"metadata":     map[string]any{"approved": true, "approver": "release-manager"},
	}, "")
	h.AssertStatus(t, resp, http.StatusOK)
	h.ParseJSON(resp, &inst)

	if inst.State != string(model.MachineStateCompleted) {
		t.Fatalf("state = %q, want completed after approval", inst.State)
	}
	if inst.PhaseStates["rollout"].State != string(model.PhaseStateCompleted) {
		t.Errorf("rollout phase state = %q, want completed", inst.PhaseStates["rollout"].State)
	}
}

func TestLifecycle_PauseResumeCancel(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.POST("/v1/workflows/hotfix/start", nil, "")
	h.AssertStatus(t, resp, http.StatusCreated)
	var inst instanceBody
	h.ParseJSON(resp, &inst)
	base := "/v1/instances/" + inst.ID

	resp = h.POST(base+"/pause", nil, "")
	h.AssertStatus(t, resp, http.StatusOK)
	h.ParseJSON(resp, &inst)
	if inst.State != string(model.MachineStatePaused) {
		t.Fatalf("state = %q, want paused", inst.State)
	}

	// Paused instances reject transitions.
	resp = h.POST(base+"/transition", map[string]any{"target_phase": "rollout"}, "")
	h.AssertStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	resp = h.POST(base+"/resume", nil, "")
	h.AssertStatus(t, resp, http.StatusOK)
	h.ParseJSON(resp, &inst)
	if inst.State != string(model.MachineStateRunning) {
		t.Fatalf("state = %q, want running after resume", inst.State)
	}

	resp = h.POST(base+"/cancel", map[string]any{"reason": "rolled into next release"}, "")
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = h.GET(base, "")
	h.AssertStatus(t, resp, http.StatusOK)
	h.ParseJSON(resp, &inst)
	if inst.State != string(model.MachineStateFailed) {
		t.Errorf("state = %q, want failed after cancel", inst.State)
	}
	if inst.Error != "rolled into next release" {
		t.Errorf("error = %q, want cancellation reason", inst.Error)
	}

	// Terminal instances cannot be cancelled again.
	resp = h.POST(base+"/cancel", nil, "")
	h.AssertStatus(t, resp, http.StatusConflict)
	resp.Body.Close()
}

func TestLifecycle_ListInstances(t *testing.T) {
	h := NewTestHarness(t)

	h.POST("/v1/workflows/release/start", nil, "").Body.Close()
	h.POST("/v1/workflows/hotfix/start", nil, "").Body.Close()

	resp := h.GET("/v1/instances?state=completed", "")
	h.AssertStatus(t, resp, http.StatusOK)
	var body struct {
		Data []struct {
			WorkflowID string `json:"workflow_id"`
			State      string `json:"state"`
		} `json:"data"`
	}
	h.ParseJSON(resp, &body)
	if len(body.Data) != 1 || body.Data[0].WorkflowID != "release" {
		t.Fatalf("data = %+v, want the completed release instance", body.Data)
	}
}

func TestLifecycle_AuthProtectsAPI(t *testing.T) {
	h := NewTestHarness(t, WithAuth())

	resp := h.POST("/v1/workflows/release/start", nil, "")
	h.AssertStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	token := h.GenerateToken(map[string]any{"sub": "operator-1"})
	resp = h.POST("/v1/workflows/release/start", nil, token)
	h.AssertStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	// Health stays open.
	resp = h.GET("/health", "")
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}
