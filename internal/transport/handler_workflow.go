package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/orchest/internal/engine"
	"github.com/pitabwire/orchest/internal/store"
	"github.com/pitabwire/orchest/model"
)

func handleWorkflowStart(machine *engine.StateMachine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workflowID := chi.URLParam(r, "workflowId")

		var body struct {
			Metadata map[string]any `json:"metadata"`
		}
		if err := decodeOptionalBody(r, &body); err != nil {
			WriteError(w, err)
			return
		}

		inst, err := machine.StartWorkflow(r.Context(), workflowID, body.Metadata)
		if inst == nil {
			WriteError(w, err)
			return
		}
		// Chain failures are reflected in the instance state; the caller
		// still gets the created instance.
		WriteJSON(w, http.StatusCreated, inst)
	}
}

func handleInstanceGet(machine *engine.StateMachine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instanceID := chi.URLParam(r, "instanceId")

		inst, err := machine.GetWorkflowInstance(r.Context(), instanceID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func handleInstanceList(machine *engine.StateMachine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.Filter{
			WorkflowID: r.URL.Query().Get("workflow_id"),
			State:      model.MachineState(r.URL.Query().Get("state")),
			Limit:      queryInt(r, "limit", 50),
			Offset:     queryInt(r, "offset", 0),
		}

		summaries, err := machine.ListInstances(r.Context(), filter)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":   summaries,
			"limit":  filter.Limit,
			"offset": filter.Offset,
		})
	}
}

func handleInstancePause(machine *engine.StateMachine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instanceID := chi.URLParam(r, "instanceId")

		inst, err := machine.PauseWorkflow(r.Context(), instanceID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func handleInstanceResume(machine *engine.StateMachine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instanceID := chi.URLParam(r, "instanceId")

		inst, err := machine.ResumeWorkflow(r.Context(), instanceID)
		if inst == nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func handleInstanceCancel(machine *engine.StateMachine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instanceID := chi.URLParam(r, "instanceId")

		var body struct {
			Reason string `json:"reason"`
		}
		if err := decodeOptionalBody(r, &body); err != nil {
			WriteError(w, err)
			return
		}
		if body.Reason == "" {
			body.Reason = "cancelled by operator"
		}

		if err := machine.CancelWorkflow(r.Context(), instanceID, body.Reason); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

func handleInstanceTransition(machine *engine.StateMachine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instanceID := chi.URLParam(r, "instanceId")

		var body struct {
			TargetPhase string         `json:"target_phase"`
			Metadata    map[string]any `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if body.TargetPhase == "" {
			WriteError(w, model.NewBadRequestError("target_phase is required"))
			return
		}

		inst, err := machine.TransitionToPhase(r.Context(), instanceID, body.TargetPhase, body.Metadata)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

// decodeOptionalBody decodes a JSON body into dst, treating an empty body
// as the zero value.
func decodeOptionalBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return model.NewBadRequestError("invalid JSON body")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
