// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the orchestration API.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/pitabwire/orchest/model"
)

// statusForCode maps engine error codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:            http.StatusBadRequest,
	model.ErrUnauthorized:          http.StatusUnauthorized,
	model.ErrWorkflowNotFound:      http.StatusNotFound,
	model.ErrInstanceNotFound:      http.StatusNotFound,
	model.ErrPhaseNotFound:         http.StatusNotFound,
	model.ErrPhaseInstanceNotFound: http.StatusNotFound,
	model.ErrInvalidState:          http.StatusConflict,
	model.ErrNoCurrentPhase:        http.StatusConflict,
	model.ErrConflict:              http.StatusConflict,
	model.ErrTransition:            http.StatusConflict,
	model.ErrPhaseExecution:        http.StatusUnprocessableEntity,
	model.ErrInternalError:         http.StatusInternalServerError,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes an engine error as a JSON response with the correct
// HTTP status code. Errors without an envelope become a generic 500.
func WriteError(w http.ResponseWriter, err error) {
	var body any
	switch e := err.(type) {
	case *model.ErrorEnvelope:
		body = e
	case *model.PhaseExecutionError:
		body = e
	case *model.TransitionError:
		body = e
	default:
		body = model.NewInternalError()
	}

	status := statusForCode[model.CodeOf(err)]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	WriteJSON(w, status, map[string]any{"error": body})
}
