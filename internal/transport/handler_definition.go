package transport

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/orchest/internal/definition"
	"github.com/pitabwire/orchest/model"
)

func handleDefinitionList(registry *definition.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		defs := registry.All()
		sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })

		type workflowSummary struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			InitialPhase string `json:"initial_phase"`
			PhaseCount   int    `json:"phase_count"`
		}
		out := make([]workflowSummary, 0, len(defs))
		for _, def := range defs {
			out = append(out, workflowSummary{
				ID:           def.ID,
				Name:         def.Name,
				InitialPhase: def.InitialPhase,
				PhaseCount:   len(def.Phases),
			})
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":     out,
			"checksum": registry.Checksum(),
		})
	}
}

func handleDefinitionGet(registry *definition.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workflowID := chi.URLParam(r, "workflowId")

		def, ok := registry.Workflow(workflowID)
		if !ok {
			WriteError(w, model.NewWorkflowNotFoundError(workflowID))
			return
		}
		WriteJSON(w, http.StatusOK, def)
	}
}
