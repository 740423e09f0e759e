package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/orchest/internal/config"
	"github.com/pitabwire/orchest/internal/definition"
	"github.com/pitabwire/orchest/internal/engine"
	"github.com/pitabwire/orchest/internal/observability"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Engine       *engine.StateMachine
	Definitions  *definition.Registry
	Readiness    observability.ReadinessChecks
	Authenticate func(http.Handler) http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(deps.Logger))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes — bypass authentication.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(deps.Logger))
		r.Use(observability.TracingMiddleware)
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Route("/v1", func(r chi.Router) {
			r.Get("/workflows", handleDefinitionList(deps.Definitions))
			r.Get("/workflows/{workflowId}", handleDefinitionGet(deps.Definitions))
			r.Post("/workflows/{workflowId}/start", handleWorkflowStart(deps.Engine))

			r.Get("/instances", handleInstanceList(deps.Engine))
			r.Get("/instances/{instanceId}", handleInstanceGet(deps.Engine))
			r.Post("/instances/{instanceId}/pause", handleInstancePause(deps.Engine))
			r.Post("/instances/{instanceId}/resume", handleInstanceResume(deps.Engine))
			r.Post("/instances/{instanceId}/cancel", handleInstanceCancel(deps.Engine))
			r.Post("/instances/{instanceId}/transition", handleInstanceTransition(deps.Engine))
		})
	})

	return r
}
