package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kaunda/regcycle/internal/config"
	"github.com/kaunda/regcycle/internal/engine"
	"github.com/kaunda/regcycle/internal/escalation"
	"github.com/kaunda/regcycle/internal/observability"
	"github.com/kaunda/regcycle/internal/sla"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Engine       *engine.Engine
	Tracker      *sla.Tracker
	Escalation   *escalation.Manager
	Metrics      *observability.Metrics
	Authenticate func(http.Handler) http.Handler
	Readiness    observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if deps.Config.Observability.Tracing.Enabled {
		r.Use(observability.TracingMiddleware)
	}
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	// Public routes, no authentication.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler())
	}

	// Authenticated routes behind the full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)

		r.Route("/api/processes/{cycleId}/{reportId}", func(r chi.Router) {
			r.Route("/phases/{phase}", func(r chi.Router) {
				r.Post("/init", handlePhaseInit(deps.Engine))
				r.Get("/activities", handlePhaseActivities(deps.Engine))
				r.Get("/status", handlePhaseStatus(deps.Engine))

				r.Route("/activities/{code}", func(r chi.Router) {
					r.Post("/transition", handleTransition(deps.Engine))
					r.Post("/materialize", handleMaterialize(deps.Engine))
					r.Post("/reset", handleReset(deps.Engine))
					r.Get("/history", handleHistory(deps.Engine))
				})
			})

			r.Get("/sla", handleSLAStatus(deps.Tracker))
			r.Get("/escalations", handleEscalations(deps.Escalation))
		})

		r.Post("/api/sweep", handleSweep(deps.Escalation))
	})

	return r
}
