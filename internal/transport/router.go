package transport

import (
	"database/sql"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/formbase/internal/config"
	"github.com/pitabwire/formbase/internal/function"
	"github.com/pitabwire/formbase/internal/observability"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config   *config.Config
	Log      *zap.Logger
	DB       *sql.DB
	Registry *function.Registry
	Metrics  *observability.Metrics
	Ready    observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and one
// route per registered definition. Health, readiness, and metrics endpoints
// bypass the authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(Recovery(deps.Log))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Ready))
	if deps.Config.Observability.Metrics.Enabled {
		r.Method("GET", deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}
		r.Use(JWTAuthenticator(deps.Config.Identity, deps.Log))
		r.Use(BuildRequestContext(deps.Config.Identity))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(deps.Log))

		for _, def := range deps.Registry.Definitions() {
			r.Method(def.Method, def.Path, endpointHandler(def, deps.DB, deps.Log))
		}
	})

	return r
}
