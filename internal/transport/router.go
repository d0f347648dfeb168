package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/opsdesk/internal/config"
	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/internal/session"
	"github.com/pitabwire/opsdesk/model"
)

// ScreenCatalog lists and resolves screen definitions.
type ScreenCatalog interface {
	GetScreen(screenID string) (model.ScreenDefinition, bool)
	Summaries() []model.ScreenSummary
}

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config      *config.Config
	Screens     ScreenCatalog
	Sessions    *session.Manager
	Metrics     *observability.Metrics
	Gatherer    prometheus.Gatherer
	Readiness   observability.ReadinessChecks
	RateLimiter *RateLimiter
	Logger      *zap.Logger
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// request context and rate limit layers.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, observability.Handler(deps.Gatherer))
	}

	h := &handlers{screens: deps.Screens, sessions: deps.Sessions}

	r.Group(func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(BuildRequestContext)
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware)
		}
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		r.Use(deps.Metrics.MetricsMiddleware)

		r.Get("/ui/screens", h.listScreens)
		r.Get("/ui/screens/{screenId}", h.getScreen)
		r.Post("/ui/screens/{screenId}/sessions", h.openSession)

		r.Route("/ui/sessions/{sessionId}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.closeSession)
			r.Post("/filters", h.withSession(h.setFilters))
			r.Post("/page", h.withSession(h.changePage))
			r.Post("/refresh", h.withSession(h.refresh))

			r.Post("/views/push", h.withSession(h.pushView))
			r.Post("/views/replace", h.withSession(h.replaceView))
			r.Post("/views/pop", h.withSession(h.popView))
			r.Post("/views/close", h.withSession(h.closeView))
			r.Post("/views/reset", h.withSession(h.resetView))

			r.Post("/menu/open", h.withSession(h.openMenu))
			r.Post("/menu/close", h.withSession(h.closeMenu))
			r.Post("/menu/interact", h.withSession(h.interactMenu))

			r.Get("/records/{recordId}/invoice", h.withSession(h.invoice))
		})
	})

	return r
}
