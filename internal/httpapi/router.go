// Package httpapi serves a read-mostly JSON API over the module data models,
// for property browsers and path pickers.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/agentic-research/dmpath/internal/binding"
	"github.com/agentic-research/dmpath/internal/metrics"
	"github.com/agentic-research/dmpath/internal/module"
)

// Config wires the router to its collaborators. Tracker and Store are
// optional; without them the binding routes answer 404.
type Config struct {
	Manager *module.Manager
	Tracker *binding.Tracker
	Store   *binding.Store
	Logger  zerolog.Logger

	// Metrics records request metrics when set.
	Metrics *metrics.Collector
	// Gatherer backs /metrics when set.
	Gatherer prometheus.Gatherer
	// MaxDepth bounds tree projections without an explicit depth.
	MaxDepth int
}

// NewRouter creates the HTTP router.
func NewRouter(cfg Config) chi.Router {
	h := &handlers{cfg: cfg}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newLoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	if cfg.Metrics != nil {
		r.Use(newMetricsMiddleware(cfg.Metrics))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/modules", func(r chi.Router) {
		r.Get("/", h.listModules)
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/enable", h.enableModule)
			r.Post("/disable", h.disableModule)
			r.Get("/tree", h.tree)
			r.Get("/value", h.value)
			r.Get("/members", h.members)
		})
	})

	r.Route("/bindings", func(r chi.Router) {
		r.Get("/", h.listBindings)
		r.Post("/", h.createBinding)
		r.Delete("/{id}", h.deleteBinding)
	})

	return r
}

func newMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			m.RequestsTotal.WithLabelValues(r.Method, route, statusLabel(ww.Status())).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func newLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				return
			}
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// statusLabel returns a string label for the status code.
func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
