package httpapi

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/repstore/internal/metrics"
)

// Router assembles the engine's operational HTTP surface. It carries no
// rep-level CRUD routes of its own: reading, writing, and deltifying
// reps is a library call against repsvc.Service, not an HTTP verb, so
// this surface is limited to health and metrics.
type Router struct {
	health  *HealthChecker
	tracing *Tracing
	logger  zerolog.Logger
}

// RouterConfig configures a Router.
type RouterConfig struct {
	Health  *HealthChecker
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// NewRouter builds a Router.
func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		health:  cfg.Health,
		tracing: NewTracing(cfg.Metrics, cfg.Logger),
		logger:  cfg.Logger,
	}
}

// Handler returns the assembled http.Handler, with tracing wrapping
// every route.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	if rt.health != nil {
		mux.HandleFunc("/livez", rt.health.HandleLiveness)
		mux.HandleFunc("/readyz", rt.health.HandleReadiness)
		mux.HandleFunc("/healthz", rt.health.HandleHealth)
	}
	mux.Handle("/metrics", metrics.Handler())

	return rt.tracing.Middleware(mux)
}
