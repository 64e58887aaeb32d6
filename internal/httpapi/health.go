// Package httpapi exposes the representation engine's operational HTTP
// surface: liveness/readiness/detailed health probes and the Prometheus
// scrape endpoint. Adapted from a handler package's HealthChecker and
// Router, trimmed of every route belonging to an object-storage API
// surface this engine doesn't expose.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DatabaseChecker is satisfied by pgdb.DB and sqlitedb.DB.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker is satisfied by rediscache.Client. Optional: a nil
// CacheChecker (no distributed cache wired) is reported as "skipped",
// not unhealthy.
type CacheChecker interface {
	Health(ctx context.Context) error
}

// HealthChecker backs the /livez, /readyz, and /healthz endpoints.
type HealthChecker struct {
	db     DatabaseChecker
	cache  CacheChecker
	logger zerolog.Logger

	mu           sync.RWMutex
	cachedStatus *HealthStatus
	cacheExpiry  time.Time
	cacheTTL     time.Duration
}

// HealthCheckerConfig configures a HealthChecker.
type HealthCheckerConfig struct {
	DB       DatabaseChecker
	Cache    CacheChecker
	Logger   zerolog.Logger
	CacheTTL time.Duration
}

// NewHealthChecker builds a HealthChecker.
func NewHealthChecker(cfg HealthCheckerConfig) *HealthChecker {
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Second
	}
	return &HealthChecker{
		db:       cfg.DB,
		cache:    cfg.Cache,
		logger:   cfg.Logger.With().Str("component", "health").Logger(),
		cacheTTL: cacheTTL,
	}
}

// HealthStatus is the detailed health response shape.
type HealthStatus struct {
	Status     string                      `json:"status"`
	Timestamp  time.Time                   `json:"timestamp"`
	Uptime     string                      `json:"uptime,omitempty"`
	Components map[string]*ComponentStatus `json:"components"`
}

// ComponentStatus is one dependency's health.
type ComponentStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Status constants.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusSkipped   = "skipped"
)

var startTime = time.Now()

// HandleLiveness answers the Kubernetes liveness probe: always healthy
// once the process is serving requests at all.
func (h *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": StatusHealthy})
}

// HandleReadiness answers the Kubernetes readiness probe: checks the
// backing trail store (and cache, if wired) before admitting traffic.
func (h *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.checkComponents(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// HandleHealth serves the detailed, cached health report.
func (h *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	if h.cachedStatus != nil && time.Now().Before(h.cacheExpiry) {
		status := h.cachedStatus
		h.mu.RUnlock()
		h.writeHealthResponse(w, status)
		return
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := h.checkComponents(ctx)
	status.Uptime = time.Since(startTime).Round(time.Second).String()

	h.mu.Lock()
	h.cachedStatus = status
	h.cacheExpiry = time.Now().Add(h.cacheTTL)
	h.mu.Unlock()

	h.writeHealthResponse(w, status)
}

func (h *HealthChecker) writeHealthResponse(w http.ResponseWriter, status *HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

func (h *HealthChecker) checkComponents(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]*ComponentStatus),
	}

	status.Components["trail_store"] = h.checkDB(ctx)
	status.Components["cache"] = h.checkCache(ctx)

	for _, comp := range status.Components {
		if comp.Status == StatusUnhealthy {
			status.Status = StatusUnhealthy
		}
	}
	return status
}

func (h *HealthChecker) checkDB(ctx context.Context) *ComponentStatus {
	if h.db == nil {
		return &ComponentStatus{Status: StatusUnhealthy, Error: "trail store not configured"}
	}
	start := time.Now()
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("trail store health check failed")
		return &ComponentStatus{Status: StatusUnhealthy, Latency: time.Since(start).String(), Error: err.Error()}
	}
	return &ComponentStatus{Status: StatusHealthy, Latency: time.Since(start).String()}
}

func (h *HealthChecker) checkCache(ctx context.Context) *ComponentStatus {
	if h.cache == nil {
		return &ComponentStatus{Status: StatusSkipped}
	}
	start := time.Now()
	if err := h.cache.Health(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("cache health check failed")
		return &ComponentStatus{Status: StatusDegraded, Latency: time.Since(start).String(), Error: err.Error()}
	}
	return &ComponentStatus{Status: StatusHealthy, Latency: time.Since(start).String()}
}
