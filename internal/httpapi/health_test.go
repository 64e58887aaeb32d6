package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeDB struct{ err error }

func (f fakeDB) Ping(ctx context.Context) error { return f.err }

type fakeCache struct{ err error }

func (f fakeCache) Health(ctx context.Context) error { return f.err }

func TestHealthChecker_Liveness_AlwaysHealthy(t *testing.T) {
	h := NewHealthChecker(HealthCheckerConfig{Logger: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	rec := httptest.NewRecorder()
	h.HandleLiveness(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHealthChecker_Readiness_HealthyDB(t *testing.T) {
	h := NewHealthChecker(HealthCheckerConfig{DB: fakeDB{}, Logger: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.HandleReadiness(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHealthChecker_Readiness_UnhealthyDB(t *testing.T) {
	h := NewHealthChecker(HealthCheckerConfig{DB: fakeDB{err: errors.New("connection refused")}, Logger: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.HandleReadiness(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealthChecker_Readiness_NoDBConfigured(t *testing.T) {
	h := NewHealthChecker(HealthCheckerConfig{Logger: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.HandleReadiness(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when no trail store is wired", rec.Code)
	}
}

func TestHealthChecker_Readiness_CacheSkippedWhenNotWired(t *testing.T) {
	h := NewHealthChecker(HealthCheckerConfig{DB: fakeDB{}, Logger: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.HandleReadiness(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (missing cache should not fail readiness)", rec.Code)
	}
}

func TestHealthChecker_Readiness_CacheDegradedStillReady(t *testing.T) {
	h := NewHealthChecker(HealthCheckerConfig{
		DB:     fakeDB{},
		Cache:  fakeCache{err: errors.New("timeout")},
		Logger: zerolog.Nop(),
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.HandleReadiness(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (degraded cache should not fail readiness)", rec.Code)
	}
}

func TestHealthChecker_Health_CachesResult(t *testing.T) {
	calls := 0
	countingDB := func(ctx context.Context) error { calls++; return nil }
	h := NewHealthChecker(HealthCheckerConfig{
		DB:       dbCheckerFunc(countingDB),
		Logger:   zerolog.Nop(),
		CacheTTL: time.Minute,
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		h.HandleHealth(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d: status = %d, want 200", i, rec.Code)
		}
	}

	if calls != 1 {
		t.Fatalf("db checked %d times, want 1 (cached)", calls)
	}
}

type dbCheckerFunc func(ctx context.Context) error

func (f dbCheckerFunc) Ping(ctx context.Context) error { return f(ctx) }
