package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestRouter_LivezServed(t *testing.T) {
	rt := NewRouter(RouterConfig{
		Health: NewHealthChecker(HealthCheckerConfig{Logger: zerolog.Nop()}),
		Logger: zerolog.Nop(),
	})

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	rec := httptest.NewRecorder()
	rt.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Fatal("expected tracing middleware to stamp a request ID")
	}
}

func TestRouter_MetricsServed(t *testing.T) {
	rt := NewRouter(RouterConfig{Logger: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	rt.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_UnknownPathNotFound(t *testing.T) {
	rt := NewRouter(RouterConfig{Logger: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()
	rt.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
