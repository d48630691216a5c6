package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"PingTower/internal/scheduler/handlers"

	"github.com/gin-gonic/gin"
)

type fakeHealth struct {
	err error
}

func (f fakeHealth) Healthy() (bool, error) {
	return f.err == nil, f.err
}

func newTestServer(health HealthChecker) *Server {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWithHandlers(&Config{Port: 0, Mode: "debug", Service: "pingtower-scheduler", Version: "test"},
		handlers.New(nil, nil, nil, logger), health, logger)
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	w := serve(newTestServer(fakeHealth{}), http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"service":"pingtower-scheduler"`) {
		t.Errorf("body = %s", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name   string
		health fakeHealth
		want   int
	}{
		{"queue reachable", fakeHealth{}, http.StatusOK},
		{"queue unreachable", fakeHealth{err: errors.New("dial tcp: connection refused")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(newTestServer(tt.health), http.MethodGet, "/ready")
			if w.Code != tt.want {
				t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := newTestServer(fakeHealth{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("request id = %q", got)
	}
}

func TestNotFound(t *testing.T) {
	w := serve(newTestServer(fakeHealth{}), http.MethodGet, "/api/v1/nope")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestInvalidMonitorID(t *testing.T) {
	w := serve(newTestServer(fakeHealth{}), http.MethodPost, "/api/v1/monitors/zero/enable")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}
