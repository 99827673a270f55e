package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")

	handler.RegisterChecker("postgres", NewCheckFunc("postgres", func(_ context.Context) error {
		return nil
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}

	if response.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", response.Version)
	}

	if len(response.Checks) != 1 {
		t.Errorf("expected 1 check, got %d", len(response.Checks))
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")

	handler.RegisterChecker("postgres", NewCheckFunc("postgres", func(_ context.Context) error {
		return errors.New("connection refused")
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", response.Status)
	}

	check, ok := response.Checks["postgres"]
	if !ok {
		t.Fatal("expected postgres check in response")
	}
	if check.Message != "connection refused" {
		t.Errorf("unexpected check message: %s", check.Message)
	}
}

func TestHealthHandler_CheckReceivesDeadline(t *testing.T) {
	handler := NewHandler("v1.0.0")

	handler.RegisterChecker("slow", NewCheckFunc("slow", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("check context has no deadline")
		}
		return nil
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("postgres", NewCheckFunc("postgres", func(_ context.Context) error {
		return nil
	}))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	// После отказа компонента готовность пропадает.
	handler.RegisterChecker("postgres", NewCheckFunc("postgres", func(_ context.Context) error {
		return errors.New("down")
	}))

	w = httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

type stubPinger struct{ err error }

func (s stubPinger) PingContext(_ context.Context) error { return s.err }

func TestPingChecker(t *testing.T) {
	check := NewPingChecker("postgres", stubPinger{}).Check(context.Background())
	if check.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", check.Status)
	}

	check = NewPingChecker("postgres", stubPinger{err: errors.New("no route")}).Check(context.Background())
	if check.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %s", check.Status)
	}
	if check.Message != "no route" {
		t.Errorf("unexpected message: %s", check.Message)
	}
}
