package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status представляет статус компонента
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// defaultCheckTimeout ограничивает время одной проверки, чтобы зависший
// компонент (например БД) не блокировал весь /healthz.
const defaultCheckTimeout = 2 * time.Second

// Check представляет результат проверки компонента
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response представляет ответ health check
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker интерфейс для проверки здоровья компонента
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler обрабатывает health check запросы
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	timeout   time.Duration
	startTime time.Time
}

// NewHandler создаёт новый health handler
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		timeout:   defaultCheckTimeout,
		startTime: time.Now(),
	}
}

// RegisterChecker регистрирует проверку компонента
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

func (h *Handler) snapshot() map[string]Checker {
	h.mu.RLock()
	defer h.mu.RUnlock()

	checkers := make(map[string]Checker, len(h.checkers))
	for k, v := range h.checkers {
		checkers[k] = v
	}
	return checkers
}

func (h *Handler) runChecks(ctx context.Context) (map[string]Check, Status) {
	checks := make(map[string]Check)
	overall := StatusHealthy

	for name, checker := range h.snapshot() {
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		check := checker.Check(checkCtx)
		cancel()

		checks[name] = check

		if check.Status == StatusUnhealthy {
			overall = StatusUnhealthy
		} else if check.Status == StatusDegraded && overall == StatusHealthy {
			overall = StatusDegraded
		}
	}

	return checks, overall
}

// ServeHTTP обрабатывает HTTP запрос
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks, overall := h.runChecks(r.Context())

	response := Response{
		Status:        overall,
		Timestamp:     time.Now(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler простой liveness probe (всегда возвращает 200)
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler проверяет готовность к обработке запросов
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	_, overall := h.runChecks(r.Context())

	if overall == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// CheckFunc оборачивает функцию в Checker
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheckFunc создаёт проверку из функции
func NewCheckFunc(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Check выполняет проверку
func (c *CheckFunc) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.fn(ctx)
	duration := time.Since(start)

	if err != nil {
		return Check{
			Name:       c.name,
			Status:     StatusUnhealthy,
			Message:    err.Error(),
			DurationMs: duration.Milliseconds(),
		}
	}

	return Check{
		Name:       c.name,
		Status:     StatusHealthy,
		DurationMs: duration.Milliseconds(),
	}
}

// Pinger покрывает хранилища с проверкой соединения (database/sql, pgx).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewPingChecker создаёт проверку соединения с хранилищем.
func NewPingChecker(name string, p Pinger) *CheckFunc {
	return NewCheckFunc(name, func(ctx context.Context) error {
		return p.PingContext(ctx)
	})
}
