// Package health aggregates component probes behind liveness and
// readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status of a single component or the whole service.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	// Critical failures make the service not ready; non-critical ones
	// only degrade it.
	Critical() bool
	Check(ctx context.Context) error
}

// Result is one component's probe outcome.
type Result struct {
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ms"`
}

// Report is the aggregate service health.
type Report struct {
	Status     Status            `json:"status"`
	Components map[string]Result `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// Manager runs registered checkers concurrently with a per-check
// timeout.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
	logger   *zap.Logger
}

func NewManager(timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{timeout: timeout, logger: logger}
}

func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Check probes every component and aggregates: any critical failure is
// unhealthy, any non-critical failure is degraded.
func (m *Manager) Check(ctx context.Context) Report {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	report := Report{
		Status:     StatusHealthy,
		Components: make(map[string]Result, len(checkers)),
		CheckedAt:  time.Now(),
	}

	type outcome struct {
		name     string
		critical bool
		result   Result
	}
	results := make(chan outcome, len(checkers))
	var wg sync.WaitGroup
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			start := time.Now()
			err := c.Check(cctx)
			res := Result{Status: StatusHealthy, Duration: time.Since(start) / time.Millisecond}
			if err != nil {
				res.Status = StatusUnhealthy
				res.Error = err.Error()
			}
			results <- outcome{name: c.Name(), critical: c.Critical(), result: res}
		}(c)
	}
	wg.Wait()
	close(results)

	for out := range results {
		report.Components[out.name] = out.result
		if out.result.Status == StatusHealthy {
			continue
		}
		if out.critical {
			report.Status = StatusUnhealthy
			m.logger.Warn("Critical component unhealthy",
				zap.String("component", out.name),
				zap.String("error", out.result.Error))
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}
	return report
}

// Ready reports whether every critical component is up.
func (m *Manager) Ready(ctx context.Context) bool {
	return m.Check(ctx).Status != StatusUnhealthy
}

// LivenessHandler always answers ok while the process can serve.
func (m *Manager) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// ReadinessHandler runs the full check and reports 503 when a critical
// dependency is down.
func (m *Manager) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := m.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	}
}
