package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func checker(name string, critical bool, err error) Checker {
	return CheckFunc{
		ProbeName:  name,
		IsCritical: critical,
		Probe:      func(context.Context) error { return err },
	}
}

func TestAllHealthy(t *testing.T) {
	m := NewManager(time.Second, zaptest.NewLogger(t))
	m.Register(checker("redis", true, nil))
	m.Register(checker("qdrant", true, nil))

	report := m.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Len(t, report.Components, 2)
	assert.True(t, m.Ready(context.Background()))
}

func TestCriticalFailureIsUnhealthy(t *testing.T) {
	m := NewManager(time.Second, zaptest.NewLogger(t))
	m.Register(checker("redis", true, errors.New("connection refused")))
	m.Register(checker("llm", false, nil))

	report := m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "connection refused", report.Components["redis"].Error)
	assert.False(t, m.Ready(context.Background()))
}

func TestNonCriticalFailureDegrades(t *testing.T) {
	m := NewManager(time.Second, zaptest.NewLogger(t))
	m.Register(checker("redis", true, nil))
	m.Register(checker("llm", false, errors.New("rate limited")))

	report := m.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.True(t, m.Ready(context.Background()), "degraded still serves")
}

func TestCheckTimeout(t *testing.T) {
	m := NewManager(50*time.Millisecond, zaptest.NewLogger(t))
	m.Register(CheckFunc{
		ProbeName:  "slow",
		IsCritical: true,
		Probe: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	report := m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
}

func TestReadinessHandler(t *testing.T) {
	m := NewManager(time.Second, zaptest.NewLogger(t))
	m.Register(checker("redis", true, errors.New("down")))

	rec := httptest.NewRecorder()
	m.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}

func TestLivenessHandler(t *testing.T) {
	m := NewManager(time.Second, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	m.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
