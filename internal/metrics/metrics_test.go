package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shift-roster/internal/shift"
)

func TestObserveTransition(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveTransition(shift.StatusPending, shift.StatusActive)
	m.ObserveTransition(shift.StatusPending, shift.StatusActive)
	m.ObserveTransition(shift.StatusActive, shift.StatusDone)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.statusTransitions.WithLabelValues("pending", "active")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.statusTransitions.WithLabelValues("active", "done")))
}

func TestObserveSnapshot(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	for _, outcome := range []string{"pending", "pending", "saved", "already_recorded"} {
		m.ObserveSnapshot(outcome)
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.snapshotAttempts.WithLabelValues("pending")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.snapshotAttempts.WithLabelValues("saved")))
	assert.Positive(t, testutil.ToFloat64(m.lastSnapshotSaved))
}

func TestObserveRequestAndHandler(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	m.ObserveRequest(http.MethodGet, "GET /people", http.StatusOK, 15*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "GET /people", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "roster_http_requests_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTransition(shift.StatusPending, shift.StatusDone)
		m.ObserveSnapshot("saved")
		m.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	})
}

func TestDuplicateRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := New(registry)
	require.NoError(t, err)
	_, err = New(registry)
	assert.Error(t, err)
}
