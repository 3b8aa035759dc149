package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordBroadcast(t *testing.T) {
	m := NewMetrics()

	m.RecordBroadcast("governance_details_update", 2)
	m.RecordBroadcast("governance_details_update", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.broadcastsTotal.WithLabelValues("governance_details_update")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sendFailures))
}

func TestMetricsConnectionGauge(t *testing.T) {
	m := NewMetrics()

	m.RecordConnectionOpened()
	m.RecordConnectionOpened()
	m.RecordConnectionClosed("pruned")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsTotal.WithLabelValues("pruned")))
}

func TestMetricsCircuitStateIsExclusive(t *testing.T) {
	m := NewMetrics()

	m.SetCircuitState("open")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.circuitState.WithLabelValues("open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.circuitState.WithLabelValues("closed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.circuitState.WithLabelValues("half-open")))
}

func TestMetricsHandlerExposesHubSeries(t *testing.T) {
	m := NewMetrics()
	m.RecordSourceOutcome("risk_details", false)
	m.RecordBackendRequest("risk_details", http.MethodGet, "error", 10*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `govhub_snapshot_source_outcomes_total{outcome="error",source="risk_details"} 1`)
	assert.Contains(t, string(body), "govhub_backend_requests_total")
}
