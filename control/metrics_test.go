package control_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-session/api"
	"github.com/momentics/hioload-session/control"
)

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := control.NewMetrics(control.WithRegistry(reg), control.WithNamespace("test"))

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed(api.CloseTimeOut)
	m.CommandExecuted(true)
	m.CommandExecuted(false)
	m.CommandExecuted(false)
	m.SendRejected()
	m.RequestRejected()

	expected := `
# HELP test_sessions_active Number of connected sessions
# TYPE test_sessions_active gauge
test_sessions_active 1
# HELP test_sessions_total Total number of accepted sessions
# TYPE test_sessions_total counter
test_sessions_total 2
# HELP test_sessions_closed_total Closed sessions by close reason
# TYPE test_sessions_closed_total counter
test_sessions_closed_total{reason="timeout"} 1
# HELP test_commands_total Dispatched commands by result
# TYPE test_commands_total counter
test_commands_total{result="error"} 2
test_commands_total{result="ok"} 1
# HELP test_send_rejected_total TrySend calls that were not accepted
# TYPE test_send_rejected_total counter
test_send_rejected_total 1
# HELP test_requests_rejected_total Inbound data rejected by the pipeline
# TYPE test_requests_rejected_total counter
test_requests_rejected_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *control.Metrics
	assert.NotPanics(t, func() {
		m.SessionOpened()
		m.SessionClosed(api.CloseServerShutdown)
		m.CommandExecuted(true)
		m.SendRejected()
		m.RequestRejected()
	})
	assert.NotNil(t, m.Handler())
}

func TestMetricsHandler(t *testing.T) {
	m := control.NewMetrics(control.WithConstLabels(prometheus.Labels{"server": "unit"}))
	m.SessionOpened()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `hioload_sessions_active{server="unit"} 1`)
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("custom", func() any { return "value" })
	assert.Contains(t, dp.Names(), "custom")
	assert.Contains(t, dp.Names(), "runtime.goroutines")

	state := dp.DumpState()
	assert.Equal(t, "value", state["custom"])

	rec := httptest.NewRecorder()
	dp.ServeHTTP(rec, httptest.NewRequest("GET", "/debug/state", nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, "value", decoded["custom"])
	assert.Greater(t, decoded["runtime.cpus"], float64(0))
}
