package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/spotrain/internal/metrics"
	"github.com/GoSim-25-26J-441/spotrain/internal/pipeline"
	"github.com/GoSim-25-26J-441/spotrain/pkg/config"
)

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, &buf))

	var out map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr.Code, out
}

func TestHTTPServerHealthz(t *testing.T) {
	exec := newTestExecutor(blockingRunner(0))
	srv := NewHTTPServer(exec)

	code, body := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestHTTPServerRunLifecycle(t *testing.T) {
	exec := newTestExecutor(blockingRunner(1))
	defer shutdown(t, exec)
	h := NewHTTPServer(exec).Handler()

	code, body := doJSON(t, h, http.MethodPost, "/v1/runs", map[string]any{
		"run_id":      "run-http",
		"config_yaml": smallConfigYAML(t),
	})
	require.Equal(t, http.StatusCreated, code, body)
	run := body["run"].(map[string]any)
	assert.Equal(t, "run-http", run["id"])
	assert.Equal(t, "running", run["status"])
	assert.Equal(t, "sp", run["problem"])

	waitForRows(t, exec.Store(), "run-http", 1)

	code, body = doJSON(t, h, http.MethodGet, "/v1/runs/run-http", nil)
	require.Equal(t, http.StatusOK, code)
	rows := body["run"].(map[string]any)["rows"].([]any)
	require.Len(t, rows, 1)
	assert.InDelta(t, 0.1, rows[0].(map[string]any)["true_spo"], 1e-12)

	code, body = doJSON(t, h, http.MethodGet, "/v1/runs?status=running", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["runs"], 1)
	code, body = doJSON(t, h, http.MethodGet, "/v1/runs?status=completed", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["runs"])

	code, body = doJSON(t, h, http.MethodPost, "/v1/runs/run-http:stop", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cancelled", body["run"].(map[string]any)["status"])

	code, _ = doJSON(t, h, http.MethodPost, "/v1/runs/run-http:stop", nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestHTTPServerErrors(t *testing.T) {
	exec := newTestExecutor(blockingRunner(0))
	defer shutdown(t, exec)
	h := NewHTTPServer(exec).Handler()
	yaml := smallConfigYAML(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad yaml", http.MethodPost, "/v1/runs", map[string]any{"config_yaml": "problem: {type: lp}"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/v1/runs", map[string]any{"config": yaml}, http.StatusBadRequest},
		{"first create", http.MethodPost, "/v1/runs", map[string]any{"run_id": "dup", "config_yaml": yaml}, http.StatusCreated},
		{"duplicate", http.MethodPost, "/v1/runs", map[string]any{"run_id": "dup", "config_yaml": yaml}, http.StatusConflict},
		{"missing run", http.MethodGet, "/v1/runs/nope", nil, http.StatusNotFound},
		{"stop missing run", http.MethodPost, "/v1/runs/nope:stop", nil, http.StatusNotFound},
		{"stop via get", http.MethodGet, "/v1/runs/dup:stop", nil, http.StatusMethodNotAllowed},
		{"delete runs", http.MethodDelete, "/v1/runs", nil, http.StatusMethodNotAllowed},
		{"bad limit", http.MethodGet, "/v1/runs?limit=-1", nil, http.StatusBadRequest},
		{"bad status", http.MethodGet, "/v1/runs?status=paused", nil, http.StatusBadRequest},
		{"unknown subresource", http.MethodGet, "/v1/runs/dup/rows", nil, http.StatusNotFound},
		{"empty id", http.MethodGet, "/v1/runs/", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := doJSON(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, code, body)
			if code >= 400 {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestHTTPServerRunMetrics(t *testing.T) {
	exec := newTestExecutor(func(ctx context.Context, cfg *config.Config, opts pipeline.Options) (*pipeline.Summary, error) {
		labels := map[string]string{metrics.MethodLabel: cfg.Experiment.Method}
		for epoch, loss := range []float64{3, 2, 1} {
			opts.Collector.Record(metrics.MetricTrainLoss, epoch, loss, labels)
		}
		opts.Metrics.ExperimentDone(nil)
		return &pipeline.Summary{}, nil
	})
	defer shutdown(t, exec)
	h := NewHTTPServer(exec).Handler()

	code, _ := doJSON(t, h, http.MethodPost, "/v1/runs", map[string]any{"run_id": "run-m", "config_yaml": smallConfigYAML(t)})
	require.Equal(t, http.StatusCreated, code)
	waitForStatus(t, exec.Store(), "run-m", StatusCompleted)

	code, body := doJSON(t, h, http.MethodGet, "/v1/runs/run-m/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	series := body["series"].(map[string]any)[metrics.MetricTrainLoss].(map[string]any)
	assert.Equal(t, []any{3.0, 2.0, 1.0}, series["values"])
	agg := series["aggregation"].(map[string]any)
	assert.InDelta(t, 2.0, agg["mean"], 1e-12)
	assert.Equal(t, 3.0, agg["count"])

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `spotrain_experiments_total{outcome="succeeded"} 1`)
}

func waitForRows(t *testing.T, store *RunStore, runID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		run, ok := store.Get(runID)
		return ok && len(run.Rows) >= n
	}, 5*time.Second, 5*time.Millisecond)
}
