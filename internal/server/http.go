package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoSim-25-26J-441/spotrain/internal/metrics"
	"github.com/GoSim-25-26J-441/spotrain/pkg/logger"
)

// maxBodyBytes bounds the size of a create-run request.
const maxBodyBytes = 1 << 20

type HTTPServer struct {
	mux      *http.ServeMux
	store    *RunStore
	Executor *RunExecutor
}

// NewHTTPServer exposes the runs API, /healthz and the executor's
// Prometheus registry on /metrics.
func NewHTTPServer(executor *RunExecutor) *HTTPServer {
	s := &HTTPServer{
		mux:      http.NewServeMux(),
		store:    executor.Store(),
		Executor: executor,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/runs", s.handleRuns)
	s.mux.HandleFunc("/v1/runs/", s.handleRunByID)
	s.mux.Handle("/metrics", promhttp.HandlerFor(executor.Metrics().Gatherer(), promhttp.HandlerOpts{}))

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleRuns handles /v1/runs
func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleRunByID handles /v1/runs/{id}, /v1/runs/{id}:stop and /v1/runs/{id}/metrics
func (s *HTTPServer) handleRunByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	if runID, ok := strings.CutSuffix(path, ":stop"); ok {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleStopRun(w, runID)
		return
	}
	if runID, ok := strings.CutSuffix(path, "/metrics"); ok {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleRunMetrics(w, runID)
		return
	}
	if strings.Contains(path, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	run, ok := s.store.Get(path)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

type createRunRequest struct {
	RunID       string `json:"run_id"`
	ConfigYAML  string `json:"config_yaml"`
	CallbackURL string `json:"callback_url"`
}

func (s *HTTPServer) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	run, err := s.Executor.Submit(req.RunID, req.ConfigYAML, req.CallbackURL)
	if err != nil {
		s.writeError(w, httpStatus(err), err.Error())
		return
	}
	logger.Info("Run created", "run_id", run.ID, "problem", run.Problem, "method", run.Method)
	s.writeJSON(w, http.StatusCreated, map[string]any{"run": run})
}

func (s *HTTPServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	var status RunStatus
	if raw := q.Get("status"); raw != "" {
		if status = ParseRunStatus(raw); status == "" {
			s.writeError(w, http.StatusBadRequest, "invalid status: "+raw)
			return
		}
	}

	runs := s.store.List(limit, offset, status)
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *HTTPServer) handleStopRun(w http.ResponseWriter, runID string) {
	run, err := s.Executor.Stop(runID)
	if err != nil {
		s.writeError(w, httpStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

type seriesJSON struct {
	Labels      map[string]string    `json:"labels"`
	Steps       []int                `json:"steps"`
	Values      []float64            `json:"values"`
	Aggregation *metrics.Aggregation `json:"aggregation"`
}

func (s *HTTPServer) handleRunMetrics(w http.ResponseWriter, runID string) {
	run, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	collector, ok := s.store.Collector(runID)
	if !ok {
		s.writeError(w, http.StatusPreconditionFailed, "run has no metrics yet")
		return
	}

	labels := map[string]string{metrics.MethodLabel: run.Method}
	out := make(map[string]seriesJSON)
	for _, name := range collector.Names() {
		points := collector.Series(name, labels)
		if len(points) == 0 {
			continue
		}
		sj := seriesJSON{Labels: labels, Aggregation: collector.Aggregate(name, labels)}
		for _, p := range points {
			sj.Steps = append(sj.Steps, p.Step)
			sj.Values = append(sj.Values, p.Value)
		}
		out[name] = sj
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "series": out})
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid integer")
	}
	return v, nil
}

// httpStatus maps executor and store errors to response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrRunIDMissing), errors.Is(err, ErrInvalidRun):
		return http.StatusBadRequest
	case errors.Is(err, ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRunExists), errors.Is(err, ErrRunTerminal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}
