package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/spotrain/internal/metrics"
	"github.com/GoSim-25-26J-441/spotrain/internal/results"
	"github.com/GoSim-25-26J-441/spotrain/pkg/config"
	"github.com/GoSim-25-26J-441/spotrain/pkg/utils"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether a run in this state can no longer change.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ParseRunStatus parses a status name; unknown names give "".
func ParseRunStatus(s string) RunStatus {
	switch st := RunStatus(strings.ToLower(s)); st {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return st
	}
	return ""
}

// Run is a snapshot of one experiment run.
type Run struct {
	ID        string        `json:"id"`
	Status    RunStatus     `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	EndedAt   time.Time     `json:"ended_at,omitzero"`
	Error     string        `json:"error,omitempty"`
	Problem   string        `json:"problem"`
	Method    string        `json:"method"`
	Path      string        `json:"results_path,omitempty"`
	Rows      []results.Row `json:"rows"`

	Config      *config.Config `json:"-"`
	CallbackURL string         `json:"-"`
}

func (r *Run) snapshot() *Run {
	out := *r
	out.Rows = append([]results.Row(nil), r.Rows...)
	return &out
}

// RunStore keeps runs in memory. Every accessor returns copies.
type RunStore struct {
	mu         sync.RWMutex
	runs       map[string]*Run
	collectors map[string]*metrics.Collector
}

func NewRunStore() *RunStore {
	return &RunStore{
		runs:       make(map[string]*Run),
		collectors: make(map[string]*metrics.Collector),
	}
}

// Create registers a pending run. An empty runID gets a generated one.
func (s *RunStore) Create(runID string, cfg *config.Config, callbackURL string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runID == "" {
		runID = utils.GenerateRunID()
	}
	if strings.ContainsAny(runID, "/:") {
		return nil, fmt.Errorf("%w: run id cannot contain '/' or ':'", ErrInvalidRun)
	}
	if _, exists := s.runs[runID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
	}

	run := &Run{
		ID:          runID,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
		Problem:     cfg.Problem.Type,
		Method:      cfg.Experiment.Method,
		Path:        cfg.SavePath(),
		Config:      cfg,
		CallbackURL: callbackURL,
	}
	s.runs[runID] = run
	return run.snapshot(), nil
}

func (s *RunStore) Get(runID string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, false
	}
	return run.snapshot(), true
}

// List returns runs ordered by creation time, optionally filtered by status.
func (s *RunStore) List(limit, offset int, status RunStatus) []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	all := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status == "" || run.Status == status {
			all = append(all, run)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	if offset >= len(all) {
		return []*Run{}
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]*Run, len(all))
	for i, run := range all {
		out[i] = run.snapshot()
	}
	return out
}

// SetStatus moves a run to status. Terminal runs keep their state.
func (s *RunStore) SetStatus(runID string, status RunStatus, errMsg string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if run.Status.Terminal() {
		return run.snapshot(), fmt.Errorf("%w: %s is %s", ErrRunTerminal, runID, run.Status)
	}

	run.Status = status
	if errMsg != "" {
		run.Error = errMsg
	}
	switch {
	case status == StatusRunning:
		if run.StartedAt.IsZero() {
			run.StartedAt = time.Now().UTC()
		}
	case status.Terminal():
		run.EndedAt = time.Now().UTC()
	}
	return run.snapshot(), nil
}

// AddRow records the result of one finished experiment.
func (s *RunStore) AddRow(runID string, row results.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run.Rows = append(run.Rows, row)
	return nil
}

// SetCollector attaches the series collector of a run.
func (s *RunStore) SetCollector(runID string, c *metrics.Collector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	s.collectors[runID] = c
	return nil
}

// Collector returns the series collector of a run, if it has started.
func (s *RunStore) Collector(runID string) (*metrics.Collector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collectors[runID]
	return c, ok
}
