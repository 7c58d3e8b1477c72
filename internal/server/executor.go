package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/GoSim-25-26J-441/spotrain/internal/metrics"
	"github.com/GoSim-25-26J-441/spotrain/internal/pipeline"
	"github.com/GoSim-25-26J-441/spotrain/internal/results"
	"github.com/GoSim-25-26J-441/spotrain/pkg/config"
	"github.com/GoSim-25-26J-441/spotrain/pkg/logger"
)

// Runner executes the experiments of one run. pipeline.Run is the default.
type Runner func(ctx context.Context, cfg *config.Config, opts pipeline.Options) (*pipeline.Summary, error)

// RunExecutor manages asynchronous run execution and per-run cancellation.
type RunExecutor struct {
	store    *RunStore
	runner   Runner
	metrics  *metrics.Registry
	notifier *Notifier
	log      *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewRunExecutor(store *RunStore, reg *metrics.Registry) *RunExecutor {
	if reg == nil {
		reg = metrics.NewRegistry(false)
	}
	return &RunExecutor{
		store:    store,
		runner:   pipeline.Run,
		metrics:  reg,
		notifier: NewNotifier(),
		log:      logger.Default,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// SetRunner replaces the function that executes runs.
func (e *RunExecutor) SetRunner(r Runner) { e.runner = r }

// SetNotifier replaces the completion notifier; nil disables callbacks.
func (e *RunExecutor) SetNotifier(n *Notifier) { e.notifier = n }

func (e *RunExecutor) SetLogger(l *slog.Logger) { e.log = l }

func (e *RunExecutor) Store() *RunStore { return e.store }

func (e *RunExecutor) Metrics() *metrics.Registry { return e.metrics }

// Submit parses configYAML, registers the run and starts it.
func (e *RunExecutor) Submit(runID, configYAML, callbackURL string) (*Run, error) {
	cfg, err := config.ParseConfigYAMLString(configYAML)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRun, err)
	}
	run, err := e.store.Create(runID, cfg, callbackURL)
	if err != nil {
		return nil, err
	}
	return e.Start(run.ID)
}

// Start begins executing a run asynchronously and returns it in the running state.
func (e *RunExecutor) Start(runID string) (*Run, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}
	run, ok := e.store.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	switch {
	case run.Status == StatusRunning:
		return run, nil
	case run.Status.Terminal():
		return nil, fmt.Errorf("%w: %s", ErrRunTerminal, runID)
	}

	// The cancel func is registered before the run is visible as running so
	// that a concurrent Stop always reaches it.
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if _, ok := e.cancels[runID]; ok {
		e.mu.Unlock()
		cancel()
		current, _ := e.store.Get(runID)
		return current, nil
	}
	e.cancels[runID] = cancel
	e.mu.Unlock()

	updated, err := e.store.SetStatus(runID, StatusRunning, "")
	if err != nil {
		e.cleanup(runID)
		return nil, err
	}

	e.wg.Add(1)
	go e.execute(ctx, runID, run.Config, run.CallbackURL)
	return updated, nil
}

// Stop cancels a run and marks it cancelled. Rows already saved are kept.
func (e *RunExecutor) Stop(runID string) (*Run, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}
	updated, err := e.store.SetStatus(runID, StatusCancelled, "")
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	cancel, ok := e.cancels[runID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	e.log.Info("Run cancelled", "run_id", runID)
	return updated, nil
}

// Shutdown cancels every active run and waits for them to return or for ctx to end.
func (e *RunExecutor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	for _, cancel := range e.cancels {
		cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *RunExecutor) cleanup(runID string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[runID]; ok {
		cancel()
		delete(e.cancels, runID)
	}
	e.mu.Unlock()
}

func (e *RunExecutor) execute(ctx context.Context, runID string, cfg *config.Config, callbackURL string) {
	defer e.wg.Done()
	defer e.cleanup(runID)

	log := e.log.With("run_id", runID)
	collector := metrics.NewCollector()
	if err := e.store.SetCollector(runID, collector); err != nil {
		log.Error("Failed to store collector", "error", err)
	}
	log.Info("Run started", "problem", cfg.Problem.Type, "method", cfg.Experiment.Method, "count", cfg.Experiment.Count)

	_, err := e.runner(ctx, cfg, pipeline.Options{
		Logger:    log,
		Metrics:   e.metrics,
		Collector: collector,
		OnExperiment: func(_ int, row results.Row) {
			if err := e.store.AddRow(runID, row); err != nil {
				log.Error("Failed to record row", "error", err)
			}
		},
	})

	status, msg := StatusCompleted, ""
	switch {
	case errors.Is(err, context.Canceled):
		status = StatusCancelled
	case err != nil:
		status, msg = StatusFailed, err.Error()
		log.Error("Run failed", "error", err)
	default:
		log.Info("Run completed")
	}

	final, setErr := e.store.SetStatus(runID, status, msg)
	if setErr != nil && !errors.Is(setErr, ErrRunTerminal) {
		log.Error("Failed to set final status", "status", status, "error", setErr)
		return
	}
	if e.notifier != nil && callbackURL != "" {
		e.notifier.Notify(callbackURL, final)
	}
}
