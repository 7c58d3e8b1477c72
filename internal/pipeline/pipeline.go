// Package pipeline runs repeated experiments end to end: data generation,
// training, evaluation and result persistence.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoSim-25-26J-441/spotrain/internal/bnb"
	"github.com/GoSim-25-26J-441/spotrain/internal/datagen"
	"github.com/GoSim-25-26J-441/spotrain/internal/dataset"
	"github.com/GoSim-25-26J-441/spotrain/internal/evaluate"
	"github.com/GoSim-25-26J-441/spotrain/internal/metrics"
	"github.com/GoSim-25-26J-441/spotrain/internal/optmodel"
	"github.com/GoSim-25-26J-441/spotrain/internal/predictor"
	"github.com/GoSim-25-26J-441/spotrain/internal/results"
	"github.com/GoSim-25-26J-441/spotrain/internal/surrogate"
	"github.com/GoSim-25-26J-441/spotrain/internal/train"
	"github.com/GoSim-25-26J-441/spotrain/internal/workpool"
	"github.com/GoSim-25-26J-441/spotrain/pkg/config"
	"github.com/GoSim-25-26J-441/spotrain/pkg/logger"
	"github.com/GoSim-25-26J-441/spotrain/pkg/sysinfo"
	"github.com/GoSim-25-26J-441/spotrain/pkg/utils"
)

// seedRange bounds the per-experiment seeds drawn from the run seed.
const seedRange = 999

// Options customise a pipeline run. The zero value is usable.
type Options struct {
	Logger    *slog.Logger
	Metrics   *metrics.Registry
	Collector *metrics.Collector
	// OnExperiment is called after each experiment's row is saved.
	OnExperiment func(index int, row results.Row)
}

// Summary lists the rows written by one run.
type Summary struct {
	Path string
	Rows []results.Row
}

// Run executes cfg.Experiment.Count experiments and appends one row per
// experiment to cfg.SavePath(). Rows saved before a failure stay on disk.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default
	}
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.NewRegistry(false)
	}

	log.Info("Running experiments",
		append([]any{"problem", cfg.Problem.Type, "size", cfg.ProblemSize(), "method", cfg.Experiment.Method},
			sysinfo.Collect().LogArgs()...)...)

	store, err := results.Open(cfg.SavePath())
	if err != nil {
		return nil, err
	}
	summary := &Summary{Path: store.Path()}
	rng := utils.NewRandSource(cfg.Experiment.Seed)

	for i := 0; i < cfg.Experiment.Count; i++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		seed := rng.Int63n(seedRange)
		expLog := log.With("experiment", i, "seed", seed)
		expLog.Info("Experiment started")

		row, err := runExperiment(ctx, cfg, seed, expLog, reg, opts.Collector)
		reg.ExperimentDone(err)
		if err != nil {
			return summary, fmt.Errorf("experiment %d: %w", i, err)
		}
		if err := store.Append(row); err != nil {
			return summary, err
		}
		summary.Rows = append(summary.Rows, row)
		expLog.Info("Saved results",
			"path", store.Path(),
			"true_spo", row.TrueSPO,
			"unamb_spo", row.UnambSPO,
			"elapsed", row.Elapsed)

		if cfg.MetricsFile != "" {
			if err := reg.WriteTextfile(cfg.MetricsFile); err != nil {
				expLog.Warn("Failed to write metrics file", "path", cfg.MetricsFile, "error", err)
			}
		}
		if opts.OnExperiment != nil {
			opts.OnExperiment(i, row)
		}
	}
	return summary, nil
}

// instance is a generated problem: a template model plus its samples.
type instance struct {
	model optmodel.Model
	feats [][]float64
	costs [][]float64
}

func generate(cfg *config.Config, seed int64) (*instance, error) {
	p := datagen.Params{
		Samples: cfg.Data.Train + cfg.Data.Test,
		NumFeat: cfg.Data.Features,
		Deg:     cfg.Data.Degree,
		Noise:   cfg.Data.Noise,
		Seed:    seed,
	}
	backend, err := optmodel.ParseBackend(cfg.Solver.Backend())
	if err != nil {
		return nil, err
	}
	mopts := optmodel.Options{Backend: backend, Solver: cfg.Solver.Name}

	switch pr := cfg.Problem; pr.Type {
	case "sp":
		d, err := datagen.ShortestPath(p, pr.Grid[0], pr.Grid[1])
		if err != nil {
			return nil, err
		}
		m, err := optmodel.NewShortestPath(pr.Grid[0], pr.Grid[1], mopts)
		if err != nil {
			return nil, err
		}
		return &instance{model: m, feats: d.Feats, costs: d.Costs}, nil
	case "ks":
		d, err := datagen.Knapsack(p, pr.Items, pr.Dim)
		if err != nil {
			return nil, err
		}
		caps := make([]float64, pr.Dim)
		for i := range caps {
			caps[i] = float64(pr.Capacity)
		}
		m, err := optmodel.NewKnapsack(d.Weights, caps, mopts)
		if err != nil {
			return nil, err
		}
		return &instance{model: m, feats: d.Feats, costs: d.Costs}, nil
	case "tsp":
		form, err := optmodel.ParseFormulation(pr.Formulation)
		if err != nil {
			return nil, err
		}
		d, err := datagen.TSP(p, pr.Nodes)
		if err != nil {
			return nil, err
		}
		m, err := optmodel.NewTSP(pr.Nodes, form, mopts)
		if err != nil {
			return nil, err
		}
		return &instance{model: m, feats: d.Feats, costs: d.Costs}, nil
	default:
		return nil, fmt.Errorf("unknown problem type %q", pr.Type)
	}
}

func runExperiment(ctx context.Context, cfg *config.Config, seed int64, log *slog.Logger,
	reg *metrics.Registry, collector *metrics.Collector) (results.Row, error) {
	var row results.Row
	inst, err := generate(cfg, seed)
	if err != nil {
		return row, fmt.Errorf("generate data: %w", err)
	}

	prob := cfg.Problem.Type
	engine := bnb.New(bnb.Options{
		Observer: func(s bnb.Stats) { reg.ObserveSearch(prob, s.Nodes) },
	})
	exact := reg.InstrumentSolve(prob, engine.Solve)
	trainSolve := exact
	if cfg.Experiment.Relax {
		trainSolve = reg.InstrumentSolve(prob, optmodel.Relaxed)
	}

	pool := workpool.New(inst.model, cfg.Training.Workers)
	ds, err := dataset.Build(ctx, pool, exact, inst.feats, inst.costs)
	if err != nil {
		return row, err
	}
	trainSet, testSet, err := ds.Split(cfg.Data.Train)
	if err != nil {
		return row, err
	}
	log.Info("Datasets built", "train", trainSet.Len(), "test", testSet.Len(), "num_cost", ds.NumCost)

	kind, err := predictor.ParseKind(cfg.Experiment.Predictor)
	if err != nil {
		return row, err
	}
	rng := utils.NewRandSource(seed)
	pred, err := predictor.New(kind, ds.NumFeat, ds.NumCost, cfg.Training.Hidden, rng.Child())
	if err != nil {
		return row, err
	}

	trainer := train.NewTrainer(pool, trainSolve, rng.Child())
	trainer.SetLogger(log)
	trainer.SetMetrics(reg)
	trainer.SetCollector(collector)
	evaluator := &evaluate.Evaluator{Pool: pool, Solve: exact}
	trainer.SetEvaluator(evaluator)

	tick := time.Now()
	res, err := trainer.Train(ctx, train.Config{
		Method:    surrogate.Method(cfg.Experiment.Method),
		Epochs:    cfg.Training.Epochs,
		BatchSize: cfg.Training.Batch,
		Optimizer: cfg.Training.Optimizer,
		LR:        cfg.Training.LR,
		L1:        cfg.Training.L1,
		L2:        cfg.Training.L2,
		Smoothing: cfg.Training.Smoothing,
		EvalEvery: cfg.Experiment.EvalEvery,
	}, pred, trainSet, testSet)
	if err != nil {
		return row, err
	}
	elapsed := time.Since(tick)
	log.Info("Training finished", "elapsed", elapsed)

	trueSPO, err := evaluator.Regret(ctx, evaluate.TrueSPO, res.Predictor, testSet)
	if err != nil {
		return row, err
	}
	unambSPO, err := evaluator.Regret(ctx, evaluate.UnambSPO, res.Predictor, testSet)
	if err != nil {
		return row, err
	}
	method := cfg.Experiment.Method
	reg.SetRegret(method, metrics.MetricTrueSPO, trueSPO.Normalized)
	reg.SetRegret(method, metrics.MetricUnambSPO, unambSPO.Normalized)
	if collector != nil {
		labels := map[string]string{metrics.MethodLabel: method}
		collector.Record(metrics.MetricUnambSPO, res.Epochs, unambSPO.Normalized, labels)
	}
	log.Info("Evaluation finished",
		"true_spo", trueSPO.Normalized,
		"unamb_spo", unambSPO.Normalized,
		"mean_regret", trueSPO.Mean)

	return results.Row{
		TrueSPO:  trueSPO.Normalized,
		UnambSPO: unambSPO.Normalized,
		Elapsed:  elapsed.Seconds(),
		Epochs:   cfg.Training.Epochs,
	}, nil
}
