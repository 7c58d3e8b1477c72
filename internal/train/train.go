// Package train fits a predictor to a dataset by minimising a surrogate
// decision loss with mini-batch gradient steps.
package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/GoSim-25-26J-441/spotrain/internal/dataset"
	"github.com/GoSim-25-26J-441/spotrain/internal/evaluate"
	"github.com/GoSim-25-26J-441/spotrain/internal/metrics"
	"github.com/GoSim-25-26J-441/spotrain/internal/optmodel"
	"github.com/GoSim-25-26J-441/spotrain/internal/predictor"
	"github.com/GoSim-25-26J-441/spotrain/internal/surrogate"
	"github.com/GoSim-25-26J-441/spotrain/internal/workpool"
	"github.com/GoSim-25-26J-441/spotrain/pkg/logger"
	"github.com/GoSim-25-26J-441/spotrain/pkg/utils"
)

// ErrNotDifferentiable is returned when a decision-focused method is asked
// to train a predictor that has no gradient.
var ErrNotDifferentiable = errors.New("train: predictor is not differentiable")

// Config holds the hyperparameters of one training run.
type Config struct {
	Method    surrogate.Method
	Epochs    int
	BatchSize int
	Optimizer string
	LR        float64
	// L1 and L2 penalise the prediction error ĉ - c.
	L1 float64
	L2 float64
	// Smoothing is the black-box interpolation width.
	Smoothing float64
	// EvalEvery evaluates on the test set every that many epochs; 0 disables it.
	EvalEvery int
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := surrogate.ParseMethod(string(c.Method)); err != nil {
		return err
	}
	if c.Epochs < 0 {
		return fmt.Errorf("train: epochs must not be negative, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("train: batch size must be positive, got %d", c.BatchSize)
	}
	if c.L1 < 0 || c.L2 < 0 {
		return fmt.Errorf("train: regularisation must not be negative, got l1=%g l2=%g", c.L1, c.L2)
	}
	if c.EvalEvery < 0 {
		return fmt.Errorf("train: evaluation interval must not be negative, got %d", c.EvalEvery)
	}
	return nil
}

// Eval is one intermediate evaluation on the test set.
type Eval struct {
	Epoch   int
	TrueSPO float64
}

// Result describes a finished run.
type Result struct {
	Predictor predictor.Predictor
	Epochs    int
	// Losses holds the mean training loss of every epoch.
	Losses  []float64
	Evals   []Eval
	Elapsed time.Duration
}

// Trainer runs training on a worker pool. It may be reused for several runs
// but not concurrently.
type Trainer struct {
	pool      *workpool.Pool
	solve     optmodel.SolveFunc
	evaluator *evaluate.Evaluator
	rng       *utils.RandSource
	logger    *slog.Logger
	metrics   *metrics.Registry
	collector *metrics.Collector
}

// NewTrainer creates a trainer whose solver work runs on pool. rng drives
// the batch order.
func NewTrainer(pool *workpool.Pool, solve optmodel.SolveFunc, rng *utils.RandSource) *Trainer {
	return &Trainer{
		pool:      pool,
		solve:     solve,
		evaluator: &evaluate.Evaluator{Pool: pool, Solve: solve},
		rng:       rng,
		logger:    logger.Default,
	}
}

// SetLogger sets the trainer's logger.
func (t *Trainer) SetLogger(l *slog.Logger) { t.logger = l }

// SetMetrics publishes epoch losses and evaluations to r.
func (t *Trainer) SetMetrics(r *metrics.Registry) { t.metrics = r }

// SetCollector records loss and evaluation series in c.
func (t *Trainer) SetCollector(c *metrics.Collector) { t.collector = c }

// SetEvaluator replaces the evaluator used for intermediate evaluations.
func (t *Trainer) SetEvaluator(e *evaluate.Evaluator) { t.evaluator = e }

// Train fits pred on trainSet. testSet is only used for intermediate
// evaluations and may be nil when cfg.EvalEvery is 0.
func (t *Trainer) Train(ctx context.Context, cfg Config, pred predictor.Predictor, trainSet, testSet *dataset.Dataset) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if trainSet.Len() == 0 {
		return nil, dataset.ErrEmpty
	}
	if pred.NumIn() != trainSet.NumFeat || pred.NumOut() != trainSet.NumCost {
		return nil, fmt.Errorf("train: predictor shape %d -> %d does not match data %d -> %d",
			pred.NumIn(), pred.NumOut(), trainSet.NumFeat, trainSet.NumCost)
	}
	start := time.Now()

	diff, ok := pred.(predictor.Differentiable)
	if !ok {
		fit, isFitter := pred.(predictor.Fitter)
		if !isFitter || cfg.Method != surrogate.TwoStage {
			return nil, fmt.Errorf("%w: method %s", ErrNotDifferentiable, cfg.Method)
		}
		t.logger.Info("Fitting predictor", "method", cfg.Method, "samples", trainSet.Len())
		if err := fit.Fit(trainSet.Features(), trainSet.Costs()); err != nil {
			return nil, fmt.Errorf("train: %w", err)
		}
		return &Result{Predictor: pred, Elapsed: time.Since(start)}, nil
	}

	loss, err := surrogate.New(cfg.Method, cfg.Smoothing)
	if err != nil {
		return nil, err
	}
	opt, err := predictor.NewOptimizer(cfg.Optimizer, cfg.LR)
	if err != nil {
		return nil, err
	}

	t.logger.Info("Starting training",
		"method", cfg.Method,
		"epochs", cfg.Epochs,
		"batch_size", cfg.BatchSize,
		"optimizer", cfg.Optimizer,
		"lr", cfg.LR,
		"workers", t.pool.Size())

	res := &Result{Predictor: pred}
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		var total float64
		batches := trainSet.Batches(cfg.BatchSize, t.rng)
		for _, batch := range batches {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			l, err := t.step(ctx, cfg, loss, opt, diff, trainSet, batch)
			if err != nil {
				return nil, fmt.Errorf("train: epoch %d: %w", epoch, err)
			}
			total += l * float64(len(batch))
		}
		mean := total / float64(trainSet.Len())
		res.Losses = append(res.Losses, mean)
		res.Epochs = epoch
		t.logger.Debug("Epoch finished", "epoch", epoch, "loss", mean)
		if t.metrics != nil {
			t.metrics.SetEpochLoss(string(cfg.Method), mean)
		}
		if t.collector != nil {
			t.collector.Record(metrics.MetricTrainLoss, epoch, mean, map[string]string{metrics.MethodLabel: string(cfg.Method)})
		}

		if cfg.EvalEvery > 0 && testSet != nil && epoch%cfg.EvalEvery == 0 {
			rep, err := t.evaluator.Regret(ctx, evaluate.TrueSPO, pred, testSet)
			if err != nil {
				return nil, fmt.Errorf("train: epoch %d: %w", epoch, err)
			}
			res.Evals = append(res.Evals, Eval{Epoch: epoch, TrueSPO: rep.Normalized})
			t.logger.Info("Evaluation",
				"epoch", epoch,
				"loss", mean,
				"true_spo", rep.Normalized)
			if t.collector != nil {
				t.collector.Record(metrics.MetricTrueSPO, epoch, rep.Normalized, map[string]string{metrics.MethodLabel: string(cfg.Method)})
			}
		}
	}
	res.Elapsed = time.Since(start)
	t.logger.Info("Training completed", "epochs", res.Epochs, "elapsed", res.Elapsed)
	return res, nil
}

// step runs forward, loss, backward and update for one batch and returns
// the mean batch loss. All solves finish before the update.
func (t *Trainer) step(ctx context.Context, cfg Config, loss surrogate.Loss, opt predictor.Optimizer,
	pred predictor.Differentiable, ds *dataset.Dataset, batch []int) (float64, error) {
	preds := make([][]float64, len(batch))
	for k, i := range batch {
		preds[k] = pred.Predict(ds.Examples[i].Features)
	}

	losses := make([]float64, len(batch))
	grads := make([][]float64, len(batch))
	err := t.pool.Run(ctx, len(batch), func(k int, m optmodel.Model) error {
		ex := &ds.Examples[batch[k]]
		l, g, err := loss.Evaluate(m, t.solve, preds[k], ex)
		if err != nil {
			return err
		}
		l += regularize(cfg, preds[k], ex.Cost, g)
		losses[k], grads[k] = l, g
		return nil
	})
	if err != nil {
		return 0, err
	}

	params := pred.Params()
	grad := make([]float64, len(params))
	scale := 1 / float64(len(batch))
	var mean float64
	for k, i := range batch {
		for j := range grads[k] {
			grads[k][j] *= scale
		}
		pred.Backward(ds.Examples[i].Features, grads[k], grad)
		mean += losses[k] * scale
	}
	opt.Step(params, grad)
	return mean, nil
}

// regularize adds the L1 and L2 penalties on ĉ - c to grad and returns their value.
func regularize(cfg Config, pred, cost, grad []float64) float64 {
	if cfg.L1 == 0 && cfg.L2 == 0 {
		return 0
	}
	n := float64(len(pred))
	var l1, l2 float64
	for j, p := range pred {
		d := p - cost[j]
		l1 += math.Abs(d)
		l2 += d * d
		grad[j] += cfg.L1*sign(d)/n + cfg.L2*2*d/n
	}
	return cfg.L1*l1/n + cfg.L2*l2/n
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
