package train_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/spotrain/internal/bnb"
	"github.com/GoSim-25-26J-441/spotrain/internal/datagen"
	"github.com/GoSim-25-26J-441/spotrain/internal/dataset"
	"github.com/GoSim-25-26J-441/spotrain/internal/evaluate"
	"github.com/GoSim-25-26J-441/spotrain/internal/metrics"
	"github.com/GoSim-25-26J-441/spotrain/internal/optmodel"
	"github.com/GoSim-25-26J-441/spotrain/internal/predictor"
	"github.com/GoSim-25-26J-441/spotrain/internal/surrogate"
	"github.com/GoSim-25-26J-441/spotrain/internal/train"
	"github.com/GoSim-25-26J-441/spotrain/internal/workpool"
	"github.com/GoSim-25-26J-441/spotrain/pkg/logger"
	"github.com/GoSim-25-26J-441/spotrain/pkg/utils"
)

type fixture struct {
	pool        *workpool.Pool
	train, test *dataset.Dataset
}

func shortestPath(t *testing.T, n, proc int) fixture {
	t.Helper()
	m, err := optmodel.NewShortestPath(3, 3, optmodel.Options{})
	require.NoError(t, err)
	pool := workpool.New(m, proc)
	data, err := datagen.ShortestPath(datagen.Params{Samples: n, NumFeat: 2, Deg: 1, Seed: 135}, 3, 3)
	require.NoError(t, err)
	ds, err := dataset.Build(context.Background(), pool, optmodel.Relaxed, data.Feats, data.Costs)
	require.NoError(t, err)
	tr, te, err := ds.Split(n * 2 / 3)
	require.NoError(t, err)
	return fixture{pool: pool, train: tr, test: te}
}

func quiet(tr *train.Trainer) *train.Trainer {
	tr.SetLogger(logger.New("error", io.Discard))
	return tr
}

func TestSPOPlusReducesRegret(t *testing.T) {
	// 3x3 grid, two features, no noise, 200 training and 200 test examples,
	// exact solves throughout.
	const epochs = 20
	exact := bnb.New(bnb.Options{}).Solve
	m, err := optmodel.NewShortestPath(3, 3, optmodel.Options{})
	require.NoError(t, err)
	pool := workpool.New(m, 2)
	data, err := datagen.ShortestPath(datagen.Params{Samples: 400, NumFeat: 2, Deg: 1, Seed: 7}, 3, 3)
	require.NoError(t, err)
	ds, err := dataset.Build(context.Background(), pool, exact, data.Feats, data.Costs)
	require.NoError(t, err)
	trainSet, testSet, err := ds.Split(200)
	require.NoError(t, err)

	rng := utils.NewRandSource(7)
	pred, err := predictor.New(predictor.KindLinear, 2, trainSet.NumCost, nil, rng)
	require.NoError(t, err)

	ev := &evaluate.Evaluator{Pool: pool, Solve: exact}
	before, err := ev.Regret(context.Background(), evaluate.TrueSPO, pred, testSet)
	require.NoError(t, err)

	collector := metrics.NewCollector()
	tr := quiet(train.NewTrainer(pool, exact, rng))
	tr.SetEvaluator(ev)
	tr.SetCollector(collector)
	tr.SetMetrics(metrics.NewRegistry(false))
	res, err := tr.Train(context.Background(), train.Config{
		Method:    surrogate.SPOPlus,
		Epochs:    epochs,
		BatchSize: 32,
		Optimizer: "adam",
		LR:        0.01,
		EvalEvery: 1,
	}, pred, trainSet, testSet)
	require.NoError(t, err)

	assert.Equal(t, epochs, res.Epochs)
	require.Len(t, res.Losses, epochs)
	assert.Less(t, res.Losses[epochs-1], res.Losses[0])
	assert.Len(t, collector.Values(metrics.MetricTrainLoss, map[string]string{metrics.MethodLabel: "spo"}), epochs)

	require.Len(t, res.Evals, epochs)
	regrets := make([]float64, epochs)
	for i, e := range res.Evals {
		assert.Equal(t, i+1, e.Epoch)
		regrets[i] = e.TrueSPO
	}
	assert.Less(t, mean(regrets[epochs-5:]), mean(regrets[:5]), "regret should fall over training: %v", regrets)
	assert.Less(t, regrets[epochs-1], 0.01, "final normalized regret: %v", regrets)

	after, err := ev.Regret(context.Background(), evaluate.TrueSPO, res.Predictor, testSet)
	require.NoError(t, err)
	assert.Less(t, after.Normalized, before.Normalized)
	assert.InDelta(t, after.Normalized, regrets[epochs-1], 1e-12)

	unamb, err := ev.Regret(context.Background(), evaluate.UnambSPO, res.Predictor, testSet)
	require.NoError(t, err)
	assert.Less(t, unamb.Normalized, 0.01)
}

func mean(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func TestTwoStageWithRegularisation(t *testing.T) {
	f := shortestPath(t, 60, 1)
	rng := utils.NewRandSource(2)
	pred, err := predictor.New(predictor.KindLinear, 2, f.train.NumCost, []int{8}, rng)
	require.NoError(t, err)
	res, err := quiet(train.NewTrainer(f.pool, optmodel.Relaxed, rng)).Train(context.Background(), train.Config{
		Method:    surrogate.TwoStage,
		Epochs:    15,
		BatchSize: 8,
		Optimizer: "sgd",
		LR:        0.01,
		L1:        0.1,
		L2:        0.1,
	}, pred, f.train, nil)
	require.NoError(t, err)
	assert.Less(t, res.Losses[len(res.Losses)-1], res.Losses[0])
}

func TestForestIsFittedForTwoStageOnly(t *testing.T) {
	f := shortestPath(t, 45, 1)
	rng := utils.NewRandSource(3)
	tr := quiet(train.NewTrainer(f.pool, optmodel.Relaxed, rng))
	cfg := train.Config{Method: surrogate.TwoStage, Epochs: 5, BatchSize: 8, Optimizer: "adam", LR: 0.1}

	forest := predictor.NewForest(2, f.train.NumCost, predictor.ForestOptions{Trees: 5}, rng)
	res, err := tr.Train(context.Background(), cfg, forest, f.train, nil)
	require.NoError(t, err)
	assert.True(t, forest.Fitted())
	assert.Zero(t, res.Epochs)

	cfg.Method = surrogate.SPOPlus
	_, err = tr.Train(context.Background(), cfg, predictor.NewForest(2, f.train.NumCost, predictor.ForestOptions{}, rng), f.train, nil)
	assert.ErrorIs(t, err, train.ErrNotDifferentiable)
}

func TestSolverFailureAbortsRun(t *testing.T) {
	f := shortestPath(t, 30, 2)
	boom := errors.New("solver down")
	failing := func(optmodel.Model) (*optmodel.Solution, error) { return nil, boom }
	rng := utils.NewRandSource(4)
	pred := predictor.NewLinear(2, f.train.NumCost, rng)

	_, err := quiet(train.NewTrainer(f.pool, failing, rng)).Train(context.Background(), train.Config{
		Method: surrogate.BlackBox, Smoothing: 10, Epochs: 3, BatchSize: 4, Optimizer: "adam", LR: 0.1,
	}, pred, f.train, nil)
	assert.ErrorIs(t, err, boom)
}

func TestCancelledContextStopsTraining(t *testing.T) {
	f := shortestPath(t, 30, 1)
	rng := utils.NewRandSource(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := quiet(train.NewTrainer(f.pool, optmodel.Relaxed, rng)).Train(ctx, train.Config{
		Method: surrogate.SPOPlus, Epochs: 3, BatchSize: 4, Optimizer: "adam", LR: 0.1,
	}, predictor.NewLinear(2, f.train.NumCost, rng), f.train, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigValidation(t *testing.T) {
	f := shortestPath(t, 30, 1)
	rng := utils.NewRandSource(6)
	tr := quiet(train.NewTrainer(f.pool, optmodel.Relaxed, rng))
	good := train.Config{Method: surrogate.SPOPlus, Epochs: 1, BatchSize: 4, Optimizer: "adam", LR: 0.1}
	require.NoError(t, good.Validate())

	for _, mutate := range []func(*train.Config){
		func(c *train.Config) { c.Method = "dbb" },
		func(c *train.Config) { c.BatchSize = 0 },
		func(c *train.Config) { c.L1 = -1 },
		func(c *train.Config) { c.EvalEvery = -1 },
	} {
		cfg := good
		mutate(&cfg)
		assert.Error(t, cfg.Validate())
	}

	_, err := tr.Train(context.Background(), good, predictor.NewLinear(3, f.train.NumCost, rng), f.train, nil)
	assert.Error(t, err)
	bad := good
	bad.Optimizer = "lbfgs"
	_, err = tr.Train(context.Background(), bad, predictor.NewLinear(2, f.train.NumCost, rng), f.train, nil)
	assert.Error(t, err)
}
