package surrogate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/GoSim-25-26J-441/spotrain/internal/bnb"
	"github.com/GoSim-25-26J-441/spotrain/internal/dataset"
	"github.com/GoSim-25-26J-441/spotrain/internal/optmodel"
	"github.com/GoSim-25-26J-441/spotrain/internal/surrogate"
)

// On the 2x2 grid the only paths are 0-1-3 (arcs 0 and 2) and 0-2-3 (arcs 1 and 3).
var (
	northPath = []float64{1, 0, 1, 0}
	southPath = []float64{0, 1, 0, 1}
)

func gridExample(t *testing.T, cost []float64) (optmodel.Model, *dataset.Example) {
	t.Helper()
	m, err := optmodel.NewShortestPath(2, 2, optmodel.Options{})
	require.NoError(t, err)
	require.NoError(t, m.SetObjective(cost))
	sol, err := m.Solve()
	require.NoError(t, err)
	x, err := sol.X()
	require.NoError(t, err)
	obj, err := sol.Objective()
	require.NoError(t, err)
	return m.Clone(), &dataset.Example{Features: []float64{0}, Cost: cost, Sol: x, Obj: obj}
}

func cosine(a, b []float64) float64 {
	return floats.Dot(a, b) / (floats.Norm(a, 2) * floats.Norm(b, 2))
}

func TestParseMethod(t *testing.T) {
	for in, want := range map[string]surrogate.Method{"2s": surrogate.TwoStage, "SPO": surrogate.SPOPlus, " bb": surrogate.BlackBox} {
		got, err := surrogate.ParseMethod(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := surrogate.ParseMethod("dbb")
	assert.Error(t, err)

	_, err = surrogate.New(surrogate.BlackBox, 0)
	assert.Error(t, err)
}

func TestTwoStageIsSquaredError(t *testing.T) {
	loss, err := surrogate.New(surrogate.TwoStage, 0)
	require.NoError(t, err)
	assert.False(t, loss.UsesSolver())

	ex := &dataset.Example{Cost: []float64{1, 2}}
	v, grad, err := loss.Evaluate(nil, nil, []float64{2, 0}, ex)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, v, 1e-12)
	assert.InDeltaSlice(t, []float64{1, -2}, grad, 1e-12)

	_, _, err = loss.Evaluate(nil, nil, []float64{1}, ex)
	assert.ErrorIs(t, err, optmodel.ErrDimension)
}

func TestZeroGradientAtPerfectPrediction(t *testing.T) {
	cost := []float64{1, 2, 1, 2}
	solve := bnb.New(bnb.Options{}).Solve
	for _, tc := range []struct {
		method    surrogate.Method
		smoothing float64
	}{
		{surrogate.SPOPlus, 0},
		{surrogate.BlackBox, 1},
	} {
		t.Run(string(tc.method), func(t *testing.T) {
			m, ex := gridExample(t, cost)
			loss, err := surrogate.New(tc.method, tc.smoothing)
			require.NoError(t, err)
			v, grad, err := loss.Evaluate(m, solve, cost, ex)
			require.NoError(t, err)
			assert.InDelta(t, 0, v, 1e-9)
			assert.InDeltaSlice(t, []float64{0, 0, 0, 0}, grad, 1e-9)
		})
	}
}

func TestSPOPlusMinimize(t *testing.T) {
	m, ex := gridExample(t, []float64{1, 5, 1, 5})
	require.InDeltaSlice(t, northPath, ex.Sol, 1e-9)

	loss, err := surrogate.New(surrogate.SPOPlus, 0)
	require.NoError(t, err)
	pred := []float64{5, 1, 5, 1}
	v, grad, err := loss.Evaluate(m, optmodel.Relaxed, pred, ex)
	require.NoError(t, err)

	// 2ĉ - c = [9 -3 9 -3] picks the south path with value -6.
	// loss = 6 + 2·(5+5) - 2 = 24.
	assert.InDelta(t, 24, v, 1e-7)
	assert.InDeltaSlice(t, []float64{2, -2, 2, -2}, grad, 1e-7)
	// The loss bounds the regret of the predicted decision from above.
	assert.GreaterOrEqual(t, v, surrogate.Regret(optmodel.Minimize, ex.Cost, southPath, ex.Obj))
}

func TestBlackBoxAgreesWithSPOPlusNearBreakpoint(t *testing.T) {
	cost := []float64{1, 2, 1, 2}
	spo, err := surrogate.New(surrogate.SPOPlus, 0)
	require.NoError(t, err)

	for _, lambda := range []float64{1, 0.1, 0.01} {
		m, ex := gridExample(t, cost)
		// The north path is dearer than the south one by λ/2 under the prediction,
		// so a perturbation of width λ flips the decision.
		a := 1 + lambda/4
		pred := []float64{a, 1, a, 1}

		bb, err := surrogate.New(surrogate.BlackBox, lambda)
		require.NoError(t, err)
		_, gBB, err := bb.Evaluate(m, optmodel.Relaxed, pred, ex)
		require.NoError(t, err)
		_, gSPO, err := spo.Evaluate(m, optmodel.Relaxed, pred, ex)
		require.NoError(t, err)

		require.Greater(t, floats.Norm(gBB, 2), 0.0, "lambda %g", lambda)
		assert.InDelta(t, 1, cosine(gBB, gSPO), 1e-9, "lambda %g", lambda)
		assert.InDeltaSlice(t, []float64{1 / lambda, -1 / lambda, 1 / lambda, -1 / lambda}, gBB, 1e-6)
	}
}

func TestMaximizeSignConvention(t *testing.T) {
	m, err := optmodel.NewKnapsack([][]float64{{1, 1}}, []float64{1}, optmodel.Options{})
	require.NoError(t, err)
	ex := &dataset.Example{Cost: []float64{2, 1}, Sol: []float64{1, 0}, Obj: 2}
	pred := []float64{1, 1.5}
	solve := bnb.New(bnb.Options{}).Solve

	spo, err := surrogate.New(surrogate.SPOPlus, 0)
	require.NoError(t, err)
	v, grad, err := spo.Evaluate(m, solve, pred, ex)
	require.NoError(t, err)
	assert.InDelta(t, 2, v, 1e-7)
	assert.InDeltaSlice(t, []float64{-2, 2}, grad, 1e-7)

	bb, err := surrogate.New(surrogate.BlackBox, 2)
	require.NoError(t, err)
	v, grad, err = bb.Evaluate(m, solve, pred, ex)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-7)
	assert.InDeltaSlice(t, []float64{-0.5, 0.5}, grad, 1e-7)

	// A gradient step moves the prediction toward the truly better item.
	next := append([]float64(nil), pred...)
	floats.AddScaled(next, -1, grad)
	assert.Greater(t, next[0], next[1])
}

func TestEvaluateRejectsWrongDimensions(t *testing.T) {
	m, ex := gridExample(t, []float64{1, 2, 1, 2})
	for _, method := range []surrogate.Method{surrogate.SPOPlus, surrogate.BlackBox} {
		loss, err := surrogate.New(method, 1)
		require.NoError(t, err)
		_, _, err = loss.Evaluate(m, optmodel.Relaxed, []float64{1, 2}, ex)
		assert.ErrorIs(t, err, optmodel.ErrDimension)
	}
}
