package dataset_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/spotrain/internal/dataset"
	"github.com/GoSim-25-26J-441/spotrain/internal/optmodel"
	"github.com/GoSim-25-26J-441/spotrain/internal/workpool"
	"github.com/GoSim-25-26J-441/spotrain/pkg/utils"
)

func build(t *testing.T, n int) *dataset.Dataset {
	t.Helper()
	m, err := optmodel.NewShortestPath(2, 2, optmodel.Options{})
	require.NoError(t, err)
	feats := make([][]float64, n)
	costs := make([][]float64, n)
	for i := range feats {
		feats[i] = []float64{float64(i)}
		if i%2 == 0 {
			costs[i] = []float64{1, 2, 1, 2}
		} else {
			costs[i] = []float64{2, 1, 2, 1}
		}
	}
	ds, err := dataset.Build(context.Background(), workpool.New(m, 2), optmodel.Relaxed, feats, costs)
	require.NoError(t, err)
	return ds
}

func TestBuildSolvesTrueOptima(t *testing.T) {
	ds := build(t, 6)
	require.Equal(t, 6, ds.Len())
	assert.Equal(t, 1, ds.NumFeat)
	assert.Equal(t, 4, ds.NumCost)
	for i, ex := range ds.Examples {
		assert.Equal(t, []float64{float64(i)}, ex.Features)
		assert.InDelta(t, 2, ex.Obj, 1e-9)
		if i%2 == 0 {
			assert.InDeltaSlice(t, []float64{1, 0, 1, 0}, ex.Sol, 1e-9)
		} else {
			assert.InDeltaSlice(t, []float64{0, 1, 0, 1}, ex.Sol, 1e-9)
		}
	}
}

func TestBuildErrors(t *testing.T) {
	m, err := optmodel.NewShortestPath(2, 2, optmodel.Options{})
	require.NoError(t, err)
	pool := workpool.New(m, 1)

	_, err = dataset.Build(context.Background(), pool, optmodel.Relaxed, nil, nil)
	assert.ErrorIs(t, err, dataset.ErrEmpty)

	_, err = dataset.Build(context.Background(), pool, optmodel.Relaxed, [][]float64{{0}}, nil)
	assert.Error(t, err)

	_, err = dataset.Build(context.Background(), pool, optmodel.Relaxed, [][]float64{{0}}, [][]float64{{1, 2}})
	assert.ErrorIs(t, err, optmodel.ErrDimension)
}

func TestSplit(t *testing.T) {
	ds := build(t, 5)
	head, tail, err := ds.Split(3)
	require.NoError(t, err)
	assert.Equal(t, 3, head.Len())
	assert.Equal(t, 2, tail.Len())
	assert.Equal(t, []float64{3}, tail.Examples[0].Features)

	_, _, err = ds.Split(5)
	assert.Error(t, err)
}

func TestBatches(t *testing.T) {
	ds := build(t, 7)
	ordered := ds.Batches(3, nil)
	assert.Equal(t, [][]int{{0, 1, 2}, {3, 4, 5}, {6}}, ordered)

	a := ds.Batches(3, utils.NewRandSource(11))
	b := ds.Batches(3, utils.NewRandSource(11))
	assert.Equal(t, a, b)
	var all []int
	for _, batch := range a {
		all = append(all, batch...)
	}
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6}, all)

	assert.Len(t, ds.Batches(0, nil), 1)
	assert.Len(t, ds.Features(), 7)
	assert.Len(t, ds.Costs(), 7)
}
