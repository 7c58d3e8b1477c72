// Package dataset holds training examples together with their true optimal
// decisions.
package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/GoSim-25-26J-441/spotrain/internal/optmodel"
	"github.com/GoSim-25-26J-441/spotrain/internal/workpool"
	"github.com/GoSim-25-26J-441/spotrain/pkg/utils"
)

// ErrEmpty is returned when a dataset would contain no examples.
var ErrEmpty = errors.New("dataset: no examples")

// Example is one (features, cost) pair with the decision that is optimal
// under the true cost.
type Example struct {
	Features []float64
	Cost     []float64
	Sol      []float64
	Obj      float64
}

// Dataset is an ordered collection of examples sharing dimensions.
type Dataset struct {
	Examples []Example
	NumFeat  int
	NumCost  int
}

// Build solves every cost vector to optimality on the pool's clones and
// returns the resulting dataset. feats[i] and costs[i] describe example i.
func Build(ctx context.Context, pool *workpool.Pool, solve optmodel.SolveFunc, feats, costs [][]float64) (*Dataset, error) {
	if len(feats) == 0 {
		return nil, ErrEmpty
	}
	if len(feats) != len(costs) {
		return nil, fmt.Errorf("dataset: %d feature rows for %d cost rows", len(feats), len(costs))
	}
	ds := &Dataset{
		Examples: make([]Example, len(feats)),
		NumFeat:  len(feats[0]),
		NumCost:  len(costs[0]),
	}
	err := pool.Run(ctx, len(feats), func(i int, m optmodel.Model) error {
		if len(feats[i]) != ds.NumFeat {
			return fmt.Errorf("features: %w", &optmodel.DimensionError{Op: "build dataset", Got: len(feats[i]), Want: ds.NumFeat})
		}
		if err := m.SetObjective(costs[i]); err != nil {
			return err
		}
		sol, err := solve(m)
		if err != nil {
			return err
		}
		x, err := sol.X()
		if err != nil {
			return err
		}
		obj, err := sol.Objective()
		if err != nil {
			return err
		}
		ds.Examples[i] = Example{
			Features: append([]float64(nil), feats[i]...),
			Cost:     append([]float64(nil), costs[i]...),
			Sol:      x,
			Obj:      obj,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dataset: solve true optima: %w", err)
	}
	return ds, nil
}

// Len returns the number of examples.
func (d *Dataset) Len() int { return len(d.Examples) }

// Split returns the first n examples and the rest as two datasets sharing the
// underlying examples.
func (d *Dataset) Split(n int) (*Dataset, *Dataset, error) {
	if n <= 0 || n >= len(d.Examples) {
		return nil, nil, fmt.Errorf("dataset: split point %d outside (0, %d)", n, len(d.Examples))
	}
	head := &Dataset{Examples: d.Examples[:n:n], NumFeat: d.NumFeat, NumCost: d.NumCost}
	tail := &Dataset{Examples: d.Examples[n:], NumFeat: d.NumFeat, NumCost: d.NumCost}
	return head, tail, nil
}

// Batches partitions the example indices into batches of at most size. With a
// non-nil rng the order is shuffled; the last batch may be smaller.
func (d *Dataset) Batches(size int, rng *utils.RandSource) [][]int {
	n := len(d.Examples)
	if size <= 0 || size > n {
		size = n
	}
	var order []int
	if rng != nil {
		order = rng.Perm(n)
	} else {
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}
	}
	batches := make([][]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		batches = append(batches, order[start:end:end])
	}
	return batches
}

// Features returns the feature rows in order.
func (d *Dataset) Features() [][]float64 {
	out := make([][]float64, len(d.Examples))
	for i := range d.Examples {
		out[i] = d.Examples[i].Features
	}
	return out
}

// Costs returns the true cost rows in order.
func (d *Dataset) Costs() [][]float64 {
	out := make([][]float64, len(d.Examples))
	for i := range d.Examples {
		out[i] = d.Examples[i].Cost
	}
	return out
}
