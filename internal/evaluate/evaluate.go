// Package evaluate measures the decision quality of a trained predictor on
// held-out examples.
package evaluate

import (
	"context"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/spotrain/internal/dataset"
	"github.com/GoSim-25-26J-441/spotrain/internal/optmodel"
	"github.com/GoSim-25-26J-441/spotrain/internal/predictor"
	"github.com/GoSim-25-26J-441/spotrain/internal/surrogate"
	"github.com/GoSim-25-26J-441/spotrain/internal/workpool"
)

// DefaultTieTol is the slack allowed on the predicted objective when
// collecting tied predicted-optimal decisions.
const DefaultTieTol = 1e-5

// Kind selects a regret measure.
type Kind int

const (
	// TrueSPO credits the solver's decision under the predicted cost.
	TrueSPO Kind = iota
	// UnambSPO charges the worst true cost among all decisions that are
	// optimal under the predicted cost.
	UnambSPO
)

func (k Kind) String() string {
	if k == UnambSPO {
		return "Unamb SPO"
	}
	return "True SPO"
}

// Report aggregates per-example regrets.
type Report struct {
	Kind Kind
	// Normalized is Σ regret / Σ |z*|.
	Normalized float64
	// Mean is the mean absolute regret.
	Mean    float64
	Regrets []float64
}

// Evaluator computes regrets with a worker pool. Every worker solves on its
// own clone of the problem.
type Evaluator struct {
	Pool  *workpool.Pool
	Solve optmodel.SolveFunc
	// TieTol overrides DefaultTieTol when positive.
	TieTol float64
}

// Regret computes the regret report of kind for pred on ds.
func (e *Evaluator) Regret(ctx context.Context, kind Kind, pred predictor.Predictor, ds *dataset.Dataset) (*Report, error) {
	if ds.Len() == 0 {
		return nil, dataset.ErrEmpty
	}
	preds := predictor.PredictAll(pred, ds.Features())
	regrets := make([]float64, ds.Len())
	err := e.Pool.Run(ctx, ds.Len(), func(i int, m optmodel.Model) error {
		var err error
		if kind == UnambSPO {
			regrets[i], err = e.unambiguous(m, preds[i], &ds.Examples[i])
		} else {
			regrets[i], err = e.predicted(m, preds[i], &ds.Examples[i])
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", kind, err)
	}

	rep := &Report{Kind: kind, Regrets: regrets}
	var total, norm float64
	for i, r := range regrets {
		total += r
		norm += math.Abs(ds.Examples[i].Obj)
	}
	rep.Mean = total / float64(len(regrets))
	if norm > 0 {
		rep.Normalized = total / norm
	}
	return rep, nil
}

// predicted is the regret of the solver's decision under the predicted cost.
func (e *Evaluator) predicted(m optmodel.Model, pred []float64, ex *dataset.Example) (float64, error) {
	x, _, err := e.solveUnder(m, pred)
	if err != nil {
		return 0, err
	}
	return surrogate.Regret(m.Sense(), ex.Cost, x, ex.Obj), nil
}

// unambiguous restricts the model to decisions within TieTol of the
// predicted optimum and picks the one with the worst true cost.
func (e *Evaluator) unambiguous(m optmodel.Model, pred []float64, ex *dataset.Example) (float64, error) {
	_, zHat, err := e.solveUnder(m, pred)
	if err != nil {
		return 0, err
	}
	sign := m.Sense().Sign()
	coefs := make([]float64, len(pred))
	for j, v := range pred {
		coefs[j] = sign * v
	}
	tied, err := m.AddConstraint(coefs, sign*zHat+e.tieTol(zHat))
	if err != nil {
		return 0, err
	}
	worst := make([]float64, len(ex.Cost))
	for j, v := range ex.Cost {
		worst[j] = -v
	}
	x, _, err := e.solveUnder(tied, worst)
	if err != nil {
		return 0, fmt.Errorf("worst tied decision: %w", err)
	}
	return surrogate.Regret(m.Sense(), ex.Cost, x, ex.Obj), nil
}

func (e *Evaluator) tieTol(z float64) float64 {
	tol := e.TieTol
	if tol <= 0 {
		tol = DefaultTieTol
	}
	return tol * math.Max(1, math.Abs(z))
}

func (e *Evaluator) solveUnder(m optmodel.Model, c []float64) ([]float64, float64, error) {
	if err := m.SetObjective(c); err != nil {
		return nil, 0, err
	}
	sol, err := e.Solve(m)
	if err != nil {
		return nil, 0, err
	}
	x, err := sol.X()
	if err != nil {
		return nil, 0, err
	}
	obj, err := sol.Objective()
	if err != nil {
		return nil, 0, err
	}
	return x, obj, nil
}
