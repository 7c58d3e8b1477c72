// Package surrogate turns the piecewise-constant map from predicted costs to
// optimal decisions into losses with usable gradients.
package surrogate

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/GoSim-25-26J-441/spotrain/internal/dataset"
	"github.com/GoSim-25-26J-441/spotrain/internal/optmodel"
)

// Method names a training method.
type Method string

const (
	TwoStage Method = "2s"
	SPOPlus  Method = "spo"
	BlackBox Method = "bb"
)

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case TwoStage, SPOPlus, BlackBox:
		return m, nil
	default:
		return "", fmt.Errorf("surrogate: unknown method %q", s)
	}
}

// Loss evaluates one example. m is owned by the caller for the duration of
// the call and has its objective overwritten; solve is applied to m.
type Loss interface {
	Method() Method
	// UsesSolver reports whether Evaluate needs a model and a solve function.
	UsesSolver() bool
	Evaluate(m optmodel.Model, solve optmodel.SolveFunc, pred []float64, ex *dataset.Example) (float64, []float64, error)
}

// New returns the loss for method. smoothing is the black-box interpolation
// parameter and must be positive for BlackBox.
func New(method Method, smoothing float64) (Loss, error) {
	switch method {
	case TwoStage:
		return mse{}, nil
	case SPOPlus:
		return spoPlus{}, nil
	case BlackBox:
		if smoothing <= 0 {
			return nil, fmt.Errorf("surrogate: black-box smoothing must be positive, got %g", smoothing)
		}
		return blackBox{lambda: smoothing}, nil
	default:
		return nil, fmt.Errorf("surrogate: unknown method %q", method)
	}
}

// Regret is sense·(c·x - z*): how much worse decision x is than the optimum
// under the true cost. It is never negative for feasible x.
func Regret(sense optmodel.Sense, c, x []float64, optObj float64) float64 {
	return sense.Sign() * (floats.Dot(c, x) - optObj)
}

func checkExample(n int, pred []float64, ex *dataset.Example) error {
	if len(pred) != n {
		return &optmodel.DimensionError{Op: "prediction", Got: len(pred), Want: n}
	}
	if len(ex.Cost) != n || len(ex.Sol) != n {
		return &optmodel.DimensionError{Op: "example", Got: len(ex.Cost), Want: n}
	}
	return nil
}

// solveUnder sets c as objective of m and returns the decision and objective value.
func solveUnder(m optmodel.Model, solve optmodel.SolveFunc, c []float64) ([]float64, float64, error) {
	if err := m.SetObjective(c); err != nil {
		return nil, 0, err
	}
	sol, err := solve(m)
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

// mse is the two-stage baseline: plain squared error on the cost vector.
type mse struct{}

func (mse) Method() Method   { return TwoStage }
func (mse) UsesSolver() bool { return false }

func (mse) Evaluate(_ optmodel.Model, _ optmodel.SolveFunc, pred []float64, ex *dataset.Example) (float64, []float64, error) {
	if len(pred) != len(ex.Cost) {
		return 0, nil, &optmodel.DimensionError{Op: "prediction", Got: len(pred), Want: len(ex.Cost)}
	}
	n := float64(len(pred))
	diff := make([]float64, len(pred))
	floats.SubTo(diff, pred, ex.Cost)
	loss := floats.Dot(diff, diff) / n
	floats.Scale(2/n, diff)
	return loss, diff, nil
}

// spoPlus is the convex SPO+ upper bound on regret. One solve under 2ĉ - c
// gives both the loss and a subgradient.
type spoPlus struct{}

func (spoPlus) Method() Method   { return SPOPlus }
func (spoPlus) UsesSolver() bool { return true }

func (spoPlus) Evaluate(m optmodel.Model, solve optmodel.SolveFunc, pred []float64, ex *dataset.Example) (float64, []float64, error) {
	if err := checkExample(m.NumCost(), pred, ex); err != nil {
		return 0, nil, err
	}
	sign := m.Sense().Sign()

	q := make([]float64, len(pred))
	for i, v := range pred {
		q[i] = 2*v - ex.Cost[i]
	}
	w, zq, err := solveUnder(m, solve, q)
	if err != nil {
		return 0, nil, fmt.Errorf("spo+: %w", err)
	}

	loss := sign * (-zq + 2*floats.Dot(pred, ex.Sol) - ex.Obj)
	grad := make([]float64, len(pred))
	floats.SubTo(grad, ex.Sol, w)
	floats.Scale(2*sign, grad)
	return loss, grad, nil
}

// blackBox differentiates a piecewise-linear interpolation of the solver
// map. The prediction is moved by λ/2 toward and away from the true cost,
// and the gradient is sense·(x_toward - x_away)/λ. Moving toward c can only
// lower the regret of the solver's decision.
type blackBox struct {
	lambda float64
}

func (blackBox) Method() Method   { return BlackBox }
func (blackBox) UsesSolver() bool { return true }

func (b blackBox) Evaluate(m optmodel.Model, solve optmodel.SolveFunc, pred []float64, ex *dataset.Example) (float64, []float64, error) {
	if err := checkExample(m.NumCost(), pred, ex); err != nil {
		return 0, nil, err
	}
	sense := m.Sense()
	half := b.lambda / 2

	toward := make([]float64, len(pred))
	floats.AddScaledTo(toward, pred, half, ex.Cost)
	away := make([]float64, len(pred))
	floats.AddScaledTo(away, pred, -half, ex.Cost)

	xToward, _, err := solveUnder(m, solve, toward)
	if err != nil {
		return 0, nil, fmt.Errorf("black-box: %w", err)
	}
	xAway, _, err := solveUnder(m, solve, away)
	if err != nil {
		return 0, nil, fmt.Errorf("black-box: %w", err)
	}

	loss := (Regret(sense, ex.Cost, xToward, ex.Obj) + Regret(sense, ex.Cost, xAway, ex.Obj)) / 2
	grad := make([]float64, len(pred))
	floats.SubTo(grad, xToward, xAway)
	floats.Scale(sense.Sign()/b.lambda, grad)
	return loss, grad, nil
}
