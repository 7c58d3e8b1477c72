// Package predictor maps feature vectors to predicted cost vectors.
package predictor

import (
	"fmt"
	"strings"

	"github.com/GoSim-25-26J-441/spotrain/pkg/utils"
)

// Predictor maps a feature vector of length NumIn to a cost vector of length NumOut.
type Predictor interface {
	NumIn() int
	NumOut() int
	Predict(x []float64) []float64
}

// Differentiable predictors are trained by gradient steps on their flat parameter vector.
type Differentiable interface {
	Predictor
	// Params returns the live parameter vector. Optimizers update it in place.
	Params() []float64
	// Backward adds d(loss)/d(params) for input x to grad, given dOut = d(loss)/d(output).
	Backward(x, dOut, grad []float64)
}

// Fitter predictors are trained in closed form on a whole dataset.
type Fitter interface {
	Predictor
	Fit(x, y [][]float64) error
}

// Kind names a predictor family.
type Kind string

const (
	// KindLinear is an affine map, or a ReLU network when hidden layers are given.
	KindLinear Kind = "lr"
	// KindForest is a random forest of regression trees.
	KindForest Kind = "rf"
)

// ParseKind validates a predictor family name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindLinear, KindForest:
		return k, nil
	default:
		return "", fmt.Errorf("predictor: unknown kind %q", s)
	}
}

// New builds an untrained predictor. hidden lists the hidden layer widths of
// a network and must be empty for a forest.
func New(kind Kind, in, out int, hidden []int, rng *utils.RandSource) (Predictor, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("predictor: invalid shape %d -> %d", in, out)
	}
	switch kind {
	case KindLinear:
		if len(hidden) == 0 {
			return NewLinear(in, out, rng), nil
		}
		return NewMLP(append(append([]int{in}, hidden...), out), rng)
	case KindForest:
		if len(hidden) > 0 {
			return nil, fmt.Errorf("predictor: random forest takes no hidden layers")
		}
		return NewForest(in, out, ForestOptions{}, rng), nil
	default:
		return nil, fmt.Errorf("predictor: unknown kind %q", kind)
	}
}

// PredictAll applies p to every row.
func PredictAll(p Predictor, x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = p.Predict(row)
	}
	return out
}
