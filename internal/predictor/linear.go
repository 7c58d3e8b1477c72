package predictor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/GoSim-25-26J-441/spotrain/pkg/utils"
)

// Linear is the affine map y = Wx + b. Parameters are stored as W in
// row-major order followed by b.
type Linear struct {
	in, out int
	params  []float64
}

// NewLinear initialises weights and biases uniformly in ±1/sqrt(in).
func NewLinear(in, out int, rng *utils.RandSource) *Linear {
	l := &Linear{in: in, out: out, params: make([]float64, out*in+out)}
	bound := 1 / math.Sqrt(float64(in))
	for i := range l.params {
		l.params[i] = rng.UniformFloat64(-bound, bound)
	}
	return l
}

func (l *Linear) NumIn() int          { return l.in }
func (l *Linear) NumOut() int         { return l.out }
func (l *Linear) Params() []float64   { return l.params }
func (l *Linear) weights() *mat.Dense { return mat.NewDense(l.out, l.in, l.params[:l.out*l.in]) }
func (l *Linear) bias() []float64     { return l.params[l.out*l.in:] }

func (l *Linear) Predict(x []float64) []float64 {
	y := mat.NewVecDense(l.out, nil)
	y.MulVec(l.weights(), mat.NewVecDense(l.in, x))
	out := y.RawVector().Data
	floats.Add(out, l.bias())
	return out
}

func (l *Linear) Backward(x, dOut, grad []float64) {
	gw := mat.NewDense(l.out, l.in, grad[:l.out*l.in])
	gw.RankOne(gw, 1, mat.NewVecDense(l.out, dOut), mat.NewVecDense(l.in, x))
	floats.Add(grad[l.out*l.in:], dOut)
}

// Fit sets the parameters to the least-squares solution on (x, y).
func (l *Linear) Fit(x, y [][]float64) error {
	n := len(x)
	if n == 0 || n != len(y) {
		return fmt.Errorf("predictor: fit on %d inputs and %d targets", n, len(y))
	}
	a := mat.NewDense(n, l.in+1, nil)
	b := mat.NewDense(n, l.out, nil)
	for i := range x {
		for j, v := range x[i] {
			a.Set(i, j, v)
		}
		a.Set(i, l.in, 1)
		b.SetRow(i, y[i])
	}
	var coef mat.Dense
	if err := coef.Solve(a, b); err != nil {
		return fmt.Errorf("predictor: least squares: %w", err)
	}
	w := l.weights()
	for o := 0; o < l.out; o++ {
		for j := 0; j < l.in; j++ {
			w.Set(o, j, coef.At(j, o))
		}
		l.bias()[o] = coef.At(l.in, o)
	}
	return nil
}
