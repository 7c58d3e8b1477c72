package predictor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/GoSim-25-26J-441/spotrain/pkg/utils"
)

// MLP is a fully connected network with ReLU between layers and a linear
// output layer.
type MLP struct {
	sizes  []int
	offs   []int // start of each layer's weights in params
	params []float64
}

// NewMLP builds a network with the given layer widths, input first and
// output last. Weights use He initialisation and biases start at zero.
func NewMLP(sizes []int, rng *utils.RandSource) (*MLP, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("predictor: network needs at least two layers, got %d", len(sizes))
	}
	for _, s := range sizes {
		if s <= 0 {
			return nil, fmt.Errorf("predictor: invalid layer width %d", s)
		}
	}
	m := &MLP{sizes: append([]int(nil), sizes...)}
	total := 0
	for l := 0; l+1 < len(sizes); l++ {
		m.offs = append(m.offs, total)
		total += sizes[l+1]*sizes[l] + sizes[l+1]
	}
	m.params = make([]float64, total)
	for l := 0; l+1 < len(sizes); l++ {
		std := math.Sqrt(2 / float64(sizes[l]))
		w, _ := m.layer(m.params, l)
		raw := w.RawMatrix().Data
		for i := range raw {
			raw[i] = rng.NormFloat64(0, std)
		}
	}
	return m, nil
}

func (m *MLP) NumIn() int        { return m.sizes[0] }
func (m *MLP) NumOut() int       { return m.sizes[len(m.sizes)-1] }
func (m *MLP) Params() []float64 { return m.params }

// layer views the weights and bias of layer l inside buf, which is laid out
// like the parameter vector.
func (m *MLP) layer(buf []float64, l int) (*mat.Dense, []float64) {
	in, out := m.sizes[l], m.sizes[l+1]
	off := m.offs[l]
	return mat.NewDense(out, in, buf[off:off+out*in]), buf[off+out*in : off+out*in+out]
}

// forward returns the input of every layer and the network output.
func (m *MLP) forward(x []float64) [][]float64 {
	acts := [][]float64{x}
	h := x
	last := len(m.sizes) - 2
	for l := 0; l <= last; l++ {
		w, b := m.layer(m.params, l)
		z := mat.NewVecDense(m.sizes[l+1], nil)
		z.MulVec(w, mat.NewVecDense(m.sizes[l], h))
		next := z.RawVector().Data
		floats.Add(next, b)
		if l < last {
			for i, v := range next {
				next[i] = math.Max(v, 0)
			}
		}
		acts = append(acts, next)
		h = next
	}
	return acts
}

func (m *MLP) Predict(x []float64) []float64 {
	acts := m.forward(x)
	return acts[len(acts)-1]
}

func (m *MLP) Backward(x, dOut, grad []float64) {
	acts := m.forward(x)
	delta := append([]float64(nil), dOut...)
	for l := len(m.sizes) - 2; l >= 0; l-- {
		w, _ := m.layer(m.params, l)
		gw, gb := m.layer(grad, l)
		in := acts[l]
		gw.RankOne(gw, 1, mat.NewVecDense(len(delta), delta), mat.NewVecDense(len(in), in))
		floats.Add(gb, delta)
		if l == 0 {
			break
		}
		prev := mat.NewVecDense(len(in), nil)
		prev.MulVec(w.T(), mat.NewVecDense(len(delta), delta))
		delta = prev.RawVector().Data
		// in holds post-ReLU activations of layer l-1.
		for i, a := range in {
			if a <= 0 {
				delta[i] = 0
			}
		}
	}
}
