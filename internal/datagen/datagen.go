// Package datagen produces seeded synthetic (features, cost) pairs for the
// supported problem classes. Costs depend on features through a random
// Bernoulli map raised to a polynomial degree and scaled by multiplicative
// noise.
package datagen

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/GoSim-25-26J-441/spotrain/internal/optmodel"
	"github.com/GoSim-25-26J-441/spotrain/pkg/utils"
)

// Params are shared by every generator.
type Params struct {
	Samples int
	NumFeat int
	Deg     int
	// Noise is the half-width of the multiplicative noise interval [1-Noise, 1+Noise].
	Noise float64
	Seed  int64
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if p.Samples <= 0 {
		return fmt.Errorf("datagen: samples must be positive, got %d", p.Samples)
	}
	if p.NumFeat <= 0 {
		return fmt.Errorf("datagen: feature size must be positive, got %d", p.NumFeat)
	}
	if p.Deg <= 0 {
		return fmt.Errorf("datagen: degree must be positive, got %d", p.Deg)
	}
	if p.Noise < 0 || p.Noise >= 1 {
		return fmt.Errorf("datagen: noise half-width must be in [0, 1), got %g", p.Noise)
	}
	return nil
}

// Data is a generated sample. Feats and Costs have one row per example.
type Data struct {
	Feats [][]float64
	Costs [][]float64
}

// signal draws the features and the feature-to-cost map and returns, per
// example, the vector (B x / √p + 3)^deg. Draw order is: B, then per example x
// followed by its noise.
type signal struct {
	p     Params
	rng   *utils.RandSource
	b     *mat.Dense
	feats [][]float64
}

func newSignal(p Params, numCost int) (*signal, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rng := utils.NewRandSource(p.Seed)
	b := mat.NewDense(numCost, p.NumFeat, nil)
	for i := 0; i < numCost; i++ {
		for j := 0; j < p.NumFeat; j++ {
			b.Set(i, j, rng.BernoulliFloat64(0.5))
		}
	}
	return &signal{p: p, rng: rng, b: b}, nil
}

// next draws one feature vector and returns it with its raw cost signal and noise.
func (s *signal) next() ([]float64, []float64, []float64) {
	x := make([]float64, s.p.NumFeat)
	for j := range x {
		x[j] = s.rng.NormFloat64(0, 1)
	}
	rows, _ := s.b.Dims()
	v := mat.NewVecDense(rows, nil)
	v.MulVec(s.b, mat.NewVecDense(len(x), x))
	raw := v.RawVector().Data
	scale := math.Sqrt(float64(s.p.NumFeat))
	for i, z := range raw {
		raw[i] = math.Pow(z/scale+3, float64(s.p.Deg))
	}
	eps := make([]float64, rows)
	for i := range eps {
		eps[i] = s.rng.UniformFloat64(1-s.p.Noise, 1+s.p.Noise)
	}
	return x, raw, eps
}

// ShortestPath generates costs for the arcs of a rows×cols grid.
func ShortestPath(p Params, rows, cols int) (*Data, error) {
	numCost := len(optmodel.GridArcs(rows, cols))
	if numCost == 0 {
		return nil, fmt.Errorf("datagen: grid %dx%d has no arcs", rows, cols)
	}
	s, err := newSignal(p, numCost)
	if err != nil {
		return nil, err
	}
	denom := math.Pow(3.5, float64(p.Deg))
	d := &Data{}
	for n := 0; n < p.Samples; n++ {
		x, raw, eps := s.next()
		c := make([]float64, numCost)
		for i := range c {
			c[i] = (raw[i] + 1) / denom * eps[i]
		}
		d.Feats = append(d.Feats, x)
		d.Costs = append(d.Costs, c)
	}
	return d, nil
}

// KnapsackData adds the generated item weights, indexed [dim][item].
type KnapsackData struct {
	Data
	Weights [][]float64
}

// Knapsack generates integral item values and weights in [3, 8) rounded to
// one decimal.
func Knapsack(p Params, items, dims int) (*KnapsackData, error) {
	if items <= 0 || dims <= 0 {
		return nil, fmt.Errorf("datagen: knapsack needs items and dimensions, got %d and %d", items, dims)
	}
	s, err := newSignal(p, items)
	if err != nil {
		return nil, err
	}
	weights := make([][]float64, dims)
	for d := range weights {
		weights[d] = make([]float64, items)
		for j := range weights[d] {
			weights[d][j] = math.Round(s.rng.UniformFloat64(3, 8)*10) / 10
		}
	}
	denom := math.Pow(3.5, float64(p.Deg))
	out := &KnapsackData{Weights: weights}
	for n := 0; n < p.Samples; n++ {
		x, raw, eps := s.next()
		c := make([]float64, items)
		for i := range c {
			c[i] = math.Ceil(5 * (raw[i] + 1) / denom * eps[i])
		}
		out.Feats = append(out.Feats, x)
		out.Costs = append(out.Costs, c)
	}
	return out, nil
}

// TSPData adds the node coordinates.
type TSPData struct {
	Data
	Coords [][2]float64
}

// TSP generates edge costs for a complete graph on nodes points placed
// uniformly in [0, 2]². Each cost is the Euclidean distance plus a feature
// dependent term.
func TSP(p Params, nodes int) (*TSPData, error) {
	if nodes < 3 {
		return nil, fmt.Errorf("datagen: tsp needs at least 3 nodes, got %d", nodes)
	}
	edges := optmodel.TSPEdges(nodes)
	s, err := newSignal(p, len(edges))
	if err != nil {
		return nil, err
	}
	coords := make([][2]float64, nodes)
	for i := range coords {
		coords[i] = [2]float64{s.rng.UniformFloat64(0, 2), s.rng.UniformFloat64(0, 2)}
	}
	dist := make([]float64, len(edges))
	for k, e := range edges {
		u, v := coords[e[0]], coords[e[1]]
		dist[k] = math.Hypot(u[0]-v[0], u[1]-v[1])
	}
	denom := math.Pow(3.5, float64(p.Deg))
	out := &TSPData{Coords: coords}
	for n := 0; n < p.Samples; n++ {
		x, raw, eps := s.next()
		c := make([]float64, len(edges))
		for i := range c {
			c[i] = dist[i] + raw[i]/denom*eps[i]/10
		}
		out.Feats = append(out.Feats, x)
		out.Costs = append(out.Costs, c)
	}
	return out, nil
}
