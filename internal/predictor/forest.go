package predictor

import (
	"fmt"
	"math"
	"slices"

	"github.com/GoSim-25-26J-441/spotrain/pkg/utils"
)

// ForestOptions configure a random forest. Zero fields take defaults.
type ForestOptions struct {
	Trees       int // default 100
	MaxDepth    int // default unbounded
	MinLeaf     int // default 1
	MaxFeatures int // features tried per split; default all
}

// Forest is a bagged ensemble of multi-output regression trees. Every tree
// predicts the whole cost vector; the forest averages them.
type Forest struct {
	in, out int
	opts    ForestOptions
	rng     *utils.RandSource
	trees   []*treeNode
}

// NewForest returns an unfitted forest. Its bootstrap samples and feature
// subsets are drawn from rng.
func NewForest(in, out int, opts ForestOptions, rng *utils.RandSource) *Forest {
	if opts.Trees <= 0 {
		opts.Trees = 100
	}
	if opts.MinLeaf <= 0 {
		opts.MinLeaf = 1
	}
	if opts.MaxFeatures <= 0 || opts.MaxFeatures > in {
		opts.MaxFeatures = in
	}
	return &Forest{in: in, out: out, opts: opts, rng: rng}
}

func (f *Forest) NumIn() int  { return f.in }
func (f *Forest) NumOut() int { return f.out }

// Fitted reports whether Fit has succeeded.
func (f *Forest) Fitted() bool { return len(f.trees) > 0 }

// Predict averages the trees. An unfitted forest predicts zeros.
func (f *Forest) Predict(x []float64) []float64 {
	out := make([]float64, f.out)
	if len(f.trees) == 0 {
		return out
	}
	for _, t := range f.trees {
		leaf := t
		for leaf.value == nil {
			if x[leaf.feature] <= leaf.threshold {
				leaf = leaf.left
			} else {
				leaf = leaf.right
			}
		}
		for o, v := range leaf.value {
			out[o] += v
		}
	}
	for o := range out {
		out[o] /= float64(len(f.trees))
	}
	return out
}

// Fit grows every tree on a bootstrap sample of (x, y).
func (f *Forest) Fit(x, y [][]float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("predictor: fit on %d inputs and %d targets", len(x), len(y))
	}
	for i := range x {
		if len(x[i]) != f.in || len(y[i]) != f.out {
			return fmt.Errorf("predictor: sample %d has shape %d -> %d, want %d -> %d", i, len(x[i]), len(y[i]), f.in, f.out)
		}
	}
	b := &treeBuilder{x: x, y: y, opts: f.opts, rng: f.rng, out: f.out}
	trees := make([]*treeNode, f.opts.Trees)
	for t := range trees {
		sample := make([]int, len(x))
		for i := range sample {
			sample[i] = f.rng.Intn(len(x))
		}
		trees[t] = b.grow(sample, 0)
	}
	f.trees = trees
	return nil
}

type treeNode struct {
	feature     int
	threshold   float64
	left, right *treeNode
	value       []float64 // set on leaves only
}

type treeBuilder struct {
	x, y [][]float64
	out  int
	opts ForestOptions
	rng  *utils.RandSource
}

func (b *treeBuilder) mean(idx []int) []float64 {
	m := make([]float64, b.out)
	for _, i := range idx {
		for o, v := range b.y[i] {
			m[o] += v
		}
	}
	for o := range m {
		m[o] /= float64(len(idx))
	}
	return m
}

func (b *treeBuilder) grow(idx []int, depth int) *treeNode {
	if len(idx) < 2*b.opts.MinLeaf || (b.opts.MaxDepth > 0 && depth >= b.opts.MaxDepth) {
		return &treeNode{value: b.mean(idx)}
	}
	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return &treeNode{value: b.mean(idx)}
	}
	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      b.grow(left, depth+1),
		right:     b.grow(right, depth+1),
	}
}

// bestSplit maximises the summed variance reduction over all outputs, which
// for a fixed node is Σ_o sumL_o²/nL + sumR_o²/nR.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	total := make([]float64, b.out)
	for _, i := range idx {
		for o, v := range b.y[i] {
			total[o] += v
		}
	}
	base := 0.0
	for _, s := range total {
		base += s * s / float64(n)
	}

	features := b.rng.Perm(len(b.x[0]))[:b.opts.MaxFeatures]
	sorted := make([]int, n)
	left := make([]float64, b.out)
	bestScore, bestFeature, bestThreshold := base+1e-12, -1, 0.0
	for _, j := range features {
		copy(sorted, idx)
		slices.SortFunc(sorted, func(a, c int) int {
			switch {
			case b.x[a][j] < b.x[c][j]:
				return -1
			case b.x[a][j] > b.x[c][j]:
				return 1
			}
			return 0
		})
		clear(left)
		for k := 0; k < n-1; k++ {
			for o, v := range b.y[sorted[k]] {
				left[o] += v
			}
			nl := k + 1
			lo, hi := b.x[sorted[k]][j], b.x[sorted[k+1]][j]
			if lo == hi || nl < b.opts.MinLeaf || n-nl < b.opts.MinLeaf {
				continue
			}
			score := 0.0
			for o := range left {
				r := total[o] - left[o]
				score += left[o]*left[o]/float64(nl) + r*r/float64(n-nl)
			}
			if score > bestScore {
				bestScore, bestFeature, bestThreshold = score, j, lo+(hi-lo)/2
			}
		}
	}
	if bestFeature < 0 || math.IsNaN(bestThreshold) {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}
