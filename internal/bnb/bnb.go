// Package bnb finds integral optima of optmodel models by best-first
// branch-and-bound over their continuous relaxations.
package bnb

import (
	"container/heap"
	"errors"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/spotrain/internal/optmodel"
)

// ErrNodeLimit is returned when the search solves more nodes than Options.MaxNodes allows.
var ErrNodeLimit = errors.New("bnb: node limit reached")

const (
	defaultIntTol = 1e-6
	defaultEps    = 1e-9
)

// Options configure the search. The zero value is usable.
type Options struct {
	// IntTol is the distance from an integer below which a value counts as integral.
	IntTol float64
	// Eps is the margin a node bound must beat the incumbent by to stay open.
	Eps float64
	// MaxNodes bounds the number of relaxations solved; 0 means no bound.
	// The search stops before solving relaxation MaxNodes+1.
	MaxNodes int
	// Observer, when set, receives the statistics of every finished search.
	// It may be called from several goroutines at once.
	Observer func(Stats)
}

// Stats summarises one search.
type Stats struct {
	Nodes      int // relaxations solved
	Branched   int
	Pruned     int // dropped because the bound could not beat the incumbent
	Infeasible int
	Cuts       int
	Incumbents int
	MaxDepth   int
}

// Result is an integral optimum and the statistics of the search that found it.
type Result struct {
	Solution *optmodel.Solution
	Stats    Stats
}

// Engine runs searches. It holds no per-search state and may be shared between goroutines.
type Engine struct {
	opts Options
}

// New returns an engine with defaults filled in.
func New(opts Options) *Engine {
	if opts.IntTol <= 0 {
		opts.IntTol = defaultIntTol
	}
	if opts.Eps <= 0 {
		opts.Eps = defaultEps
	}
	return &Engine{opts: opts}
}

// Solve returns an integral optimum of m under its current objective. It
// matches optmodel.SolveFunc. m itself is never modified.
func (e *Engine) Solve(m optmodel.Model) (*optmodel.Solution, error) {
	res, err := e.Search(m)
	if err != nil {
		return nil, err
	}
	return res.Solution, nil
}

// Search runs branch-and-bound from the relaxation of m.
func (e *Engine) Search(m optmodel.Model) (*Result, error) {
	s := &search{opts: e.opts, sign: m.Sense().Sign()}
	if e.opts.Observer != nil {
		defer func() { e.opts.Observer(s.stats) }()
	}

	root, err := s.evaluate(m.Clone(), 0)
	if err != nil {
		return nil, fmt.Errorf("bnb: root relaxation: %w", err)
	}
	heap.Push(&s.open, root)

	for s.open.Len() > 0 {
		n := heap.Pop(&s.open).(*node)
		if s.dominated(n) {
			s.stats.Pruned++
			continue
		}

		j := s.fractional(n.x)
		if j < 0 {
			if err := s.integral(n); err != nil {
				return nil, err
			}
			continue
		}

		s.stats.Branched++
		v := n.x[j]
		down := make([]float64, len(n.x))
		down[j] = 1
		up := make([]float64, len(n.x))
		up[j] = -1
		for _, b := range []struct {
			coefs []float64
			rhs   float64
		}{
			{down, math.Floor(v)},
			{up, -math.Ceil(v)},
		} {
			child, err := n.model.AddConstraint(b.coefs, b.rhs)
			if err != nil {
				return nil, fmt.Errorf("bnb: branch on x[%d]: %w", j, err)
			}
			if err := s.spawn(child, n.depth+1); err != nil {
				return nil, err
			}
		}
	}

	if s.incumbent == nil {
		return nil, optmodel.ErrInfeasible
	}
	return &Result{Solution: s.incumbent.sol.Rounded(s.opts.IntTol), Stats: s.stats}, nil
}

type search struct {
	opts      Options
	sign      float64
	open      frontier
	incumbent *node
	seq       int
	stats     Stats
}

// integral handles a node whose cost variables are all integral: either the
// separator cuts it off or it becomes the incumbent.
func (s *search) integral(n *node) error {
	x := make([]float64, len(n.x))
	for i, v := range n.x {
		x[i] = math.Round(v)
	}
	cuts := n.model.Separate(x)
	if len(cuts) == 0 {
		s.incumbent = n
		s.stats.Incumbents++
		return nil
	}
	child := n.model
	for _, c := range cuts {
		var err error
		if child, err = child.AddConstraint(c.Coefs, c.RHS); err != nil {
			return fmt.Errorf("bnb: add cut: %w", err)
		}
	}
	s.stats.Cuts += len(cuts)
	return s.spawn(child, n.depth+1)
}

// spawn solves a child relaxation and queues it unless it is infeasible or dominated.
func (s *search) spawn(m optmodel.Model, depth int) error {
	n, err := s.evaluate(m, depth)
	if errors.Is(err, optmodel.ErrInfeasible) {
		s.stats.Infeasible++
		return nil
	}
	if err != nil {
		return fmt.Errorf("bnb: node relaxation: %w", err)
	}
	if s.dominated(n) {
		s.stats.Pruned++
		return nil
	}
	heap.Push(&s.open, n)
	return nil
}

func (s *search) evaluate(m optmodel.Model, depth int) (*node, error) {
	if s.opts.MaxNodes > 0 && s.stats.Nodes >= s.opts.MaxNodes {
		return nil, fmt.Errorf("%w: %d nodes", ErrNodeLimit, s.stats.Nodes)
	}
	s.stats.Nodes++
	if depth > s.stats.MaxDepth {
		s.stats.MaxDepth = depth
	}
	sol, err := m.Solve()
	if err != nil {
		return nil, err
	}
	x, err := sol.X()
	if err != nil {
		return nil, err
	}
	obj, err := sol.Objective()
	if err != nil {
		return nil, err
	}
	n := &node{model: m, sol: sol, x: x, key: s.sign * obj, seq: s.seq, depth: depth}
	s.seq++
	return n, nil
}

// dominated reports whether n cannot improve on the incumbent.
func (s *search) dominated(n *node) bool {
	return s.incumbent != nil && n.key >= s.incumbent.key-s.opts.Eps
}

// fractional returns the lowest index of a non-integral value, or -1.
func (s *search) fractional(x []float64) int {
	for i, v := range x {
		if math.Abs(v-math.Round(v)) > s.opts.IntTol {
			return i
		}
	}
	return -1
}

type node struct {
	model optmodel.Model
	sol   *optmodel.Solution
	x     []float64
	key   float64 // objective scaled so that smaller is better
	seq   int
	depth int
}

// frontier is a min-heap on (key, seq).
type frontier []*node

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].key != f[j].key {
		return f[i].key < f[j].key
	}
	return f[i].seq < f[j].seq
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)   { *f = append(*f, x.(*node)) }
func (f *frontier) Pop() any {
	old := *f
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*f = old[:len(old)-1]
	return n
}
