package optmodel

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Solver solves a Program and returns the values of all its variables
// together with the objective value.
type Solver interface {
	Name() string
	Solve(p *Program) ([]float64, float64, error)
}

// SolverFactory creates a solver with the given optimality tolerance.
type SolverFactory func(tol float64) Solver

var (
	solversMu sync.RWMutex
	solvers   = map[string]SolverFactory{}
)

func init() {
	RegisterSolver("simplex", func(tol float64) Solver { return simplexSolver{tol: tol} })
	RegisterSolver("enum", func(float64) Solver { return enumSolver{} })
}

// RegisterSolver makes a solver available to the modeling backend under name.
// Registering a name twice replaces the earlier factory.
func RegisterSolver(name string, f SolverFactory) {
	solversMu.Lock()
	defer solversMu.Unlock()
	solvers[name] = f
}

// LookupSolver instantiates the solver registered under name.
func LookupSolver(name string, tol float64) (Solver, error) {
	f, err := solverFactory(name)
	if err != nil {
		return nil, err
	}
	return f(tol), nil
}

func solverFactory(name string) (SolverFactory, error) {
	solversMu.RLock()
	defer solversMu.RUnlock()
	f, ok := solvers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSolver, name)
	}
	return f, nil
}

// Solvers lists the registered solver names.
func Solvers() []string {
	solversMu.RLock()
	defer solversMu.RUnlock()
	out := make([]string, 0, len(solvers))
	for name := range solvers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// simplexSolver solves the continuous relaxation with the gonum simplex engine.
type simplexSolver struct {
	tol float64
}

func (simplexSolver) Name() string { return "simplex" }

func (s simplexSolver) Solve(p *Program) ([]float64, float64, error) {
	prog, shift, err := p.lower()
	if err != nil {
		return nil, 0, err
	}
	y, _, err := prog.solve(s.tol)
	if err != nil {
		return nil, 0, err
	}
	floats.Add(y, shift)
	return y, floats.Dot(p.dense(p.Objective), y), nil
}

// maxEnumVars bounds the search space of enumSolver to 2^maxEnumVars points.
const maxEnumVars = 24

// enumSolver enumerates every 0/1 assignment. It returns the integer optimum
// and is meant for small binary programs and for cross-checking other solvers.
type enumSolver struct{}

func (enumSolver) Name() string { return "enum" }

func (enumSolver) Solve(p *Program) ([]float64, float64, error) {
	n := len(p.vars)
	if n > maxEnumVars {
		return nil, 0, fmt.Errorf("%w: enum solver handles at most %d variables, got %d", ErrSolverBackend, maxEnumVars, n)
	}
	for _, v := range p.vars {
		if v.Lower != 0 || v.Upper < 1 {
			return nil, 0, fmt.Errorf("%w: enum solver needs binary variables, %s has bounds [%g, %g]",
				ErrSolverBackend, v.Name, v.Lower, v.Upper)
		}
	}

	type denseRow struct {
		coefs []float64
		rel   Relation
		rhs   float64
	}
	rows := make([]denseRow, len(p.rows))
	for i, r := range p.rows {
		rows[i] = denseRow{coefs: p.dense(r.Expr), rel: r.Rel, rhs: r.RHS}
	}
	obj := p.dense(p.Objective)
	sign := p.Sense.Sign()

	x := make([]float64, n)
	var best []float64
	bestKey := math.Inf(1)
	for mask := 0; mask < 1<<n; mask++ {
		for j := range x {
			x[j] = float64((mask >> j) & 1)
		}
		feasible := true
		for _, r := range rows {
			lhs := floats.Dot(r.coefs, x)
			switch r.rel {
			case Equal:
				feasible = math.Abs(lhs-r.rhs) <= feasTol
			case GreaterEq:
				feasible = lhs >= r.rhs-feasTol
			default:
				feasible = lhs <= r.rhs+feasTol
			}
			if !feasible {
				break
			}
		}
		if !feasible {
			continue
		}
		if key := sign * floats.Dot(obj, x); key < bestKey-feasTol {
			bestKey = key
			best = append(best[:0], x...)
		}
	}
	if best == nil {
		return nil, 0, ErrInfeasible
	}
	return best, floats.Dot(obj, best), nil
}
