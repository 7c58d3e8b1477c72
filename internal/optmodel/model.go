// Package optmodel provides linear optimization models that can be cloned and
// tightened with extra constraints without touching the source model.
//
// Two backends implement Model. The direct backend keeps the constraint
// matrices as gonum dense matrices and hands them to the simplex engine as-is.
// The modeling backend keeps a symbolic Program of named variables and linear
// rows and lowers it through a solver picked from a registry by name.
//
// Models are not safe for concurrent use. Give every goroutine its own Clone.
package optmodel

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Sense is the optimization direction. Its value doubles as the sign that
// turns a maximization into a minimization.
type Sense int

const (
	Minimize Sense = 1
	Maximize Sense = -1
)

// Sign returns +1 for minimization and -1 for maximization.
func (s Sense) Sign() float64 {
	if s == Maximize {
		return -1
	}
	return 1
}

func (s Sense) String() string {
	if s == Maximize {
		return "maximize"
	}
	return "minimize"
}

// Backend selects the model variant.
type Backend string

const (
	BackendDirect   Backend = "direct"
	BackendModeling Backend = "modeling"
)

// ParseBackend validates a backend name. An empty name selects the direct backend.
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendDirect:
		return BackendDirect, nil
	case BackendModeling:
		return BackendModeling, nil
	default:
		return "", fmt.Errorf("optmodel: unknown backend %q", s)
	}
}

// Relation is the comparison of a linear row against its right-hand side.
type Relation int

const (
	LessEq Relation = iota
	Equal
	GreaterEq
)

func (r Relation) String() string {
	switch r {
	case Equal:
		return "=="
	case GreaterEq:
		return ">="
	default:
		return "<="
	}
}

// Row is a structural constraint over every model variable.
type Row struct {
	Name  string
	Coefs []float64
	Rel   Relation
	RHS   float64
}

// Constraint is a row coefs·x <= rhs over the cost variables. Constraints are
// never modified after they are added to a model.
type Constraint struct {
	Coefs []float64
	RHS   float64
}

func (c Constraint) clone() Constraint {
	return Constraint{Coefs: append([]float64(nil), c.Coefs...), RHS: c.RHS}
}

// Separator inspects an integral assignment of the cost variables and returns
// the constraints it violates. A nil result means the assignment is feasible.
type Separator func(x []float64) []Constraint

// Spec describes a linear program over NumVars nonnegative variables. The first
// NumCost variables carry the objective and are the ones branch-and-bound keeps integral.
type Spec struct {
	Name      string
	Sense     Sense
	NumCost   int
	NumVars   int
	Upper     []float64 // per variable; nil or +Inf means unbounded above
	VarNames  []string  // optional; defaults to x[i] for cost variables and a[i] otherwise
	Rows      []Row
	Separator Separator
}

func (s *Spec) validate() error {
	if s.NumCost <= 0 {
		return fmt.Errorf("%w: num_cost must be positive, got %d", ErrInvalidSpec, s.NumCost)
	}
	if s.NumVars < s.NumCost {
		return fmt.Errorf("%w: num_vars %d smaller than num_cost %d", ErrInvalidSpec, s.NumVars, s.NumCost)
	}
	if s.Sense != Minimize && s.Sense != Maximize {
		return fmt.Errorf("%w: unknown sense %d", ErrInvalidSpec, s.Sense)
	}
	if s.Upper != nil && len(s.Upper) != s.NumVars {
		return fmt.Errorf("%w: %d upper bounds for %d variables", ErrInvalidSpec, len(s.Upper), s.NumVars)
	}
	if s.VarNames != nil && len(s.VarNames) != s.NumVars {
		return fmt.Errorf("%w: %d names for %d variables", ErrInvalidSpec, len(s.VarNames), s.NumVars)
	}
	for i, r := range s.Rows {
		if len(r.Coefs) != s.NumVars {
			return fmt.Errorf("%w: row %d has %d coefficients, want %d", ErrInvalidSpec, i, len(r.Coefs), s.NumVars)
		}
	}
	return nil
}

func (s *Spec) upper(j int) float64 {
	if s.Upper == nil {
		return math.Inf(1)
	}
	return s.Upper[j]
}

func (s *Spec) varName(j int) string {
	if s.VarNames != nil {
		return s.VarNames[j]
	}
	if j < s.NumCost {
		return fmt.Sprintf("x[%d]", j)
	}
	return fmt.Sprintf("a[%d]", j-s.NumCost)
}

// Model is a linear optimization model with a settable cost vector.
type Model interface {
	Name() string
	Backend() Backend
	Sense() Sense
	// NumCost is the length of the cost vector and of every solution.
	NumCost() int
	SetObjective(c []float64) error
	// Solve solves the continuous relaxation under the current objective.
	Solve() (*Solution, error)
	// Clone returns a deep copy that shares no mutable state with the receiver.
	Clone() Model
	// AddConstraint returns a clone tightened by coefs·x <= rhs. The receiver is unchanged.
	AddConstraint(coefs []float64, rhs float64) (Model, error)
	// Constraints returns the constraints added since the model was built.
	Constraints() []Constraint
	// Separate returns the constraints an integral assignment violates.
	Separate(x []float64) []Constraint
}

// SolveFunc solves a model under its current objective.
type SolveFunc func(Model) (*Solution, error)

// Relaxed solves the continuous relaxation of m.
func Relaxed(m Model) (*Solution, error) {
	return m.Solve()
}

// Options configure New.
type Options struct {
	Backend Backend
	// Solver names the registered solver the modeling backend lowers to.
	Solver string
	// Tol is the simplex optimality tolerance.
	Tol float64
}

const (
	defaultSolver = "simplex"
	defaultTol    = 1e-10
)

// New builds a model for spec on the backend selected by opts.
func New(spec Spec, opts Options) (Model, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if opts.Tol <= 0 {
		opts.Tol = defaultTol
	}
	backend, err := ParseBackend(string(opts.Backend))
	if err != nil {
		return nil, err
	}
	switch backend {
	case BackendModeling:
		name := opts.Solver
		if name == "" {
			name = defaultSolver
		}
		f, err := solverFactory(name)
		if err != nil {
			return nil, err
		}
		tol := opts.Tol
		return newModelingModel(&spec, func() Solver { return f(tol) }), nil
	default:
		return newDirectModel(&spec, opts.Tol), nil
	}
}

// Objective returns c·x.
func Objective(c, x []float64) float64 {
	return floats.Dot(c, x)
}

// revision counts objective changes of one model instance.
type revision struct {
	n uint64
}

// Solution is an immutable solver result bound to the model state that produced it.
type Solution struct {
	x     []float64
	obj   float64
	owner *revision
	rev   uint64
}

func newSolution(x []float64, obj float64, owner *revision) *Solution {
	return &Solution{x: x, obj: obj, owner: owner, rev: owner.n}
}

// Valid reports whether the owning model still has the objective the solution was computed for.
func (s *Solution) Valid() bool {
	return s != nil && s.owner != nil && s.owner.n == s.rev
}

// X returns a copy of the cost-variable values.
func (s *Solution) X() ([]float64, error) {
	if !s.Valid() {
		return nil, ErrStaleSolution
	}
	return append([]float64(nil), s.x...), nil
}

// Objective returns the objective value under the cost vector used to solve.
func (s *Solution) Objective() (float64, error) {
	if !s.Valid() {
		return 0, ErrStaleSolution
	}
	return s.obj, nil
}

func checkCoefs(op string, coefs []float64, n int) error {
	if err := checkDim(op, len(coefs), n); err != nil {
		return err
	}
	for i, v := range coefs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("optmodel: %s: non-finite coefficient at %d", op, i)
		}
	}
	return nil
}

func cloneConstraints(in []Constraint) []Constraint {
	if in == nil {
		return nil
	}
	out := make([]Constraint, len(in))
	for i, c := range in {
		out[i] = c.clone()
	}
	return out
}

// Rounded returns a copy of s with every value within tol of an integer
// snapped to that integer. The copy stays bound to the same model state.
func (s *Solution) Rounded(tol float64) *Solution {
	x := make([]float64, len(s.x))
	for i, v := range s.x {
		if r := math.Round(v); math.Abs(v-r) <= tol {
			v = r
		}
		x[i] = v
	}
	return &Solution{x: x, obj: s.obj, owner: s.owner, rev: s.rev}
}
