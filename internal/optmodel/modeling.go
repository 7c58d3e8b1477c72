package optmodel

import (
	"fmt"
)

// modelingModel keeps the problem as a symbolic Program and delegates
// solving to a registered Solver. Every clone opens its own solver session.
type modelingModel struct {
	prog      *Program
	x         []*Var // handles of the cost variables, in order
	solver    Solver
	newSolver func() Solver
	sep       Separator
	cuts      []Constraint
	hasObj    bool
	rev       *revision
	numCost   int
}

func newModelingModel(spec *Spec, newSolver func() Solver) *modelingModel {
	prog := NewProgram(spec.Name, spec.Sense)
	vars := make([]*Var, spec.NumVars)
	for j := range vars {
		vars[j] = prog.AddVar(spec.varName(j), 0, spec.upper(j))
	}
	for i, r := range spec.Rows {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("r%d", i)
		}
		prog.AddRow(name, Dot(vars, r.Coefs), r.Rel, r.RHS)
	}
	return &modelingModel{
		prog:      prog,
		x:         vars[:spec.NumCost:spec.NumCost],
		solver:    newSolver(),
		newSolver: newSolver,
		sep:       spec.Separator,
		rev:       &revision{},
		numCost:   spec.NumCost,
	}
}

func (m *modelingModel) Name() string     { return m.prog.Name }
func (m *modelingModel) Backend() Backend { return BackendModeling }
func (m *modelingModel) Sense() Sense     { return m.prog.Sense }
func (m *modelingModel) NumCost() int     { return m.numCost }

// Program returns the underlying symbolic program.
func (m *modelingModel) Program() *Program { return m.prog }

func (m *modelingModel) SetObjective(c []float64) error {
	if err := checkCoefs("set objective", c, m.numCost); err != nil {
		return err
	}
	m.prog.Objective = Dot(m.x, c)
	m.hasObj = true
	m.rev.n++
	return nil
}

func (m *modelingModel) Solve() (*Solution, error) {
	if !m.hasObj {
		return nil, ErrNoObjective
	}
	vals, obj, err := m.solver.Solve(m.prog)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.solver.Name(), err)
	}
	x := make([]float64, m.numCost)
	for i, v := range m.x {
		x[i] = vals[v.Index()]
	}
	return newSolution(x, obj, m.rev), nil
}

func (m *modelingModel) Clone() Model {
	prog := m.prog.Clone()
	x := make([]*Var, m.numCost)
	for i, v := range m.x {
		x[i] = prog.Vars()[v.Index()]
	}
	return &modelingModel{
		prog:      prog,
		x:         x,
		solver:    m.newSolver(),
		newSolver: m.newSolver,
		sep:       m.sep,
		cuts:      cloneConstraints(m.cuts),
		hasObj:    m.hasObj,
		rev:       &revision{},
		numCost:   m.numCost,
	}
}

func (m *modelingModel) AddConstraint(coefs []float64, rhs float64) (Model, error) {
	if err := checkCoefs("add constraint", coefs, m.numCost); err != nil {
		return nil, err
	}
	out := m.Clone().(*modelingModel)
	cut := Constraint{Coefs: append([]float64(nil), coefs...), RHS: rhs}
	out.prog.AddRow(fmt.Sprintf("cut%d", len(out.cuts)), Dot(out.x, cut.Coefs), LessEq, rhs)
	out.cuts = append(out.cuts, cut)
	return out, nil
}

func (m *modelingModel) Constraints() []Constraint {
	return cloneConstraints(m.cuts)
}

func (m *modelingModel) Separate(x []float64) []Constraint {
	if m.sep == nil {
		return nil
	}
	return m.sep(x)
}
