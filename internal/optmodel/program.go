package optmodel

import (
	"fmt"
	"math"
)

// Var is a handle to a variable of one Program. Handles are only meaningful
// for the Program that created them; Program.Clone re-binds them.
type Var struct {
	index int
	Name  string
	Lower float64
	Upper float64
}

// Index returns the position of the variable in its Program.
func (v *Var) Index() int { return v.index }

// Term is coef·var.
type Term struct {
	Var  *Var
	Coef float64
}

// Expr is a linear expression.
type Expr []Term

// Dot builds the expression sum_i coefs[i]·vars[i], skipping zero coefficients.
func Dot(vars []*Var, coefs []float64) Expr {
	e := make(Expr, 0, len(vars))
	for i, v := range vars {
		if coefs[i] != 0 {
			e = append(e, Term{Var: v, Coef: coefs[i]})
		}
	}
	return e
}

// LinRow is a named linear row of a Program.
type LinRow struct {
	Name string
	Expr Expr
	Rel  Relation
	RHS  float64
}

// Program is a symbolic linear program. Solvers registered with
// RegisterSolver consume it.
type Program struct {
	Name      string
	Sense     Sense
	Objective Expr

	vars []*Var
	rows []LinRow
}

// NewProgram returns an empty program.
func NewProgram(name string, sense Sense) *Program {
	return &Program{Name: name, Sense: sense}
}

// AddVar appends a variable with the given bounds and returns its handle.
func (p *Program) AddVar(name string, lower, upper float64) *Var {
	v := &Var{index: len(p.vars), Name: name, Lower: lower, Upper: upper}
	p.vars = append(p.vars, v)
	return v
}

// AddRow appends a constraint.
func (p *Program) AddRow(name string, e Expr, rel Relation, rhs float64) {
	p.rows = append(p.rows, LinRow{Name: name, Expr: e, Rel: rel, RHS: rhs})
}

// Vars returns the variable handles in creation order.
func (p *Program) Vars() []*Var { return p.vars }

// Rows returns the constraints in creation order.
func (p *Program) Rows() []LinRow { return p.rows }

// Lookup returns the variable with the given name.
func (p *Program) Lookup(name string) (*Var, bool) {
	for _, v := range p.vars {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Clone deep-copies the program. Variables are re-created in the same order
// and every expression is re-bound to the new handles.
func (p *Program) Clone() *Program {
	out := &Program{
		Name:  p.Name,
		Sense: p.Sense,
		vars:  make([]*Var, len(p.vars)),
		rows:  make([]LinRow, len(p.rows)),
	}
	for i, v := range p.vars {
		nv := *v
		out.vars[i] = &nv
	}
	rebind := func(e Expr) Expr {
		if e == nil {
			return nil
		}
		ne := make(Expr, len(e))
		for i, t := range e {
			ne[i] = Term{Var: out.vars[t.Var.index], Coef: t.Coef}
		}
		return ne
	}
	out.Objective = rebind(p.Objective)
	for i, r := range p.rows {
		out.rows[i] = LinRow{Name: r.Name, Expr: rebind(r.Expr), Rel: r.Rel, RHS: r.RHS}
	}
	return out
}

// dense expands e into a coefficient vector over every variable.
func (p *Program) dense(e Expr) []float64 {
	out := make([]float64, len(p.vars))
	for _, t := range e {
		out[t.Var.index] += t.Coef
	}
	return out
}

// lower converts the program into a minimization over shifted variables
// y = x - lower >= 0 and returns the shift.
func (p *Program) lower() (*linearProgram, []float64, error) {
	n := len(p.vars)
	shift := make([]float64, n)
	out := &linearProgram{c: make([]float64, n), upper: make([]float64, n)}
	for j, v := range p.vars {
		if math.IsInf(v.Lower, -1) || math.IsNaN(v.Lower) {
			return nil, nil, fmt.Errorf("%w: variable %s has no finite lower bound", ErrSolverBackend, v.Name)
		}
		shift[j] = v.Lower
		out.upper[j] = v.Upper - v.Lower
	}

	sign := p.Sense.Sign()
	for j, v := range p.dense(p.Objective) {
		out.c[j] = sign * v
	}

	for _, r := range p.rows {
		coefs := p.dense(r.Expr)
		rhs := r.RHS
		for j, a := range coefs {
			rhs -= a * shift[j]
		}
		switch r.Rel {
		case Equal:
			out.eq = append(out.eq, coefs)
			out.eqRHS = append(out.eqRHS, rhs)
		case GreaterEq:
			for j := range coefs {
				coefs[j] = -coefs[j]
			}
			out.le = append(out.le, coefs)
			out.leRHS = append(out.leRHS, -rhs)
		default:
			out.le = append(out.le, coefs)
			out.leRHS = append(out.leRHS, rhs)
		}
	}
	return out, shift, nil
}
