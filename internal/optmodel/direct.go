package optmodel

import (
	"gonum.org/v1/gonum/mat"
)

// directModel stores the structural rows as dense matrices and solves them with
// the simplex engine without an intermediate representation.
type directModel struct {
	name    string
	sense   Sense
	numCost int
	numVars int

	eq    *mat.Dense // nil when there are no equality rows
	eqRHS []float64
	le    *mat.Dense // >= rows are stored negated
	leRHS []float64
	upper []float64

	cuts []Constraint
	obj  []float64
	sep  Separator
	tol  float64
	rev  *revision
}

func newDirectModel(spec *Spec, tol float64) *directModel {
	m := &directModel{
		name:    spec.Name,
		sense:   spec.Sense,
		numCost: spec.NumCost,
		numVars: spec.NumVars,
		upper:   make([]float64, spec.NumVars),
		sep:     spec.Separator,
		tol:     tol,
		rev:     &revision{},
	}
	for j := range m.upper {
		m.upper[j] = spec.upper(j)
	}

	var eqData, leData []float64
	for _, r := range spec.Rows {
		switch r.Rel {
		case Equal:
			eqData = append(eqData, r.Coefs...)
			m.eqRHS = append(m.eqRHS, r.RHS)
		case GreaterEq:
			for _, v := range r.Coefs {
				leData = append(leData, -v)
			}
			m.leRHS = append(m.leRHS, -r.RHS)
		default:
			leData = append(leData, r.Coefs...)
			m.leRHS = append(m.leRHS, r.RHS)
		}
	}
	if len(m.eqRHS) > 0 {
		m.eq = mat.NewDense(len(m.eqRHS), spec.NumVars, eqData)
	}
	if len(m.leRHS) > 0 {
		m.le = mat.NewDense(len(m.leRHS), spec.NumVars, leData)
	}
	return m
}

func (m *directModel) Name() string     { return m.name }
func (m *directModel) Backend() Backend { return BackendDirect }
func (m *directModel) Sense() Sense     { return m.sense }
func (m *directModel) NumCost() int     { return m.numCost }

func (m *directModel) SetObjective(c []float64) error {
	if err := checkCoefs("set objective", c, m.numCost); err != nil {
		return err
	}
	m.obj = append(m.obj[:0], c...)
	m.rev.n++
	return nil
}

func (m *directModel) Solve() (*Solution, error) {
	if m.obj == nil {
		return nil, ErrNoObjective
	}
	p := &linearProgram{
		c:     make([]float64, m.numVars),
		eqRHS: m.eqRHS,
		upper: m.upper,
	}
	sign := m.sense.Sign()
	for j, v := range m.obj {
		p.c[j] = sign * v
	}
	p.eq = denseRows(m.eq)
	p.le = denseRows(m.le)
	p.leRHS = append(p.leRHS, m.leRHS...)
	for _, cut := range m.cuts {
		row := make([]float64, m.numVars)
		copy(row, cut.Coefs)
		p.le = append(p.le, row)
		p.leRHS = append(p.leRHS, cut.RHS)
	}

	x, _, err := p.solve(m.tol)
	if err != nil {
		return nil, err
	}
	xc := x[:m.numCost:m.numCost]
	return newSolution(xc, Objective(m.obj, xc), m.rev), nil
}

func (m *directModel) Clone() Model {
	out := &directModel{
		name:    m.name,
		sense:   m.sense,
		numCost: m.numCost,
		numVars: m.numVars,
		eqRHS:   append([]float64(nil), m.eqRHS...),
		leRHS:   append([]float64(nil), m.leRHS...),
		upper:   append([]float64(nil), m.upper...),
		cuts:    cloneConstraints(m.cuts),
		sep:     m.sep,
		tol:     m.tol,
		rev:     &revision{},
	}
	if m.obj != nil {
		out.obj = append([]float64(nil), m.obj...)
	}
	if m.eq != nil {
		out.eq = mat.DenseCopyOf(m.eq)
	}
	if m.le != nil {
		out.le = mat.DenseCopyOf(m.le)
	}
	return out
}

func (m *directModel) AddConstraint(coefs []float64, rhs float64) (Model, error) {
	if err := checkCoefs("add constraint", coefs, m.numCost); err != nil {
		return nil, err
	}
	out := m.Clone().(*directModel)
	out.cuts = append(out.cuts, Constraint{Coefs: append([]float64(nil), coefs...), RHS: rhs})
	return out, nil
}

func (m *directModel) Constraints() []Constraint {
	return cloneConstraints(m.cuts)
}

func (m *directModel) Separate(x []float64) []Constraint {
	if m.sep == nil {
		return nil
	}
	return m.sep(x)
}

func denseRows(d *mat.Dense) [][]float64 {
	if d == nil {
		return nil
	}
	r, _ := d.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, d)
	}
	return out
}
