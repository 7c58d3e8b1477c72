package optmodel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	rankTol = 1e-9
	feasTol = 1e-9
)

// linearProgram is min c·x subject to eq rows, le rows and 0 <= x <= upper.
// Every row has len(c) coefficients.
type linearProgram struct {
	c     []float64
	eq    [][]float64
	eqRHS []float64
	le    [][]float64
	leRHS []float64
	upper []float64
}

// solve lowers p to the standard form min c·z s.t. Az = b, z >= 0 expected by
// lp.Simplex. Finite upper bounds and <= rows get slack columns, linearly
// dependent equalities are dropped, and columns no row touches are fixed at zero.
func (p *linearProgram) solve(tol float64) ([]float64, float64, error) {
	n := len(p.c)

	le := make([][]float64, 0, len(p.le)+n)
	leRHS := make([]float64, 0, len(p.le)+n)
	for i, r := range p.le {
		if isZero(r) {
			if p.leRHS[i] < -feasTol {
				return nil, 0, fmt.Errorf("%w: empty row %d requires 0 <= %g", ErrInfeasible, i, p.leRHS[i])
			}
			continue
		}
		le = append(le, r)
		leRHS = append(leRHS, p.leRHS[i])
	}
	for j := 0; j < n; j++ {
		u := math.Inf(1)
		if p.upper != nil {
			u = p.upper[j]
		}
		if math.IsInf(u, 1) {
			continue
		}
		if u < -feasTol {
			return nil, 0, fmt.Errorf("%w: negative upper bound on variable %d", ErrInfeasible, j)
		}
		row := make([]float64, n)
		row[j] = 1
		le = append(le, row)
		leRHS = append(leRHS, u)
	}

	eqKeep, err := independentRows(p.eq, p.eqRHS)
	if err != nil {
		return nil, 0, err
	}

	used := make([]bool, n)
	for _, rows := range [][][]float64{p.eq, le} {
		for _, r := range rows {
			for j, v := range r {
				if v != 0 {
					used[j] = true
				}
			}
		}
	}
	cols := make([]int, 0, n)
	for j := 0; j < n; j++ {
		if used[j] {
			cols = append(cols, j)
			continue
		}
		// Nothing limits an unused column, so it sits at zero unless it improves the objective forever.
		if p.c[j] < 0 {
			return nil, 0, fmt.Errorf("%w: variable %d has negative cost and no constraint", ErrUnbounded, j)
		}
	}

	x := make([]float64, n)
	m := len(eqKeep) + len(le)
	if m == 0 {
		return x, 0, nil
	}

	nk := len(cols)
	a := mat.NewDense(m, nk+len(le), nil)
	b := make([]float64, m)
	c := make([]float64, nk+len(le))
	for k, j := range cols {
		c[k] = p.c[j]
	}
	row := 0
	for _, i := range eqKeep {
		for k, j := range cols {
			a.Set(row, k, p.eq[i][j])
		}
		b[row] = p.eqRHS[i]
		row++
	}
	for i, r := range le {
		for k, j := range cols {
			a.Set(row, k, r[j])
		}
		a.Set(row, nk+i, 1)
		b[row] = leRHS[i]
		row++
	}
	for i := range b {
		if b[i] < 0 {
			b[i] = -b[i]
			floats.Scale(-1, a.RawRowView(i))
		}
	}

	z, err := simplex(c, a, b, tol)
	if err != nil {
		return nil, 0, err
	}
	for k, j := range cols {
		v := z[k]
		if v < 0 && v > -feasTol {
			v = 0
		}
		x[j] = v
	}
	return x, floats.Dot(p.c, x), nil
}

// simplex runs lp.Simplex and maps its errors onto the package sentinels.
func simplex(c []float64, a *mat.Dense, b []float64, tol float64) (z []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			z = nil
			err = fmt.Errorf("%w: simplex panic: %v", ErrSolverBackend, r)
		}
	}()
	_, z, err = lp.Simplex(c, a, b, tol, nil)
	switch {
	case err == nil:
		return z, nil
	case errors.Is(err, lp.ErrInfeasible):
		return nil, ErrInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		return nil, ErrUnbounded
	default:
		return nil, fmt.Errorf("%w: %w", ErrSolverBackend, err)
	}
}

// independentRows returns the indices of a maximal linearly independent subset
// of rows, scanning in order. A dependent row whose right-hand side disagrees
// with the rows it depends on makes the system inconsistent.
func independentRows(rows [][]float64, rhs []float64) ([]int, error) {
	type pivotRow struct {
		coefs []float64
		rhs   float64
		col   int
	}
	basis := make([]pivotRow, 0, len(rows))
	keep := make([]int, 0, len(rows))
	for i, r := range rows {
		scale := math.Max(1, floats.Norm(r, math.Inf(1)))
		v := append([]float64(nil), r...)
		w := rhs[i]
		for _, piv := range basis {
			f := v[piv.col]
			if f == 0 {
				continue
			}
			floats.AddScaled(v, -f, piv.coefs)
			w -= f * piv.rhs
		}
		col := floats.MaxIdx(absAll(v))
		if math.Abs(v[col]) <= rankTol*scale {
			if math.Abs(w) > feasTol*scale*10 {
				return nil, fmt.Errorf("%w: equality row %d contradicts earlier rows", ErrInfeasible, i)
			}
			continue
		}
		f := 1 / v[col]
		floats.Scale(f, v)
		basis = append(basis, pivotRow{coefs: v, rhs: w * f, col: col})
		keep = append(keep, i)
	}
	return keep, nil
}

func absAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}

func isZero(r []float64) bool {
	for _, v := range r {
		if v != 0 {
			return false
		}
	}
	return true
}
