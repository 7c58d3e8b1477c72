package optmodel_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/spotrain/internal/optmodel"
)

var backends = []optmodel.Options{
	{Backend: optmodel.BackendDirect},
	{Backend: optmodel.BackendModeling, Solver: "simplex"},
}

func newGrid(t *testing.T, opts optmodel.Options) optmodel.Model {
	t.Helper()
	m, err := optmodel.NewShortestPath(2, 2, opts)
	require.NoError(t, err)
	return m
}

func newKnapsack(t *testing.T, opts optmodel.Options, weights []float64, capacity float64) optmodel.Model {
	t.Helper()
	m, err := optmodel.NewKnapsack([][]float64{weights}, []float64{capacity}, opts)
	require.NoError(t, err)
	return m
}

func solveX(t *testing.T, m optmodel.Model) ([]float64, float64) {
	t.Helper()
	sol, err := m.Solve()
	require.NoError(t, err)
	x, err := sol.X()
	require.NoError(t, err)
	obj, err := sol.Objective()
	require.NoError(t, err)
	return x, obj
}

func TestGridArcs(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 1}, {0, 2}, {1, 3}, {2, 3}}, optmodel.GridArcs(2, 2))
	assert.Len(t, optmodel.GridArcs(5, 5), 40)
	assert.Len(t, optmodel.GridArcs(3, 3), 12)
}

func TestShortestPathSolve(t *testing.T) {
	for _, opts := range backends {
		t.Run(string(opts.Backend), func(t *testing.T) {
			m := newGrid(t, opts)
			assert.Equal(t, 4, m.NumCost())
			assert.Equal(t, optmodel.Minimize, m.Sense())
			assert.Equal(t, opts.Backend, m.Backend())

			require.NoError(t, m.SetObjective([]float64{1, 5, 1, 5}))
			x, obj := solveX(t, m)
			assert.InDelta(t, 2.0, obj, 1e-7)
			assert.InDeltaSlice(t, []float64{1, 0, 1, 0}, x, 1e-7)
		})
	}
}

func TestKnapsackRelaxation(t *testing.T) {
	for _, opts := range backends {
		t.Run(string(opts.Backend), func(t *testing.T) {
			m := newKnapsack(t, opts, []float64{2, 3, 4}, 4)
			assert.Equal(t, optmodel.Maximize, m.Sense())
			require.NoError(t, m.SetObjective([]float64{3, 4, 5}))
			x, obj := solveX(t, m)
			assert.InDelta(t, 3+8.0/3, obj, 1e-7)
			assert.InDeltaSlice(t, []float64{1, 2.0 / 3, 0}, x, 1e-7)
		})
	}
}

func TestSetObjectiveDimension(t *testing.T) {
	for _, opts := range backends {
		t.Run(string(opts.Backend), func(t *testing.T) {
			m := newGrid(t, opts)
			err := m.SetObjective([]float64{1, 2, 3})
			require.Error(t, err)
			assert.True(t, errors.Is(err, optmodel.ErrDimension))

			var dimErr *optmodel.DimensionError
			require.True(t, errors.As(err, &dimErr))
			assert.Equal(t, 3, dimErr.Got)
			assert.Equal(t, 4, dimErr.Want)

			_, err = m.AddConstraint([]float64{1}, 0)
			assert.ErrorIs(t, err, optmodel.ErrDimension)
		})
	}
}

func TestSolveWithoutObjective(t *testing.T) {
	for _, opts := range backends {
		_, err := newGrid(t, opts).Solve()
		assert.ErrorIs(t, err, optmodel.ErrNoObjective)
	}
}

func TestStaleSolution(t *testing.T) {
	for _, opts := range backends {
		t.Run(string(opts.Backend), func(t *testing.T) {
			m := newGrid(t, opts)
			require.NoError(t, m.SetObjective([]float64{1, 5, 1, 5}))
			sol, err := m.Solve()
			require.NoError(t, err)
			assert.True(t, sol.Valid())

			// Tightening produces a new model; the source solution stays readable.
			_, err = m.AddConstraint([]float64{1, 0, 0, 0}, 0)
			require.NoError(t, err)
			_, err = sol.X()
			require.NoError(t, err)

			require.NoError(t, m.SetObjective([]float64{5, 1, 5, 1}))
			_, err = sol.X()
			assert.ErrorIs(t, err, optmodel.ErrStaleSolution)
			_, err = sol.Objective()
			assert.ErrorIs(t, err, optmodel.ErrStaleSolution)
		})
	}
}

func TestCloneIndependence(t *testing.T) {
	for _, opts := range backends {
		t.Run(string(opts.Backend), func(t *testing.T) {
			m := newGrid(t, opts)
			require.NoError(t, m.SetObjective([]float64{1, 5, 1, 5}))
			_, before := solveX(t, m)

			c := m.Clone()
			require.NoError(t, c.SetObjective([]float64{5, 1, 5, 1}))
			tight, err := c.AddConstraint([]float64{0, 1, 0, 0}, 0)
			require.NoError(t, err)
			_, err = tight.Solve()
			require.NoError(t, err)

			_, after := solveX(t, m)
			assert.InDelta(t, before, after, 1e-9)
			assert.Empty(t, m.Constraints())
			assert.Empty(t, c.Constraints())
			assert.Len(t, tight.Constraints(), 1)
		})
	}
}

func TestAddConstraintIsMonotone(t *testing.T) {
	for _, opts := range backends {
		t.Run(string(opts.Backend)+"/minimize", func(t *testing.T) {
			m := newGrid(t, opts)
			require.NoError(t, m.SetObjective([]float64{1, 5, 1, 5}))
			_, base := solveX(t, m)
			tight, err := m.AddConstraint([]float64{1, 0, 0, 0}, 0)
			require.NoError(t, err)
			x, obj := solveX(t, tight)
			assert.GreaterOrEqual(t, obj, base-1e-9)
			assert.InDelta(t, 0, x[0], 1e-9)
			assert.InDelta(t, 10, obj, 1e-7)
		})
		t.Run(string(opts.Backend)+"/maximize", func(t *testing.T) {
			m := newKnapsack(t, opts, []float64{2, 3, 4}, 4)
			require.NoError(t, m.SetObjective([]float64{3, 4, 5}))
			_, base := solveX(t, m)
			tight, err := m.AddConstraint([]float64{1, 0, 0}, 0)
			require.NoError(t, err)
			_, obj := solveX(t, tight)
			assert.LessOrEqual(t, obj, base+1e-9)
		})
	}
}

func TestInfeasibleAndUnbounded(t *testing.T) {
	for _, opts := range backends {
		t.Run(string(opts.Backend), func(t *testing.T) {
			m := newKnapsack(t, opts, []float64{3, 3}, 4)
			require.NoError(t, m.SetObjective([]float64{1, 1}))
			a, err := m.AddConstraint([]float64{-1, 0}, -1)
			require.NoError(t, err)
			b, err := a.AddConstraint([]float64{0, -1}, -1)
			require.NoError(t, err)
			_, err = b.Solve()
			assert.ErrorIs(t, err, optmodel.ErrInfeasible)

			spec := optmodel.Spec{
				Name:    "ray",
				Sense:   optmodel.Maximize,
				NumCost: 2,
				NumVars: 2,
				Rows:    []optmodel.Row{{Coefs: []float64{1, -1}, Rel: optmodel.LessEq, RHS: 1}},
			}
			u, err := optmodel.New(spec, opts)
			require.NoError(t, err)
			require.NoError(t, u.SetObjective([]float64{1, 1}))
			_, err = u.Solve()
			assert.ErrorIs(t, err, optmodel.ErrUnbounded)
		})
	}
}

func TestGreaterEqualRows(t *testing.T) {
	spec := optmodel.Spec{
		Name:    "cover",
		Sense:   optmodel.Minimize,
		NumCost: 2,
		NumVars: 2,
		Upper:   []float64{math.Inf(1), math.Inf(1)},
		Rows: []optmodel.Row{
			{Coefs: []float64{1, 1}, Rel: optmodel.GreaterEq, RHS: 3},
			{Coefs: []float64{1, 0}, Rel: optmodel.GreaterEq, RHS: 1},
		},
	}
	for _, opts := range backends {
		m, err := optmodel.New(spec, opts)
		require.NoError(t, err)
		require.NoError(t, m.SetObjective([]float64{2, 1}))
		x, obj := solveX(t, m)
		assert.InDelta(t, 4, obj, 1e-7)
		assert.InDeltaSlice(t, []float64{1, 2}, x, 1e-7)
	}
}

func TestEnumSolverFindsIntegerOptimum(t *testing.T) {
	m := newKnapsack(t, optmodel.Options{Backend: optmodel.BackendModeling, Solver: "enum"}, []float64{2, 3, 4}, 4)
	require.NoError(t, m.SetObjective([]float64{3, 4, 5}))
	x, obj := solveX(t, m)
	assert.Equal(t, []float64{0, 0, 1}, x)
	assert.InDelta(t, 5, obj, 1e-12)
}

func TestInvalidSpec(t *testing.T) {
	_, err := optmodel.New(optmodel.Spec{NumCost: 0, NumVars: 1, Sense: optmodel.Minimize}, optmodel.Options{})
	assert.ErrorIs(t, err, optmodel.ErrInvalidSpec)

	_, err = optmodel.NewShortestPath(1, 1, optmodel.Options{})
	assert.ErrorIs(t, err, optmodel.ErrInvalidSpec)

	_, err = optmodel.NewKnapsack([][]float64{{1, 2}}, []float64{1, 2}, optmodel.Options{})
	assert.ErrorIs(t, err, optmodel.ErrInvalidSpec)

	_, err = optmodel.NewShortestPath(2, 2, optmodel.Options{Backend: optmodel.BackendModeling, Solver: "cplex"})
	assert.ErrorIs(t, err, optmodel.ErrUnknownSolver)

	_, err = optmodel.ParseBackend("pyomo")
	assert.Error(t, err)
}

func TestSolverRegistry(t *testing.T) {
	assert.Subset(t, optmodel.Solvers(), []string{"enum", "simplex"})

	calls := 0
	optmodel.RegisterSolver("counting", func(tol float64) optmodel.Solver {
		calls++
		s, err := optmodel.LookupSolver("simplex", tol)
		require.NoError(t, err)
		return s
	})
	m, err := optmodel.NewShortestPath(2, 2, optmodel.Options{Backend: optmodel.BackendModeling, Solver: "counting"})
	require.NoError(t, err)
	_ = m.Clone()
	_ = m.Clone()
	// One session for the model and one per clone.
	assert.Equal(t, 3, calls)
}

func TestProgramCloneRebindsVariables(t *testing.T) {
	p := optmodel.NewProgram("p", optmodel.Minimize)
	x := p.AddVar("x", 0, 1)
	y := p.AddVar("y", 0, 2)
	p.Objective = optmodel.Dot([]*optmodel.Var{x, y}, []float64{1, 2})
	p.AddRow("r", optmodel.Dot([]*optmodel.Var{x, y}, []float64{1, 1}), optmodel.GreaterEq, 1)

	c := p.Clone()
	cx, ok := c.Lookup("x")
	require.True(t, ok)
	assert.NotSame(t, x, cx)
	assert.Equal(t, x.Index(), cx.Index())
	assert.Same(t, cx, c.Objective[0].Var)
	assert.Same(t, cx, c.Rows()[0].Expr[0].Var)

	cx.Upper = 0
	assert.Equal(t, 1.0, x.Upper)

	s, err := optmodel.LookupSolver("simplex", 1e-10)
	require.NoError(t, err)
	vals, obj, err := s.Solve(p)
	require.NoError(t, err)
	assert.InDelta(t, 1, obj, 1e-7)
	assert.InDeltaSlice(t, []float64{1, 0}, vals, 1e-7)
}
