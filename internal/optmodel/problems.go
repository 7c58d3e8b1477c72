package optmodel

import (
	"fmt"
)

// GridArcs lists the arcs of a rows×cols grid network. Nodes are numbered
// row-major; each row contributes its east arcs followed by the south arcs
// leaving it.
func GridArcs(rows, cols int) [][2]int {
	arcs := make([][2]int, 0, (rows-1)*cols+rows*(cols-1))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols-1; j++ {
			v := i*cols + j
			arcs = append(arcs, [2]int{v, v + 1})
		}
		if i == rows-1 {
			continue
		}
		for j := 0; j < cols; j++ {
			v := i*cols + j
			arcs = append(arcs, [2]int{v, v + cols})
		}
	}
	return arcs
}

// ShortestPathSpec routes one unit of flow from the north-west to the
// south-east corner of a rows×cols grid. Arc costs are the objective.
func ShortestPathSpec(rows, cols int) (Spec, error) {
	if rows < 1 || cols < 1 || rows*cols < 2 {
		return Spec{}, fmt.Errorf("%w: grid %dx%d has no path", ErrInvalidSpec, rows, cols)
	}
	arcs := GridArcs(rows, cols)
	nodes := rows * cols
	spec := Spec{
		Name:     fmt.Sprintf("shortest_path_%dx%d", rows, cols),
		Sense:    Minimize,
		NumCost:  len(arcs),
		NumVars:  len(arcs),
		Upper:    filled(len(arcs), 1),
		VarNames: make([]string, len(arcs)),
	}
	for k, a := range arcs {
		spec.VarNames[k] = fmt.Sprintf("x[%d,%d]", a[0], a[1])
	}
	for v := 0; v < nodes; v++ {
		coefs := make([]float64, len(arcs))
		for k, a := range arcs {
			if a[0] == v {
				coefs[k]--
			}
			if a[1] == v {
				coefs[k]++
			}
		}
		rhs := 0.0
		switch v {
		case 0:
			rhs = -1
		case nodes - 1:
			rhs = 1
		}
		spec.Rows = append(spec.Rows, Row{Name: fmt.Sprintf("flow[%d]", v), Coefs: coefs, Rel: Equal, RHS: rhs})
	}
	return spec, nil
}

// NewShortestPath builds a grid shortest path model.
func NewShortestPath(rows, cols int, opts Options) (Model, error) {
	spec, err := ShortestPathSpec(rows, cols)
	if err != nil {
		return nil, err
	}
	return New(spec, opts)
}

// KnapsackSpec is the multi-dimensional knapsack max c·x s.t. weights·x <= caps.
// weights has one row per dimension and one column per item.
func KnapsackSpec(weights [][]float64, caps []float64) (Spec, error) {
	if len(weights) == 0 || len(weights) != len(caps) {
		return Spec{}, fmt.Errorf("%w: %d weight rows for %d capacities", ErrInvalidSpec, len(weights), len(caps))
	}
	items := len(weights[0])
	if items == 0 {
		return Spec{}, fmt.Errorf("%w: knapsack without items", ErrInvalidSpec)
	}
	spec := Spec{
		Name:    fmt.Sprintf("knapsack_%dx%d", len(caps), items),
		Sense:   Maximize,
		NumCost: items,
		NumVars: items,
		Upper:   filled(items, 1),
	}
	for d, w := range weights {
		if len(w) != items {
			return Spec{}, fmt.Errorf("%w: weight row %d has %d items, want %d", ErrInvalidSpec, d, len(w), items)
		}
		spec.Rows = append(spec.Rows, Row{
			Name:  fmt.Sprintf("capacity[%d]", d),
			Coefs: append([]float64(nil), w...),
			Rel:   LessEq,
			RHS:   caps[d],
		})
	}
	return spec, nil
}

// NewKnapsack builds a multi-dimensional knapsack model.
func NewKnapsack(weights [][]float64, caps []float64, opts Options) (Model, error) {
	spec, err := KnapsackSpec(weights, caps)
	if err != nil {
		return nil, err
	}
	return New(spec, opts)
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
