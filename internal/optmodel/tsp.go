package optmodel

import (
	"fmt"
	"sort"
	"strings"
)

// Formulation selects how TSP sub-tours are excluded.
type Formulation string

const (
	// FormulationDFJ relies on sub-tour elimination cuts added during the search.
	FormulationDFJ Formulation = "dfj"
	// FormulationGG adds a single-commodity flow on directed arcs.
	FormulationGG Formulation = "gg"
	// FormulationMTZ adds Miller-Tucker-Zemlin ordering variables.
	FormulationMTZ Formulation = "mtz"
)

// ParseFormulation validates a formulation name.
func ParseFormulation(s string) (Formulation, error) {
	switch f := Formulation(strings.ToLower(strings.TrimSpace(s))); f {
	case FormulationDFJ, FormulationGG, FormulationMTZ:
		return f, nil
	default:
		return "", fmt.Errorf("optmodel: unknown tsp formulation %q", s)
	}
}

// TSPEdges lists the undirected edges (i, j), i < j, in the order of EdgeIndex.
func TSPEdges(nodes int) [][2]int {
	edges := make([][2]int, 0, nodes*(nodes-1)/2)
	for i := 0; i < nodes; i++ {
		for j := i + 1; j < nodes; j++ {
			edges = append(edges, [2]int{i, j})
		}
	}
	return edges
}

// EdgeIndex returns the position of edge {i, j} in TSPEdges(nodes).
func EdgeIndex(i, j, nodes int) int {
	if j < i {
		i, j = j, i
	}
	idx := 0
	for k := 0; k < i; k++ {
		idx += nodes - 1 - k
	}
	return idx + j - i - 1
}

// TSPSpec builds a symmetric TSP over complete graph edges. The edge
// variables are the cost variables; gg and mtz append directed arc variables
// followed by flow or ordering variables.
func TSPSpec(nodes int, form Formulation) (Spec, error) {
	if nodes < 3 {
		return Spec{}, fmt.Errorf("%w: tsp needs at least 3 nodes, got %d", ErrInvalidSpec, nodes)
	}
	edges := TSPEdges(nodes)
	ne := len(edges)

	var arcs [][2]int
	numVars := ne
	switch form {
	case FormulationDFJ:
	case FormulationGG, FormulationMTZ:
		for i := 0; i < nodes; i++ {
			for j := 0; j < nodes; j++ {
				if i != j {
					arcs = append(arcs, [2]int{i, j})
				}
			}
		}
		numVars += len(arcs)
		if form == FormulationGG {
			numVars += len(arcs)
		} else {
			numVars += nodes - 1
		}
	default:
		return Spec{}, fmt.Errorf("optmodel: unknown tsp formulation %q", form)
	}

	spec := Spec{
		Name:      fmt.Sprintf("tsp_%s_%d", form, nodes),
		Sense:     Minimize,
		NumCost:   ne,
		NumVars:   numVars,
		Upper:     make([]float64, numVars),
		VarNames:  make([]string, numVars),
		Separator: subtourSeparator(nodes, edges),
	}
	row := func(name string, rel Relation, rhs float64) []float64 {
		coefs := make([]float64, numVars)
		spec.Rows = append(spec.Rows, Row{Name: name, Coefs: coefs, Rel: rel, RHS: rhs})
		return coefs
	}

	for k, e := range edges {
		spec.Upper[k] = 1
		spec.VarNames[k] = fmt.Sprintf("x[%d,%d]", e[0], e[1])
	}
	for v := 0; v < nodes; v++ {
		coefs := row(fmt.Sprintf("degree[%d]", v), Equal, 2)
		for k, e := range edges {
			if e[0] == v || e[1] == v {
				coefs[k] = 1
			}
		}
	}
	if form == FormulationDFJ {
		return spec, nil
	}

	// Directed arcs: y[i,j] at ne + a.
	arcIndex := func(i, j int) int {
		a := i*(nodes-1) + j
		if j > i {
			a--
		}
		return ne + a
	}
	for a, arc := range arcs {
		spec.Upper[ne+a] = 1
		spec.VarNames[ne+a] = fmt.Sprintf("y[%d,%d]", arc[0], arc[1])
	}
	for v := 0; v < nodes; v++ {
		out := row(fmt.Sprintf("out[%d]", v), Equal, 1)
		in := row(fmt.Sprintf("in[%d]", v), Equal, 1)
		for u := 0; u < nodes; u++ {
			if u == v {
				continue
			}
			out[arcIndex(v, u)] = 1
			in[arcIndex(u, v)] = 1
		}
	}
	for k, e := range edges {
		coefs := row(fmt.Sprintf("link[%d,%d]", e[0], e[1]), Equal, 0)
		coefs[k] = 1
		coefs[arcIndex(e[0], e[1])] = -1
		coefs[arcIndex(e[1], e[0])] = -1
	}

	n1 := float64(nodes - 1)
	switch form {
	case FormulationGG:
		// Flows: f[i,j] at ne + len(arcs) + a. The depot ships one unit to every other node.
		flow := func(i, j int) int { return arcIndex(i, j) + len(arcs) }
		for a, arc := range arcs {
			spec.Upper[ne+len(arcs)+a] = n1
			spec.VarNames[ne+len(arcs)+a] = fmt.Sprintf("f[%d,%d]", arc[0], arc[1])
			coefs := row(fmt.Sprintf("capacity[%d,%d]", arc[0], arc[1]), LessEq, 0)
			coefs[flow(arc[0], arc[1])] = 1
			coefs[arcIndex(arc[0], arc[1])] = -n1
		}
		for v := 1; v < nodes; v++ {
			coefs := row(fmt.Sprintf("demand[%d]", v), Equal, 1)
			for u := 0; u < nodes; u++ {
				if u == v {
					continue
				}
				coefs[flow(u, v)]++
				coefs[flow(v, u)]--
			}
		}
	case FormulationMTZ:
		// Ordering: u[v] for v = 1..nodes-1 at ne + len(arcs) + v - 1.
		order := func(v int) int { return ne + len(arcs) + v - 1 }
		for v := 1; v < nodes; v++ {
			spec.Upper[order(v)] = n1
			spec.VarNames[order(v)] = fmt.Sprintf("u[%d]", v)
			coefs := row(fmt.Sprintf("order_lb[%d]", v), GreaterEq, 1)
			coefs[order(v)] = 1
		}
		for i := 1; i < nodes; i++ {
			for j := 1; j < nodes; j++ {
				if i == j {
					continue
				}
				coefs := row(fmt.Sprintf("mtz[%d,%d]", i, j), LessEq, n1-1)
				coefs[order(i)] = 1
				coefs[order(j)] = -1
				coefs[arcIndex(i, j)] = n1
			}
		}
	}
	return spec, nil
}

// NewTSP builds a TSP model over nodes cities.
func NewTSP(nodes int, form Formulation, opts Options) (Model, error) {
	spec, err := TSPSpec(nodes, form)
	if err != nil {
		return nil, err
	}
	return New(spec, opts)
}

// Subtours splits the tour encoded by an integral edge vector into its
// connected components, ordered by their smallest node.
func Subtours(nodes int, x []float64) [][]int {
	edges := TSPEdges(nodes)
	adj := make([][]int, nodes)
	for k, e := range edges {
		if x[k] > 0.5 {
			adj[e[0]] = append(adj[e[0]], e[1])
			adj[e[1]] = append(adj[e[1]], e[0])
		}
	}
	seen := make([]bool, nodes)
	var tours [][]int
	for start := 0; start < nodes; start++ {
		if seen[start] {
			continue
		}
		tour := []int{}
		stack := []int{start}
		seen[start] = true
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			tour = append(tour, v)
			for _, u := range adj[v] {
				if !seen[u] {
					seen[u] = true
					stack = append(stack, u)
				}
			}
		}
		sort.Ints(tour)
		tours = append(tours, tour)
	}
	return tours
}

// subtourSeparator cuts every sub-tour S of an integral solution with
// sum_{e in S} x_e <= |S| - 1, smallest sub-tour first.
func subtourSeparator(nodes int, edges [][2]int) Separator {
	return func(x []float64) []Constraint {
		tours := Subtours(nodes, x)
		if len(tours) <= 1 {
			return nil
		}
		sort.SliceStable(tours, func(a, b int) bool { return len(tours[a]) < len(tours[b]) })
		cuts := make([]Constraint, 0, len(tours))
		for _, tour := range tours {
			in := make([]bool, nodes)
			for _, v := range tour {
				in[v] = true
			}
			coefs := make([]float64, len(edges))
			for k, e := range edges {
				if in[e[0]] && in[e[1]] {
					coefs[k] = 1
				}
			}
			cuts = append(cuts, Constraint{Coefs: coefs, RHS: float64(len(tour) - 1)})
		}
		return cuts
	}
}
