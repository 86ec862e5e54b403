package latis

// Graph is an online, dynamically-maintained directed graph over XY
// nodes, edges oriented source -> reader ("A1 feeds C1"): GetDescendantsOf(A1)
// yields the cells to recompute after A1 changes, in topological order.
// Nodes are XY keys in a flat map; edges are sets of keys, with no
// owning pointers between cells.
type Graph struct {
	// edges[u] is the set of nodes u has an edge to (u's readers).
	edges map[XY]map[XY]struct{}
	// reverse[v] is the set of nodes with an edge to v (v's sources).
	reverse map[XY]map[XY]struct{}
}

// NewGraph creates an empty dependency graph.
func NewGraph() *Graph {
	return &Graph{
		edges:   make(map[XY]map[XY]struct{}),
		reverse: make(map[XY]map[XY]struct{}),
	}
}

func (g *Graph) ensureNode(u XY) {
	if _, ok := g.edges[u]; !ok {
		g.edges[u] = make(map[XY]struct{})
	}
	if _, ok := g.reverse[u]; !ok {
		g.reverse[u] = make(map[XY]struct{})
	}
}

// HasEdge reports whether u -> v exists.
func (g *Graph) HasEdge(u, v XY) bool {
	_, ok := g.edges[u][v]
	return ok
}

// AddEdge inserts u -> v, rejecting it (returning false, no change) if
// it would create a cycle. Cycle check: DFS from v following outgoing
// edges; if u is reachable from v, adding u->v would close a cycle.
func (g *Graph) AddEdge(u, v XY) bool {
	if u == v || g.reachableFrom(v, u) {
		return false
	}
	g.ensureNode(u)
	g.ensureNode(v)
	g.edges[u][v] = struct{}{}
	g.reverse[v][u] = struct{}{}
	return true
}

// RemoveEdge deletes u -> v if present.
func (g *Graph) RemoveEdge(u, v XY) {
	delete(g.edges[u], v)
	delete(g.reverse[v], u)
}

// Remove erases node and all incident edges (outgoing and incoming).
func (g *Graph) Remove(node XY) {
	for v := range g.edges[node] {
		delete(g.reverse[v], node)
	}
	for u := range g.reverse[node] {
		delete(g.edges[u], node)
	}
	delete(g.edges, node)
	delete(g.reverse, node)
}

// GetParentsOf returns the set of nodes with an edge into v (v's sources).
func (g *Graph) GetParentsOf(v XY) map[XY]struct{} {
	out := make(map[XY]struct{}, len(g.reverse[v]))
	for u := range g.reverse[v] {
		out[u] = struct{}{}
	}
	return out
}

// reachableFrom reports whether target is reachable from start by
// following outgoing edges (start included).
func (g *Graph) reachableFrom(start, target XY) bool {
	if start == target {
		return true
	}
	visited := make(map[XY]struct{})
	stack := []XY{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[n]; seen {
			continue
		}
		visited[n] = struct{}{}
		if n == target {
			return true
		}
		for next := range g.edges[n] {
			if _, seen := visited[next]; !seen {
				stack = append(stack, next)
			}
		}
	}
	return false
}

// GetDescendantsOf returns every node reachable from u (exclusive of u
// itself) in a valid topological order of that reachable subgraph --
// Kahn's algorithm restricted to the subgraph.
func (g *Graph) GetDescendantsOf(u XY) []XY {
	reachable := make(map[XY]struct{})
	var collect func(n XY)
	collect = func(n XY) {
		for next := range g.edges[n] {
			if _, seen := reachable[next]; !seen {
				reachable[next] = struct{}{}
				collect(next)
			}
		}
	}
	collect(u)

	indegree := make(map[XY]int, len(reachable))
	for n := range reachable {
		indegree[n] = 0
	}
	for n := range reachable {
		for next := range g.edges[n] {
			if _, ok := reachable[next]; ok {
				indegree[next]++
			}
		}
	}

	var queue []XY
	for n := range reachable {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	var order []XY
	for len(queue) > 0 {
		sortXYs(queue)
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for next := range g.edges[n] {
			if _, ok := reachable[next]; !ok {
				continue
			}
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return order
}

// sortXYs gives Kahn's algorithm a deterministic tie-break among
// simultaneously-ready nodes, so GetDescendantsOf's output (and hence
// on_change firing order) is reproducible across runs.
func sortXYs(xys []XY) {
	for i := 1; i < len(xys); i++ {
		for j := i; j > 0 && xys[j].Less(xys[j-1]); j-- {
			xys[j], xys[j-1] = xys[j-1], xys[j]
		}
	}
}

// Transaction is a deferred batch of edge changes staged against a
// graph: Stage records intent without touching the graph; Confirm
// applies every staged edge atomically -- all or none -- and fails
// (leaving the graph untouched) if any staged edge would create a
// cycle. This has no analog in the graph this was grounded on; it
// exists to give Sheet.Set an atomic "replace xy's incoming edges"
// operation.
type Transaction struct {
	g       *Graph
	removes []struct{ u, v XY }
	adds    []struct{ u, v XY }
}

// Begin starts a transaction against g.
func (g *Graph) Begin() *Transaction {
	return &Transaction{g: g}
}

// Stage records an edge to add. The edge is not applied until Confirm.
func (t *Transaction) Stage(u, v XY) {
	t.adds = append(t.adds, struct{ u, v XY }{u, v})
}

// StageRemoval records an edge to remove as part of this transaction.
func (t *Transaction) StageRemoval(u, v XY) {
	t.removes = append(t.removes, struct{ u, v XY }{u, v})
}

// Confirm applies every staged removal, then every staged addition. If
// any addition would create a cycle, no staged change is applied and
// Confirm returns false.
func (t *Transaction) Confirm() bool {
	g := t.g

	// Simulate on a scratch copy so a rejected transaction leaves g
	// untouched.
	scratch := g.clone()
	for _, e := range t.removes {
		scratch.RemoveEdge(e.u, e.v)
	}
	for _, e := range t.adds {
		if !scratch.AddEdge(e.u, e.v) {
			return false
		}
	}

	for _, e := range t.removes {
		g.RemoveEdge(e.u, e.v)
	}
	for _, e := range t.adds {
		g.AddEdge(e.u, e.v)
	}
	return true
}

func (g *Graph) clone() *Graph {
	out := NewGraph()
	for u, vs := range g.edges {
		out.ensureNode(u)
		for v := range vs {
			out.ensureNode(v)
			out.edges[u][v] = struct{}{}
			out.reverse[v][u] = struct{}{}
		}
	}
	return out
}
