// Package graph provides a lightweight directed graph over URIs with
// bounded breadth-first path search.
package graph

// Edge is one predicate-labeled arc. For Outbound lists Other is the
// target URI; for Inbound lists it is the source.
type Edge struct {
	Other     string `json:"other"`
	Predicate string `json:"predicate"`
}

// Graph is a directed multigraph: multiple predicates may connect the
// same pair of URIs.
type Graph struct {
	// Node set: URI -> present
	Nodes map[string]bool `json:"nodes"`

	// Adjacency lists
	Outbound map[string][]Edge `json:"outbound"`
	Inbound  map[string][]Edge `json:"inbound"`
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		Nodes:    make(map[string]bool),
		Outbound: make(map[string][]Edge),
		Inbound:  make(map[string][]Edge),
	}
}

// EnsureNode adds a node if it doesn't exist.
func (g *Graph) EnsureNode(uri string) {
	g.Nodes[uri] = true
}

// AddEdge creates a directed edge from source to target, creating nodes
// as needed. Exact duplicate edges are ignored.
func (g *Graph) AddEdge(source, target, predicate string) {
	g.EnsureNode(source)
	g.EnsureNode(target)

	for _, e := range g.Outbound[source] {
		if e.Other == target && e.Predicate == predicate {
			return
		}
	}

	g.Outbound[source] = append(g.Outbound[source], Edge{Other: target, Predicate: predicate})
	g.Inbound[target] = append(g.Inbound[target], Edge{Other: source, Predicate: predicate})
}

// HasNode reports whether a URI is in the graph.
func (g *Graph) HasNode(uri string) bool {
	return g.Nodes[uri]
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.Nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, edges := range g.Outbound {
		count += len(edges)
	}
	return count
}

// Path is one route between two URIs. Nodes has one more entry than
// Predicates; Predicates[i] labels the hop from Nodes[i] to Nodes[i+1].
type Path struct {
	Nodes      []string `json:"nodes"`
	Predicates []string `json:"predicates"`
}

// Depth returns the number of hops.
func (p Path) Depth() int {
	return len(p.Predicates)
}

// FindPaths returns every path from start to end of at most maxDepth
// hops, ordered by increasing depth. A path never revisits a URI already
// on it, so cycles in the graph cannot trap the search.
func (g *Graph) FindPaths(start, end string, maxDepth int) []Path {
	if maxDepth <= 0 || !g.HasNode(start) || !g.HasNode(end) {
		return nil
	}

	var found []Path
	queue := []Path{{Nodes: []string{start}}}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		last := p.Nodes[len(p.Nodes)-1]
		if last == end && p.Depth() > 0 {
			found = append(found, p)
			continue
		}
		if p.Depth() >= maxDepth {
			continue
		}

		for _, e := range g.Outbound[last] {
			if onPath(p.Nodes, e.Other) {
				continue
			}
			next := Path{
				Nodes:      append(append([]string{}, p.Nodes...), e.Other),
				Predicates: append(append([]string{}, p.Predicates...), e.Predicate),
			}
			queue = append(queue, next)
		}
	}

	return found
}

func onPath(nodes []string, uri string) bool {
	for _, n := range nodes {
		if n == uri {
			return true
		}
	}
	return false
}
