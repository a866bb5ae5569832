package hierarchy

import (
	"sort"

	"github.com/ethicslab/ontostore/pkg/turtle"
)

// classNode is one owl:Class with its outgoing subClassOf edges.
type classNode struct {
	URI     string
	Label   string
	Parents map[string]bool
}

// buildClassGraph collects every subject typed owl:Class, then attaches
// labels and subClassOf edges. Statements about non-class subjects are
// left alone.
func buildClassGraph(triples []turtle.Triple) map[string]*classNode {
	nodes := make(map[string]*classNode)

	for _, t := range triples {
		if t.Predicate == turtle.RDFType && !t.IsLiteral && t.Object == turtle.OWLClass {
			if _, ok := nodes[t.Subject]; !ok {
				nodes[t.Subject] = &classNode{URI: t.Subject, Parents: make(map[string]bool)}
			}
		}
	}

	for _, t := range triples {
		n, ok := nodes[t.Subject]
		if !ok {
			continue
		}
		switch t.Predicate {
		case turtle.RDFSSubClassOf:
			if !t.IsLiteral {
				n.Parents[t.Object] = true
			}
		case turtle.RDFSLabel:
			if t.IsLiteral && n.Label == "" {
				n.Label = t.Object
			}
		}
	}

	return nodes
}

// findCycle returns one subClassOf cycle, child first, or nil when the
// class subgraph is acyclic. Edges pointing outside the class set are
// not traversable and cannot close a cycle. Iteration order is sorted
// so repeated runs report the same cycle.
func findCycle(nodes map[string]*classNode) []string {
	const (
		unvisited = 0
		onPath    = 1
		done      = 2
	)
	state := make(map[string]int)
	var path []string
	var cycle []string

	var visit func(uri string) bool
	visit = func(uri string) bool {
		state[uri] = onPath
		path = append(path, uri)

		for _, p := range sortedParents(nodes[uri]) {
			if _, ok := nodes[p]; !ok {
				continue
			}
			switch state[p] {
			case onPath:
				for i, u := range path {
					if u == p {
						cycle = append([]string{}, path[i:]...)
						break
					}
				}
				return true
			case unvisited:
				if visit(p) {
					return true
				}
			}
		}

		path = path[:len(path)-1]
		state[uri] = done
		return false
	}

	for _, uri := range sortedURIs(nodes) {
		if state[uri] == unvisited && visit(uri) {
			return cycle
		}
	}
	return nil
}

func sortedURIs(nodes map[string]*classNode) []string {
	uris := make([]string, 0, len(nodes))
	for uri := range nodes {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

func sortedParents(n *classNode) []string {
	parents := make([]string, 0, len(n.Parents))
	for p := range n.Parents {
		parents = append(parents, p)
	}
	sort.Strings(parents)
	return parents
}
