package store

import (
	"github.com/ethicslab/ontostore/pkg/graph"
)

// FindPaths answers reachability queries between two URIs across the
// non-literal triple graph: breadth-first, capped at maxDepth hops,
// pruning any path that revisits a URI already on it. Results come back
// ordered by increasing depth.
func (s *SQLiteStore) FindPaths(start, end string, maxDepth int) ([]graph.Path, error) {
	g, err := s.loadEdgeGraph("")
	if err != nil {
		return nil, err
	}
	return g.FindPaths(start, end, maxDepth), nil
}

// loadEdgeGraph materializes the URI-to-URI edge set. Literal-valued
// triples carry no traversable edge and are left out.
func (s *SQLiteStore) loadEdgeGraph(graphName string) (*graph.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT subject, predicate, object_uri FROM triples WHERE is_literal = 0`
	args := []any{}
	if graphName != "" {
		query += ` AND graph = ?`
		args = append(args, graphName)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	g := graph.New()
	for rows.Next() {
		var subject, predicate, object string
		if err := rows.Scan(&subject, &predicate, &object); err != nil {
			return nil, err
		}
		g.AddEdge(subject, object, predicate)
	}
	return g, rows.Err()
}
