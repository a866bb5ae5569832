package store

import (
	"fmt"
)

// SetValidity attaches a validity interval to a triple. A nil end means
// the fact is still valid (open-ended interval); end == start marks an
// instant.
func (s *SQLiteStore) SetValidity(tripleID int64, start int64, end *int64) error {
	if end != nil && *end < start {
		return fmt.Errorf("triple %d: temporal end %d before start %d", tripleID, *end, start)
	}

	region := RegionInterval
	if end != nil && *end == start {
		region = RegionInstant
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE triples SET temporal_region_type = ?, temporal_start = ?, temporal_end = ?, updated_at = ?
		WHERE id = ?
	`, region, start, end, nowMillis(), tripleID)
	if err != nil {
		return err
	}
	return requireAffected(res, tripleID)
}

// LinkTemporal records an ordering relation (precedes, overlaps, during)
// from one triple to another. Self-relations are rejected, as are
// relations to unknown triple ids.
func (s *SQLiteStore) LinkTemporal(tripleID int64, relation string, otherID int64) error {
	if tripleID == otherID {
		return fmt.Errorf("%w: triple %d, relation %q", ErrSelfRelation, tripleID, relation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT 1 FROM triples WHERE id = ?`, otherID).Scan(&exists); err != nil {
		return fmt.Errorf("%w: relation target triple %d", ErrNotFound, otherID)
	}

	res, err := tx.Exec(`
		UPDATE triples SET temporal_relation_type = ?, temporal_relation_to = ?, updated_at = ?
		WHERE id = ?
	`, relation, otherID, nowMillis(), tripleID)
	if err != nil {
		return err
	}
	if err := requireAffected(res, tripleID); err != nil {
		return err
	}
	return tx.Commit()
}

// AsOf returns triples matching the pattern whose validity interval
// contains the instant. Triples with no validity fields predate the
// temporal extension and are treated as always valid.
func (s *SQLiteStore) AsOf(instant int64, f TripleFilter) ([]*Triple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := f.where()
	cond := `(temporal_start IS NULL OR temporal_start <= ?) AND (temporal_end IS NULL OR temporal_end >= ?)`
	if where == "" {
		where = " WHERE " + cond
	} else {
		where += " AND " + cond
	}
	args = append(args, instant, instant)

	rows, err := s.db.Query(`SELECT `+tripleColumns+` FROM triples`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTriples(rows)
}
