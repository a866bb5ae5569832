package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
)

// embeddingColumn maps a component to its storage column.
func embeddingColumn(c Component) (string, error) {
	switch c {
	case ComponentSubject:
		return "subject_embedding", nil
	case ComponentPredicate:
		return "predicate_embedding", nil
	case ComponentObject:
		return "object_embedding", nil
	}
	return "", fmt.Errorf("unknown triple component %q", c)
}

// encodeVector packs a vector as little-endian float32, the layout
// sqlite-vec reads natively.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

func (s *SQLiteStore) checkDim(vec []float32) error {
	if len(vec) != s.dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, s.dim, len(vec))
	}
	return nil
}

// UpsertEmbedding stores the embedding for one triple component.
func (s *SQLiteStore) UpsertEmbedding(tripleID int64, c Component, vec []float32) error {
	col, err := embeddingColumn(c)
	if err != nil {
		return err
	}
	if err := s.checkDim(vec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE triples SET `+col+` = ?, updated_at = ? WHERE id = ?`,
		encodeVector(vec), nowMillis(), tripleID)
	if err != nil {
		return err
	}
	return requireAffected(res, tripleID)
}

// UpsertEmbeddingBatch applies updates in bounded per-batch transactions
// so a crash mid-backfill loses at most one batch. Cancellation is
// checked between batches; committed batches stay. Returns the number of
// updates applied.
func (s *SQLiteStore) UpsertEmbeddingBatch(ctx context.Context, updates []EmbeddingUpdate, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 256
	}

	// Validate everything up front: a malformed update rejects the whole
	// call before any write.
	for _, u := range updates {
		if _, err := embeddingColumn(u.Component); err != nil {
			return 0, err
		}
		if err := s.checkDim(u.Vector); err != nil {
			return 0, fmt.Errorf("triple %d: %w", u.TripleID, err)
		}
	}

	applied := 0
	for start := 0; start < len(updates); start += batchSize {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		end := start + batchSize
		if end > len(updates) {
			end = len(updates)
		}
		if err := s.applyEmbeddingBatch(updates[start:end]); err != nil {
			return applied, err
		}
		applied += end - start
	}
	return applied, nil
}

// applyEmbeddingBatch commits one batch as an independent unit of work.
// The lock is released between batches so nearest queries interleave
// with a running backfill.
func (s *SQLiteStore) applyEmbeddingBatch(batch []EmbeddingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := nowMillis()
	for _, u := range batch {
		col, _ := embeddingColumn(u.Component)
		if _, err := tx.Exec(`UPDATE triples SET `+col+` = ?, updated_at = ? WHERE id = ?`,
			encodeVector(u.Vector), now, u.TripleID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetEmbedding returns the stored vector for a triple component, or nil
// when the triple has no embedding for that component.
func (s *SQLiteStore) GetEmbedding(tripleID int64, c Component) ([]float32, error) {
	col, err := embeddingColumn(c)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob []byte
	err = s.db.QueryRow(`SELECT `+col+` FROM triples WHERE id = ?`, tripleID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: triple %d", ErrNotFound, tripleID)
	}
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, nil
	}
	return decodeVector(blob), nil
}

// NearestEmbeddings returns the top-k triples whose stored embedding for
// the component is most cosine-similar to vec. Triples with no embedding
// for the component are skipped, so queries running during a backfill
// simply see a partially-populated index. Score is 1 - cosine distance.
func (s *SQLiteStore) NearestEmbeddings(vec []float32, c Component, k int, graphName string) ([]EmbeddingHit, error) {
	col, err := embeddingColumn(c)
	if err != nil {
		return nil, err
	}
	if err := s.checkDim(vec); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, vec_distance_cosine(` + col + `, ?) AS dist FROM triples WHERE ` + col + ` IS NOT NULL`
	args := []any{encodeVector(vec)}
	if graphName != "" {
		query += ` AND graph = ?`
		args = append(args, graphName)
	}
	query += ` ORDER BY dist LIMIT ?`
	args = append(args, k)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []EmbeddingHit
	for rows.Next() {
		var id int64
		var dist float64
		if err := rows.Scan(&id, &dist); err != nil {
			return nil, err
		}
		hits = append(hits, EmbeddingHit{TripleID: id, Score: 1 - dist})
	}
	return hits, rows.Err()
}

// EmbeddedTriples streams every stored embedding for a component, in id
// order. Used to warm an in-memory similarity index after a restart.
// fn must not call back into the store.
func (s *SQLiteStore) EmbeddedTriples(c Component, fn func(id int64, vec []float32) error) error {
	col, err := embeddingColumn(c)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, ` + col + ` FROM triples WHERE ` + col + ` IS NOT NULL ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return err
		}
		if err := fn(id, decodeVector(blob)); err != nil {
			return err
		}
	}
	return rows.Err()
}
