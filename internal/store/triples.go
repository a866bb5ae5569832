package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// tripleColumns is the scan order shared by every triple query.
const tripleColumns = `id, subject, predicate, object_uri, object_literal, is_literal, graph,
	entity_type, entity_id, metadata, temporal_region_type, temporal_start, temporal_end,
	temporal_relation_type, temporal_relation_to, temporal_granularity, created_at, updated_at`

// AddTriple persists a triple. Idempotent at the
// (subject, predicate, object, graph) key: re-adding an existing triple
// returns the existing row id instead of inserting a duplicate.
// Character-scoped triples are mirrored into the legacy view inside the
// same transaction; a mirror failure fails the whole write.
func (s *SQLiteStore) AddTriple(t *Triple) (int64, error) {
	if err := validateTriple(t); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMillis()
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	objCol := "object_uri"
	if t.IsLiteral {
		objCol = "object_literal"
	}
	var existing int64
	err = tx.QueryRow(
		`SELECT id FROM triples WHERE subject = ? AND predicate = ? AND `+objCol+` = ? AND graph = ? AND is_literal = ?`,
		t.Subject, t.Predicate, t.Object(), t.Graph, boolToInt(t.IsLiteral),
	).Scan(&existing)
	if err == nil {
		// Re-assert the legacy-view row so a lost mirror heals on the
		// next write of the same triple.
		if t.EntityType == EntityTypeCharacter {
			if err := mirrorCharacterTriple(tx, t, existing); err != nil {
				return 0, fmt.Errorf("mirror character triple %d: %w", existing, err)
			}
			if err := tx.Commit(); err != nil {
				return 0, err
			}
		}
		t.ID = existing
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	var metadataJSON any
	if len(t.Metadata) > 0 {
		raw, err := json.Marshal(t.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = string(raw)
	}

	res, err := tx.Exec(`
		INSERT INTO triples (subject, predicate, object_uri, object_literal, is_literal, graph,
			entity_type, entity_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Subject, t.Predicate, t.ObjectURI, t.ObjectLiteral, boolToInt(t.IsLiteral), t.Graph,
		t.EntityType, t.EntityID, metadataJSON, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if t.EntityType == EntityTypeCharacter {
		if err := mirrorCharacterTriple(tx, t, id); err != nil {
			return 0, fmt.Errorf("mirror character triple %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

func validateTriple(t *Triple) error {
	if t.Subject == "" || t.Predicate == "" {
		return fmt.Errorf("%w: empty subject or predicate", ErrMalformedTriple)
	}
	hasURI := t.ObjectURI != ""
	hasLiteral := t.ObjectLiteral != ""
	if hasURI == hasLiteral {
		return fmt.Errorf("%w: subject %q predicate %q", ErrMalformedTriple, t.Subject, t.Predicate)
	}
	if t.IsLiteral != hasLiteral {
		return fmt.Errorf("%w: is_literal flag disagrees with populated object field", ErrMalformedTriple)
	}
	return nil
}

// mirrorCharacterTriple writes through to the narrow legacy view,
// replacing any prior row with the same (character_id, predicate, object)
// key. Replaces the DB trigger the legacy system used: an explicit step
// inside the AddTriple transaction.
func mirrorCharacterTriple(tx *sql.Tx, t *Triple, tripleID int64) error {
	_, err := tx.Exec(`
		INSERT INTO character_triples (character_id, predicate, object, is_literal, triple_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(character_id, predicate, object) DO UPDATE SET
			is_literal = excluded.is_literal,
			triple_id = excluded.triple_id,
			updated_at = excluded.updated_at
	`, t.EntityID, t.Predicate, t.Object(), boolToInt(t.IsLiteral), tripleID, t.UpdatedAt)
	return err
}

// GetTriple retrieves a triple by id.
func (s *SQLiteStore) GetTriple(id int64) (*Triple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+tripleColumns+` FROM triples WHERE id = ?`, id)
	t, err := scanTriple(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: triple %d", ErrNotFound, id)
	}
	return t, err
}

// FindTriples returns all triples matching the pattern.
func (s *SQLiteStore) FindTriples(f TripleFilter) ([]*Triple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := f.where()
	rows, err := s.db.Query(`SELECT `+tripleColumns+` FROM triples`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTriples(rows)
}

// DeleteTriple removes a triple, and its legacy-view row when the triple
// is character-scoped, in one transaction.
func (s *SQLiteStore) DeleteTriple(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+tripleColumns+` FROM triples WHERE id = ?`, id)
	t, err := scanTriple(row)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: triple %d", ErrNotFound, id)
	}
	if err != nil {
		return err
	}

	if err := unmirrorCharacterTriple(tx, t); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM triples WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteWhere removes every triple matching the pattern and returns the
// number of rows removed. Mirror rows go in the same transaction.
func (s *SQLiteStore) DeleteWhere(f TripleFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	where, args := f.where()
	rows, err := tx.Query(`SELECT `+tripleColumns+` FROM triples`+where, args...)
	if err != nil {
		return 0, err
	}
	victims, err := scanTriples(rows)
	rows.Close()
	if err != nil {
		return 0, err
	}

	for _, t := range victims {
		if err := unmirrorCharacterTriple(tx, t); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(`DELETE FROM triples WHERE id = ?`, t.ID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(victims)), nil
}

// unmirrorCharacterTriple removes the legacy-view row owned by this
// triple. A row whose triple_id differs was already replaced by a newer
// write and stays.
func unmirrorCharacterTriple(tx *sql.Tx, t *Triple) error {
	if t.EntityType != EntityTypeCharacter {
		return nil
	}
	_, err := tx.Exec(`
		DELETE FROM character_triples
		WHERE character_id = ? AND predicate = ? AND object = ? AND triple_id = ?
	`, t.EntityID, t.Predicate, t.Object(), t.ID)
	return err
}

// CountTriples returns the total number of triples.
func (s *SQLiteStore) CountTriples() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM triples`).Scan(&count)
	return count, err
}

// CharacterTriples returns the legacy-view rows for one character.
func (s *SQLiteStore) CharacterTriples(characterID string) ([]*CharacterTriple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT character_id, predicate, object, is_literal, triple_id, updated_at
		FROM character_triples WHERE character_id = ? ORDER BY predicate, object
	`, characterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*CharacterTriple
	for rows.Next() {
		var ct CharacterTriple
		var isLiteral int
		if err := rows.Scan(&ct.CharacterID, &ct.Predicate, &ct.Object, &isLiteral, &ct.TripleID, &ct.UpdatedAt); err != nil {
			return nil, err
		}
		ct.IsLiteral = isLiteral != 0
		result = append(result, &ct)
	}
	return result, rows.Err()
}

// =============================================================================
// Filter and scan helpers
// =============================================================================

func (f TripleFilter) where() (string, []any) {
	var conds []string
	var args []any

	if f.Subject != "" {
		conds = append(conds, "subject = ?")
		args = append(args, f.Subject)
	}
	if f.Predicate != "" {
		conds = append(conds, "predicate = ?")
		args = append(args, f.Predicate)
	}
	if f.Object != "" {
		conds = append(conds, "(object_uri = ? OR object_literal = ?)")
		args = append(args, f.Object, f.Object)
	}
	if f.Graph != "" {
		conds = append(conds, "graph = ?")
		args = append(args, f.Graph)
	}
	if f.EntityType != "" {
		conds = append(conds, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, f.EntityID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTriple(row rowScanner) (*Triple, error) {
	var t Triple
	var isLiteral int
	var metadata, regionType, relationType, granularity sql.NullString
	var start, end, relationTo sql.NullInt64

	err := row.Scan(
		&t.ID, &t.Subject, &t.Predicate, &t.ObjectURI, &t.ObjectLiteral, &isLiteral, &t.Graph,
		&t.EntityType, &t.EntityID, &metadata, &regionType, &start, &end,
		&relationType, &relationTo, &granularity, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.IsLiteral = isLiteral != 0
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &t.Metadata); err != nil {
			t.Metadata = nil
		}
	}
	t.TemporalRegionType = regionType.String
	t.TemporalRelationType = relationType.String
	t.TemporalGranularity = granularity.String
	if start.Valid {
		t.TemporalStart = &start.Int64
	}
	if end.Valid {
		t.TemporalEnd = &end.Int64
	}
	if relationTo.Valid {
		t.TemporalRelationTo = &relationTo.Int64
	}

	return &t, nil
}

func scanTriples(rows *sql.Rows) ([]*Triple, error) {
	var result []*Triple
	for rows.Next() {
		t, err := scanTriple(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
