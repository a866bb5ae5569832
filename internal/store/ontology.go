package store

import (
	"database/sql"
	"fmt"

	"github.com/ethicslab/ontostore/pkg/turtle"
)

// CreateOntology stores a new ontology and its version 1 snapshot in one
// transaction. Content must be well-formed Turtle.
func (s *SQLiteStore) CreateOntology(o *Ontology) (int64, error) {
	if o.DomainID == "" {
		return 0, fmt.Errorf("ontology domain id is required")
	}
	if err := turtle.Validate(o.Content); err != nil {
		return 0, fmt.Errorf("ontology %q: %w", o.DomainID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMillis()
	o.CreatedAt = now
	o.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO ontologies (domain_id, name, description, content, base_uri, is_base, is_editable, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.DomainID, o.Name, o.Description, o.Content, o.BaseURI,
		boolToInt(o.IsBase), boolToInt(o.IsEditable), now, now)
	if err != nil {
		return 0, fmt.Errorf("create ontology %q: %w", o.DomainID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(`
		INSERT INTO ontology_versions (ontology_id, version, content, commit_message, created_at)
		VALUES (?, 1, ?, ?, ?)
	`, id, o.Content, "Initial version", now); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	o.ID = id
	return id, nil
}

// GetOntology retrieves an ontology by id.
func (s *SQLiteStore) GetOntology(id int64) (*Ontology, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getOntologyWhere(`id = ?`, id)
}

// GetOntologyByDomain retrieves an ontology by its unique domain id.
func (s *SQLiteStore) GetOntologyByDomain(domainID string) (*Ontology, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getOntologyWhere(`domain_id = ?`, domainID)
}

func (s *SQLiteStore) getOntologyWhere(cond string, arg any) (*Ontology, error) {
	var o Ontology
	var isBase, isEditable int
	var description, baseURI sql.NullString

	err := s.db.QueryRow(`
		SELECT id, domain_id, name, description, content, base_uri, is_base, is_editable, created_at, updated_at
		FROM ontologies WHERE `+cond, arg).Scan(
		&o.ID, &o.DomainID, &o.Name, &description, &o.Content, &baseURI,
		&isBase, &isEditable, &o.CreatedAt, &o.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: ontology %v", ErrNotFound, arg)
	}
	if err != nil {
		return nil, err
	}

	o.Description = description.String
	o.BaseURI = baseURI.String
	o.IsBase = isBase != 0
	o.IsEditable = isEditable != 0
	return &o, nil
}

// ListOntologies returns all ontologies ordered by domain id.
func (s *SQLiteStore) ListOntologies() ([]*Ontology, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, domain_id, name, description, content, base_uri, is_base, is_editable, created_at, updated_at
		FROM ontologies ORDER BY domain_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Ontology
	for rows.Next() {
		var o Ontology
		var isBase, isEditable int
		var description, baseURI sql.NullString
		if err := rows.Scan(
			&o.ID, &o.DomainID, &o.Name, &description, &o.Content, &baseURI,
			&isBase, &isEditable, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		o.Description = description.String
		o.BaseURI = baseURI.String
		o.IsBase = isBase != 0
		o.IsEditable = isEditable != 0
		result = append(result, &o)
	}
	return result, rows.Err()
}

// CurrentVersion returns the highest version number for an ontology.
func (s *SQLiteStore) CurrentVersion(id int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentVersionLocked(s.db, id)
}

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func (s *SQLiteStore) currentVersionLocked(q querier, id int64) (int, error) {
	var exists int
	if err := q.QueryRow(`SELECT 1 FROM ontologies WHERE id = ?`, id).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("%w: ontology %d", ErrNotFound, id)
		}
		return 0, err
	}
	var cur int
	err := q.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM ontology_versions WHERE ontology_id = ?`, id).Scan(&cur)
	return cur, err
}

// UpdateContent appends the next version on top of the current one.
// Callers racing each other should use UpdateContentFrom with an
// explicit base and retry on ErrVersionConflict.
func (s *SQLiteStore) UpdateContent(id int64, content, commitMessage string) (int, error) {
	base, err := s.CurrentVersion(id)
	if err != nil {
		return 0, err
	}
	return s.UpdateContentFrom(id, base, content, commitMessage)
}

// UpdateContentFrom appends version base+1 if and only if base is still
// the current version (compare-and-swap). The version append and the
// snapshot update are one atomic step; on a lost race nothing is written
// and the caller gets ErrVersionConflict to reread and retry.
func (s *SQLiteStore) UpdateContentFrom(id int64, base int, content, commitMessage string) (int, error) {
	// Syntax is checked before any mutation: a parse failure leaves the
	// prior version current.
	if err := turtle.Validate(content); err != nil {
		return 0, fmt.Errorf("ontology %d: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var isBase, isEditable int
	err = tx.QueryRow(`SELECT is_base, is_editable FROM ontologies WHERE id = ?`, id).Scan(&isBase, &isEditable)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: ontology %d", ErrNotFound, id)
	}
	if err != nil {
		return 0, err
	}
	if isBase != 0 || isEditable == 0 {
		return 0, fmt.Errorf("%w: ontology %d", ErrImmutable, id)
	}

	cur, err := s.currentVersionLocked(tx, id)
	if err != nil {
		return 0, err
	}
	if cur != base {
		return 0, fmt.Errorf("%w: ontology %d is at version %d, expected %d", ErrVersionConflict, id, cur, base)
	}

	next := cur + 1
	now := nowMillis()
	if _, err := tx.Exec(`
		INSERT INTO ontology_versions (ontology_id, version, content, commit_message, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, next, content, commitMessage, now); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`UPDATE ontologies SET content = ?, updated_at = ? WHERE id = ?`,
		content, now, id); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

// GetVersion returns the exact stored snapshot for one ledger entry,
// never a reconstructed value.
func (s *SQLiteStore) GetVersion(id int64, version int) (*OntologyVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v OntologyVersion
	var message sql.NullString
	err := s.db.QueryRow(`
		SELECT ontology_id, version, content, commit_message, created_at
		FROM ontology_versions WHERE ontology_id = ? AND version = ?
	`, id, version).Scan(&v.OntologyID, &v.Version, &v.Content, &message, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: ontology %d version %d", ErrNotFound, id, version)
	}
	if err != nil {
		return nil, err
	}
	v.CommitMessage = message.String
	return &v, nil
}

// ListVersions returns the ledger for an ontology, oldest first.
func (s *SQLiteStore) ListVersions(id int64) ([]*VersionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT version, commit_message, created_at
		FROM ontology_versions WHERE ontology_id = ? ORDER BY version
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*VersionSummary
	for rows.Next() {
		var v VersionSummary
		var message sql.NullString
		if err := rows.Scan(&v.Version, &message, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.CommitMessage = message.String
		result = append(result, &v)
	}
	return result, rows.Err()
}

// SyncCurrentContent verifies the invariant that an ontology's content
// column equals its highest-numbered version snapshot, repairing the
// column from the ledger when they drifted (the ledger is the source of
// truth). Returns true when a repair was needed.
func (s *SQLiteStore) SyncCurrentContent(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	cur, err := s.currentVersionLocked(tx, id)
	if err != nil {
		return false, err
	}
	if cur == 0 {
		return false, nil
	}

	var snapshot, content string
	if err := tx.QueryRow(`SELECT content FROM ontology_versions WHERE ontology_id = ? AND version = ?`,
		id, cur).Scan(&snapshot); err != nil {
		return false, err
	}
	if err := tx.QueryRow(`SELECT content FROM ontologies WHERE id = ?`, id).Scan(&content); err != nil {
		return false, err
	}
	if content == snapshot {
		return false, nil
	}

	if _, err := tx.Exec(`UPDATE ontologies SET content = ?, updated_at = ? WHERE id = ?`,
		snapshot, nowMillis(), id); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// CountOntologies returns the total number of ontologies.
func (s *SQLiteStore) CountOntologies() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM ontologies`).Scan(&count)
	return count, err
}
