package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

// DefaultEmbeddingDim is used when no dimension is given. Matches the
// sentence-transformer models the extraction pipeline encodes with.
const DefaultEmbeddingDim = 384

// SQLiteStore is the SQLite-backed store. Thread-safe; expects writes
// from multiple concurrent producers (interactive edits, backfill jobs,
// the hierarchy engine).
type SQLiteStore struct {
	mu  sync.RWMutex
	db  *sql.DB
	dim int
}

// schema defines all tables. The character_triples table is the narrow
// legacy view; it is written only through AddTriple/DeleteTriple
// transactions, never directly.
const schema = `
-- Unified triple store
CREATE TABLE IF NOT EXISTS triples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    subject TEXT NOT NULL,
    predicate TEXT NOT NULL,
    object_uri TEXT NOT NULL DEFAULT '',
    object_literal TEXT NOT NULL DEFAULT '',
    is_literal INTEGER NOT NULL DEFAULT 0,
    graph TEXT NOT NULL DEFAULT '',
    entity_type TEXT NOT NULL DEFAULT '',
    entity_id TEXT NOT NULL DEFAULT '',
    metadata TEXT,
    subject_embedding BLOB,
    predicate_embedding BLOB,
    object_embedding BLOB,
    temporal_region_type TEXT,
    temporal_start INTEGER,
    temporal_end INTEGER,
    temporal_relation_type TEXT,
    temporal_relation_to INTEGER,
    temporal_granularity TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Write-time dedup at the (subject, predicate, object, graph) key,
-- split by object kind
CREATE UNIQUE INDEX IF NOT EXISTS idx_triples_uri_key
    ON triples(subject, predicate, object_uri, graph) WHERE is_literal = 0;
CREATE UNIQUE INDEX IF NOT EXISTS idx_triples_lit_key
    ON triples(subject, predicate, object_literal, graph) WHERE is_literal = 1;

CREATE INDEX IF NOT EXISTS idx_triples_subject ON triples(subject);
CREATE INDEX IF NOT EXISTS idx_triples_predicate ON triples(predicate);
CREATE INDEX IF NOT EXISTS idx_triples_entity ON triples(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_triples_graph ON triples(graph);

-- Narrow legacy view for character-scoped triples
CREATE TABLE IF NOT EXISTS character_triples (
    character_id TEXT NOT NULL,
    predicate TEXT NOT NULL,
    object TEXT NOT NULL,
    is_literal INTEGER NOT NULL DEFAULT 0,
    triple_id INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (character_id, predicate, object)
);

-- Ontology documents (current snapshot lives here)
CREATE TABLE IF NOT EXISTS ontologies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    domain_id TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    description TEXT,
    content TEXT NOT NULL,
    base_uri TEXT,
    is_base INTEGER NOT NULL DEFAULT 0,
    is_editable INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Append-only version ledger
-- Composite primary key (ontology_id, version) enables full history
CREATE TABLE IF NOT EXISTS ontology_versions (
    ontology_id INTEGER NOT NULL,
    version INTEGER NOT NULL,
    content TEXT NOT NULL,
    commit_message TEXT,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (ontology_id, version)
);
`

// NewSQLiteStore creates a new in-memory store with the given embedding
// dimension. Pass 0 for DefaultEmbeddingDim.
func NewSQLiteStore(dim int) (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:", dim)
}

// NewSQLiteStoreWithDSN creates a store with a specific data source name.
// Use ":memory:" for in-memory or a file path for persistent storage.
// The embedding dimension is fixed for the lifetime of the store.
func NewSQLiteStoreWithDSN(dsn string, dim int) (*SQLiteStore, error) {
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dim: dim}, nil
}

// EmbeddingDim returns the dimension fixed at store creation.
func (s *SQLiteStore) EmbeddingDim() int {
	return s.dim
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func requireAffected(res sql.Result, tripleID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: triple %d", ErrNotFound, tripleID)
	}
	return nil
}

// Compile-time interface check
var _ Storer = (*SQLiteStore)(nil)
