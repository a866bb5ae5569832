// Package store provides SQLite-backed persistence for the semantic
// triple store and the ontology version ledger. Uses
// ncruces/go-sqlite3/driver which provides a database/sql interface.
package store

import (
	"context"

	"github.com/ethicslab/ontostore/pkg/graph"
)

// Component selects which part of a triple an embedding belongs to.
type Component string

const (
	ComponentSubject   Component = "subject"
	ComponentPredicate Component = "predicate"
	ComponentObject    Component = "object"
)

// EntityTypeCharacter is the one owner kind with a mandatory legacy
// mirror. entity_type is otherwise an open string enum; the store never
// enumerates owner kinds.
const EntityTypeCharacter = "character"

// Temporal region classifiers.
const (
	RegionInstant  = "instant"
	RegionInterval = "interval"
)

// Temporal relation types (Allen-style subset).
const (
	RelationPrecedes = "precedes"
	RelationOverlaps = "overlaps"
	RelationDuring   = "during"
)

// Triple is the atomic fact record: subject-predicate-object with an
// optional literal object, a named-graph label, and polymorphic
// ownership via (entity_type, entity_id).
type Triple struct {
	ID            int64             `json:"id"`
	Subject       string            `json:"subject"`
	Predicate     string            `json:"predicate"`
	ObjectURI     string            `json:"objectUri,omitempty"`
	ObjectLiteral string            `json:"objectLiteral,omitempty"`
	IsLiteral     bool              `json:"isLiteral"`
	Graph         string            `json:"graph,omitempty"`
	EntityType    string            `json:"entityType,omitempty"`
	EntityID      string            `json:"entityId,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     int64             `json:"createdAt"`
	UpdatedAt     int64             `json:"updatedAt"`

	// Temporal extension. Zero values mean the triple has no temporal
	// scope and is treated as always valid.
	TemporalRegionType   string `json:"temporalRegionType,omitempty"`
	TemporalStart        *int64 `json:"temporalStart,omitempty"`
	TemporalEnd          *int64 `json:"temporalEnd,omitempty"`
	TemporalRelationType string `json:"temporalRelationType,omitempty"`
	TemporalRelationTo   *int64 `json:"temporalRelationTo,omitempty"`
	TemporalGranularity  string `json:"temporalGranularity,omitempty"`
}

// Object returns whichever object field is populated.
func (t *Triple) Object() string {
	if t.IsLiteral {
		return t.ObjectLiteral
	}
	return t.ObjectURI
}

// TripleFilter is a SPARQL-lite triple pattern: any subset of fields may
// be bound, empty fields match everything.
type TripleFilter struct {
	Subject    string
	Predicate  string
	Object     string // matches object_uri or object_literal
	Graph      string
	EntityType string
	EntityID   string
}

// CharacterTriple is a row in the narrow legacy view. The general store
// writes through to it whenever a character-scoped triple changes; the
// mirror key is (character_id, predicate, object).
type CharacterTriple struct {
	CharacterID string `json:"characterId"`
	Predicate   string `json:"predicate"`
	Object      string `json:"object"`
	IsLiteral   bool   `json:"isLiteral"`
	TripleID    int64  `json:"tripleId"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// Ontology is a named Turtle document. Content always equals the content
// of the highest-numbered version once any version exists.
type Ontology struct {
	ID          int64  `json:"id"`
	DomainID    string `json:"domainId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content"`
	BaseURI     string `json:"baseUri,omitempty"`
	IsBase      bool   `json:"isBase"`
	IsEditable  bool   `json:"isEditable"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// OntologyVersion is one immutable entry in the append-only ledger.
type OntologyVersion struct {
	OntologyID    int64  `json:"ontologyId"`
	Version       int    `json:"version"`
	Content       string `json:"content"`
	CommitMessage string `json:"commitMessage,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
}

// VersionSummary is the ledger entry without its content snapshot.
type VersionSummary struct {
	Version       int    `json:"version"`
	CommitMessage string `json:"commitMessage,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
}

// EmbeddingUpdate is one unit of work for a backfill job.
type EmbeddingUpdate struct {
	TripleID  int64
	Component Component
	Vector    []float32
}

// EmbeddingHit is one result of a nearest-neighbor query. Score is
// cosine similarity in [-1, 1], higher is more similar.
type EmbeddingHit struct {
	TripleID int64   `json:"tripleId"`
	Score    float64 `json:"score"`
}

// Storer defines the interface for the triple/ontology store.
// SQLiteStore is the sole implementation.
type Storer interface {
	// Triples
	AddTriple(t *Triple) (int64, error)
	GetTriple(id int64) (*Triple, error)
	FindTriples(f TripleFilter) ([]*Triple, error)
	DeleteTriple(id int64) error
	DeleteWhere(f TripleFilter) (int64, error)
	CountTriples() (int, error)
	CharacterTriples(characterID string) ([]*CharacterTriple, error)

	// Embeddings
	UpsertEmbedding(tripleID int64, c Component, vec []float32) error
	UpsertEmbeddingBatch(ctx context.Context, updates []EmbeddingUpdate, batchSize int) (int, error)
	GetEmbedding(tripleID int64, c Component) ([]float32, error)
	NearestEmbeddings(vec []float32, c Component, k int, graphName string) ([]EmbeddingHit, error)
	EmbeddedTriples(c Component, fn func(id int64, vec []float32) error) error

	// Temporal
	SetValidity(tripleID int64, start int64, end *int64) error
	LinkTemporal(tripleID int64, relation string, otherID int64) error
	AsOf(instant int64, f TripleFilter) ([]*Triple, error)

	// Ontologies
	CreateOntology(o *Ontology) (int64, error)
	GetOntology(id int64) (*Ontology, error)
	GetOntologyByDomain(domainID string) (*Ontology, error)
	ListOntologies() ([]*Ontology, error)
	CurrentVersion(id int64) (int, error)
	UpdateContent(id int64, content, commitMessage string) (int, error)
	UpdateContentFrom(id int64, base int, content, commitMessage string) (int, error)
	GetVersion(id int64, version int) (*OntologyVersion, error)
	ListVersions(id int64) ([]*VersionSummary, error)
	SyncCurrentContent(id int64) (bool, error)
	CountOntologies() (int, error)

	// Graph
	FindPaths(start, end string, maxDepth int) ([]graph.Path, error)

	// Lifecycle
	Close() error
}
