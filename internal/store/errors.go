package store

import "errors"

// Sentinel errors for the store. Callers match with errors.Is; wrapped
// messages carry the offending ids and fields.
var (
	// ErrMalformedTriple means both or neither of the literal object and
	// URI object were set. Rejected before any mutation.
	ErrMalformedTriple = errors.New("malformed triple: exactly one of object URI and object literal must be set")

	// ErrDimensionMismatch means an embedding vector does not match the
	// dimension fixed when the store was created.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrSelfRelation means a triple was asked to temporally relate to
	// itself.
	ErrSelfRelation = errors.New("triple cannot temporally relate to itself")

	// ErrImmutable means a write was attempted on a non-editable
	// (base/reference) ontology.
	ErrImmutable = errors.New("ontology is not editable")

	// ErrVersionConflict means a concurrent writer appended a version
	// first. Recoverable: reread the current version and retry.
	ErrVersionConflict = errors.New("ontology version conflict")

	// ErrNotFound means an unknown ontology, version, or triple id.
	ErrNotFound = errors.New("not found")
)
