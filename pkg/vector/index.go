// Package vector provides an in-memory HNSW similarity index over
// triple components, with optional persistence through hackpadfs.
package vector

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/fogfish/hnsw"
	"github.com/fogfish/hnsw/vector" // fogfish/hnsw/vector alias, imports kshard/vector
	"github.com/hack-pad/hackpadfs"
	kvector "github.com/kshard/vector"
)

// ErrDimensionMismatch means a vector does not match the dimension fixed
// at index creation.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Key identifies one embedded triple component.
type Key struct {
	TripleID  int64
	Component string
}

// Hit is one nearest-neighbor result. Score is cosine similarity in
// [-1, 1], higher is more similar.
type Hit struct {
	Key   Key
	Score float64
}

// Index manages the HNSW graph and an authoritative key-to-vector map.
// The map makes Upsert a replace (HNSW itself is insert-only; stale
// graph entries are skipped at query time) and provides exact cosine
// re-scoring of candidates.
type Index struct {
	mu      sync.RWMutex
	dim     int
	index   *hnsw.HNSW[vector.VF32]
	vectors map[Key][]float32
	handles map[Key]uint32
	keys    map[uint32]Key
	next    uint32

	fsys hackpadfs.FS
	path string
}

// New creates an empty index with a fixed dimension.
func New(dim int) *Index {
	return &Index{
		dim:     dim,
		index:   newHNSW(),
		vectors: make(map[Key][]float32),
		handles: make(map[Key]uint32),
		keys:    make(map[uint32]Key),
	}
}

// NewPersistent creates an index backed by a snapshot file. If a valid
// snapshot exists at path it is loaded; a missing file starts empty.
func NewPersistent(fsys hackpadfs.FS, path string, dim int) (*Index, error) {
	ix := New(dim)
	ix.fsys = fsys
	ix.path = path

	if err := ix.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return ix, nil
}

func newHNSW() *hnsw.HNSW[vector.VF32] {
	// config: standard Cosine
	return hnsw.New[vector.VF32](vector.SurfaceVF32(kvector.Cosine()))
}

// Dimension returns the dimension fixed at creation.
func (ix *Index) Dimension() int {
	return ix.dim
}

// Len returns the number of live entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

func (ix *Index) checkDim(vec []float32) error {
	if len(vec) != ix.dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, ix.dim, len(vec))
	}
	return nil
}

// Upsert inserts or replaces the vector for a key.
func (ix *Index) Upsert(key Key, vec []float32) error {
	if err := ix.checkDim(vec); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.upsertLocked(key, vec)
	return nil
}

func (ix *Index) upsertLocked(key Key, vec []float32) {
	cp := make([]float32, len(vec))
	copy(cp, vec)
	ix.vectors[key] = cp

	ix.next++
	handle := ix.next
	ix.handles[key] = handle
	ix.keys[handle] = key
	ix.index.Insert(vector.VF32{Key: handle, Vec: cp})
}

// Fill bulk-loads entries for one component from an iterator source,
// e.g. the store's stream of persisted embeddings.
func (ix *Index) Fill(component string, iter func(fn func(id int64, vec []float32) error) error) error {
	return iter(func(id int64, vec []float32) error {
		return ix.Upsert(Key{TripleID: id, Component: component}, vec)
	})
}

// Nearest returns up to k keys most similar to vec, descending by
// score. component narrows results to one triple component ("" matches
// all); accept, when non-nil, filters further (e.g. by named graph).
// Entries are re-scored with exact cosine similarity; if the ANN
// candidate set thins out under the filters the remaining entries are
// scanned directly so results are never silently short.
func (ix *Index) Nearest(vec []float32, component string, k int, accept func(Key) bool) ([]Hit, error) {
	if err := ix.checkDim(vec); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	match := func(key Key) bool {
		if component != "" && key.Component != component {
			return false
		}
		return accept == nil || accept(key)
	}

	var hits []Hit
	seen := make(map[Key]bool)

	if ix.index.Size() > 0 {
		candidates := k * 8
		if candidates < 64 {
			candidates = 64
		}
		ef := candidates * 2
		for _, r := range ix.index.Search(vector.VF32{Vec: vec}, candidates, ef) {
			key, ok := ix.keys[r.Key]
			if !ok || ix.handles[key] != r.Key {
				continue // replaced entry, stale graph node
			}
			if seen[key] || !match(key) {
				continue
			}
			seen[key] = true
			hits = append(hits, Hit{Key: key, Score: Cosine(ix.vectors[key], vec)})
		}
	}

	if len(hits) < k {
		for key, stored := range ix.vectors {
			if seen[key] || !match(key) {
				continue
			}
			hits = append(hits, Hit{Key: key, Score: Cosine(stored, vec)})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Key.TripleID < hits[j].Key.TripleID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// =============================================================================
// Persistence
// =============================================================================

type snapshot struct {
	Dim     int
	Entries []snapshotEntry
}

type snapshotEntry struct {
	Key Key
	Vec []float32
}

// Save persists the index to its filesystem.
func (ix *Index) Save() error {
	if ix.fsys == nil {
		return nil
	}

	ix.mu.RLock()
	snap := snapshot{Dim: ix.dim, Entries: make([]snapshotEntry, 0, len(ix.vectors))}
	for key, vec := range ix.vectors {
		snap.Entries = append(snap.Entries, snapshotEntry{Key: key, Vec: vec})
	}
	ix.mu.RUnlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}

	if err := hackpadfs.WriteFullFile(ix.fsys, ix.path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write index file: %w", err)
	}
	return nil
}

// Load reads the snapshot and rebuilds the HNSW graph from it.
func (ix *Index) Load() error {
	if ix.fsys == nil {
		return nil
	}

	content, err := hackpadfs.ReadFile(ix.fsys, ix.path)
	if err != nil {
		return err
	}

	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(content)).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode index: %w", err)
	}
	if snap.Dim != ix.dim {
		return fmt.Errorf("%w: snapshot dimension %d, index dimension %d", ErrDimensionMismatch, snap.Dim, ix.dim)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.index = newHNSW()
	ix.vectors = make(map[Key][]float32, len(snap.Entries))
	ix.handles = make(map[Key]uint32, len(snap.Entries))
	ix.keys = make(map[uint32]Key, len(snap.Entries))
	ix.next = 0
	for _, e := range snap.Entries {
		ix.upsertLocked(e.Key, e.Vec)
	}
	return nil
}
