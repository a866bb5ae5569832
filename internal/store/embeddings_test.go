package store

import (
	"context"
	"errors"
	"testing"
)

func TestUpsertEmbedding(t *testing.T) {
	s := newTestStore(t)
	id := addTriple(t, s, testNS+"case-1", testNS+"summary", testNS+"BridgeInspection")

	vec := []float32{0.1, 0.2, 0.3, 0.4}
	if err := s.UpsertEmbedding(id, ComponentObject, vec); err != nil {
		t.Fatalf("UpsertEmbedding failed: %v", err)
	}

	got, err := s.GetEmbedding(id, ComponentObject)
	if err != nil {
		t.Fatalf("GetEmbedding failed: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 components, got %d", len(got))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("component %d: got %f, want %f", i, got[i], vec[i])
		}
	}

	// Other components stay empty.
	subj, err := s.GetEmbedding(id, ComponentSubject)
	if err != nil {
		t.Fatalf("GetEmbedding failed: %v", err)
	}
	if subj != nil {
		t.Errorf("subject embedding should be nil, got %v", subj)
	}
}

func TestUpsertEmbeddingDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	id := addTriple(t, s, testNS+"case-1", testNS+"summary", testNS+"BridgeInspection")

	if err := s.UpsertEmbedding(id, ComponentObject, []float32{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := s.UpsertEmbedding(id, ComponentObject, nil); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for nil vector, got %v", err)
	}
}

func TestGetEmbeddingUnknownTriple(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetEmbedding(42, ComponentObject); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNearestEmbeddings(t *testing.T) {
	s := newTestStore(t)

	a := addTriple(t, s, testNS+"case-1", testNS+"summary", testNS+"BridgeInspection")
	b := addTriple(t, s, testNS+"case-2", testNS+"summary", testNS+"RoadSurvey")
	c := addTriple(t, s, testNS+"case-3", testNS+"summary", testNS+"TunnelAudit")
	// A fourth triple with no embedding must be skipped, not block.
	addTriple(t, s, testNS+"case-4", testNS+"summary", testNS+"Unindexed")

	seed := map[int64][]float32{
		a: {1, 0, 0, 0},
		b: {0.9, 0.1, 0, 0},
		c: {0, 1, 0, 0},
	}
	for id, vec := range seed {
		if err := s.UpsertEmbedding(id, ComponentObject, vec); err != nil {
			t.Fatalf("UpsertEmbedding failed: %v", err)
		}
	}

	hits, err := s.NearestEmbeddings([]float32{1, 0, 0, 0}, ComponentObject, 2, "")
	if err != nil {
		t.Fatalf("NearestEmbeddings failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].TripleID != a || hits[1].TripleID != b {
		t.Errorf("expected order [%d %d], got [%d %d]", a, b, hits[0].TripleID, hits[1].TripleID)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("hits not descending by score: %f then %f", hits[0].Score, hits[1].Score)
	}
	if hits[0].Score < 0.99 {
		t.Errorf("exact match should score ~1, got %f", hits[0].Score)
	}

	// Asking for more than exists returns what exists.
	all, err := s.NearestEmbeddings([]float32{1, 0, 0, 0}, ComponentObject, 10, "")
	if err != nil {
		t.Fatalf("NearestEmbeddings failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 hits, got %d", len(all))
	}

	if _, err := s.NearestEmbeddings([]float32{1, 0}, ComponentObject, 2, ""); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch on query vector, got %v", err)
	}
}

func TestNearestEmbeddingsGraphFilter(t *testing.T) {
	s := newTestStore(t)

	draft, err := s.AddTriple(&Triple{
		Subject: testNS + "s", Predicate: testNS + "p", ObjectURI: testNS + "o1", Graph: "draft",
	})
	if err != nil {
		t.Fatalf("AddTriple failed: %v", err)
	}
	published, err := s.AddTriple(&Triple{
		Subject: testNS + "s", Predicate: testNS + "p", ObjectURI: testNS + "o2", Graph: "published",
	})
	if err != nil {
		t.Fatalf("AddTriple failed: %v", err)
	}
	for _, id := range []int64{draft, published} {
		if err := s.UpsertEmbedding(id, ComponentObject, []float32{1, 0, 0, 0}); err != nil {
			t.Fatalf("UpsertEmbedding failed: %v", err)
		}
	}

	hits, err := s.NearestEmbeddings([]float32{1, 0, 0, 0}, ComponentObject, 10, "draft")
	if err != nil {
		t.Fatalf("NearestEmbeddings failed: %v", err)
	}
	if len(hits) != 1 || hits[0].TripleID != draft {
		t.Errorf("graph filter leaked: %v", hits)
	}
}

func TestUpsertEmbeddingBatch(t *testing.T) {
	s := newTestStore(t)

	var updates []EmbeddingUpdate
	var ids []int64
	for i := 0; i < 5; i++ {
		id := addTriple(t, s, testNS+"s", testNS+"p", testNS+"o"+string(rune('a'+i)))
		ids = append(ids, id)
		updates = append(updates, EmbeddingUpdate{
			TripleID:  id,
			Component: ComponentObject,
			Vector:    []float32{float32(i), 1, 0, 0},
		})
	}

	applied, err := s.UpsertEmbeddingBatch(context.Background(), updates, 2)
	if err != nil {
		t.Fatalf("UpsertEmbeddingBatch failed: %v", err)
	}
	if applied != 5 {
		t.Errorf("expected 5 applied, got %d", applied)
	}

	for i, id := range ids {
		vec, err := s.GetEmbedding(id, ComponentObject)
		if err != nil {
			t.Fatalf("GetEmbedding failed: %v", err)
		}
		if vec == nil || vec[0] != float32(i) {
			t.Errorf("triple %d: embedding not applied: %v", id, vec)
		}
	}
}

func TestUpsertEmbeddingBatchValidatesUpFront(t *testing.T) {
	s := newTestStore(t)
	id := addTriple(t, s, testNS+"s", testNS+"p", testNS+"o")

	updates := []EmbeddingUpdate{
		{TripleID: id, Component: ComponentObject, Vector: []float32{1, 0, 0, 0}},
		{TripleID: id, Component: ComponentSubject, Vector: []float32{1, 0}}, // wrong dim
	}
	applied, err := s.UpsertEmbeddingBatch(context.Background(), updates, 1)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if applied != 0 {
		t.Errorf("malformed batch must reject before any write, applied %d", applied)
	}

	vec, _ := s.GetEmbedding(id, ComponentObject)
	if vec != nil {
		t.Errorf("rejected batch wrote an embedding: %v", vec)
	}
}

func TestUpsertEmbeddingBatchCancellation(t *testing.T) {
	s := newTestStore(t)

	var updates []EmbeddingUpdate
	for i := 0; i < 4; i++ {
		id := addTriple(t, s, testNS+"s", testNS+"p", testNS+"o"+string(rune('a'+i)))
		updates = append(updates, EmbeddingUpdate{
			TripleID:  id,
			Component: ComponentObject,
			Vector:    []float32{1, 0, 0, 0},
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	applied, err := s.UpsertEmbeddingBatch(ctx, updates, 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if applied != 0 {
		t.Errorf("cancelled before first batch, applied %d", applied)
	}
}

func TestEmbeddedTriples(t *testing.T) {
	s := newTestStore(t)

	a := addTriple(t, s, testNS+"s", testNS+"p", testNS+"o1")
	b := addTriple(t, s, testNS+"s", testNS+"p", testNS+"o2")
	addTriple(t, s, testNS+"s", testNS+"p", testNS+"o3") // no embedding

	if err := s.UpsertEmbedding(a, ComponentObject, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("UpsertEmbedding failed: %v", err)
	}
	if err := s.UpsertEmbedding(b, ComponentObject, []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("UpsertEmbedding failed: %v", err)
	}

	var seen []int64
	err := s.EmbeddedTriples(ComponentObject, func(id int64, vec []float32) error {
		if len(vec) != 4 {
			t.Errorf("triple %d: bad vector %v", id, vec)
		}
		seen = append(seen, id)
		return nil
	})
	if err != nil {
		t.Fatalf("EmbeddedTriples failed: %v", err)
	}
	if len(seen) != 2 || seen[0] != a || seen[1] != b {
		t.Errorf("expected [%d %d] in id order, got %v", a, b, seen)
	}
}
