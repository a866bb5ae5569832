package vector

import (
	"errors"
	"testing"

	"github.com/hack-pad/hackpadfs/mem"
)

func TestUpsertAndNearest(t *testing.T) {
	ix := New(4)

	seed := map[Key][]float32{
		{TripleID: 1, Component: "object"}: {1, 0, 0, 0},
		{TripleID: 2, Component: "object"}: {0.9, 0.1, 0, 0},
		{TripleID: 3, Component: "object"}: {0, 1, 0, 0},
	}
	for key, vec := range seed {
		if err := ix.Upsert(key, vec); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	if ix.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", ix.Len())
	}

	hits, err := ix.Nearest([]float32{1, 0, 0, 0}, "object", 2, nil)
	if err != nil {
		t.Fatalf("Nearest failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Key.TripleID != 1 || hits[1].Key.TripleID != 2 {
		t.Errorf("expected order [1 2], got [%d %d]", hits[0].Key.TripleID, hits[1].Key.TripleID)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("hits not descending: %f then %f", hits[0].Score, hits[1].Score)
	}
	if hits[0].Score < 0.99 {
		t.Errorf("exact match should score ~1, got %f", hits[0].Score)
	}
}

func TestUpsertReplaces(t *testing.T) {
	ix := New(4)
	key := Key{TripleID: 1, Component: "object"}

	if err := ix.Upsert(key, []float32{1, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	// Replace with an orthogonal vector; the old graph entry must not
	// resurface in results.
	if err := ix.Upsert(key, []float32{0, 0, 0, 1}); err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 1 {
		t.Fatalf("replace grew the index to %d entries", ix.Len())
	}

	hits, err := ix.Nearest([]float32{1, 0, 0, 0}, "object", 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Score > 0.01 {
		t.Errorf("stale vector still scoring: %f", hits[0].Score)
	}
}

func TestNearestFilters(t *testing.T) {
	ix := New(4)
	if err := ix.Upsert(Key{TripleID: 1, Component: "subject"}, []float32{1, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Upsert(Key{TripleID: 2, Component: "object"}, []float32{1, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Upsert(Key{TripleID: 3, Component: "object"}, []float32{0.9, 0.1, 0, 0}); err != nil {
		t.Fatal(err)
	}

	byComponent, err := ix.Nearest([]float32{1, 0, 0, 0}, "object", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(byComponent) != 2 {
		t.Fatalf("component filter expected 2 hits, got %d", len(byComponent))
	}
	for _, h := range byComponent {
		if h.Key.Component != "object" {
			t.Errorf("component filter leaked: %+v", h.Key)
		}
	}

	accepted, err := ix.Nearest([]float32{1, 0, 0, 0}, "", 10, func(k Key) bool {
		return k.TripleID != 3
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(accepted) != 2 {
		t.Fatalf("accept filter expected 2 hits, got %d", len(accepted))
	}
	for _, h := range accepted {
		if h.Key.TripleID == 3 {
			t.Errorf("accept filter leaked: %+v", h.Key)
		}
	}
}

func TestDimensionMismatch(t *testing.T) {
	ix := New(4)

	if err := ix.Upsert(Key{TripleID: 1, Component: "object"}, []float32{1, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Upsert: expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := ix.Nearest([]float32{1, 0}, "object", 5, nil); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Nearest: expected ErrDimensionMismatch, got %v", err)
	}
}

func TestFill(t *testing.T) {
	ix := New(4)

	rows := map[int64][]float32{
		10: {1, 0, 0, 0},
		11: {0, 1, 0, 0},
	}
	err := ix.Fill("object", func(fn func(id int64, vec []float32) error) error {
		for id, vec := range rows {
			if err := fn(id, vec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if ix.Len() != 2 {
		t.Fatalf("expected 2 entries after Fill, got %d", ix.Len())
	}

	hits, err := ix.Nearest([]float32{0, 1, 0, 0}, "object", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Key.TripleID != 11 {
		t.Errorf("expected triple 11, got %v", hits)
	}
}

func TestPersistRoundTrip(t *testing.T) {
	fs, err := mem.NewFS()
	if err != nil {
		t.Fatal(err)
	}

	// 1. Create, fill, save
	{
		ix, err := NewPersistent(fs, "index.bin", 4)
		if err != nil {
			t.Fatal(err)
		}
		if err := ix.Upsert(Key{TripleID: 1, Component: "object"}, []float32{0.1, 0.2, 0.3, 0}); err != nil {
			t.Fatal(err)
		}
		if err := ix.Upsert(Key{TripleID: 2, Component: "object"}, []float32{0.9, 0.8, 0.9, 0}); err != nil {
			t.Fatal(err)
		}
		if err := ix.Save(); err != nil {
			t.Fatal(err)
		}
	}

	// 2. Load and query
	{
		ix, err := NewPersistent(fs, "index.bin", 4)
		if err != nil {
			t.Fatal(err)
		}
		if ix.Len() != 2 {
			t.Fatalf("expected 2 entries after load, got %d", ix.Len())
		}

		hits, err := ix.Nearest([]float32{0.1, 0.2, 0.3, 0}, "object", 1, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 1 || hits[0].Key.TripleID != 1 {
			t.Errorf("expected triple 1, got %v", hits)
		}
	}
}

func TestPersistDimensionGuard(t *testing.T) {
	fs, err := mem.NewFS()
	if err != nil {
		t.Fatal(err)
	}

	ix, err := NewPersistent(fs, "index.bin", 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.Upsert(Key{TripleID: 1, Component: "object"}, []float32{1, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Save(); err != nil {
		t.Fatal(err)
	}

	if _, err := NewPersistent(fs, "index.bin", 8); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch loading a 4-dim snapshot into an 8-dim index, got %v", err)
	}
}

func TestCosine(t *testing.T) {
	cases := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{0, 0}, []float32{1, 0}, 0},
		{[]float32{1, 0}, []float32{1, 0, 0}, 0}, // length mismatch
	}
	for _, tc := range cases {
		got := Cosine(tc.a, tc.b)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Cosine(%v, %v) = %f, want %f", tc.a, tc.b, got, tc.want)
		}
	}
}
