package relatedfuzzy

import (
	"context"
	"testing"

	"github.com/sgx-labs/convsearch/internal/store"
)

// fakeEmbedder maps specific term texts to hand-picked vectors so distance
// relationships are predictable in tests, rather than depending on a real
// embedding model.
type fakeEmbedder struct {
	vectors map[string][]float32
	dims    int
}

func (f *fakeEmbedder) vecFor(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	v := make([]float32, f.dims)
	v[0] = 1 // arbitrary default, far from the hand-placed vectors below
	return v
}

func (f *fakeEmbedder) GetEmbedding(text string, purpose string) ([]float32, error) {
	return f.vecFor(text), nil
}
func (f *fakeEmbedder) GetDocumentEmbedding(text string) ([]float32, error) { return f.vecFor(text), nil }
func (f *fakeEmbedder) GetQueryEmbedding(text string) ([]float32, error)    { return f.vecFor(text), nil }
func (f *fakeEmbedder) Name() string                                       { return "fake" }
func (f *fakeEmbedder) Model() string                                      { return "fake" }
func (f *fakeEmbedder) Dimensions() int                                    { return f.dims }

func TestLookupFuzzyFindsNearestIndexedTerm(t *testing.T) {
	dims := 4
	embedder := &fakeEmbedder{dims: dims, vectors: map[string][]float32{
		"novel":     {1, 0, 0, 0},
		"book":      {0.99, 0.01, 0, 0}, // very close to "novel"
		"spaceship": {0, 0, 0, 1},       // far from "novel"
	}}

	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory error: %v", err)
	}
	defer db.Close()

	idx := New(db.Conn(), embedder)
	ctx := context.Background()

	for _, termText := range []string{"book", "spaceship"} {
		if err := idx.IndexTerm(ctx, termText); err != nil {
			t.Fatalf("IndexTerm(%q) error: %v", termText, err)
		}
	}

	matches, err := idx.LookupFuzzy(ctx, "novel", 5, 0.0)
	if err != nil {
		t.Fatalf("LookupFuzzy error: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one fuzzy match")
	}
	if matches[0].Text != "book" {
		t.Errorf("expected \"book\" to be the nearest match to \"novel\", got %q", matches[0].Text)
	}
}

func TestLookupFuzzyRespectsMinScore(t *testing.T) {
	dims := 4
	embedder := &fakeEmbedder{dims: dims, vectors: map[string][]float32{
		"novel":     {1, 0, 0, 0},
		"spaceship": {0, 0, 0, 1},
	}}

	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory error: %v", err)
	}
	defer db.Close()

	idx := New(db.Conn(), embedder)
	ctx := context.Background()
	if err := idx.IndexTerm(ctx, "spaceship"); err != nil {
		t.Fatalf("IndexTerm error: %v", err)
	}

	matches, err := idx.LookupFuzzy(ctx, "novel", 5, 0.99)
	if err != nil {
		t.Fatalf("LookupFuzzy error: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected a high minScore to exclude a distant single candidate, got %v", matches)
	}
}
