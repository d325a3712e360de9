package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/noveldesk/kioku/internal/embedding"
	"github.com/noveldesk/kioku/internal/models"
	"github.com/noveldesk/kioku/internal/vectorstore"
)

// fixedEmbedder maps known texts to fixed unit vectors.
type fixedEmbedder struct {
	vectors map[string][]float32
}

func (e *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no fixture vector for %q", text)
}

func (e *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *fixedEmbedder) Dimensions() int { return 3 }
func (e *fixedEmbedder) Close() error   { return nil }

func newTestEngine(t *testing.T) (*Engine, vectorstore.Store) {
	t.Helper()
	store, err := vectorstore.NewSQLiteStore(filepath.Join(t.TempDir(), "search.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	emb := &fixedEmbedder{vectors: map[string][]float32{
		"cat": {1, 0, 0},
		"dog": {0.8, 0.6, 0},
		"car": {0, 0, 1},
	}}
	provider := embedding.NewProviderWith(emb)
	cache := vectorstore.NewCache(16)
	return NewEngine(store, provider, cache), store
}

func seedAnimals(t *testing.T, store vectorstore.Store) map[string]string {
	t.Helper()
	ctx := context.Background()
	ids := map[string]string{}
	for i, fixture := range []struct {
		entityID string
		content  string
		vec      []float32
	}{
		{"e-cat", "cat", []float32{1, 0, 0}},
		{"e-dog", "dog", []float32{0.8, 0.6, 0}},
		{"e-car", "car", []float32{0, 0, 1}},
	} {
		doc, err := store.Upsert(ctx, models.EntityKnowledge, fixture.entityID, 1, fixture.content, fixture.vec, nil)
		if err != nil {
			t.Fatalf("seed %d failed: %v", i, err)
		}
		ids[fixture.content] = doc.ID
	}
	return ids
}

func TestSearchRanksBySimilarity(t *testing.T) {
	engine, store := newTestEngine(t)
	seedAnimals(t, store)

	results, err := engine.Search(context.Background(), 1, "cat", models.SearchOptions{MinSimilarity: 0.5})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results above threshold, got %d", len(results))
	}
	if results[0].Content != "cat" || results[1].Content != "dog" {
		t.Errorf("wrong order: %s, %s", results[0].Content, results[1].Content)
	}
	if math.Abs(results[0].Similarity-1.0) > 1e-6 {
		t.Errorf("cat similarity = %f, want 1.0", results[0].Similarity)
	}
	if math.Abs(results[1].Similarity-0.8) > 1e-6 {
		t.Errorf("dog similarity = %f, want 0.8", results[1].Similarity)
	}
}

func TestSearchExactIsDeterministic(t *testing.T) {
	engine, store := newTestEngine(t)
	seedAnimals(t, store)
	ctx := context.Background()

	first, err := engine.Search(ctx, 1, "cat", models.SearchOptions{Mode: models.ModeExact})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := engine.Search(ctx, 1, "cat", models.SearchOptions{Mode: models.ModeExact})
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("result count changed between identical searches")
		}
		for j := range again {
			if again[j].ID != first[j].ID || again[j].Similarity != first[j].Similarity {
				t.Fatalf("exact search not deterministic at position %d", j)
			}
		}
	}
}

func TestSearchNoThresholdReturnsAll(t *testing.T) {
	engine, store := newTestEngine(t)
	seedAnimals(t, store)

	results, err := engine.Search(context.Background(), 1, "cat", models.SearchOptions{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected all 3 documents without threshold, got %d", len(results))
	}
}

func TestSearchLimit(t *testing.T) {
	engine, store := newTestEngine(t)
	seedAnimals(t, store)

	results, err := engine.Search(context.Background(), 1, "cat", models.SearchOptions{Limit: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Content != "cat" {
		t.Errorf("limit 1 should return only the best match")
	}
}

func TestSearchEntityTypeFilter(t *testing.T) {
	engine, store := newTestEngine(t)
	seedAnimals(t, store)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, models.EntityChapter, "ch1", 1, "cat", []float32{1, 0, 0}, nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := engine.Search(ctx, 1, "cat", models.SearchOptions{
		EntityTypes: []models.EntityType{models.EntityChapter},
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].EntityType != models.EntityChapter {
		t.Errorf("entity type filter not applied: %+v", results)
	}
}

func TestSearchInvalidQuery(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Search(ctx, 0, "cat", models.SearchOptions{}); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("missing project: expected ErrInvalidQuery, got %v", err)
	}
	if _, err := engine.Search(ctx, 1, "   ", models.SearchOptions{}); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("blank query: expected ErrInvalidQuery, got %v", err)
	}
}

func TestSearchEmptyProject(t *testing.T) {
	engine, _ := newTestEngine(t)
	results, err := engine.Search(context.Background(), 42, "cat", models.SearchOptions{})
	if err != nil {
		t.Fatalf("Search on empty project failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestSearchCacheTransparency(t *testing.T) {
	engine, store := newTestEngine(t)
	seedAnimals(t, store)
	ctx := context.Background()

	cold, err := engine.Search(ctx, 1, "cat", models.SearchOptions{})
	if err != nil {
		t.Fatalf("cold search failed: %v", err)
	}
	warm, err := engine.Search(ctx, 1, "cat", models.SearchOptions{})
	if err != nil {
		t.Fatalf("warm search failed: %v", err)
	}

	if len(cold) != len(warm) {
		t.Fatalf("cold and warm result counts differ")
	}
	for i := range cold {
		if cold[i].ID != warm[i].ID || cold[i].Similarity != warm[i].Similarity {
			t.Errorf("cache changed result %d", i)
		}
	}
}

func TestFindSimilarExcludesSelf(t *testing.T) {
	engine, store := newTestEngine(t)
	ids := seedAnimals(t, store)

	results, err := engine.FindSimilar(context.Background(), 1, models.EntityKnowledge, "e-cat", models.SearchOptions{})
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	for _, r := range results {
		if r.ID == ids["cat"] {
			t.Error("result contains the source document itself")
		}
	}
	if len(results) == 0 || results[0].Content != "dog" {
		t.Errorf("expected dog as nearest neighbor, got %+v", results)
	}
}

func TestFindSimilarUnindexedEntity(t *testing.T) {
	engine, store := newTestEngine(t)
	seedAnimals(t, store)

	results, err := engine.FindSimilar(context.Background(), 1, models.EntityKnowledge, "never-indexed", models.SearchOptions{})
	if err != nil {
		t.Fatalf("expected empty result, got error: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("expected empty non-nil result, got %v", results)
	}
}

func TestSearchSerendipityUsesNoise(t *testing.T) {
	store, err := vectorstore.NewSQLiteStore(filepath.Join(t.TempDir(), "noise.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	emb := &fixedEmbedder{vectors: map[string][]float32{"cat": {1, 0, 0}}}
	var called bool
	var gotAmplitude float32
	engine := NewEngine(store, embedding.NewProviderWith(emb), nil,
		WithNoise(func(vec []float32, amplitude float32) {
			called = true
			gotAmplitude = amplitude
		}))

	if _, err := engine.Search(context.Background(), 1, "cat", models.SearchOptions{Mode: models.ModeSerendipity}); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !called {
		t.Fatal("noise function not invoked in serendipity mode")
	}
	if gotAmplitude != 0.15 {
		t.Errorf("amplitude = %f, want 0.15", gotAmplitude)
	}

	called = false
	if _, err := engine.Search(context.Background(), 1, "cat", models.SearchOptions{Mode: models.ModeExact}); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if called {
		t.Error("noise function invoked in exact mode")
	}
}
