package indexing

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/noveldesk/kioku/internal/embedding"
	"github.com/noveldesk/kioku/internal/models"
	"github.com/noveldesk/kioku/internal/repository"
	"github.com/noveldesk/kioku/internal/vectorstore"
)

// countingEmbedder counts Embed calls and can slow them down.
type countingEmbedder struct {
	embedding.Embedder
	calls int32
	delay time.Duration
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	return e.Embedder.Embed(ctx, text)
}

type fixture struct {
	coordinator *Coordinator
	store       vectorstore.Store
	repo        *repository.SQLiteRepository
	cache       *vectorstore.Cache
	embedder    *countingEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := repository.NewSQLiteRepository(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	store, err := vectorstore.NewSQLiteStoreFromDB(repo.DB())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	embedder := &countingEmbedder{Embedder: embedding.NewMockEmbedder(768)}
	cache := vectorstore.NewCache(64)
	coordinator := NewCoordinator(store, cache, embedding.NewProviderWith(embedder), repo, repo)
	return &fixture{coordinator: coordinator, store: store, repo: repo, cache: cache, embedder: embedder}
}

func (f *fixture) addKnowledge(t *testing.T, id string, projectID int64, title, content string) {
	t.Helper()
	err := f.repo.Upsert(context.Background(), &models.Knowledge{
		ID: id, ProjectID: projectID, Title: title, Content: content,
	})
	if err != nil {
		t.Fatalf("failed to add knowledge: %v", err)
	}
}

func (f *fixture) addPlot(t *testing.T, id string, projectID int64) {
	t.Helper()
	err := f.repo.CreatePlot(context.Background(), &models.Plot{ID: id, ProjectID: projectID, Title: "arc"})
	if err != nil {
		t.Fatalf("failed to add plot: %v", err)
	}
}

func (f *fixture) addChapter(t *testing.T, id, plotID, content string) {
	t.Helper()
	err := f.repo.UpsertChapter(context.Background(), &models.Chapter{
		ID: id, PlotID: plotID, Title: "ch " + id, Content: content,
	})
	if err != nil {
		t.Fatalf("failed to add chapter: %v", err)
	}
}

func TestIndexKnowledge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addKnowledge(t, "k1", 1, "The Lighthouse", "keeper's journal from 1893")

	if err := f.coordinator.IndexKnowledge(ctx, "k1"); err != nil {
		t.Fatalf("IndexKnowledge failed: %v", err)
	}

	doc, err := f.store.GetByEntity(ctx, models.EntityKnowledge, "k1", 1)
	if err != nil {
		t.Fatalf("document not stored: %v", err)
	}
	if doc.Metadata["title"] != "The Lighthouse" {
		t.Errorf("metadata = %v", doc.Metadata)
	}
	if doc.Content != "The Lighthouse\n\nkeeper's journal from 1893" {
		t.Errorf("content = %q", doc.Content)
	}
	if _, ok := f.cache.Get(doc.ID); !ok {
		t.Error("cache not refreshed after indexing")
	}
}

func TestIndexKnowledgeMissingIsNoOp(t *testing.T) {
	f := newFixture(t)
	if err := f.coordinator.IndexKnowledge(context.Background(), "ghost"); err != nil {
		t.Errorf("missing entity must be a no-op, got %v", err)
	}
	if atomic.LoadInt32(&f.embedder.calls) != 0 {
		t.Error("missing entity should not be embedded")
	}
}

func TestIndexChapterResolvesProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addPlot(t, "p1", 5)
	f.addChapter(t, "c1", "p1", "the storm breaks over the harbor")

	if err := f.coordinator.IndexChapter(ctx, "c1"); err != nil {
		t.Fatalf("IndexChapter failed: %v", err)
	}

	doc, err := f.store.GetByEntity(ctx, models.EntityChapter, "c1", 5)
	if err != nil {
		t.Fatalf("document not stored under plot's project: %v", err)
	}
	if doc.Metadata["plot_id"] != "p1" {
		t.Errorf("metadata = %v", doc.Metadata)
	}
}

func TestIndexKnowledgeCoalescesConcurrent(t *testing.T) {
	f := newFixture(t)
	f.embedder.delay = 50 * time.Millisecond
	f.addKnowledge(t, "k1", 1, "t", "content")

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.coordinator.IndexKnowledge(context.Background(), "k1")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&f.embedder.calls); got != 1 {
		t.Errorf("embedded %d times for 10 concurrent requests, want 1", got)
	}
}

func TestIndexUpdateReplacesDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addKnowledge(t, "k1", 1, "t", "first draft")

	if err := f.coordinator.IndexKnowledge(ctx, "k1"); err != nil {
		t.Fatalf("IndexKnowledge failed: %v", err)
	}
	first, _ := f.store.GetByEntity(ctx, models.EntityKnowledge, "k1", 1)

	f.addKnowledge(t, "k1", 1, "t", "second draft")
	if err := f.coordinator.IndexKnowledge(ctx, "k1"); err != nil {
		t.Fatalf("re-index failed: %v", err)
	}
	second, _ := f.store.GetByEntity(ctx, models.EntityKnowledge, "k1", 1)

	if second.ID != first.ID {
		t.Errorf("document id changed on update")
	}
	if second.Content == first.Content {
		t.Errorf("content not updated")
	}
	if vec, ok := f.cache.Get(second.ID); !ok {
		t.Error("cache entry missing after update")
	} else {
		fresh, _ := vectorstore.DecodeVector(second.RawVector)
		for i := range fresh {
			if vec[i] != fresh[i] {
				t.Fatal("cache holds stale vector after update")
			}
		}
	}
}

func TestRemoveEntityIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addKnowledge(t, "k1", 1, "t", "content")

	if err := f.coordinator.IndexKnowledge(ctx, "k1"); err != nil {
		t.Fatalf("IndexKnowledge failed: %v", err)
	}
	if err := f.coordinator.RemoveEntityIndex(ctx, models.EntityKnowledge, "k1", 1); err != nil {
		t.Fatalf("RemoveEntityIndex failed: %v", err)
	}
	if _, err := f.store.GetByEntity(ctx, models.EntityKnowledge, "k1", 1); err == nil {
		t.Error("document still present after removal")
	}

	// Removing again is a no-op.
	if err := f.coordinator.RemoveEntityIndex(ctx, models.EntityKnowledge, "k1", 1); err != nil {
		t.Errorf("second removal must be a no-op, got %v", err)
	}
}

func TestReindexProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		f.addKnowledge(t, fmt.Sprintf("k%d", i), 1, "t", fmt.Sprintf("note %d", i))
	}
	f.addPlot(t, "p1", 1)
	f.addPlot(t, "p2", 1)
	for i := 0; i < 4; i++ {
		f.addChapter(t, fmt.Sprintf("c1-%d", i), "p1", fmt.Sprintf("chapter %d", i))
	}
	for i := 0; i < 3; i++ {
		f.addChapter(t, fmt.Sprintf("c2-%d", i), "p2", fmt.Sprintf("chapter %d", i))
	}

	// A stale document that no longer has a source entity.
	if _, err := f.store.Upsert(ctx, models.EntityKnowledge, "deleted-note", 1, "stale", []float32{1}, nil); err != nil {
		t.Fatalf("failed to seed stale document: %v", err)
	}

	if err := f.coordinator.ReindexProject(ctx, 1); err != nil {
		t.Fatalf("ReindexProject failed: %v", err)
	}

	count, err := f.store.CountByProject(ctx, 1)
	if err != nil {
		t.Fatalf("CountByProject failed: %v", err)
	}
	if count != 19 {
		t.Errorf("expected 19 documents after reindex, got %d", count)
	}
	if _, err := f.store.GetByEntity(ctx, models.EntityKnowledge, "deleted-note", 1); err == nil {
		t.Error("stale document survived reindex")
	}
}

func TestReindexProjectCancellation(t *testing.T) {
	f := newFixture(t)
	f.embedder.delay = 20 * time.Millisecond
	for i := 0; i < 30; i++ {
		f.addKnowledge(t, fmt.Sprintf("k%d", i), 1, "t", fmt.Sprintf("note %d", i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.coordinator.ReindexProject(ctx, 1) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected cancellation error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reindex did not stop after cancellation")
	}

	// A re-run on a fresh context converges to the full index.
	if err := f.coordinator.ReindexProject(context.Background(), 1); err != nil {
		t.Fatalf("re-run after cancellation failed: %v", err)
	}
	count, _ := f.store.CountByProject(context.Background(), 1)
	if count != 30 {
		t.Errorf("expected 30 documents after re-run, got %d", count)
	}
}
