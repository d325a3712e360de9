// Package indexing keeps the vector store synchronized with mutable source
// entities: knowledge notes and chapters.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noveldesk/kioku/internal/embedding"
	"github.com/noveldesk/kioku/internal/models"
	"github.com/noveldesk/kioku/internal/repository"
	"github.com/noveldesk/kioku/internal/vectorstore"
)

// Default batch sizes for project reindexing. Within a batch entities are
// indexed in parallel; batches run sequentially to bound concurrent
// embedding calls.
const (
	DefaultKnowledgeBatchSize = 10
	DefaultChapterBatchSize   = 5
)

// Coordinator bridges source repositories to the vector store. At most one
// indexing operation runs per entity key at a time: concurrent requests for
// the same key join the in-flight one and share its outcome.
type Coordinator struct {
	store     vectorstore.Store
	cache     *vectorstore.Cache
	provider  *embedding.Provider
	knowledge repository.KnowledgeRepository
	chapters  repository.ChapterRepository
	logger    *zap.Logger

	inflight singleflight.Group

	knowledgeBatchSize int
	chapterBatchSize   int
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets a logger for indexing events.
func WithLogger(l *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// WithBatchSizes overrides the reindex batch sizes.
func WithBatchSizes(knowledge, chapter int) CoordinatorOption {
	return func(c *Coordinator) {
		if knowledge > 0 {
			c.knowledgeBatchSize = knowledge
		}
		if chapter > 0 {
			c.chapterBatchSize = chapter
		}
	}
}

// NewCoordinator creates a coordinator. cache may be nil; when set, the
// cache entry for a document is refreshed on every write so a reader never
// sees a stale vector after an entity's content changes.
func NewCoordinator(
	store vectorstore.Store,
	cache *vectorstore.Cache,
	provider *embedding.Provider,
	knowledge repository.KnowledgeRepository,
	chapters repository.ChapterRepository,
	opts ...CoordinatorOption,
) *Coordinator {
	c := &Coordinator{
		store:              store,
		cache:              cache,
		provider:           provider,
		knowledge:          knowledge,
		chapters:           chapters,
		knowledgeBatchSize: DefaultKnowledgeBatchSize,
		chapterBatchSize:   DefaultChapterBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IndexKnowledge embeds and upserts the knowledge note. A missing note is a
// benign race with deletion: logged, not an error. Concurrent calls for the
// same note coalesce into one embedding/upsert cycle.
func (c *Coordinator) IndexKnowledge(ctx context.Context, id string) error {
	return c.coalesce(string(models.EntityKnowledge)+":"+id, func() error {
		return c.indexKnowledge(ctx, id)
	})
}

// IndexChapter embeds and upserts the chapter, resolving its project through
// the owning plot. Same no-op and coalescing semantics as IndexKnowledge.
func (c *Coordinator) IndexChapter(ctx context.Context, id string) error {
	return c.coalesce(string(models.EntityChapter)+":"+id, func() error {
		return c.indexChapter(ctx, id)
	})
}

// coalesce runs fn under the entity key. Joiners of an in-flight run share
// its outcome (and the first caller's context); a request arriving after
// completion starts fresh work.
func (c *Coordinator) coalesce(key string, fn func() error) error {
	_, err, _ := c.inflight.Do(key, func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func (c *Coordinator) indexKnowledge(ctx context.Context, id string) error {
	k, err := c.knowledge.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		if c.logger != nil {
			c.logger.Debug("knowledge vanished before indexing", zap.String("id", id))
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load knowledge %s: %w", id, err)
	}
	return c.indexEntity(ctx, models.EntityKnowledge, k.ID, k.ProjectID, k.SearchText(), map[string]interface{}{
		"title": k.Title,
	})
}

func (c *Coordinator) indexChapter(ctx context.Context, id string) error {
	ch, err := c.chapters.GetChapter(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		if c.logger != nil {
			c.logger.Debug("chapter vanished before indexing", zap.String("id", id))
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load chapter %s: %w", id, err)
	}
	plot, err := c.chapters.GetPlot(ctx, ch.PlotID)
	if errors.Is(err, repository.ErrNotFound) {
		if c.logger != nil {
			c.logger.Debug("plot vanished before indexing chapter",
				zap.String("chapter_id", id), zap.String("plot_id", ch.PlotID))
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load plot %s: %w", ch.PlotID, err)
	}
	return c.indexEntity(ctx, models.EntityChapter, ch.ID, plot.ProjectID, ch.SearchText(), map[string]interface{}{
		"title":   ch.Title,
		"plot_id": ch.PlotID,
	})
}

// indexEntity embeds text and upserts the document, refreshing the cache
// entry so readers see the new vector immediately.
func (c *Coordinator) indexEntity(ctx context.Context, entityType models.EntityType, entityID string, projectID int64,
	text string, metadata map[string]interface{}) error {
	vec, err := c.provider.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed %s %s: %w", entityType, entityID, err)
	}
	doc, err := c.store.Upsert(ctx, entityType, entityID, projectID, text, vec, metadata)
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", entityType, entityID, err)
	}
	if c.cache != nil {
		c.cache.Put(doc.ID, vec)
	}
	if c.logger != nil {
		c.logger.Debug("entity indexed",
			zap.String("entity_type", string(entityType)),
			zap.String("entity_id", entityID),
			zap.Int64("project_id", projectID),
			zap.String("doc_id", doc.ID))
	}
	return nil
}

// RemoveEntityIndex deletes the entity's document. Missing documents are a
// no-op, not an error.
func (c *Coordinator) RemoveEntityIndex(ctx context.Context, entityType models.EntityType, entityID string, projectID int64) error {
	removed, err := c.store.DeleteByEntity(ctx, entityType, entityID, projectID)
	if err != nil {
		return err
	}
	if c.logger != nil {
		c.logger.Debug("entity index removed",
			zap.String("entity_type", string(entityType)),
			zap.String("entity_id", entityID),
			zap.Bool("removed", removed))
	}
	return nil
}

// ReindexProject clears the project's vectors and re-indexes every knowledge
// note and every chapter of every plot under it. Entities are processed in
// batches (parallel within, sequential between). Per-entity failures are
// logged and do not stop the remaining batches; the returned error reports
// how many entities failed, nil when all succeeded. The call checks ctx
// between items and batches, so cancellation stops promptly, leaving a
// partial index; re-running converges because the reindex starts with a
// full clear.
func (c *Coordinator) ReindexProject(ctx context.Context, projectID int64) error {
	cleared, err := c.store.DeleteByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("clear project %d: %w", projectID, err)
	}
	if c.logger != nil {
		c.logger.Info("reindex started", zap.Int64("project_id", projectID), zap.Int64("cleared", cleared))
	}

	var failures int

	notes, err := c.knowledge.ListByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list knowledge for project %d: %w", projectID, err)
	}
	noteIDs := make([]string, len(notes))
	for i, k := range notes {
		noteIDs[i] = k.ID
	}
	n, err := c.runBatches(ctx, noteIDs, c.knowledgeBatchSize, c.IndexKnowledge)
	failures += n
	if err != nil {
		return err
	}

	plots, err := c.chapters.GetPlotsByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list plots for project %d: %w", projectID, err)
	}
	var chapterIDs []string
	for _, p := range plots {
		chapters, err := c.chapters.GetChaptersByPlot(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("list chapters for plot %s: %w", p.ID, err)
		}
		for _, ch := range chapters {
			chapterIDs = append(chapterIDs, ch.ID)
		}
	}
	n, err = c.runBatches(ctx, chapterIDs, c.chapterBatchSize, c.IndexChapter)
	failures += n
	if err != nil {
		return err
	}

	if c.logger != nil {
		c.logger.Info("reindex finished",
			zap.Int64("project_id", projectID),
			zap.Int("entities", len(noteIDs)+len(chapterIDs)),
			zap.Int("failures", failures))
	}
	if failures > 0 {
		return fmt.Errorf("reindex project %d: %d of %d entities failed",
			projectID, failures, len(noteIDs)+len(chapterIDs))
	}
	return nil
}

// runBatches indexes ids in sequential batches of batchSize with
// within-batch parallelism. Returns the number of failed entities; a non-nil
// error is returned only for cancellation.
func (c *Coordinator) runBatches(ctx context.Context, ids []string, batchSize int, index func(context.Context, string) error) (int, error) {
	var failures int
	for start := 0; start < len(ids); start += batchSize {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		var wg sync.WaitGroup
		errc := make(chan error, len(batch))
		for _, id := range batch {
			if err := ctx.Err(); err != nil {
				break
			}
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if err := index(ctx, id); err != nil {
					if c.logger != nil {
						c.logger.Warn("indexing entity failed", zap.String("id", id), zap.Error(err))
					}
					errc <- err
				}
			}(id)
		}
		wg.Wait()
		close(errc)
		for range errc {
			failures++
		}
	}
	if err := ctx.Err(); err != nil {
		return failures, err
	}
	return failures, nil
}
