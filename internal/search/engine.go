// Package search executes similarity queries against the vector store.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noveldesk/kioku/internal/embedding"
	"github.com/noveldesk/kioku/internal/models"
	"github.com/noveldesk/kioku/internal/vectorstore"
)

// ErrInvalidQuery means the request is missing its project, query text, or
// entity reference.
var ErrInvalidQuery = errors.New("invalid search query")

// Engine ranks vector documents by cosine similarity to an embedded query,
// with optional perturbation for fuzzy and serendipitous discovery.
type Engine struct {
	store    vectorstore.Store
	provider *embedding.Provider
	cache    *vectorstore.Cache
	noise    NoiseFunc
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithNoise replaces the perturbation noise source (deterministic in tests).
func WithNoise(f NoiseFunc) EngineOption {
	return func(e *Engine) { e.noise = f }
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine. cache may be nil to disable vector
// caching (every scan then decodes from the row).
func NewEngine(store vectorstore.Store, provider *embedding.Provider, cache *vectorstore.Cache, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		provider: provider,
		cache:    cache,
		noise:    UniformNoise,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search embeds queryText and returns project documents ranked by cosine
// similarity, subject to the options' mode, threshold, and filters. An empty
// result is not an error.
func (e *Engine) Search(ctx context.Context, projectID int64, queryText string, opts models.SearchOptions) ([]models.SearchResult, error) {
	if projectID <= 0 {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidQuery)
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, fmt.Errorf("%w: query text is required", ErrInvalidQuery)
	}
	opts.Normalize()

	queryVec, err := e.provider.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}
	if e.logger != nil {
		e.logger.Debug("search",
			zap.Int64("project_id", projectID),
			zap.String("mode", string(opts.Mode)),
			zap.Int("limit", opts.Limit))
	}
	return e.rank(ctx, projectID, queryVec, opts)
}

// FindSimilar ranks project documents against the stored vector of the given
// entity (no re-embedding), excluding the entity's own document. Returns an
// empty result when the entity has no indexed document.
func (e *Engine) FindSimilar(ctx context.Context, projectID int64, entityType models.EntityType, entityID string, opts models.SearchOptions) ([]models.SearchResult, error) {
	if projectID <= 0 {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidQuery)
	}
	if !entityType.Valid() || entityID == "" {
		return nil, fmt.Errorf("%w: entity reference is required", ErrInvalidQuery)
	}
	opts.Normalize()

	doc, err := e.store.GetByEntity(ctx, entityType, entityID, projectID)
	if errors.Is(err, vectorstore.ErrNotFound) {
		return []models.SearchResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	opts.ExcludeIDs = append(opts.ExcludeIDs, doc.ID)
	return e.rank(ctx, projectID, doc.Vector, opts)
}

// rank is the shared scoring pipeline: perturb, scan, resolve vectors
// through the cache, score, threshold, sort, truncate.
func (e *Engine) rank(ctx context.Context, projectID int64, queryVec []float32, opts models.SearchOptions) ([]models.SearchResult, error) {
	scored := perturb(queryVec, opts.Mode.Amplitude(), e.noise)

	candidates, err := e.store.QueryByProject(ctx, projectID, vectorstore.Filter{
		EntityTypes: opts.EntityTypes,
		ExcludeIDs:  opts.ExcludeIDs,
	})
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(candidates))
	for _, doc := range candidates {
		vec, err := e.resolveVector(doc)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", doc.ID, err)
		}
		similarity, err := embedding.CosineSimilarity(scored, vec)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", doc.ID, err)
		}
		if similarity < opts.MinSimilarity {
			continue
		}
		results = append(results, models.SearchResult{
			ID:         doc.ID,
			EntityType: doc.EntityType,
			EntityID:   doc.EntityID,
			Content:    doc.Content,
			Similarity: similarity,
			Metadata:   doc.Metadata,
		})
	}

	// Stable sort keeps scan order for ties.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// resolveVector returns the document's decoded vector, going through the
// cache when one is configured.
func (e *Engine) resolveVector(doc *models.VectorDocument) ([]float32, error) {
	if doc.Vector != nil {
		return doc.Vector, nil
	}
	if e.cache != nil {
		if vec, ok := e.cache.Get(doc.ID); ok {
			return vec, nil
		}
	}
	vec, err := vectorstore.DecodeVector(doc.RawVector)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Put(doc.ID, vec)
	}
	return vec, nil
}
