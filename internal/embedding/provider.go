package embedding

import (
	"context"
	"fmt"
	"sync"
)

// batchChunkSize bounds how many texts are embedded per chunk in EmbedBatch.
const batchChunkSize = 32

// Factory constructs the underlying embedder. Called at most once per
// initialization attempt; a failed attempt may be retried.
type Factory func() (Embedder, error)

// Provider wraps an Embedder with lazy, idempotent initialization.
// Concurrent callers before the model is loaded all await the same in-flight
// load; none triggers a duplicate load. A failed load is reported as
// ErrModelLoad and the next call retries.
type Provider struct {
	dimensions int
	factory    Factory

	mu       sync.Mutex
	embedder Embedder
	pending  chan struct{} // non-nil while a load is in flight; closed on completion
	loadErr  error         // outcome of the most recent completed load
}

// NewProvider creates a provider that loads its embedder on first use.
// dimensions is the expected output dimension; vectors of any other length
// coming out of the embedder are rejected.
func NewProvider(dimensions int, factory Factory) *Provider {
	return &Provider{dimensions: dimensions, factory: factory}
}

// NewProviderWith wraps an already-constructed embedder (no lazy load).
func NewProviderWith(emb Embedder) *Provider {
	return &Provider{dimensions: emb.Dimensions(), embedder: emb}
}

// Dimensions returns the embedding dimension.
func (p *Provider) Dimensions() int {
	return p.dimensions
}

// Initialize loads the model if it is not loaded yet. Safe for concurrent
// use: callers arriving during a load wait for that load's outcome instead
// of starting another. Returns ErrModelLoad (wrapped) on failure.
func (p *Provider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	if p.embedder != nil {
		p.mu.Unlock()
		return nil
	}
	if p.factory == nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: no embedder factory configured", ErrModelLoad)
	}
	if p.pending != nil {
		done := p.pending
		p.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.embedder != nil {
			return nil
		}
		return p.loadErr
	}
	done := make(chan struct{})
	p.pending = done
	p.mu.Unlock()

	emb, err := p.factory()

	p.mu.Lock()
	if err != nil {
		p.loadErr = fmt.Errorf("%w: %v", ErrModelLoad, err)
	} else {
		p.embedder = emb
		p.loadErr = nil
	}
	outcome := p.loadErr
	p.pending = nil
	p.mu.Unlock()
	close(done)
	return outcome
}

// current returns the loaded embedder, initializing lazily.
func (p *Provider) current(ctx context.Context) (Embedder, error) {
	p.mu.Lock()
	emb := p.embedder
	p.mu.Unlock()
	if emb != nil {
		return emb, nil
	}
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	emb = p.embedder
	p.mu.Unlock()
	if emb == nil {
		return nil, fmt.Errorf("%w: embedder not loaded", ErrUnavailable)
	}
	return emb, nil
}

// Embed returns a unit-normalized vector for text. The empty string embeds
// to a valid vector rather than failing. Embedding failures are reported as
// ErrUnavailable (wrapped); model-load failures as ErrModelLoad.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	emb, err := p.current(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := emb.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(vec) != p.dimensions {
		return nil, fmt.Errorf("%w: embedder returned %d dimensions, expected %d",
			ErrDimensionMismatch, len(vec), p.dimensions)
	}
	return vec, nil
}

// EmbedBatch embeds texts preserving input order, processing in chunks of
// 32 to bound peak model load.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	emb, err := p.current(ctx)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := emb.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, v := range vecs {
			if len(v) != p.dimensions {
				return nil, fmt.Errorf("%w: embedder returned %d dimensions, expected %d",
					ErrDimensionMismatch, len(v), p.dimensions)
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// TextSimilarity embeds both texts and returns their cosine similarity.
func (p *Provider) TextSimilarity(ctx context.Context, text1, text2 string) (float64, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text1, text2})
	if err != nil {
		return 0, err
	}
	return CosineSimilarity(vecs[0], vecs[1])
}

// Close releases the underlying embedder if one was loaded.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.embedder == nil {
		return nil
	}
	err := p.embedder.Close()
	p.embedder = nil
	return err
}
