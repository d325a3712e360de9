// Package embedding provides text embedding via a local ONNX model, with
// lazy model loading and a cosine-similarity primitive.
package embedding

import (
	"context"
	"errors"
	"math"
)

// Sentinel errors for the embedding layer. Callers check them with errors.Is.
var (
	// ErrModelLoad means the embedding model failed to initialize. Fatal for
	// search and indexing until Initialize is retried.
	ErrModelLoad = errors.New("embedding model load failed")
	// ErrDimensionMismatch means two vectors of unequal length were compared.
	// Indicates data corruption or a model-version mismatch; not retryable.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrUnavailable means a vector could not be produced for a query or
	// document. Transient; safe to retry.
	ErrUnavailable = errors.New("embedding unavailable")
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Returns ErrDimensionMismatch when the lengths differ, and 0 (no error)
// when either vector has zero magnitude.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA*normB)), nil
}

// Magnitude returns the Euclidean norm of v.
func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// normalizeL2 scales v in place to unit length. Zero vectors are left as-is
// so an empty input still yields a valid (non-NaN) vector.
func normalizeL2(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
