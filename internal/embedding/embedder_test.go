package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{0.6, 0.8, 0}
	sim, err := CosineSimilarity(v, v)
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(sim-1.0) > 1e-6 {
		t.Errorf("expected similarity 1.0, got %f", sim)
	}
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(sim) > 1e-6 {
		t.Errorf("expected similarity 0, got %f", sim)
	}
}

func TestCosineSimilarityOpposite(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{-1, 0}
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(sim+1.0) > 1e-6 {
		t.Errorf("expected similarity -1.0, got %f", sim)
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	sim, err := CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3})
	if err != nil {
		t.Fatalf("zero vector must not error: %v", err)
	}
	if sim != 0 {
		t.Errorf("expected similarity 0 for zero vector, got %f", sim)
	}
}

func TestMagnitude(t *testing.T) {
	m := Magnitude([]float32{3, 4})
	if math.Abs(m-5.0) > 1e-6 {
		t.Errorf("expected magnitude 5, got %f", m)
	}
	if Magnitude(nil) != 0 {
		t.Errorf("expected magnitude 0 for empty vector")
	}
}

func TestMockEmbedderDeterministic(t *testing.T) {
	e := NewMockEmbedder(768)
	ctx := context.Background()

	a1, err := e.Embed(ctx, "the dragon sleeps beneath the mountain")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	a2, err := e.Embed(ctx, "the dragon sleeps beneath the mountain")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := e.Embed(ctx, "a completely different sentence")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if len(a1) != 768 {
		t.Fatalf("expected 768 dimensions, got %d", len(a1))
	}
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatalf("same text produced different vectors at index %d", i)
		}
	}

	same, _ := CosineSimilarity(a1, a2)
	diff, _ := CosineSimilarity(a1, b)
	if math.Abs(same-1.0) > 1e-6 {
		t.Errorf("same text similarity = %f, want 1.0", same)
	}
	if diff > 0.99 {
		t.Errorf("different texts too similar: %f", diff)
	}
}

func TestMockEmbedderUnitVectors(t *testing.T) {
	e := NewMockEmbedder(768)
	vec, err := e.Embed(context.Background(), "normalization check")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if m := Magnitude(vec); math.Abs(m-1.0) > 1e-4 {
		t.Errorf("expected unit vector, magnitude %f", m)
	}
}
