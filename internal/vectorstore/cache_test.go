package vectorstore

import "testing"

func TestCachePutGet(t *testing.T) {
	c := NewCache(10)
	c.Put("a", []float32{1, 2})

	vec, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit")
	}
	if len(vec) != 2 || vec[0] != 1 {
		t.Errorf("unexpected vector: %v", vec)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown id")
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	c := NewCache(2)
	c.Put("a", []float32{1})
	c.Put("b", []float32{2})
	c.Put("c", []float32{3})

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("entry b should remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("entry c should remain")
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

func TestCacheGetRefreshesRecency(t *testing.T) {
	c := NewCache(2)
	c.Put("a", []float32{1})
	c.Put("b", []float32{2})

	// Touch a so b becomes the LRU entry.
	c.Get("a")
	c.Put("c", []float32{3})

	if _, ok := c.Get("a"); !ok {
		t.Error("recently used entry should survive")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry should be evicted")
	}
}

func TestCachePutUpdatesInPlace(t *testing.T) {
	c := NewCache(2)
	c.Put("a", []float32{1})
	c.Put("a", []float32{9})

	vec, ok := c.Get("a")
	if !ok || vec[0] != 9 {
		t.Errorf("expected updated vector, got %v", vec)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}
