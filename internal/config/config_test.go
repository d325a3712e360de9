package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kioku.yaml")
	content := `
debug: true
server:
  host: 0.0.0.0
  port: 9000
storage:
  database_path: ./data/kioku.db
embedding:
  model_path: /models/encoder.onnx
  dimensions: 384
search:
  default_min_similarity: 0.3
notes:
  directories:
    - ./notes
  project_id: 7
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.Debug {
		t.Error("debug not set")
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9000 {
		t.Errorf("server config = %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath != filepath.Join(dir, "data/kioku.db") {
		t.Errorf("database path not resolved: %s", cfg.Storage.DatabasePath)
	}
	if cfg.Embedding.ModelPath != "/models/encoder.onnx" {
		t.Errorf("absolute model path altered: %s", cfg.Embedding.ModelPath)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("dimensions = %d", cfg.Embedding.Dimensions)
	}
	if cfg.Search.DefaultMinSimilarity != 0.3 {
		t.Errorf("min similarity = %f", cfg.Search.DefaultMinSimilarity)
	}
	if cfg.Notes.ProjectID != 7 {
		t.Errorf("notes project = %d", cfg.Notes.ProjectID)
	}
	if cfg.Notes.Directories[0] != filepath.Join(dir, "notes") {
		t.Errorf("notes directory not resolved: %s", cfg.Notes.Directories[0])
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kioku.yaml")
	if err := os.WriteFile(path, []byte("debug: false\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8791 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("default dimensions = %d", cfg.Embedding.Dimensions)
	}
	if cfg.Search.DefaultLimit != 10 || cfg.Search.MaxLimit != 100 {
		t.Errorf("default limits = %d/%d", cfg.Search.DefaultLimit, cfg.Search.MaxLimit)
	}
	if cfg.Search.DefaultMinSimilarity != 0.5 {
		t.Errorf("default min similarity = %f", cfg.Search.DefaultMinSimilarity)
	}
	if cfg.Search.VectorCacheCapacity != 1000 {
		t.Errorf("default cache capacity = %d", cfg.Search.VectorCacheCapacity)
	}
	if cfg.Index.KnowledgeBatchSize != 10 || cfg.Index.ChapterBatchSize != 5 {
		t.Errorf("default batch sizes = %d/%d", cfg.Index.KnowledgeBatchSize, cfg.Index.ChapterBatchSize)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/kioku.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}
