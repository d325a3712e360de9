// Package config provides configuration loading and structs for the kioku server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Index     IndexConfig     `yaml:"index"`
	Notes     NotesConfig     `yaml:"notes"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the database path. Entities and vector documents share
// one SQLite file.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig holds local embedding model settings.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	// UseMock forces the deterministic mock embedder (no model file needed).
	UseMock bool `yaml:"use_mock"`
}

// SearchConfig holds search defaults and the vector cache size.
type SearchConfig struct {
	DefaultLimit         int     `yaml:"default_limit"`
	MaxLimit             int     `yaml:"max_limit"`
	DefaultMinSimilarity float64 `yaml:"default_min_similarity"`
	VectorCacheCapacity  int     `yaml:"vector_cache_capacity"`
}

// IndexConfig holds reindex batch sizes.
type IndexConfig struct {
	KnowledgeBatchSize int `yaml:"knowledge_batch_size"`
	ChapterBatchSize   int `yaml:"chapter_batch_size"`
}

// NotesConfig holds the drop-folder import settings. Files appearing in the
// directories are imported as knowledge notes for ProjectID and indexed.
type NotesConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	ProjectID   int64    `yaml:"project_id"`
}

// Load reads and parses the config file at path, applies defaults, and
// expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Notes.Directories {
		cfg.Notes.Directories[i] = expandPath(cfg.Notes.Directories[i], configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
