package config

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in zero-valued fields of cfg with the built-in defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8791
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./kioku.db"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 512
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.DefaultMinSimilarity == 0 {
		cfg.Search.DefaultMinSimilarity = 0.5
	}
	if cfg.Search.VectorCacheCapacity == 0 {
		cfg.Search.VectorCacheCapacity = 1000
	}
	if cfg.Index.KnowledgeBatchSize == 0 {
		cfg.Index.KnowledgeBatchSize = 10
	}
	if cfg.Index.ChapterBatchSize == 0 {
		cfg.Index.ChapterBatchSize = 5
	}
	if len(cfg.Notes.Extensions) == 0 {
		cfg.Notes.Extensions = []string{".md", ".txt"}
	}
	if cfg.Notes.ProjectID == 0 {
		cfg.Notes.ProjectID = 1
	}
}
