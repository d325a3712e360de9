// Command kioku runs the semantic recall server for the novel-writing studio
// and provides a CLI for querying it.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noveldesk/kioku/internal/config"
	"github.com/noveldesk/kioku/internal/embedding"
	"github.com/noveldesk/kioku/internal/indexing"
	"github.com/noveldesk/kioku/internal/models"
	"github.com/noveldesk/kioku/internal/repository"
	"github.com/noveldesk/kioku/internal/search"
	"github.com/noveldesk/kioku/internal/server"
	"github.com/noveldesk/kioku/internal/vectorstore"
	"github.com/noveldesk/kioku/internal/watcher"
	"github.com/noveldesk/kioku/pkg/utils"
)

var version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "server":
		err = runServer(os.Args[2:])
	case "search":
		err = runSearch(os.Args[2:])
	case "similar":
		err = runSimilar(os.Args[2:])
	case "index":
		err = runIndex(os.Args[2:])
	case "reindex":
		err = runReindex(os.Args[2:])
	case "similarity":
		err = runSimilarity(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "version":
		fmt.Printf("kioku %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`kioku - semantic recall for your manuscripts

Usage:
  kioku server     [-config path]                     run the API server
  kioku search     [-addr url] -project id <query>    semantic search
  kioku similar    [-addr url] -project id -type t -id eid   related entities
  kioku index      [-addr url] -type knowledge|chapter -id eid  index one entity
  kioku reindex    [-addr url] -project id            rebuild a project's index
  kioku similarity [-addr url] <text1> <text2>        compare two texts
  kioku status     [-addr url] -project id            index status
  kioku version                                       print version`)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	for _, candidate := range []string{"./kioku.yaml", "./config.yaml"} {
		if _, err := os.Stat(candidate); err == nil {
			return config.Load(candidate)
		}
	}
	return config.Default(), nil
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	repo, err := repository.NewSQLiteRepository(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer repo.Close()

	// The vector store shares the repository's connection so entities and
	// their vectors live in one file.
	store, err := vectorstore.NewSQLiteStoreFromDB(repo.DB())
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}

	provider := newProvider(cfg, logger)
	cache := vectorstore.NewCache(cfg.Search.VectorCacheCapacity)
	engine := search.NewEngine(store, provider, cache, search.WithLogger(logger))
	coordinator := indexing.NewCoordinator(store, cache, provider, repo, repo,
		indexing.WithLogger(logger),
		indexing.WithBatchSizes(cfg.Index.KnowledgeBatchSize, cfg.Index.ChapterBatchSize))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.Notes.Directories) > 0 {
		w, err := watcher.New(cfg.Notes.Directories, cfg.Notes.Extensions, cfg.Notes.ProjectID,
			repo, coordinator, logger)
		if err != nil {
			return fmt.Errorf("failed to create notes watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start notes watcher: %w", err)
		}
		defer w.Stop()
	}

	srv := server.New(engine, coordinator, provider, store, cache, cfg, logger)
	logger.Info("starting kioku",
		zap.String("version", version),
		zap.String("database", cfg.Storage.DatabasePath),
		zap.Int("dimensions", cfg.Embedding.Dimensions))
	return srv.Start(ctx)
}

// newProvider builds the embedding provider. The ONNX model loads lazily on
// first use; when no model is configured the deterministic mock is used.
func newProvider(cfg *config.Config, logger *zap.Logger) *embedding.Provider {
	if cfg.Embedding.UseMock || cfg.Embedding.ModelPath == "" {
		logger.Warn("using mock embedder; similarity scores are not meaningful")
		return embedding.NewProviderWith(embedding.NewMockEmbedder(cfg.Embedding.Dimensions))
	}
	return embedding.NewProvider(cfg.Embedding.Dimensions, func() (embedding.Embedder, error) {
		return embedding.NewONNXEmbedder(cfg.Embedding.ModelPath, cfg.Embedding.Dimensions, cfg.Embedding.MaxTokens)
	})
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	addr := fs.String("addr", "http://127.0.0.1:8791", "server address")
	project := fs.Int64("project", 0, "project id")
	limit := fs.Int("limit", 0, "max results")
	minSim := fs.Float64("min", -1, "minimum similarity (default 0.5)")
	mode := fs.String("mode", "", "search mode: exact, similar, serendipity")
	types := fs.String("types", "", "comma-separated entity types")
	fs.Parse(args)

	if *project <= 0 {
		return fmt.Errorf("-project is required")
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("query text is required")
	}

	body := map[string]interface{}{"query": fs.Arg(0)}
	if *limit > 0 {
		body["limit"] = *limit
	}
	if *minSim >= 0 {
		body["min_similarity"] = *minSim
	}
	if *mode != "" {
		body["mode"] = *mode
	}
	if *types != "" {
		body["entity_types"] = splitCSV(*types)
	}

	var resp struct {
		Results []models.SearchResult `json:"results"`
		Count   int                   `json:"count"`
	}
	url := fmt.Sprintf("%s/api/v1/projects/%d/search", *addr, *project)
	if err := postJSON(url, body, &resp); err != nil {
		return err
	}
	printResults(resp.Results)
	return nil
}

func runSimilar(args []string) error {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	addr := fs.String("addr", "http://127.0.0.1:8791", "server address")
	project := fs.Int64("project", 0, "project id")
	entityType := fs.String("type", "", "entity type")
	entityID := fs.String("id", "", "entity id")
	limit := fs.Int("limit", 0, "max results")
	fs.Parse(args)

	if *project <= 0 || *entityType == "" || *entityID == "" {
		return fmt.Errorf("-project, -type, and -id are required")
	}

	body := map[string]interface{}{}
	if *limit > 0 {
		body["limit"] = *limit
	}

	var resp struct {
		Results []models.SearchResult `json:"results"`
	}
	url := fmt.Sprintf("%s/api/v1/projects/%d/similar/%s/%s", *addr, *project, *entityType, *entityID)
	if err := postJSON(url, body, &resp); err != nil {
		return err
	}
	printResults(resp.Results)
	return nil
}

func runIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	addr := fs.String("addr", "http://127.0.0.1:8791", "server address")
	entityType := fs.String("type", "", "entity type: knowledge or chapter")
	entityID := fs.String("id", "", "entity id")
	fs.Parse(args)

	var path string
	switch *entityType {
	case "knowledge":
		path = fmt.Sprintf("/api/v1/knowledge/%s/index", *entityID)
	case "chapter":
		path = fmt.Sprintf("/api/v1/chapters/%s/index", *entityID)
	default:
		return fmt.Errorf("-type must be knowledge or chapter")
	}
	if *entityID == "" {
		return fmt.Errorf("-id is required")
	}

	var resp map[string]string
	if err := postJSON(*addr+path, map[string]interface{}{}, &resp); err != nil {
		return err
	}
	fmt.Printf("indexed %s %s\n", *entityType, *entityID)
	return nil
}

func runReindex(args []string) error {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	addr := fs.String("addr", "http://127.0.0.1:8791", "server address")
	project := fs.Int64("project", 0, "project id")
	fs.Parse(args)

	if *project <= 0 {
		return fmt.Errorf("-project is required")
	}

	var resp map[string]interface{}
	url := fmt.Sprintf("%s/api/v1/projects/%d/reindex", *addr, *project)
	if err := postJSON(url, map[string]interface{}{}, &resp); err != nil {
		return err
	}
	fmt.Printf("reindexed project %d\n", *project)
	return nil
}

func runSimilarity(args []string) error {
	fs := flag.NewFlagSet("similarity", flag.ExitOnError)
	addr := fs.String("addr", "http://127.0.0.1:8791", "server address")
	fs.Parse(args)

	if fs.NArg() < 2 {
		return fmt.Errorf("two texts are required")
	}

	var resp struct {
		Similarity float64 `json:"similarity"`
	}
	body := map[string]interface{}{"text1": fs.Arg(0), "text2": fs.Arg(1)}
	if err := postJSON(*addr+"/api/v1/similarity", body, &resp); err != nil {
		return err
	}
	fmt.Printf("%.4f\n", resp.Similarity)
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", "http://127.0.0.1:8791", "server address")
	project := fs.Int64("project", 0, "project id")
	fs.Parse(args)

	if *project <= 0 {
		return fmt.Errorf("-project is required")
	}

	url := fmt.Sprintf("%s/api/v1/projects/%d/status", *addr, *project)
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("server not reachable at %s: %w", *addr, err)
	}
	defer resp.Body.Close()

	var status struct {
		ProjectID     int64 `json:"project_id"`
		DocumentCount int64 `json:"document_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return err
	}
	fmt.Printf("project %d: %d documents indexed\n", status.ProjectID, status.DocumentCount)
	return nil
}

func postJSON(url string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("server not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printResults(results []models.SearchResult) {
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	for i, r := range results {
		snippet := r.Content
		if len(snippet) > 120 {
			snippet = snippet[:120] + "..."
		}
		fmt.Printf("%2d. [%.4f] %s/%s\n    %s\n", i+1, r.Similarity, r.EntityType, r.EntityID, snippet)
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
