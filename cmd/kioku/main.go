// Package main is the Kioku CLI entry point.
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
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/lucidmem/kioku/internal/classifier"
	"github.com/lucidmem/kioku/internal/config"
	"github.com/lucidmem/kioku/internal/confidence"
	"github.com/lucidmem/kioku/internal/embedding"
	"github.com/lucidmem/kioku/internal/fusion"
	"github.com/lucidmem/kioku/internal/ingest"
	"github.com/lucidmem/kioku/internal/keyword"
	"github.com/lucidmem/kioku/internal/layer"
	"github.com/lucidmem/kioku/internal/models"
	"github.com/lucidmem/kioku/internal/orchestrator"
	"github.com/lucidmem/kioku/internal/server"
	"github.com/lucidmem/kioku/internal/store"
	"github.com/lucidmem/kioku/internal/vector"
	"github.com/lucidmem/kioku/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kioku/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "kioku server" from the project dir uses the project's
// config (including debug). Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "retrieve":
		runRetrieve()
	case "remember":
		runRemember()
	case "forget":
		runForget()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kioku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`kioku - layered memory retrieval service

Usage:
  kioku <command> [flags]

Commands:
  server     Start the retrieval HTTP server
  retrieve   Query the memory layers
  remember   Store one memory record
  forget     Delete one memory record
  status     Show per-layer record counts
  version    Print version
  help       Show this help

Run 'kioku <command> -h' for command flags.`)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (classification, cascade steps, layer timings)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	reloadCtx, reloadCancel := context.WithCancel(context.Background())
	defer reloadCancel()
	if cfg.RulesPath != "" {
		reloader := classifier.NewReloader(cfg.RulesPath, components.Classifier, logger)
		if err := reloader.Start(reloadCtx); err != nil {
			logger.Warn("rule reloader disabled", zap.String("path", cfg.RulesPath), zap.Error(err))
		} else {
			defer reloader.Stop()
		}
	}

	srv := server.NewServer(
		components.Orchestrator,
		components.Ingestor,
		components.Store,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.VectorIndexPath != "" {
		if err := components.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// Components holds the wired service graph for one process.
type Components struct {
	Store        *store.SQLite
	Embedder     embedding.Embedder
	VectorIndex  vector.Index
	KeywordIndex keyword.Index
	Classifier   *classifier.Classifier
	Orchestrator *orchestrator.Orchestrator
	Ingestor     *ingest.Ingestor
}

// Close releases the storage and index handles.
func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}

	var embedder embedding.Embedder = embedding.NewHashEmbedder(cfg.Embedding.Dimensions)
	if cfg.Embedding.ModelPath != "" {
		onnxEmbedder, err := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
			cfg.Embedding.CacheSize,
		)
		if err != nil {
			logger.Warn("ONNX embedder unavailable, using hash embedder", zap.Error(err))
		} else {
			embedder = onnxEmbedder
		}
	}

	vectorIndex, err := vector.NewMemoryIndex(cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	ingestor := ingest.New(st, embedder, vectorIndex, keywordIndex, logger)

	// The vector index is memory-resident; load the snapshot if present,
	// otherwise rebuild it from the fact table.
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := vectorIndex.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load failed, rebuilding",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}
	if vectorIndex.Size() == 0 {
		if err := ingestor.Rebuild(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to rebuild fact indices: %w", err)
		}
	}
	logger.Info("vector index ready", zap.Int("vectors", vectorIndex.Size()))

	meta := layer.NewMeta(st)
	adapters := map[models.LayerID]layer.Adapter{
		models.LayerEpisodic:    layer.NewEpisodic(st),
		models.LayerSemantic:    layer.NewSemantic(embedder, vectorIndex, st),
		models.LayerLexical:     layer.NewLexical(keywordIndex, st),
		models.LayerProcedural:  layer.NewProcedural(st),
		models.LayerProspective: layer.NewProspective(st),
		models.LayerGraph:       layer.NewGraph(st),
		models.LayerMeta:        meta,
	}

	rules := classifier.DefaultRules()
	if cfg.RulesPath != "" {
		loaded, err := classifier.LoadRules(cfg.RulesPath)
		if err != nil {
			logger.Warn("rule table load failed, using defaults",
				zap.String("path", cfg.RulesPath), zap.Error(err))
		} else {
			rules = loaded
		}
	}
	cls := classifier.New(rules)

	fuser := fusion.NewEngine(cfg.Retrieval.RRFKappa)
	scorer := confidence.NewScorer(&cfg.Retrieval, meta.DomainExpertise)
	orch := orchestrator.New(cls, adapters, fuser, scorer, &cfg.Retrieval, logger)

	return &Components{
		Store:        st,
		Embedder:     embedder,
		VectorIndex:  vectorIndex,
		KeywordIndex: keywordIndex,
		Classifier:   cls,
		Orchestrator: orch,
		Ingestor:     ingestor,
	}, nil
}

// buildQueryText joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQueryText(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// retrieveRequest mirrors the server's POST /api/v1/retrieve body.
type retrieveRequest struct {
	Text       string   `json:"text"`
	K          int      `json:"k,omitempty"`
	Fields     []string `json:"fields,omitempty"`
	DeadlineMS int64    `json:"deadline_ms,omitempty"`
	Explain    *bool    `json:"explain,omitempty"`
	Exhaustive bool     `json:"exhaustive,omitempty"`
}

func runRetrieve() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8090", "server URL")
	k := fs.Int("k", 0, "number of results (0 = server default)")
	deadlineMS := fs.Int64("deadline-ms", 0, "overall deadline in milliseconds (0 = server default)")
	explain := fs.Bool("explain", true, "include the decision trail")
	exhaustive := fs.Bool("exhaustive", false, "cascade through every fallback layer regardless of confidence")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kioku retrieve [flags] <query>")
		fs.PrintDefaults()
		os.Exit(1)
	}
	queryText := buildQueryText(fs.Args())
	if queryText == "" {
		fmt.Fprintln(os.Stderr, "Usage: kioku retrieve [flags] <query>")
		os.Exit(1)
	}

	req := &retrieveRequest{
		Text:       queryText,
		K:          *k,
		DeadlineMS: *deadlineMS,
		Explain:    explain,
		Exhaustive: *exhaustive,
	}
	resp, err := retrieveViaHTTP(*serverURL, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retrieve failed: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	printRetrieveText(resp)
}

func retrieveViaHTTP(serverURL string, req *retrieveRequest) (*models.RetrievalResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/retrieve", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out models.RetrievalResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func printRetrieveText(resp *models.RetrievalResponse) {
	if resp.Explanation != nil {
		fmt.Printf("query type: %s\n", resp.Explanation.QueryType)
		layers := make([]string, 0, len(resp.Explanation.LayersSearched))
		for _, l := range resp.Explanation.LayersSearched {
			layers = append(layers, string(l))
		}
		fmt.Printf("layers searched: %s\n", strings.Join(layers, ", "))
		for _, step := range resp.Explanation.CascadePath {
			fmt.Printf("cascade: %s (%s, confidence %.2f)\n",
				step.Layer, step.Reason, step.TriggeringConfidence)
		}
		for _, e := range resp.Explanation.Errors {
			fmt.Printf("layer error: %s (%s)\n", e.Layer, e.Kind)
		}
	}
	if resp.Partial {
		fmt.Println("(partial results: deadline expired)")
	}
	if resp.TotalResults() == 0 {
		fmt.Println("no results")
		return
	}

	layerIDs := make([]string, 0, len(resp.Results))
	for l := range resp.Results {
		layerIDs = append(layerIDs, string(l))
	}
	sort.Strings(layerIDs)
	for _, l := range layerIDs {
		fmt.Printf("\n[%s]\n", l)
		for _, r := range resp.Results[models.LayerID(l)] {
			content := r.Content
			if len(content) > 120 {
				content = content[:117] + "..."
			}
			fmt.Printf("  %d. %s\n     confidence %.2f (%s)\n",
				r.FusionRank+1, content, r.Confidence.Overall, r.Confidence.Level)
		}
	}
	fmt.Printf("\n%d results in %dms\n", resp.TotalResults(), resp.QueryTime)
}

func runRemember() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("remember", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8090", "server URL")
	layerName := fs.String("layer", "semantic", "target layer")
	tags := fs.String("tags", "", "comma-separated tags")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kioku remember [flags] <content>")
		fs.PrintDefaults()
		os.Exit(1)
	}
	content := buildQueryText(fs.Args())

	input := &models.MemoryInput{
		Layer:   models.LayerID(*layerName),
		Content: content,
	}
	if *tags != "" {
		for _, t := range strings.Split(*tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				input.Tags = append(input.Tags, t)
			}
		}
	}

	body, err := json.Marshal(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Remember failed: %v\n", err)
		os.Exit(1)
	}
	resp, err := http.Post(*serverURL+"/api/v1/memories", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Remember failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		fmt.Fprintf(os.Stderr, "server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	fmt.Println(strings.TrimSpace(string(b)))
}

func runForget() {
	fs := flag.NewFlagSet("forget", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8090", "server URL")
	layerName := fs.String("layer", "", "layer holding the record")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 || *layerName == "" {
		fmt.Fprintln(os.Stderr, "Usage: kioku forget -layer <layer> <id>")
		os.Exit(1)
	}
	id := fs.Arg(0)

	url := fmt.Sprintf("%s/api/v1/memories/%s/%s", *serverURL, *layerName, id)
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Forget failed: %v\n", err)
		os.Exit(1)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Forget failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	fmt.Printf("deleted %s/%s\n", *layerName, id)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8090", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}

	var status struct {
		Status string         `json:"status"`
		Layers map[string]int `json:"layers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "decode response: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(status)
		return
	}
	fmt.Printf("status: %s\n", status.Status)
	names := make([]string, 0, len(status.Layers))
	for l := range status.Layers {
		names = append(names, l)
	}
	sort.Strings(names)
	total := 0
	for _, l := range names {
		fmt.Printf("  %-12s %d\n", l, status.Layers[l])
		total += status.Layers[l]
	}
	fmt.Printf("  %-12s %d\n", "total", total)
}
