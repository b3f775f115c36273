// Package main is the Kotae CLI entry point.
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
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

var httpClient = &http.Client{Timeout: 30 * time.Second}

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if it exists, so running from a project dir uses its config.
// Returns the config and the path that was actually loaded.
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
	case "search":
		runSearch()
	case "context":
		runContext()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// openEngine loads config, builds a logger and starts the retrieval engine.
// The returned cleanup closes the engine and flushes the logger.
func openEngine(configPath string, debugFlag bool) (*retrieval.Engine, *config.Config, *zap.Logger, func(), error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create logger: %w", err)
	}
	logger.Info("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	engine, err := retrieval.NewEngine(context.Background(), cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, nil, fmt.Errorf("initialize engine: %w", err)
	}
	cleanup := func() {
		if err := engine.Close(); err != nil {
			logger.Warn("engine close failed", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return engine, cfg, logger, cleanup, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	engine, cfg, logger, cleanup, err := openEngine(*configPath, *debug)
	if err != nil {
		fmt.Printf("Failed to start: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if !engine.Ready() {
		logger.Warn("vector search unavailable, serving substring fallback only",
			zap.String("reason", engine.Readiness(context.Background()).Reason),
			zap.Bool("faiss_available", vector.IsFAISSAvailable()))
	}

	srv := server.NewServer(engine, &cfg.Server, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
			return
		}
	}

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kotae %s [flags] <query>\n\n", fs.Name())
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Queries without an IVF or fertility keyword return no results.

Examples:
  kotae %[1]s ivf success rates
  kotae %[1]s --k 3 "embryo transfer day five"
  kotae %[1]s --server http://localhost:8080 --output json egg retrieval cost
`, fs.Name())
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package stops
// at the first non-flag argument.
func searchArgsReorder(args []string) []string {
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

type queryFlags struct {
	fs         *flag.FlagSet
	configPath *string
	serverURL  *string
	k          *int
	output     *string
}

func parseQueryFlags(name string, args []string) (*queryFlags, *models.SearchQuery, cli.OutputFormat) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	qf := &queryFlags{
		fs:         fs,
		configPath: fs.String("config", defaultConfigPath, "config file path (direct mode)"),
		serverURL:  fs.String("server", "", "server URL; empty runs the engine in-process"),
		k:          fs.Int("k", 0, "number of results (0 = configured top_k)"),
		output:     fs.String("output", "text", "output format: text or json"),
	}
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(args))

	query := &models.SearchQuery{Query: buildSearchQuery(fs.Args()), K: *qf.k}
	if err := query.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*qf.output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return qf, query, format
}

func runSearch() {
	qf, query, format := parseQueryFlags("search", os.Args[2:])

	var outcome *retrieval.Outcome
	if *qf.serverURL != "" {
		res, err := searchViaHTTP(context.Background(), *qf.serverURL, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		outcome = res
	} else {
		engine, _, _, cleanup, err := openEngine(*qf.configPath, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		res := engine.SearchDetailed(context.Background(), query.Query, query.K)
		outcome = &res
	}
	if err := cli.WriteSearchResults(os.Stdout, outcome, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runContext() {
	qf, query, format := parseQueryFlags("context", os.Args[2:])

	var block string
	if *qf.serverURL != "" {
		res, err := contextViaHTTP(context.Background(), *qf.serverURL, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Context failed: %v\n", err)
			os.Exit(1)
		}
		block = res
	} else {
		engine, _, _, cleanup, err := openEngine(*qf.configPath, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Context failed: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		block = retrieval.FormatContext(engine.Search(context.Background(), query.Query, query.K))
	}
	if err := cli.WriteContext(os.Stdout, block, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func postJSON(ctx context.Context, url string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func searchViaHTTP(ctx context.Context, serverURL string, query *models.SearchQuery) (*retrieval.Outcome, error) {
	var outcome retrieval.Outcome
	if err := postJSON(ctx, strings.TrimRight(serverURL, "/")+"/api/v1/search", query, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

func contextViaHTTP(ctx context.Context, serverURL string, query *models.SearchQuery) (string, error) {
	var out struct {
		Context string `json:"context"`
	}
	if err := postJSON(ctx, strings.TrimRight(serverURL, "/")+"/api/v1/context", query, &out); err != nil {
		return "", err
	}
	return out.Context, nil
}

// readinessViaHTTP reads GET /ready. A 503 still carries a readiness body.
func readinessViaHTTP(ctx context.Context, serverURL string) (*retrieval.Readiness, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(serverURL, "/")+"/ready", nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var r retrieval.Readiness
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &r, nil
}

// buildStatusReport combines engine readiness with on-disk sizes of the data files.
func buildStatusReport(ctx context.Context, engine *retrieval.Engine, cfg *config.Config) *cli.StatusReport {
	report := &cli.StatusReport{
		Ready:     engine.Ready(),
		Readiness: engine.Readiness(ctx),
		Config:    statusConfig(cfg),
	}
	if n, err := engine.PassageCount(ctx); err == nil {
		report.Passages = &n
	}
	paths := []string{cfg.Index.Path, cfg.Index.IDMapPath}
	if cfg.Storage.Driver == config.DriverSQLite {
		paths = append(paths, cfg.Storage.DatabasePath)
	}
	if usage, total, err := storage.DiskUsage(paths...); err == nil {
		report.Disk = usage
		report.DiskUsageBytes = &total
	}
	return report
}

func statusConfig(cfg *config.Config) *cli.StatusConfig {
	return &cli.StatusConfig{
		IndexType:           cfg.Index.Type,
		IndexPath:           cfg.Index.Path,
		Metric:              cfg.Index.Metric,
		EmbeddingProvider:   cfg.Embedding.Provider,
		EmbeddingDimensions: cfg.Embedding.Dimensions,
		StorageDriver:       cfg.Storage.Driver,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		TopK:                cfg.Retrieval.TopK,
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL; empty inspects the local data files")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var report *cli.StatusReport
	if *serverURL != "" {
		r, err := readinessViaHTTP(context.Background(), *serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		report = &cli.StatusReport{Ready: r.IndexLoaded && r.VectorSearchEnabled, Readiness: *r}
	} else {
		engine, cfg, _, cleanup, err := openEngine(*configPath, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		report = buildStatusReport(context.Background(), engine, cfg)
	}
	if err := cli.WriteStatus(os.Stdout, report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`kotae - IVF domain retrieval service

Usage:
  kotae server [flags]            Start the HTTP server
  kotae search [flags] <query>    Retrieve ranked passages
  kotae context [flags] <query>   Print the formatted context block for a query
  kotae status [flags]            Show index, id map and store readiness
  kotae version                   Show version
  kotae help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Search / Context Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL; when empty the engine runs in-process
  --k int            Number of results (default: retrieval.top_k from config)
  --output string    Output format: text or json (default: text)

Status Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL; reads GET /ready instead of local files
  --output string    Output format: text or json (default: text)

Examples:
  kotae server
  kotae search "ivf success rates"
  kotae search --k 3 --output json embryo grading
  kotae context egg retrieval cost
  kotae status --output json`)
}
