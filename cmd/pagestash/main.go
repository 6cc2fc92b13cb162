// Package main is the pagestash CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/pagestash/internal/capture"
	"github.com/hyperjump/pagestash/internal/config"
	"github.com/hyperjump/pagestash/internal/server"
	"github.com/hyperjump/pagestash/internal/watcher"
	"github.com/hyperjump/pagestash/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/pagestash/config.yaml"

// loadConfig loads config from path. When path is the default, PAGESTASH_CONFIG
// wins, then config.yaml in the current directory (for development). A missing
// default file is not an error: built-in defaults are used and the returned
// path is empty.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if env := os.Getenv(config.EnvConfigPath); env != "" {
			path = env
		} else if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				path = fallback
			}
		}
		if path == defaultConfigPath {
			if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
				return config.Default(), "", nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// commonFlags are accepted by every command that opens local state.
type commonFlags struct {
	configPath *string
	debug      *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

// open loads config and initializes components for a one-shot command,
// exiting on failure. mutate may adjust the config before components are built.
func (f commonFlags) open(mutate func(*config.Config)) *Components {
	cfg, _, err := loadConfig(*f.configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	if mutate != nil {
		mutate(cfg)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || *f.debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	return components
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// reorderArgs moves any flags (and their values) that appear after the
// positional arguments to the front so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument.
func reorderArgs(args []string) []string {
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

// subcommand splits "<sub> [args...]" and exits with usage when sub is missing.
func subcommand(args []string, usage string) (string, []string) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fmt.Println(usage)
		os.Exit(1)
	}
	return args[0], reorderArgs(args[1:])
}

func main() {
	if err := config.LoadEnvFiles(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "server":
		runServer(args)
	case "capture":
		runCapture(args)
	case "search":
		runSearch(args)
	case "collections":
		runCollections(args)
	case "servers":
		runServers(args)
	case "select":
		runSelect(args)
	case "documents":
		runDocuments(args)
	case "pages":
		runPages(args)
	case "models":
		runModels(args)
	case "test":
		runTest(args)
	case "inspect":
		runInspect(args)
	case "status":
		runStatus(args)
	case "version", "--version", "-v":
		fmt.Printf("pagestash version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	common := addCommonFlags(fs)
	_ = fs.Parse(args)

	cfg, source, err := loadConfig(*common.configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	verbose := cfg.Debug || *common.debug
	logger, err := utils.NewLogger(verbose)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if source == "" {
		source = "built-in defaults"
	}
	logger.Info("starting pagestash",
		zap.String("version", version),
		zap.String("config", source),
		zap.Bool("debug", verbose),
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	for u, err := range components.Registry.RefreshAll(ctx) {
		logger.Warn("collection refresh failed", zap.String("server", u), zap.Error(err))
	}

	go components.Janitor.Run(ctx)

	var watchSvc server.WatchService
	if len(cfg.Watch.Directories) > 0 {
		inbox := watcher.NewInbox(components.Capture, func(ctx context.Context) (*capture.Request, error) {
			return components.CaptureTarget(ctx, "", nil)
		}, logger)
		w := watcher.NewWatcher(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			inbox.Handler(ctx),
			watcher.WithLogger(logger),
			watcher.WithDebounce(cfg.Watch.Debounce()),
		)
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
		if cfg.Watch.CaptureExisting {
			go w.SyncExisting()
		}
		watchSvc = w
	}

	srv := server.NewServer(components.Services(watchSvc), cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	sig := <-stop

	logger.Info("shutting down", zap.String("signal", sig.String()))
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func printUsage() {
	fmt.Println(`pagestash - Capture web pages into Chroma collections and search them

Usage:
  pagestash server [flags]                           Start the local HTTP API
  pagestash capture page [flags] <url|file>          Capture a full page
  pagestash capture selection [flags] [text...]      Capture selected text (stdin when no text)
  pagestash search [flags] <query>                   Search the search selection
  pagestash collections <list|refresh|create|delete> [name]
  pagestash servers <list|add|remove> [url] [name]
  pagestash select <capture|search> [names...]       Show or set a collection selection
  pagestash documents <list|delete|clear> <collection> [id]
  pagestash pages <list|prune|clear|export|import> [file]
  pagestash models [flags]                           List embedding models on the Ollama server
  pagestash test [flags]                             Test the Ollama and Chroma connections
  pagestash inspect [flags] <url|file>               Show what a capture would extract
  pagestash status [flags]                           Show local state
  pagestash version                                  Show version
  pagestash help                                     Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/pagestash/config.yaml,
                     or $PAGESTASH_CONFIG, or ./config.yaml)
  --debug            Enable debug logging
  --server string    Chroma server URL (default: the server in settings)
  --output string    Output format: text or json (default: text)

Capture Flags:
  --collections string   Comma-separated collections (default: the capture selection)
  --main-content         Keep only the main content of the page
  --url string           Source URL of a selection (required for selection)
  --title string         Title of a selection

Search Flags:
  --collections string   Comma-separated collections (default: the search selection)
  --api string           pagestash API URL; search through a running server instead

Environment:
  PAGESTASH_CONFIG, PAGESTASH_OLLAMA_URL, PAGESTASH_CHROMA_URL,
  PAGESTASH_EMBED_MODEL, PAGESTASH_DB_PATH (also read from ./.env)

Examples:
  pagestash server
  pagestash collections create research
  pagestash select capture research
  pagestash capture page https://go.dev/doc/effective_go
  pagestash capture page ~/Downloads/article.html
  echo "channels are typed conduits" | pagestash capture selection --url https://go.dev/tour
  pagestash search goroutine leaks
  pagestash search --output json --collections research,notes "context cancellation"
  pagestash pages prune`)
}
