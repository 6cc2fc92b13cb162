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
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hyperjump/pagestash/internal/capture"
	"github.com/hyperjump/pagestash/internal/cli"
	"github.com/hyperjump/pagestash/internal/config"
	"github.com/hyperjump/pagestash/internal/embedding"
	"github.com/hyperjump/pagestash/internal/extract"
	"github.com/hyperjump/pagestash/internal/models"
	"github.com/hyperjump/pagestash/internal/search"
	"github.com/hyperjump/pagestash/internal/storage"
	"github.com/hyperjump/pagestash/internal/vectorstore"
)

func outputFlag(fs *flag.FlagSet) *string {
	return fs.String("output", "text", "output format: text or json")
}

func parseOutput(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fatalf("%v", err)
	}
	return format
}

// pageSource picks the source for a page capture: an existing file, or a URL.
func pageSource(arg string) capture.Source {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return &capture.FileSource{Path: arg}
	}
	return &capture.URLSource{URL: arg}
}

func runCapture(args []string) {
	mode, rest := subcommand(args, "Usage: pagestash capture <page|selection> [flags] ...")
	fs := flag.NewFlagSet("capture "+mode, flag.ExitOnError)
	common := addCommonFlags(fs)
	serverURL := fs.String("server", "", "Chroma server URL (default: settings)")
	collections := fs.String("collections", "", "comma-separated collections (default: capture selection)")
	mainContent := fs.Bool("main-content", false, "keep only the main content of the page")
	pageURL := fs.String("url", "", "source URL of the selection")
	title := fs.String("title", "", "title of the selection")
	outputFormat := outputFlag(fs)
	_ = fs.Parse(rest)
	format := parseOutput(*outputFormat)

	components := common.open(func(cfg *config.Config) {
		if *mainContent {
			cfg.Capture.MainContentOnly = true
		}
	})
	defer components.Close()
	ctx := context.Background()

	req, err := components.CaptureTarget(ctx, *serverURL, splitList(*collections))
	if err != nil {
		fatalf("Capture failed: %v", err)
	}
	switch mode {
	case "page":
		if fs.NArg() < 1 {
			fatalf("Usage: pagestash capture page [flags] <url|file>")
		}
		req.Mode = models.CaptureModePage
		req.Source = pageSource(fs.Arg(0))
	case "selection":
		req.Mode = models.CaptureModeSelection
		var reader io.Reader = os.Stdin
		if fs.NArg() > 0 {
			reader = strings.NewReader(strings.Join(fs.Args(), " "))
		}
		req.Source = &capture.TextSource{URL: *pageURL, Title: *title, Reader: reader}
	default:
		fatalf("Unknown capture mode: %s", mode)
	}

	res, err := components.Capture.Capture(ctx, req)
	if err != nil {
		fatalf("Capture failed: %v", err)
	}
	if err := cli.WriteCaptureResult(os.Stdout, res, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	common := addCommonFlags(fs)
	serverURL := fs.String("server", "", "Chroma server URL (default: settings)")
	collections := fs.String("collections", "", "comma-separated collections (default: search selection)")
	apiURL := fs.String("api", "", "pagestash API URL; when set the search goes through a running server")
	snippets := fs.Bool("snippets", false, "shorten each document to a snippet")
	outputFormat := outputFlag(fs)
	_ = fs.Parse(reorderArgs(args))
	format := parseOutput(*outputFormat)

	query := buildSearchQuery(fs.Args())
	if query == "" {
		fatalf("Usage: pagestash search [flags] <query>")
	}

	var response *models.SearchResponse
	if *apiURL != "" {
		res, err := searchViaHTTP(*apiURL, map[string]interface{}{
			"query":       query,
			"server":      *serverURL,
			"collections": splitList(*collections),
			"snippets":    *snippets,
		})
		if err != nil {
			fatalf("Search failed: %v", err)
		}
		response = res
	} else {
		components := common.open(nil)
		defer components.Close()
		ctx := context.Background()
		req, err := components.SearchRequest(ctx, query, *serverURL, splitList(*collections))
		if err != nil {
			fatalf("Search failed: %v", err)
		}
		if response, err = components.Search.Search(ctx, req); err != nil {
			fatalf("Search failed: %v", err)
		}
		if *snippets {
			for _, hit := range response.Results {
				hit.Document = search.Snippet(hit.Document, components.Config.Search.SnippetLength)
			}
		}
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func searchViaHTTP(apiURL string, body interface{}) (*models.SearchResponse, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(apiURL, "/")+"/api/v1/search", "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runCollections(args []string) {
	sub, rest := subcommand(args, "Usage: pagestash collections <list|refresh|create|delete> [flags] [name]")
	fs := flag.NewFlagSet("collections "+sub, flag.ExitOnError)
	common := addCommonFlags(fs)
	serverURL := fs.String("server", "", "Chroma server URL (default: settings)")
	kind := fs.String("kind", "capture", "selection marked in list output: capture or search")
	outputFormat := outputFlag(fs)
	_ = fs.Parse(rest)
	format := parseOutput(*outputFormat)

	components := common.open(nil)
	defer components.Close()
	ctx := context.Background()
	server, err := components.ServerURL(ctx, *serverURL)
	if err != nil {
		fatalf("Failed to load settings: %v", err)
	}

	switch sub {
	case "list", "refresh":
		cols, err := components.Registry.Refresh(ctx, server)
		if err != nil {
			fatalf("Refresh failed: %v", err)
		}
		selected := components.Registry.Selection(models.SelectionKind(*kind))
		if err := cli.WriteCollections(os.Stdout, server, cols, selected, format); err != nil {
			fatalf("Output failed: %v", err)
		}
	case "create":
		if fs.NArg() < 1 {
			fatalf("Usage: pagestash collections create <name>")
		}
		if _, err := components.Registry.Refresh(ctx, server); err != nil {
			fatalf("Refresh failed: %v", err)
		}
		col, err := components.Registry.CreateCollection(ctx, server, fs.Arg(0))
		if err != nil {
			fatalf("Create failed: %v", err)
		}
		fmt.Printf("Created collection %s (%s) on %s\n", col.Name, col.ID, server)
	case "delete":
		if fs.NArg() < 1 {
			fatalf("Usage: pagestash collections delete <name>")
		}
		if err := components.Registry.DeleteCollection(ctx, server, fs.Arg(0)); err != nil {
			fatalf("Delete failed: %v", err)
		}
		fmt.Printf("Deleted collection %s from %s\n", fs.Arg(0), server)
	default:
		fatalf("Unknown collections subcommand: %s", sub)
	}
}

func runServers(args []string) {
	sub, rest := subcommand(args, "Usage: pagestash servers <list|add|remove> [url] [name]")
	fs := flag.NewFlagSet("servers "+sub, flag.ExitOnError)
	common := addCommonFlags(fs)
	outputFormat := outputFlag(fs)
	_ = fs.Parse(rest)
	format := parseOutput(*outputFormat)

	components := common.open(nil)
	defer components.Close()
	ctx := context.Background()

	switch sub {
	case "list":
		if err := cli.WriteServers(os.Stdout, components.Registry.Servers(), format); err != nil {
			fatalf("Output failed: %v", err)
		}
	case "add":
		if fs.NArg() < 1 {
			fatalf("Usage: pagestash servers add <url> [name]")
		}
		srv, err := components.Registry.AddServer(ctx, fs.Arg(0), strings.Join(fs.Args()[1:], " "))
		if err != nil {
			fatalf("Add failed: %v", err)
		}
		fmt.Printf("Added: %s (%s)\n", srv.Name, srv.URL)
	case "remove":
		if fs.NArg() < 1 {
			fatalf("Usage: pagestash servers remove <url>")
		}
		if err := components.Registry.RemoveServer(ctx, fs.Arg(0)); err != nil {
			fatalf("Remove failed: %v", err)
		}
		fmt.Printf("Removed: %s\n", fs.Arg(0))
	default:
		fatalf("Unknown servers subcommand: %s", sub)
	}
}

func runSelect(args []string) {
	sub, rest := subcommand(args, "Usage: pagestash select <capture|search> [--clear] [names...]")
	fs := flag.NewFlagSet("select "+sub, flag.ExitOnError)
	common := addCommonFlags(fs)
	clearSelection := fs.Bool("clear", false, "clear the selection")
	_ = fs.Parse(rest)

	kind := models.SelectionKind(sub)
	if !kind.Valid() {
		fatalf("Unknown selection: %s (use capture or search)", sub)
	}
	components := common.open(nil)
	defer components.Close()

	if fs.NArg() > 0 || *clearSelection {
		if err := components.Registry.Select(context.Background(), kind, fs.Args()); err != nil {
			fatalf("Select failed: %v", err)
		}
	}
	names := components.Registry.Selection(kind)
	if len(names) == 0 {
		fmt.Printf("%s selection is empty\n", kind)
		return
	}
	fmt.Printf("%s: %s\n", kind, strings.Join(names, ", "))
}

func runDocuments(args []string) {
	sub, rest := subcommand(args, "Usage: pagestash documents <list|delete|clear> [flags] <collection> [id]")
	fs := flag.NewFlagSet("documents "+sub, flag.ExitOnError)
	common := addCommonFlags(fs)
	serverURL := fs.String("server", "", "Chroma server URL (default: settings)")
	limit := fs.Int("limit", 20, "documents to list")
	offset := fs.Int("offset", 0, "documents to skip")
	outputFormat := outputFlag(fs)
	_ = fs.Parse(rest)
	format := parseOutput(*outputFormat)

	if fs.NArg() < 1 {
		fatalf("Usage: pagestash documents %s <collection>", sub)
	}
	name := fs.Arg(0)
	components := common.open(nil)
	defer components.Close()
	ctx := context.Background()
	server, err := components.ServerURL(ctx, *serverURL)
	if err != nil {
		fatalf("Failed to load settings: %v", err)
	}
	store := components.Registry.Store(server)

	switch sub {
	case "list":
		res, err := store.GetDocuments(ctx, name, vectorstore.GetOptions{Limit: *limit, Offset: *offset})
		if err != nil {
			fatalf("List failed: %v", err)
		}
		writeDocuments(res, format)
	case "delete":
		if fs.NArg() < 2 {
			fatalf("Usage: pagestash documents delete <collection> <id>")
		}
		if err := store.DeleteDocument(ctx, name, fs.Arg(1)); err != nil {
			fatalf("Delete failed: %v", err)
		}
		fmt.Printf("Document deleted: %s\n", fs.Arg(1))
	case "clear":
		res, err := store.ClearCollection(ctx, name)
		if err != nil {
			fatalf("Clear failed: %v", err)
		}
		fmt.Printf("Cleared %s: %d deleted, %d failed\n", name, res.Deleted, res.Failed)
	default:
		fatalf("Unknown documents subcommand: %s", sub)
	}
}

func writeDocuments(res *vectorstore.GetResult, format cli.OutputFormat) {
	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}
	for i, id := range res.IDs {
		var md models.DocumentMetadata
		if i < len(res.Metadatas) {
			md = models.MetadataFromMap(res.Metadatas[i])
		}
		fmt.Printf("%s  %s\n", id, md.Title)
		if md.URL != "" {
			fmt.Printf("    %s\n", md.URL)
		}
		if i < len(res.Documents) {
			fmt.Printf("    %s\n", cli.TruncateWords(res.Documents[i], 20))
		}
	}
}

func runPages(args []string) {
	sub, rest := subcommand(args, "Usage: pagestash pages <list|prune|clear|export|import> [flags] [file]")
	fs := flag.NewFlagSet("pages "+sub, flag.ExitOnError)
	common := addCommonFlags(fs)
	limit := fs.Int("limit", 20, "records to list")
	offset := fs.Int("offset", 0, "records to skip")
	outputFormat := outputFlag(fs)
	_ = fs.Parse(rest)
	format := parseOutput(*outputFormat)

	components := common.open(nil)
	defer components.Close()
	ctx := context.Background()

	switch sub {
	case "list":
		pages, err := components.Storage.ListPages(ctx, *offset, *limit)
		if err != nil {
			fatalf("List failed: %v", err)
		}
		total, err := components.Storage.CountPages(ctx)
		if err != nil {
			fatalf("Count failed: %v", err)
		}
		if err := cli.WritePages(os.Stdout, pages, total, format); err != nil {
			fatalf("Output failed: %v", err)
		}
	case "prune":
		removed, err := components.Janitor.RunOnce(ctx)
		if err != nil {
			fatalf("Prune failed: %v", err)
		}
		fmt.Printf("Pruned %d records older than %d days\n", removed, components.Config.Housekeeping.RetentionDays)
	case "clear":
		removed, err := components.Storage.ClearPages(ctx)
		if err != nil {
			fatalf("Clear failed: %v", err)
		}
		fmt.Printf("Cleared %d records\n", removed)
	case "export":
		snap, err := components.Storage.Export(ctx)
		if err != nil {
			fatalf("Export failed: %v", err)
		}
		out := io.Writer(os.Stdout)
		if fs.NArg() > 0 {
			f, err := os.Create(fs.Arg(0))
			if err != nil {
				fatalf("Export failed: %v", err)
			}
			defer f.Close()
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			fatalf("Export failed: %v", err)
		}
	case "import":
		if fs.NArg() < 1 {
			fatalf("Usage: pagestash pages import <file>")
		}
		snap, err := readSnapshot(fs.Arg(0))
		if err != nil {
			fatalf("Import failed: %v", err)
		}
		if err := components.Storage.Import(ctx, snap); err != nil {
			fatalf("Import failed: %v", err)
		}
		fmt.Printf("Imported %d page records\n", len(snap.Pages))
	default:
		fatalf("Unknown pages subcommand: %s", sub)
	}
}

func readSnapshot(path string) (*storage.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var snap storage.Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func runModels(args []string) {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	common := addCommonFlags(fs)
	all := fs.Bool("all", false, "list every installed model, not only embedding models")
	_ = fs.Parse(args)

	components := common.open(nil)
	defer components.Close()
	ctx := context.Background()
	settings, err := components.Settings(ctx)
	if err != nil {
		fatalf("Failed to load settings: %v", err)
	}
	list, err := components.Ollama.ListModels(ctx, settings.OllamaURL)
	if err != nil {
		fatalf("List models failed: %v", err)
	}
	if !*all {
		list = embedding.EmbeddingModels(list)
	}
	current := settings.Model().Name()
	for _, m := range list {
		mark := " "
		if m.Name == current || strings.HasPrefix(m.Name, current+":") {
			mark = "*"
		}
		fmt.Printf("%s %s  %s\n", mark, m.Name, humanize.Bytes(uint64(m.Size)))
	}
}

func runTest(args []string) {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	common := addCommonFlags(fs)
	_ = fs.Parse(args)

	components := common.open(nil)
	defer components.Close()
	ctx := context.Background()
	settings, err := components.Settings(ctx)
	if err != nil {
		fatalf("Failed to load settings: %v", err)
	}

	failed := false
	if list, err := components.Ollama.TestConnection(ctx, settings.OllamaURL); err != nil {
		fmt.Printf("ollama  %s  FAILED: %v\n", settings.OllamaURL, err)
		failed = true
	} else {
		fmt.Printf("ollama  %s  ok (%d models)\n", settings.OllamaURL, len(list))
		if ok, err := components.Ollama.ModelExists(ctx, settings.OllamaURL, settings.Model().Name()); err == nil && !ok {
			fmt.Printf("        model %q is not installed; run 'ollama pull %s'\n", settings.Model().Name(), settings.Model().Name())
		}
	}
	for _, srv := range components.Registry.Servers() {
		info, err := components.Registry.Store(srv.URL).TestConnection(ctx)
		if err != nil {
			fmt.Printf("chroma  %s  FAILED: %v\n", srv.URL, err)
			failed = true
			continue
		}
		fmt.Printf("chroma  %s  ok (%s)\n", srv.URL, info.Endpoint)
	}
	if failed {
		os.Exit(1)
	}
}

// inspection is what a page capture of a source would extract.
type inspection struct {
	URL         string               `json:"url"`
	Title       string               `json:"title"`
	Metadata    extract.PageMetadata `json:"metadata"`
	Links       int                  `json:"links"`
	Images      int                  `json:"images"`
	Characters  int                  `json:"characters"`
	MainContent string               `json:"main_content"`
}

func inspect(content *capture.Content) *inspection {
	ex := extract.NewExtractor()
	title := content.Title
	if title == "" {
		title = extract.ExtractTitle(content.Body)
	}
	return &inspection{
		URL:         content.URL,
		Title:       title,
		Metadata:    extract.ExtractMetadata(content.Body),
		Links:       len(extract.ExtractLinks(content.Body)),
		Images:      len(extract.ExtractImages(content.Body)),
		Characters:  len([]rune(ex.Clean(content.Body))),
		MainContent: ex.MainContent(content.Body),
	}
}

func runInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	outputFormat := outputFlag(fs)
	_ = fs.Parse(reorderArgs(args))
	format := parseOutput(*outputFormat)
	if fs.NArg() < 1 {
		fatalf("Usage: pagestash inspect [flags] <url|file>")
	}

	content, err := pageSource(fs.Arg(0)).Content(context.Background(), models.CaptureModePage)
	if err != nil {
		fatalf("Inspect failed: %v", err)
	}
	res := inspect(content)
	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}
	fmt.Printf("url:          %s\n", res.URL)
	fmt.Printf("title:        %s\n", res.Title)
	if res.Metadata.Description != "" {
		fmt.Printf("description:  %s\n", res.Metadata.Description)
	}
	if res.Metadata.Author != "" {
		fmt.Printf("author:       %s\n", res.Metadata.Author)
	}
	fmt.Printf("links:        %d\n", res.Links)
	fmt.Printf("images:       %d\n", res.Images)
	fmt.Printf("characters:   %s\n", humanize.Comma(int64(res.Characters)))
	fmt.Printf("\n%s\n", cli.TruncateWords(res.MainContent, 80))
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	common := addCommonFlags(fs)
	outputFormat := outputFlag(fs)
	_ = fs.Parse(args)
	format := parseOutput(*outputFormat)

	components := common.open(nil)
	defer components.Close()
	ctx := context.Background()
	info, err := components.Storage.Info(ctx)
	if err != nil {
		fatalf("Status failed: %v", err)
	}
	settings, err := components.Settings(ctx)
	if err != nil {
		fatalf("Status failed: %v", err)
	}

	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		selections := map[models.SelectionKind][]string{
			models.SelectionCapture: components.Registry.Selection(models.SelectionCapture),
			models.SelectionSearch:  components.Registry.Selection(models.SelectionSearch),
		}
		err := enc.Encode(map[string]interface{}{
			"storage":    info,
			"settings":   settings,
			"servers":    components.Registry.Servers(),
			"selections": selections,
		})
		if err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}
	fmt.Printf("database:           %s (%s)\n", info.Path, info.Size)
	fmt.Printf("captured_pages:     %d\n", info.Pages)
	fmt.Printf("ollama_url:         %s\n", settings.OllamaURL)
	fmt.Printf("embedding_model:    %s\n", settings.Model())
	fmt.Printf("chroma_url:         %s\n", settings.ChromaURL)
	fmt.Printf("servers:            %d\n", len(components.Registry.Servers()))
	fmt.Printf("capture_selection:  %s\n", strings.Join(components.Registry.Selection(models.SelectionCapture), ", "))
	fmt.Printf("search_selection:   %s\n", strings.Join(components.Registry.Selection(models.SelectionSearch), ", "))
}
