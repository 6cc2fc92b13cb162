package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/pagestash/internal/capture"
	"github.com/hyperjump/pagestash/internal/config"
	"github.com/hyperjump/pagestash/internal/models"
)

func TestReorderArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"goroutine leaks", "-output", "json"},
			expected: []string{"-output", "json", "goroutine leaks"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-output", "json", "goroutine leaks"},
			expected: []string{"-output", "json", "goroutine leaks"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"goroutine leaks"},
			expected: []string{"goroutine leaks"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"notes", "doc-1", "-server", "http://chroma:8000"},
			expected: []string{"-server", "http://chroma:8000", "notes", "doc-1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reorderArgs(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("reorderArgs() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"channels"}, "channels"},
		{"multiple words", []string{"context", "cancellation"}, "context cancellation"},
		{"single quoted phrase", []string{"context cancellation"}, "context cancellation"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"notes", []string{"notes"}},
		{"notes, research ,,archive", []string{"notes", "research", "archive"}},
		{" , ", nil},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPageSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.html")
	writeFile(t, path, "<html></html>")
	if _, ok := pageSource(path).(*capture.FileSource); !ok {
		t.Errorf("existing file should be a FileSource")
	}
	if src, ok := pageSource("https://go.dev").(*capture.URLSource); !ok || src.URL != "https://go.dev" {
		t.Errorf("url should be a URLSource, got %#v", pageSource("https://go.dev"))
	}
}

func TestInspect(t *testing.T) {
	html := `<html><head><title>Effective Go</title>
<meta name="description" content="Tips for writing clear Go"></head>
<body><nav>menu</nav><main><p>Gofmt formats code.</p><a href="/x">x</a><img src="/g.png"></main></body></html>`
	res := inspect(&capture.Content{URL: "https://go.dev/doc", Body: html})
	if res.Title != "Effective Go" || res.Metadata.Description != "Tips for writing clear Go" {
		t.Errorf("inspection = %+v", res)
	}
	if res.Links != 1 || res.Images != 1 {
		t.Errorf("links = %d, images = %d", res.Links, res.Images)
	}
	if !strings.Contains(res.MainContent, "Gofmt formats code.") || res.Characters == 0 {
		t.Errorf("main content = %q, characters = %d", res.MainContent, res.Characters)
	}
}

func TestSearchViaHTTP(t *testing.T) {
	var got map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/search" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(models.SearchResponse{
			Query:   "channels",
			Results: []*models.SearchHit{{Collection: "notes", ID: "page_1", Rank: 1}},
		})
	}))
	defer ts.Close()

	res, err := searchViaHTTP(ts.URL+"/", map[string]interface{}{"query": "channels"})
	if err != nil {
		t.Fatal(err)
	}
	if got["query"] != "channels" || len(res.Results) != 1 || res.Results[0].ID != "page_1" {
		t.Errorf("sent %v, got %+v", got, res)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid input: query is empty"}`, http.StatusBadRequest)
	}))
	defer failing.Close()
	if _, err := searchViaHTTP(failing.URL, map[string]interface{}{}); err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("err = %v", err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

// samePath compares paths after resolving symlinks; temp dirs can be reached
// through a symlink on some systems.
func samePath(a, b string) bool {
	ca, errA := filepath.EvalSymlinks(a)
	cb, errB := filepath.EvalSymlinks(b)
	return errA == nil && errB == nil && ca == cb
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name string
		// setup returns the path argument for loadConfig and the file it
		// should resolve to ("" for built-in defaults).
		setup    func(t *testing.T) (arg, want string)
		wantPort int
	}{
		{
			name: "explicit path",
			setup: func(t *testing.T) (string, string) {
				p := filepath.Join(t.TempDir(), "custom.yaml")
				writeFile(t, p, "server:\n  port: 9000\n")
				return p, p
			},
			wantPort: 9000,
		},
		{
			name: "environment wins over cwd",
			setup: func(t *testing.T) (string, string) {
				cwd := t.TempDir()
				writeFile(t, filepath.Join(cwd, "config.yaml"), "server:\n  port: 9000\n")
				chdir(t, cwd)
				p := filepath.Join(t.TempDir(), "pagestash.yaml")
				writeFile(t, p, "server:\n  port: 9191\n")
				t.Setenv(config.EnvConfigPath, p)
				return defaultConfigPath, p
			},
			wantPort: 9191,
		},
		{
			name: "cwd config.yaml",
			setup: func(t *testing.T) (string, string) {
				cwd := t.TempDir()
				p := filepath.Join(cwd, "config.yaml")
				writeFile(t, p, "debug: true\nserver:\n  port: 9292\n")
				chdir(t, cwd)
				return defaultConfigPath, p
			},
			wantPort: 9292,
		},
		{
			name: "built-in defaults",
			setup: func(t *testing.T) (string, string) {
				if _, err := os.Stat(defaultConfigPath); err == nil {
					t.Skip("a config is installed at the default path")
				}
				chdir(t, t.TempDir())
				return defaultConfigPath, ""
			},
			wantPort: 8787,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(config.EnvConfigPath, "")
			arg, want := tt.setup(t)
			cfg, resolved, err := loadConfig(arg)
			if err != nil {
				t.Fatal(err)
			}
			if (want == "" && resolved != "") || (want != "" && !samePath(resolved, want)) {
				t.Errorf("resolved = %q, want %q", resolved, want)
			}
			if cfg.Server.Port != tt.wantPort || cfg.Ollama.Model == "" {
				t.Errorf("port = %d, model = %q", cfg.Server.Port, cfg.Ollama.Model)
			}
		})
	}

	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("explicit missing path should fail")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}
