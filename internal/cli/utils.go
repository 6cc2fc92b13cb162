// Package cli provides terminal output for the pagestash command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/hyperjump/pagestash/internal/models"
	"github.com/hyperjump/pagestash/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat accepts "text" or "json", case-insensitively.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q", models.ErrInvalidInput, s)
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// snippetWords bounds the preview printed under each text result.
const snippetWords = 40

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\n%s\n", headerStyle.Render(fmt.Sprintf("Found %d results for %q in %dms",
		len(response.Results), response.Query, response.QueryTime)))
	fmt.Fprintln(w, dimStyle.Render("Searched: "+strings.Join(response.Searched, ", ")))
	if len(response.Failed) > 0 {
		fmt.Fprintln(w, errorStyle.Render("Failed: "+strings.Join(response.Failed, ", ")))
	}
	fmt.Fprintln(w)
	for _, hit := range response.Results {
		writeOneResult(w, hit)
	}
	return nil
}

func writeOneResult(w io.Writer, hit *models.SearchHit) {
	title := hit.Title()
	if title == "" {
		title = hit.ID
	}
	fmt.Fprintf(w, "%d. %s %s\n", hit.Rank, titleStyle.Render(title),
		scoreStyle.Render(fmt.Sprintf("%.1f%%", hit.Similarity)))
	if u := hit.URL(); u != "" {
		fmt.Fprintf(w, "   %s\n", u)
	}
	meta := "   [" + hit.Collection + "]"
	if ts := models.MetadataFromMap(hit.Metadata).Timestamp; ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			meta += " captured " + humanize.Time(t)
		}
	}
	fmt.Fprintln(w, dimStyle.Render(meta))
	if hit.Document != "" {
		fmt.Fprintf(w, "   %s\n", TruncateWords(utils.Truncate(hit.Document, 400), snippetWords))
	}
	fmt.Fprintln(w)
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// WriteCaptureResult reports a successful capture.
func WriteCaptureResult(w io.Writer, res *models.CaptureResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Captured"), titleStyle.Render(utils.Truncate(res.Title, 80)))
	fmt.Fprintf(w, "  url:         %s\n", res.URL)
	fmt.Fprintf(w, "  id:          %s\n", res.DocumentID)
	fmt.Fprintf(w, "  mode:        %s\n", res.Mode)
	fmt.Fprintf(w, "  collections: %s\n", strings.Join(res.Collections, ", "))
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  %s characters, %d dimensions",
		humanize.Comma(int64(res.Characters)), res.Dimensions)))
	return nil
}

// WriteCollections lists collections, marking the ones in selected.
func WriteCollections(w io.Writer, server string, cols []models.Collection, selected []string, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"server": server, "collections": cols, "selected": selected})
	}
	marked := make(map[string]bool, len(selected))
	for _, n := range selected {
		marked[n] = true
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s (%d collections)", server, len(cols))))
	for _, c := range cols {
		mark := " "
		if marked[c.Name] {
			mark = "*"
		}
		fmt.Fprintf(w, " %s %s %s\n", mark, c.Name, dimStyle.Render(c.ID))
	}
	return nil
}

// WriteServers lists the registered servers.
func WriteServers(w io.Writer, servers []models.Server, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, servers)
	}
	for _, s := range servers {
		fmt.Fprintf(w, "%s %s\n", titleStyle.Render(s.Name), s.URL)
	}
	return nil
}

// WritePages lists captured-page records, newest first as given.
func WritePages(w io.Writer, pages []*models.CapturedPageRecord, total int64, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"pages": pages, "total": total})
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s captured pages", humanize.Comma(total))))
	for _, p := range pages {
		kind := ""
		if p.Type != "" {
			kind = " (" + p.Type + ")"
		}
		fmt.Fprintf(w, "  %s%s %s\n", utils.Truncate(p.Title, 60), kind, dimStyle.Render(humanize.Time(p.Timestamp)))
		fmt.Fprintf(w, "    %s\n", p.URL)
	}
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
