// Package extract turns captured HTML into plain text suitable for embedding.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MaxContentLength is the hard cap, in characters, on cleaned text.
const MaxContentLength = 100000

// TruncationMarker is appended when cleaned text is cut at MaxContentLength.
const TruncationMarker = "..."

// Policy lists the selectors stripped before text extraction and the selectors
// tried, in order, when looking for a page's main content.
type Policy struct {
	Remove      []string
	MainContent []string
}

// DefaultPolicy returns the built-in denylist and main-content candidates.
func DefaultPolicy() Policy {
	return Policy{
		Remove: []string{
			"script", "style", "noscript", "iframe", "svg", "canvas",
			"video", "audio", "object", "embed", "applet",
			"form", "input", "textarea", "select", "button",
			"nav", "footer", "header", "aside",
			`[style*="display: none"]`, `[style*="display:none"]`,
			".hidden", ".ad", ".advertisement", ".ads", ".sidebar",
			".comments", ".comment-section", ".social-share",
			".cookie-banner", ".popup", ".modal",
		},
		MainContent: []string{
			"article", "main", `[role="main"]`,
			".content", ".main-content", ".article-content", ".post-content",
			"#content", "#main", "#article", "#post",
		},
	}
}

// Extractor cleans HTML according to a Policy.
type Extractor struct {
	policy Policy
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithPolicy replaces the default policy.
func WithPolicy(p Policy) ExtractorOption {
	return func(e *Extractor) { e.policy = p }
}

// NewExtractor returns an Extractor using DefaultPolicy unless overridden.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = NewExtractor()

// Clean cleans html with the default policy. See Extractor.Clean.
func Clean(html string) string {
	return defaultExtractor.Clean(html)
}

// ExtractMainContent extracts main content with the default policy. See Extractor.MainContent.
func ExtractMainContent(html string) string {
	return defaultExtractor.MainContent(html)
}

// Clean parses html, strips non-content elements, and returns the normalized body text.
// Empty or unparsable input yields "".
func (e *Extractor) Clean(html string) string {
	doc := parse(html)
	if doc == nil {
		return ""
	}
	e.removeUnwanted(doc.Selection)
	return CleanText(doc.Find("body").Text())
}

// MainContent returns the cleaned text of the first element matching one of the
// policy's main-content selectors, falling back to Clean when none match.
func (e *Extractor) MainContent(html string) string {
	doc := parse(html)
	if doc == nil {
		return ""
	}
	for _, sel := range e.policy.MainContent {
		main := doc.Find(sel).First()
		if main.Length() == 0 {
			continue
		}
		for _, rm := range e.policy.Remove {
			if main.Is(rm) {
				return ""
			}
		}
		e.removeUnwanted(main)
		return CleanText(main.Text())
	}
	return e.Clean(html)
}

func (e *Extractor) removeUnwanted(root *goquery.Selection) {
	for _, sel := range e.policy.Remove {
		root.Find(sel).Remove()
	}
}

func parse(html string) *goquery.Document {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	return doc
}
