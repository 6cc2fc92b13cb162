package models

// SearchHit is one match from one collection before ranking.
type SearchHit struct {
	Collection string                 `json:"collection"`
	ID         string                 `json:"id"`
	Document   string                 `json:"document"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Distance   float64                `json:"distance"`
	Similarity float64                `json:"similarity"`
	Rank       int                    `json:"rank"`
}

// Title returns the captured page title, if recorded.
func (h *SearchHit) Title() string {
	return MetadataFromMap(h.Metadata).Title
}

// URL returns the captured page URL, if recorded.
func (h *SearchHit) URL() string {
	return MetadataFromMap(h.Metadata).URL
}

// SearchResponse is the ranked, annotated list returned to the presentation layer.
type SearchResponse struct {
	Query     string       `json:"query"`
	Results   []*SearchHit `json:"results"`
	Searched  []string     `json:"searched"`
	Failed    []string     `json:"failed,omitempty"`
	TotalHits int          `json:"total_hits"`
	QueryTime int64        `json:"query_time_ms"`
}

// CaptureResult reports which collections received the captured document.
type CaptureResult struct {
	DocumentID  string   `json:"id"`
	Mode        string   `json:"mode"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Collections []string `json:"collections"`
	Characters  int      `json:"characters"`
	Dimensions  int      `json:"dimensions"`
}
