package search

import (
	"strings"

	"github.com/hyperjump/pagestash/internal/models"
)

// ProcessQuery trims the query and server, drops blank and repeated
// collection names, then validates the request.
func ProcessQuery(query *models.SearchRequest) error {
	query.Query = strings.TrimSpace(query.Query)
	query.ServerURL = strings.TrimSpace(query.ServerURL)
	seen := make(map[string]bool, len(query.Collections))
	names := make([]string, 0, len(query.Collections))
	for _, name := range query.Collections {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	query.Collections = names
	return query.Validate()
}
