// Package docid derives deterministic document IDs from page URLs.
package docid

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

var stripper = strings.NewReplacer("/", "", "+", "", "=", "")

// PageID returns the ID of a full-page capture of pageURL: the standard base64
// encoding of the URL with '/', '+' and '=' removed. Recapturing the same URL
// yields the same ID.
func PageID(pageURL string) string {
	return stripper.Replace(base64.StdEncoding.EncodeToString([]byte(pageURL)))
}

// SelectionID returns the ID of a selection captured from pageURL at t.
// Selections taken at different milliseconds get different IDs.
func SelectionID(pageURL string, t time.Time) string {
	return PageID(pageURL + "-selection-" + strconv.FormatInt(t.UnixMilli(), 10))
}
