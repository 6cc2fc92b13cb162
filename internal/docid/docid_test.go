package docid

import (
	"strings"
	"testing"
	"time"
)

func TestPageID(t *testing.T) {
	// Deterministic: same URL gives same ID
	id1 := PageID("https://example.com/a")
	id2 := PageID("https://example.com/a")
	if id1 != id2 {
		t.Errorf("same URL should give same ID: %q vs %q", id1, id2)
	}
	if id1 == "" {
		t.Error("ID should not be empty")
	}
	if PageID("https://example.com/b") == id1 {
		t.Error("different URLs should give different IDs")
	}
}

func TestPageID_stripsUnsafeCharacters(t *testing.T) {
	// "a?>" encodes to "YT8+" and "??" to "Pz8="
	for _, u := range []string{"a?>", "??", "https://x.io/?q=1", "ab"} {
		id := PageID(u)
		if strings.ContainsAny(id, "/+=") {
			t.Errorf("PageID(%q) = %q contains unsafe characters", u, id)
		}
	}
	if got := PageID("a?>"); got != "YT8" {
		t.Errorf("got %q", got)
	}
}

func TestSelectionID(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	got := SelectionID("https://example.com", ts)
	want := PageID("https://example.com-selection-1700000000123")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if SelectionID("https://example.com", ts.Add(time.Millisecond)) == got {
		t.Error("selections at different times should differ")
	}
	if got == PageID("https://example.com") {
		t.Error("selection ID should differ from page ID")
	}
}
