package search

import (
	"testing"
)

func TestSnippet(t *testing.T) {
	if Snippet("short", 10) != "short" {
		t.Error("short string should be unchanged")
	}
	if got := Snippet("long text here", 4); got != "long..." {
		t.Errorf("got %s", got)
	}
	if got := Snippet("channels are typed conduits", 15); got != "channels are..." {
		t.Errorf("got %s", got)
	}
	if got := Snippet("日本語のテキスト", 3); got != "日本語..." {
		t.Errorf("got %s", got)
	}
	if Snippet("x", 0) != "x" {
		t.Error("maxRunes 0 should return as-is")
	}
}
