package highlight

import (
	"strings"
	"testing"
)

func TestDisabledLeavesTextAlone(t *testing.T) {
	h := New(false)
	code := "package main\n\nfunc main() {}"
	if got := h.HighlightFile(code, "main.go"); got != code {
		t.Errorf("HighlightFile() changed text with highlighting off: %q", got)
	}
	md := "see:\n```go\nx := 1\n```"
	if got := h.HighlightMarkdownCodeBlocks(md); got != md {
		t.Errorf("HighlightMarkdownCodeBlocks() = %q", got)
	}
}

func TestHighlightFile(t *testing.T) {
	h := New(true)
	got := h.HighlightFile("package main\n\nfunc main() {}", "cmd/app/main.go")
	if !strings.Contains(got, "\x1b[") {
		t.Errorf("expected ANSI escapes, got %q", got)
	}
	if !strings.Contains(got, "main") {
		t.Errorf("highlighted code lost its text: %q", got)
	}

	plain := "just some notes"
	if got := h.HighlightFile(plain, "NOTES.unknownext"); got != plain {
		t.Errorf("unknown file type should pass through, got %q", got)
	}
	if got := h.HighlightFile(plain, ""); got != plain {
		t.Errorf("empty filename should pass through, got %q", got)
	}
}

func TestHighlightMarkdownCodeBlocks(t *testing.T) {
	h := New(true)
	got := h.HighlightMarkdownCodeBlocks("before\n```go\nx := 1\n```\nafter")
	if strings.Contains(got, "```") {
		t.Errorf("fences should be removed: %q", got)
	}
	if !strings.HasPrefix(got, "before\n") || !strings.HasSuffix(got, "\nafter") {
		t.Errorf("surrounding text changed: %q", got)
	}
}
