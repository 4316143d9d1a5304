// Package highlight colors code for the terminal with chroma.
package highlight

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// fence matches a fenced markdown block. The info string may carry more
// than the language ("go title=main.go"); only the first word is used.
var fence = regexp.MustCompile("(?s)```([\\w+#.-]*)[^\\n]*\\n(.*?)```")

// Highlighter renders code as 256-color ANSI text. It is safe for
// concurrent use. A disabled highlighter returns its input unchanged.
type Highlighter struct {
	enabled   bool
	formatter chroma.Formatter
	style     *chroma.Style

	mu    sync.Mutex
	byExt map[string]chroma.Lexer // nil value: no lexer for that extension
}

// New creates a highlighter; enabled is normally "the terminal has color"
func New(enabled bool) *Highlighter {
	return &Highlighter{
		enabled:   enabled,
		formatter: formatters.Get("terminal256"),
		style:     styles.Get("monokai"),
		byExt:     make(map[string]chroma.Lexer),
	}
}

// Enabled reports whether highlighting is on
func (h *Highlighter) Enabled() bool {
	return h.enabled
}

// Highlight colors code written in language. An unknown language falls
// back to plain tokens.
func (h *Highlighter) Highlight(code, language string) string {
	if !h.enabled {
		return code
	}
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return h.render(code, lexer)
}

// HighlightFile colors the contents of filename. Files chroma does not
// recognize are returned unchanged.
func (h *Highlighter) HighlightFile(code, filename string) string {
	if !h.enabled || filename == "" {
		return code
	}
	lexer := h.lexerFor(filepath.Base(filename))
	if lexer == nil {
		return code
	}
	return h.render(code, lexer)
}

func (h *Highlighter) lexerFor(name string) chroma.Lexer {
	key := strings.ToLower(filepath.Ext(name))
	if key == "" {
		key = name
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.byExt[key]; ok {
		return l
	}
	l := lexers.Match(name)
	if l != nil {
		l = chroma.Coalesce(l)
	}
	h.byExt[key] = l
	return l
}

// HighlightMarkdownCodeBlocks replaces each fenced block in text with its
// highlighted body, dropping the fences.
func (h *Highlighter) HighlightMarkdownCodeBlocks(text string) string {
	if !h.enabled || !strings.Contains(text, "```") {
		return text
	}
	return fence.ReplaceAllStringFunc(text, func(block string) string {
		m := fence.FindStringSubmatch(block)
		if m == nil {
			return block
		}
		return h.Highlight(strings.TrimSuffix(m[2], "\n"), m[1])
	})
}

func (h *Highlighter) render(code string, lexer chroma.Lexer) string {
	it, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf bytes.Buffer
	if err := h.formatter.Format(&buf, h.style, it); err != nil {
		return code
	}
	return buf.String()
}
