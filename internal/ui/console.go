package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/skillpanes/internal/display"
	"github.com/abdul-hamid-achik/skillpanes/internal/ui/highlight"
)

// ANSI color codes
const (
	Reset     = "\033[0m"
	Bold      = "\033[1m"
	Dim       = "\033[2m"
	Italic    = "\033[3m"
	Underline = "\033[4m"

	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
)

// Console is a display.Sink that prints to a plain terminal or pipe.
// Lines from a panel are tagged with its title while panels are open.
type Console struct {
	mu          sync.Mutex
	out         io.Writer
	useColors   bool
	highlighter *highlight.Highlighter

	titles   []string
	active   int
	lastFile map[int]string

	// an assistant reply is being streamed into the current line
	midLine   bool
	linePanel int
}

var _ display.Sink = (*Console)(nil)

// NewConsole creates a console on stdout. Colors are used only for a
// terminal and only when NO_COLOR is unset.
func NewConsole() *Console {
	useColors := true
	if fileInfo, err := os.Stdout.Stat(); err != nil || fileInfo.Mode()&os.ModeCharDevice == 0 {
		useColors = false
	}
	if os.Getenv("NO_COLOR") != "" {
		useColors = false
	}
	return NewConsoleWriter(os.Stdout, useColors)
}

// NewConsoleWriter creates a console on w
func NewConsoleWriter(w io.Writer, useColors bool) *Console {
	return &Console{
		out:         w,
		useColors:   useColors,
		highlighter: highlight.New(useColors),
		lastFile:    make(map[int]string),
	}
}

// color applies color if colors are enabled
func (c *Console) color(color, text string) string {
	if !c.useColors {
		return text
	}
	return color + text + Reset
}

// Active returns the focused panel, or -1 when no panel is open
func (c *Console) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.titles) == 0 {
		return -1
	}
	return c.active
}

// Panels returns the number of open panels
func (c *Console) Panels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.titles)
}

// setActive moves the local focus without printing anything
func (c *Console) setActive(panel int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if panel >= 0 && panel < len(c.titles) {
		c.active = panel
	}
}

func (c *Console) StartSkill(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = []string{name}
	c.active = 0
	c.lastFile = make(map[int]string)
	c.endLine()
	fmt.Fprintln(c.out, c.color(Bold+Underline, name))
}

func (c *Console) SplitPanel(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = append(c.titles, title)
	c.endLine()
	fmt.Fprintln(c.out, c.color(Dim, fmt.Sprintf("+ %s opened (%d windows)", title, len(c.titles))))
}

// ClosePanel closes the focused panel; later panels move down by one
func (c *Console) ClosePanel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.titles) == 0 {
		return
	}
	title := c.titles[c.active]
	c.titles = append(c.titles[:c.active], c.titles[c.active+1:]...)
	files := make(map[int]string)
	for p, f := range c.lastFile {
		switch {
		case p < c.active:
			files[p] = f
		case p > c.active:
			files[p-1] = f
		}
	}
	c.lastFile = files
	c.active = min(c.active, max(len(c.titles)-1, 0))
	c.endLine()
	fmt.Fprintln(c.out, c.color(Dim, "- "+title+" closed"))
}

func (c *Console) Focus(panel int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if panel < 0 || panel >= len(c.titles) {
		return
	}
	c.active = panel
}

func (c *Console) EndSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = nil
	c.active = 0
	c.lastFile = make(map[int]string)
	c.endLine()
	fmt.Fprintln(c.out, c.color(Dim, "Session ended."))
}

func (c *Console) Status(text string, panel int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if panel != c.active {
		return
	}
	c.endLine()
	fmt.Fprintln(c.out, c.tag(panel)+c.color(Dim+Italic, text))
}

func (c *Console) Message(speaker display.Speaker, text string, panel int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if speaker == display.SpeakerAssistant {
		if !c.midLine || c.linePanel != panel {
			c.endLine()
			fmt.Fprint(c.out, c.tag(panel))
		}
		fmt.Fprint(c.out, c.highlighter.HighlightMarkdownCodeBlocks(text))
		c.midLine = !strings.HasSuffix(text, "\n")
		c.linePanel = panel
		return
	}

	c.endLine()
	tag := c.tag(panel)
	switch {
	case speaker == display.SpeakerUser:
		fmt.Fprintln(c.out, tag+c.color(Bold+Green, "> ")+text)
	case speaker == display.SpeakerSystem:
		fmt.Fprintln(c.out, tag+c.color(Blue, "ℹ ")+text)
	case speaker == display.SpeakerApproval:
		fmt.Fprintln(c.out, tag+c.color(Yellow+Bold, "⚠ Run command? ")+text)
	case speaker == display.SpeakerToolResult:
		c.result(tag, text, c.lastFile[panel])
		delete(c.lastFile, panel)
	case speaker == display.SpeakerSubagentOp:
		fmt.Fprintln(c.out, tag+c.color(Magenta, "  ↳ "+text))
	case speaker == display.SpeakerSubagentResult:
		if strings.HasPrefix(text, "ERROR: ") {
			fmt.Fprintln(c.out, tag+c.color(Red, "    "+text))
		} else {
			fmt.Fprintln(c.out, tag+c.color(Dim, "    "+text))
		}
	case speaker == display.SpeakerSubagentDone:
		fmt.Fprintln(c.out, tag+c.color(Magenta, "  ✓ subagent finished ("+text+" ops)"))
	case speaker.IsTool():
		first, rest, _ := strings.Cut(text, "\n")
		fmt.Fprintln(c.out, tag+c.color(Cyan+Bold, "⚡ ")+c.color(Cyan, first))
		if rest != "" {
			fmt.Fprintln(c.out, c.color(Dim, rest))
		}
		if strings.HasPrefix(first, "Read ") {
			c.lastFile[panel] = strings.TrimPrefix(first, "Read ")
		} else {
			delete(c.lastFile, panel)
		}
	default:
		fmt.Fprintln(c.out, tag+text)
	}
}

func (c *Console) result(tag, text, file string) {
	switch {
	case text == "Approved":
		fmt.Fprintln(c.out, tag+c.color(Green+Bold, "✓ Approved"))
		return
	case text == "Denied":
		fmt.Fprintln(c.out, tag+c.color(Red+Bold, "✗ Denied"))
		return
	case strings.HasPrefix(text, "Error:"):
		fmt.Fprintln(c.out, tag+c.color(Red+Bold, "✗ ")+text)
		return
	}
	if file != "" {
		text = c.highlighter.HighlightFile(text, file)
	}
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintln(c.out, c.color(Dim, "  │ ")+line)
	}
}

// tag prefixes a line with its panel title while several panels are open
func (c *Console) tag(panel int) string {
	if panel < 0 || panel >= len(c.titles) || len(c.titles) < 2 {
		return ""
	}
	return c.color(Dim, "["+c.titles[panel]+"] ")
}

// endLine finishes a streamed reply. Callers hold mu.
func (c *Console) endLine() {
	if c.midLine {
		fmt.Fprintln(c.out)
		c.midLine = false
	}
}
