package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abdul-hamid-achik/skillpanes/internal/display"
	"github.com/abdul-hamid-achik/skillpanes/internal/logger"
	"github.com/abdul-hamid-achik/skillpanes/internal/ui/highlight"
)

// tuiLog is a prefixed logger for TUI events
var tuiLog = logger.WithPrefix("tui")

// block is one message shown in a panel
type block struct {
	speaker display.Speaker
	text    string
}

// panel is one conversation column. The idle area is a panel too.
type panel struct {
	title    string
	blocks   []block
	status   string
	busy     bool
	follow   bool // keep the viewport pinned to the bottom
	viewport viewport.Model
}

func newPanel(title string) *panel {
	return &panel{title: title, follow: true, viewport: viewport.New(0, 0)}
}

// add appends a message. Consecutive assistant messages are stream chunks
// of one reply and join into a single block.
func (p *panel) add(speaker display.Speaker, text string) {
	if n := len(p.blocks); n > 0 && speaker == display.SpeakerAssistant && p.blocks[n-1].speaker == speaker {
		p.blocks[n-1].text += text
		return
	}
	p.blocks = append(p.blocks, block{speaker: speaker, text: text})
}

// Model is the Bubble Tea model for the multi-panel host. Panels are held
// by pointer so state survives the model copies bubbletea makes.
type Model struct {
	// Dimensions
	width  int
	height int
	ready  bool

	title  string // skill shown in the header, empty when idle
	idle   *panel
	panels []*panel
	active int

	input       textinput.Model
	help        help.Model
	events      chan<- display.InputEvent
	highlighter *highlight.Highlighter

	spinnerActive bool
	spinnerFrame  int
	showHelp      bool
	quitting      bool
}

// NewModel creates a model that reports user input on events
func NewModel(events chan<- display.InputEvent, color bool) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a request..."
	ti.Prompt = "" // We render our own prompt in the footer
	ti.Focus()
	ti.CharLimit = 0 // No limit
	ti.Width = 50

	return Model{
		idle:        newPanel("skillpanes"),
		input:       ti,
		help:        newHelp(),
		events:      events,
		highlighter: highlight.New(color),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// IsQuitting returns true if the model is quitting
func (m Model) IsQuitting() bool {
	return m.quitting
}

// Active returns the focused panel, or -1 while idle
func (m Model) Active() int {
	if len(m.panels) == 0 {
		return -1
	}
	return m.active
}

// PanelCount returns the number of open panels
func (m Model) PanelCount() int {
	return len(m.panels)
}

// panelAt maps a display panel index to a panel. Negative indexes address
// the idle area.
func (m *Model) panelAt(idx int) *panel {
	if idx < 0 {
		return m.idle
	}
	if idx >= len(m.panels) {
		return nil
	}
	return m.panels[idx]
}

func (m *Model) current() *panel {
	if len(m.panels) == 0 {
		return m.idle
	}
	return m.panels[m.active]
}

// startSkill opens the first panel
func (m *Model) startSkill(title string) {
	m.title = title
	m.panels = []*panel{newPanel(title)}
	m.active = 0
	m.layout()
}

func (m *Model) split(title string) {
	if len(m.panels) == 0 {
		m.startSkill(title)
		return
	}
	m.panels = append(m.panels, newPanel(title))
	m.layout()
}

// closeFocused removes the focused panel; later panels move down by one.
func (m *Model) closeFocused() {
	if len(m.panels) == 0 {
		return
	}
	m.panels = append(m.panels[:m.active], m.panels[m.active+1:]...)
	if len(m.panels) == 0 {
		m.endSession()
		return
	}
	m.active = min(m.active, len(m.panels)-1)
	m.layout()
}

func (m *Model) focus(idx int) {
	if idx >= 0 && idx < len(m.panels) {
		m.active = idx
	}
}

func (m *Model) endSession() {
	m.title = ""
	m.panels = nil
	m.active = 0
	m.layout()
}

func (m *Model) message(speaker display.Speaker, text string, idx int) {
	p := m.panelAt(idx)
	if p == nil {
		tuiLog.Debug("message for closed panel %d dropped", idx)
		return
	}
	p.add(speaker, text)
	switch {
	case speaker == display.SpeakerUser && idx >= 0:
		p.busy = true
	case speaker == display.SpeakerAssistant && strings.HasPrefix(text, "\nError: "):
		p.busy = false
	}
	m.refresh(p)
}

func (m *Model) status(text string, idx int) {
	p := m.panelAt(idx)
	if p == nil {
		return
	}
	p.status = text
	p.busy = false
	m.refresh(p)
}

// busy reports whether any panel is waiting on a reply
func (m *Model) busy() bool {
	for _, p := range m.panels {
		if p.busy {
			return true
		}
	}
	return false
}

// emit hands an input event to the orchestrator without blocking the UI
func (m *Model) emit(ev display.InputEvent) {
	if m.events == nil {
		return
	}
	select {
	case m.events <- ev:
	default:
		tuiLog.Warn("input queue full, dropped %s", ev.Type)
	}
}

// Transcript returns a panel's messages as plain text
func (m Model) Transcript(idx int) string {
	p := m.panelAt(idx)
	if p == nil {
		return ""
	}
	var b strings.Builder
	for _, bl := range p.blocks {
		b.WriteString(string(bl.speaker))
		b.WriteString(": ")
		b.WriteString(bl.text)
		b.WriteString("\n")
	}
	return b.String()
}
