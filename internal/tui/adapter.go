package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abdul-hamid-achik/skillpanes/internal/display"
)

// Adapter is the display.Sink for a running TUI. Commands become tea
// messages; tea.Program.Send is safe from any goroutine and keeps the
// order of calls made from one goroutine.
type Adapter struct {
	send func(tea.Msg)
}

var _ display.Sink = (*Adapter)(nil)

// NewAdapter creates an adapter that drives program
func NewAdapter(program *tea.Program) *Adapter {
	return &Adapter{send: program.Send}
}

func (a *Adapter) StartSkill(name string) {
	a.send(startSkillMsg{title: name})
}

func (a *Adapter) Message(speaker display.Speaker, text string, panel int) {
	a.send(chatMsg{speaker: speaker, text: text, panel: panel})
}

func (a *Adapter) SplitPanel(title string) {
	a.send(splitMsg{title: title})
}

func (a *Adapter) ClosePanel() {
	a.send(closePanelMsg{})
}

func (a *Adapter) Focus(panel int) {
	a.send(focusMsg{panel: panel})
}

func (a *Adapter) EndSession() {
	a.send(endSessionMsg{})
}

func (a *Adapter) Status(text string, panel int) {
	a.send(statusMsg{text: text, panel: panel})
}
