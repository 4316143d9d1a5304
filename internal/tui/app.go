package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abdul-hamid-achik/skillpanes/internal/display"
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.input.Width = max(m.width-4, 10)
		m.help.Width = max(m.width-2, 10)
		m.layout()
		return m, nil

	case startSkillMsg:
		m.startSkill(msg.title)
	case splitMsg:
		m.split(msg.title)
	case closePanelMsg:
		m.closeFocused()
	case focusMsg:
		m.focus(msg.panel)
	case endSessionMsg:
		m.endSession()
	case statusMsg:
		m.status(msg.text, msg.panel)
	case chatMsg:
		m.message(msg.speaker, msg.text, msg.panel)

	case TickMsg:
		if m.busy() {
			m.spinnerFrame++
			return m, tickCmd()
		}
		m.spinnerActive = false
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit

	default:
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	cmd = m.startSpinner()
	return m, cmd
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		if key.Matches(msg, keys.Help, keys.Stop, keys.Quit) {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, keys.Send):
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		m.emit(display.Text(text, m.Active()))
		return m, nil

	case key.Matches(msg, keys.Stop, keys.Split, keys.Close):
		if len(m.panels) > 0 {
			m.emit(display.InputEvent{Type: panelAction(msg), Panel: m.active})
		}
		return m, nil

	case key.Matches(msg, keys.Next, keys.Prev):
		if n := len(m.panels); n > 1 {
			step := 1
			if key.Matches(msg, keys.Prev) {
				step = n - 1
			}
			m.active = (m.active + step) % n
			m.emit(display.InputEvent{Type: display.InputFocus, Panel: m.active})
		}
		return m, nil

	case key.Matches(msg, keys.ScrollUp, keys.ScrollDn):
		p := m.current()
		var cmd tea.Cmd
		p.viewport, cmd = p.viewport.Update(msg)
		p.follow = p.viewport.AtBottom()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// panelAction maps a panel key to the event it sends
func panelAction(msg tea.KeyMsg) display.InputType {
	switch {
	case key.Matches(msg, keys.Split):
		return display.InputSplit
	case key.Matches(msg, keys.Close):
		return display.InputClose
	}
	return display.InputEscape
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// startSpinner starts the tick loop when a panel becomes busy
func (m *Model) startSpinner() tea.Cmd {
	if m.spinnerActive || !m.busy() {
		return nil
	}
	m.spinnerActive = true
	return tickCmd()
}
