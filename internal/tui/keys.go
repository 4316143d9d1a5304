package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
)

// keyMap is every key the host reacts to. The footer hint and the F1
// overlay are rendered from it, so help cannot drift from the handlers.
type keyMap struct {
	Send     key.Binding
	Split    key.Binding
	Close    key.Binding
	Stop     key.Binding
	Next     key.Binding
	Prev     key.Binding
	ScrollUp key.Binding
	ScrollDn key.Binding
	Help     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Send:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("Enter", "send (empty line approves)")),
	Split:    key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("Ctrl+N", "new window")),
	Close:    key.NewBinding(key.WithKeys("ctrl+w"), key.WithHelp("Ctrl+W", "close window")),
	Stop:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("Esc", "stop reply and close")),
	Next:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("Tab", "next window")),
	Prev:     key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("Shift+Tab", "previous window")),
	ScrollUp: key.NewBinding(key.WithKeys("pgup"), key.WithHelp("PgUp", "scroll up")),
	ScrollDn: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("PgDn", "scroll down")),
	Help:     key.NewBinding(key.WithKeys("f1"), key.WithHelp("F1", "help")),
	Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("Ctrl+C", "quit")),
}

// ShortHelp is the footer hint
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Split, k.Close, k.Next, k.Quit}
}

// FullHelp is the F1 overlay, one column per group
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Split, k.Close, k.Stop, k.Next, k.Prev},
		{k.Send, k.ScrollUp, k.ScrollDn, k.Help, k.Quit},
	}
}

func newHelp() help.Model {
	h := help.New()
	h.ShortSeparator = " · "
	h.Styles.ShortKey = hintKeyStyle
	h.Styles.ShortDesc = hintStyle
	h.Styles.ShortSeparator = hintStyle
	h.Styles.FullKey = userStyle
	h.Styles.FullDesc = assistantStyle
	return h
}

// renderHelpOverlay centers the full key list in the window
func renderHelpOverlay(h help.Model, width, height int) string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		headerTitleStyle.Render("Keyboard Shortcuts"),
		"",
		h.FullHelpView(keys.FullHelp()),
		"",
		panelStatusStyle.Render("Press F1 or Esc to close"),
	)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, helpStyle.Render(body))
}
