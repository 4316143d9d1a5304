package tui

import "github.com/abdul-hamid-achik/skillpanes/internal/display"

// Display commands, delivered to the model by the Adapter.

type startSkillMsg struct {
	title string
}

type chatMsg struct {
	speaker display.Speaker
	text    string
	panel   int
}

type splitMsg struct {
	title string
}

type closePanelMsg struct{}

type focusMsg struct {
	panel int
}

type endSessionMsg struct{}

type statusMsg struct {
	text  string
	panel int
}

// TickMsg is sent for spinner animation
type TickMsg struct{}

// QuitMsg signals the TUI to quit
type QuitMsg struct{}
