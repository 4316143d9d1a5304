package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors
var (
	primaryColor   = lipgloss.Color("39")  // Cyan
	successColor   = lipgloss.Color("82")  // Green
	warningColor   = lipgloss.Color("214") // Orange/Yellow
	errorColor     = lipgloss.Color("196") // Red
	dimColor       = lipgloss.Color("240") // Gray
	userColor      = lipgloss.Color("255") // White
	assistantColor = lipgloss.Color("252") // Light gray
	subagentColor  = lipgloss.Color("141") // Purple
)

// toolColors tints a tool start by category
var toolColors = map[string]lipgloss.Color{
	"read":   lipgloss.Color("39"),
	"write":  lipgloss.Color("208"),
	"edit":   lipgloss.Color("214"),
	"list":   lipgloss.Color("75"),
	"search": lipgloss.Color("111"),
	"run":    lipgloss.Color("203"),
	"data":   lipgloss.Color("79"),
	"tool":   lipgloss.Color("39"),
}

// Styles
var (
	// Header styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	headerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(primaryColor)

	headerStateStyle = lipgloss.NewStyle().
				Foreground(dimColor)

	// Footer styles
	inputPromptStyle = lipgloss.NewStyle().
				Foreground(successColor).
				Bold(true)

	// Panel frames
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor)

	activePanelStyle = panelStyle.
				BorderForeground(primaryColor)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Bold(true)

	activeTitleStyle = lipgloss.NewStyle().
				Foreground(primaryColor).
				Bold(true)

	panelStatusStyle = lipgloss.NewStyle().
				Foreground(dimColor).
				Italic(true)

	// Content styles
	userStyle = lipgloss.NewStyle().
			Foreground(userColor).
			Bold(true)

	userPrefixStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(assistantColor)

	systemStyle = lipgloss.NewStyle().
			Foreground(primaryColor)

	// Tool styles
	toolResultIndentStyle = lipgloss.NewStyle().
				Foreground(dimColor)

	toolResultErrorStyle = lipgloss.NewStyle().
				Foreground(errorColor)

	approvalStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	subagentStyle = lipgloss.NewStyle().
			Foreground(subagentColor)

	// Message styles
	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(primaryColor)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	hintKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2)
)

// Icons
const (
	iconToolCall = "⚡"
	iconSuccess  = "✓"
	iconError    = "✗"
	iconInfo     = "ℹ"
	iconWarning  = "⚠"
	iconUser     = ">"
	iconIndent   = "│"
	iconSubagent = "↳"
)

// Spinner frames (braille pattern)
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// GetSpinnerFrame returns the current spinner frame
func GetSpinnerFrame(frame int) string {
	return spinnerFrames[frame%len(spinnerFrames)]
}

func toolStyle(category string) lipgloss.Style {
	c, ok := toolColors[category]
	if !ok {
		c = primaryColor
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true)
}

// truncate truncates a string to maxLen characters, adding "..." if truncated
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
