package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/abdul-hamid-achik/skillpanes/internal/display"
)

const (
	headerHeight = 1
	footerHeight = 2
	// title line and status line inside each frame
	panelChrome = 2
)

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Starting..."
	}
	if m.showHelp {
		return renderHelpOverlay(m.help, m.width, m.height)
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.renderBody(), m.renderFooter())
}

func (m Model) renderHeader() string {
	state := "idle"
	if len(m.panels) > 0 {
		state = fmt.Sprintf("%s · %d window(s)", m.title, len(m.panels))
	}
	line := headerTitleStyle.Render("skillpanes") + " " + headerStateStyle.Render(state)
	return headerStyle.Width(m.width).Render(line)
}

func (m Model) renderBody() string {
	height := m.bodyHeight()
	if len(m.panels) == 0 {
		return m.renderPanel(m.idle, true, m.width, height)
	}
	widths := m.columnWidths()
	cols := make([]string, len(m.panels))
	for i, p := range m.panels {
		cols[i] = m.renderPanel(p, i == m.active, widths[i], height)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func (m Model) renderPanel(p *panel, active bool, width, height int) string {
	titleStyle, frame := panelTitleStyle, panelStyle
	if active {
		titleStyle, frame = activeTitleStyle, activePanelStyle
	}
	inner := max(width-2, 1)

	title := truncate(p.title, max(inner-2, 1))
	if p.busy {
		title = spinnerStyle.Render(GetSpinnerFrame(m.spinnerFrame)) + " " + title
	}
	status := panelStatusStyle.Render(truncate(p.status, inner))

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title),
		p.viewport.View(),
		status,
	)
	return frame.Width(inner).Height(max(height-2, 1)).Render(content)
}

func (m Model) renderFooter() string {
	input := inputPromptStyle.Render(iconUser) + " " + m.input.View()
	return lipgloss.JoinVertical(lipgloss.Left, input, " "+m.help.ShortHelpView(keys.ShortHelp()))
}

func (m Model) bodyHeight() int {
	return max(m.height-headerHeight-footerHeight, 3)
}

// columnWidths splits the screen between panels; the last one takes the
// remainder.
func (m Model) columnWidths() []int {
	n := len(m.panels)
	if n == 0 {
		return nil
	}
	out := make([]int, n)
	each := m.width / n
	for i := range out {
		out[i] = each
	}
	out[n-1] += m.width - each*n
	return out
}

// layout sizes every viewport for the current window and panel count
func (m *Model) layout() {
	if !m.ready {
		return
	}
	vh := max(m.bodyHeight()-2-panelChrome, 1)
	m.idle.viewport.Width = max(m.width-2, 1)
	m.idle.viewport.Height = vh
	m.refresh(m.idle)
	for i, w := range m.columnWidths() {
		p := m.panels[i]
		p.viewport.Width = max(w-2, 1)
		p.viewport.Height = vh
		m.refresh(p)
	}
}

// refresh re-renders a panel's messages into its viewport
func (m *Model) refresh(p *panel) {
	if !m.ready {
		return
	}
	p.viewport.SetContent(m.renderBlocks(p.blocks, p.viewport.Width))
	if p.follow {
		p.viewport.GotoBottom()
	}
}

// renderBlocks renders messages at width. A read_file result is
// highlighted using the name of the file its tool start announced, an
// edit_file result as a diff.
func (m *Model) renderBlocks(blocks []block, width int) string {
	wrap := lipgloss.NewStyle().Width(max(width, 1))
	var out []string
	var lastFile string
	for _, b := range blocks {
		var s string
		switch {
		case b.speaker == display.SpeakerUser:
			s = "\n" + userPrefixStyle.Render(iconUser) + " " + userStyle.Render(b.text)
		case b.speaker == display.SpeakerAssistant:
			s = m.renderAssistant(b.text)
		case b.speaker == display.SpeakerSystem:
			s = systemStyle.Render(iconInfo + " " + b.text)
		case b.speaker == display.SpeakerApproval:
			s = approvalStyle.Render(iconWarning+" Run command?") + " " + b.text
		case b.speaker == display.SpeakerToolResult:
			s = m.renderResult(b.text, lastFile)
			lastFile = ""
		case b.speaker == display.SpeakerSubagentOp:
			s = subagentStyle.Render("  " + iconSubagent + " " + b.text)
		case b.speaker == display.SpeakerSubagentResult:
			if strings.HasPrefix(b.text, "ERROR: ") {
				s = toolResultErrorStyle.Render("    " + b.text)
			} else {
				s = toolResultIndentStyle.Render("    " + b.text)
			}
		case b.speaker == display.SpeakerSubagentDone:
			s = subagentStyle.Render(fmt.Sprintf("  %s subagent finished (%s ops)", iconSuccess, b.text))
		case b.speaker.IsTool():
			category := strings.TrimPrefix(string(b.speaker), "tool_")
			first, rest, _ := strings.Cut(b.text, "\n")
			s = toolStyle(category).Render(iconToolCall + " " + first)
			if rest != "" {
				s += "\n" + toolResultIndentStyle.Render(rest)
			}
			switch category {
			case "read":
				lastFile = strings.TrimPrefix(first, "Read ")
			case "edit":
				lastFile = "change.diff"
			default:
				lastFile = ""
			}
		default:
			s = b.text
		}
		out = append(out, wrap.Render(s))
	}
	return strings.TrimPrefix(strings.Join(out, "\n"), "\n")
}

func (m *Model) renderAssistant(text string) string {
	if trimmed := strings.TrimSpace(text); strings.HasPrefix(trimmed, "Error:") {
		return errorStyle.Render(iconError + " " + trimmed)
	}
	return assistantStyle.Render(m.highlighter.HighlightMarkdownCodeBlocks(text))
}

func (m *Model) renderResult(text, file string) string {
	switch {
	case text == "Approved":
		return successStyle.Render(iconSuccess + " Approved")
	case text == "Denied":
		return errorStyle.Render(iconError + " Denied")
	case strings.HasPrefix(text, "Error:"):
		return toolResultErrorStyle.Render(iconError + " " + text)
	}

	if file != "" {
		text = m.highlighter.HighlightFile(text, file)
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = toolResultIndentStyle.Render("  "+iconIndent) + " " + line
	}
	return strings.Join(lines, "\n")
}
