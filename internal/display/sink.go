// Package display defines the commands the orchestrator sends to a host and
// the input events a host sends back.
package display

// Speaker labels a chat message. Tool activity uses ToolSpeaker.
type Speaker string

const (
	SpeakerUser           Speaker = "user"
	SpeakerAssistant      Speaker = "assistant"
	SpeakerSystem         Speaker = "system"
	SpeakerToolResult     Speaker = "tool_result"
	SpeakerApproval       Speaker = "approval"
	SpeakerSubagentOp     Speaker = "subagent_op"
	SpeakerSubagentResult Speaker = "subagent_result"
	SpeakerSubagentDone   Speaker = "subagent_done"
)

// ToolSpeaker is the speaker for a tool start in category, e.g. "tool_read"
func ToolSpeaker(category string) Speaker {
	return Speaker("tool_" + category)
}

// IsTool reports whether s announces a tool start
func (s Speaker) IsTool() bool {
	return len(s) > 5 && s[:5] == "tool_" && s != SpeakerToolResult
}

// Sink receives display commands. Implementations must be safe for use from
// several goroutines; calls for one panel arrive in order.
type Sink interface {
	StartSkill(name string)
	Message(speaker Speaker, text string, panel int)
	SplitPanel(title string)
	ClosePanel()
	Focus(panel int)
	EndSession()
	Status(text string, panel int)
}

// InputType identifies a host input event
type InputType string

const (
	InputText   InputType = "text_input"
	InputEscape InputType = "escape"
	InputSplit  InputType = "split"
	InputClose  InputType = "close"
	InputFocus  InputType = "focus_change"
)

// InputEvent is one user action reported by the host
type InputEvent struct {
	Type  InputType
	Text  string
	Panel int
}

// Text builds a text_input event
func Text(text string, panel int) InputEvent {
	return InputEvent{Type: InputText, Text: text, Panel: panel}
}

// Tee fans every command out to each sink in order
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

func (t tee) StartSkill(name string) {
	for _, s := range t {
		s.StartSkill(name)
	}
}

func (t tee) Message(speaker Speaker, text string, panel int) {
	for _, s := range t {
		s.Message(speaker, text, panel)
	}
}

func (t tee) SplitPanel(title string) {
	for _, s := range t {
		s.SplitPanel(title)
	}
}

func (t tee) ClosePanel() {
	for _, s := range t {
		s.ClosePanel()
	}
}

func (t tee) Focus(panel int) {
	for _, s := range t {
		s.Focus(panel)
	}
}

func (t tee) EndSession() {
	for _, s := range t {
		s.EndSession()
	}
}

func (t tee) Status(text string, panel int) {
	for _, s := range t {
		s.Status(text, panel)
	}
}
