package display

import (
	"fmt"
	"strings"
	"sync"
)

// Command is one recorded display command
type Command struct {
	Kind    string // start_skill, message, split, close_panel, focus, end_session, status
	Speaker Speaker
	Text    string
	Panel   int
}

func (c Command) String() string {
	switch c.Kind {
	case "message":
		return fmt.Sprintf("message[%d] %s: %s", c.Panel, c.Speaker, c.Text)
	case "focus", "status":
		return strings.TrimSpace(fmt.Sprintf("%s[%d] %s", c.Kind, c.Panel, c.Text))
	}
	return strings.TrimSpace(c.Kind + " " + c.Text)
}

// Recorder is a Sink that keeps every command in order
type Recorder struct {
	mu       sync.Mutex
	commands []Command
}

func (r *Recorder) add(c Command) {
	r.mu.Lock()
	r.commands = append(r.commands, c)
	r.mu.Unlock()
}

func (r *Recorder) StartSkill(name string) {
	r.add(Command{Kind: "start_skill", Text: name, Panel: -1})
}

func (r *Recorder) Message(speaker Speaker, text string, panel int) {
	r.add(Command{Kind: "message", Speaker: speaker, Text: text, Panel: panel})
}

func (r *Recorder) SplitPanel(title string) {
	r.add(Command{Kind: "split", Text: title, Panel: -1})
}

func (r *Recorder) ClosePanel() {
	r.add(Command{Kind: "close_panel", Panel: -1})
}

func (r *Recorder) Focus(panel int) {
	r.add(Command{Kind: "focus", Panel: panel})
}

func (r *Recorder) EndSession() {
	r.add(Command{Kind: "end_session", Panel: -1})
}

func (r *Recorder) Status(text string, panel int) {
	r.add(Command{Kind: "status", Text: text, Panel: panel})
}

// Commands returns a copy of everything recorded so far
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.commands...)
}

// Kinds returns the kind of every recorded command, skipping messages and
// status updates.
func (r *Recorder) Kinds() []string {
	var out []string
	for _, c := range r.Commands() {
		if c.Kind != "message" && c.Kind != "status" {
			out = append(out, c.Kind)
		}
	}
	return out
}

// Messages returns the messages shown in panel
func (r *Recorder) Messages(panel int) []Command {
	var out []Command
	for _, c := range r.Commands() {
		if c.Kind == "message" && c.Panel == panel {
			out = append(out, c)
		}
	}
	return out
}

// Transcript joins panel's messages as "speaker: text" lines
func (r *Recorder) Transcript(panel int) string {
	var b strings.Builder
	for _, c := range r.Messages(panel) {
		fmt.Fprintf(&b, "%s: %s\n", c.Speaker, c.Text)
	}
	return b.String()
}

// Has reports whether panel shows a message from speaker containing text
func (r *Recorder) Has(panel int, speaker Speaker, text string) bool {
	for _, c := range r.Messages(panel) {
		if c.Speaker == speaker && strings.Contains(c.Text, text) {
			return true
		}
	}
	return false
}

// Reset forgets everything recorded
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.commands = nil
	r.mu.Unlock()
}
