package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/skillpanes/internal/display"
)

// Commands understood by the line reader
const commandHelp = "/split  /close  /esc  /focus N  /quit"

// lineAction is what a typed line asks for
type lineAction int

const (
	actionEvent lineAction = iota
	actionQuit
	actionHelp
	actionInvalid
)

// parseLine turns one typed line into an input event for the focused
// panel. Panels are numbered from 1 in /focus.
func parseLine(line string, active int) (display.InputEvent, lineAction) {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return display.Text(trimmed, active), actionEvent
	}

	fields := strings.Fields(trimmed)
	switch fields[0] {
	case "/split", "/new":
		return display.InputEvent{Type: display.InputSplit, Panel: active}, actionEvent
	case "/close":
		return display.InputEvent{Type: display.InputClose, Panel: active}, actionEvent
	case "/esc", "/stop":
		return display.InputEvent{Type: display.InputEscape, Panel: active}, actionEvent
	case "/focus":
		if len(fields) != 2 {
			return display.InputEvent{}, actionInvalid
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return display.InputEvent{}, actionInvalid
		}
		return display.InputEvent{Type: display.InputFocus, Panel: n - 1}, actionEvent
	case "/quit", "/exit":
		return display.InputEvent{}, actionQuit
	case "/help":
		return display.InputEvent{}, actionHelp
	}
	return display.InputEvent{}, actionInvalid
}

// InputHandler reads typed lines and turns them into input events
type InputHandler struct {
	reader  *bufio.Reader
	console *Console
}

// NewInputHandler creates an input handler reading from r. The console
// supplies the focused panel and echoes prompts.
func NewInputHandler(r io.Reader, console *Console) *InputHandler {
	return &InputHandler{
		reader:  bufio.NewReader(r),
		console: console,
	}
}

// Run reads lines until input ends, /quit is typed or ctx is done, sending
// each as an event. It closes events when it returns.
func (h *InputHandler) Run(ctx context.Context, events chan<- display.InputEvent) error {
	defer close(events)
	for {
		line, err := h.reader.ReadString('\n')
		if line != "" {
			ev, action := parseLine(line, h.console.Active())
			switch action {
			case actionQuit:
				return nil
			case actionHelp:
				h.say(commandHelp)
			case actionInvalid:
				h.say("Unknown command. Try " + commandHelp)
			case actionEvent:
				if ev.Type == display.InputFocus {
					h.console.setActive(ev.Panel)
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (h *InputHandler) say(text string) {
	h.console.mu.Lock()
	defer h.console.mu.Unlock()
	h.console.endLine()
	fmt.Fprintln(h.console.out, h.console.color(Dim, text))
}
