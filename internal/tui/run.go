package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abdul-hamid-achik/skillpanes/internal/display"
	"github.com/abdul-hamid-achik/skillpanes/internal/logger"
)

// inputBuffer bounds the input events waiting for the orchestrator
const inputBuffer = 64

// IsTTYAvailable checks if the terminal supports TUI mode.
// NO_COLOR is handled separately via IsNoColor: it disables colors but
// does not prevent the TUI from launching.
func IsTTYAvailable() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fileInfo.Mode()&os.ModeCharDevice != 0
}

// IsNoColor returns true if the NO_COLOR environment variable is set,
// indicating that color output should be suppressed.
func IsNoColor() bool {
	return os.Getenv("NO_COLOR") != ""
}

// TUIRunner owns a running terminal host: the program, the display sink
// that drives it and the input events it produces.
type TUIRunner struct {
	program *tea.Program
	adapter *Adapter
	events  chan display.InputEvent
}

// NewTUIRunner creates a runner bound to ctx. Console logging is silenced
// for the life of the program; the session log file keeps everything.
func NewTUIRunner(ctx context.Context) *TUIRunner {
	events := make(chan display.InputEvent, inputBuffer)
	model := NewModel(events, !IsNoColor())

	// No mouse capture to allow native text selection
	program := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	return &TUIRunner{
		program: program,
		adapter: NewAdapter(program),
		events:  events,
	}
}

// Sink returns the display sink that drives the TUI
func (r *TUIRunner) Sink() display.Sink {
	return r.adapter
}

// Events returns the user's input events. The channel is closed when the
// TUI exits.
func (r *TUIRunner) Events() <-chan display.InputEvent {
	return r.events
}

// Quit signals the TUI to quit
func (r *TUIRunner) Quit() {
	r.program.Send(QuitMsg{})
}

// Run starts the TUI and blocks until it exits
func (r *TUIRunner) Run() error {
	defer close(r.events)

	logger.SetOutput(io.Discard)
	defer logger.SetOutput(os.Stderr)

	tuiLog.Debug("starting TUI program")
	_, err := r.program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		tuiLog.Debug("TUI exited with error: %v", err)
		return fmt.Errorf("error running TUI: %w", err)
	}
	tuiLog.Debug("TUI exited")
	return nil
}
