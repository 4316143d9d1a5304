package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents log severity
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps debug/info/warn/error to a Level. Unknown names give LevelInfo.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// Logger writes leveled lines to a console writer and mirrors every line to
// the session log file, if one is open.
type Logger struct {
	mu       sync.Mutex
	output   io.Writer
	minLevel Level
	prefix   string
	parent   *Logger
}

var (
	defaultLogger = New(os.Stderr, LevelInfo, "")

	fileMu   sync.Mutex
	fileSink *Logger
	logFile  *os.File
)

// OpenLogFile starts a session log under dir (normally .skillpanes/logs) and
// points latest.log at it. Everything from debug up is written there.
func OpenLogFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(dir, fmt.Sprintf("session_%s.log", timestamp))

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", err
	}

	fileMu.Lock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	fileSink = New(f, LevelDebug, "")
	fileMu.Unlock()

	cwd, _ := os.Getwd()
	_, _ = fmt.Fprintf(f, "=== Session started at %s ===\n", time.Now().Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(f, "Working directory: %s\n", cwd)

	latestPath := filepath.Join(dir, "latest.log")
	_ = os.Remove(latestPath)
	_ = os.Symlink(filepath.Base(logPath), latestPath)

	return logPath, nil
}

// CloseLogFile closes the session log (call on shutdown)
func CloseLogFile() {
	fileMu.Lock()
	defer fileMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
		fileSink = nil
	}
}

func currentFileSink() *Logger {
	fileMu.Lock()
	defer fileMu.Unlock()
	return fileSink
}

// New creates a standalone logger that does not mirror to the session file.
func New(output io.Writer, minLevel Level, prefix string) *Logger {
	return &Logger{
		output:   output,
		minLevel: minLevel,
		prefix:   prefix,
	}
}

// SetOutput sets the console destination. The TUI sets io.Discard.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.output = w
}

// SetLevel sets the minimum console level
func SetLevel(level Level) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.minLevel = level
}

// SetLevelFromString sets level from string (debug, info, warn, error)
func SetLevelFromString(level string) {
	if l, ok := ParseLevel(level); ok {
		SetLevel(l)
	}
}

// WithPrefix returns a component logger ("[router] ...") that shares the
// default console writer and level and mirrors to the session file.
func WithPrefix(prefix string) *Logger {
	return &Logger{prefix: prefix, parent: defaultLogger}
}

// With returns a child logger whose prefix extends this one's.
func (l *Logger) With(sub string) *Logger {
	p := sub
	if l.prefix != "" {
		p = l.prefix + ":" + sub
	}
	if l.parent != nil {
		return &Logger{prefix: p, parent: l.parent}
	}
	return New(l.output, l.minLevel, p)
}

func (l *Logger) log(level Level, format string, args ...any) {
	owner := l
	if l.parent != nil {
		owner = l.parent
	}
	line := formatLine(level, l.prefix, format, args...)

	owner.mu.Lock()
	if level >= owner.minLevel {
		_, _ = io.WriteString(owner.output, line)
	}
	owner.mu.Unlock()

	if owner == defaultLogger {
		if fs := currentFileSink(); fs != nil {
			fs.mu.Lock()
			_, _ = io.WriteString(fs.output, line)
			fs.mu.Unlock()
		}
	}
}

func formatLine(level Level, prefix, format string, args ...any) string {
	timestamp := time.Now().Format("15:04:05")
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}
	return fmt.Sprintf("%s %s %s%s\n", timestamp, level.String(), prefix, fmt.Sprintf(format, args...))
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...any) {
	l.log(LevelDebug, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Package-level functions using default logger

func Debug(format string, args ...any) { defaultLogger.Debug(format, args...) }
func Info(format string, args ...any)  { defaultLogger.Info(format, args...) }
func Warn(format string, args ...any)  { defaultLogger.Warn(format, args...) }
func Error(format string, args ...any) { defaultLogger.Error(format, args...) }

// Enabled returns true if the given level would reach the console
func Enabled(level Level) bool {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	return level >= defaultLogger.minLevel
}

// DebugEnabled returns true if debug logging is enabled
func DebugEnabled() bool {
	return Enabled(LevelDebug)
}
