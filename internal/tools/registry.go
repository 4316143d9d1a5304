package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	skerrors "github.com/abdul-hamid-achik/skillpanes/internal/errors"
	"github.com/abdul-hamid-achik/skillpanes/internal/llm"
	"github.com/abdul-hamid-achik/skillpanes/internal/logger"
)

var toolLog = logger.WithPrefix("tools")

// PermissionLevel defines the level of permission required for a tool
type PermissionLevel int

const (
	PermissionRead    PermissionLevel = 0 // Read-only operations
	PermissionWrite   PermissionLevel = 1 // File modifications
	PermissionExecute PermissionLevel = 2 // Shell execution
)

func (p PermissionLevel) String() string {
	switch p {
	case PermissionRead:
		return "read"
	case PermissionWrite:
		return "write"
	case PermissionExecute:
		return "execute"
	default:
		return "unknown"
	}
}

// Tool defines the interface all tools must implement. Execute returns a
// JSON-friendly result map; a returned error becomes {"error": msg}.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, input map[string]any) (map[string]any, error)
	Permission() PermissionLevel
}

// Registry maps tool names to executors and dispatches calls under a
// per-call timeout.
type Registry struct {
	tools   map[string]Tool
	timeout time.Duration
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry. A zero timeout disables the deadline.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		timeout: timeout,
	}
}

// Register adds a tool to the registry
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns model-facing definitions for the named tools, or for
// every tool when no names are given. Unknown names are skipped.
func (r *Registry) Definitions(names ...string) []llm.ToolDefinition {
	if len(names) == 0 {
		names = r.Names()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		tool, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}
	return defs
}

// Dispatch runs a tool and always returns a result map. Unknown tools,
// errors, panics and timeouts come back as {"error": message}. A tool that
// outlives its deadline keeps running in the background; its result is dropped.
func (r *Registry) Dispatch(ctx context.Context, name string, input map[string]any) map[string]any {
	tool, ok := r.Get(name)
	if !ok {
		return ErrorResult(skerrors.ToolNotFound(name))
	}
	if input == nil {
		input = map[string]any{}
	}

	callCtx := ctx
	cancel := func() {}
	if r.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	defer cancel()

	type outcome struct {
		result map[string]any
		err    error
	}
	done := make(chan outcome, 1)

	start := time.Now()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				toolLog.Error("%s panicked: %v", name, p)
				done <- outcome{err: fmt.Errorf("tool %s crashed: %v", name, p)}
			}
		}()
		res, err := tool.Execute(callCtx, input)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		toolLog.Debug("%s finished in %v (err=%v)", name, time.Since(start).Round(time.Millisecond), out.err)
		if out.err != nil {
			return ErrorResult(out.err)
		}
		if out.result == nil {
			return map[string]any{}
		}
		return out.result
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return ErrorResult(ctx.Err())
		}
		toolLog.Warn("%s timed out after %v", name, r.timeout)
		return map[string]any{"error": fmt.Sprintf("Tool %s timed out after %ds", name, int(r.timeout.Seconds()))}
	}
}

// ErrorResult converts an error into the {"error": msg} result shape, using
// the user-facing message of categorized errors.
func ErrorResult(err error) map[string]any {
	return map[string]any{"error": skerrors.GetUserMessage(err)}
}
