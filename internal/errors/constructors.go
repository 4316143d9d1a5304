package errors

import "fmt"

// BackendUnavailable creates an error for when a model backend cannot be reached.
func BackendUnavailable(backend string, cause error) *SkillError {
	return &SkillError{
		Category:  CategoryBackend,
		Code:      "backend_unavailable",
		Message:   fmt.Sprintf("%s backend is unavailable", backend),
		Retryable: true,
		Cause:     cause,
	}
}

// BackendTimeout creates an error for when a backend request times out.
func BackendTimeout(cause error) *SkillError {
	return &SkillError{
		Category:  CategoryBackend,
		Code:      "backend_timeout",
		Message:   "Request timed out.",
		Retryable: true,
		Cause:     cause,
	}
}

// StreamFailed creates an error for a stream that broke mid-turn.
func StreamFailed(cause error) *SkillError {
	return &SkillError{
		Category:  CategoryBackend,
		Code:      "stream_failed",
		Message:   "response stream failed",
		Retryable: true,
		Cause:     cause,
	}
}

// RateLimited creates an error for a backend rejecting requests with 429.
func RateLimited(cause error) *SkillError {
	return &SkillError{
		Category:  CategoryBackend,
		Code:      "rate_limited",
		Message:   "rate limited by backend",
		Retryable: true,
		Cause:     cause,
	}
}

// ToolNotFound creates an error for when a requested tool does not exist.
func ToolNotFound(name string) *SkillError {
	return &SkillError{
		Category: CategoryTool,
		Code:     "tool_not_found",
		Message:  fmt.Sprintf("Unknown tool: %s", name),
	}
}

// ToolTimeout creates an error for a tool call that exceeded its deadline.
func ToolTimeout(name string, cause error) *SkillError {
	return &SkillError{
		Category:  CategoryTool,
		Code:      "tool_timeout",
		Message:   fmt.Sprintf("Tool %s timed out", name),
		Retryable: true,
		Cause:     cause,
	}
}

// ToolExecutionFailed creates an error for when a tool execution fails.
// Retryability depends on the underlying cause.
func ToolExecutionFailed(name string, cause error) *SkillError {
	return &SkillError{
		Category:  CategoryTool,
		Code:      "tool_execution_failed",
		Message:   fmt.Sprintf("tool %q execution failed", name),
		Retryable: IsRetryable(cause),
		Cause:     cause,
	}
}

// PathOutsideWorkspace creates an error for a path that escapes the projects directory.
func PathOutsideWorkspace(path string) *SkillError {
	return &SkillError{
		Category: CategoryTool,
		Code:     "path_outside_workspace",
		Message:  fmt.Sprintf("Path outside allowed directory: %s", path),
	}
}

// CommandBlocked creates an error for a shell command rejected by the blocklist.
func CommandBlocked(reason string) *SkillError {
	return &SkillError{
		Category: CategoryTool,
		Code:     "command_blocked",
		Message:  fmt.Sprintf("Blocked: %s", reason),
	}
}

// CommandDenied creates the error recorded when a user declines a gated command.
func CommandDenied() *SkillError {
	return &SkillError{
		Category: CategoryApproval,
		Code:     "command_denied",
		Message:  "Command denied by user.",
	}
}

// PanelNotFound creates an error for an operation on a panel id that is not open.
func PanelNotFound(panel int) *SkillError {
	return &SkillError{
		Category: CategoryPanel,
		Code:     "panel_not_found",
		Message:  fmt.Sprintf("panel %d is not open", panel),
	}
}

// PanelAlreadyBound creates an error for starting a session on an occupied panel.
func PanelAlreadyBound(panel int) *SkillError {
	return &SkillError{
		Category: CategoryPanel,
		Code:     "panel_already_bound",
		Message:  fmt.Sprintf("panel %d already has an active session", panel),
	}
}

// PanelBusy creates an error for input sent to a panel whose turn is still running.
func PanelBusy(panel int) *SkillError {
	return &SkillError{
		Category:  CategoryPanel,
		Code:      "panel_busy",
		Message:   "Wait for response to finish...",
		Retryable: true,
	}
}

// PanelLimitReached creates an error for a split beyond the panel ceiling.
func PanelLimitReached(max int) *SkillError {
	return &SkillError{
		Category: CategoryPanel,
		Code:     "panel_limit_reached",
		Message:  fmt.Sprintf("maximum of %d panels already open", max),
	}
}

// NoSession creates an error for a followup on a panel with nothing bound.
func NoSession(panel int) *SkillError {
	return &SkillError{
		Category: CategoryPanel,
		Code:     "no_session",
		Message:  "No active chat session",
	}
}

// SkillNotFound creates an error for a tool name that maps to no known skill.
func SkillNotFound(name string) *SkillError {
	return &SkillError{
		Category: CategoryConfig,
		Code:     "skill_not_found",
		Message:  fmt.Sprintf("skill %q not found", name),
	}
}

// ConfigLoadFailed creates an error for when configuration loading fails.
func ConfigLoadFailed(path string, cause error) *SkillError {
	return &SkillError{
		Category: CategoryConfig,
		Code:     "config_load_failed",
		Message:  fmt.Sprintf("failed to load config from %q", path),
		Cause:    cause,
	}
}

// UsageStoreFailed creates an error for a failed write or query of the usage log.
func UsageStoreFailed(op string, cause error) *SkillError {
	return &SkillError{
		Category:  CategoryUsage,
		Code:      "usage_store_failed",
		Message:   fmt.Sprintf("usage store %s failed", op),
		Retryable: true,
		Cause:     cause,
	}
}
