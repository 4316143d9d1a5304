package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSkillError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *SkillError
		contains []string
	}{
		{
			name: "with cause",
			err: &SkillError{
				Category: CategoryBackend,
				Code:     "backend_unavailable",
				Message:  "gemini backend is unavailable",
				Cause:    fmt.Errorf("connection refused"),
			},
			contains: []string{"[backend]", "backend_unavailable", "gemini backend is unavailable", "connection refused"},
		},
		{
			name: "without cause",
			err: &SkillError{
				Category: CategoryTool,
				Code:     "tool_not_found",
				Message:  "Unknown tool: foo",
			},
			contains: []string{"[tool]", "tool_not_found", "Unknown tool: foo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("Error() = %q, want it to contain %q", msg, s)
				}
			}
		})
	}
}

func TestSkillError_UnwrapChain(t *testing.T) {
	root := fmt.Errorf("disk full")
	mid := UsageStoreFailed("insert", root)
	outer := fmt.Errorf("record usage: %w", mid)

	if !errors.Is(outer, root) {
		t.Error("expected errors.Is to find root cause through chain")
	}

	var se *SkillError
	if !errors.As(outer, &se) {
		t.Fatal("expected errors.As to find SkillError in chain")
	}
	if se.Code != "usage_store_failed" {
		t.Errorf("got code %q, want %q", se.Code, "usage_store_failed")
	}
}

func TestSkillError_Is(t *testing.T) {
	if !errors.Is(PanelBusy(0), PanelBusy(3)) {
		t.Error("expected Is() to match same category+code regardless of panel")
	}
	if errors.Is(PanelBusy(0), PanelNotFound(0)) {
		t.Error("expected Is() to not match different codes")
	}
	if errors.Is(PanelBusy(0), fmt.Errorf("not a skill error")) {
		t.Error("expected Is() to return false for non-SkillError target")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable", BackendTimeout(nil), true},
		{"non-retryable", PanelAlreadyBound(1), false},
		{"wrapped retryable", fmt.Errorf("outer: %w", StreamFailed(nil)), true},
		{"plain error", fmt.Errorf("plain"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category Category
		code     string
	}{
		{"panel", PanelLimitReached(5), CategoryPanel, "panel_limit_reached"},
		{"approval", CommandDenied(), CategoryApproval, "command_denied"},
		{"wrapped config", fmt.Errorf("wrap: %w", ConfigLoadFailed("x.yaml", nil)), CategoryConfig, "config_load_failed"},
		{"plain", fmt.Errorf("plain"), "", ""},
		{"nil", nil, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCategory(tt.err); got != tt.category {
				t.Errorf("GetCategory() = %q, want %q", got, tt.category)
			}
			if got := GetCode(tt.err); got != tt.code {
				t.Errorf("GetCode() = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestGetUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"denial", CommandDenied(), "Command denied by user."},
		{"unknown tool", fmt.Errorf("wrap: %w", ToolNotFound("fly")), "Unknown tool: fly"},
		{"no session", NoSession(2), "No active chat session"},
		{"plain", fmt.Errorf("something broke"), "something broke"},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetUserMessage(tt.err); got != tt.want {
				t.Errorf("GetUserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConstructors(t *testing.T) {
	t.Run("ToolExecutionFailed_inherits_retryable", func(t *testing.T) {
		cause := BackendUnavailable("anthropic", nil)
		err := ToolExecutionFailed("run_command", cause)
		assertError(t, err, CategoryTool, "tool_execution_failed", true, cause)
	})

	t.Run("ToolExecutionFailed_plain_cause", func(t *testing.T) {
		cause := fmt.Errorf("exit 2")
		err := ToolExecutionFailed("run_command", cause)
		assertError(t, err, CategoryTool, "tool_execution_failed", false, cause)
	})

	t.Run("PathOutsideWorkspace", func(t *testing.T) {
		err := PathOutsideWorkspace("/etc/passwd")
		assertError(t, err, CategoryTool, "path_outside_workspace", false, nil)
		if !strings.Contains(err.Message, "/etc/passwd") {
			t.Errorf("Message should contain path, got %q", err.Message)
		}
	})

	t.Run("CommandBlocked", func(t *testing.T) {
		err := CommandBlocked("sudo ")
		assertError(t, err, CategoryTool, "command_blocked", false, nil)
	})

	t.Run("ToolTimeout", func(t *testing.T) {
		cause := fmt.Errorf("deadline exceeded")
		err := ToolTimeout("search_files", cause)
		assertError(t, err, CategoryTool, "tool_timeout", true, cause)
	})

	t.Run("SkillNotFound", func(t *testing.T) {
		err := SkillNotFound("painter")
		assertError(t, err, CategoryConfig, "skill_not_found", false, nil)
	})
}

func assertError(t *testing.T, err *SkillError, category Category, code string, retryable bool, cause error) {
	t.Helper()
	if err.Category != category {
		t.Errorf("Category = %q, want %q", err.Category, category)
	}
	if err.Code != code {
		t.Errorf("Code = %q, want %q", err.Code, code)
	}
	if err.Retryable != retryable {
		t.Errorf("Retryable = %v, want %v", err.Retryable, retryable)
	}
	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Message == "" {
		t.Error("Message should not be empty")
	}
}
