package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// RunCommandTool executes a shell command inside the jail. It is the one
// execute-level tool and sits behind the approval gate.
type RunCommandTool struct {
	Jail      *Jail
	Sandbox   Sandbox // nil runs plain bash
	Timeout   time.Duration
	MaxOutput int
}

func (t *RunCommandTool) Name() string { return "run_command" }

func (t *RunCommandTool) Description() string {
	return "Run a shell command (build, test, git, etc.) in the projects directory. The user must approve each command. Returns exit_code, stdout and stderr."
}

func (t *RunCommandTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute.",
			},
			"cwd": map[string]any{
				"type":        "string",
				"description": "Optional working directory, relative to the projects directory.",
			},
		},
		"required": []string{"command"},
	}
}

func (t *RunCommandTool) Permission() PermissionLevel { return PermissionExecute }

func (t *RunCommandTool) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	command, _ := input["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("command is required")
	}
	if err := CheckCommandSafety(command); err != nil {
		return nil, err
	}

	cwd, _ := input["cwd"].(string)
	dir, err := t.Jail.Resolve(cwd)
	if err != nil {
		return nil, err
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exe, args := "bash", []string{"-c", command}
	if t.Sandbox != nil && t.Sandbox.Available() {
		exe, args = t.Sandbox.Wrap(command, dir)
	}

	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Dir = dir
	cmd.Env = commandEnv()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("Command timed out after %ds", int(timeout.Seconds()))
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("failed to start command: %w", runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	result := map[string]any{
		"exit_code": exitCode,
		"stdout":    Truncate(stdout.String(), t.MaxOutput),
	}
	if stderr.Len() > 0 {
		result["stderr"] = Truncate(stderr.String(), t.MaxOutput)
	}
	return result, nil
}

// SearchFilesTool searches file contents with ripgrep, falling back to grep
type SearchFilesTool struct {
	Jail      *Jail
	MaxOutput int
}

func (t *SearchFilesTool) Name() string { return "search_files" }

func (t *SearchFilesTool) Description() string {
	return "Search file contents for a regex pattern. Returns matching lines with file paths and line numbers."
}

func (t *SearchFilesTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Regular expression to search for.",
			},
			"directory": map[string]any{
				"type":        "string",
				"description": "Directory to search (default: the projects directory).",
			},
			"glob": map[string]any{
				"type":        "string",
				"description": "Optional file glob, e.g. '*.go'.",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *SearchFilesTool) Permission() PermissionLevel { return PermissionRead }

func (t *SearchFilesTool) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	pattern, _ := input["pattern"].(string)
	if pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	directory, _ := input["directory"].(string)
	dir, err := t.Jail.Resolve(directory)
	if err != nil {
		return nil, err
	}
	glob, _ := input["glob"].(string)

	var cmd *exec.Cmd
	if _, err := exec.LookPath("rg"); err == nil {
		args := []string{"-n", "--no-heading", "--max-count", "50"}
		if glob != "" {
			args = append(args, "--glob", glob)
		}
		args = append(args, "--", pattern, dir)
		cmd = exec.CommandContext(ctx, "rg", args...)
	} else {
		args := []string{"-rn", "-E"}
		if glob != "" {
			args = append(args, "--include="+glob)
		}
		args = append(args, "--", pattern, dir)
		cmd = exec.CommandContext(ctx, "grep", args...)
	}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("search failed: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return map[string]any{
		"pattern":   pattern,
		"results":   Truncate(stdout.String(), t.MaxOutput),
		"exit_code": exitCode,
	}, nil
}
