package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	maxListedFiles = 100
	maxDiffChars   = 4000
)

// ReadFileTool reads file contents inside the jail
type ReadFileTool struct {
	Jail      *Jail
	MaxOutput int
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file in the projects directory. Use this to examine code, configuration files, or any text file."
}

func (t *ReadFileTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file, relative to the projects directory or absolute.",
			},
			"start_line": map[string]any{
				"type":        "integer",
				"description": "Optional: Start reading from this line number (1-indexed).",
			},
			"end_line": map[string]any{
				"type":        "integer",
				"description": "Optional: Stop reading at this line number (inclusive).",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Permission() PermissionLevel { return PermissionRead }

func (t *ReadFileTool) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	path, _ := input["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	resolved, err := t.Jail.Resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("File not found: %s", path)
		}
		return nil, fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	content := string(data)
	lines := strings.Count(content, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		lines++
	}

	start, hasStart := intArg(input, "start_line")
	end, hasEnd := intArg(input, "end_line")
	if hasStart || hasEnd {
		all := strings.Split(content, "\n")
		from, to := 0, len(all)
		if hasStart && start > 0 {
			from = start - 1
		}
		if hasEnd && end > 0 && end <= len(all) {
			to = end
		}
		if from >= to || from >= len(all) {
			return nil, fmt.Errorf("invalid line range")
		}
		var sb strings.Builder
		for i := from; i < to; i++ {
			fmt.Fprintf(&sb, "%4d | %s\n", i+1, all[i])
		}
		content = sb.String()
	}

	return map[string]any{
		"path":    t.Jail.Rel(resolved),
		"content": Truncate(content, t.MaxOutput),
		"lines":   lines,
	}, nil
}

// WriteFileTool writes content to a file inside the jail
type WriteFileTool struct {
	Jail *Jail
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file. Creates the file if it doesn't exist, or overwrites if it does. Creates parent directories as needed."
}

func (t *WriteFileTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to write.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The full content to write.",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Permission() PermissionLevel { return PermissionWrite }

func (t *WriteFileTool) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	path, _ := input["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	content, ok := input["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content is required")
	}

	resolved, err := t.Jail.ResolveForWrite(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	f, err := t.Jail.openNoFollow(resolved, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	n, err := f.WriteString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return map[string]any{
		"path":          t.Jail.Rel(resolved),
		"bytes_written": n,
	}, nil
}

// EditFileTool replaces the first occurrence of a string in a file
type EditFileTool struct {
	Jail *Jail
}

func (t *EditFileTool) Name() string { return "edit_file" }

func (t *EditFileTool) Description() string {
	return "Replace the first occurrence of old_text with new_text in a file. old_text must match exactly, including whitespace."
}

func (t *EditFileTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to edit.",
			},
			"old_text": map[string]any{
				"type":        "string",
				"description": "Exact text to find.",
			},
			"new_text": map[string]any{
				"type":        "string",
				"description": "Replacement text.",
			},
		},
		"required": []string{"path", "old_text", "new_text"},
	}
}

func (t *EditFileTool) Permission() PermissionLevel { return PermissionWrite }

func (t *EditFileTool) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	path, _ := input["path"].(string)
	oldText, _ := input["old_text"].(string)
	newText, hasNew := input["new_text"].(string)
	if path == "" || oldText == "" || !hasNew {
		return nil, fmt.Errorf("path, old_text and new_text are required")
	}

	resolved, err := t.Jail.ResolveForWrite(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("File not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	before := string(data)
	if !strings.Contains(before, oldText) {
		return nil, fmt.Errorf("old_text not found in file")
	}
	content := strings.Replace(before, oldText, newText, 1)

	f, err := t.Jail.openNoFollow(resolved, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	diff, adds, dels := unifiedDiff(before, content)
	return map[string]any{
		"path":         t.Jail.Rel(resolved),
		"replacements": 1,
		"diff":         Truncate(diff, maxDiffChars),
		"insertions":   adds,
		"deletions":    dels,
	}, nil
}

// ListFilesTool lists a directory, skipping hidden entries
type ListFilesTool struct {
	Jail *Jail
}

func (t *ListFilesTool) Name() string { return "list_files" }

func (t *ListFilesTool) Description() string {
	return "List files and directories in a directory. Directories end with '/'. At most 100 entries are returned."
}

func (t *ListFilesTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"directory": map[string]any{
				"type":        "string",
				"description": "Directory to list (default: the projects directory).",
			},
		},
	}
}

func (t *ListFilesTool) Permission() PermissionLevel { return PermissionRead }

func (t *ListFilesTool) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	dir, _ := input["directory"].(string)
	resolved, err := t.Jail.Resolve(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("Directory not found: %s", dir)
		}
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		files = append(files, name)
	}
	sort.Strings(files)
	if len(files) > maxListedFiles {
		files = files[:maxListedFiles]
	}

	return map[string]any{
		"directory": t.Jail.Rel(resolved),
		"files":     files,
		"count":     len(files),
	}, nil
}

// Truncate caps s at max characters with a note of the original length.
// A non-positive max disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("\n... (truncated, %d total chars)", len(s))
}

func intArg(input map[string]any, key string) (int, bool) {
	switch v := input[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}
