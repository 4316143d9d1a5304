package display

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/skillpanes/internal/turn"
)

// ApprovalHint follows the command in an approval request
const ApprovalHint = "Press **Enter** to run or say **no** to deny."

var toolCategories = map[string]string{
	"read_file":     "read",
	"write_file":    "write",
	"edit_file":     "edit",
	"list_files":    "list",
	"search_files":  "search",
	"run_command":   "run",
	"web_search":    "data",
	"delegate_task": "tool",
}

// ToolCategory groups a tool for coloring: read, write, edit, list, search,
// run, data or tool.
func ToolCategory(name string) string {
	if c, ok := toolCategories[name]; ok {
		return c
	}
	if strings.HasPrefix(name, "get_") {
		return "data"
	}
	return "tool"
}

// Formatter turns turn events into chat messages. Root is stripped from
// paths shown to the user.
type Formatter struct {
	Root string
}

// Render maps e to the message a panel shows. ok is false for events that
// have nothing to show.
func (f Formatter) Render(e turn.Event) (Speaker, string, bool) {
	switch e.Type {
	case turn.EventText:
		return SpeakerAssistant, e.Text, e.Text != ""
	case turn.EventToolStart:
		return ToolSpeaker(ToolCategory(e.Tool)), f.DescribeCall(e.Tool, e.Args), true
	case turn.EventApprovalRequest:
		cmd, _ := e.Args["command"].(string)
		return SpeakerApproval, fmt.Sprintf("`%s`\n%s", cmd, ApprovalHint), true
	case turn.EventToolResult:
		return SpeakerToolResult, SummarizeResult(e.Tool, e.Result), true
	case turn.EventSubagentTool:
		return SpeakerSubagentOp, f.DescribeCall(e.Tool, e.Args), true
	case turn.EventSubagentResult:
		if e.IsError {
			return SpeakerSubagentResult, "ERROR: " + e.Summary, true
		}
		return SpeakerSubagentResult, e.Summary, true
	case turn.EventSubagentDone:
		return SpeakerSubagentDone, strconv.Itoa(e.OpCount), true
	}
	return "", "", false
}

// DescribeCall is the one-line description of a tool call
func (f Formatter) DescribeCall(name string, args map[string]any) string {
	str := func(k, def string) string {
		if v, ok := args[k].(string); ok && v != "" {
			return v
		}
		return def
	}

	switch name {
	case "read_file":
		return "Read " + f.short(str("path", ""))
	case "edit_file":
		old := strings.ReplaceAll(str("old_text", ""), "\n", " ")
		if len(old) > 50 {
			old = old[:50] + "..."
		}
		return fmt.Sprintf("Edit %s\n  find: %s", f.short(str("path", "")), old)
	case "write_file":
		return fmt.Sprintf("Write %s (%d chars)", f.short(str("path", "")), len(str("content", "")))
	case "list_files":
		return "List " + f.short(str("directory", "."))
	case "search_files":
		return fmt.Sprintf("Search /%s/ in %s", str("pattern", ""), f.short(str("directory", ".")))
	case "run_command":
		return "$ " + str("command", "")
	case "delegate_task":
		task := str("task", "")
		if len(task) > 60 {
			task = task[:60]
		}
		return "Subagent: " + task
	case "web_search":
		return fmt.Sprintf("Web search %q", str("query", ""))
	}
	if strings.HasPrefix(name, "get_") {
		nice := strings.ReplaceAll(strings.TrimPrefix(name, "get_"), "_", " ")
		return "Fetch " + nice
	}
	return name
}

func (f Formatter) short(path string) string {
	if f.Root == "" || !filepath.IsAbs(path) {
		return path
	}
	if rel, err := filepath.Rel(f.Root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

// SummarizeResult renders a tool result for a panel
func SummarizeResult(name string, data map[string]any) string {
	if msg, ok := data["error"]; ok {
		return fmt.Sprintf("Error: %v", msg)
	}
	if s, ok := data["summary"].(string); ok {
		return s
	}

	switch name {
	case "run_command":
		code := number(data["exit_code"], -1)
		out := strings.TrimSpace(stringOf(data["stdout"]))
		res := fmt.Sprintf("exit %d", code)
		if out != "" {
			lines := strings.Split(out, "\n")
			if len(lines) > 15 {
				lines = append(append(lines[:8:8], "  ..."), lines[len(lines)-4:]...)
			}
			res += "\n" + strings.Join(lines, "\n")
		}
		if errOut := strings.TrimSpace(stringOf(data["stderr"])); errOut != "" && code != 0 {
			if len(errOut) > 200 {
				errOut = errOut[:200]
			}
			res += "\nstderr: " + errOut
		}
		return res
	case "read_file":
		content := stringOf(data["content"])
		lines := strings.Split(content, "\n")
		switch {
		case len(lines) > 8:
			return strings.Join(lines[:8], "\n") + fmt.Sprintf("\n  ... (%d lines total)", number(data["lines"], len(lines)))
		case content == "":
			return "(empty file)"
		case len(content) > 500:
			return content[:500]
		}
		return content
	case "write_file":
		return fmt.Sprintf("Wrote %d bytes", number(data["bytes_written"], 0))
	case "edit_file":
		res := fmt.Sprintf("%d replacement(s)", number(data["replacements"], 0))
		if diff := stringOf(data["diff"]); diff != "" {
			res += fmt.Sprintf(" (+%d -%d)\n%s", number(data["insertions"], 0), number(data["deletions"], 0), Clip(diff))
		}
		return res
	case "list_files":
		files := stringsOf(data["files"])
		if len(files) == 0 {
			return "(empty directory)"
		}
		if len(files) <= 20 {
			return strings.Join(files, "\n")
		}
		return strings.Join(files[:15], "\n") + fmt.Sprintf("\n  ... +%d more", len(files)-15)
	case "web_search":
		return summarizeWeb(data)
	case "search_files":
		results := strings.TrimSpace(stringOf(data["results"]))
		if results == "" {
			return "No matches"
		}
		lines := strings.Split(results, "\n")
		if len(lines) <= 12 {
			return fmt.Sprintf("%d matches\n%s", len(lines), results)
		}
		return fmt.Sprintf("%d matches\n%s\n  ... +%d more", len(lines), strings.Join(lines[:10], "\n"), len(lines)-10)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprint(data)
	}
	return Clip(string(raw))
}

// summarizeWeb lists result titles and URLs under the answer, if any
func summarizeWeb(data map[string]any) string {
	results, _ := data["results"].([]any)
	var lines []string
	if answer := stringOf(data["answer"]); answer != "" {
		lines = append(lines, answer)
	}
	if len(results) == 0 {
		return strings.Join(append(lines, "No results"), "\n")
	}
	lines = append(lines, fmt.Sprintf("%d results", len(results)))
	for i, r := range results {
		m, _ := r.(map[string]any)
		lines = append(lines, fmt.Sprintf("%d. %s (%s)", i+1, stringOf(m["title"]), stringOf(m["url"])))
	}
	return Clip(strings.Join(lines, "\n"))
}

// Clip shortens long tool output: past 30 lines it keeps the first 20 and
// the last 3, past 1500 characters it cuts.
func Clip(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > 30 {
		kept := append(lines[:20:20], fmt.Sprintf("  ... (%d more lines)", len(lines)-23))
		return strings.Join(append(kept, lines[len(lines)-3:]...), "\n")
	}
	if len(text) > 1500 {
		return text[:1500] + "..."
	}
	return text
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func stringsOf(v any) []string {
	switch xs := v.(type) {
	case []string:
		return xs
	case []any:
		out := make([]string, 0, len(xs))
		for _, x := range xs {
			out = append(out, fmt.Sprint(x))
		}
		return out
	}
	return nil
}

func number(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}
