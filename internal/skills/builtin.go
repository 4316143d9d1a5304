package skills

// CodeAssistant is the built-in coding agent
const CodeAssistant = "code_assistant"

const codePrompt = `You are a coding assistant working inside a projects directory.

Rules:
1. Only touch files the user asked about. Do not explore to "understand the project".
2. If the user says "edit X": read X, edit X, done.
3. Never read a file you already read in this conversation.
4. Use list_files only when you do not know the filename.
5. Use write_file only for brand new files; otherwise edit_file.
6. Hand self-contained research to delegate_task so your own context stays small.

Be concise. Format with markdown. Never use sudo.`

const quickPrompt = `You answer quick questions about code in the projects directory.
Read at most what you need, never modify files, and answer in a few sentences of markdown.`

func builtins() []*Skill {
	return []*Skill{
		{
			Name:        CodeAssistant,
			Description: "Help with coding tasks: read/write/edit files, run commands, search code. Use when the user asks about code, wants to make changes to projects, run scripts, debug issues, or explore codebases.",
			ToolName:    CodeAssistant,
			Kind:        KindAgent,
			Tools:       []string{"read_file", "write_file", "edit_file", "list_files", "search_files", "run_command"},
			Triggers:    []string{"refactor", `/\bfix\b.*\bbug\b/`},
			Prompt:      codePrompt,
		},
		{
			Name:        "code_lookup",
			Description: "Answer a quick read-only question about a file or project without making changes.",
			ToolName:    "code_lookup",
			Kind:        KindChat,
			Tools:       []string{"read_file", "list_files", "search_files", "web_search"},
			Prompt:      quickPrompt,
		},
	}
}
