package tools

import (
	"github.com/abdul-hamid-achik/skillpanes/internal/config"
)

// NewWorkspaceRegistry builds the registry used by skill sessions: file
// tools and run_command confined to the projects directory, plus web_search
// when a Tavily key is configured.
func NewWorkspaceRegistry(cfg *config.Config) (*Registry, *Jail, error) {
	jail, err := NewJail(cfg.Workspace.ProjectsDir)
	if err != nil {
		return nil, nil, err
	}

	max := cfg.Workspace.MaxOutputChars
	sandbox := DetectSandbox()
	toolLog.Info("workspace %s, sandbox %s", jail.Root(), sandbox.Name())

	r := NewRegistry(cfg.Timeouts.Tool)
	r.Register(&ReadFileTool{Jail: jail, MaxOutput: max})
	r.Register(&WriteFileTool{Jail: jail})
	r.Register(&EditFileTool{Jail: jail})
	r.Register(&ListFilesTool{Jail: jail})
	r.Register(&SearchFilesTool{Jail: jail, MaxOutput: max})
	r.Register(&RunCommandTool{Jail: jail, Sandbox: sandbox, Timeout: cfg.Timeouts.Command, MaxOutput: max})
	if cfg.TavilyAPIKey != "" {
		r.Register(NewWebSearchTool(cfg.TavilyAPIKey))
	}
	return r, jail, nil
}
