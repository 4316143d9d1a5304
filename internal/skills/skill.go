package skills

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/skillpanes/internal/config"
)

// Kind selects which backend session family a skill binds to
type Kind string

const (
	// KindChat is a streaming chat whose tool loop the router drives.
	KindChat Kind = "chat"
	// KindAgent is an agent backend with its own budgets, subagents and cost.
	KindAgent Kind = "agent"
)

// Skill represents a named backend capability bindable to a panel
type Skill struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	ToolName    string               `yaml:"tool"`     // Tool the default session calls to start this skill
	Kind        Kind                 `yaml:"kind"`     // chat or agent
	Provider    config.Provider      `yaml:"provider"` // Ignored for agents
	Model       string               `yaml:"model"`
	Tools       []string             `yaml:"tools"` // Workspace tools exposed to the session
	Triggers    []string             `yaml:"triggers"`
	Limits      *config.LimitsConfig `yaml:"limits"`
	Prompt      string               `yaml:"-"` // The markdown content after frontmatter
}

// Args is what the default session passes when it triggers a skill
type Args struct {
	Task    string `json:"task"`
	Project string `json:"project,omitempty"`
}

// ParseArgs decodes trigger arguments, falling back to the user's words
// when the model sent none.
func ParseArgs(arguments, userText string) Args {
	var a Args
	if arguments != "" {
		_ = json.Unmarshal([]byte(arguments), &a)
	}
	if a.Task == "" {
		a.Task = userText
	}
	return a
}

// IsAgent reports whether the skill binds an agent session
func (s *Skill) IsAgent() bool {
	return s.Kind == KindAgent
}

// Budget returns the skill's own limits or the per-kind default
func (s *Skill) Budget(cfg *config.Config) config.LimitsConfig {
	if s.Limits != nil {
		return *s.Limits
	}
	if s.IsAgent() {
		return cfg.AgentSession
	}
	return cfg.ChatSession
}

// ResolveModel returns the model the skill runs on
func (s *Skill) ResolveModel(cfg *config.Config) string {
	if s.Model != "" {
		return s.Model
	}
	if s.IsAgent() {
		return cfg.Models.Agent
	}
	return cfg.Models.Chat
}

// ResolveProvider returns the API family; agents always run on anthropic
func (s *Skill) ResolveProvider(cfg *config.Config) config.Provider {
	if s.IsAgent() {
		return config.ProviderAnthropic
	}
	if s.Provider != "" {
		return s.Provider
	}
	return cfg.Providers.Chat
}

// Matches checks if a skill matches the given input. A plain trigger
// must appear as whole words; /pattern/ triggers are regular expressions.
func (s *Skill) Matches(input string) bool {
	input = strings.ToLower(input)

	for _, trigger := range s.Triggers {
		pattern := `\b` + regexp.QuoteMeta(strings.ToLower(trigger)) + `\b`
		if strings.HasPrefix(trigger, "/") && strings.HasSuffix(trigger, "/") && len(trigger) > 1 {
			pattern = trigger[1 : len(trigger)-1]
		}
		if matched, _ := regexp.MatchString(pattern, input); matched {
			return true
		}
	}

	return false
}
