package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/skillpanes/internal/llm"
	"github.com/abdul-hamid-achik/skillpanes/internal/logger"
)

var skillLog = logger.WithPrefix("skills")

// Catalog holds built-in skills plus any loaded from markdown files.
// A file skill with the same name replaces the built-in.
type Catalog struct {
	mu        sync.RWMutex
	skills    map[string]*Skill
	skillDirs []string
}

// NewCatalog creates a catalog and loads skills from the given directories
// plus the user config directory.
func NewCatalog(dirs ...string) *Catalog {
	c := &Catalog{skillDirs: append([]string(nil), dirs...)}

	if home, err := os.UserHomeDir(); err == nil {
		c.skillDirs = append(c.skillDirs, filepath.Join(home, ".config", "skillpanes", "skills"))
	}

	c.Reload()
	return c
}

// Reload resets to the built-ins and rereads every skill directory
func (c *Catalog) Reload() {
	skills := make(map[string]*Skill)
	for _, s := range builtins() {
		skills[s.Name] = s
	}
	for _, dir := range c.skillDirs {
		loadFromDir(dir, skills)
	}

	c.mu.Lock()
	c.skills = skills
	c.mu.Unlock()
}

func loadFromDir(dir string, into map[string]*Skill) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return // Directory doesn't exist, skip
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		skill, err := loadSkill(path)
		if err != nil {
			skillLog.Warn("failed to load skill %s: %v", path, err)
			continue
		}
		if skill.Name == "" {
			skill.Name = strings.TrimSuffix(entry.Name(), ".md")
		}
		if skill.ToolName == "" {
			skill.ToolName = skill.Name
		}
		if skill.Kind == "" {
			skill.Kind = KindChat
		}
		if skill.Kind != KindChat && skill.Kind != KindAgent {
			skillLog.Warn("skill %s: unknown kind %q, skipped", skill.Name, skill.Kind)
			continue
		}

		into[skill.Name] = skill
	}
}

// loadSkill loads a single skill from a file
func loadSkill(path string) (*Skill, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	skill := &Skill{}

	text := string(content)
	if strings.HasPrefix(text, "---") {
		parts := strings.SplitN(text[3:], "---", 2)
		if len(parts) == 2 {
			if err := yaml.Unmarshal([]byte(parts[0]), skill); err != nil {
				return nil, fmt.Errorf("invalid frontmatter: %w", err)
			}
			skill.Prompt = strings.TrimSpace(parts[1])
		}
	} else {
		skill.Prompt = text
	}

	return skill, nil
}

// Get returns a skill by name
func (c *Catalog) Get(name string) (*Skill, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.skills[name]
	return s, ok
}

// ByTool returns the skill the default session starts through tool
func (c *Catalog) ByTool(tool string) (*Skill, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.skills {
		if s.ToolName == tool {
			return s, true
		}
	}
	return nil, false
}

// List returns all skills sorted by name
func (c *Catalog) List() []*Skill {
	c.mu.RLock()
	out := make([]*Skill, 0, len(c.skills))
	for _, s := range c.skills {
		out = append(out, s)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Match finds a skill whose triggers match the input. Ties go to the
// first name in sort order.
func (c *Catalog) Match(input string) *Skill {
	for _, s := range c.List() {
		if s.Matches(input) {
			return s
		}
	}
	return nil
}

// TriggerTools returns one tool definition per skill for the default
// session. Calling one of them starts that skill in a panel.
func (c *Catalog) TriggerTools() []llm.ToolDefinition {
	list := c.List()
	defs := make([]llm.ToolDefinition, 0, len(list))
	for _, s := range list {
		defs = append(defs, llm.ToolDefinition{
			Name:        s.ToolName,
			Description: s.Description,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"task":    map[string]any{"type": "string", "description": "What the user wants to do"},
					"project": map[string]any{"type": "string", "description": "Project name or directory if specified"},
				},
				"required": []string{"task"},
			},
		})
	}
	return defs
}

// IsTrigger reports whether tool starts a skill
func (c *Catalog) IsTrigger(tool string) bool {
	_, ok := c.ByTool(tool)
	return ok
}
