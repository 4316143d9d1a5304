package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	skerrors "github.com/abdul-hamid-achik/skillpanes/internal/errors"
)

// Provider names a model API family
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// PanelsConfig bounds the panel table
type PanelsConfig struct {
	MaxPanels  int           `yaml:"max_panels"`  // Concurrent panels (default: 5)
	CloseWait  time.Duration `yaml:"close_wait"`  // Bounded wait for cancelled tasks on close
	NameFormat string        `yaml:"name_format"` // Panel title, %d is the 1-based panel number
}

// LimitsConfig is a turn-loop budget
type LimitsConfig struct {
	MaxToolCalls  int `yaml:"max_tool_calls"`
	MaxIterations int `yaml:"max_iterations"`
}

// TimeoutsConfig holds every deadline the turn loop and tools apply
type TimeoutsConfig struct {
	StreamOpen time.Duration `yaml:"stream_open"` // Until the first chunk arrives
	Turn       time.Duration `yaml:"turn"`        // One model request, first chunk to last
	ChunkStall time.Duration `yaml:"chunk_stall"` // Gap between chunks
	Tool       time.Duration `yaml:"tool"`        // Per tool call
	Command    time.Duration `yaml:"command"`     // run_command subprocess
}

// WorkspaceConfig scopes file and shell tools
type WorkspaceConfig struct {
	ProjectsDir    string `yaml:"projects_dir"`     // Jail root for file tools (default: parent of cwd)
	MaxOutputChars int    `yaml:"max_output_chars"` // Truncation for tool output (default: 12000)
}

// ApprovalConfig controls the approval gate
type ApprovalConfig struct {
	Mode           string   `yaml:"mode"`            // ask, auto or strict
	GatedTools     []string `yaml:"gated_tools"`     // Always gated in ask/strict mode
	ApprovePhrases []string `yaml:"approve_phrases"` // Free-text replies that approve
}

// ModelsConfig names the model per session role
type ModelsConfig struct {
	Default  string `yaml:"default"`
	Chat     string `yaml:"chat"`
	Agent    string `yaml:"agent"`
	Subagent string `yaml:"subagent"`
}

// ProvidersConfig picks the API family per session role (agents are always anthropic)
type ProvidersConfig struct {
	Default Provider `yaml:"default"`
	Chat    Provider `yaml:"chat"`
}

// Price is dollars per million tokens
type Price struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxRetries         int           `yaml:"max_retries"`          // Maximum retries on 429
	BaseDelay          time.Duration `yaml:"base_delay"`           // Base delay for exponential backoff
	MaxDelay           time.Duration `yaml:"max_delay"`            // Maximum delay between retries
	TokensPerMinute    int           `yaml:"tokens_per_minute"`    // Rate limit (tokens/minute)
	EnableRateLimiting bool          `yaml:"enable_rate_limiting"` // Enable proactive rate limiting
}

// UsageConfig locates the per-call usage log
type UsageConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// Config holds the application configuration
type Config struct {
	AnthropicAPIKey string `yaml:"-"` // From environment only
	GoogleAPIKey    string `yaml:"-"` // From environment only
	TavilyAPIKey    string `yaml:"-"` // Enables web_search

	LogLevel       string           `yaml:"log_level"`
	SkillsDir      string           `yaml:"skills_dir"`
	Panels         PanelsConfig     `yaml:"panels"`
	DefaultSession LimitsConfig     `yaml:"default_session"`
	ChatSession    LimitsConfig     `yaml:"chat_session"`
	AgentSession   LimitsConfig     `yaml:"agent_session"`
	Timeouts       TimeoutsConfig   `yaml:"timeouts"`
	Workspace      WorkspaceConfig  `yaml:"workspace"`
	Approval       ApprovalConfig   `yaml:"approval"`
	Models         ModelsConfig     `yaml:"models"`
	Providers      ProvidersConfig  `yaml:"providers"`
	Pricing        map[string]Price `yaml:"pricing"`
	RateLimit      RateLimitConfig  `yaml:"rate_limit"`
	Usage          UsageConfig      `yaml:"usage"`

	// Internal: where config was loaded from
	configPath string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	projects := ".."
	if cwd, err := os.Getwd(); err == nil {
		projects = filepath.Dir(cwd)
	}

	return &Config{
		LogLevel:  "warn",
		SkillsDir: "skills",
		Panels: PanelsConfig{
			MaxPanels:  5,
			CloseWait:  2 * time.Second,
			NameFormat: "Assistant %d",
		},
		DefaultSession: LimitsConfig{MaxToolCalls: 3, MaxIterations: 3},
		ChatSession:    LimitsConfig{MaxToolCalls: 3, MaxIterations: 3},
		AgentSession:   LimitsConfig{MaxToolCalls: 50, MaxIterations: 30},
		Timeouts: TimeoutsConfig{
			StreamOpen: 30 * time.Second,
			Turn:       300 * time.Second,
			ChunkStall: 60 * time.Second,
			Tool:       45 * time.Second,
			Command:    30 * time.Second,
		},
		Workspace: WorkspaceConfig{
			ProjectsDir:    projects,
			MaxOutputChars: 12000,
		},
		Approval: ApprovalConfig{
			Mode:       "ask",
			GatedTools: []string{"run_command"},
			ApprovePhrases: []string{
				"yes", "yeah", "yep", "sure", "go", "go ahead",
				"approve", "run it", "do it", "ok", "okay",
			},
		},
		Models: ModelsConfig{
			Default:  "gemini-3-flash-preview",
			Chat:     "gemini-3.1-pro-preview",
			Agent:    "claude-sonnet-4-5-20250929",
			Subagent: "claude-haiku-4-5-20251015",
		},
		Providers: ProvidersConfig{
			Default: ProviderGemini,
			Chat:    ProviderGemini,
		},
		Pricing: map[string]Price{
			"gemini-3-flash-preview":     {Input: 0.50, Output: 3.00},
			"gemini-3.1-pro-preview":     {Input: 2.00, Output: 12.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-haiku-4-5-20251015":  {Input: 1.00, Output: 5.00},
		},
		RateLimit: RateLimitConfig{
			MaxRetries:         5,
			BaseDelay:          1 * time.Second,
			MaxDelay:           60 * time.Second,
			TokensPerMinute:    30000,
			EnableRateLimiting: true,
		},
		Usage: UsageConfig{
			Enabled: true,
			DBPath:  filepath.Join(".skillpanes", "token_usage.db"),
		},
	}
}

// LoadOptions adjusts how configuration is loaded
type LoadOptions struct {
	// SkipKeyCheck allows loading with no API key, for commands that never
	// reach a model.
	SkipKeyCheck bool
}

// Load loads configuration from files and environment
func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

// LoadWithOptions loads configuration with opts applied
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.loadFromFile(path); err != nil {
				return nil, skerrors.ConfigLoadFailed(path, err)
			}
			cfg.configPath = path
			break
		}
	}

	if cfg.configPath == "" {
		if err := cfg.createDefault(); err != nil {
			// Non-fatal: just use defaults
			fmt.Fprintf(os.Stderr, "Warning: could not create default config: %v\n", err)
		}
	}

	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	cfg.TavilyAPIKey = os.Getenv("TAVILY_API_KEY")
	if cfg.GoogleAPIKey == "" {
		cfg.GoogleAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if !opts.SkipKeyCheck && cfg.AnthropicAPIKey == "" && cfg.GoogleAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY or GOOGLE_API_KEY environment variable is required")
	}

	return cfg, cfg.Validate()
}

// Validate rejects values the router cannot run with
func (c *Config) Validate() error {
	if c.Panels.MaxPanels < 1 {
		return fmt.Errorf("panels.max_panels must be at least 1, got %d", c.Panels.MaxPanels)
	}
	for name, l := range map[string]LimitsConfig{
		"default_session": c.DefaultSession,
		"chat_session":    c.ChatSession,
		"agent_session":   c.AgentSession,
	} {
		if l.MaxToolCalls < 0 || l.MaxIterations < 1 {
			return fmt.Errorf("%s: max_iterations must be >= 1 and max_tool_calls >= 0", name)
		}
	}
	switch c.Approval.Mode {
	case "ask", "auto", "strict":
	default:
		return fmt.Errorf("approval.mode must be ask, auto or strict, got %q", c.Approval.Mode)
	}
	return nil
}

// getConfigPaths returns config file paths in priority order
func getConfigPaths() []string {
	paths := []string{
		"skillpanes.yaml",
		filepath.Join(".skillpanes", "config.yaml"),
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "skillpanes", "config.yaml"))
	}

	return paths
}

// loadFromFile loads config from a YAML file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// createDefault creates a default config file
func (c *Config) createDefault() error {
	dir := ".skillpanes"
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path := filepath.Join(dir, "config.yaml")
	c.configPath = path

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	content := "# skillpanes configuration\n\n" + string(data)
	return os.WriteFile(path, []byte(content), 0644)
}

// PriceFor returns the configured price for a model, zero if unknown
func (c *Config) PriceFor(model string) Price {
	return c.Pricing[model]
}

// PanelName formats the title of a panel from its 0-based id
func (c *Config) PanelName(panel int) string {
	return fmt.Sprintf(c.Panels.NameFormat, panel+1)
}

// LogDir is where session logs are written
func (c *Config) LogDir() string {
	return filepath.Join(".skillpanes", "logs")
}

// ConfigPath returns where the config was loaded from
func (c *Config) ConfigPath() string {
	return c.configPath
}
