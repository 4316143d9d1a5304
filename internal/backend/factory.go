package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/skillpanes/internal/config"
	"github.com/abdul-hamid-achik/skillpanes/internal/llm"
	"github.com/abdul-hamid-achik/skillpanes/internal/skills"
)

// Tools offered to subagents and the default session. None of them write.
var readOnlyTools = []string{"read_file", "list_files", "search_files", "web_search"}

const defaultPrompt = `You are a concise personal assistant in a terminal.
For casual conversation just respond with text. When the user asks about code,
wants changes to a project, or wants commands run, call the matching skill tool
instead of answering yourself.`

// ToolSource supplies model-facing tool definitions by name
type ToolSource interface {
	Definitions(names ...string) []llm.ToolDefinition
}

// Factory builds sessions for skills
type Factory struct {
	cfg   *config.Config
	tools ToolSource
	dial  ClientFunc
}

// NewFactory creates a factory. A nil dial uses the real providers.
func NewFactory(cfg *config.Config, tools ToolSource, dial ClientFunc) *Factory {
	if dial == nil {
		dial = DefaultDialer(cfg)
	}
	return &Factory{cfg: cfg, tools: tools, dial: dial}
}

// New builds an unconnected session for skill
func (f *Factory) New(skill *skills.Skill) Session {
	model := skill.ResolveModel(f.cfg)
	tools := f.tools.Definitions(skill.Tools...)
	if len(skill.Tools) == 0 {
		tools = nil
	}

	if skill.IsAgent() {
		tools = append(tools, delegateDefinition)
		a := &AgentSession{
			conversation: newConversation(skill.Name, TypeAgent, config.ProviderAnthropic, model, skill.Prompt, tools, skill.Budget(f.cfg), f.dial),
			subModel:     f.cfg.Models.Subagent,
			subTools:     f.tools.Definitions(readOnlyTools...),
		}
		a.root = a
		return a
	}

	return &ChatSession{
		conversation: newConversation(skill.Name, TypeChat, skill.ResolveProvider(f.cfg), model, skill.Prompt, tools, skill.Budget(f.cfg), f.dial),
	}
}

// NewDefault builds the persistent default conversation. triggers are the
// skill-start tools; the read-only workspace tools run inline.
func (f *Factory) NewDefault(triggers []llm.ToolDefinition) *ChatSession {
	tools := append(append([]llm.ToolDefinition(nil), triggers...), f.tools.Definitions(readOnlyTools...)...)
	return &ChatSession{
		conversation: newConversation("default", TypeDefault, f.cfg.Providers.Default, f.cfg.Models.Default, defaultPrompt, tools, f.cfg.DefaultSession, f.dial),
	}
}

const (
	breakerFailures = 5
	breakerCooldown = 30 * time.Second
)

// DefaultDialer connects to Anthropic or Gemini with the configured keys,
// behind the rate limiter when it is enabled. Every client for a provider
// shares one circuit breaker.
func DefaultDialer(cfg *config.Config) ClientFunc {
	var mu sync.Mutex
	breakers := make(map[config.Provider]*llm.CircuitBreaker)
	breakerFor := func(p config.Provider) *llm.CircuitBreaker {
		mu.Lock()
		defer mu.Unlock()
		b, ok := breakers[p]
		if !ok {
			b = llm.NewCircuitBreaker(breakerFailures, breakerCooldown)
			breakers[p] = b
		}
		return b
	}

	return func(ctx context.Context, provider config.Provider, model string) (llm.Client, error) {
		var client llm.Client
		switch provider {
		case config.ProviderAnthropic:
			if cfg.AnthropicAPIKey == "" {
				return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
			}
			retries := cfg.RateLimit.MaxRetries
			if cfg.RateLimit.EnableRateLimiting {
				retries = 0 // the limiter retries instead
			}
			client = llm.NewAnthropicClient(cfg.AnthropicAPIKey, model, retries)
		case config.ProviderGemini:
			if cfg.GoogleAPIKey == "" {
				return nil, fmt.Errorf("GOOGLE_API_KEY is not set")
			}
			g, err := llm.NewGeminiClient(ctx, cfg.GoogleAPIKey, model)
			if err != nil {
				return nil, err
			}
			client = g
		default:
			return nil, fmt.Errorf("unknown provider %q", provider)
		}

		if cfg.RateLimit.EnableRateLimiting {
			client = llm.NewRateLimitedClient(client, cfg.RateLimit)
		}
		return llm.NewBreakerClient(client, breakerFor(provider), string(provider)), nil
	}
}
