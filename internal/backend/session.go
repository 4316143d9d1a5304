// Package backend implements the two session families a panel can bind:
// a streaming chat whose tool loop the router drives, and an agent with
// its own budgets, subagents and cost accounting.
package backend

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/skillpanes/internal/config"
	skerrors "github.com/abdul-hamid-achik/skillpanes/internal/errors"
	"github.com/abdul-hamid-achik/skillpanes/internal/llm"
	"github.com/abdul-hamid-achik/skillpanes/internal/logger"
	"github.com/abdul-hamid-achik/skillpanes/internal/turn"
)

var sessLog = logger.WithPrefix("backend")

// Session types, as recorded in the usage log
const (
	TypeDefault  = "default"
	TypeChat     = "chat"
	TypeAgent    = "agent"
	TypeSubagent = "subagent"
)

// Session is one conversation bound to one panel
type Session interface {
	turn.Session

	ID() string
	SkillName() string
	IsAgent() bool

	// Connect dials the backend. Calling it again is a no-op.
	Connect(ctx context.Context) error
	Connected() bool
	// Interrupt stops the in-flight request without closing the session.
	Interrupt()
	Close() error
	// Status is a one-line summary for the status bar, empty when the
	// session keeps no totals of its own.
	Status() string
}

// ClientFunc dials a model endpoint
type ClientFunc func(ctx context.Context, provider config.Provider, model string) (llm.Client, error)

// conversation is the history and client handle both families share.
type conversation struct {
	id       string
	skill    string
	typ      string
	provider config.Provider
	model    string
	prompt   string
	tools    []llm.ToolDefinition
	limits   config.LimitsConfig
	dial     ClientFunc

	mu      sync.Mutex
	client  llm.Client
	history []llm.Message
}

func newConversation(skill, typ string, provider config.Provider, model, prompt string, tools []llm.ToolDefinition, limits config.LimitsConfig, dial ClientFunc) *conversation {
	return &conversation{
		id:       uuid.NewString(),
		skill:    skill,
		typ:      typ,
		provider: provider,
		model:    model,
		prompt:   prompt,
		tools:    tools,
		limits:   limits,
		dial:     dial,
	}
}

func (c *conversation) ID() string                  { return c.id }
func (c *conversation) SkillName() string           { return c.skill }
func (c *conversation) Model() string               { return c.model }
func (c *conversation) Type() string                { return c.typ }
func (c *conversation) Limits() config.LimitsConfig { return c.limits }

// Tools returns the definitions sent with every request
func (c *conversation) Tools() []llm.ToolDefinition { return c.tools }

func (c *conversation) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}
	client, err := c.dial(ctx, c.provider, c.model)
	if err != nil {
		return skerrors.BackendUnavailable(string(c.provider), err)
	}
	c.client = client
	sessLog.Debug("%s session %s connected (%s/%s)", c.typ, c.id[:8], c.provider, c.model)
	return nil
}

func (c *conversation) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil
}

func (c *conversation) Stream(ctx context.Context, pending []llm.Message) (<-chan llm.StreamChunk, error) {
	c.mu.Lock()
	client := c.client
	msgs := make([]llm.Message, 0, len(c.history)+len(pending))
	msgs = append(msgs, c.history...)
	msgs = append(msgs, pending...)
	c.mu.Unlock()

	if client == nil {
		return nil, skerrors.NoSession(-1)
	}
	return client.ChatStream(ctx, msgs, c.tools, c.prompt), nil
}

func (c *conversation) Commit(msgs []llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, msgs...)
}

// History returns a copy of the committed messages
func (c *conversation) History() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Message(nil), c.history...)
}

// unbind drops the client handle; the history stays.
func (c *conversation) unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = nil
}

func (c *conversation) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = nil
	c.history = nil
	return nil
}
