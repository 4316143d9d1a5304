package backend

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/skillpanes/internal/config"
	skerrors "github.com/abdul-hamid-achik/skillpanes/internal/errors"
	"github.com/abdul-hamid-achik/skillpanes/internal/llm"
	"github.com/abdul-hamid-achik/skillpanes/internal/skills"
	"github.com/abdul-hamid-achik/skillpanes/internal/turn"
)

type stubTools struct{}

func (stubTools) Definitions(names ...string) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, n := range names {
		defs = append(defs, llm.ToolDefinition{Name: n})
	}
	return defs
}

type recordingDispatcher struct {
	mu    sync.Mutex
	names []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, name string, _ map[string]any) map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names = append(d.names, name)
	return map[string]any{"content": "package main\nfunc main() {}"}
}

func mockDial(clients map[string]*llm.MockClient) ClientFunc {
	return func(_ context.Context, _ config.Provider, model string) (llm.Client, error) {
		c, ok := clients[model]
		if !ok {
			return nil, errors.New("no such model")
		}
		return c, nil
	}
}

func toolNames(defs []llm.ToolDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}

func TestFactory_New(t *testing.T) {
	cfg := config.DefaultConfig()
	f := NewFactory(cfg, stubTools{}, mockDial(nil))

	agentSkill := &skills.Skill{Name: "code_assistant", Kind: skills.KindAgent, Tools: []string{"read_file", "run_command"}}
	s := f.New(agentSkill)
	require.True(t, s.IsAgent())
	require.Equal(t, TypeAgent, s.Type())
	require.Equal(t, cfg.Models.Agent, s.Model())
	require.Equal(t, cfg.AgentSession, s.Limits())
	require.Equal(t, []string{"read_file", "run_command", DelegateTool}, toolNames(s.(*AgentSession).Tools()))

	chatSkill := &skills.Skill{Name: "lookup", Kind: skills.KindChat}
	c := f.New(chatSkill)
	require.False(t, c.IsAgent())
	require.Equal(t, TypeChat, c.Type())
	require.Empty(t, c.(*ChatSession).Tools())
	require.Empty(t, c.Status())

	d := f.NewDefault([]llm.ToolDefinition{{Name: "code_assistant"}})
	require.Equal(t, TypeDefault, d.Type())
	require.Equal(t, cfg.DefaultSession, d.Limits())
	require.Equal(t, []string{"code_assistant", "read_file", "list_files", "search_files", "web_search"}, toolNames(d.Tools()))
	require.NotEqual(t, s.ID(), c.ID())
}

func TestConversation_ConnectFailure(t *testing.T) {
	f := NewFactory(config.DefaultConfig(), stubTools{}, mockDial(nil))
	s := f.New(&skills.Skill{Name: "x", Kind: skills.KindChat})

	err := s.Connect(context.Background())
	require.Error(t, err)
	require.Equal(t, skerrors.CategoryBackend, skerrors.GetCategory(err))
	require.False(t, s.Connected())
}

func TestChatSession_InterruptUnbinds(t *testing.T) {
	cfg := config.DefaultConfig()
	mock := llm.NewMockClient()
	f := NewFactory(cfg, stubTools{}, mockDial(map[string]*llm.MockClient{cfg.Models.Chat: mock}))
	s := f.New(&skills.Skill{Name: "x", Kind: skills.KindChat})

	require.NoError(t, s.Connect(context.Background()))
	require.True(t, s.Connected())

	s.Commit([]llm.Message{{Role: llm.RoleUser, Content: "earlier"}})
	ch, err := s.Stream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "now"}})
	require.NoError(t, err)
	for range ch {
	}
	require.Len(t, mock.Call(0).Messages, 2)

	s.Interrupt()
	require.False(t, s.Connected())
	_, err = s.Stream(context.Background(), nil)
	require.Equal(t, "No active chat session", skerrors.GetUserMessage(err))

	require.NoError(t, s.Close())
	require.Empty(t, s.(*ChatSession).History())
}

func TestAgentSession_DelegateTask(t *testing.T) {
	cfg := config.DefaultConfig()
	root := llm.NewMockClient(
		llm.MockTurn{ToolCalls: []llm.ToolCall{{ID: "d1", Name: DelegateTool, Input: map[string]any{"task": "find main", "context": "go repo"}}}},
		llm.MockTurn{Text: []string{"All done."}},
	)
	child := llm.NewMockClient(
		llm.MockTurn{ToolCalls: []llm.ToolCall{{ID: "r1", Name: "read_file", Input: map[string]any{"path": "main.go"}}}},
		llm.MockTurn{Text: []string{"main is in main.go"}},
	)
	f := NewFactory(cfg, stubTools{}, mockDial(map[string]*llm.MockClient{
		cfg.Models.Agent:    root,
		cfg.Models.Subagent: child,
	}))

	s := f.New(&skills.Skill{Name: "code_assistant", Kind: skills.KindAgent, Tools: []string{"read_file"}})
	require.NoError(t, s.Connect(context.Background()))

	disp := &recordingDispatcher{}
	loop := &turn.Loop{Tools: disp}
	var events []turn.Event
	res := loop.Run(context.Background(), turn.Request{Session: s, Input: "where is main?", Sink: turn.Collect(&events)})

	require.Equal(t, "All done.", res.Text)
	require.Equal(t, []string{"read_file"}, disp.names)

	var got []turn.EventType
	for _, e := range events {
		got = append(got, e.Type)
	}
	require.Equal(t, []turn.EventType{
		turn.EventToolStart,
		turn.EventSubagentTool,
		turn.EventSubagentResult,
		turn.EventSubagentDone,
		turn.EventToolResult,
		turn.EventText,
	}, got)
	require.Equal(t, 1, events[1].Depth)
	require.Equal(t, "package main", events[2].Summary)
	require.Equal(t, 1, events[3].OpCount)
	require.Equal(t, "main is in main.go", events[4].Result["result"])

	require.True(t, strings.Contains(child.Call(0).Messages[0].Content, "Context:\ngo repo"))
	// The subagent may delegate once more, but no deeper.
	require.Contains(t, toolNames(child.Call(0).Tools), DelegateTool)

	turns, _ := s.(*AgentSession).Totals()
	require.Equal(t, 4, turns)
	require.True(t, strings.HasPrefix(s.Status(), cfg.Models.Agent+" | 4 turns | $"))
}

func TestAgentSession_DelegateRequiresTask(t *testing.T) {
	a := &AgentSession{conversation: &conversation{}}
	a.root = a
	out := a.RunLocal(context.Background(), &turn.Loop{}, turn.Request{}, llm.ToolCall{Name: DelegateTool, Input: map[string]any{}})
	require.Equal(t, "task is required", out["error"])
}

func TestAgentSession_HandlesLocalDepth(t *testing.T) {
	a := &AgentSession{conversation: &conversation{}}
	require.True(t, a.HandlesLocal(DelegateTool))
	require.False(t, a.HandlesLocal("read_file"))

	deep := &AgentSession{conversation: &conversation{}, depth: MaxSubagentDepth}
	require.False(t, deep.HandlesLocal(DelegateTool))
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		result map[string]any
		want   string
	}{
		{"error", map[string]any{"error": "boom\nstack"}, "boom"},
		{"content", map[string]any{"path": "a", "content": "line1\nline2"}, "line1"},
		{"long", map[string]any{"output": strings.Repeat("x", 200)}, strings.Repeat("x", 120) + "..."},
		{"empty", map[string]any{"bytes_written": 3}, "done"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Summarize(tt.result))
		})
	}
}

func TestInitialPrompt(t *testing.T) {
	dir := t.TempDir()
	p := InitialPrompt(context.Background(), dir, skills.Args{Task: "add a test", Project: "api"})

	require.True(t, strings.HasPrefix(p, "[Environment]\nDate: "))
	require.Contains(t, p, "Projects directory: "+dir)
	require.Contains(t, p, "\n\nUser request: add a test\nProject: api")
	require.NotContains(t, p, "Git (")
}
