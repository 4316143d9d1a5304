package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/skillpanes/internal/config"
	"github.com/abdul-hamid-achik/skillpanes/internal/llm"
	"github.com/abdul-hamid-achik/skillpanes/internal/turn"
)

// DelegateTool is the local tool agents use to spawn a subagent
const DelegateTool = "delegate_task"

// MaxSubagentDepth bounds delegation chains
const MaxSubagentDepth = 2

var subagentLimits = config.LimitsConfig{MaxToolCalls: 15, MaxIterations: 10}

const subagentPrompt = `You are a research subagent. Complete the task using read-only tools,
then answer with a short, factual summary. Do not ask questions.`

var delegateDefinition = llm.ToolDefinition{
	Name:        DelegateTool,
	Description: "Hand a self-contained research task to a subagent with read-only tools. Returns its final answer.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task":    map[string]any{"type": "string", "description": "What the subagent should find out"},
			"context": map[string]any{"type": "string", "description": "Facts the subagent needs"},
		},
		"required": []string{"task"},
	},
}

// AgentSession runs on the agent backend with its own budgets. It answers
// delegate_task itself by running a nested turn on a child conversation,
// and keeps turn and cost totals across its subagents.
type AgentSession struct {
	*conversation

	depth    int
	root     *AgentSession
	subModel string
	subTools []llm.ToolDefinition

	mu       sync.Mutex
	turns    int
	cost     float64
	inflight context.CancelFunc
}

var (
	_ Session            = (*AgentSession)(nil)
	_ turn.LocalTools    = (*AgentSession)(nil)
	_ turn.UsageObserver = (*AgentSession)(nil)
)

func (a *AgentSession) IsAgent() bool { return true }

// Depth is 0 for a panel's agent and grows by one per delegation
func (a *AgentSession) Depth() int { return a.depth }

// Stream tracks the in-flight request so Interrupt can stop it.
func (a *AgentSession) Stream(ctx context.Context, pending []llm.Message) (<-chan llm.StreamChunk, error) {
	ctx, cancel := context.WithCancel(ctx)
	src, err := a.conversation.Stream(ctx, pending)
	if err != nil {
		cancel()
		return nil, err
	}

	a.mu.Lock()
	a.inflight = cancel
	a.mu.Unlock()

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		defer cancel()
		for c := range src {
			select {
			case out <- c:
			case <-ctx.Done():
				for range src {
				}
				return
			}
		}
	}()
	return out, nil
}

// Interrupt asks the backend to stop the current request and returns at once.
func (a *AgentSession) Interrupt() {
	a.mu.Lock()
	cancel := a.inflight
	a.inflight = nil
	a.mu.Unlock()
	if cancel != nil {
		sessLog.Debug("agent session %s interrupt requested", a.id[:8])
		go cancel()
	}
}

func (a *AgentSession) Close() error {
	a.Interrupt()
	return a.conversation.Close()
}

// ObserveUsage counts one model request against the root session
func (a *AgentSession) ObserveUsage(u llm.Usage, cost float64) {
	r := a.root
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns++
	r.cost += cost
}

// Totals returns turns and dollars including subagents
func (a *AgentSession) Totals() (turns int, cost float64) {
	r := a.root
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turns, r.cost
}

func (a *AgentSession) Status() string {
	turns, cost := a.Totals()
	return fmt.Sprintf("%s | %d turns | $%.4f", a.model, turns, cost)
}

func (a *AgentSession) HandlesLocal(name string) bool {
	return name == DelegateTool && a.depth < MaxSubagentDepth
}

// RunLocal runs delegate_task: a nested turn on a fresh child whose tool
// activity is reported as subagent events one level deeper.
func (a *AgentSession) RunLocal(ctx context.Context, loop *turn.Loop, req turn.Request, call llm.ToolCall) map[string]any {
	task, _ := call.Input["task"].(string)
	if strings.TrimSpace(task) == "" {
		return map[string]any{"error": "task is required"}
	}
	if extra, _ := call.Input["context"].(string); extra != "" {
		task += "\n\nContext:\n" + extra
	}

	child, err := a.spawn(ctx)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Subagent unavailable: %v", err)}
	}
	defer child.Close()

	depth := req.Depth + 1
	cancelled := func() bool {
		return ctx.Err() != nil || (req.Cancelled != nil && req.Cancelled())
	}
	forward := func(e turn.Event) {
		if req.Sink != nil && !cancelled() {
			req.Sink(e)
		}
	}

	sink := func(e turn.Event) {
		switch e.Type {
		case turn.EventText:
			// the child's answer comes back as the tool result
		case turn.EventToolStart:
			forward(turn.Event{Type: turn.EventSubagentTool, Tool: e.Tool, Args: e.Args, Depth: depth})
		case turn.EventToolResult:
			forward(turn.Event{Type: turn.EventSubagentResult, Tool: e.Tool, Summary: Summarize(e.Result), IsError: e.IsError, Depth: depth})
		default:
			forward(e)
		}
	}

	res := loop.Run(ctx, turn.Request{
		Session:   child,
		Input:     task,
		Sink:      sink,
		Cancelled: req.Cancelled,
		Label:     fmt.Sprintf("%s/sub%d", req.Label, depth),
		Depth:     depth,
	})
	forward(turn.Event{Type: turn.EventSubagentDone, OpCount: res.ToolCalls, Depth: depth})

	switch {
	case res.Cancelled:
		return map[string]any{"error": "Subagent cancelled."}
	case res.Err != nil && res.Text == "":
		return map[string]any{"error": fmt.Sprintf("Subagent failed: %v", res.Err)}
	}
	return map[string]any{"result": res.Text, "tool_calls": res.ToolCalls}
}

func (a *AgentSession) spawn(ctx context.Context) (*AgentSession, error) {
	depth := a.depth + 1
	tools := a.subTools
	if depth < MaxSubagentDepth {
		tools = append(append([]llm.ToolDefinition(nil), tools...), delegateDefinition)
	}
	child := &AgentSession{
		conversation: newConversation(a.skill, TypeSubagent, config.ProviderAnthropic, a.subModel, subagentPrompt, tools, subagentLimits, a.dial),
		depth:        depth,
		root:         a.root,
		subModel:     a.subModel,
		subTools:     a.subTools,
	}
	if err := child.Connect(ctx); err != nil {
		return nil, err
	}
	return child, nil
}

// Summarize reduces a tool result to one display line
func Summarize(result map[string]any) string {
	if msg, ok := result["error"].(string); ok {
		return truncateLine(msg, 120)
	}
	for _, key := range []string{"result", "content", "output", "stdout", "results", "files"} {
		if v, ok := result[key]; ok {
			return truncateLine(fmt.Sprint(v), 120)
		}
	}
	return "done"
}

func truncateLine(s string, max int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
