package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/abdul-hamid-achik/skillpanes/internal/backend"
	"github.com/abdul-hamid-achik/skillpanes/internal/config"
	skerrors "github.com/abdul-hamid-achik/skillpanes/internal/errors"
	"github.com/abdul-hamid-achik/skillpanes/internal/llm"
	"github.com/abdul-hamid-achik/skillpanes/internal/permissions"
	"github.com/abdul-hamid-achik/skillpanes/internal/skills"
	"github.com/abdul-hamid-achik/skillpanes/internal/tools"
	"github.com/abdul-hamid-achik/skillpanes/internal/turn"
	"github.com/abdul-hamid-achik/skillpanes/internal/usage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const (
	agentTool = skills.CodeAssistant
	chatTool  = "code_lookup"
)

// dialer hands out scripted clients per model in order, then empty mocks.
type dialer struct {
	mu     sync.Mutex
	queues map[string][]*llm.MockClient
}

func (d *dialer) add(model string, c *llm.MockClient) *llm.MockClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queues == nil {
		d.queues = map[string][]*llm.MockClient{}
	}
	d.queues[model] = append(d.queues[model], c)
	return c
}

func (d *dialer) dial(_ context.Context, _ config.Provider, model string) (llm.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.queues[model]
	if len(q) == 0 {
		return llm.NewMockClient(), nil
	}
	d.queues[model] = q[1:]
	return q[0], nil
}

// events collects sink output from any number of panels.
type events struct {
	mu  sync.Mutex
	got []panelEvent
}

type panelEvent struct {
	panel int
	ev    turn.Event
}

func (e *events) sink(panel int, ev turn.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, panelEvent{panel, ev})
}

func (e *events) len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.got)
}

func (e *events) types() []turn.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]turn.EventType, len(e.got))
	for i, pe := range e.got {
		out[i] = pe.ev.Type
	}
	return out
}

type result struct {
	panel int
	text  string
	err   error
}

func doneChan() (DoneFunc, chan result) {
	ch := make(chan result, 1)
	return func(panel int, text string, err error) { ch <- result{panel, text, err} }, ch
}

func wait(t *testing.T, ch chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not finish")
		return result{}
	}
}

type fixture struct {
	r       *Router
	cfg     *config.Config
	dialer  *dialer
	tracker *usage.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cfg := config.DefaultConfig()
	cfg.Workspace.ProjectsDir = t.TempDir()
	cfg.Panels.CloseWait = time.Second

	reg, _, err := tools.NewWorkspaceRegistry(cfg)
	require.NoError(t, err)

	d := &dialer{}
	tracker := usage.NewTracker(cfg.Pricing, nil)
	r := New(Deps{
		Config:  cfg,
		Catalog: skills.NewCatalog(),
		Factory: backend.NewFactory(cfg, reg, d.dial),
		Tools:   reg,
		Policy:  permissions.NewPolicy(permissions.ModeAsk, cfg.Approval.GatedTools, cfg.Approval.ApprovePhrases),
		Usage:   tracker,
	})
	t.Cleanup(r.Shutdown)
	return &fixture{r: r, cfg: cfg, dialer: d, tracker: tracker}
}

func TestStartSession_NewPanel(t *testing.T) {
	f := newFixture(t)
	f.dialer.add(f.cfg.Models.Chat, llm.NewMockClient(llm.MockTurn{Text: []string{"first"}}))
	f.dialer.add(f.cfg.Models.Chat, llm.NewMockClient(llm.MockTurn{Text: []string{"second"}}))

	ev := &events{}
	text, err := f.r.StartSession(context.Background(), chatTool, `{"task":"look"}`, "look", 0, ev.sink)
	require.NoError(t, err)
	require.Equal(t, "first", text)
	require.Equal(t, 1, f.r.Count())

	// A second skill while one panel is open lands on the next id.
	text, err = f.r.StartSession(context.Background(), chatTool, "", "again", 1, ev.sink)
	require.NoError(t, err)
	require.Equal(t, "second", text)
	require.Equal(t, 2, f.r.Count())
	require.True(t, f.r.Bound(0))
	require.True(t, f.r.Bound(1))
	require.Equal(t, chatTool, f.r.SkillName(0))

	require.Equal(t, []panelEvent{{0, turn.Event{Type: turn.EventText, Text: "first"}}, {1, turn.Event{Type: turn.EventText, Text: "second"}}}, ev.got)
}

func TestStartSession_FirstPromptHasEnvironment(t *testing.T) {
	f := newFixture(t)
	mock := f.dialer.add(f.cfg.Models.Chat, llm.NewMockClient())

	_, err := f.r.StartSession(context.Background(), chatTool, `{"task":"read main.go","project":"api"}`, "spoken", 0, nil)
	require.NoError(t, err)

	first := mock.Call(0).Messages[0].Content
	require.Contains(t, first, "[Environment]")
	require.Contains(t, first, "User request: read main.go\nProject: api")
}

func TestStartSession_RejectsBoundPanel(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.r.StartSessionIdle(context.Background(), agentTool, 0))

	_, err := f.r.StartSession(context.Background(), chatTool, "", "hi", 0, nil)
	require.ErrorIs(t, err, skerrors.PanelAlreadyBound(0))
	require.Equal(t, agentTool, f.r.SkillName(0))
	require.True(t, f.r.IsAgent(0))
}

func TestStartSession_UnknownSkillAndGaps(t *testing.T) {
	f := newFixture(t)

	_, err := f.r.StartSession(context.Background(), "nope", "", "hi", 0, nil)
	require.ErrorIs(t, err, skerrors.SkillNotFound("nope"))

	_, err = f.r.StartSession(context.Background(), chatTool, "", "hi", 3, nil)
	require.ErrorIs(t, err, skerrors.PanelNotFound(3))
}

func TestOpen_PanelLimit(t *testing.T) {
	f := newFixture(t)
	f.cfg.Panels.MaxPanels = 2

	for i := 0; i < 2; i++ {
		p, err := f.r.Open()
		require.NoError(t, err)
		require.Equal(t, i, p)
	}
	_, err := f.r.Open()
	require.ErrorIs(t, err, skerrors.PanelLimitReached(2))
}

func TestSendFollowup_NoSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.r.SendFollowup(context.Background(), "hi", 0, nil)
	require.Equal(t, "No active chat session", skerrors.GetUserMessage(err))

	_, err = f.r.Open()
	require.NoError(t, err)
	text, err := f.r.SendFollowup(context.Background(), "hi", 0, nil)
	require.ErrorIs(t, err, skerrors.NoSession(0))
	require.Equal(t, "No active chat session", text)
}

func TestSendFollowup_ChatUnboundAfterCancel(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.r.StartSessionIdle(context.Background(), chatTool, 0))

	f.r.CancelPanel(0)
	_, err := f.r.SendFollowup(context.Background(), "still there?", 0, nil)
	require.ErrorIs(t, err, skerrors.NoSession(0))
}

func TestLaunchFollowup_RejectsWhileBusy(t *testing.T) {
	f := newFixture(t)
	hold := make(chan struct{})
	f.dialer.add(f.cfg.Models.Agent, llm.NewMockClient(llm.MockTurn{Text: []string{"working"}, Hold: hold}))
	require.NoError(t, f.r.StartSessionIdle(context.Background(), agentTool, 0))

	done, ch := doneChan()
	require.NoError(t, f.r.LaunchFollowup(0, "one", nil, done))
	require.True(t, f.r.Busy(0))

	err := f.r.LaunchFollowup(0, "two", nil, nil)
	require.ErrorIs(t, err, skerrors.PanelBusy(0))
	_, err = f.r.SendFollowup(context.Background(), "three", 0, nil)
	require.ErrorIs(t, err, skerrors.PanelBusy(0))

	close(hold)
	res := wait(t, ch)
	require.Equal(t, 0, res.panel)
	require.Equal(t, "working", res.text)
	require.False(t, f.r.Busy(0))
}

func TestClosePanel_RenumbersInFlightTask(t *testing.T) {
	f := newFixture(t)
	hold := make(chan struct{})
	f.dialer.add(f.cfg.Models.Chat, llm.NewMockClient())
	f.dialer.add(f.cfg.Models.Chat, llm.NewMockClient())
	f.dialer.add(f.cfg.Models.Chat, llm.NewMockClient(llm.MockTurn{Text: []string{"late"}, Hold: hold}))

	require.NoError(t, f.r.StartSessionIdle(context.Background(), agentTool, 0))
	require.NoError(t, f.r.StartSessionIdle(context.Background(), chatTool, 1))
	require.NoError(t, f.r.StartSessionIdle(context.Background(), chatTool, 2))
	require.NoError(t, f.r.StartSessionIdle(context.Background(), chatTool, 3))

	ev := &events{}
	done, ch := doneChan()
	require.NoError(t, f.r.LaunchFollowup(3, "hi", ev.sink, done))
	require.Eventually(t, func() bool { return ev.len() == 1 }, time.Second, 5*time.Millisecond)

	msg := f.r.ClosePanel(1)
	require.Equal(t, "code_lookup session closed.", msg)
	require.Equal(t, 3, f.r.Count())
	require.Equal(t, agentTool, f.r.SkillName(0))
	require.True(t, f.r.Busy(2))
	require.False(t, f.r.Busy(1))

	close(hold)
	res := wait(t, ch)
	require.Equal(t, 2, res.panel)
	require.Equal(t, "late", res.text)
	require.Equal(t, 3, ev.got[0].panel)
}

func TestClosePanel_Unknown(t *testing.T) {
	f := newFixture(t)
	require.Empty(t, f.r.ClosePanel(4))
	require.Equal(t, 0, f.r.Count())
}

func TestClosePanel_WhileRunning(t *testing.T) {
	f := newFixture(t)
	f.dialer.add(f.cfg.Models.Agent, llm.NewMockClient(llm.MockTurn{Text: []string{"x"}, Hold: make(chan struct{})}))
	require.NoError(t, f.r.StartSessionIdle(context.Background(), agentTool, 0))

	ev := &events{}
	done, ch := doneChan()
	require.NoError(t, f.r.LaunchFollowup(0, "go", ev.sink, done))
	require.Eventually(t, func() bool { return ev.len() == 1 }, time.Second, 5*time.Millisecond)

	require.Equal(t, "code_assistant session closed.", f.r.ClosePanel(0))
	require.Equal(t, 0, f.r.Count())
	require.Equal(t, -1, wait(t, ch).panel)
}

func TestApprovalDenied(t *testing.T) {
	f := newFixture(t)
	mock := f.dialer.add(f.cfg.Models.Agent, llm.NewMockClient(
		llm.MockTurn{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "run_command", Input: map[string]any{"command": "rm -rf /tmp/x"}}}},
		llm.MockTurn{Text: []string{"Understood, not running it."}},
	))

	ev := &events{}
	done, ch := doneChan()
	require.NoError(t, f.r.LaunchStart(0, agentTool, `{"task":"clean up"}`, "clean up", ev.sink, done))

	require.Eventually(t, func() bool { return f.r.HasPendingApproval(0) }, time.Second, 5*time.Millisecond)
	require.Equal(t, "rm -rf /tmp/x", f.r.PendingCommand(0))

	require.True(t, f.r.ApproveCommand(false, 0))
	res := wait(t, ch)

	require.False(t, f.r.HasPendingApproval(0))
	require.Empty(t, f.r.PendingCommand(0))
	require.False(t, f.r.ApproveCommand(true, 0))
	require.Equal(t, "Understood, not running it.", res.text)

	second := mock.Call(1)
	fed := second.Messages[len(second.Messages)-1].ToolResults[0]
	require.JSONEq(t, `{"error":"Command denied by user."}`, fed.Content)

	require.Equal(t, []turn.EventType{
		turn.EventToolStart, turn.EventApprovalRequest, turn.EventToolResult, turn.EventText,
	}, ev.types())
}

func TestCancelPanel_StopsEventsAndApproval(t *testing.T) {
	f := newFixture(t)
	f.dialer.add(f.cfg.Models.Agent, llm.NewMockClient(
		llm.MockTurn{Text: []string{"checking"}, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "run_command", Input: map[string]any{"command": "make"}}}},
	))
	require.NoError(t, f.r.StartSessionIdle(context.Background(), agentTool, 0))

	ev := &events{}
	done, ch := doneChan()
	require.NoError(t, f.r.LaunchFollowup(0, "build it", ev.sink, done))
	require.Eventually(t, func() bool { return f.r.HasPendingApproval(0) }, time.Second, 5*time.Millisecond)
	before := ev.len()

	f.r.CancelPanel(0)
	require.False(t, f.r.HasPendingApproval(0))
	f.r.CancelPanel(0)

	res := wait(t, ch)
	require.Equal(t, -1, res.panel)
	require.Equal(t, before, ev.len())
	require.Equal(t, []turn.EventType{turn.EventText, turn.EventToolStart, turn.EventApprovalRequest}, ev.types())
	require.False(t, f.r.Busy(0))
}

func TestCancelPanel_NoOps(t *testing.T) {
	f := newFixture(t)
	f.r.CancelPanel(0)
	_, err := f.r.Open()
	require.NoError(t, err)
	f.r.CancelPanel(0)
	f.r.CancelPanel(0)
	require.False(t, f.r.HasPendingApproval(0))
}

func TestCloseAll_ResetsTotals(t *testing.T) {
	f := newFixture(t)
	f.dialer.add(f.cfg.Models.Chat, llm.NewMockClient(llm.MockTurn{Text: []string{"hi"}, Usage: llm.Usage{InputTokens: 900, OutputTokens: 300}}))

	_, err := f.r.StartSession(context.Background(), chatTool, "", "hello", 0, nil)
	require.NoError(t, err)
	require.NoError(t, f.r.StartSessionIdle(context.Background(), agentTool, 1))
	require.Equal(t, 1200, f.tracker.Totals().Tokens())

	require.Equal(t, "All sessions closed.", f.r.CloseAll())
	require.Equal(t, 0, f.r.Count())
	require.Equal(t, usage.Totals{}, f.tracker.Totals())
	require.False(t, f.r.Bound(0))
}

func TestCloseAll_LateUsageLeavesTotalsAlone(t *testing.T) {
	f := newFixture(t)
	m := llm.NewMockClient()
	m.ChatStreamFunc = func(ctx context.Context, _ []llm.Message, _ []llm.ToolDefinition, _ string) <-chan llm.StreamChunk {
		ch := make(chan llm.StreamChunk)
		go func() {
			defer close(ch)
			for _, c := range []llm.StreamChunk{
				{Type: llm.ChunkUsage, Usage: &llm.Usage{InputTokens: 700, OutputTokens: 50}},
				{Type: llm.ChunkText, Text: "working"},
			} {
				select {
				case ch <- c:
				case <-ctx.Done():
					return
				}
			}
			<-ctx.Done()
		}()
		return ch
	}
	f.dialer.add(f.cfg.Models.Agent, m)
	require.NoError(t, f.r.StartSessionIdle(context.Background(), agentTool, 0))

	ev := &events{}
	done, ch := doneChan()
	require.NoError(t, f.r.LaunchFollowup(0, "go", ev.sink, done))
	require.Eventually(t, func() bool { return ev.len() == 1 }, time.Second, 5*time.Millisecond)

	f.r.CloseAll()
	require.Equal(t, -1, wait(t, ch).panel)
	require.Equal(t, usage.Totals{}, f.tracker.Totals())
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, f.cfg.Models.Default+" | 0 tokens", f.r.Status())

	f.dialer.add(f.cfg.Models.Chat, llm.NewMockClient(llm.MockTurn{Usage: llm.Usage{InputTokens: 1000, OutputTokens: 234}}))
	_, err := f.r.StartSession(context.Background(), chatTool, "", "hello", 0, nil)
	require.NoError(t, err)
	require.Equal(t, f.cfg.Models.Chat+" | 1.2K tokens", f.r.Status())

	require.NoError(t, f.r.StartSessionIdle(context.Background(), agentTool, 1))
	require.Equal(t, f.cfg.Models.Agent+" | 0 turns | $0.0000", f.r.Status())
}

func TestSendDefault(t *testing.T) {
	f := newFixture(t)
	f.dialer.add(f.cfg.Models.Default, llm.NewMockClient(
		llm.MockTurn{Text: []string{"Hi there."}},
		llm.MockTurn{Text: []string{"Opening the code assistant."}, ToolCalls: []llm.ToolCall{{ID: "t", Name: agentTool, Input: map[string]any{"task": "fix tests"}}}},
	))

	var got []turn.Event
	text, trig, err := f.r.SendDefault(context.Background(), "hello", turn.Collect(&got))
	require.NoError(t, err)
	require.Nil(t, trig)
	require.Equal(t, "Hi there.", text)

	text, trig, err = f.r.SendDefault(context.Background(), "fix my tests", nil)
	require.NoError(t, err)
	require.NotNil(t, trig)
	require.Equal(t, "Opening the code assistant.", text)
	require.Equal(t, agentTool, trig.ToolName)
	require.JSONEq(t, `{"task":"fix tests"}`, trig.Arguments)
	require.Equal(t, "fix my tests", trig.UserText)
	require.Equal(t, 0, f.r.Count())
}
