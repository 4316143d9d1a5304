package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/abdul-hamid-achik/skillpanes/internal/backend"
	"github.com/abdul-hamid-achik/skillpanes/internal/config"
	"github.com/abdul-hamid-achik/skillpanes/internal/display"
	"github.com/abdul-hamid-achik/skillpanes/internal/llm"
	"github.com/abdul-hamid-achik/skillpanes/internal/permissions"
	"github.com/abdul-hamid-achik/skillpanes/internal/router"
	"github.com/abdul-hamid-achik/skillpanes/internal/skills"
	"github.com/abdul-hamid-achik/skillpanes/internal/tools"
	"github.com/abdul-hamid-achik/skillpanes/internal/usage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type dialer struct {
	mu     sync.Mutex
	queues map[string][]*llm.MockClient
}

func (d *dialer) add(model string, c *llm.MockClient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queues == nil {
		d.queues = map[string][]*llm.MockClient{}
	}
	d.queues[model] = append(d.queues[model], c)
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

// held streams text only after hold is closed
func held(hold <-chan struct{}, text string) *llm.MockClient {
	m := llm.NewMockClient()
	m.ChatStreamFunc = func(ctx context.Context, _ []llm.Message, _ []llm.ToolDefinition, _ string) <-chan llm.StreamChunk {
		ch := make(chan llm.StreamChunk, 2)
		go func() {
			defer close(ch)
			select {
			case <-hold:
			case <-ctx.Done():
				return
			}
			ch <- llm.StreamChunk{Type: llm.ChunkText, Text: text}
			ch <- llm.StreamChunk{Type: llm.ChunkDone}
		}()
		return ch
	}
	return m
}

type fixture struct {
	o       *Orchestrator
	r       *router.Router
	cfg     *config.Config
	rec     *display.Recorder
	dialer  *dialer
	tracker *usage.Tracker
	events  chan display.InputEvent
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
	catalog := skills.NewCatalog()
	policy := permissions.NewPolicy(permissions.ModeAsk, cfg.Approval.GatedTools, cfg.Approval.ApprovePhrases)
	tracker := usage.NewTracker(cfg.Pricing, nil)
	r := router.New(router.Deps{
		Config:  cfg,
		Catalog: catalog,
		Factory: backend.NewFactory(cfg, reg, d.dial),
		Tools:   reg,
		Policy:  policy,
		Usage:   tracker,
	})
	t.Cleanup(r.Shutdown)

	rec := &display.Recorder{}
	o := New(Deps{Config: cfg, Router: r, Catalog: catalog, Policy: policy, Sink: rec})

	f := &fixture{o: o, r: r, cfg: cfg, rec: rec, dialer: d, tracker: tracker, events: make(chan display.InputEvent)}
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- o.Run(ctx, f.events) }()
	t.Cleanup(func() {
		cancel()
		require.ErrorIs(t, <-stopped, context.Canceled)
	})
	return f
}

// send delivers ev and returns once the loop has finished handling it.
func (f *fixture) send(ev display.InputEvent) {
	f.events <- ev
	f.events <- display.InputEvent{Type: display.InputFocus, Panel: -1}
}

func (f *fixture) say(text string, panel int) {
	f.send(display.Text(text, panel))
}

func (f *fixture) waitFor(t *testing.T, panel int, speaker display.Speaker, text string) {
	t.Helper()
	require.Eventually(t, func() bool { return f.rec.Has(panel, speaker, text) },
		2*time.Second, 5*time.Millisecond, "panel %d never showed %s %q:\n%s", panel, speaker, text, f.rec.Transcript(panel))
}

// lookup scripts the default conversation to answer the next message by
// opening code_lookup.
func (f *fixture) lookup(task string) {
	f.dialer.add(f.cfg.Models.Default, llm.NewMockClient(
		llm.MockTurn{ToolCalls: []llm.ToolCall{{ID: "d1", Name: "code_lookup", Input: map[string]any{"task": task}}}},
	))
}

func (f *fixture) waitIdle(t *testing.T, panel int) {
	t.Helper()
	require.Eventually(t, func() bool { return !f.r.Busy(panel) }, 2*time.Second, 5*time.Millisecond)
}

func TestSkillTriggerOpensFirstPanel(t *testing.T) {
	f := newFixture(t)
	f.dialer.add(f.cfg.Models.Agent, llm.NewMockClient(llm.MockTurn{Text: []string{"Fixed the ", "login bug."}}))

	f.say("please fix the login bug", 0)
	require.Equal(t, StateSkillActive, f.o.State())
	require.Equal(t, 0, f.o.Active())

	f.waitFor(t, 0, display.SpeakerAssistant, "login bug.")
	f.waitFor(t, 0, display.SpeakerUser, "please fix the login bug")
	require.Eventually(t, func() bool {
		for _, c := range f.rec.Commands() {
			if c.Kind == "status" && c.Panel == 0 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"start_skill"}, f.rec.Kinds())
	require.Equal(t, "Assistant 1", f.rec.Commands()[0].Text)
}

func TestDefaultConversationTriggersSkill(t *testing.T) {
	f := newFixture(t)
	f.dialer.add(f.cfg.Models.Default, llm.NewMockClient(
		llm.MockTurn{Text: []string{"Hello!"}},
		llm.MockTurn{ToolCalls: []llm.ToolCall{{ID: "t1", Name: "code_lookup", Input: map[string]any{"task": "explain main.go"}}}},
	))
	f.dialer.add(f.cfg.Models.Chat, llm.NewMockClient(llm.MockTurn{Text: []string{"main.go starts the server."}}))

	f.say("hello", 0)
	f.waitFor(t, IdlePanel, display.SpeakerAssistant, "Hello!")
	require.Eventually(t, func() bool { return !f.o.defaultBusy.Load() }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, StateIdle, f.o.State())

	f.say("explain main.go to me", 0)
	f.waitFor(t, 0, display.SpeakerAssistant, "main.go starts the server.")
	require.Equal(t, StateSkillActive, f.o.State())
	require.True(t, f.rec.Has(0, display.SpeakerUser, "explain main.go to me"))
	require.True(t, f.rec.Has(IdlePanel, display.SpeakerUser, "hello"))
	require.Equal(t, []string{"start_skill"}, f.rec.Kinds())
}

func TestCasualTextStaysIdle(t *testing.T) {
	f := newFixture(t)
	f.dialer.add(f.cfg.Models.Default, llm.NewMockClient(
		llm.MockTurn{Text: []string{"Pay bills on time."}},
		llm.MockTurn{Text: []string{"Sounds fun."}},
	))

	f.say("my credit score dropped, any tips?", 0)
	f.waitFor(t, IdlePanel, display.SpeakerAssistant, "Pay bills on time.")
	require.Eventually(t, func() bool { return !f.o.defaultBusy.Load() }, 2*time.Second, 5*time.Millisecond)

	f.say("I edited a video and want to decode a barcode", 0)
	f.waitFor(t, IdlePanel, display.SpeakerAssistant, "Sounds fun.")
	require.Eventually(t, func() bool { return !f.o.defaultBusy.Load() }, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, StateIdle, f.o.State())
	require.Equal(t, 0, f.r.Count())
	require.Empty(t, f.rec.Kinds())
}

func TestSplitBindsAgentSession(t *testing.T) {
	f := newFixture(t)
	f.say("fix the parser bug", 0)
	f.waitIdle(t, 0)

	f.send(display.InputEvent{Type: display.InputSplit})
	require.Equal(t, 2, f.r.Count())
	require.Equal(t, 1, f.o.Active())
	require.True(t, f.r.Bound(1))
	require.True(t, f.r.IsAgent(1))
	require.True(t, f.r.Bound(0))
	require.True(t, f.rec.Has(1, display.SpeakerAssistant, "**Assistant 2 ready.**"))
	require.Equal(t, []string{"start_skill", "split", "focus"}, f.rec.Kinds())
}

func TestSplitPhraseAndLimit(t *testing.T) {
	f := newFixture(t)
	f.cfg.Panels.MaxPanels = 2
	f.say("fix the parser bug", 0)
	f.waitIdle(t, 0)

	f.say("open a new window please", 0)
	require.Equal(t, 2, f.r.Count())
	f.say("split window", 1)
	require.Equal(t, 2, f.r.Count())
	require.True(t, f.rec.Has(1, display.SpeakerSystem, "Max 2 windows reached"))
}

func TestChatSplitBindsOnFirstMessage(t *testing.T) {
	f := newFixture(t)
	f.dialer.add(f.cfg.Models.Chat, llm.NewMockClient(llm.MockTurn{Text: []string{"first"}}))
	f.dialer.add(f.cfg.Models.Chat, llm.NewMockClient(llm.MockTurn{Text: []string{"second panel answer"}}))

	f.lookup("config loader")
	f.say("look up the config loader", 0)
	f.waitFor(t, 0, display.SpeakerAssistant, "first")
	f.waitIdle(t, 0)

	f.send(display.InputEvent{Type: display.InputSplit})
	require.Equal(t, 2, f.r.Count())
	require.False(t, f.r.Bound(1))

	f.say("and the router?", 1)
	f.waitFor(t, 1, display.SpeakerAssistant, "second panel answer")
	require.Equal(t, "code_lookup", f.r.SkillName(1))
}

func TestCloseMiddlePanelRenumbers(t *testing.T) {
	f := newFixture(t)
	hold := make(chan struct{})
	f.dialer.add(f.cfg.Models.Agent, llm.NewMockClient())
	f.dialer.add(f.cfg.Models.Agent, llm.NewMockClient())
	f.dialer.add(f.cfg.Models.Agent, held(hold, "late answer"))

	f.say("fix the parser bug", 0)
	f.waitIdle(t, 0)
	f.send(display.InputEvent{Type: display.InputSplit})
	f.send(display.InputEvent{Type: display.InputSplit})
	require.Equal(t, 3, f.r.Count())

	f.say("run the tests", 2)
	require.True(t, f.r.Busy(2))

	f.send(display.InputEvent{Type: display.InputClose, Panel: 1})
	require.Equal(t, 2, f.r.Count())
	require.Equal(t, 1, f.o.Active())
	require.True(t, f.r.Busy(1))
	require.True(t, f.r.Bound(0))

	close(hold)
	f.waitFor(t, 1, display.SpeakerAssistant, "late answer")
	require.False(t, f.rec.Has(2, display.SpeakerAssistant, "late answer"))

	cmds := f.rec.Commands()
	var tail []string
	for _, c := range cmds {
		if c.Kind == "close_panel" || c.Kind == "focus" {
			tail = append(tail, c.String())
		}
	}
	require.Equal(t, []string{"focus[1]", "focus[2]", "focus[1]", "close_panel", "focus[1]"}, tail)
}

func TestCloseBelowFocusKeepsFocusedPanel(t *testing.T) {
	f := newFixture(t)
	f.say("fix the layout bug", 0)
	f.waitIdle(t, 0)
	f.send(display.InputEvent{Type: display.InputSplit})
	f.send(display.InputEvent{Type: display.InputSplit})
	require.Equal(t, 2, f.o.Active())

	f.send(display.InputEvent{Type: display.InputClose, Panel: 0})
	require.Equal(t, 2, f.r.Count())
	require.Equal(t, 1, f.o.Active())

	var focus []string
	for _, c := range f.rec.Commands() {
		if c.Kind == "focus" || c.Kind == "close_panel" {
			focus = append(focus, c.String())
		}
	}
	require.Equal(t, []string{"focus[1]", "focus[2]", "focus[0]", "close_panel", "focus[1]"}, focus)
}

func TestCloseAboveFocusKeepsFocus(t *testing.T) {
	f := newFixture(t)
	f.say("fix the layout bug", 0)
	f.waitIdle(t, 0)
	f.send(display.InputEvent{Type: display.InputSplit})
	f.send(display.InputEvent{Type: display.InputSplit})
	f.send(display.InputEvent{Type: display.InputFocus, Panel: 0})
	require.Equal(t, 0, f.o.Active())

	f.send(display.InputEvent{Type: display.InputClose, Panel: 2})
	require.Equal(t, 2, f.r.Count())
	require.Equal(t, 0, f.o.Active())
}

func TestApprovalReplyDenies(t *testing.T) {
	f := newFixture(t)
	f.dialer.add(f.cfg.Models.Agent, llm.NewMockClient(
		llm.MockTurn{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "run_command", Input: map[string]any{"command": "rm -rf /tmp/x"}}}},
		llm.MockTurn{Text: []string{"Okay, I left it alone."}},
	))

	f.say("fix the cleanup bug", 0)
	f.waitFor(t, 0, display.SpeakerApproval, "`rm -rf /tmp/x`")
	require.True(t, f.r.HasPendingApproval(0))
	require.Equal(t, "rm -rf /tmp/x", f.r.PendingCommand(0))

	// The reply is read as a denial even though it is also a close phrase.
	f.say("never mind", 0)
	require.False(t, f.r.HasPendingApproval(0))
	require.True(t, f.rec.Has(0, display.SpeakerToolResult, "Denied"))
	require.Equal(t, 1, f.r.Count())

	f.waitFor(t, 0, display.SpeakerToolResult, "Error: Command denied by user.")
	f.waitFor(t, 0, display.SpeakerAssistant, "Okay, I left it alone.")
}

func TestApprovalReplyApproves(t *testing.T) {
	f := newFixture(t)
	f.dialer.add(f.cfg.Models.Agent, llm.NewMockClient(
		llm.MockTurn{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "run_command", Input: map[string]any{"command": "echo approved-run"}}}},
		llm.MockTurn{Text: []string{"Done."}},
	))

	f.say("fix the echo bug", 0)
	f.waitFor(t, 0, display.SpeakerApproval, "echo approved-run")

	f.say("", 0)
	require.True(t, f.rec.Has(0, display.SpeakerToolResult, "Approved"))
	require.False(t, f.r.HasPendingApproval(0))
	f.waitFor(t, 0, display.SpeakerAssistant, "Done.")
}

func TestBusyPanelRejectsInput(t *testing.T) {
	f := newFixture(t)
	hold := make(chan struct{})
	f.dialer.add(f.cfg.Models.Agent, held(hold, "finally"))

	f.say("fix the slow bug", 0)
	require.True(t, f.r.Busy(0))

	f.say("are you done?", 0)
	require.True(t, f.rec.Has(0, display.SpeakerAssistant, NoticeBusy))
	require.False(t, f.rec.Has(0, display.SpeakerUser, "are you done?"))

	close(hold)
	f.waitFor(t, 0, display.SpeakerAssistant, "finally")
}

func TestEmptyResponseNotice(t *testing.T) {
	f := newFixture(t)
	f.dialer.add(f.cfg.Models.Agent, llm.NewMockClient(llm.MockTurn{}))

	f.say("fix the silent bug", 0)
	f.waitFor(t, 0, display.SpeakerAssistant, NoticeEmpty)
}

func TestCloseLastPanelReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	f.dialer.add(f.cfg.Models.Chat, llm.NewMockClient(llm.MockTurn{
		Text:  []string{"Here it is."},
		Usage: llm.Usage{InputTokens: 500, OutputTokens: 100},
	}))

	f.lookup("handler")
	f.say("look up the handler", 0)
	f.waitFor(t, 0, display.SpeakerAssistant, "Here it is.")
	f.waitIdle(t, 0)
	require.Equal(t, 600, f.tracker.Totals().Tokens())

	f.say("close the chat", 0)
	require.Equal(t, StateIdle, f.o.State())
	require.Equal(t, 0, f.r.Count())
	require.Equal(t, usage.Totals{}, f.tracker.Totals())
	require.Equal(t, []string{"start_skill", "end_session"}, f.rec.Kinds())
}

func TestEscapeCancelsAndCloses(t *testing.T) {
	f := newFixture(t)
	f.dialer.add(f.cfg.Models.Agent, llm.NewMockClient())
	f.dialer.add(f.cfg.Models.Agent, held(make(chan struct{}), "never shown"))

	f.say("fix the first bug", 0)
	f.waitIdle(t, 0)
	f.send(display.InputEvent{Type: display.InputSplit})
	f.say("work on this", 1)
	require.True(t, f.r.Busy(1))

	f.send(display.InputEvent{Type: display.InputEscape, Panel: 1})
	require.Equal(t, 1, f.r.Count())
	require.Equal(t, 0, f.o.Active())

	f.send(display.InputEvent{Type: display.InputEscape, Panel: 0})
	require.Equal(t, StateIdle, f.o.State())
	require.False(t, f.rec.Has(1, display.SpeakerAssistant, "never shown"))
	require.False(t, f.rec.Has(1, display.SpeakerAssistant, NoticeEmpty))
}

func TestStatusSkipsPanelsStillRunning(t *testing.T) {
	f := newFixture(t)
	hold := make(chan struct{})
	f.dialer.add(f.cfg.Models.Agent, llm.NewMockClient())
	f.dialer.add(f.cfg.Models.Agent, held(hold, "slow answer"))

	statuses := func(panel int) int {
		n := 0
		for _, c := range f.rec.Commands() {
			if c.Kind == "status" && c.Panel == panel {
				n++
			}
		}
		return n
	}

	f.say("fix the first bug", 0)
	require.Eventually(t, func() bool { return statuses(0) == 1 }, 2*time.Second, 5*time.Millisecond)
	f.send(display.InputEvent{Type: display.InputSplit})
	f.say("work on this", 1)
	require.True(t, f.r.Busy(1))

	f.say("and another thing", 0)
	require.Eventually(t, func() bool { return statuses(0) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, f.r.Busy(1))
	require.Zero(t, statuses(1))

	close(hold)
	f.waitFor(t, 1, display.SpeakerAssistant, "slow answer")
	require.Eventually(t, func() bool { return statuses(1) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestFocusChange(t *testing.T) {
	f := newFixture(t)
	f.say("fix the focus bug", 0)
	f.waitIdle(t, 0)
	f.send(display.InputEvent{Type: display.InputSplit})
	require.Equal(t, 1, f.o.Active())

	f.send(display.InputEvent{Type: display.InputFocus, Panel: 0})
	require.Equal(t, 0, f.o.Active())
	f.send(display.InputEvent{Type: display.InputFocus, Panel: 7})
	require.Equal(t, 0, f.o.Active())
}

func TestIdleIgnoresPanelCommands(t *testing.T) {
	f := newFixture(t)
	f.send(display.InputEvent{Type: display.InputSplit})
	f.send(display.InputEvent{Type: display.InputClose})
	f.send(display.InputEvent{Type: display.InputEscape})
	f.say("   ", 0)
	require.Equal(t, StateIdle, f.o.State())
	require.Empty(t, f.rec.Commands())
}

func TestPhrases(t *testing.T) {
	tests := []struct {
		text  string
		close bool
		split bool
	}{
		{"Close window.", true, false},
		{"ok that's all", true, false},
		{"nevermind", true, false},
		{"please go back", true, false},
		{"open new window", false, true},
		{"Spawn window", false, true},
		{"close the door", false, false},
		{"window", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			require.Equal(t, tt.close, IsClose(tt.text))
			require.Equal(t, tt.split, IsSplit(tt.text))
		})
	}
}
