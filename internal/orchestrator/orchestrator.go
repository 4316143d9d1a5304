// Package orchestrator turns host input events into router calls and
// router output into display commands.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abdul-hamid-achik/skillpanes/internal/config"
	"github.com/abdul-hamid-achik/skillpanes/internal/display"
	skerrors "github.com/abdul-hamid-achik/skillpanes/internal/errors"
	"github.com/abdul-hamid-achik/skillpanes/internal/logger"
	"github.com/abdul-hamid-achik/skillpanes/internal/permissions"
	"github.com/abdul-hamid-achik/skillpanes/internal/router"
	"github.com/abdul-hamid-achik/skillpanes/internal/skills"
	"github.com/abdul-hamid-achik/skillpanes/internal/turn"
)

var orchLog = logger.WithPrefix("orchestrator")

// Notices shown in a panel
const (
	NoticeBusy  = "*Wait for response to finish...*"
	NoticeEmpty = "*(No text response — check logs for errors.)*"
)

// IdlePanel addresses the host's idle area, shown while no panel is open.
const IdlePanel = -1

// State is the orchestrator's global mode
type State int

const (
	StateIdle        State = iota // No panel open; input goes to the default conversation
	StateSkillActive              // At least one panel open
)

func (s State) String() string {
	if s == StateSkillActive {
		return "skill_active"
	}
	return "idle"
}

// Router is the part of the skill router the orchestrator drives
type Router interface {
	Count() int
	Open() (int, error)
	Bound(panel int) bool
	Busy(panel int) bool
	Done(panel int) <-chan struct{}
	StartSessionIdle(ctx context.Context, toolName string, panel int) error
	LaunchStart(panel int, toolName, arguments, userText string, sink router.PanelSink, done router.DoneFunc) error
	LaunchFollowup(panel int, userText string, sink router.PanelSink, done router.DoneFunc) error
	CancelPanel(panel int)
	ClosePanel(panel int) string
	CloseAll() string
	HasPendingApproval(panel int) bool
	PendingCommand(panel int) string
	ApproveCommand(approved bool, panel int) bool
	Status() string
	SendDefault(ctx context.Context, userText string, sink turn.Sink) (string, *router.SkillTrigger, error)
}

// Deps are the orchestrator's collaborators
type Deps struct {
	Config  *config.Config
	Router  Router
	Catalog *skills.Catalog
	Policy  *permissions.Policy
	Sink    display.Sink
}

// Orchestrator is the host's main loop. All state changes happen on the
// goroutine running Run; turns report back through the display directly.
type Orchestrator struct {
	cfg     *config.Config
	router  Router
	catalog *skills.Catalog
	policy  *permissions.Policy
	sink    display.Sink
	format  display.Formatter

	mu     sync.Mutex
	state  State
	active int

	skill       *skills.Skill // loop-owned
	defaultBusy atomic.Bool

	triggers chan *router.SkillTrigger
	quit     chan struct{}
	quitOnce sync.Once
	pending  sync.WaitGroup
}

// New creates an orchestrator in the idle state
func New(d Deps) *Orchestrator {
	return &Orchestrator{
		cfg:      d.Config,
		router:   d.Router,
		catalog:  d.Catalog,
		policy:   d.Policy,
		sink:     d.Sink,
		format:   display.Formatter{Root: d.Config.Workspace.ProjectsDir},
		triggers: make(chan *router.SkillTrigger),
		quit:     make(chan struct{}),
	}
}

// State returns the current mode
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Active returns the focused panel
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

func (o *Orchestrator) set(state State, active int) {
	o.mu.Lock()
	o.state = state
	o.active = active
	o.mu.Unlock()
}

func (o *Orchestrator) focus(active int) {
	o.mu.Lock()
	o.active = active
	o.mu.Unlock()
}

// Run handles events until ctx ends or events is closed. It must be the
// only caller of the orchestrator's handlers.
func (o *Orchestrator) Run(ctx context.Context, events <-chan display.InputEvent) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		o.quitOnce.Do(func() { close(o.quit) })
		o.pending.Wait()
	}()

	orchLog.Info("orchestrator running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			o.handle(ctx, ev)
		case trig := <-o.triggers:
			o.startSkill(ctx, trig.ToolName, trig.Arguments, trig.UserText)
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, ev display.InputEvent) {
	orchLog.Debug("input %s panel=%d text=%q", ev.Type, ev.Panel, truncate(ev.Text, 80))
	switch ev.Type {
	case display.InputText:
		o.text(ctx, ev.Text, ev.Panel)
	case display.InputEscape:
		o.escape(ctx, ev.Panel)
	case display.InputSplit:
		o.split(ctx)
	case display.InputClose:
		o.close(ctx, ev.Panel)
	case display.InputFocus:
		if ev.Panel >= 0 && ev.Panel < o.router.Count() {
			o.focus(ev.Panel)
		}
	default:
		orchLog.Warn("unknown input event %q", ev.Type)
	}
}

// resolve maps an event's panel to an open one, defaulting to the focus.
func (o *Orchestrator) resolve(panel int) int {
	if panel >= 0 && panel < o.router.Count() {
		return panel
	}
	return o.Active()
}

func (o *Orchestrator) text(ctx context.Context, text string, panel int) {
	if o.State() == StateIdle {
		o.idleText(ctx, text)
		return
	}
	panel = o.resolve(panel)

	if o.router.HasPendingApproval(panel) {
		o.answer(text, panel)
		return
	}
	if IsClose(text) {
		o.close(ctx, panel)
		return
	}
	if IsSplit(text) {
		o.split(ctx)
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	if o.router.Busy(panel) {
		orchLog.Debug("panel %d busy, ignoring input", panel)
		o.sink.Message(display.SpeakerAssistant, NoticeBusy, panel)
		return
	}

	o.sink.Message(display.SpeakerUser, text, panel)
	var err error
	switch {
	case o.router.Bound(panel):
		err = o.router.LaunchFollowup(panel, text, o.render, o.finishTurn)
	case o.skill != nil:
		err = o.router.LaunchStart(panel, o.skill.ToolName, "", text, o.render, o.finishTurn)
	default:
		err = skerrors.NoSession(panel)
	}
	if err != nil {
		o.showError(err, panel)
	}
}

// answer resolves panel's pending approval from a free-text reply
func (o *Orchestrator) answer(text string, panel int) {
	cmd := o.router.PendingCommand(panel)
	approved := o.policy.IsApproval(text)
	if !o.router.ApproveCommand(approved, panel) {
		return
	}
	if approved {
		orchLog.Info("panel %d: approved %s", panel, cmd)
		o.sink.Message(display.SpeakerToolResult, "Approved", panel)
		return
	}
	orchLog.Info("panel %d: denied %s", panel, cmd)
	o.sink.Message(display.SpeakerToolResult, "Denied", panel)
}

func (o *Orchestrator) idleText(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if o.defaultBusy.Load() {
		o.sink.Message(display.SpeakerAssistant, NoticeBusy, IdlePanel)
		return
	}
	if s := o.catalog.Match(text); s != nil {
		orchLog.Info("input matched skill %s", s.Name)
		o.startSkill(ctx, s.ToolName, "", text)
		return
	}

	o.sink.Message(display.SpeakerUser, text, IdlePanel)
	o.defaultBusy.Store(true)
	o.pending.Add(1)
	go o.runDefault(ctx, text)
}

// runDefault sends text to the default conversation. A skill trigger is
// handed back to the loop, which opens the panel.
func (o *Orchestrator) runDefault(ctx context.Context, text string) {
	defer o.pending.Done()
	_, trig, err := o.router.SendDefault(ctx, text, func(e turn.Event) { o.render(IdlePanel, e) })
	o.defaultBusy.Store(false)
	if err != nil {
		o.showError(err, IdlePanel)
		return
	}
	if trig == nil {
		return
	}
	select {
	case o.triggers <- trig:
	case <-o.quit:
	}
}

// startSkill opens panel 0 when none is open, otherwise spawns the next
// panel, and binds the skill there.
func (o *Orchestrator) startSkill(ctx context.Context, tool, arguments, userText string) {
	skill, ok := o.catalog.ByTool(tool)
	if !ok {
		o.showError(skerrors.SkillNotFound(tool), o.target())
		return
	}

	count := o.router.Count()
	limit := o.cfg.Panels.MaxPanels
	var panel int
	switch {
	case count == 0:
		panel = 0
		o.skill = skill
		o.set(StateSkillActive, 0)
		o.sink.StartSkill(o.title(skill))
		orchLog.Info("skill window opened: %s", skill.Name)
	case count < limit:
		panel = count
		o.sink.SplitPanel(o.cfg.PanelName(panel))
		o.sink.Focus(panel)
		o.focus(panel)
		orchLog.Info("window spawned: %s (%d/%d)", o.cfg.PanelName(panel), count+1, limit)
	default:
		o.sink.Message(display.SpeakerSystem, fmt.Sprintf("Max %d windows reached", limit), o.Active())
		return
	}

	if strings.TrimSpace(userText) == "" {
		o.bindIdle(ctx, skill, panel)
		return
	}
	o.sink.Message(display.SpeakerUser, userText, panel)
	if err := o.router.LaunchStart(panel, skill.ToolName, arguments, userText, o.render, o.finishTurn); err != nil {
		o.showError(err, panel)
	}
}

func (o *Orchestrator) title(skill *skills.Skill) string {
	if skill.IsAgent() {
		return o.cfg.PanelName(0)
	}
	return skill.Name
}

func (o *Orchestrator) target() int {
	if o.State() == StateIdle {
		return IdlePanel
	}
	return o.Active()
}

func (o *Orchestrator) bindIdle(ctx context.Context, skill *skills.Skill, panel int) {
	if err := o.router.StartSessionIdle(ctx, skill.ToolName, panel); err != nil {
		o.showError(err, panel)
		return
	}
	o.sink.Message(display.SpeakerAssistant,
		fmt.Sprintf("**%s ready.** Type or speak your request.", o.cfg.PanelName(panel)), panel)
}

// split adds a panel. Agent skills get their session right away; chat
// panels bind on their first message.
func (o *Orchestrator) split(ctx context.Context) {
	if o.State() == StateIdle {
		return
	}
	count := o.router.Count()
	limit := o.cfg.Panels.MaxPanels
	if count >= limit {
		o.sink.Message(display.SpeakerSystem, fmt.Sprintf("Max %d windows reached", limit), o.Active())
		return
	}

	panel := count
	o.sink.SplitPanel(o.cfg.PanelName(panel))
	o.sink.Focus(panel)
	o.focus(panel)
	orchLog.Info("window spawned: %s (%d/%d)", o.cfg.PanelName(panel), count+1, limit)

	if o.skill != nil && o.skill.IsAgent() {
		o.bindIdle(ctx, o.skill, panel)
		return
	}
	if _, err := o.router.Open(); err != nil {
		o.showError(err, panel)
	}
}

// escape stops the focused panel's stream and closes it
func (o *Orchestrator) escape(ctx context.Context, panel int) {
	if o.State() == StateIdle {
		return
	}
	panel = o.resolve(panel)
	if o.router.Busy(panel) {
		orchLog.Info("stream cancelled (panel %d)", panel)
	}
	o.close(ctx, panel)
}

// close closes one panel, or everything when it is the last one
func (o *Orchestrator) close(ctx context.Context, panel int) {
	if o.State() == StateIdle {
		return
	}
	panel = o.resolve(panel)
	if o.router.Count() <= 1 {
		o.closeAll(ctx)
		return
	}

	focused := o.Active()
	msg := o.router.ClosePanel(panel)
	if panel != focused {
		o.sink.Focus(panel)
	}
	o.sink.ClosePanel()
	if panel < focused {
		focused--
	}
	active := min(focused, o.router.Count()-1)
	o.focus(active)
	o.sink.Focus(active)
	orchLog.Info("%s (%d remaining)", msg, o.router.Count())
}

// closeAll cancels every panel, waits a bounded time for their turns and
// returns to idle.
func (o *Orchestrator) closeAll(ctx context.Context) {
	wait := o.cfg.Panels.CloseWait
	var g errgroup.Group
	for p := 0; p < o.router.Count(); p++ {
		o.router.CancelPanel(p)
		done := o.router.Done(p)
		g.Go(func() error {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-done:
				return nil
			case <-t.C:
				return fmt.Errorf("panel %d still running after %v", p, wait)
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		orchLog.Warn("closing all panels: %v", err)
	}

	msg := o.router.CloseAll()
	o.skill = nil
	o.set(StateIdle, 0)
	o.sink.EndSession()
	orchLog.Info("%s", msg)
}

// render shows one turn event in panel. Called from turn goroutines.
func (o *Orchestrator) render(panel int, e turn.Event) {
	if speaker, text, ok := o.format.Render(e); ok {
		o.sink.Message(speaker, text, panel)
	}
}

// finishTurn reports a launched turn's outcome. Called from the turn's
// goroutine once its panel is free again.
func (o *Orchestrator) finishTurn(panel int, text string, err error) {
	if panel < 0 {
		orchLog.Debug("turn ended after cancel or close")
		return
	}
	switch {
	case err != nil:
		orchLog.Error("panel %d turn failed: %v", panel, err)
		o.sink.Message(display.SpeakerAssistant, "\nError: "+skerrors.GetUserMessage(err), panel)
	case strings.TrimSpace(text) == "":
		orchLog.Warn("empty response after tool loop (panel %d)", panel)
		o.sink.Message(display.SpeakerAssistant, NoticeEmpty, panel)
	}
	o.broadcastStatus()
}

// broadcastStatus refreshes the status line of every panel without a turn
// in flight. A status ends the host's busy indicator, so panels still
// streaming get theirs when their own turn finishes.
func (o *Orchestrator) broadcastStatus() {
	status := o.router.Status()
	for p := 0; p < o.router.Count(); p++ {
		if o.router.Busy(p) {
			continue
		}
		o.sink.Status(status, p)
	}
}

func (o *Orchestrator) showError(err error, panel int) {
	orchLog.Error("panel %d: %v", panel, err)
	o.sink.Message(display.SpeakerAssistant, "\nError: "+skerrors.GetUserMessage(err), panel)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
