// Package router owns every panel's session, the default conversation and
// the per-panel turns that drive them.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abdul-hamid-achik/skillpanes/internal/backend"
	"github.com/abdul-hamid-achik/skillpanes/internal/config"
	skerrors "github.com/abdul-hamid-achik/skillpanes/internal/errors"
	"github.com/abdul-hamid-achik/skillpanes/internal/llm"
	"github.com/abdul-hamid-achik/skillpanes/internal/logger"
	"github.com/abdul-hamid-achik/skillpanes/internal/permissions"
	"github.com/abdul-hamid-achik/skillpanes/internal/skills"
	"github.com/abdul-hamid-achik/skillpanes/internal/tools"
	"github.com/abdul-hamid-achik/skillpanes/internal/turn"
	"github.com/abdul-hamid-achik/skillpanes/internal/usage"
)

var routerLog = logger.WithPrefix("router")

// ToolExecutor runs workspace tools and reports their permission level
type ToolExecutor interface {
	turn.Dispatcher
	Get(name string) (tools.Tool, bool)
}

// SessionFactory builds unconnected sessions
type SessionFactory interface {
	New(skill *skills.Skill) backend.Session
	NewDefault(triggers []llm.ToolDefinition) *backend.ChatSession
}

// PanelSink receives a panel's turn events tagged with the panel's id at
// the moment of emission.
type PanelSink func(panel int, e turn.Event)

// DoneFunc is called when a launched turn finishes. panel is -1 when the
// turn was cancelled or its panel closed while it ran.
type DoneFunc func(panel int, text string, err error)

// SkillTrigger asks the host to start a skill in a panel
type SkillTrigger struct {
	ToolName  string
	Arguments string
	UserText  string
}

// Deps are the router's collaborators
type Deps struct {
	Config  *config.Config
	Catalog *skills.Catalog
	Factory SessionFactory
	Tools   ToolExecutor
	Policy  *permissions.Policy
	Usage   *usage.Tracker
}

// Router owns the panel table, the default conversation and the turn
// loop shared by every session.
type Router struct {
	cfg     *config.Config
	catalog *skills.Catalog
	factory SessionFactory
	tools   ToolExecutor
	policy  *permissions.Policy
	usage   *usage.Tracker
	loop    turn.Loop

	table panelTable

	defaultMu sync.Mutex
	defSess   *backend.ChatSession

	base    context.Context
	stop    context.CancelFunc
	closers sync.WaitGroup
}

// New creates a router
func New(d Deps) *Router {
	base, stop := context.WithCancel(context.Background())
	r := &Router{
		cfg:     d.Config,
		catalog: d.Catalog,
		factory: d.Factory,
		tools:   d.Tools,
		policy:  d.Policy,
		usage:   d.Usage,
		loop: turn.Loop{
			Tools:    d.Tools,
			Timeouts: d.Config.Timeouts,
		},
		base: base,
		stop: stop,
	}
	if d.Usage != nil {
		r.loop.Usage = d.Usage
	}
	return r
}

// Count returns the number of open panels
func (r *Router) Count() int {
	return r.table.count()
}

// Open adds an empty panel and returns its id
func (r *Router) Open() (int, error) {
	panel, _, ok := r.table.open(r.cfg.Panels.MaxPanels)
	if !ok {
		return -1, skerrors.PanelLimitReached(r.cfg.Panels.MaxPanels)
	}
	routerLog.Debug("panel %d opened", panel)
	return panel, nil
}

// Bound reports whether panel has a session
func (r *Router) Bound(panel int) bool {
	e := r.table.get(panel)
	return e != nil && e.bound() != nil
}

// IsAgent reports whether panel is bound to an agent session
func (r *Router) IsAgent(panel int) bool {
	e := r.table.get(panel)
	if e == nil {
		return false
	}
	s := e.bound()
	return s != nil && s.IsAgent()
}

// SkillName returns the skill bound to panel, or ""
func (r *Router) SkillName(panel int) string {
	e := r.table.get(panel)
	if e == nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.skill
}

// Busy reports whether panel has a turn in flight
func (r *Router) Busy(panel int) bool {
	e := r.table.get(panel)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turn != nil
}

// Done returns a channel closed when panel's current turn ends. It is
// already closed when nothing is running.
func (r *Router) Done(panel int) <-chan struct{} {
	if e := r.table.get(panel); e != nil {
		e.mu.Lock()
		h := e.turn
		e.mu.Unlock()
		if h != nil {
			return h.done
		}
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// entryFor returns panel's entry, opening it when panel is the next id.
func (r *Router) entryFor(panel int) (*panelEntry, error) {
	if e := r.table.get(panel); e != nil {
		return e, nil
	}
	if panel == r.table.count() {
		if _, e, ok := r.table.open(r.cfg.Panels.MaxPanels); ok {
			return e, nil
		}
		return nil, skerrors.PanelLimitReached(r.cfg.Panels.MaxPanels)
	}
	return nil, skerrors.PanelNotFound(panel)
}

// acquire marks a turn as running on e. A panel runs one turn at a time.
func (r *Router) acquire(parent context.Context, e *panelEntry, panel int) (*turnHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.turn != nil {
		return nil, skerrors.PanelBusy(panel)
	}
	ctx, cancel := context.WithCancel(parent)
	h := &turnHandle{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	e.turn = h
	e.cancelled = false
	return h, nil
}

func (r *Router) release(e *panelEntry, h *turnHandle) {
	e.mu.Lock()
	if e.turn == h {
		e.turn = nil
	}
	e.mu.Unlock()
	h.cancel()
	close(h.done)
}

// bind creates and connects a session for the skill behind toolName.
func (r *Router) bind(ctx context.Context, e *panelEntry, panel int, toolName string) (backend.Session, error) {
	skill, ok := r.catalog.ByTool(toolName)
	if !ok {
		return nil, skerrors.SkillNotFound(toolName)
	}
	if e.bound() != nil {
		return nil, skerrors.PanelAlreadyBound(panel)
	}

	routerLog.Info("panel %d: starting %s session (%s)", panel, skill.Name, skill.Kind)
	sess := r.factory.New(skill)
	if err := sess.Connect(ctx); err != nil {
		routerLog.Error("panel %d: connect failed: %v", panel, err)
		return nil, err
	}

	e.mu.Lock()
	if e.session != nil {
		e.mu.Unlock()
		_ = sess.Close()
		return nil, skerrors.PanelAlreadyBound(panel)
	}
	e.session = sess
	e.skill = skill.Name
	e.cancelled = false
	e.mu.Unlock()
	routerLog.Debug("panel %d: %s session %s ready", panel, skill.Name, sess.ID())
	return sess, nil
}

// StartSession binds a new session for toolName on panel and runs the
// first turn with the user's request. panel may be the next unopened id.
// Stream failures arrive as inline text; the error is for setup failures.
func (r *Router) StartSession(ctx context.Context, toolName, arguments, userText string, panel int, sink PanelSink) (string, error) {
	e, err := r.entryFor(panel)
	if err != nil {
		return "", err
	}
	h, err := r.acquire(ctx, e, panel)
	if err != nil {
		return "", err
	}
	defer r.release(e, h)
	return r.start(h.ctx, e, h, panel, toolName, arguments, userText, sink)
}

// StartSessionIdle binds and connects a session without running a turn.
func (r *Router) StartSessionIdle(ctx context.Context, toolName string, panel int) error {
	e, err := r.entryFor(panel)
	if err != nil {
		return err
	}
	_, err = r.bind(ctx, e, panel, toolName)
	return err
}

func (r *Router) start(ctx context.Context, e *panelEntry, h *turnHandle, panel int, toolName, arguments, userText string, sink PanelSink) (string, error) {
	sess, err := r.bind(ctx, e, panel, toolName)
	if err != nil {
		return "", err
	}
	prompt := backend.InitialPrompt(ctx, r.cfg.Workspace.ProjectsDir, skills.ParseArgs(arguments, userText))
	return r.run(ctx, e, h, sess, prompt, sink), nil
}

// SendFollowup runs one more turn of panel's session. It fails with
// NoSession when nothing is bound and PanelBusy while a turn is running.
func (r *Router) SendFollowup(ctx context.Context, userText string, panel int, sink PanelSink) (string, error) {
	e := r.table.get(panel)
	if e == nil {
		return "", skerrors.NoSession(panel)
	}
	h, err := r.acquire(ctx, e, panel)
	if err != nil {
		return "", err
	}
	defer r.release(e, h)
	return r.followup(h.ctx, e, h, panel, userText, sink)
}

func (r *Router) followup(ctx context.Context, e *panelEntry, h *turnHandle, panel int, userText string, sink PanelSink) (string, error) {
	sess := e.bound()
	if sess == nil || !sess.Connected() {
		return skerrors.NoSession(panel).Message, skerrors.NoSession(panel)
	}
	return r.run(ctx, e, h, sess, userText, sink), nil
}

// run drives one turn of sess. Events stop the moment the panel is
// cancelled: the check and the emission happen under the entry's lock.
func (r *Router) run(ctx context.Context, e *panelEntry, h *turnHandle, sess backend.Session, input string, sink PanelSink) string {
	emit := func(ev turn.Event) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.cancelled || e.turn != h || sink == nil {
			return
		}
		if idx := r.table.indexOf(e); idx >= 0 {
			sink(idx, ev)
		}
	}

	loop := r.loop
	loop.Approver = &panelApprover{policy: r.policy, tools: r.tools, gate: e.gate}
	if r.usage != nil {
		loop.Usage = r.usage.Epoch()
	}

	label := fmt.Sprintf("panel %d", r.table.indexOf(e))
	res := loop.Run(ctx, turn.Request{
		Session:   sess,
		Input:     input,
		Sink:      emit,
		Cancelled: e.isCancelled,
		Label:     label,
	})
	return res.Text
}

// LaunchStart runs StartSession as panel's background task. done fires
// after the panel is free again.
func (r *Router) LaunchStart(panel int, toolName, arguments, userText string, sink PanelSink, done DoneFunc) error {
	e, err := r.entryFor(panel)
	if err != nil {
		return err
	}
	h, err := r.acquire(r.base, e, panel)
	if err != nil {
		return err
	}
	r.spawn(e, h, done, func() (string, error) {
		return r.start(h.ctx, e, h, panel, toolName, arguments, userText, sink)
	})
	return nil
}

// LaunchFollowup runs SendFollowup as panel's background task. It fails
// at once with PanelBusy when a turn is already running there.
func (r *Router) LaunchFollowup(panel int, userText string, sink PanelSink, done DoneFunc) error {
	e := r.table.get(panel)
	if e == nil {
		return skerrors.NoSession(panel)
	}
	h, err := r.acquire(r.base, e, panel)
	if err != nil {
		return err
	}
	r.spawn(e, h, done, func() (string, error) {
		return r.followup(h.ctx, e, h, r.table.indexOf(e), userText, sink)
	})
	return nil
}

func (r *Router) spawn(e *panelEntry, h *turnHandle, done DoneFunc, fn func() (string, error)) {
	go func() {
		var (
			text string
			err  error
		)
		func() {
			defer func() {
				if p := recover(); p != nil {
					routerLog.Error("panel task panicked: %v", p)
					err = fmt.Errorf("internal error: %v", p)
				}
			}()
			text, err = fn()
		}()
		aborted := h.ctx.Err() != nil
		r.release(e, h)
		if done == nil {
			return
		}
		panel := -1
		if !aborted {
			panel = r.table.indexOf(e)
		}
		done(panel, text, err)
	}()
}

// CancelPanel stops panel's current turn: no further events are emitted,
// a pending approval is denied, and the session is interrupted. Calling it
// again, or on a panel with nothing running, is a no-op.
func (r *Router) CancelPanel(panel int) {
	if e := r.table.get(panel); e != nil {
		r.cancelEntry(e, panel)
	}
}

func (r *Router) cancelEntry(e *panelEntry, panel int) {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return
	}
	e.cancelled = true
	h := e.turn
	sess := e.session
	e.mu.Unlock()

	routerLog.Debug("panel %d cancelled (running=%v)", panel, h != nil)
	e.gate.Cancel()
	if h != nil {
		h.cancel()
	}
	if sess != nil {
		sess.Interrupt()
	}
}

// ClosePanel cancels panel, waits briefly for its turn, removes it and
// renumbers the panels after it. The session is closed in the background.
func (r *Router) ClosePanel(panel int) string {
	e := r.table.get(panel)
	if e == nil {
		return ""
	}
	r.cancelEntry(e, panel)
	r.await(e, r.cfg.Panels.CloseWait)
	r.table.remove(e)

	e.mu.Lock()
	name := e.skill
	sess := e.session
	e.session = nil
	e.mu.Unlock()
	if name == "" {
		name = "Skill"
	}

	if sess != nil {
		r.closers.Add(1)
		go func() {
			defer r.closers.Done()
			if err := sess.Close(); err != nil {
				routerLog.Warn("closing %s session: %v", name, err)
			}
		}()
	}
	routerLog.Info("panel %d closed (%s), %d remain", panel, name, r.table.count())
	return fmt.Sprintf("%s session closed.", name)
}

// await waits up to d for e's turn to finish. A timeout is logged and
// otherwise ignored.
func (r *Router) await(e *panelEntry, d time.Duration) {
	e.mu.Lock()
	h := e.turn
	e.mu.Unlock()
	if h == nil {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-h.done:
	case <-t.C:
		routerLog.Warn("turn did not stop within %v, closing anyway", d)
	}
}

// CloseAll closes every panel and session and resets the session-wide
// token and cost totals.
func (r *Router) CloseAll() string {
	entries := r.table.clear()

	g := new(errgroup.Group)
	for i, e := range entries {
		r.cancelEntry(e, i)
		e.mu.Lock()
		sess := e.session
		e.session = nil
		e.mu.Unlock()
		if sess == nil {
			continue
		}
		g.Go(func() error {
			return sess.Close()
		})
	}
	if err := g.Wait(); err != nil {
		routerLog.Warn("closing sessions: %v", err)
	}

	if r.usage != nil {
		r.usage.Reset()
	}
	routerLog.Info("all sessions closed (%d panels)", len(entries))
	return "All sessions closed."
}

// Shutdown closes everything, including the default conversation, and
// waits for background closes.
func (r *Router) Shutdown() {
	r.CloseAll()
	r.stop()

	r.defaultMu.Lock()
	if r.defSess != nil {
		_ = r.defSess.Close()
		r.defSess = nil
	}
	r.defaultMu.Unlock()

	r.closers.Wait()
}

// Status is the status-bar line: the first agent panel's own totals, or
// the session-wide token count.
func (r *Router) Status() string {
	for _, e := range r.table.snapshot() {
		if s := e.bound(); s != nil && s.IsAgent() {
			if st := s.Status(); st != "" {
				return st
			}
		}
	}
	t := r.usage.Totals()
	model := t.Model
	if model == "" {
		model = r.cfg.Models.Default
	}
	return fmt.Sprintf("%s | %s tokens", model, usage.FormatTokens(t.Tokens()))
}

// SendDefault sends text to the default conversation. When the model asks
// for a skill, the turn stops and the trigger is returned for the host to
// start in a panel.
func (r *Router) SendDefault(ctx context.Context, userText string, sink turn.Sink) (string, *SkillTrigger, error) {
	r.defaultMu.Lock()
	defer r.defaultMu.Unlock()

	if r.defSess == nil {
		s := r.factory.NewDefault(r.catalog.TriggerTools())
		if err := s.Connect(ctx); err != nil {
			return "", nil, err
		}
		r.defSess = s
	}

	res := r.loop.Run(ctx, turn.Request{
		Session: r.defSess,
		Input:   userText,
		Sink:    sink,
		Stop:    r.catalog.IsTrigger,
		Label:   "default",
	})
	if res.Stopped == nil {
		return res.Text, nil, nil
	}

	args, err := json.Marshal(res.Stopped.Input)
	if err != nil {
		args = []byte("{}")
	}
	routerLog.Info("skill triggered: %s", res.Stopped.Name)
	return res.Text, &SkillTrigger{
		ToolName:  res.Stopped.Name,
		Arguments: string(args),
		UserText:  userText,
	}, nil
}
