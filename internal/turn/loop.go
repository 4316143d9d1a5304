package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/skillpanes/internal/config"
	skerrors "github.com/abdul-hamid-achik/skillpanes/internal/errors"
	"github.com/abdul-hamid-achik/skillpanes/internal/llm"
	"github.com/abdul-hamid-achik/skillpanes/internal/logger"
	"github.com/abdul-hamid-achik/skillpanes/internal/tools"
)

// Inline notices streamed as text
const (
	NoticeRequestTimeout = "\n\n*(Request timed out.)*"
	NoticeStreamTimeout  = "\n\n*(Stream timed out.)*"
	NoticeToolLimit      = "\n\n*(Tool limit reached — ask me to continue if needed.)*"

	WrapUpDirective = "[SYSTEM: You are approaching the tool call limit. " +
		"Summarize your findings and respond to the user NOW with text.]"
)

// Session is one conversation the loop can drive. Implementations keep the
// history; the loop only commits complete exchanges back.
type Session interface {
	Model() string
	// Type labels usage records: default, chat, agent or subagent.
	Type() string
	Limits() config.LimitsConfig
	// Stream sends history plus pending and streams the reply.
	Stream(ctx context.Context, pending []llm.Message) (<-chan llm.StreamChunk, error)
	// Commit appends the turn's finished messages to the history.
	Commit(msgs []llm.Message)
}

// LocalTools is implemented by sessions that answer some tool calls
// themselves instead of through the executor.
type LocalTools interface {
	HandlesLocal(name string) bool
	RunLocal(ctx context.Context, loop *Loop, req Request, call llm.ToolCall) map[string]any
}

// UsageObserver is implemented by sessions that keep their own totals.
type UsageObserver interface {
	ObserveUsage(u llm.Usage, cost float64)
}

// Dispatcher executes a tool and never fails
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, input map[string]any) map[string]any
}

// Approver gates tool calls behind a user decision
type Approver interface {
	RequiresApproval(tool string) bool
	// Approve blocks until the user answers. notify fires once the
	// approval is pending. An error means the wait was abandoned.
	Approve(ctx context.Context, tool, command string, notify func()) (bool, error)
}

// UsageRecorder prices and logs one model request
type UsageRecorder interface {
	Record(ctx context.Context, model, sessionType string, u llm.Usage) float64
}

// Loop holds what every turn shares. Approver and Usage may be nil.
type Loop struct {
	Tools    Dispatcher
	Approver Approver
	Usage    UsageRecorder
	Timeouts config.TimeoutsConfig
}

// Request is one user turn
type Request struct {
	Session Session
	Input   string
	Sink    Sink

	// Cancelled is polled before each iteration, tool call and chunk.
	// Context cancellation counts too.
	Cancelled func() bool

	// Stop names tools that end the turn without running; the call is
	// returned in Result.Stopped.
	Stop func(name string) bool

	// Label prefixes log lines, e.g. "panel 2".
	Label string
	Depth int
}

// Result summarizes a finished turn
type Result struct {
	Text       string
	ToolCalls  int
	Iterations int
	Usage      llm.Usage
	Stopped    *llm.ToolCall
	Cancelled  bool
	TimedOut   bool
	Err        error
}

var loopLog = logger.WithPrefix("turn")

// Run drives one turn: stream, run the requested tools, feed results back,
// and repeat until the model answers with text only, the budget runs out,
// the stream fails, or the turn is cancelled. It never returns an error;
// failures are streamed as inline notices and reported in Result.
func (l *Loop) Run(ctx context.Context, req Request) Result {
	var res Result
	sess := req.Session
	limits := sess.Limits()
	label := req.Label
	if label == "" {
		label = sess.Type()
	}

	cancelled := func() bool {
		if ctx.Err() != nil {
			return true
		}
		return req.Cancelled != nil && req.Cancelled()
	}
	emit := func(e Event) {
		if req.Sink != nil && !cancelled() {
			req.Sink(e)
		}
	}

	var exchange []llm.Message
	defer func() { sess.Commit(settle(exchange)) }()

	next := llm.Message{Role: llm.RoleUser, Content: req.Input}
	start := time.Now()

	for iter := 0; iter < limits.MaxIterations; iter++ {
		if cancelled() {
			loopLog.Debug("%s turn %d: cancelled before start", label, iter+1)
			res.Cancelled = true
			break
		}
		res.Iterations = iter + 1
		exchange = append(exchange, next)

		loopLog.Debug("%s turn %d: sending to %s", label, iter+1, sess.Model())
		text, calls, err := l.stream(ctx, sess, exchange, emit, cancelled, &res)
		if cancelled() {
			loopLog.Debug("%s turn %d: cancelled mid-stream", label, iter+1)
			res.Text += text
			res.Cancelled = true
			break
		}
		if err != nil {
			res.Text += text
			res.Err = err
			if llm.IsTimeout(err) {
				res.TimedOut = true
				loopLog.Warn("%s turn %d: timeout: %v", label, iter+1, err)
				if errors.Is(err, llm.ErrOpenTimeout) {
					emit(Event{Type: EventText, Text: NoticeRequestTimeout})
				} else {
					emit(Event{Type: EventText, Text: NoticeStreamTimeout})
				}
			} else {
				loopLog.Error("%s turn %d: stream error: %v", label, iter+1, err)
				emit(Event{Type: EventText, Text: fmt.Sprintf("\n\n*(Error: %s)*", skerrors.GetUserMessage(err))})
			}
			break
		}

		res.Text += text
		reply := llm.Message{Role: llm.RoleAssistant, Content: text, ToolCalls: calls}
		exchange = append(exchange, reply)

		if len(calls) == 0 {
			loopLog.Debug("%s turn %d: no tool calls, done", label, iter+1)
			break
		}

		if req.Stop != nil {
			if stop := firstStop(calls, req.Stop); stop != nil {
				loopLog.Debug("%s turn %d: stop tool %s", label, iter+1, stop.Name)
				res.Stopped = stop
				exchange[len(exchange)-1].ToolCalls = []llm.ToolCall{*stop}
				exchange = append(exchange, llm.Message{
					Role:        llm.RoleTool,
					ToolResults: []llm.ToolResult{llm.NewToolResult(*stop, map[string]any{"status": "started"})},
				})
				break
			}
		}

		remaining := limits.MaxToolCalls - res.ToolCalls
		if remaining <= 0 {
			exchange[len(exchange)-1].ToolCalls = nil
			emit(Event{Type: EventText, Text: NoticeToolLimit})
			break
		}
		if len(calls) > remaining {
			loopLog.Debug("%s turn %d: dropping %d tool calls over budget", label, iter+1, len(calls)-remaining)
			calls = calls[:remaining]
			exchange[len(exchange)-1].ToolCalls = calls
		}

		results := make([]llm.ToolResult, 0, len(calls))
		for _, call := range calls {
			if cancelled() {
				break
			}
			res.ToolCalls++
			emit(Event{Type: EventToolStart, Tool: call.Name, Args: call.Input})

			loopLog.Debug("%s tool %d/%d: executing %s", label, res.ToolCalls, limits.MaxToolCalls, call.Name)
			result := l.execute(ctx, req, call, emit)
			if cancelled() {
				break
			}

			tr := llm.NewToolResult(call, result)
			emit(Event{Type: EventToolResult, Tool: call.Name, Result: result, IsError: tr.IsError})
			loopLog.Debug("%s tool %s done, error=%v", label, call.Name, tr.IsError)
			results = append(results, tr)
		}

		if cancelled() || len(results) < len(calls) {
			loopLog.Debug("%s turn %d: loop ending, cancelled=%v results=%d", label, iter+1, cancelled(), len(results))
			res.Cancelled = cancelled()
			exchange[len(exchange)-1].ToolCalls = calls[:len(results)]
			if len(results) > 0 {
				exchange = append(exchange, llm.Message{Role: llm.RoleTool, ToolResults: results})
			}
			break
		}

		next = llm.Message{Role: llm.RoleTool, ToolResults: results}
		if iter >= limits.MaxIterations-2 || res.ToolCalls >= limits.MaxToolCalls-2 {
			next.Content = WrapUpDirective
			loopLog.Debug("%s turn %d: injected wrap-up nudge (iter=%d, tools=%d)", label, iter+1, iter, res.ToolCalls)
		}
		if iter == limits.MaxIterations-1 {
			exchange = append(exchange, llm.Message{Role: llm.RoleTool, ToolResults: results})
		}
	}

	loopLog.Debug("%s turn done: %d iterations, %d tool calls, %d chars, %v",
		label, res.Iterations, res.ToolCalls, len(res.Text), time.Since(start).Round(time.Millisecond))
	return res
}

// stream sends the exchange and reads the reply within the per-request
// deadline. Text is emitted as it arrives; tool calls are collected. Usage
// is recorded even when the stream ends early.
func (l *Loop) stream(ctx context.Context, sess Session, exchange []llm.Message, emit Sink, cancelled func() bool, res *Result) (string, []llm.ToolCall, error) {
	var cancel context.CancelFunc
	if l.Timeouts.Turn > 0 {
		ctx, cancel = context.WithTimeout(ctx, l.Timeouts.Turn)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	src, err := sess.Stream(ctx, exchange)
	if err != nil {
		return "", nil, err
	}
	guard := llm.NewStreamGuard(src, l.Timeouts.StreamOpen, l.Timeouts.ChunkStall)

	var (
		text  strings.Builder
		calls []llm.ToolCall
		usage llm.Usage
		count int
	)
	start := time.Now()
	defer func() {
		loopLog.Debug("%s stream: %d chunks, %d tool calls, %d chars, %v",
			sess.Type(), count, len(calls), text.Len(), time.Since(start).Round(time.Millisecond))
		l.recordUsage(ctx, sess, usage, res)
	}()

	for {
		chunk, ok, err := guard.Next(ctx)
		if err != nil {
			guard.Drain()
			return text.String(), calls, err
		}
		if !ok {
			return text.String(), calls, nil
		}
		count++
		if cancelled() {
			guard.Drain()
			return text.String(), calls, nil
		}

		switch chunk.Type {
		case llm.ChunkText:
			if chunk.Text != "" {
				text.WriteString(chunk.Text)
				emit(Event{Type: EventText, Text: chunk.Text})
			}
		case llm.ChunkToolCall:
			if chunk.ToolCall != nil {
				calls = append(calls, *chunk.ToolCall)
			}
		case llm.ChunkUsage:
			if chunk.Usage != nil {
				usage = usage.Add(*chunk.Usage)
			}
		case llm.ChunkDone:
			guard.Drain()
			return text.String(), calls, nil
		case llm.ChunkError:
			guard.Drain()
			if chunk.Error == nil {
				chunk.Error = errors.New("stream failed")
			}
			return text.String(), calls, chunk.Error
		}
	}
}

func (l *Loop) recordUsage(ctx context.Context, sess Session, u llm.Usage, res *Result) {
	res.Usage = res.Usage.Add(u)
	var cost float64
	if l.Usage != nil && u.Total() > 0 {
		cost = l.Usage.Record(context.WithoutCancel(ctx), sess.Model(), sess.Type(), u)
	}
	if obs, ok := sess.(UsageObserver); ok {
		obs.ObserveUsage(u, cost)
	}
}

// execute runs one call: local tools first, then the approval gate, then the
// executor. Tools are not aborted by cancellation; their result is dropped
// by the caller instead.
func (l *Loop) execute(ctx context.Context, req Request, call llm.ToolCall, emit Sink) map[string]any {
	if local, ok := req.Session.(LocalTools); ok && local.HandlesLocal(call.Name) {
		return local.RunLocal(ctx, l, req, call)
	}

	if l.Approver != nil && l.Approver.RequiresApproval(call.Name) {
		command, _ := call.Input["command"].(string)
		approved, err := l.Approver.Approve(ctx, call.Name, command, func() {
			emit(Event{Type: EventApprovalRequest, Tool: call.Name, Args: call.Input})
		})
		if err != nil || !approved {
			return tools.ErrorResult(skerrors.CommandDenied())
		}
	}

	if l.Tools == nil {
		return tools.ErrorResult(skerrors.ToolNotFound(call.Name))
	}
	return l.Tools.Dispatch(context.WithoutCancel(ctx), call.Name, call.Input)
}

func firstStop(calls []llm.ToolCall, stop func(string) bool) *llm.ToolCall {
	for i := range calls {
		if stop(calls[i].Name) {
			c := calls[i]
			return &c
		}
	}
	return nil
}

// settle drops tool calls that never got results so the committed history
// is always a valid alternation for the next request.
func settle(exchange []llm.Message) []llm.Message {
	if n := len(exchange); n > 0 {
		last := &exchange[n-1]
		if last.Role == llm.RoleAssistant && len(last.ToolCalls) > 0 {
			last.ToolCalls = nil
		}
	}
	return exchange
}
