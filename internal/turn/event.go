package turn

// EventType tags an Event
type EventType int

const (
	// EventText is a streamed text delta, including inline notices.
	EventText EventType = iota
	// EventToolStart fires before a tool call is approved or executed.
	EventToolStart
	// EventApprovalRequest fires once a gated call is waiting on the user.
	EventApprovalRequest
	// EventToolResult carries the result map of a finished call.
	EventToolResult
	// EventSubagentTool is a tool call made by a delegated subagent.
	EventSubagentTool
	// EventSubagentResult is the outcome of a subagent tool call.
	EventSubagentResult
	// EventSubagentDone closes a delegation with its operation count.
	EventSubagentDone
)

var eventNames = map[EventType]string{
	EventText:            "text",
	EventToolStart:       "start",
	EventApprovalRequest: "approval_request",
	EventToolResult:      "result",
	EventSubagentTool:    "subagent_tool",
	EventSubagentResult:  "subagent_result",
	EventSubagentDone:    "subagent_done",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is one item of a turn's output stream
type Event struct {
	Type EventType

	Text    string         // EventText
	Tool    string         // tool events
	Args    map[string]any // EventToolStart, EventApprovalRequest, EventSubagentTool
	Result  map[string]any // EventToolResult
	Summary string         // EventSubagentResult
	IsError bool           // EventToolResult, EventSubagentResult
	Depth   int            // subagent events
	OpCount int            // EventSubagentDone
}

// Sink receives events in order. It is never called concurrently for one turn.
type Sink func(Event)

// Collect returns a sink that appends to events
func Collect(events *[]Event) Sink {
	return func(e Event) { *events = append(*events, e) }
}
