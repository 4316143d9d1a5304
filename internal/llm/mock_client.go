package llm

import (
	"context"
	"sync"
)

// MockTurn scripts one ChatStream response.
type MockTurn struct {
	Text      []string // emitted as separate text chunks
	ToolCalls []ToolCall
	Usage     Usage
	Err       error // emitted instead of done, after Text

	// Hold, when set, pauses the stream after Text until it is closed or
	// the request context ends.
	Hold <-chan struct{}
}

// MockClient implements Client for testing.
type MockClient struct {
	// ChatStreamFunc overrides the scripted turns when set.
	ChatStreamFunc func(ctx context.Context, messages []Message, tools []ToolDefinition, systemPrompt string) <-chan StreamChunk

	mu    sync.Mutex
	model string
	turns []MockTurn
	next  int

	// Calls records every ChatStream invocation.
	Calls []ChatStreamCall
}

// ChatStreamCall records the arguments of a ChatStream invocation.
type ChatStreamCall struct {
	Messages     []Message
	Tools        []ToolDefinition
	SystemPrompt string
}

// NewMockClient creates a mock that replays turns in order, then answers
// "mock response" once they run out.
func NewMockClient(turns ...MockTurn) *MockClient {
	return &MockClient{model: "mock-model", turns: turns}
}

// SetModel sets the reported model name.
func (m *MockClient) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

// Model returns the current model name.
func (m *MockClient) Model() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// CallCount returns how many requests were made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Call returns a copy of the i-th recorded request.
func (m *MockClient) Call(i int) ChatStreamCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.Calls[i]
	c.Messages = append([]Message(nil), c.Messages...)
	return c
}

// ChatStream replays the next scripted turn.
func (m *MockClient) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, systemPrompt string) <-chan StreamChunk {
	m.mu.Lock()
	m.Calls = append(m.Calls, ChatStreamCall{
		Messages:     append([]Message(nil), messages...),
		Tools:        tools,
		SystemPrompt: systemPrompt,
	})
	turn := MockTurn{Text: []string{"mock response"}}
	if m.next < len(m.turns) {
		turn = m.turns[m.next]
	}
	m.next++
	fn := m.ChatStreamFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages, tools, systemPrompt)
	}
	return replay(ctx, turn)
}

func replay(ctx context.Context, turn MockTurn) <-chan StreamChunk {
	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		send := func(c StreamChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, t := range turn.Text {
			if !send(StreamChunk{Type: ChunkText, Text: t}) {
				return
			}
		}
		if turn.Hold != nil {
			select {
			case <-turn.Hold:
			case <-ctx.Done():
				return
			}
		}
		if turn.Err != nil {
			send(StreamChunk{Type: ChunkError, Error: turn.Err})
			return
		}
		for i := range turn.ToolCalls {
			tc := turn.ToolCalls[i]
			if !send(StreamChunk{Type: ChunkToolCall, ToolCall: &tc}) {
				return
			}
		}
		u := turn.Usage
		if !send(StreamChunk{Type: ChunkUsage, Usage: &u}) {
			return
		}
		send(StreamChunk{Type: ChunkDone})
	}()
	return ch
}
