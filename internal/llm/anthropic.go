package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/abdul-hamid-achik/skillpanes/internal/logger"
)

var anthropicLog = logger.WithPrefix("anthropic")

// AnthropicClient streams from the Messages API
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicClient creates a client for one model
func NewAnthropicClient(apiKey, model string, maxRetries int) *AnthropicClient {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(maxRetries),
	)
	return &AnthropicClient{
		client:    &client,
		model:     model,
		maxTokens: 8192,
	}
}

// Model returns the model id
func (c *AnthropicClient) Model() string {
	return c.model
}

// ChatStream sends a message and streams the response
func (c *AnthropicClient) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, systemPrompt string) <-chan StreamChunk {
	ch := make(chan StreamChunk, 100)

	go func() {
		defer close(ch)

		params := c.buildParams(messages, tools, systemPrompt)
		stream := c.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		var (
			currentToolCall *ToolCall
			toolInputJSON   string
			usage           Usage
		)

		for stream.Next() {
			event := stream.Current()

			switch e := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				usage.InputTokens = int(e.Message.Usage.InputTokens)

			case anthropic.ContentBlockStartEvent:
				if block, ok := e.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					currentToolCall = &ToolCall{ID: block.ID, Name: block.Name}
					toolInputJSON = ""
				}

			case anthropic.ContentBlockDeltaEvent:
				switch delta := e.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					ch <- StreamChunk{Type: ChunkText, Text: delta.Text}
				case anthropic.InputJSONDelta:
					toolInputJSON += delta.PartialJSON
				case anthropic.ThinkingDelta:
					ch <- StreamChunk{Type: ChunkThinking, Text: delta.Thinking}
				}

			case anthropic.ContentBlockStopEvent:
				if currentToolCall != nil {
					input, err := parseToolInput(toolInputJSON)
					if err != nil {
						anthropicLog.Warn("bad tool input for %s: %v", currentToolCall.Name, err)
						input = map[string]any{}
					}
					currentToolCall.Input = input
					ch <- StreamChunk{Type: ChunkToolCall, ToolCall: currentToolCall}
					currentToolCall = nil
					toolInputJSON = ""
				}

			case anthropic.MessageDeltaEvent:
				usage.OutputTokens = int(e.Usage.OutputTokens)

			case anthropic.MessageStopEvent:
				u := usage
				ch <- StreamChunk{Type: ChunkUsage, Usage: &u}
				ch <- StreamChunk{Type: ChunkDone}
				return
			}
		}

		if err := stream.Err(); err != nil {
			anthropicLog.Error("stream error: %v", err)
			ch <- StreamChunk{Type: ChunkError, Error: err}
			return
		}
		ch <- StreamChunk{Type: ChunkDone}
	}()

	return ch
}

func (c *AnthropicClient) buildParams(messages []Message, tools []ToolDefinition, systemPrompt string) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  convertAnthropicMessages(messages),
	}

	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	if len(tools) > 0 {
		apiTools := make([]anthropic.ToolUnionParam, 0, len(tools))
		for _, tool := range tools {
			toolParam := anthropic.ToolUnionParamOfTool(buildInputSchema(tool.InputSchema), tool.Name)
			toolParam.OfTool.Description = anthropic.String(tool.Description)
			apiTools = append(apiTools, toolParam)
		}
		params.Tools = apiTools
	}

	return params
}

func convertAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks})

		case RoleTool:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolResults)+1)
			for _, r := range msg.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(r.CallID, r.Content, r.IsError))
			}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleUser, Content: blocks})

		default:
			anthropicLog.Warn("dropping message with role %q", msg.Role)
		}
	}
	return out
}

// buildInputSchema converts a tool's schema map to the SDK's ToolInputSchemaParam
func buildInputSchema(schema map[string]any) anthropic.ToolInputSchemaParam {
	result := anthropic.ToolInputSchemaParam{}
	if props, ok := schema["properties"].(map[string]any); ok {
		result.Properties = props
	}
	if req, ok := schema["required"]; ok {
		result.ExtraFields = map[string]any{"required": req}
	}
	return result
}

func (c *AnthropicClient) String() string {
	return fmt.Sprintf("anthropic(%s)", c.model)
}
