package llm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/abdul-hamid-achik/skillpanes/internal/logger"
)

var geminiLog = logger.WithPrefix("gemini")

// GeminiClient streams from the Gemini API with function calling
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient connects to the Gemini API
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Model returns the model id
func (c *GeminiClient) Model() string {
	return c.model
}

// ChatStream sends the conversation and streams the response
func (c *GeminiClient) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, systemPrompt string) <-chan StreamChunk {
	ch := make(chan StreamChunk, 100)

	go func() {
		defer close(ch)

		contents := convertGeminiMessages(messages)
		cfg := buildGeminiConfig(tools, systemPrompt)

		var usage Usage
		for result, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, cfg) {
			if err != nil {
				geminiLog.Error("stream error: %v", err)
				ch <- StreamChunk{Type: ChunkError, Error: err}
				return
			}
			if result.UsageMetadata != nil {
				usage.InputTokens = int(result.UsageMetadata.PromptTokenCount)
				usage.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
			}
			if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
				continue
			}
			for _, part := range result.Candidates[0].Content.Parts {
				if part == nil {
					continue
				}
				switch {
				case part.FunctionCall != nil:
					id := part.FunctionCall.ID
					if id == "" {
						id = "call_" + uuid.NewString()
					}
					args := part.FunctionCall.Args
					if args == nil {
						args = map[string]any{}
					}
					ch <- StreamChunk{Type: ChunkToolCall, ToolCall: &ToolCall{ID: id, Name: part.FunctionCall.Name, Input: args}}
				case part.Thought && part.Text != "":
					ch <- StreamChunk{Type: ChunkThinking, Text: part.Text}
				case part.Text != "":
					ch <- StreamChunk{Type: ChunkText, Text: part.Text}
				}
			}
		}

		u := usage
		ch <- StreamChunk{Type: ChunkUsage, Usage: &u}
		ch <- StreamChunk{Type: ChunkDone}
	}()

	return ch
}

func buildGeminiConfig(tools []ToolDefinition, systemPrompt string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if len(tools) == 0 {
		return cfg
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.InputSchema,
		})
	}
	cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	cfg.ToolConfig = &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
	}
	return cfg
}

func convertGeminiMessages(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))

		case RoleAssistant:
			parts := make([]*genai.Part, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				part := genai.NewPartFromFunctionCall(tc.Name, tc.Input)
				part.FunctionCall.ID = tc.ID
				parts = append(parts, part)
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))

		case RoleTool:
			parts := make([]*genai.Part, 0, len(msg.ToolResults)+1)
			for _, r := range msg.ToolResults {
				part := genai.NewPartFromFunctionResponse(r.Name, DecodeResult(r))
				part.FunctionResponse.ID = r.CallID
				parts = append(parts, part)
			}
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}
	return contents
}
