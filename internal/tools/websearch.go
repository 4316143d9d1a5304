package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	tavilyEndpoint    = "https://api.tavily.com/search"
	maxSnippetChars   = 500
	defaultMaxResults = 5
)

// WebSearchTool fetches search results from the Tavily API. Requests are
// spaced at least one second apart across all panels.
type WebSearchTool struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewWebSearchTool creates the tool for apiKey
func NewWebSearchTool(apiKey string) *WebSearchTool {
	return &WebSearchTool{
		apiKey:     apiKey,
		endpoint:   tavilyEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web for current information. Returns titles, URLs and content snippets."
}

func (t *WebSearchTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query.",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results (1-10, default 5).",
				"minimum":     1,
				"maximum":     10,
			},
			"include_domains": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Only search these domains, e.g. ['go.dev'].",
			},
		},
		"required": []string{"query"},
	}
}

// Permission is read: the call has no local side effects
func (t *WebSearchTool) Permission() PermissionLevel { return PermissionRead }

type tavilyRequest struct {
	APIKey         string   `json:"api_key"`
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	IncludeAnswer  bool     `json:"include_answer"`
}

type tavilyResponse struct {
	Answer  string         `json:"answer,omitempty"`
	Query   string         `json:"query"`
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

func (t *WebSearchTool) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	query, _ := input["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	req := tavilyRequest{
		APIKey:        t.apiKey,
		Query:         query,
		MaxResults:    defaultMaxResults,
		IncludeAnswer: true,
	}
	if n, ok := intArg(input, "max_results"); ok {
		req.MaxResults = min(max(n, 1), 10)
	}
	if domains, ok := input["include_domains"].([]any); ok {
		for _, d := range domains {
			if s, ok := d.(string); ok && s != "" {
				req.IncludeDomains = append(req.IncludeDomains, s)
			}
		}
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := t.call(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}

	results := make([]any, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]any{
			"title":   r.Title,
			"url":     r.URL,
			"snippet": Truncate(r.Content, maxSnippetChars),
			"score":   r.Score,
		})
	}
	out := map[string]any{"query": query, "results": results}
	if resp.Answer != "" {
		out["answer"] = resp.Answer
	}
	return out, nil
}

func (t *WebSearchTool) call(ctx context.Context, req tavilyRequest) (*tavilyResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, Truncate(string(data), 200))
	}

	var out tavilyResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}
