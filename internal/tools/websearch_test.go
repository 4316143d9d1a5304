package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestSearch(t *testing.T, handler http.HandlerFunc) *WebSearchTool {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tool := NewWebSearchTool("test-key")
	tool.endpoint = server.URL
	tool.httpClient = server.Client()
	return tool
}

func TestWebSearchTool_Schema(t *testing.T) {
	tool := NewWebSearchTool("k")
	if tool.Name() != "web_search" || tool.Permission() != PermissionRead {
		t.Errorf("unexpected name/permission %s/%s", tool.Name(), tool.Permission())
	}
	required, _ := tool.InputSchema()["required"].([]string)
	if len(required) != 1 || required[0] != "query" {
		t.Errorf("required = %v", required)
	}
}

func TestWebSearchTool_MissingQuery(t *testing.T) {
	tool := NewWebSearchTool("k")
	if _, err := tool.Execute(context.Background(), map[string]any{"query": ""}); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestWebSearchTool_Execute(t *testing.T) {
	tool := newTestSearch(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		var req tavilyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.APIKey != "test-key" || req.Query != "go 1.25 release" || req.MaxResults != 10 {
			t.Errorf("unexpected request body %+v", req)
		}
		if len(req.IncludeDomains) != 1 || req.IncludeDomains[0] != "go.dev" {
			t.Errorf("include_domains = %v", req.IncludeDomains)
		}
		_ = json.NewEncoder(w).Encode(tavilyResponse{
			Answer: "Go 1.25 shipped in August.",
			Query:  req.Query,
			Results: []tavilyResult{
				{Title: "Go 1.25 Release Notes", URL: "https://go.dev/doc/go1.25", Content: strings.Repeat("x", 600), Score: 0.9},
			},
		})
	})

	res, err := tool.Execute(context.Background(), map[string]any{
		"query":           "go 1.25 release",
		"max_results":     float64(50),
		"include_domains": []any{"go.dev", 3},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res["answer"] != "Go 1.25 shipped in August." {
		t.Errorf("answer = %v", res["answer"])
	}
	results := res["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("results = %v", results)
	}
	first := results[0].(map[string]any)
	if first["url"] != "https://go.dev/doc/go1.25" {
		t.Errorf("url = %v", first["url"])
	}
	if snippet := first["snippet"].(string); !strings.HasPrefix(snippet, strings.Repeat("x", maxSnippetChars)+"\n... (truncated") {
		t.Errorf("snippet not truncated: %q", snippet)
	}
}

func TestWebSearchTool_HTTPError(t *testing.T) {
	tool := newTestSearch(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})
	_, err := tool.Execute(context.Background(), map[string]any{"query": "anything"})
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Errorf("expected status error, got %v", err)
	}
}
