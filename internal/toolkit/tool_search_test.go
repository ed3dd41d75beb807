package toolkit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchTool_Name(t *testing.T) {
	tool := NewSearchTool(SearchConfig{})
	if tool.Name() != "web_search" {
		t.Errorf("Name() = %q, want web_search", tool.Name())
	}
}

func TestSearchTool_Execute_DuckDuckGo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Heading":      "Go (programming language)",
			"AbstractText": "Go is a statically typed language.",
			"AbstractURL":  "https://en.wikipedia.org/wiki/Go",
			"RelatedTopics": []map[string]any{
				{"FirstURL": "https://golang.org", "Text": "The Go homepage"},
			},
		})
	}))
	defer server.Close()

	tool := NewSearchTool(SearchConfig{})
	tool.client = server.Client()
	tool.duckduckgoURL = server.URL

	input, _ := json.Marshal(searchInput{Query: "golang"})
	result, err := tool.Execute(context.Background(), "session-1", input)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("Execute() = %+v, want success", result)
	}
	results, ok := result.Data.([]SearchResult)
	if !ok || len(results) != 2 {
		t.Fatalf("Data = %+v, want 2 results", result.Data)
	}
	if results[0].URL != "https://en.wikipedia.org/wiki/Go" {
		t.Errorf("results[0].URL = %q", results[0].URL)
	}
}

func TestSearchTool_Execute_Brave(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"web": map[string]any{
				"results": []map[string]any{
					{"title": "Brave Result", "url": "https://example.com", "description": "a result"},
				},
			},
		})
	}))
	defer server.Close()

	tool := NewSearchTool(SearchConfig{Backend: "brave", BraveAPIKey: "test-key"})
	tool.client = server.Client()
	tool.braveURL = server.URL

	input, _ := json.Marshal(searchInput{Query: "golang"})
	result, err := tool.Execute(context.Background(), "session-1", input)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("Execute() = %+v, want success", result)
	}
	results := result.Data.([]SearchResult)
	if len(results) != 1 || results[0].Title != "Brave Result" {
		t.Fatalf("results = %+v", results)
	}
}

func TestSearchTool_Execute_BraveMissingAPIKey(t *testing.T) {
	tool := NewSearchTool(SearchConfig{Backend: "brave"})
	input, _ := json.Marshal(searchInput{Query: "golang"})
	result, err := tool.Execute(context.Background(), "session-1", input)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Success {
		t.Fatal("expected failure without a configured api key")
	}
}

func TestSearchTool_Execute_EmptyQuery(t *testing.T) {
	tool := NewSearchTool(SearchConfig{})
	input, _ := json.Marshal(searchInput{Query: ""})
	result, err := tool.Execute(context.Background(), "session-1", input)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for empty query")
	}
}
