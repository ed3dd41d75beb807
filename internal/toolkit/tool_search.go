package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/flowstack/sessioncore/pkg/models"
)

// SearchConfig selects and authenticates the web search backend,
// grounded on the teacher's internal/tools/websearch.Config.
type SearchConfig struct {
	// Backend is "brave" or "duckduckgo". Empty defaults to
	// duckduckgo, which needs no credentials.
	Backend     string
	BraveAPIKey string
	ResultCount int
}

// SearchResult is one hit returned by SearchTool, grounded on the
// teacher's websearch.SearchResult shape.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchTool performs a web search, registered only when a
// SearchConfig names a usable backend.
type SearchTool struct {
	cfg    SearchConfig
	client *http.Client

	// duckduckgoURL and braveURL override the real API endpoints in
	// tests; both default to the live API when empty.
	duckduckgoURL string
	braveURL      string
}

// NewSearchTool returns a SearchTool for cfg. ResultCount defaults to
// 5 when unset.
func NewSearchTool(cfg SearchConfig) *SearchTool {
	if cfg.ResultCount <= 0 {
		cfg.ResultCount = 5
	}
	if cfg.Backend == "" {
		cfg.Backend = "duckduckgo"
	}
	return &SearchTool{
		cfg:           cfg,
		client:        &http.Client{Timeout: 15 * time.Second},
		duckduckgoURL: "https://api.duckduckgo.com/",
		braveURL:      "https://api.search.brave.com/res/v1/web/search",
	}
}

func (t *SearchTool) Name() string { return "web_search" }
func (t *SearchTool) Description() string {
	return "Searches the web and returns a short list of titled results with URLs."
}

type searchInput struct {
	Query string `json:"query"`
}

func (t *SearchTool) Execute(ctx context.Context, sessionID string, input json.RawMessage) (models.ToolResult, error) {
	var in searchInput
	if err := json.Unmarshal(input, &in); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("invalid search input: %v", err)}, nil
	}
	if in.Query == "" {
		return models.ToolResult{Success: false, Error: "query is required"}, nil
	}

	var (
		results []SearchResult
		err     error
	)
	switch t.cfg.Backend {
	case "brave":
		results, err = t.searchBrave(ctx, in.Query)
	default:
		results, err = t.searchDuckDuckGo(ctx, in.Query)
	}
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}

	encoded, err := json.Marshal(map[string]any{"query": in.Query, "results": results})
	if err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return models.ToolResult{Success: true, Message: string(encoded), Data: results}, nil
}

func (t *SearchTool) searchDuckDuckGo(ctx context.Context, query string) ([]SearchResult, error) {
	instantURL := fmt.Sprintf("%s?q=%s&format=json&no_html=1", t.duckduckgoURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, instantURL, nil)
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: duckduckgo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: read response: %w", err)
	}

	var parsed struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Heading       string `json:"Heading"`
		RelatedTopics []struct {
			FirstURL string `json:"FirstURL"`
			Text     string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("search: parse response: %w", err)
	}

	var results []SearchResult
	if parsed.AbstractText != "" && parsed.AbstractURL != "" {
		results = append(results, SearchResult{Title: parsed.Heading, URL: parsed.AbstractURL, Snippet: parsed.AbstractText})
	}
	for _, topic := range parsed.RelatedTopics {
		if len(results) >= t.cfg.ResultCount {
			break
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		results = append(results, SearchResult{Title: topic.Text, URL: topic.FirstURL, Snippet: topic.Text})
	}
	return results, nil
}

func (t *SearchTool) searchBrave(ctx context.Context, query string) ([]SearchResult, error) {
	if t.cfg.BraveAPIKey == "" {
		return nil, fmt.Errorf("search: brave api key not configured")
	}
	searchURL := t.braveURL + "?" + url.Values{
		"q":     {query},
		"count": {fmt.Sprintf("%d", t.cfg.ResultCount)},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.cfg.BraveAPIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: brave returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: read response: %w", err)
	}

	var parsed struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("search: parse response: %w", err)
	}

	results := make([]SearchResult, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return results, nil
}
