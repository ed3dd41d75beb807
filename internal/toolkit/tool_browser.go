package toolkit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/flowstack/sessioncore/internal/browser"
	"github.com/flowstack/sessioncore/pkg/models"
)

// BrowserTool drives a pooled Playwright browser for the sandbox's
// "browser: navigate/interact" surface, grounded on the teacher's
// internal/tools/browser.BrowserTool and trimmed to the action set
// SPEC_FULL.md names for the agent loop's web-interaction tool.
type BrowserTool struct {
	pool *browser.Pool
}

// NewBrowserTool wraps an already-started browser pool.
func NewBrowserTool(pool *browser.Pool) *BrowserTool {
	return &BrowserTool{pool: pool}
}

func (b *BrowserTool) Name() string { return "browser" }
func (b *BrowserTool) Description() string {
	return "Navigates and interacts with a web page: navigate, click, type, extract_text, extract_html, screenshot, execute_js."
}

type browserInput struct {
	Action   string `json:"action"`
	URL      string `json:"url"`
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Script   string `json:"script"`
	FullPage bool   `json:"full_page"`
}

func (b *BrowserTool) Execute(ctx context.Context, sessionID string, input json.RawMessage) (models.ToolResult, error) {
	var in browserInput
	if err := json.Unmarshal(input, &in); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("invalid browser input: %v", err)}, nil
	}

	instance, err := b.pool.Acquire(ctx)
	if err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("acquire browser: %v", err)}, nil
	}
	defer b.pool.Release(instance)

	switch in.Action {
	case "navigate":
		if in.URL == "" {
			return models.ToolResult{Success: false, Error: "url is required for navigate"}, nil
		}
		if _, err := instance.Page.Goto(in.URL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		}); err != nil {
			return models.ToolResult{Success: false, Error: err.Error()}, nil
		}
		return models.ToolResult{Success: true, Message: fmt.Sprintf("navigated to %s", in.URL)}, nil

	case "click":
		if in.Selector == "" {
			return models.ToolResult{Success: false, Error: "selector is required for click"}, nil
		}
		if err := instance.Page.Click(in.Selector); err != nil {
			return models.ToolResult{Success: false, Error: err.Error()}, nil
		}
		return models.ToolResult{Success: true, Message: fmt.Sprintf("clicked %s", in.Selector)}, nil

	case "type":
		if in.Selector == "" {
			return models.ToolResult{Success: false, Error: "selector is required for type"}, nil
		}
		if err := instance.Page.Fill(in.Selector, in.Text); err != nil {
			return models.ToolResult{Success: false, Error: err.Error()}, nil
		}
		return models.ToolResult{Success: true, Message: fmt.Sprintf("typed into %s", in.Selector)}, nil

	case "extract_text":
		selector := in.Selector
		if selector == "" {
			selector = "body"
		}
		text, err := instance.Page.TextContent(selector)
		if err != nil {
			return models.ToolResult{Success: false, Error: err.Error()}, nil
		}
		return models.ToolResult{Success: true, Message: text}, nil

	case "extract_html":
		if in.Selector == "" {
			html, err := instance.Page.Content()
			if err != nil {
				return models.ToolResult{Success: false, Error: err.Error()}, nil
			}
			return models.ToolResult{Success: true, Message: html}, nil
		}
		result, err := instance.Page.Evaluate(fmt.Sprintf("document.querySelector(%q).innerHTML", in.Selector))
		if err != nil {
			return models.ToolResult{Success: false, Error: err.Error()}, nil
		}
		return models.ToolResult{Success: true, Message: fmt.Sprintf("%v", result)}, nil

	case "screenshot":
		shot, err := instance.Page.Screenshot(playwright.PageScreenshotOptions{
			FullPage: playwright.Bool(in.FullPage),
			Type:     playwright.ScreenshotTypePng,
		})
		if err != nil {
			return models.ToolResult{Success: false, Error: err.Error()}, nil
		}
		return models.ToolResult{Success: true, Message: "screenshot captured", Data: map[string]any{"png_bytes": len(shot)}}, nil

	case "execute_js":
		if in.Script == "" {
			return models.ToolResult{Success: false, Error: "script is required for execute_js"}, nil
		}
		result, err := instance.Page.Evaluate(in.Script)
		if err != nil {
			return models.ToolResult{Success: false, Error: err.Error()}, nil
		}
		return models.ToolResult{Success: true, Message: fmt.Sprintf("%v", result)}, nil

	default:
		return models.ToolResult{Success: false, Error: fmt.Sprintf("unknown browser action %q", in.Action)}, nil
	}
}
