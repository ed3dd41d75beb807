package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/flowstack/sessioncore/internal/retry"
	"github.com/flowstack/sessioncore/pkg/models"
)

// AnthropicConfig configures an AnthropicClient, grounded on the
// teacher's providers.AnthropicConfig.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// AnthropicClient implements Client against Anthropic's Messages API.
// It is the one concrete LLM vendor adapter this module ships; the
// core only depends on the Client interface.
type AnthropicClient struct {
	client       anthropic.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// NewAnthropicClient returns a Client backed by the Anthropic SDK.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

// Ask implements Client.
func (c *AnthropicClient) Ask(ctx context.Context, req Request) (models.MemoryMessage, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return models.MemoryMessage{}, err
	}

	cfg := retry.Exponential(c.maxRetries, c.retryDelay, 30*time.Second)
	msg, result := retry.DoWithValue(ctx, cfg, func() (*anthropic.Message, error) {
		return c.client.Messages.New(ctx, params)
	})
	if result.Err != nil {
		return models.MemoryMessage{}, fmt.Errorf("anthropic: completion failed: %w", result.Err)
	}

	return convertAnthropicMessage(msg), nil
}

func (c *AnthropicClient) buildParams(req Request) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	messages, system, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params, nil
}

func convertMessages(in []models.MemoryMessage) ([]anthropic.MessageParam, string, error) {
	var system strings.Builder
	out := make([]anthropic.MessageParam, 0, len(in))
	for _, m := range in {
		switch m.Role {
		case models.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(m.Content)
		case models.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if len(tc.Input) > 0 {
					if err := json.Unmarshal(tc.Input, &input); err != nil {
						return nil, "", fmt.Errorf("anthropic: bad tool_call input for %s: %w", tc.ID, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case models.RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return out, system.String(), nil
}

func convertTools(in []ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(in))
	for _, t := range in {
		props := t.Parameters
		if props == nil {
			props = map[string]any{}
		}
		schema := anthropic.ToolInputSchemaParam{
			Properties: props,
			Required:   t.Required,
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if toolParam.OfTool != nil {
			toolParam.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, toolParam)
	}
	return out
}

func convertAnthropicMessage(msg *anthropic.Message) models.MemoryMessage {
	out := models.MemoryMessage{Role: models.RoleAssistant}
	var text strings.Builder
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			id := variant.ID
			if id == "" {
				id = uuid.NewString()
			}
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:    id,
				Name:  variant.Name,
				Input: json.RawMessage(variant.Input),
			})
		}
	}
	out.Content = text.String()
	return out
}
