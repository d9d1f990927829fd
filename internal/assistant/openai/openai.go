// Package openai answers chat turns with OpenAI chat completions. The system
// prompt is sent as the system message and each stored turn as its own
// user or assistant message.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sakif/roboanalyzer-hub/internal/assistant"
	"github.com/sakif/roboanalyzer-hub/internal/model"
)

const (
	DefaultModel = "gpt-3.5-turbo"

	maxReplyTokens   = 1000
	replyTemperature = 0.7
	maxTitleTokens   = 20
	titleTemperature = 0.5
)

var _ assistant.Assistant = (*Client)(nil)

type Client struct {
	client openai.Client
	model  string
}

// New creates an OpenAI client. Extra options such as option.WithBaseURL
// point it at a compatible endpoint.
func New(apiKey, model string, opts ...option.RequestOption) (*Client, error) {
	if apiKey == "" {
		return nil, assistant.ErrNotConfigured
	}
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{client: openai.NewClient(opts...), model: model}, nil
}

func (c *Client) Name() string         { return "openai" }
func (c *Client) DefaultModel() string { return c.model }

func messages(turns []model.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	msgs = append(msgs, openai.SystemMessage(assistant.SystemPrompt))
	for _, t := range turns {
		switch t.Role {
		case model.ChatRoleUser:
			msgs = append(msgs, openai.UserMessage(t.Content))
		case model.ChatRoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		}
	}
	return msgs
}

func (c *Client) Reply(ctx context.Context, req assistant.Request) (*assistant.Reply, error) {
	name := req.Model
	if name == "" {
		name = c.model
	}

	res, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       name,
		Messages:    messages(req.Turns),
		MaxTokens:   openai.Int(maxReplyTokens),
		Temperature: openai.Float(replyTemperature),
	})
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}

	text := strings.TrimSpace(res.Choices[0].Message.Content)
	if text == "" {
		return nil, errors.New("openai: empty response")
	}

	usage := assistant.Usage{
		PromptTokens:     res.Usage.PromptTokens,
		CompletionTokens: res.Usage.CompletionTokens,
		TotalTokens:      res.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage = assistant.CharUsage(assistant.Prompt(req.Turns), text)
	}
	return &assistant.Reply{Text: text, Usage: usage}, nil
}

func (c *Client) Title(ctx context.Context, firstMessage string) (string, error) {
	res, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(assistant.TitlePrompt(firstMessage))},
		MaxTokens:   openai.Int(maxTitleTokens),
		Temperature: openai.Float(titleTemperature),
	})
	if err != nil {
		return assistant.DefaultTitle, fmt.Errorf("openai: generating title: %w", err)
	}
	if len(res.Choices) == 0 {
		return assistant.DefaultTitle, nil
	}
	return assistant.CleanTitle(res.Choices[0].Message.Content), nil
}

// Check retrieves the configured model, which costs no tokens.
func (c *Client) Check(ctx context.Context) error {
	if _, err := c.client.Models.Get(ctx, c.model); err != nil {
		return fmt.Errorf("openai: retrieving model %s: %w", c.model, err)
	}
	return nil
}
