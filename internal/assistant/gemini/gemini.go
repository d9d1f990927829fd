// Package gemini answers chat turns with Google's Generative AI API.
//
// Gemini receives the conversation as one text prompt: the system prompt
// followed by a Human/Assistant transcript.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/sakif/roboanalyzer-hub/internal/assistant"
)

const DefaultModel = "gemini-1.5-flash"

var _ assistant.Assistant = (*Client)(nil)

type Client struct {
	client *genai.Client
	model  string
}

// New creates a Gemini client. Extra options are passed to the underlying
// Google API client (endpoint overrides, HTTP client).
func New(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, assistant.ErrNotConfigured
	}
	if model == "" {
		model = DefaultModel
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Name() string         { return "gemini" }
func (c *Client) DefaultModel() string { return c.model }

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Reply(ctx context.Context, req assistant.Request) (*assistant.Reply, error) {
	name := req.Model
	if name == "" {
		name = c.model
	}
	model := c.client.GenerativeModel(name)

	prompt := assistant.Prompt(req.Turns)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini: generating content: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, errors.New("gemini: empty response")
	}

	return &assistant.Reply{Text: text, Usage: usageOf(resp, prompt, text)}, nil
}

func (c *Client) Title(ctx context.Context, firstMessage string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	maxTokens := int32(20)
	temp := float32(0.5)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	resp, err := model.GenerateContent(ctx, genai.Text(assistant.TitlePrompt(firstMessage)))
	if err != nil {
		return assistant.DefaultTitle, fmt.Errorf("gemini: generating title: %w", err)
	}
	return assistant.CleanTitle(responseText(resp)), nil
}

// Check fetches the model's metadata, which costs no tokens.
func (c *Client) Check(ctx context.Context) error {
	if _, err := c.client.GenerativeModel(c.model).Info(ctx); err != nil {
		return fmt.Errorf("gemini: model info: %w", err)
	}
	return nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

func usageOf(resp *genai.GenerateContentResponse, prompt, text string) assistant.Usage {
	if resp == nil || resp.UsageMetadata == nil || resp.UsageMetadata.TotalTokenCount == 0 {
		return assistant.CharUsage(prompt, text)
	}
	m := resp.UsageMetadata
	return assistant.Usage{
		PromptTokens:     int64(m.PromptTokenCount),
		CompletionTokens: int64(m.CandidatesTokenCount),
		TotalTokens:      int64(m.TotalTokenCount),
	}
}
