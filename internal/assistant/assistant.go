// Package assistant defines the interface to the hosted language model that
// answers chat turns, plus the prompt material every provider shares.
//
// Providers live in subpackages (gemini, openai). Each one is a thin
// adapter: it renders the conversation in the form its API expects, makes
// one synchronous call and reports token usage.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/roboanalyzer-hub/internal/model"
)

// ErrNotConfigured is returned by every call of an assistant whose
// credentials are missing.
var ErrNotConfigured = errors.New("assistant: provider not configured")

// DefaultTitle is used whenever a title cannot be generated.
const DefaultTitle = "New Chat"

// MaxTitleLength matches the limit on a ChatHistory title.
const MaxTitleLength = 100

type Request struct {
	// Model overrides the provider's default model when non-empty.
	Model string
	// Turns is the whole conversation so far, oldest first. The last turn
	// is normally the user's new message.
	Turns []model.ChatMessage
}

type Usage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

type Reply struct {
	Text  string
	Usage Usage
}

// Assistant is implemented by each model provider.
type Assistant interface {
	// Name identifies the provider in logs and health output.
	Name() string
	// DefaultModel is used when a request does not name a model.
	DefaultModel() string
	Reply(ctx context.Context, req Request) (*Reply, error)
	// Title asks the model for a short title for a chat that starts with
	// firstMessage. Callers fall back to DefaultTitle on error.
	Title(ctx context.Context, firstMessage string) (string, error)
	// Check is a cheap call used by the health endpoint.
	Check(ctx context.Context) error
}

// Transcript renders turns as the Human/Assistant dialogue appended to the
// system prompt for providers that take a single text prompt.
func Transcript(turns []model.ChatMessage) string {
	var b strings.Builder
	for _, t := range turns {
		switch t.Role {
		case model.ChatRoleUser:
			fmt.Fprintf(&b, "Human: %s\n\n", t.Content)
		case model.ChatRoleAssistant:
			fmt.Fprintf(&b, "Assistant: %s\n\n", t.Content)
		}
	}
	return b.String()
}

// Prompt is the full single-text prompt: system prompt, blank line,
// transcript.
func Prompt(turns []model.ChatMessage) string {
	return SystemPrompt + "\n\n" + Transcript(turns)
}

func TitlePrompt(firstMessage string) string {
	return fmt.Sprintf("Generate a short, descriptive title (max 6 words) for a chat that starts with this message: %q. Only return the title, nothing else.", firstMessage)
}

// CleanTitle strips quotes and surrounding whitespace from a model-generated
// title and caps its length. An empty result becomes DefaultTitle.
func CleanTitle(raw string) string {
	title := strings.NewReplacer(`"`, "", "'", "").Replace(raw)
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return DefaultTitle
	}
	if r := []rune(title); len(r) > MaxTitleLength {
		title = strings.TrimSpace(string(r[:MaxTitleLength]))
	}
	return title
}

// CharUsage approximates usage with character counts, for providers whose
// response carries no token metadata.
func CharUsage(prompt, completion string) Usage {
	p := int64(len([]rune(prompt)))
	c := int64(len([]rune(completion)))
	return Usage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c}
}

// FirstUserMessage returns the content of the first user turn, or "".
func FirstUserMessage(turns []model.ChatMessage) string {
	for _, t := range turns {
		if t.Role == model.ChatRoleUser {
			return t.Content
		}
	}
	return ""
}

// Disabled is the assistant used when no provider is configured. Every call
// fails with ErrNotConfigured so chat turns surface as upstream errors and
// the health endpoint reports "unconfigured".
type Disabled struct {
	Provider string
}

func (d Disabled) Name() string {
	if d.Provider == "" {
		return "none"
	}
	return d.Provider
}

func (Disabled) DefaultModel() string { return "" }

func (Disabled) Reply(context.Context, Request) (*Reply, error) { return nil, ErrNotConfigured }

func (Disabled) Title(context.Context, string) (string, error) { return DefaultTitle, ErrNotConfigured }

func (Disabled) Check(context.Context) error { return ErrNotConfigured }
