package gemini

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"

	"github.com/sakif/roboanalyzer-hub/internal/assistant"
)

func candidate(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), "", "")
	assert.ErrorIs(t, err, assistant.ErrNotConfigured)
}

func TestResponseText(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{"nil response", nil, ""},
		{"no candidates", &genai.GenerateContentResponse{}, ""},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, ""},
		{"single part", candidate(genai.Text("Open the FKin tab.")), "Open the FKin tab."},
		{"joins parts and trims", candidate(genai.Text("Step 1. "), genai.Text("Step 2.\n")), "Step 1. Step 2."},
		{"skips non-text parts", candidate(genai.Blob{MIMEType: "image/png"}, genai.Text("ok")), "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, responseText(tt.resp))
		})
	}
}

func TestUsageOf(t *testing.T) {
	t.Run("uses token metadata", func(t *testing.T) {
		resp := candidate(genai.Text("x"))
		resp.UsageMetadata = &genai.UsageMetadata{PromptTokenCount: 12, CandidatesTokenCount: 3, TotalTokenCount: 15}

		assert.Equal(t, assistant.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}, usageOf(resp, "prompt", "x"))
	})

	t.Run("falls back to characters", func(t *testing.T) {
		resp := candidate(genai.Text("abc"))

		assert.Equal(t, assistant.Usage{PromptTokens: 6, CompletionTokens: 3, TotalTokens: 9}, usageOf(resp, "prompt", "abc"))
	})
}
