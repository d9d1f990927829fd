package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sakif/roboanalyzer-hub/internal/apperror"
	"github.com/sakif/roboanalyzer-hub/internal/assistant"
	"github.com/sakif/roboanalyzer-hub/internal/model"
	"github.com/sakif/roboanalyzer-hub/internal/repository"
)

const DefaultAITimeout = 60 * time.Second

// ChatService runs AI conversations and keeps their history.
type ChatService struct {
	chats   repository.ChatRepository
	ai      assistant.Assistant
	models  []string
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

type ChatOptions struct {
	// AllowedModels are the model names a request may ask for in addition
	// to the provider default.
	AllowedModels []string
	// Timeout bounds each provider call. Zero means DefaultAITimeout.
	Timeout time.Duration
}

func NewChatService(chats repository.ChatRepository, ai assistant.Assistant, opts ChatOptions, logger *slog.Logger) *ChatService {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultAITimeout
	}
	return &ChatService{
		chats:   chats,
		ai:      ai,
		models:  opts.AllowedModels,
		timeout: opts.Timeout,
		logger:  logger,
		now:     time.Now,
	}
}

type SendInput struct {
	ChatID   string
	Model    string
	Messages []model.ChatMessage
}

type SendResult struct {
	Response string          `json:"response"`
	ChatID   string          `json:"chatId"`
	Title    string          `json:"title"`
	Usage    assistant.Usage `json:"usage"`
}

// ChatSummary is one row of the history sidebar.
type ChatSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
	LastMessage  string    `json:"lastMessage"`
}

// Send runs one chat turn. The assistant sees the stored history of the
// chat (if any) followed by the new messages. A new chat gets a generated
// title; an existing one has the new messages and the reply appended.
//
// The reply and the title share one deadline of s.timeout, so a turn never
// waits on the provider for longer than that. The title only gets what the
// reply left over. Store writes use ctx, not the turn deadline.
func (s *ChatService) Send(ctx context.Context, userID string, in SendInput) (*SendResult, error) {
	turns, err := s.validateTurns(in.Messages)
	if err != nil {
		return nil, err
	}

	var existing *model.ChatHistory
	if in.ChatID != "" {
		existing, err = s.chats.GetActive(ctx, in.ChatID, userID)
		if err != nil {
			return nil, err
		}
	}

	modelName, err := s.resolveModel(in.Model, existing)
	if err != nil {
		return nil, err
	}

	var history []model.ChatMessage
	if existing != nil {
		history = existing.Messages
	}

	turnCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.reply(turnCtx, modelName, append(slices.Clip(history), turns...))
	if err != nil {
		return nil, err
	}

	answer := model.ChatMessage{
		Role:      model.ChatRoleAssistant,
		Content:   reply.Text,
		Timestamp: s.now().UTC(),
	}
	newTurns := append(turns, answer)

	var chat *model.ChatHistory
	if existing != nil {
		chat, err = s.chats.AppendMessages(ctx, existing.ID, userID, newTurns)
		if err != nil {
			return nil, fmt.Errorf("service/chat: appending to %s: %w", existing.ID, err)
		}
	} else {
		chat = &model.ChatHistory{
			UserID:   userID,
			Title:    s.title(turnCtx, assistant.FirstUserMessage(turns)),
			Messages: newTurns,
			Model:    modelName,
		}
		if err := s.chats.Create(ctx, chat); err != nil {
			return nil, fmt.Errorf("service/chat: creating chat: %w", err)
		}
		s.logger.Info("chat created", slog.String("chat_id", chat.ID), slog.String("user_id", userID))
	}

	return &SendResult{
		Response: reply.Text,
		ChatID:   chat.ID,
		Title:    chat.Title,
		Usage:    reply.Usage,
	}, nil
}

// History lists the caller's active chats, most recently updated first.
func (s *ChatService) History(ctx context.Context, userID string) ([]ChatSummary, error) {
	chats, err := s.chats.ListActive(ctx, userID, MaxHistoryItems)
	if err != nil {
		return nil, fmt.Errorf("service/chat: listing chats: %w", err)
	}

	out := make([]ChatSummary, 0, len(chats))
	for _, c := range chats {
		sum := ChatSummary{
			ID:           c.ID,
			Title:        c.Title,
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
			MessageCount: len(c.Messages),
		}
		if n := len(c.Messages); n > 0 {
			sum.LastMessage = truncateRunes(c.Messages[n-1].Content, MaxPreviewLength)
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *ChatService) Get(ctx context.Context, userID, chatID string) (*model.ChatHistory, error) {
	if chatID == "" {
		return nil, apperror.ValidationFailed("chatId", "Chat ID is required")
	}
	return s.chats.GetActive(ctx, chatID, userID)
}

// Delete soft-deletes a chat: it disappears from history and Get but the
// record is kept.
func (s *ChatService) Delete(ctx context.Context, userID, chatID string) error {
	if chatID == "" {
		return apperror.ValidationFailed("chatId", "Chat ID is required")
	}
	if err := s.chats.Deactivate(ctx, chatID, userID); err != nil {
		return err
	}
	s.logger.Info("chat deleted", slog.String("chat_id", chatID), slog.String("user_id", userID))
	return nil
}

// validateTurns checks the client's messages and stamps them with the
// current time. Content is kept verbatim apart from the emptiness check.
func (s *ChatService) validateTurns(msgs []model.ChatMessage) ([]model.ChatMessage, error) {
	if len(msgs) == 0 {
		return nil, apperror.ValidationFailed("messages", "Messages array is required")
	}

	ts := s.now().UTC()
	out := make([]model.ChatMessage, 0, len(msgs))
	hasUser := false
	for i, m := range msgs {
		if !m.Role.Valid() {
			return nil, apperror.ValidationFailed("messages",
				fmt.Sprintf("messages[%d]: role must be user or assistant", i))
		}
		if strings.TrimSpace(m.Content) == "" {
			return nil, apperror.ValidationFailed("messages",
				fmt.Sprintf("messages[%d]: content is required", i))
		}
		hasUser = hasUser || m.Role == model.ChatRoleUser
		out = append(out, model.ChatMessage{Role: m.Role, Content: m.Content, Timestamp: ts})
	}
	if !hasUser {
		return nil, apperror.ValidationFailed("messages", "At least one user message is required")
	}
	return out, nil
}

// resolveModel picks the model for a turn: the requested one if allowed,
// else the chat's own model, else the provider default.
func (s *ChatService) resolveModel(requested string, chat *model.ChatHistory) (string, error) {
	requested = strings.TrimSpace(requested)
	def := s.ai.DefaultModel()
	switch {
	case requested == "":
		if chat != nil && chat.Model != "" {
			return chat.Model, nil
		}
		return def, nil
	case requested == def, slices.Contains(s.models, requested):
		return requested, nil
	}
	return "", apperror.ValidationFailed("model", fmt.Sprintf("Unsupported model %q", requested))
}

func (s *ChatService) reply(ctx context.Context, modelName string, turns []model.ChatMessage) (*assistant.Reply, error) {
	start := s.now()
	reply, err := s.ai.Reply(ctx, assistant.Request{Model: modelName, Turns: turns})
	if err != nil {
		s.logger.Error("assistant call failed",
			slog.String("provider", s.ai.Name()),
			slog.String("model", modelName),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, assistant.ErrNotConfigured):
			return nil, apperror.Upstream("AI service is not configured", err)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, apperror.Upstream("AI service timed out", err)
		}
		return nil, apperror.Upstream("Failed to get AI response", err)
	}

	s.logger.Debug("assistant replied",
		slog.String("provider", s.ai.Name()),
		slog.String("model", modelName),
		slog.Duration("duration", s.now().Sub(start)),
		slog.Int64("total_tokens", reply.Usage.TotalTokens),
	)
	return reply, nil
}

// title never fails: any provider error, or a turn deadline already spent
// on the reply, falls back to the default title.
func (s *ChatService) title(ctx context.Context, firstMessage string) string {
	if firstMessage == "" || ctx.Err() != nil {
		return assistant.DefaultTitle
	}

	title, err := s.ai.Title(ctx, firstMessage)
	if err != nil {
		s.logger.Warn("title generation failed", slog.String("error", err.Error()))
		return assistant.DefaultTitle
	}
	return assistant.CleanTitle(title)
}
