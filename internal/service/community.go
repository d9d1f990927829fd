package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sakif/roboanalyzer-hub/internal/apperror"
	"github.com/sakif/roboanalyzer-hub/internal/model"
	"github.com/sakif/roboanalyzer-hub/internal/repository"
)

// CommunityService runs the public message board.
type CommunityService struct {
	messages repository.MessageRepository
	users    repository.UserRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewCommunityService(messages repository.MessageRepository, users repository.UserRepository, logger *slog.Logger) *CommunityService {
	return &CommunityService{
		messages: messages,
		users:    users,
		logger:   logger,
		now:      time.Now,
	}
}

type ListMessagesInput struct {
	Room  string
	Limit int
	Skip  int
}

type PostInput struct {
	Content string
	Room    string
	Type    model.MessageType
}

// List returns one page of a room. Pages are counted from the newest
// message backwards, but each page is returned oldest first so it can be
// rendered top to bottom.
func (s *CommunityService) List(ctx context.Context, in ListMessagesInput) ([]model.Message, error) {
	room := strings.TrimSpace(in.Room)
	if room == "" {
		room = model.DefaultRoom
	}
	limit := in.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	skip := max(in.Skip, 0)

	msgs, err := s.messages.ListByRoom(ctx, room, repository.ListOptions{Limit: limit, Offset: skip})
	if err != nil {
		return nil, fmt.Errorf("service/community: listing %s: %w", room, err)
	}
	slices.Reverse(msgs)

	if err := s.attachAuthors(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Post publishes a message as author. System and announcement messages are
// reserved for admins.
func (s *CommunityService) Post(ctx context.Context, author *model.User, in PostInput) (*model.Message, error) {
	content, err := validateContent(in.Content)
	if err != nil {
		return nil, err
	}

	room := strings.TrimSpace(in.Room)
	if room == "" {
		room = model.DefaultRoom
	}
	if len([]rune(room)) > MaxRoomLength {
		return nil, apperror.ValidationFailed("room", fmt.Sprintf("Room name cannot exceed %d characters", MaxRoomLength))
	}

	kind := in.Type
	if kind == "" {
		kind = model.MessageText
	}
	if !kind.Valid() {
		return nil, apperror.ValidationFailed("type", fmt.Sprintf("Unknown message type %q", kind))
	}
	if kind != model.MessageText && !author.IsAdmin() {
		return nil, apperror.Forbidden("Only admins can post system or announcement messages")
	}

	msg := &model.Message{
		UserID:   author.ID,
		Username: author.Username,
		Content:  content,
		Room:     room,
		Type:     kind,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("service/community: creating message: %w", err)
	}
	msg.User = model.AuthorOf(author)

	s.logger.Info("message posted",
		slog.String("message_id", msg.ID),
		slog.String("room", room),
		slog.String("user_id", author.ID),
	)
	return msg, nil
}

// Edit replaces the content of a message. Admin only.
func (s *CommunityService) Edit(ctx context.Context, actor *model.User, id, content string) (*model.Message, error) {
	if !actor.IsAdmin() {
		return nil, apperror.Forbidden("Unauthorized. Admin access required.")
	}
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}

	msg, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	editedAt := s.now().UTC()
	msg.Content = content
	msg.Edited = true
	msg.EditedAt = &editedAt
	if err := s.messages.Update(ctx, msg); err != nil {
		return nil, err
	}

	if author, err := s.users.GetByID(ctx, msg.UserID); err == nil {
		msg.User = model.AuthorOf(author)
	}

	s.logger.Info("message edited", slog.String("message_id", id), slog.String("admin_id", actor.ID))
	return msg, nil
}

// Delete removes a message permanently. Admin only.
func (s *CommunityService) Delete(ctx context.Context, actor *model.User, id string) error {
	if !actor.IsAdmin() {
		return apperror.Forbidden("Unauthorized. Admin access required.")
	}
	if err := s.messages.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("message deleted", slog.String("message_id", id), slog.String("admin_id", actor.ID))
	return nil
}

// attachAuthors fills Message.User for authors that still exist.
func (s *CommunityService) attachAuthors(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if !slices.Contains(ids, m.UserID) {
			ids = append(ids, m.UserID)
		}
	}

	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("service/community: loading authors: %w", err)
	}
	byID := make(map[string]*model.Author, len(users))
	for i := range users {
		byID[users[i].ID] = model.AuthorOf(&users[i])
	}

	for i := range msgs {
		msgs[i].User = byID[msgs[i].UserID]
	}
	return nil
}
