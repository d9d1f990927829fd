// Package repository declares the storage interfaces the services depend on.
//
// Two implementations exist: repository/mongodb (the production document
// store) and repository/sqlite (embedded, used for local development and
// tests). Both return apperror.NotFound for missing records and
// apperror.Conflict for uniqueness violations.
package repository

import (
	"context"
	"time"

	"github.com/sakif/roboanalyzer-hub/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	// Create fills in ID and timestamps. Duplicate email or username → Conflict.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	// GetByIDs silently skips unknown ids.
	GetByIDs(ctx context.Context, ids []string) ([]model.User, error)
	AdminExists(ctx context.Context) (bool, error)
	// List returns every user, newest first.
	List(ctx context.Context) ([]model.User, error)
	// ListCreatedSince returns users created at or after since, newest first.
	ListCreatedSince(ctx context.Context, since time.Time, limit int) ([]model.User, error)
	// Update writes the mutable profile fields (username, email, password,
	// role, avatar, githubId) and bumps UpdatedAt.
	Update(ctx context.Context, user *model.User) error
	SetPresence(ctx context.Context, id string, online bool, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) (int64, error)
	Count(ctx context.Context) (int64, error)
	CountSeenSince(ctx context.Context, since time.Time) (int64, error)
}

type ChatRepository interface {
	Create(ctx context.Context, chat *model.ChatHistory) error
	// GetActive returns the chat only if it belongs to userID and is active.
	GetActive(ctx context.Context, id, userID string) (*model.ChatHistory, error)
	// AppendMessages pushes msgs onto an active chat owned by userID and
	// returns the updated chat.
	AppendMessages(ctx context.Context, id, userID string, msgs []model.ChatMessage) (*model.ChatHistory, error)
	// ListActive returns the user's active chats, most recently updated first.
	ListActive(ctx context.Context, userID string, limit int) ([]model.ChatHistory, error)
	// Deactivate soft-deletes a chat owned by userID.
	Deactivate(ctx context.Context, id, userID string) error
	DeleteByUsers(ctx context.Context, userIDs []string) (int64, error)
	Activity(ctx context.Context, userID string, since time.Time) (model.ChatActivity, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	// Update writes content, edited and editedAt.
	Update(ctx context.Context, msg *model.Message) error
	Delete(ctx context.Context, id string) error
	// ListByRoom returns messages of a room, newest first.
	ListByRoom(ctx context.Context, room string, opts ListOptions) ([]model.Message, error)
	Count(ctx context.Context) (int64, error)
}

// Store bundles the three collections behind one connection.
type Store interface {
	Users() UserRepository
	Chats() ChatRepository
	Messages() MessageRepository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
