package model

import "time"

// ChatRole identifies who wrote a turn of an AI conversation.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

func (r ChatRole) Valid() bool {
	return r == ChatRoleUser || r == ChatRoleAssistant
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatHistory is a single AI conversation owned by one user.
// Deleting a chat clears IsActive; the document itself is kept.
type ChatHistory struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	IsActive  bool          `json:"isActive"`
	Model     string        `json:"model"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// ChatActivity aggregates a user's active chats for the stats endpoint.
type ChatActivity struct {
	Chats          int64
	Messages       int64
	RecentlyActive int64
}
