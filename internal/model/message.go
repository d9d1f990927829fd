package model

import "time"

// MessageType classifies a community message.
type MessageType string

const (
	MessageText         MessageType = "text"
	MessageSystem       MessageType = "system"
	MessageAnnouncement MessageType = "announcement"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageSystem, MessageAnnouncement:
		return true
	}
	return false
}

// DefaultRoom is used when a message is posted without a room.
const DefaultRoom = "general"

// Message is a post on the community board.
//
// Username is copied from the author at post time so messages stay readable
// after the author is renamed or deleted. User is filled by the service when
// the author still exists and is never persisted.
type Message struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Username  string      `json:"username"`
	User      *Author     `json:"user,omitempty"`
	Content   string      `json:"content"`
	Room      string      `json:"room"`
	Type      MessageType `json:"type"`
	Edited    bool        `json:"edited"`
	EditedAt  *time.Time  `json:"editedAt,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
