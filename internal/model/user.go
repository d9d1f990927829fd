// Package model defines the data structures used throughout the application.
package model

import "time"

// Role is a user's permission level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// DefaultAvatar is assigned to every new account.
const DefaultAvatar = "/avatar.svg"

// User represents a registered account.
//
// PasswordHash is empty for accounts created through GitHub sign-in; those
// accounts cannot log in with a password until they set one.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Avatar       string    `json:"avatar"`
	GitHubID     int64     `json:"githubId,omitempty"`
	IsOnline     bool      `json:"isOnline"`
	LastSeen     time.Time `json:"lastSeen"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Author is the public slice of a User attached to community messages.
type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	IsOnline bool   `json:"isOnline"`
}

// AuthorOf returns the public author view of u.
func AuthorOf(u *User) *Author {
	return &Author{
		ID:       u.ID,
		Username: u.Username,
		Avatar:   u.Avatar,
		IsOnline: u.IsOnline,
	}
}
