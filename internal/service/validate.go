package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sakif/roboanalyzer-hub/internal/apperror"
	"github.com/sakif/roboanalyzer-hub/internal/auth"
)

const (
	MinPasswordLength = 6
	MaxContentLength  = 1000
	MaxRoomLength     = 50
	MaxHistoryItems   = 50
	MaxPreviewLength  = 100
	DefaultListLimit  = 50
	MaxListLimit      = 100
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

func validateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return "", apperror.ValidationFailed("username",
			"Username must be 3-30 characters and contain only letters, numbers, and underscores")
	}
	return username, nil
}

// normalizeEmail trims and lower-cases email and checks its shape.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return "", apperror.ValidationFailed("email", "Please enter a valid email address")
	}
	return email, nil
}

func validatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at most %d bytes long", auth.MaxPasswordBytes))
	}
	return nil
}

// validateContent enforces the length of a community message body as
// posted, then returns it trimmed for storage.
func validateContent(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", apperror.ValidationFailed("content", "Message content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", apperror.ValidationFailed("content",
			fmt.Sprintf("Message cannot exceed %d characters", MaxContentLength))
	}
	return strings.TrimSpace(content), nil
}

// userConflict rewrites a repository uniqueness violation into the message
// shown on the account forms. Other errors pass through unchanged.
func userConflict(err error) error {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrConflict) {
		return err
	}
	switch appErr.Field {
	case "email":
		return apperror.Conflict("email", "Email already registered")
	case "username":
		return apperror.Conflict("username", "Username already taken")
	}
	return err
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
