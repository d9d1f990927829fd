// Package service holds the business rules of the hub.
//
// Handlers parse HTTP and call a service; services validate input, enforce
// permissions and orchestrate the repositories and the assistant. Services
// never see an *http.Request and return apperror values the handler layer
// maps to status codes.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/roboanalyzer-hub/internal/apperror"
	"github.com/sakif/roboanalyzer-hub/internal/auth"
	"github.com/sakif/roboanalyzer-hub/internal/model"
	"github.com/sakif/roboanalyzer-hub/internal/repository"
)

// AuthService owns accounts: registration, login, profile changes and the
// one-time admin bootstrap.
type AuthService struct {
	users       repository.UserRepository
	chats       repository.ChatRepository
	tokens      *auth.TokenService
	passwords   *auth.PasswordService
	adminSecret string
	logger      *slog.Logger
	now         func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	chats repository.ChatRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	adminSecret string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:       users,
		chats:       chats,
		tokens:      tokens,
		passwords:   passwords,
		adminSecret: adminSecret,
		logger:      logger,
		now:         time.Now,
	}
}

// AuthResult bundles the signed-in user with the session token so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type CreateAdminInput struct {
	RegisterInput
	AdminSecret string
}

// ProfileUpdate carries the optional fields of an update-profile request.
// Empty strings leave the field unchanged.
type ProfileUpdate struct {
	Username        string
	Email           string
	CurrentPassword string
	NewPassword     string
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

// Register creates a regular account and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	user, err := s.createUser(ctx, in, model.RoleUser)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("username", user.Username))
	return s.issue(user)
}

// Login checks credentials and marks the user online. Unknown emails and
// wrong passwords get the same 401 so accounts cannot be probed.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperror.ValidationFailed("", "Email and password are required")
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	invalid := apperror.Unauthorized("Invalid email or password")

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: loading user: %w", err)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("stored password hash is unreadable", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		}
		return nil, invalid
	}

	if err := s.markPresence(ctx, user, true); err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	return s.issue(user)
}

// Logout marks the user offline. The token itself stays valid until it
// expires; the handler clears the cookie.
func (s *AuthService) Logout(ctx context.Context, user *model.User) error {
	return s.markPresence(ctx, user, false)
}

func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "User ID is required")
	}
	return s.users.GetByID(ctx, id)
}

// UpdateProfile applies the non-empty fields of upd to user. Changing the
// password requires the current one, except for GitHub-only accounts that
// never had a password.
func (s *AuthService) UpdateProfile(ctx context.Context, user *model.User, upd ProfileUpdate) (*model.User, error) {
	current, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if upd.Username != "" {
		username, err := validateUsername(upd.Username)
		if err != nil {
			return nil, err
		}
		if username != current.Username {
			if err := s.ensureUsernameFree(ctx, username, current.ID); err != nil {
				return nil, err
			}
			current.Username = username
		}
	}

	if upd.Email != "" {
		email, err := normalizeEmail(upd.Email)
		if err != nil {
			return nil, err
		}
		if email != current.Email {
			if err := s.ensureEmailFree(ctx, email, current.ID); err != nil {
				return nil, err
			}
			current.Email = email
		}
	}

	if upd.NewPassword != "" {
		if current.PasswordHash != "" {
			if upd.CurrentPassword == "" {
				return nil, apperror.ValidationFailed("currentPassword", "Current password is required to set a new password")
			}
			if err := s.passwords.Verify(current.PasswordHash, upd.CurrentPassword); err != nil {
				return nil, apperror.ValidationFailed("currentPassword", "Current password is incorrect")
			}
		}
		if err := validatePassword(upd.NewPassword); err != nil {
			return nil, err
		}
		hash, err := s.passwords.Hash(upd.NewPassword)
		if err != nil {
			return nil, fmt.Errorf("service/auth: hashing password: %w", err)
		}
		current.PasswordHash = hash
	}

	if err := s.users.Update(ctx, current); err != nil {
		return nil, userConflict(err)
	}

	s.logger.Info("profile updated", slog.String("user_id", current.ID))
	return current, nil
}

// DeleteAccount removes the caller and their chats. Admins cannot delete
// themselves this way.
func (s *AuthService) DeleteAccount(ctx context.Context, user *model.User) error {
	if user.IsAdmin() {
		return apperror.ValidationFailed("", "Admin accounts cannot be deleted")
	}

	if _, err := s.chats.DeleteByUsers(ctx, []string{user.ID}); err != nil {
		return fmt.Errorf("service/auth: deleting chats of %s: %w", user.ID, err)
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return err
	}

	s.logger.Info("account deleted", slog.String("user_id", user.ID))
	return nil
}

func (s *AuthService) AdminExists(ctx context.Context) (bool, error) {
	exists, err := s.users.AdminExists(ctx)
	if err != nil {
		return false, fmt.Errorf("service/auth: checking admin: %w", err)
	}
	return exists, nil
}

// CreateAdmin is the one-time admin bootstrap. The shared secret must be
// configured and match.
func (s *AuthService) CreateAdmin(ctx context.Context, in CreateAdminInput) (*model.User, error) {
	if s.adminSecret == "" || subtle.ConstantTimeCompare([]byte(in.AdminSecret), []byte(s.adminSecret)) != 1 {
		s.logger.Warn("admin bootstrap refused: bad secret")
		return nil, apperror.Forbidden("Invalid admin secret key")
	}
	return s.BootstrapAdmin(ctx, in.RegisterInput)
}

// BootstrapAdmin creates the first admin without the secret check. It is
// used by the create-admin command, which already has server access.
func (s *AuthService) BootstrapAdmin(ctx context.Context, in RegisterInput) (*model.User, error) {
	exists, err := s.AdminExists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.ValidationFailed("", "Admin user already exists. Only one admin allowed.")
	}

	user, err := s.createUser(ctx, in, model.RoleAdmin)
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin created", slog.String("user_id", user.ID), slog.String("username", user.Username))
	return user, nil
}

// LoginWithGitHub signs in the account linked to gh, linking an existing
// account with the same email or creating a new one on first sign-in.
func (s *AuthService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user, err := s.users.GetByGitHubID(ctx, gh.ID)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		user, err = s.linkOrCreateGitHub(ctx, gh)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("service/auth: loading user (githubID=%d): %w", gh.ID, err)
	}

	if err := s.markPresence(ctx, user, true); err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("user_id", user.ID),
		slog.String("login", gh.Login),
	)
	return s.issue(user)
}

func (s *AuthService) linkOrCreateGitHub(ctx context.Context, gh *auth.GitHubUser) (*model.User, error) {
	email, err := normalizeEmail(gh.Email)
	if err != nil {
		return nil, apperror.ValidationFailed("email", "GitHub account has no usable email address")
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		existing.GitHubID = gh.ID
		if err := s.users.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("service/auth: linking GitHub account: %w", err)
		}
		return existing, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: loading user by email: %w", err)
	}

	username, err := s.freeUsername(ctx, gh.Login)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username: username,
		Email:    email,
		Role:     model.RoleUser,
		GitHubID: gh.ID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, userConflict(err)
	}
	return user, nil
}

var nonUsernameChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// freeUsername derives a valid, unused username from a GitHub login.
func (s *AuthService) freeUsername(ctx context.Context, login string) (string, error) {
	base := nonUsernameChars.ReplaceAllString(login, "_")
	if len(base) < 3 {
		base = "user_" + base
	}
	base = truncateRunes(base, 26)

	for i := 0; i < 100; i++ {
		candidate := base
		if i > 0 {
			candidate = base + strconv.Itoa(i)
		}
		_, err := s.users.GetByUsername(ctx, candidate)
		if errors.Is(err, apperror.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("service/auth: checking username: %w", err)
		}
	}
	return "", apperror.Conflict("username", "Could not derive a free username from the GitHub login")
}

func (s *AuthService) createUser(ctx context.Context, in RegisterInput, role model.Role) (*model.User, error) {
	if strings.TrimSpace(in.Username) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, apperror.ValidationFailed("", "All fields are required")
	}
	username, err := validateUsername(in.Username)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}
	if err := s.ensureUsernameFree(ctx, username, ""); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Avatar:       model.DefaultAvatar,
		IsOnline:     role == model.RoleUser,
		LastSeen:     s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, userConflict(err)
	}
	return user, nil
}

// ensureEmailFree fails with Conflict when email belongs to a user other
// than selfID.
func (s *AuthService) ensureEmailFree(ctx context.Context, email, selfID string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("service/auth: checking email: %w", err)
	}
	if u.ID != selfID {
		return apperror.Conflict("email", "Email already registered")
	}
	return nil
}

func (s *AuthService) ensureUsernameFree(ctx context.Context, username, selfID string) error {
	u, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("service/auth: checking username: %w", err)
	}
	if u.ID != selfID {
		return apperror.Conflict("username", "Username already taken")
	}
	return nil
}

func (s *AuthService) markPresence(ctx context.Context, user *model.User, online bool) error {
	at := s.now().UTC()
	if err := s.users.SetPresence(ctx, user.ID, online, at); err != nil {
		return fmt.Errorf("service/auth: updating presence of %s: %w", user.ID, err)
	}
	user.IsOnline = online
	user.LastSeen = at
	return nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
