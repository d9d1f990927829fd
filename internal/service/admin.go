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

const (
	RecentUsersWindow = 7 * 24 * time.Hour
	RecentUsersLimit  = 20
	healthTimeout     = 5 * time.Second
)

// Health values reported by the admin health endpoint.
const (
	StatusHealthy      = "healthy"
	StatusError        = "error"
	StatusUnconfigured = "unconfigured"
)

// AdminService backs the admin panel. Callers are expected to have passed
// the admin middleware; the self-protection rules are enforced here.
type AdminService struct {
	store  repository.Store
	ai     assistant.Assistant
	logger *slog.Logger
	now    func() time.Time
}

func NewAdminService(store repository.Store, ai assistant.Assistant, logger *slog.Logger) *AdminService {
	return &AdminService{
		store:  store,
		ai:     ai,
		logger: logger,
		now:    time.Now,
	}
}

type HealthReport struct {
	Database  string    `json:"database"`
	API       string    `json:"api"`
	AI        string    `json:"ai"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *AdminService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.store.Users().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/admin: listing users: %w", err)
	}
	return users, nil
}

// RecentUsers returns up to 20 users who signed up in the last week.
func (s *AdminService) RecentUsers(ctx context.Context) ([]model.User, error) {
	since := s.now().UTC().Add(-RecentUsersWindow)
	users, err := s.store.Users().ListCreatedSince(ctx, since, RecentUsersLimit)
	if err != nil {
		return nil, fmt.Errorf("service/admin: listing recent users: %w", err)
	}
	return users, nil
}

// ChangeRole sets the role of userID. An admin cannot demote themselves.
func (s *AdminService) ChangeRole(ctx context.Context, actor *model.User, userID string, role model.Role) (*model.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperror.ValidationFailed("userId", "User ID is required")
	}
	if !role.Valid() {
		return nil, apperror.ValidationFailed("role", "Invalid role")
	}
	if userID == actor.ID && role != model.RoleAdmin {
		return nil, apperror.ValidationFailed("role", "Cannot demote yourself from admin")
	}

	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == role {
		return user, nil
	}

	user.Role = role
	if err := s.store.Users().Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/admin: updating role of %s: %w", userID, err)
	}

	s.logger.Info("user role changed",
		slog.String("user_id", userID),
		slog.String("role", string(role)),
		slog.String("admin_id", actor.ID),
	)
	return user, nil
}

// DeleteUser removes a user and their chats. Their community messages stay
// on the board under the stored username.
func (s *AdminService) DeleteUser(ctx context.Context, actor *model.User, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperror.ValidationFailed("userId", "User ID is required")
	}
	if userID == actor.ID {
		return apperror.ValidationFailed("userId", "Cannot delete your own account")
	}

	if _, err := s.store.Users().GetByID(ctx, userID); err != nil {
		return err
	}
	if _, err := s.store.Chats().DeleteByUsers(ctx, []string{userID}); err != nil {
		return fmt.Errorf("service/admin: deleting chats of %s: %w", userID, err)
	}
	if err := s.store.Users().Delete(ctx, userID); err != nil {
		return err
	}

	s.logger.Info("user deleted", slog.String("user_id", userID), slog.String("admin_id", actor.ID))
	return nil
}

// BulkDelete removes several users at once and returns how many existed.
func (s *AdminService) BulkDelete(ctx context.Context, actor *model.User, userIDs []string) (int64, error) {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, apperror.ValidationFailed("userIds", "Invalid user IDs array")
	}
	if slices.Contains(ids, actor.ID) {
		return 0, apperror.ValidationFailed("userIds", "Cannot delete your own account")
	}

	if _, err := s.store.Chats().DeleteByUsers(ctx, ids); err != nil {
		return 0, fmt.Errorf("service/admin: deleting chats: %w", err)
	}
	n, err := s.store.Users().DeleteMany(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("service/admin: deleting users: %w", err)
	}

	s.logger.Info("users bulk deleted", slog.Int64("count", n), slog.String("admin_id", actor.ID))
	return n, nil
}

// Health pings the store and the assistant provider. It never fails; each
// component reports its own status.
func (s *AdminService) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Database:  StatusHealthy,
		API:       StatusHealthy,
		AI:        StatusHealthy,
		Timestamp: s.now().UTC(),
	}

	dbCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := s.store.Ping(dbCtx); err != nil {
		s.logger.Warn("database health check failed", slog.String("error", err.Error()))
		report.Database = StatusError
	}

	aiCtx, cancelAI := context.WithTimeout(ctx, healthTimeout)
	defer cancelAI()
	if err := s.ai.Check(aiCtx); err != nil {
		if errors.Is(err, assistant.ErrNotConfigured) {
			report.AI = StatusUnconfigured
		} else {
			s.logger.Warn("assistant health check failed",
				slog.String("provider", s.ai.Name()),
				slog.String("error", err.Error()),
			)
			report.AI = StatusError
		}
	}

	return report
}
