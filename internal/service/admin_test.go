package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/roboanalyzer-hub/internal/apperror"
	"github.com/sakif/roboanalyzer-hub/internal/assistant"
	"github.com/sakif/roboanalyzer-hub/internal/model"
	"github.com/sakif/roboanalyzer-hub/internal/repository/sqlite"
)

func newTestAdmin(t *testing.T, ai assistant.Assistant) (*AdminService, *sqlite.DB, *model.User) {
	t.Helper()
	db := newTestStore(t)
	admin := seedUser(t, db, "boss", model.RoleAdmin)
	return NewAdminService(db, ai, quietLogger()), db, admin
}

func TestAdminListUsers(t *testing.T) {
	svc, db, _ := newTestAdmin(t, newFakeAssistant())
	seedUser(t, db, "newest", model.RoleUser)

	users, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "newest", users[0].Username)
}

func TestAdminRecentUsers(t *testing.T) {
	svc, db, _ := newTestAdmin(t, newFakeAssistant())
	seedUser(t, db, "fresh", model.RoleUser)

	// Pretend the clock moved eight days ahead: nobody is recent any more.
	later := time.Now().Add(8 * 24 * time.Hour)
	svc.now = func() time.Time { return later }
	users, err := svc.RecentUsers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)

	svc.now = time.Now
	users, err = svc.RecentUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestAdminChangeRole(t *testing.T) {
	svc, db, admin := newTestAdmin(t, newFakeAssistant())
	user := seedUser(t, db, "member", model.RoleUser)
	ctx := context.Background()

	_, err := svc.ChangeRole(ctx, admin, user.ID, "superuser")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.ChangeRole(ctx, admin, admin.ID, model.RoleUser)
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "Cannot demote yourself from admin", err.Error())

	_, err = svc.ChangeRole(ctx, admin, "missing", model.RoleAdmin)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	promoted, err := svc.ChangeRole(ctx, admin, user.ID, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, promoted.Role)

	stored, err := db.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAdmin())
}

func TestAdminDeleteUser(t *testing.T) {
	svc, db, admin := newTestAdmin(t, newFakeAssistant())
	user := seedUser(t, db, "member", model.RoleUser)
	chat := seedChat(t, db, user.ID, "private")
	msg := &model.Message{UserID: user.ID, Username: user.Username, Content: "public post"}
	require.NoError(t, db.Messages().Create(context.Background(), msg))
	ctx := context.Background()

	err := svc.DeleteUser(ctx, admin, admin.ID)
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "Cannot delete your own account", err.Error())

	assert.ErrorIs(t, svc.DeleteUser(ctx, admin, "missing"), apperror.ErrNotFound)

	require.NoError(t, svc.DeleteUser(ctx, admin, user.ID))

	_, err = db.Users().GetByID(ctx, user.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = db.Chats().GetActive(ctx, chat.ID, user.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = db.Messages().GetByID(ctx, msg.ID)
	assert.NoError(t, err, "community messages outlive their author")
}

func TestAdminBulkDelete(t *testing.T) {
	svc, db, admin := newTestAdmin(t, newFakeAssistant())
	a := seedUser(t, db, "member_a", model.RoleUser)
	b := seedUser(t, db, "member_b", model.RoleUser)
	ctx := context.Background()

	_, err := svc.BulkDelete(ctx, admin, nil)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = svc.BulkDelete(ctx, admin, []string{"", "  "})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.BulkDelete(ctx, admin, []string{a.ID, admin.ID})
	require.ErrorIs(t, err, apperror.ErrValidation)
	_, err = db.Users().GetByID(ctx, a.ID)
	require.NoError(t, err, "nothing is deleted when the request is refused")

	n, err := svc.BulkDelete(ctx, admin, []string{a.ID, b.ID, a.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := db.Users().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestAdminHealth(t *testing.T) {
	tests := []struct {
		name   string
		ai     assistant.Assistant
		wantAI string
	}{
		{"healthy", newFakeAssistant(), StatusHealthy},
		{"unconfigured", assistant.Disabled{Provider: "gemini"}, StatusUnconfigured},
		{"error", &fakeAssistant{checkErr: errors.New("401 from provider")}, StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestAdmin(t, tt.ai)

			report := svc.Health(context.Background())
			assert.Equal(t, StatusHealthy, report.Database)
			assert.Equal(t, StatusHealthy, report.API)
			assert.Equal(t, tt.wantAI, report.AI)
			assert.False(t, report.Timestamp.IsZero())
		})
	}
}

func TestAdminHealth_DatabaseDown(t *testing.T) {
	svc, db, _ := newTestAdmin(t, newFakeAssistant())
	require.NoError(t, db.Close(context.Background()))

	report := svc.Health(context.Background())
	assert.Equal(t, StatusError, report.Database)
}
