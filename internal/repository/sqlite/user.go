package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/roboanalyzer-hub/internal/apperror"
	"github.com/sakif/roboanalyzer-hub/internal/model"
	"github.com/sakif/roboanalyzer-hub/internal/repository"
)

var _ repository.UserRepository = (*UserDB)(nil)

// UserDB handles all user-related database operations.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, username, email, password_hash, role, avatar, github_id,
	is_online, last_seen, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.Avatar,
		&githubID,
		&u.IsOnline,
		&u.LastSeen,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.GitHubID = githubID.Int64
	return &u, nil
}

// nullGitHubID stores 0 as NULL so the UNIQUE index ignores password-only
// accounts.
func nullGitHubID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// Create inserts a new user, generating the ID and timestamps.
// Role and Avatar default to RoleUser and model.DefaultAvatar.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if user.Avatar == "" {
		user.Avatar = model.DefaultAvatar
	}

	ts := now()
	user.ID = xid.New().String()
	user.CreatedAt = ts
	user.UpdatedAt = ts
	if user.LastSeen.IsZero() {
		user.LastSeen = ts
	}

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Avatar,
		nullGitHubID(user.GitHubID),
		user.IsOnline,
		user.LastSeen.UTC(),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if conflict := uniqueViolation(err, "users"); conflict != nil {
			return conflict
		}
		return fmt.Errorf("sqlite: creating user: %w", err)
	}
	return nil
}

func (u *UserDB) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("User")
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", where, err)
	}
	return user, nil
}

func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return u.getOne(ctx, "id = ?", id)
}

func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getOne(ctx, "email = ?", email)
}

func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return u.getOne(ctx, "username = ?", username)
}

func (u *UserDB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return u.getOne(ctx, "github_id = ?", githubID)
}

func (u *UserDB) GetByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}
	return u.query(ctx,
		`SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
}

func (u *UserDB) AdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := u.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE role = ?)`, model.RoleAdmin,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking for admin: %w", err)
	}
	return exists, nil
}

func (u *UserDB) List(ctx context.Context) ([]model.User, error) {
	return u.query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, rowid DESC`)
}

func (u *UserDB) ListCreatedSince(ctx context.Context, since time.Time, limit int) ([]model.User, error) {
	return u.query(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE created_at >= ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		since.UTC(), limit)
}

func (u *UserDB) query(ctx context.Context, query string, args ...any) ([]model.User, error) {
	rows, err := u.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}
	return users, nil
}

func (u *UserDB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = now()

	result, err := u.conn.ExecContext(ctx,
		`UPDATE users
		 SET username = ?, email = ?, password_hash = ?, role = ?, avatar = ?,
		     github_id = ?, updated_at = ?
		 WHERE id = ?`,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.Avatar,
		nullGitHubID(user.GitHubID),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if conflict := uniqueViolation(err, "users"); conflict != nil {
			return conflict
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	return requireAffected(result, "User")
}

func (u *UserDB) SetPresence(ctx context.Context, id string, online bool, at time.Time) error {
	result, err := u.conn.ExecContext(ctx,
		`UPDATE users SET is_online = ?, last_seen = ? WHERE id = ?`,
		online, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting presence of user %s: %w", id, err)
	}
	return requireAffected(result, "User")
}

func (u *UserDB) Delete(ctx context.Context, id string) error {
	result, err := u.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	return requireAffected(result, "User")
}

func (u *UserDB) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := u.conn.ExecContext(ctx,
		`DELETE FROM users WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting users: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

func (u *UserDB) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := u.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting users: %w", err)
	}
	return n, nil
}

func (u *UserDB) CountSeenSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := u.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE last_seen >= ?`, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting active users: %w", err)
	}
	return n, nil
}

// requireAffected turns "zero rows changed" into NotFound.
func requireAffected(result sql.Result, resource string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource)
	}
	return nil
}
