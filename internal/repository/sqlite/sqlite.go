// Package sqlite implements the repository interfaces on an embedded SQLite
// database.
//
// It backs local development (STORE_DRIVER=sqlite) and the handler tests.
// The document shape of the Mongo store is kept: a chat's messages live in
// one JSON column instead of a child table, so appending a turn is a single
// row rewrite just like a $push.
//
// We use modernc.org/sqlite, a pure Go translation of SQLite, so the binary
// builds without cgo.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/roboanalyzer-hub/internal/apperror"
	"github.com/sakif/roboanalyzer-hub/internal/repository"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and hands out the per-collection
// repositories.
type DB struct {
	conn     *sql.DB
	users    *UserDB
	chats    *ChatDB
	messages *MessageDB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/roboanalyzer.db" → file-based database
//   - ":memory:"             → in-memory database, used by tests
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database, so the
	// pool must never grow past one connection.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	db.users = &UserDB{conn: conn}
	db.chats = &ChatDB{conn: conn}
	db.messages = &MessageDB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Users() repository.UserRepository       { return db.users }
func (db *DB) Chats() repository.ChatRepository       { return db.chats }
func (db *DB) Messages() repository.MessageRepository { return db.messages }

func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Close closes the connection pool. The context is accepted to satisfy
// repository.Store; closing SQLite never blocks on the network.
func (db *DB) Close(_ context.Context) error {
	return db.conn.Close()
}

// migrate creates the tables. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			role          TEXT NOT NULL DEFAULT 'user',
			avatar        TEXT NOT NULL DEFAULT '',
			github_id     INTEGER UNIQUE,
			is_online     INTEGER NOT NULL DEFAULT 0,
			last_seen     DATETIME NOT NULL,
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at);
		CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// No foreign key on user_id: deleting a user never cascades implicitly,
	// the services decide what to remove.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS chat_histories (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			title      TEXT NOT NULL,
			messages   TEXT NOT NULL DEFAULT '[]',
			is_active  INTEGER NOT NULL DEFAULT 1,
			model      TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chats_user_created ON chat_histories(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_chats_user_active ON chat_histories(user_id, is_active);
	`)
	if err != nil {
		return fmt.Errorf("creating chat_histories table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS community_messages (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			username   TEXT NOT NULL,
			content    TEXT NOT NULL,
			room       TEXT NOT NULL DEFAULT 'general',
			type       TEXT NOT NULL DEFAULT 'text',
			edited     INTEGER NOT NULL DEFAULT 0,
			edited_at  DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_room_created ON community_messages(room, created_at);
		CREATE INDEX IF NOT EXISTS idx_messages_user ON community_messages(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating community_messages table: %w", err)
	}

	return nil
}

// now returns the current time in UTC. Every timestamp is stored in UTC so
// that the text form SQLite keeps compares correctly.
func now() time.Time {
	return time.Now().UTC()
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// uniqueViolation translates a UNIQUE constraint failure on table.column
// into apperror.Conflict, or returns nil when err is something else.
func uniqueViolation(err error, table string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}
	for _, field := range []string{"email", "username", "github_id"} {
		if strings.Contains(msg, table+"."+field) {
			return apperror.Conflict(field, fmt.Sprintf("%s already exists", field))
		}
	}
	return apperror.Conflict("", "record already exists")
}
