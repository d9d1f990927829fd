package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/roboanalyzer-hub/internal/apperror"
	"github.com/sakif/roboanalyzer-hub/internal/model"
	"github.com/sakif/roboanalyzer-hub/internal/repository"
)

var _ repository.ChatRepository = (*ChatDB)(nil)

// ChatDB stores AI conversations. The turns of a conversation are kept as a
// JSON array in the messages column.
type ChatDB struct {
	conn *sql.DB
}

const chatColumns = `id, user_id, title, messages, is_active, model, created_at, updated_at`

func scanChat(row rowScanner) (*model.ChatHistory, error) {
	var (
		c   model.ChatHistory
		raw string
	)
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Title,
		&raw,
		&c.IsActive,
		&c.Model,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &c.Messages); err != nil {
		return nil, fmt.Errorf("decoding messages of chat %s: %w", c.ID, err)
	}
	if c.Messages == nil {
		c.Messages = []model.ChatMessage{}
	}
	return &c, nil
}

func (c *ChatDB) Create(ctx context.Context, chat *model.ChatHistory) error {
	if chat.Messages == nil {
		chat.Messages = []model.ChatMessage{}
	}
	raw, err := json.Marshal(chat.Messages)
	if err != nil {
		return fmt.Errorf("sqlite: encoding chat messages: %w", err)
	}

	ts := now()
	chat.ID = xid.New().String()
	chat.IsActive = true
	chat.CreatedAt = ts
	chat.UpdatedAt = ts

	_, err = c.conn.ExecContext(ctx,
		`INSERT INTO chat_histories (`+chatColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		chat.ID,
		chat.UserID,
		chat.Title,
		string(raw),
		chat.IsActive,
		chat.Model,
		chat.CreatedAt,
		chat.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating chat: %w", err)
	}
	return nil
}

func (c *ChatDB) GetActive(ctx context.Context, id, userID string) (*model.ChatHistory, error) {
	return getActiveChat(ctx, c.conn, id, userID)
}

// queryRower lets getActiveChat run on either the pool or a transaction.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getActiveChat(ctx context.Context, q queryRower, id, userID string) (*model.ChatHistory, error) {
	chat, err := scanChat(q.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chat_histories
		 WHERE id = ? AND user_id = ? AND is_active = 1`,
		id, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Chat")
		}
		return nil, fmt.Errorf("sqlite: getting chat %s: %w", id, err)
	}
	return chat, nil
}

// AppendMessages reads, extends and rewrites the messages column inside one
// transaction so concurrent appends to the same chat cannot lose turns.
func (c *ChatDB) AppendMessages(ctx context.Context, id, userID string, msgs []model.ChatMessage) (*model.ChatHistory, error) {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	chat, err := getActiveChat(ctx, tx, id, userID)
	if err != nil {
		return nil, err
	}

	chat.Messages = append(chat.Messages, msgs...)
	chat.UpdatedAt = now()

	raw, err := json.Marshal(chat.Messages)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encoding chat messages: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE chat_histories SET messages = ?, updated_at = ? WHERE id = ?`,
		string(raw), chat.UpdatedAt, chat.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: appending to chat %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing chat %s: %w", id, err)
	}
	return chat, nil
}

func (c *ChatDB) ListActive(ctx context.Context, userID string, limit int) ([]model.ChatHistory, error) {
	rows, err := c.conn.QueryContext(ctx,
		`SELECT `+chatColumns+` FROM chat_histories
		 WHERE user_id = ? AND is_active = 1
		 ORDER BY updated_at DESC, rowid DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing chats: %w", err)
	}
	defer rows.Close()

	chats := []model.ChatHistory{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning chat row: %w", err)
		}
		chats = append(chats, *chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating chat rows: %w", err)
	}
	return chats, nil
}

func (c *ChatDB) Deactivate(ctx context.Context, id, userID string) error {
	result, err := c.conn.ExecContext(ctx,
		`UPDATE chat_histories SET is_active = 0, updated_at = ?
		 WHERE id = ? AND user_id = ? AND is_active = 1`,
		now(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deactivating chat %s: %w", id, err)
	}
	return requireAffected(result, "Chat")
}

func (c *ChatDB) DeleteByUsers(ctx context.Context, userIDs []string) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	result, err := c.conn.ExecContext(ctx,
		`DELETE FROM chat_histories WHERE user_id IN (`+placeholders(len(userIDs))+`)`,
		stringArgs(userIDs)...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting chats: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

// Activity counts the user's active chats, the turns inside them, and how
// many of them were updated at or after since.
func (c *ChatDB) Activity(ctx context.Context, userID string, since time.Time) (model.ChatActivity, error) {
	var a model.ChatActivity
	err := c.conn.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(json_array_length(messages)), 0),
		        COALESCE(SUM(CASE WHEN updated_at >= ? THEN 1 ELSE 0 END), 0)
		 FROM chat_histories
		 WHERE user_id = ? AND is_active = 1`,
		since.UTC(), userID,
	).Scan(&a.Chats, &a.Messages, &a.RecentlyActive)
	if err != nil {
		return model.ChatActivity{}, fmt.Errorf("sqlite: aggregating chat activity: %w", err)
	}
	return a, nil
}
