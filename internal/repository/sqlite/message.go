package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/roboanalyzer-hub/internal/apperror"
	"github.com/sakif/roboanalyzer-hub/internal/model"
	"github.com/sakif/roboanalyzer-hub/internal/repository"
)

var _ repository.MessageRepository = (*MessageDB)(nil)

// MessageDB stores community board posts.
type MessageDB struct {
	conn *sql.DB
}

const messageColumns = `id, user_id, username, content, room, type, edited, edited_at,
	created_at, updated_at`

func scanMessage(row rowScanner) (*model.Message, error) {
	var (
		m        model.Message
		editedAt sql.NullTime
	)
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.Username,
		&m.Content,
		&m.Room,
		&m.Type,
		&m.Edited,
		&editedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if editedAt.Valid {
		t := editedAt.Time
		m.EditedAt = &t
	}
	return &m, nil
}

func (m *MessageDB) Create(ctx context.Context, msg *model.Message) error {
	if msg.Room == "" {
		msg.Room = model.DefaultRoom
	}
	if msg.Type == "" {
		msg.Type = model.MessageText
	}

	ts := now()
	msg.ID = xid.New().String()
	msg.CreatedAt = ts
	msg.UpdatedAt = ts

	_, err := m.conn.ExecContext(ctx,
		`INSERT INTO community_messages (`+messageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.UserID,
		msg.Username,
		msg.Content,
		msg.Room,
		msg.Type,
		msg.Edited,
		editedAtArg(msg),
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating message: %w", err)
	}
	return nil
}

func editedAtArg(msg *model.Message) sql.NullTime {
	if msg.EditedAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: msg.EditedAt.UTC(), Valid: true}
}

func (m *MessageDB) GetByID(ctx context.Context, id string) (*model.Message, error) {
	msg, err := scanMessage(m.conn.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM community_messages WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Message")
		}
		return nil, fmt.Errorf("sqlite: getting message %s: %w", id, err)
	}
	return msg, nil
}

func (m *MessageDB) Update(ctx context.Context, msg *model.Message) error {
	msg.UpdatedAt = now()

	result, err := m.conn.ExecContext(ctx,
		`UPDATE community_messages
		 SET content = ?, edited = ?, edited_at = ?, updated_at = ?
		 WHERE id = ?`,
		msg.Content,
		msg.Edited,
		editedAtArg(msg),
		msg.UpdatedAt,
		msg.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating message %s: %w", msg.ID, err)
	}
	return requireAffected(result, "Message")
}

func (m *MessageDB) Delete(ctx context.Context, id string) error {
	result, err := m.conn.ExecContext(ctx, `DELETE FROM community_messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting message %s: %w", id, err)
	}
	return requireAffected(result, "Message")
}

// ListByRoom returns one page of a room, newest first. rowid breaks ties
// between messages posted within the same clock tick.
func (m *MessageDB) ListByRoom(ctx context.Context, room string, opts repository.ListOptions) ([]model.Message, error) {
	rows, err := m.conn.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM community_messages
		 WHERE room = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ? OFFSET ?`,
		room, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages: %w", err)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning message row: %w", err)
		}
		msgs = append(msgs, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating message rows: %w", err)
	}
	return msgs, nil
}

func (m *MessageDB) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := m.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM community_messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting messages: %w", err)
	}
	return n, nil
}
