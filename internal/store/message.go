package store

import (
	"context"
	"fmt"
	"time"
)

const (
	StateSent = "SENT"
	StateSeen = "SEEN"
)

// InsertMessage stores m in SENT state and fills in its id. A zero CreatedAt is
// set to now.
func (db *DB) InsertMessage(ctx context.Context, m *Message) error {
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}
	if m.Type == "" {
		m.Type = "TEXT"
	}
	m.State = StateSent
	res, err := db.ExecContext(ctx, `
		INSERT INTO messages (chat_id, sender_id, receiver_id, content, type, state, media, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ChatID, m.SenderID, m.ReceiverID, m.Content, m.Type, m.State, m.Media, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return nil
}

// ListMessages returns the messages of a chat, oldest first.
func (db *DB) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, receiver_id, content, type, state, media, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at, id`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Type, &m.State, &m.Media, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkChatSeen moves every message of the chat to SEEN, whoever sent it, and
// returns how many changed.
func (db *DB) MarkChatSeen(ctx context.Context, chatID string) (int64, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE messages SET state = ? WHERE chat_id = ? AND state != ?`, StateSeen, chatID, StateSeen)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	return res.RowsAffected()
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
