package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AttachmentPreview is the last-message text of chats whose latest message is not text.
const AttachmentPreview = "Attachment"

// FindOrCreateChat returns the chat between a and b in either direction. When there is
// none, newChat is inserted with a as sender and b as recipient. created reports
// whether a chat was inserted.
func (db *DB) FindOrCreateChat(ctx context.Context, newChat Chat) (c *Chat, created bool, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing Chat
	err = tx.QueryRowContext(ctx, `
		SELECT id, sender_id, recipient_id, created_at
		FROM chats
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
		LIMIT 1`,
		newChat.SenderID, newChat.RecipientID, newChat.RecipientID, newChat.SenderID).
		Scan(&existing.ID, &existing.SenderID, &existing.RecipientID, &existing.CreatedAt)
	switch {
	case err == nil:
		return &existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("find chat: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, sender_id, recipient_id, created_at) VALUES (?, ?, ?, ?)`,
		newChat.ID, newChat.SenderID, newChat.RecipientID, newChat.CreatedAt); err != nil {
		return nil, false, fmt.Errorf("insert chat: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return &newChat, true, nil
}

// GetChat returns a chat by id, or nil when there is none.
func (db *DB) GetChat(ctx context.Context, id string) (*Chat, error) {
	var c Chat
	err := db.QueryRowContext(ctx,
		`SELECT id, sender_id, recipient_id, created_at FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.SenderID, &c.RecipientID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChats returns the chats userID takes part in, newest chat first. Name, unread
// count and last message are computed for userID: unread counts the messages
// addressed to userID that are still SENT.
func (db *DB) ListChats(ctx context.Context, userID string) ([]ChatSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.sender_id, c.recipient_id, c.created_at,
			CASE WHEN c.recipient_id = ?1
				THEN TRIM(s.first_name || ' ' || s.last_name)
				ELSE TRIM(r.first_name || ' ' || r.last_name) END AS name,
			(SELECT COUNT(*) FROM messages m
				WHERE m.chat_id = c.id AND m.receiver_id = ?1 AND m.state = 'SENT') AS unread,
			COALESCE((SELECT CASE WHEN m.type != 'TEXT' THEN ?2 ELSE m.content END
				FROM messages m WHERE m.chat_id = c.id
				ORDER BY m.created_at DESC, m.id DESC LIMIT 1), '') AS last_message,
			COALESCE((SELECT m.created_at FROM messages m WHERE m.chat_id = c.id
				ORDER BY m.created_at DESC, m.id DESC LIMIT 1), 0) AS last_message_at,
			CASE WHEN c.recipient_id = ?1 THEN s.last_seen ELSE r.last_seen END AS other_last_seen
		FROM chats c
		JOIN users s ON s.id = c.sender_id
		JOIN users r ON r.id = c.recipient_id
		WHERE c.sender_id = ?1 OR c.recipient_id = ?1
		ORDER BY c.created_at DESC, c.id`, userID, AttachmentPreview)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []ChatSummary
	for rows.Next() {
		var c ChatSummary
		if err := rows.Scan(&c.ID, &c.SenderID, &c.RecipientID, &c.CreatedAt,
			&c.Name, &c.UnreadCount, &c.LastMessage, &c.LastMessageAt, &c.OtherLastSeen); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// ChatCount returns the total number of chats.
func (db *DB) ChatCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}
