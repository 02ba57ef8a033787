package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertUser inserts or updates a user. Empty names and email keep the stored value.
func (db *DB) UpsertUser(ctx context.Context, u *User) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, first_name, last_name, email, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = CASE WHEN excluded.first_name != '' THEN excluded.first_name ELSE users.first_name END,
			last_name = CASE WHEN excluded.last_name != '' THEN excluded.last_name ELSE users.last_name END,
			email = CASE WHEN excluded.email != '' THEN excluded.email ELSE users.email END`,
		u.ID, u.FirstName, u.LastName, u.Email, u.LastSeen, now)
	if err != nil {
		return fmt.Errorf("upsert user %q: %w", u.ID, err)
	}
	return nil
}

// BulkUpsertUsers upserts users in a single transaction.
func (db *DB) BulkUpsertUsers(ctx context.Context, users []User) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, u := range users {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, first_name, last_name, email, last_seen, created_at)
			VALUES (?, ?, ?, ?, 0, ?)
			ON CONFLICT(id) DO UPDATE SET
				first_name = excluded.first_name,
				last_name = excluded.last_name,
				email = excluded.email`,
			u.ID, u.FirstName, u.LastName, u.Email, now); err != nil {
			return fmt.Errorf("upsert user %q: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

// GetUser returns a user by id, or nil when there is none.
func (db *DB) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email, last_seen FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsersExcept returns every user but id, ordered by name.
func (db *DB) ListUsersExcept(ctx context.Context, id string) ([]User, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, first_name, last_name, email, last_seen
		FROM users
		WHERE id != ?
		ORDER BY first_name, last_name, id`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.LastSeen); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// TouchUser records activity of a user at the given unix millis.
func (db *DB) TouchUser(ctx context.Context, id string, at int64) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET last_seen = ? WHERE id = ? AND last_seen < ?`, at, id, at)
	return err
}

// UserCount returns the total number of users.
func (db *DB) UserCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
