package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("db: not found")

// UserRow is a row of the users table.
type UserRow struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    int64
}

// InsertUser stores a new user. A duplicate email is reported by the driver.
func (d *DB) InsertUser(ctx context.Context, u UserRow) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored hash for a user.
func (d *DB) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	_, err := d.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, userID)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}

// GetUserByEmail looks a user up by (case-folded) email.
func (d *DB) GetUserByEmail(ctx context.Context, email string) (UserRow, error) {
	return d.scanUser(d.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ? COLLATE NOCASE`, email))
}

// GetUserByID looks a user up by id.
func (d *DB) GetUserByID(ctx context.Context, id string) (UserRow, error) {
	return d.scanUser(d.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id))
}

func (d *DB) scanUser(row *sql.Row) (UserRow, error) {
	var u UserRow
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserRow{}, ErrNotFound
		}
		return UserRow{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// InsertSession stores the SHA3-256 digest of sessionID.
func (d *DB) InsertSession(ctx context.Context, sessionID, userID string, expiresAt, createdAt int64) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO sessions (session_hash, user_id, expires_at, created_at) VALUES (session_digest(?), ?, ?, ?)`,
		sessionID, userID, expiresAt, createdAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionUserID returns the owner of an unexpired session.
func (d *DB) GetSessionUserID(ctx context.Context, sessionID string, now int64) (string, error) {
	var userID string
	err := d.db.QueryRowContext(ctx,
		`SELECT user_id FROM sessions WHERE session_hash = session_digest(?) AND expires_at > ?`,
		sessionID, now).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get session: %w", err)
	}
	return userID, nil
}

// DeleteSession removes one session.
func (d *DB) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_hash = session_digest(?)`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired at or before now.
func (d *DB) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
