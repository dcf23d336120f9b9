package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tattoostudio/internal/domain"
	"tattoostudio/internal/models"
)

// SaveSession stores a session token. A ttl of zero keeps the session
// until it is deleted.
func (db *DB) SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl).UTC()
		expiresAt = &t
	}

	query := `INSERT OR REPLACE INTO sessions (token, user_id, email, user_created_at, expires_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, query,
		session.Token, session.User.ID, session.User.Email, session.User.CreatedAt, expiresAt,
	); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (db *DB) GetSession(ctx context.Context, token string) (*models.Session, error) {
	var (
		s         models.Session
		expiresAt sql.NullTime
	)
	query := `SELECT token, user_id, email, user_created_at, expires_at FROM sessions WHERE token = ?`
	err := db.QueryRowContext(ctx, query, token).Scan(&s.Token, &s.User.ID, &s.User.Email, &s.User.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if expiresAt.Valid {
		s.ExpiresAt = expiresAt.Time
		if time.Now().After(expiresAt.Time) {
			_ = db.DeleteSession(ctx, token)
			return nil, domain.ErrNotFound
		}
	}
	return &s, nil
}

func (db *DB) DeleteSession(ctx context.Context, token string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions removes sessions past their expiry and returns how many were removed.
func (db *DB) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.RowsAffected()
}
