package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
)

// SaveCredentials stores the single remembered session, replacing any
// previous one.
func (db *DB) SaveCredentials(ctx context.Context, c model.Credentials) error {
	_, err := db.NamedExecContext(ctx, `
		INSERT INTO credentials (id, token, expires_at, user_id, username, remember, updated_at)
		VALUES (1, :token, :expires_at, :user_id, :username, :remember, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			expires_at = excluded.expires_at,
			user_id = excluded.user_id,
			username = excluded.username,
			remember = excluded.remember,
			updated_at = excluded.updated_at`,
		credentialsRow{
			Token:     c.Token,
			ExpiresAt: toMillis(c.ExpiresAt),
			UserID:    c.UserID,
			Username:  c.Username,
			Remember:  c.Remember,
			UpdatedAt: time.Now().UnixMilli(),
		})
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// LoadCredentials returns the remembered session, or nil when none is stored.
func (db *DB) LoadCredentials(ctx context.Context) (*model.Credentials, error) {
	var r credentialsRow
	err := db.GetContext(ctx, &r, `
		SELECT token, expires_at, user_id, username, remember, updated_at
		FROM credentials WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return &model.Credentials{
		Token:     r.Token,
		ExpiresAt: fromMillis(r.ExpiresAt),
		UserID:    r.UserID,
		Username:  r.Username,
		Remember:  r.Remember,
	}, nil
}

// ClearCredentials deletes the remembered session.
func (db *DB) ClearCredentials(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `DELETE FROM credentials`)
	return err
}
