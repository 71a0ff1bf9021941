package store

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/model"
)

// UserBackend persists the user directory cache.
type UserBackend struct {
	db *DB
}

// Users returns the user directory backend.
func (db *DB) Users() *UserBackend { return &UserBackend{db: db} }

var _ cache.Backend[string, model.UserSummary] = (*UserBackend)(nil)

func (b *UserBackend) Load(ctx context.Context) ([]cache.Entry[string, model.UserSummary], error) {
	var rows []userRow
	if err := b.db.SelectContext(ctx, &rows, `SELECT user_id, position, username, avatar_url, cached_at FROM users ORDER BY position`); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	entries := make([]cache.Entry[string, model.UserSummary], 0, len(rows))
	for _, r := range rows {
		entries = append(entries, cache.Entry[string, model.UserSummary]{
			Key:      r.UserID,
			Value:    model.UserSummary{UserID: r.UserID, Username: r.Username, AvatarURL: r.AvatarURL},
			CachedAt: fromMillis(r.CachedAt),
		})
	}
	return entries, nil
}

func (b *UserBackend) Put(ctx context.Context, e cache.Entry[string, model.UserSummary]) error {
	_, err := b.db.NamedExecContext(ctx, `
		INSERT INTO users (user_id, position, username, avatar_url, cached_at)
		VALUES (:user_id, (SELECT COALESCE(MAX(position), -1) + 1 FROM users), :username, :avatar_url, :cached_at)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			avatar_url = excluded.avatar_url,
			cached_at = excluded.cached_at`,
		userRow{UserID: e.Key, Username: e.Value.Username, AvatarURL: e.Value.AvatarURL, CachedAt: toMillis(e.CachedAt)})
	if err != nil {
		return fmt.Errorf("put user %q: %w", e.Key, err)
	}
	return nil
}

func (b *UserBackend) ReplaceAll(ctx context.Context, entries []cache.Entry[string, model.UserSummary]) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	for i, e := range entries {
		row := userRow{UserID: e.Key, Position: int64(i), Username: e.Value.Username, AvatarURL: e.Value.AvatarURL, CachedAt: toMillis(e.CachedAt)}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT OR REPLACE INTO users (user_id, position, username, avatar_url, cached_at)
			VALUES (:user_id, :position, :username, :avatar_url, :cached_at)`, row); err != nil {
			return fmt.Errorf("insert user %q: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

func (b *UserBackend) Delete(ctx context.Context, userID string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID)
	return err
}

func (b *UserBackend) Clear(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM users`)
	return err
}
