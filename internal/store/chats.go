package store

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/model"
)

const chatColumns = `id, position, counterpart_user_id, counterpart_username, counterpart_avatar_url,
	last_message_preview, last_message_time, last_message_id, last_message_sender_id,
	created_at, updated_at, cached_at`

// ChatBackend persists the chat list cache.
type ChatBackend struct {
	db *DB
}

// Chats returns the chat list backend.
func (db *DB) Chats() *ChatBackend { return &ChatBackend{db: db} }

var _ cache.Backend[string, model.ChatSummary] = (*ChatBackend)(nil)

// Load returns the persisted chats in list order.
func (b *ChatBackend) Load(ctx context.Context) ([]cache.Entry[string, model.ChatSummary], error) {
	var rows []chatRow
	if err := b.db.SelectContext(ctx, &rows, `SELECT `+chatColumns+` FROM chats ORDER BY position`); err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	entries := make([]cache.Entry[string, model.ChatSummary], 0, len(rows))
	for _, r := range rows {
		entries = append(entries, cache.Entry[string, model.ChatSummary]{
			Key: r.ID, Value: r.summary(), CachedAt: fromMillis(r.CachedAt),
		})
	}
	return entries, nil
}

// Put inserts or updates one chat. A new chat goes to the end of the list;
// an existing one keeps its position.
func (b *ChatBackend) Put(ctx context.Context, e cache.Entry[string, model.ChatSummary]) error {
	_, err := b.db.NamedExecContext(ctx, `
		INSERT INTO chats (`+chatColumns+`)
		VALUES (:id, (SELECT COALESCE(MAX(position), -1) + 1 FROM chats), :counterpart_user_id,
			:counterpart_username, :counterpart_avatar_url, :last_message_preview, :last_message_time,
			:last_message_id, :last_message_sender_id, :created_at, :updated_at, :cached_at)
		ON CONFLICT(id) DO UPDATE SET
			counterpart_user_id = excluded.counterpart_user_id,
			counterpart_username = excluded.counterpart_username,
			counterpart_avatar_url = excluded.counterpart_avatar_url,
			last_message_preview = excluded.last_message_preview,
			last_message_time = excluded.last_message_time,
			last_message_id = excluded.last_message_id,
			last_message_sender_id = excluded.last_message_sender_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			cached_at = excluded.cached_at`,
		newChatRow(e.Value, 0, toMillis(e.CachedAt)))
	if err != nil {
		return fmt.Errorf("put chat %q: %w", e.Key, err)
	}
	return nil
}

// ReplaceAll swaps the whole chat list in a single transaction.
func (b *ChatBackend) ReplaceAll(ctx context.Context, entries []cache.Entry[string, model.ChatSummary]) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chats`); err != nil {
		return fmt.Errorf("clear chats: %w", err)
	}
	for i, e := range entries {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT OR REPLACE INTO chats (`+chatColumns+`)
			VALUES (:id, :position, :counterpart_user_id, :counterpart_username, :counterpart_avatar_url,
				:last_message_preview, :last_message_time, :last_message_id, :last_message_sender_id,
				:created_at, :updated_at, :cached_at)`,
			newChatRow(e.Value, int64(i), toMillis(e.CachedAt))); err != nil {
			return fmt.Errorf("insert chat %q: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

// Delete removes one chat.
func (b *ChatBackend) Delete(ctx context.Context, id string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	return err
}

// Clear removes every chat.
func (b *ChatBackend) Clear(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM chats`)
	return err
}
