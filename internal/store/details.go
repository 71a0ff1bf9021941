package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/model"
)

// DetailBackend persists the chat detail cache. Each detail is stored as a
// JSON document since it is only ever read whole.
type DetailBackend struct {
	db *DB
}

// ChatDetails returns the chat detail backend.
func (db *DB) ChatDetails() *DetailBackend { return &DetailBackend{db: db} }

var _ cache.Backend[string, model.ChatDetail] = (*DetailBackend)(nil)

func (b *DetailBackend) Load(ctx context.Context) ([]cache.Entry[string, model.ChatDetail], error) {
	var rows []detailRow
	if err := b.db.SelectContext(ctx, &rows, `SELECT id, position, payload, cached_at FROM chat_details ORDER BY position`); err != nil {
		return nil, fmt.Errorf("load chat details: %w", err)
	}
	entries := make([]cache.Entry[string, model.ChatDetail], 0, len(rows))
	for _, r := range rows {
		var d model.ChatDetail
		if err := json.Unmarshal([]byte(r.Payload), &d); err != nil {
			return nil, fmt.Errorf("decode chat detail %q: %w", r.ID, err)
		}
		entries = append(entries, cache.Entry[string, model.ChatDetail]{Key: r.ID, Value: d, CachedAt: fromMillis(r.CachedAt)})
	}
	return entries, nil
}

func (b *DetailBackend) Put(ctx context.Context, e cache.Entry[string, model.ChatDetail]) error {
	payload, err := json.Marshal(e.Value)
	if err != nil {
		return fmt.Errorf("encode chat detail %q: %w", e.Key, err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO chat_details (id, position, payload, cached_at)
		VALUES (?, (SELECT COALESCE(MAX(position), -1) + 1 FROM chat_details), ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			cached_at = excluded.cached_at`,
		e.Key, string(payload), toMillis(e.CachedAt))
	if err != nil {
		return fmt.Errorf("put chat detail %q: %w", e.Key, err)
	}
	return nil
}

func (b *DetailBackend) ReplaceAll(ctx context.Context, entries []cache.Entry[string, model.ChatDetail]) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_details`); err != nil {
		return fmt.Errorf("clear chat details: %w", err)
	}
	for i, e := range entries {
		payload, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("encode chat detail %q: %w", e.Key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO chat_details (id, position, payload, cached_at) VALUES (?, ?, ?, ?)`,
			e.Key, i, string(payload), toMillis(e.CachedAt)); err != nil {
			return fmt.Errorf("insert chat detail %q: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

func (b *DetailBackend) Delete(ctx context.Context, id string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM chat_details WHERE id = ?`, id)
	return err
}

func (b *DetailBackend) Clear(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM chat_details`)
	return err
}
