package store

import (
	"context"
	"fmt"
	"time"
)

// LoadSeen returns the persisted chat id to last seen message id ledger.
func (db *DB) LoadSeen(ctx context.Context) (map[string]string, error) {
	var rows []seenRow
	if err := db.SelectContext(ctx, &rows, `SELECT chat_id, message_id, updated_at FROM seen_messages`); err != nil {
		return nil, fmt.Errorf("load seen: %w", err)
	}
	seen := make(map[string]string, len(rows))
	for _, r := range rows {
		seen[r.ChatID] = r.MessageID
	}
	return seen, nil
}

// RecordSeen upserts the last seen message id for a chat.
func (db *DB) RecordSeen(ctx context.Context, chatID, messageID string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO seen_messages (chat_id, message_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			message_id = excluded.message_id,
			updated_at = excluded.updated_at`,
		chatID, messageID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record seen %q: %w", chatID, err)
	}
	return nil
}

// ClearSeen forgets the ledger entry of one chat.
func (db *DB) ClearSeen(ctx context.Context, chatID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM seen_messages WHERE chat_id = ?`, chatID)
	return err
}

// ClearAllSeen empties the ledger.
func (db *DB) ClearAllSeen(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `DELETE FROM seen_messages`)
	return err
}
