package store

import (
	"context"
	"fmt"
)

// Stats counts the rows of every cache table.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := db.GetContext(ctx, &s, `
		SELECT
			(SELECT COUNT(*) FROM chats) AS chats,
			(SELECT COUNT(*) FROM chat_details) AS chat_details,
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM seen_messages) AS seen`)
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return s, nil
}

// Wipe removes every cached row, the seen ledger and the stored credentials
// in one transaction.
func (db *DB) Wipe(ctx context.Context) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"chats", "chat_details", "users", "seen_messages", "credentials"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
