// Package seen keeps the per-chat "last seen message" ledger that decides
// whether a polled chat carries a new message worth notifying about.
package seen

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Ledger persists the seen map.
type Ledger interface {
	LoadSeen(ctx context.Context) (map[string]string, error)
	RecordSeen(ctx context.Context, chatID, messageID string) error
	ClearSeen(ctx context.Context, chatID string) error
	ClearAllSeen(ctx context.Context) error
}

// Tracker maps chat id to the last message id the user is presumed to have
// seen. Entries are only overwritten, never aged out.
type Tracker struct {
	mu     sync.RWMutex
	seen   map[string]string
	ledger Ledger
}

// NewTracker creates an empty tracker. ledger may be nil.
func NewTracker(ledger Ledger) *Tracker {
	return &Tracker{
		seen:   make(map[string]string),
		ledger: ledger,
	}
}

// Load replaces the in-memory ledger with the persisted one.
func (t *Tracker) Load(ctx context.Context) error {
	if t.ledger == nil {
		return nil
	}
	m, err := t.ledger.LoadSeen(ctx)
	if err != nil {
		return fmt.Errorf("load seen ledger: %w", err)
	}
	if m == nil {
		m = make(map[string]string)
	}
	t.mu.Lock()
	t.seen = m
	t.mu.Unlock()
	return nil
}

// LastSeen returns the recorded message id for chatID.
func (t *Tracker) LastSeen(chatID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.seen[chatID]
	return id, ok
}

// RecordSeen stores messageID as the last seen message of chatID.
func (t *Tracker) RecordSeen(ctx context.Context, chatID, messageID string) error {
	t.mu.Lock()
	t.seen[chatID] = messageID
	t.mu.Unlock()

	if t.ledger == nil {
		return nil
	}
	if err := t.ledger.RecordSeen(ctx, chatID, messageID); err != nil {
		return fmt.Errorf("record seen %q: %w", chatID, err)
	}
	return nil
}

// HasNewMessage reports whether current differs from the recorded id. A chat
// with no record yet is never new, so the first sync does not notify.
func (t *Tracker) HasNewMessage(chatID, current string) bool {
	last, ok := t.LastSeen(chatID)
	if !ok {
		return false
	}
	return current != last
}

// ChatsWithNew returns, sorted, the chat ids in latest (chat id to newest
// message id) that carry a new message.
func (t *Tracker) ChatsWithNew(latest map[string]string) []string {
	var out []string
	for chatID, msgID := range latest {
		if msgID != "" && t.HasNewMessage(chatID, msgID) {
			out = append(out, chatID)
		}
	}
	slices.Sort(out)
	return out
}

// Snapshot returns a copy of the ledger.
func (t *Tracker) Snapshot() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.seen))
	for k, v := range t.seen {
		out[k] = v
	}
	return out
}

// Clear forgets chatID, so its next observation is a baseline again.
func (t *Tracker) Clear(ctx context.Context, chatID string) error {
	t.mu.Lock()
	delete(t.seen, chatID)
	t.mu.Unlock()

	if t.ledger == nil {
		return nil
	}
	return t.ledger.ClearSeen(ctx, chatID)
}

// ClearAll wipes the ledger. Called on logout.
func (t *Tracker) ClearAll(ctx context.Context) error {
	t.mu.Lock()
	t.seen = make(map[string]string)
	t.mu.Unlock()

	if t.ledger == nil {
		return nil
	}
	return t.ledger.ClearAllSeen(ctx)
}
