package cache

import (
	"context"
	"slices"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
)

// ChatListCache holds the last known chat list, keyed by chat id.
type ChatListCache struct {
	kc *KeyedCache[string, model.ChatSummary]
}

// NewChatList creates a chat list cache over the given backend (may be nil).
func NewChatList(backend Backend[string, model.ChatSummary], opts ...Option) *ChatListCache {
	return &ChatListCache{kc: NewKeyed(backend, opts...)}
}

// Load hydrates the cache from its backend.
func (c *ChatListCache) Load(ctx context.Context) error {
	return c.kc.Load(ctx)
}

// Replace swaps the cached list for chats. An empty list is ignored so a
// transient empty response does not erase the offline copy.
func (c *ChatListCache) Replace(ctx context.Context, chats []model.ChatSummary) error {
	if len(chats) == 0 {
		return nil
	}
	return c.kc.ReplaceAll(ctx, chats, func(s model.ChatSummary) string { return s.ID })
}

// Put inserts or overwrites a single chat.
func (c *ChatListCache) Put(ctx context.Context, chat model.ChatSummary) error {
	return c.kc.Put(ctx, chat.ID, chat)
}

// Get returns the cached chat with the given id.
func (c *ChatListCache) Get(id string) (model.ChatSummary, bool) {
	return c.kc.Get(id)
}

// All returns the cached chats in the order they were stored.
func (c *ChatListCache) All() []model.ChatSummary {
	return c.kc.All()
}

// Count returns the number of cached chats.
func (c *ChatListCache) Count() int {
	return c.kc.Len()
}

// IsFresh reports whether the list is non-empty and every chat in it was
// written no more than maxAge ago.
func (c *ChatListCache) IsFresh(maxAge time.Duration) bool {
	entries := c.kc.Entries()
	if len(entries) == 0 {
		return false
	}
	now := c.kc.now()
	for _, e := range entries {
		if e.Stale(now, maxAge) {
			return false
		}
	}
	return true
}

// SortedByRecency returns the chats newest first. Chats with no timestamp
// sort last; ties keep their stored order.
func (c *ChatListCache) SortedByRecency() []model.ChatSummary {
	chats := c.kc.All()
	SortByRecency(chats)
	return chats
}

// SortByRecency sorts chats in place, newest first, with the same rules as
// SortedByRecency.
func SortByRecency(chats []model.ChatSummary) {
	slices.SortStableFunc(chats, func(a, b model.ChatSummary) int {
		return b.Recency().Compare(a.Recency())
	})
}

// FindByCounterpart returns the chat held with the given user, if cached.
func (c *ChatListCache) FindByCounterpart(userID string) (model.ChatSummary, bool) {
	for _, chat := range c.kc.All() {
		if chat.CounterpartUserID == userID {
			return chat, true
		}
	}
	return model.ChatSummary{}, false
}

// Clear drops every cached chat.
func (c *ChatListCache) Clear(ctx context.Context) error {
	return c.kc.Clear(ctx)
}
