package cache

import (
	"context"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
)

// ChatDetailCache holds the last fetched detail of each chat. A put replaces
// the whole detail, messages included.
type ChatDetailCache struct {
	kc *KeyedCache[string, model.ChatDetail]
}

// NewChatDetail creates a chat detail cache over the given backend (may be nil).
func NewChatDetail(backend Backend[string, model.ChatDetail], opts ...Option) *ChatDetailCache {
	return &ChatDetailCache{kc: NewKeyed(backend, opts...)}
}

// Load hydrates the cache from its backend.
func (c *ChatDetailCache) Load(ctx context.Context) error {
	return c.kc.Load(ctx)
}

// Put stores detail under its chat id.
func (c *ChatDetailCache) Put(ctx context.Context, detail model.ChatDetail) error {
	return c.kc.Put(ctx, detail.ID, detail)
}

// Get returns the cached detail for chatID regardless of age.
func (c *ChatDetailCache) Get(chatID string) (model.ChatDetail, bool) {
	return c.kc.Get(chatID)
}

// IsFresh reports whether chatID is cached and no older than ttl.
func (c *ChatDetailCache) IsFresh(chatID string, ttl time.Duration) bool {
	return c.kc.IsFresh(chatID, ttl)
}

// Count returns the number of cached chat details.
func (c *ChatDetailCache) Count() int {
	return c.kc.Len()
}

// Remove drops the cached detail for chatID.
func (c *ChatDetailCache) Remove(ctx context.Context, chatID string) error {
	return c.kc.Remove(ctx, chatID)
}

// Clear drops every cached detail.
func (c *ChatDetailCache) Clear(ctx context.Context) error {
	return c.kc.Clear(ctx)
}
