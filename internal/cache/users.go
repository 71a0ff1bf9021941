package cache

import (
	"context"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
)

// UserDirectoryCache holds the last fetched user directory, keyed by user id.
type UserDirectoryCache struct {
	kc *KeyedCache[string, model.UserSummary]
}

// NewUserDirectory creates a user directory cache over the given backend (may be nil).
func NewUserDirectory(backend Backend[string, model.UserSummary], opts ...Option) *UserDirectoryCache {
	return &UserDirectoryCache{kc: NewKeyed(backend, opts...)}
}

// Load hydrates the cache from its backend.
func (c *UserDirectoryCache) Load(ctx context.Context) error {
	return c.kc.Load(ctx)
}

// Replace swaps the cached directory for users.
func (c *UserDirectoryCache) Replace(ctx context.Context, users []model.UserSummary) error {
	return c.kc.ReplaceAll(ctx, users, func(u model.UserSummary) string { return u.UserID })
}

// Get returns the cached user with the given id.
func (c *UserDirectoryCache) Get(userID string) (model.UserSummary, bool) {
	return c.kc.Get(userID)
}

// All returns every cached user in insertion order.
func (c *UserDirectoryCache) All() []model.UserSummary {
	return c.kc.All()
}

// Count returns the number of cached users.
func (c *UserDirectoryCache) Count() int {
	return c.kc.Len()
}

// IsFresh reports whether the directory is non-empty and no entry is older than ttl.
func (c *UserDirectoryCache) IsFresh(ttl time.Duration) bool {
	entries := c.kc.Entries()
	if len(entries) == 0 {
		return false
	}
	now := c.kc.now()
	for _, e := range entries {
		if e.Stale(now, ttl) {
			return false
		}
	}
	return true
}

// Filter returns the cached users whose username contains query.
func (c *UserDirectoryCache) Filter(query string) []model.UserSummary {
	return FilterUsers(c.kc.All(), query)
}

// Clear drops every cached user.
func (c *UserDirectoryCache) Clear(ctx context.Context) error {
	return c.kc.Clear(ctx)
}

// FilterUsers keeps the users whose username contains query, ignoring case.
// A blank query keeps everyone. Order is preserved.
func FilterUsers(users []model.UserSummary, query string) []model.UserSummary {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return users
	}
	out := make([]model.UserSummary, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Username), q) {
			out = append(out, u)
		}
	}
	return out
}
