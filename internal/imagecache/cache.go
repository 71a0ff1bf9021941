// Package imagecache keeps downloaded avatars and attachments on disk.
// A file's modification time is its age clock.
package imagecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTTL is how long a cached image is served without revalidation.
const DefaultTTL = 7 * 24 * time.Hour

// ErrInvalidKey is returned for keys that are empty or would escape the
// cache directory.
var ErrInvalidKey = errors.New("invalid image cache key")

// KeyForUsername derives the cache key of a user's avatar.
func KeyForUsername(username string) string {
	name := strings.ToLower(strings.TrimSpace(username))
	name = strings.NewReplacer("/", "", "\\", "", "..", "").Replace(name)
	return "profile_" + name + ".jpg"
}

// Cache is a directory of image files keyed by file name.
type Cache struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source used to stamp and age files.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates the cache directory if needed.
func New(dir string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create image cache dir: %w", err)
	}
	c := &Cache{dir: dir, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".tmp-") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(c.dir, key), nil
}

// Get returns the cached bytes regardless of age.
func (c *Cache) Get(key string) ([]byte, bool) {
	p, err := c.path(key)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Exists reports whether key is cached, fresh or not.
func (c *Cache) Exists(key string) bool {
	p, err := c.path(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Age returns how long ago key was written.
func (c *Cache) Age(key string) (time.Duration, bool) {
	p, err := c.path(key)
	if err != nil {
		return 0, false
	}
	info, err := os.Stat(p)
	if err != nil {
		return 0, false
	}
	return c.now().Sub(info.ModTime()), true
}

// IsValid reports whether key exists and is younger than ttl.
func (c *Cache) IsValid(key string, ttl time.Duration) bool {
	age, ok := c.Age(key)
	return ok && age < ttl
}

// Save writes data under key through a temp file and rename, so readers
// never see a partial image.
func (c *Cache) Save(key string, data []byte) error {
	p, err := c.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp image: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write image %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close image %q: %w", key, err)
	}
	now := c.now()
	if err := os.Chtimes(tmpPath, now, now); err != nil {
		return fmt.Errorf("stamp image %q: %w", key, err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		return fmt.Errorf("rename image %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(key string) error {
	p, err := c.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete image %q: %w", key, err)
	}
	return nil
}

// ClearAll removes every cached image and returns how many were deleted.
func (c *Cache) ClearAll() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("read image cache dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			return n, fmt.Errorf("delete image %q: %w", e.Name(), err)
		}
		n++
	}
	c.logger.Info("image cache cleared", zap.Int("files", n))
	return n, nil
}

// Size returns the total size in bytes of the cached images.
func (c *Cache) Size() (int64, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("read image cache dir: %w", err)
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// FetchFunc downloads the bytes of an image.
type FetchFunc func(ctx context.Context) ([]byte, error)

// LoadWithFallback serves key from the cache while it is fresh. Otherwise it
// fetches, replacing the cached copy on success. When the fetch fails an
// expired copy is returned instead; the fetch error is only returned when
// nothing is cached at all.
func (c *Cache) LoadWithFallback(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) ([]byte, error) {
	if c.IsValid(key, ttl) {
		if data, ok := c.Get(key); ok {
			return data, nil
		}
	}

	data, fetchErr := fetch(ctx)
	if fetchErr == nil {
		if err := c.Delete(key); err != nil {
			c.logger.Warn("drop old image failed", zap.String("key", key), zap.Error(err))
		}
		if err := c.Save(key, data); err != nil {
			c.logger.Warn("cache image failed", zap.String("key", key), zap.Error(err))
		}
		return data, nil
	}

	if stale, ok := c.Get(key); ok {
		c.logger.Debug("serving stale image", zap.String("key", key), zap.Error(fetchErr))
		return stale, nil
	}
	return nil, fetchErr
}
