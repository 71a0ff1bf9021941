package imagecache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultWorkers bounds concurrent downloads.
const DefaultWorkers = 3

// Downloader fetches an image by URL or API-relative path.
type Downloader interface {
	Download(ctx context.Context, ref string) ([]byte, error)
}

// Request asks for one image.
type Request struct {
	Key string
	URL string
	// TTL of zero means DefaultTTL.
	TTL time.Duration
}

// LoadResult is delivered once per request.
type LoadResult struct {
	Key  string
	Data []byte
	Err  error
}

// Loader runs cache-backed downloads with bounded parallelism.
type Loader struct {
	cache  *Cache
	dl     Downloader
	sem    chan struct{}
	logger *zap.Logger
}

// NewLoader creates a loader allowing at most workers concurrent downloads.
func NewLoader(cache *Cache, dl Downloader, workers int, logger *zap.Logger) *Loader {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{cache: cache, dl: dl, sem: make(chan struct{}, workers), logger: logger}
}

// Cache returns the underlying cache.
func (l *Loader) Cache() *Cache { return l.cache }

// Load resolves req through the cache, waiting for a download slot when the
// network is needed.
func (l *Loader) Load(ctx context.Context, req Request) ([]byte, error) {
	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return l.cache.LoadWithFallback(ctx, req.Key, ttl, func(ctx context.Context) ([]byte, error) {
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		defer func() { <-l.sem }()
		l.logger.Debug("downloading image", zap.String("key", req.Key), zap.String("url", req.URL))
		return l.dl.Download(ctx, req.URL)
	})
}

// LoadAsync runs Load in the background. The returned channel receives
// exactly one result and is then closed.
func (l *Loader) LoadAsync(ctx context.Context, req Request) <-chan LoadResult {
	out := make(chan LoadResult, 1)
	go func() {
		defer close(out)
		data, err := l.Load(ctx, req)
		out <- LoadResult{Key: req.Key, Data: data, Err: err}
	}()
	return out
}
