// Package refresh runs cancellable periodic loops.
package refresh

import (
	"context"
	"sync"
	"time"
)

// Handle controls a running loop.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start calls onTick every interval until the handle is stopped or ctx ends.
// With immediate set the first tick fires right away instead of after one
// interval. Ticks never overlap: a slow tick delays the next one.
func Start(ctx context.Context, interval time.Duration, immediate bool, onTick func(context.Context)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go h.loop(ctx, interval, immediate, onTick)
	return h
}

func (h *Handle) loop(ctx context.Context, interval time.Duration, immediate bool, onTick func(context.Context)) {
	defer close(h.done)

	if immediate {
		if ctx.Err() != nil {
			return
		}
		onTick(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Stop may have raced with the ticker.
			if ctx.Err() != nil {
				return
			}
			onTick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the loop. No tick starts after Stop returns; a tick already
// running sees its context canceled. Safe to call more than once and from
// inside onTick.
func (h *Handle) Stop() {
	h.once.Do(h.cancel)
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the loop has exited or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
