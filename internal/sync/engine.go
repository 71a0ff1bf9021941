package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/refresh"
	"github.com/matheus3301/chatsync/internal/seen"
	"go.uber.org/zap"
)

// DefaultPollInterval is the chat list polling period.
const DefaultPollInterval = 30 * time.Second

// PollResult summarizes one poll.
type PollResult struct {
	Chats     int
	FromCache bool
	Notified  []string
	Skipped   bool
}

// Engine polls the chat list in the background, publishing notifications
// for chats with new messages from other users.
type Engine struct {
	coord    *Coordinator
	differ   *seen.Differ
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration

	mu     gosync.Mutex
	parent context.Context
	handle *refresh.Handle
	paused bool
}

// NewEngine creates a new poller. interval <= 0 means DefaultPollInterval.
func NewEngine(coord *Coordinator, differ *seen.Differ, b *bus.Bus, interval time.Duration, logger *zap.Logger) *Engine {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		coord:    coord,
		differ:   differ,
		bus:      b,
		logger:   logger,
		interval: interval,
	}
}

// Start begins polling, first tick immediately.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.parent = ctx
	e.paused = false
	e.startLocked()
}

// Stop ends polling and waits for a running poll to return. Safe to call
// more than once; must not be called from inside a poll.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.parent = nil
}

// Pause stops the loop while nobody is watching; no timer stays pending and
// a running poll has returned when Pause does.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.parent == nil || e.paused {
		return
	}
	e.paused = true
	e.stopLocked()
	e.logger.Debug("poller paused")
}

// Resume recreates the loop after Pause, polling right away.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.parent == nil || !e.paused {
		return
	}
	e.paused = false
	e.startLocked()
	e.logger.Debug("poller resumed")
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle != nil
}

func (e *Engine) startLocked() {
	e.stopLocked()
	e.handle = refresh.Start(e.parent, e.interval, true, func(ctx context.Context) {
		if _, err := e.PollOnce(ctx); err != nil && ctx.Err() == nil {
			e.logger.Warn("chat list poll failed", zap.Error(err))
		}
	})
}

func (e *Engine) stopLocked() {
	if e.handle != nil {
		e.handle.Stop()
		<-e.handle.Done()
		e.handle = nil
	}
}

// PollOnce fetches the chat list once. Fresh lists are diffed against the
// seen ledger; cached ones are not, since they carry nothing new. A tick
// without a session does nothing, and one whose ctx ends before the list
// arrives publishes nothing.
func (e *Engine) PollOnce(ctx context.Context) (PollResult, error) {
	creds, ok := e.coord.Session().Current()
	if !ok {
		return PollResult{Skipped: true}, nil
	}
	res, err := e.coord.FetchChatList(ctx, creds.Token)
	if err != nil {
		return PollResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return PollResult{}, err
	}
	out := PollResult{Chats: len(res.Data), FromCache: res.FromCache}
	if !res.FromCache {
		diff := e.differ.Diff(ctx, res.Data, creds.UserID)
		if len(diff.Notify) > 0 {
			out.Notified = chatIDs(diff.Notify)
			e.bus.Publish(bus.Event{
				Kind:    bus.KindNewMessages,
				Payload: bus.NewMessages{Count: len(diff.Notify), Chats: out.Notified},
			})
			e.logger.Info("new messages", zap.Int("chats", len(diff.Notify)))
		}
	}
	e.bus.Publish(bus.Event{
		Kind:    bus.KindChatsChanged,
		Payload: bus.ChatsChanged{Count: out.Chats, FromCache: out.FromCache},
	})
	return out, nil
}

func chatIDs(chats []model.ChatSummary) []string {
	ids := make([]string, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	return ids
}
