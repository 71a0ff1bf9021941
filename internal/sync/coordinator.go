// Package sync serves chat data network-first with a cache fallback and runs
// the background chat list poller.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/imagecache"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/refresh"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/seen"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/zap"
)

// Remote is the chat service API.
type Remote interface {
	ListChats(ctx context.Context, token string) ([]model.ChatSummary, error)
	GetChat(ctx context.Context, token, chatID string) (model.ChatDetail, error)
	ListUsers(ctx context.Context, token string) ([]model.UserSummary, error)
	SendMessage(ctx context.Context, token, chatID, content string, att *model.Attachment) (model.SendResult, error)
	CreateChat(ctx context.Context, token, userID, content string) (model.SendResult, error)
	Login(ctx context.Context, email, password string, remember bool) (remote.LoginResult, error)
	Profile(ctx context.Context, token string) (remote.Profile, error)
	Logout(ctx context.Context, token string) error
	ValidateSession(ctx context.Context, token string) (bool, error)
}

// Deps are the collaborators of a Coordinator. Conn defaults to always
// online and Logger to a no-op logger.
type Deps struct {
	Remote   Remote
	Conn     transport.Connectivity
	Chats    *cache.ChatListCache
	Details  *cache.ChatDetailCache
	Users    *cache.UserDirectoryCache
	Seen     *seen.Tracker
	Session  *session.Keeper
	Images   *imagecache.Loader
	Status   *status.Registry
	Bus      *bus.Bus
	Logger   *zap.Logger
	TTLs     TTLs          // zero fields take DefaultTTLs
	ImageTTL time.Duration // zero means imagecache.DefaultTTL
}

// TTLs bound how old cached data may be and still count as fresh.
type TTLs struct {
	ChatList   time.Duration
	ChatDetail time.Duration
	Users      time.Duration
}

// DefaultTTLs are used for any TTL left at zero.
var DefaultTTLs = TTLs{
	ChatList:   5 * time.Minute,
	ChatDetail: 5 * time.Minute,
	Users:      time.Hour,
}

// Coordinator answers reads from the network when it can and from the
// caches when it cannot. Writes always go to the network.
type Coordinator struct {
	remote  Remote
	conn    transport.Connectivity
	chats   *cache.ChatListCache
	details *cache.ChatDetailCache
	users   *cache.UserDirectoryCache
	seen    *seen.Tracker
	session *session.Keeper
	images  *imagecache.Loader
	status  *status.Registry
	bus     *bus.Bus
	logger  *zap.Logger
	ttls    TTLs
	imgTTL  time.Duration

	// Chat detail fetches are numbered per chat; a completion older than the
	// last one applied is not written to the cache.
	seqMu   gosync.Mutex
	issued  map[string]uint64
	applied map[string]uint64
}

// NewCoordinator wires a coordinator from d.
func NewCoordinator(d Deps) *Coordinator {
	if d.Conn == nil {
		d.Conn = transport.Static(true)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Status == nil {
		d.Status = status.NewRegistry(d.Bus)
	}
	if d.Session == nil {
		d.Session = session.NewKeeper(nil)
	}
	if d.TTLs.ChatList <= 0 {
		d.TTLs.ChatList = DefaultTTLs.ChatList
	}
	if d.TTLs.ChatDetail <= 0 {
		d.TTLs.ChatDetail = DefaultTTLs.ChatDetail
	}
	if d.TTLs.Users <= 0 {
		d.TTLs.Users = DefaultTTLs.Users
	}
	return &Coordinator{
		remote:  d.Remote,
		conn:    d.Conn,
		chats:   d.Chats,
		details: d.Details,
		users:   d.Users,
		seen:    d.Seen,
		session: d.Session,
		images:  d.Images,
		status:  d.Status,
		bus:     d.Bus,
		logger:  d.Logger,
		ttls:    d.TTLs,
		imgTTL:  d.ImageTTL,
		issued:  make(map[string]uint64),
		applied: make(map[string]uint64),
	}
}

// Session returns the session keeper.
func (c *Coordinator) Session() *session.Keeper { return c.session }

// Status returns the per-resource fetch state registry.
func (c *Coordinator) Status() *status.Registry { return c.status }

// Online reports the current connectivity.
func (c *Coordinator) Online(ctx context.Context) bool { return c.conn.Available(ctx) }

// Fresh reports whether the cached copy of resource is within its TTL. key
// names the chat for status.ChatDetail and is ignored otherwise.
func (c *Coordinator) Fresh(resource, key string) bool {
	switch resource {
	case status.ChatList:
		return c.chats.IsFresh(c.ttls.ChatList)
	case status.ChatDetail:
		return key != "" && c.details.IsFresh(key, c.ttls.ChatDetail)
	case status.Users:
		return c.users.IsFresh(c.ttls.Users)
	}
	return false
}

// read runs the network-first, cache-fallback algorithm shared by every
// resource.
func read[T any](
	ctx context.Context,
	c *Coordinator,
	resource, key string,
	network func(context.Context) (T, error),
	store func(context.Context, T) (T, error),
	cached func() (T, bool),
) (Result[T], error) {
	if err := ctx.Err(); err != nil {
		var zero Result[T]
		return zero, err
	}
	m := c.status.For(resource)
	m.Begin()
	log := c.logger.With(zap.String("resource", resource), zap.String("key", key), zap.String("req", uuid.NewString()))

	var netErr error
	if c.conn.Available(ctx) {
		data, err := network(ctx)
		if err == nil {
			data, err = store(ctx, data)
			if err != nil {
				log.Warn("cache write failed", zap.Error(err))
			}
			m.Succeed(false)
			return Result[T]{Data: data}, nil
		}
		if !canFallBack(err) {
			log.Error("fetch failed", zap.Error(err))
			m.Fail(err)
			var zero Result[T]
			return zero, err
		}
		log.Info("fetch failed, trying cache", zap.Error(err))
		netErr = err
	} else {
		log.Debug("offline, reading cache")
	}

	// A caller that gave up gets no answer, cached or not.
	if err := ctx.Err(); err != nil {
		m.Abandon()
		var zero Result[T]
		return zero, err
	}
	if data, ok := cached(); ok {
		m.Succeed(true)
		return Result[T]{Data: data, FromCache: true}, nil
	}
	nd := &NoDataError{Resource: resource, Key: key, Err: netErr}
	m.Fail(nd)
	var zero Result[T]
	return zero, nd
}

// FetchChatList returns the chat list newest first.
func (c *Coordinator) FetchChatList(ctx context.Context, token string) (Result[[]model.ChatSummary], error) {
	return read(ctx, c, status.ChatList, "",
		func(ctx context.Context) ([]model.ChatSummary, error) {
			return c.remote.ListChats(ctx, token)
		},
		func(ctx context.Context, chats []model.ChatSummary) ([]model.ChatSummary, error) {
			err := c.chats.Replace(ctx, chats)
			cache.SortByRecency(chats)
			return chats, err
		},
		func() ([]model.ChatSummary, bool) {
			chats := c.chats.SortedByRecency()
			return chats, len(chats) > 0
		},
	)
}

// FetchChatDetail returns one chat with its messages. Its newest message is
// recorded as seen.
func (c *Coordinator) FetchChatDetail(ctx context.Context, token, chatID string) (Result[model.ChatDetail], error) {
	seq := c.nextSeq(chatID)
	res, err := read(ctx, c, status.ChatDetail, chatID,
		func(ctx context.Context) (model.ChatDetail, error) {
			return c.remote.GetChat(ctx, token, chatID)
		},
		func(ctx context.Context, d model.ChatDetail) (model.ChatDetail, error) {
			return c.applyDetail(ctx, chatID, seq, d)
		},
		func() (model.ChatDetail, bool) {
			return c.details.Get(chatID)
		},
	)
	if err != nil {
		return res, err
	}
	if last, ok := res.Data.LastMessage(); ok && c.seen != nil {
		if err := c.seen.RecordSeen(ctx, chatID, last.ID); err != nil {
			c.logger.Warn("record seen failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}
	c.publish(bus.KindChatUpdated, bus.ChatUpdated{ChatID: chatID, Messages: len(res.Data.Messages), FromCache: res.FromCache})
	return res, nil
}

func (c *Coordinator) nextSeq(chatID string) uint64 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	c.issued[chatID]++
	return c.issued[chatID]
}

// applyDetail writes d unless a newer fetch of the same chat already landed,
// in which case the cached newer detail is returned instead.
func (c *Coordinator) applyDetail(ctx context.Context, chatID string, seq uint64, d model.ChatDetail) (model.ChatDetail, error) {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	if seq < c.applied[chatID] {
		c.logger.Debug("dropping out-of-order chat detail", zap.String("chat_id", chatID), zap.Uint64("seq", seq), zap.Uint64("applied", c.applied[chatID]))
		if newer, ok := c.details.Get(chatID); ok {
			return newer, nil
		}
		return d, nil
	}
	c.applied[chatID] = seq
	return d, c.details.Put(ctx, d)
}

// SearchUsers returns the directory filtered by a case-insensitive username
// substring; a blank query returns everyone.
func (c *Coordinator) SearchUsers(ctx context.Context, token, query string) (Result[[]model.UserSummary], error) {
	res, err := read(ctx, c, status.Users, "",
		func(ctx context.Context) ([]model.UserSummary, error) {
			return c.remote.ListUsers(ctx, token)
		},
		func(ctx context.Context, users []model.UserSummary) ([]model.UserSummary, error) {
			return users, c.users.Replace(ctx, users)
		},
		func() ([]model.UserSummary, bool) {
			users := c.users.All()
			return users, len(users) > 0
		},
	)
	if err != nil {
		return res, err
	}
	res.Data = cache.FilterUsers(res.Data, query)
	return res, nil
}

// SendMessage posts a message. Writes never fall back to the cache.
func (c *Coordinator) SendMessage(ctx context.Context, token, chatID, content string, att *model.Attachment) (model.SendResult, error) {
	res, err := c.remote.SendMessage(ctx, token, chatID, content, att)
	if err != nil {
		return model.SendResult{}, fmt.Errorf("send message: %w", err)
	}
	return res, nil
}

// CreateChat starts a conversation with userID.
func (c *Coordinator) CreateChat(ctx context.Context, token, userID, content string) (model.SendResult, error) {
	res, err := c.remote.CreateChat(ctx, token, userID, content)
	if err != nil {
		return model.SendResult{}, fmt.Errorf("create chat: %w", err)
	}
	return res, nil
}

// OpenChatFor finds the cached chat held with userID, so callers can tell
// opening an existing chat from starting a new one.
func (c *Coordinator) OpenChatFor(userID string) (model.ChatSummary, bool) {
	return c.chats.FindByCounterpart(userID)
}

// LoadAvatar returns the image at url, cached under key.
func (c *Coordinator) LoadAvatar(ctx context.Context, url, key string) ([]byte, error) {
	if c.images == nil {
		return nil, errors.New("image loader not configured")
	}
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", imagecache.ErrInvalidKey)
	}
	select {
	case r := <-c.images.LoadAsync(ctx, imagecache.Request{Key: key, URL: url, TTL: c.imgTTL}):
		return r.Data, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unread returns, sorted, the cached chats whose newest message is not yet
// recorded as seen. Chats never observed are not counted.
func (c *Coordinator) Unread() []string {
	if c.seen == nil {
		return nil
	}
	latest := make(map[string]string)
	for _, chat := range c.chats.All() {
		latest[chat.ID] = chat.LastMessageID
	}
	return c.seen.ChatsWithNew(latest)
}

// Login authenticates and installs the session. The profile supplies the
// local user id; without it self-sent messages cannot be told apart, so a
// profile failure is logged but does not fail the login.
func (c *Coordinator) Login(ctx context.Context, email, password string, remember bool) (model.Credentials, error) {
	lr, err := c.remote.Login(ctx, email, password, remember)
	if err != nil {
		return model.Credentials{}, fmt.Errorf("login: %w", err)
	}
	creds := model.Credentials{
		Token:     lr.Token,
		ExpiresAt: lr.ExpiresAt,
		Username:  email,
		Remember:  remember,
	}
	if p, err := c.remote.Profile(ctx, lr.Token); err != nil {
		c.logger.Warn("profile fetch failed", zap.Error(err))
	} else {
		creds.UserID = p.UserID
		if p.Username != "" {
			creds.Username = p.Username
		}
	}
	if err := c.session.Set(ctx, creds); err != nil {
		return model.Credentials{}, fmt.Errorf("store session: %w", err)
	}
	c.logger.Info("logged in", zap.String("username", creds.Username), zap.Bool("remember", remember))
	c.publish(bus.KindSessionChanged, bus.SessionChanged{LoggedIn: true, Username: creds.Username})
	if cur, ok := c.session.Current(); ok {
		return cur, nil
	}
	return creds, nil
}

// ValidateSession asks the server whether the current token is still valid.
// An invalid token ends the session locally.
func (c *Coordinator) ValidateSession(ctx context.Context) (bool, error) {
	token, err := c.session.Token()
	if err != nil {
		return false, err
	}
	valid, err := c.remote.ValidateSession(ctx, token)
	if err != nil {
		return false, fmt.Errorf("validate session: %w", err)
	}
	if !valid {
		if err := c.clearLocal(ctx); err != nil {
			return false, err
		}
	}
	return valid, nil
}

// Logout invalidates the token on the server when possible, then clears
// every cache, the seen ledger and finally the token itself. The local
// clear happens whatever the server said. Image files are kept.
func (c *Coordinator) Logout(ctx context.Context) error {
	if token, err := c.session.Token(); err == nil {
		if err := c.remote.Logout(ctx, token); err != nil {
			c.logger.Warn("server logout failed, clearing locally", zap.Error(err))
		}
	}
	if err := c.clearLocal(ctx); err != nil {
		return err
	}
	c.logger.Info("logged out")
	return nil
}

func (c *Coordinator) clearLocal(ctx context.Context) error {
	var errs []error
	if err := c.chats.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear chats: %w", err))
	}
	if err := c.details.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear chat details: %w", err))
	}
	if err := c.users.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear users: %w", err))
	}
	if c.seen != nil {
		if err := c.seen.ClearAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clear seen: %w", err))
		}
	}
	c.seqMu.Lock()
	clear(c.issued)
	clear(c.applied)
	c.seqMu.Unlock()
	c.status.ResetAll()
	if err := c.session.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear session: %w", err))
	}
	c.publish(bus.KindSessionChanged, bus.SessionChanged{LoggedIn: false})
	return errors.Join(errs...)
}

// Refresh is passed to auto-refresh ticks.
type Refresh struct {
	// Initial is set on the first tick only.
	Initial bool
}

// StartAutoRefresh calls onTick right away and then every interval until
// the handle is stopped.
func (c *Coordinator) StartAutoRefresh(ctx context.Context, interval time.Duration, onTick func(context.Context, Refresh)) *refresh.Handle {
	var ticks atomic.Int64
	return refresh.Start(ctx, interval, true, func(ctx context.Context) {
		onTick(ctx, Refresh{Initial: ticks.Add(1) == 1})
	})
}

// CacheTarget names what Clear removes.
type CacheTarget string

const (
	ClearAll         CacheTarget = "all"
	ClearChats       CacheTarget = "chats"
	ClearChatDetails CacheTarget = "chat_details"
	ClearUsers       CacheTarget = "users"
	ClearImages      CacheTarget = "images"
)

// ParseCacheTarget maps a user supplied name to a CacheTarget.
func ParseCacheTarget(s string) (CacheTarget, error) {
	t := CacheTarget(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case "":
		return ClearAll, nil
	case ClearAll, ClearChats, ClearChatDetails, ClearUsers, ClearImages:
		return t, nil
	}
	return "", fmt.Errorf("unknown cache target %q", s)
}

// Clear empties the named caches. ClearAll covers the data caches and the
// image files but leaves the session and seen ledger alone.
func (c *Coordinator) Clear(ctx context.Context, target CacheTarget) error {
	var errs []error
	if target == ClearAll || target == ClearChats {
		errs = append(errs, c.chats.Clear(ctx))
	}
	if target == ClearAll || target == ClearChatDetails {
		errs = append(errs, c.details.Clear(ctx))
	}
	if target == ClearAll || target == ClearUsers {
		errs = append(errs, c.users.Clear(ctx))
	}
	if (target == ClearAll || target == ClearImages) && c.images != nil {
		_, err := c.images.Cache().ClearAll()
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CacheStats counts what the caches hold.
type CacheStats struct {
	Chats       int   `json:"chats"`
	ChatDetails int   `json:"chat_details"`
	Users       int   `json:"users"`
	Seen        int   `json:"seen"`
	ImageBytes  int64 `json:"image_bytes"`
}

// Stats reports the cache sizes.
func (c *Coordinator) Stats() (CacheStats, error) {
	s := CacheStats{
		Chats:       c.chats.Count(),
		ChatDetails: c.details.Count(),
		Users:       c.users.Count(),
	}
	if c.seen != nil {
		s.Seen = len(c.seen.Snapshot())
	}
	if c.images != nil {
		n, err := c.images.Cache().Size()
		if err != nil {
			return s, err
		}
		s.ImageBytes = n
	}
	return s, nil
}

func (c *Coordinator) publish(kind string, payload any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{Kind: kind, Payload: payload})
}
