package sync

import (
	"context"
	"errors"
	"path/filepath"
	gosync "sync"
	"testing"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/seen"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/transport"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeRemote answers from its fields; nil funcs return errNotStubbed.
type fakeRemote struct {
	mu    gosync.Mutex
	calls map[string]int
	chats func() ([]model.ChatSummary, error)
	// chatsCtx replaces chats when set, for calls that watch their context.
	chatsCtx func(ctx context.Context) ([]model.ChatSummary, error)
	chat     func(id string) (model.ChatDetail, error)
	users    func() ([]model.UserSummary, error)
	send     func(chatID, content string) (model.SendResult, error)
	login    func(email string) (remote.LoginResult, error)
	profile  func(token string) (remote.Profile, error)
	logout   func(token string) error
	valid    func(token string) (bool, error)
}

var errNotStubbed = errors.New("not stubbed")

func (f *fakeRemote) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeRemote) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRemote) ListChats(ctx context.Context, _ string) ([]model.ChatSummary, error) {
	f.hit("ListChats")
	if f.chatsCtx != nil {
		return f.chatsCtx(ctx)
	}
	if f.chats == nil {
		return nil, errNotStubbed
	}
	return f.chats()
}

func (f *fakeRemote) GetChat(_ context.Context, _, id string) (model.ChatDetail, error) {
	f.hit("GetChat")
	if f.chat == nil {
		return model.ChatDetail{}, errNotStubbed
	}
	return f.chat(id)
}

func (f *fakeRemote) ListUsers(context.Context, string) ([]model.UserSummary, error) {
	f.hit("ListUsers")
	if f.users == nil {
		return nil, errNotStubbed
	}
	return f.users()
}

func (f *fakeRemote) SendMessage(_ context.Context, _, chatID, content string, _ *model.Attachment) (model.SendResult, error) {
	f.hit("SendMessage")
	if f.send == nil {
		return model.SendResult{}, errNotStubbed
	}
	return f.send(chatID, content)
}

func (f *fakeRemote) CreateChat(_ context.Context, _, userID, content string) (model.SendResult, error) {
	f.hit("CreateChat")
	return model.SendResult{Success: true, ChatID: "new-" + userID}, nil
}

func (f *fakeRemote) Login(_ context.Context, email, _ string, _ bool) (remote.LoginResult, error) {
	f.hit("Login")
	if f.login == nil {
		return remote.LoginResult{}, errNotStubbed
	}
	return f.login(email)
}

func (f *fakeRemote) Profile(_ context.Context, token string) (remote.Profile, error) {
	f.hit("Profile")
	if f.profile == nil {
		return remote.Profile{}, errNotStubbed
	}
	return f.profile(token)
}

func (f *fakeRemote) Logout(_ context.Context, token string) error {
	f.hit("Logout")
	if f.logout == nil {
		return nil
	}
	return f.logout(token)
}

func (f *fakeRemote) ValidateSession(_ context.Context, token string) (bool, error) {
	f.hit("ValidateSession")
	if f.valid == nil {
		return true, nil
	}
	return f.valid(token)
}

type fixture struct {
	db      *store.DB
	bus     *bus.Bus
	chats   *cache.ChatListCache
	details *cache.ChatDetailCache
	users   *cache.UserDirectoryCache
	seen    *seen.Tracker
	keeper  *session.Keeper
	coord   *Coordinator
}

// newFixture wires a coordinator over store-backed caches.
func newFixture(t *testing.T, r Remote, conn transport.Connectivity) *fixture {
	t.Helper()
	db := testDB(t)
	f := &fixture{
		db:      db,
		bus:     bus.New(),
		chats:   cache.NewChatList(db.Chats()),
		details: cache.NewChatDetail(db.ChatDetails()),
		users:   cache.NewUserDirectory(db.Users()),
		seen:    seen.NewTracker(db),
		keeper:  session.NewKeeper(db),
	}
	f.coord = NewCoordinator(Deps{
		Remote:  r,
		Conn:    conn,
		Chats:   f.chats,
		Details: f.details,
		Users:   f.users,
		Seen:    f.seen,
		Session: f.keeper,
		Bus:     f.bus,
	})
	return f
}

func (f *fixture) login(t *testing.T, userID string) string {
	t.Helper()
	if err := f.keeper.Set(context.Background(), model.Credentials{Token: "tok", UserID: userID, Username: userID}); err != nil {
		t.Fatal(err)
	}
	return "tok"
}

func netErr() error {
	return &transport.NetworkError{Op: "GET", URL: "http://api/", Err: errors.New("connection refused")}
}
