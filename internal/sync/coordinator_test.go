package sync

import (
	"context"
	"errors"
	"slices"
	gosync "sync"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/imagecache"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/transport"
)

var (
	t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	chatA = model.ChatSummary{ID: "a", CounterpartUserID: "u2", CounterpartUsername: "bob", LastMessageID: "m1", LastMessageSenderID: "u2", LastMessageTime: t0}
	chatB = model.ChatSummary{ID: "b", CounterpartUserID: "u3", CounterpartUsername: "carol", LastMessageID: "m5", LastMessageSenderID: "u3", LastMessageTime: t0.Add(time.Hour)}
)

func TestFetchChatListWritesThrough(t *testing.T) {
	r := &fakeRemote{chats: func() ([]model.ChatSummary, error) {
		return []model.ChatSummary{chatA, chatB}, nil
	}}
	f := newFixture(t, r, transport.Static(true))

	res, err := f.coord.FetchChatList(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}
	if res.FromCache {
		t.Error("FromCache = true for a network answer")
	}
	if got := chatIDs(res.Data); !slices.Equal(got, []string{"b", "a"}) {
		t.Errorf("order = %v, want newest first [b a]", got)
	}
	if f.chats.Count() != 2 {
		t.Errorf("cache holds %d chats, want 2", f.chats.Count())
	}
	snap := f.coord.Status().For(status.ChatList).Snapshot()
	if snap.State != status.Succeeded || snap.FromCache {
		t.Errorf("status = %+v, want succeeded from network", snap)
	}
}

func TestFetchChatListFallsBackOnNetworkError(t *testing.T) {
	fail := false
	r := &fakeRemote{chats: func() ([]model.ChatSummary, error) {
		if fail {
			return nil, netErr()
		}
		return []model.ChatSummary{chatA, chatB}, nil
	}}
	f := newFixture(t, r, transport.Static(true))
	ctx := context.Background()

	if _, err := f.coord.FetchChatList(ctx, "tok"); err != nil {
		t.Fatal(err)
	}
	fail = true

	// Repeated fallbacks serve the same data and leave the cache alone.
	for i := range 3 {
		res, err := f.coord.FetchChatList(ctx, "tok")
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if !res.FromCache {
			t.Errorf("attempt %d: FromCache = false", i)
		}
		if got := chatIDs(res.Data); !slices.Equal(got, []string{"b", "a"}) {
			t.Errorf("attempt %d: chats = %v", i, got)
		}
	}
	if f.chats.Count() != 2 {
		t.Errorf("cache holds %d chats after fallbacks, want 2", f.chats.Count())
	}
	if snap := f.coord.Status().For(status.ChatList).Snapshot(); !snap.FromCache {
		t.Errorf("status = %+v, want from cache", snap)
	}
}

func TestFetchChatListHTTPErrorFallsBack(t *testing.T) {
	r := &fakeRemote{chats: func() ([]model.ChatSummary, error) {
		return nil, &transport.HTTPError{Status: 503}
	}}
	f := newFixture(t, r, transport.Static(true))
	if err := f.chats.Replace(context.Background(), []model.ChatSummary{chatA}); err != nil {
		t.Fatal(err)
	}

	res, err := f.coord.FetchChatList(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}
	if !res.FromCache || len(res.Data) != 1 {
		t.Errorf("result = %+v, want one cached chat", res)
	}
}

func TestFetchChatListNoDataWithoutCache(t *testing.T) {
	r := &fakeRemote{chats: func() ([]model.ChatSummary, error) { return nil, netErr() }}
	f := newFixture(t, r, transport.Static(true))

	_, err := f.coord.FetchChatList(context.Background(), "tok")
	var nd *NoDataError
	if !errors.As(err, &nd) {
		t.Fatalf("err = %v, want NoDataError", err)
	}
	var ne *transport.NetworkError
	if !errors.As(err, &ne) {
		t.Errorf("NoDataError should wrap the network failure, got %v", nd.Err)
	}
	if snap := f.coord.Status().For(status.ChatList).Snapshot(); snap.State != status.Failed {
		t.Errorf("state = %s, want failed", snap.State)
	}
}

func TestOfflineSkipsNetwork(t *testing.T) {
	r := &fakeRemote{chats: func() ([]model.ChatSummary, error) {
		return []model.ChatSummary{chatA}, nil
	}}
	f := newFixture(t, r, transport.Static(false))

	_, err := f.coord.FetchChatList(context.Background(), "tok")
	var nd *NoDataError
	if !errors.As(err, &nd) {
		t.Fatalf("err = %v, want NoDataError", err)
	}
	if nd.Err != nil {
		t.Errorf("offline NoDataError.Err = %v, want nil", nd.Err)
	}
	if !IsNoData(err) {
		t.Error("IsNoData = false")
	}
	if n := r.count("ListChats"); n != 0 {
		t.Errorf("remote called %d times while offline", n)
	}

	if err := f.chats.Replace(context.Background(), []model.ChatSummary{chatA}); err != nil {
		t.Fatal(err)
	}
	res, err := f.coord.FetchChatList(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}
	if !res.FromCache {
		t.Error("offline read should come from cache")
	}
}

func TestDecodeErrorIsHardFailure(t *testing.T) {
	r := &fakeRemote{chats: func() ([]model.ChatSummary, error) {
		return nil, &transport.DecodeError{Err: errors.New("unexpected token")}
	}}
	f := newFixture(t, r, transport.Static(true))
	if err := f.chats.Replace(context.Background(), []model.ChatSummary{chatA}); err != nil {
		t.Fatal(err)
	}

	_, err := f.coord.FetchChatList(context.Background(), "tok")
	var de *transport.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DecodeError", err)
	}
	if IsNoData(err) {
		t.Error("decode failure must not be reported as missing data")
	}
}

func TestFetchChatDetailRecordsSeen(t *testing.T) {
	r := &fakeRemote{chat: func(id string) (model.ChatDetail, error) {
		return model.ChatDetail{ID: id, Messages: []model.Message{{ID: "m1"}, {ID: "m2"}}}, nil
	}}
	f := newFixture(t, r, transport.Static(true))
	events, unsub := f.bus.Subscribe(bus.KindChatUpdated, 4)
	defer unsub()

	res, err := f.coord.FetchChatDetail(context.Background(), "tok", "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Data.Messages) != 2 {
		t.Fatalf("got %d messages", len(res.Data.Messages))
	}
	if last, _ := f.seen.LastSeen("a"); last != "m2" {
		t.Errorf("last seen = %q, want m2", last)
	}
	if _, ok := f.details.Get("a"); !ok {
		t.Error("detail not cached")
	}

	select {
	case evt := <-events:
		p, ok := evt.Payload.(bus.ChatUpdated)
		if !ok || p.ChatID != "a" || p.Messages != 2 || p.FromCache {
			t.Errorf("payload = %+v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for chat update event")
	}
}

func TestFetchChatDetailOutOfOrderCompletion(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var mu gosync.Mutex
	call := 0
	r := &fakeRemote{chat: func(id string) (model.ChatDetail, error) {
		mu.Lock()
		call++
		n := call
		mu.Unlock()
		if n == 1 {
			close(started)
			<-release
			return model.ChatDetail{ID: id, Messages: []model.Message{{ID: "old"}}}, nil
		}
		return model.ChatDetail{ID: id, Messages: []model.Message{{ID: "old"}, {ID: "new"}}}, nil
	}}
	f := newFixture(t, r, transport.Static(true))
	ctx := context.Background()

	type outcome struct {
		res Result[model.ChatDetail]
		err error
	}
	slow := make(chan outcome, 1)
	go func() {
		res, err := f.coord.FetchChatDetail(ctx, "tok", "a")
		slow <- outcome{res, err}
	}()
	<-started

	fast, err := f.coord.FetchChatDetail(ctx, "tok", "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(fast.Data.Messages) != 2 {
		t.Fatalf("fast fetch got %d messages", len(fast.Data.Messages))
	}
	close(release)

	var late outcome
	select {
	case late = <-slow:
	case <-time.After(time.Second):
		t.Fatal("slow fetch never returned")
	}
	if late.err != nil {
		t.Fatal(late.err)
	}
	if len(late.res.Data.Messages) != 2 {
		t.Errorf("stale completion returned %d messages, want the newer 2", len(late.res.Data.Messages))
	}
	cached, _ := f.details.Get("a")
	if len(cached.Messages) != 2 {
		t.Errorf("cache holds %d messages, stale completion overwrote it", len(cached.Messages))
	}
}

func TestSearchUsers(t *testing.T) {
	fail := false
	r := &fakeRemote{users: func() ([]model.UserSummary, error) {
		if fail {
			return nil, netErr()
		}
		return []model.UserSummary{{UserID: "u2", Username: "Bob"}, {UserID: "u3", Username: "carol"}}, nil
	}}
	f := newFixture(t, r, transport.Static(true))
	ctx := context.Background()

	res, err := f.coord.SearchUsers(ctx, "tok", "BO")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Data) != 1 || res.Data[0].UserID != "u2" {
		t.Errorf("search = %+v, want bob", res.Data)
	}

	fail = true
	res, err = f.coord.SearchUsers(ctx, "tok", "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.FromCache || len(res.Data) != 2 {
		t.Errorf("fallback = %+v, want 2 cached users", res)
	}
}

func TestSendMessageNeverFallsBack(t *testing.T) {
	r := &fakeRemote{send: func(string, string) (model.SendResult, error) { return model.SendResult{}, netErr() }}
	f := newFixture(t, r, transport.Static(true))

	_, err := f.coord.SendMessage(context.Background(), "tok", "a", "hi", nil)
	var ne *transport.NetworkError
	if !errors.As(err, &ne) {
		t.Errorf("err = %v, want wrapped NetworkError", err)
	}
}

func TestOpenChatFor(t *testing.T) {
	f := newFixture(t, &fakeRemote{}, transport.Static(true))
	if err := f.chats.Replace(context.Background(), []model.ChatSummary{chatA, chatB}); err != nil {
		t.Fatal(err)
	}
	if c, ok := f.coord.OpenChatFor("u3"); !ok || c.ID != "b" {
		t.Errorf("OpenChatFor(u3) = %+v, %v", c, ok)
	}
	if _, ok := f.coord.OpenChatFor("u9"); ok {
		t.Error("OpenChatFor(u9) found a chat")
	}
}

func TestLoginUsesProfile(t *testing.T) {
	r := &fakeRemote{
		login:   func(string) (remote.LoginResult, error) { return remote.LoginResult{Token: "T"}, nil },
		profile: func(string) (remote.Profile, error) { return remote.Profile{UserID: "u1", Username: "alice"}, nil },
	}
	f := newFixture(t, r, transport.Static(true))
	events, unsub := f.bus.Subscribe(bus.KindSessionChanged, 4)
	defer unsub()

	creds, err := f.coord.Login(context.Background(), "alice@example.com", "pw", true)
	if err != nil {
		t.Fatal(err)
	}
	if creds.UserID != "u1" || creds.Username != "alice" || creds.Token != "T" {
		t.Errorf("creds = %+v", creds)
	}
	stored, err := f.db.LoadCredentials(context.Background())
	if err != nil || stored == nil || stored.Token != "T" {
		t.Errorf("remembered credentials = %+v, %v", stored, err)
	}
	select {
	case evt := <-events:
		if p := evt.Payload.(bus.SessionChanged); !p.LoggedIn || p.Username != "alice" {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no session event")
	}
}

func TestLoginProfileFailureKeepsSession(t *testing.T) {
	r := &fakeRemote{
		login: func(string) (remote.LoginResult, error) { return remote.LoginResult{Token: "T"}, nil },
	}
	f := newFixture(t, r, transport.Static(true))

	creds, err := f.coord.Login(context.Background(), "alice@example.com", "pw", false)
	if err != nil {
		t.Fatal(err)
	}
	if creds.Username != "alice@example.com" || creds.UserID != "" {
		t.Errorf("creds = %+v", creds)
	}
	if !f.keeper.HasSession() {
		t.Error("session not installed")
	}
}

func TestLogoutClearsEverythingEvenWhenServerFails(t *testing.T) {
	r := &fakeRemote{logout: func(string) error { return netErr() }}
	f := newFixture(t, r, transport.Static(true))
	ctx := context.Background()
	f.login(t, "u1")

	if err := f.chats.Replace(ctx, []model.ChatSummary{chatA}); err != nil {
		t.Fatal(err)
	}
	if err := f.details.Put(ctx, model.ChatDetail{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := f.users.Replace(ctx, []model.UserSummary{{UserID: "u2"}}); err != nil {
		t.Fatal(err)
	}
	if err := f.seen.RecordSeen(ctx, "a", "m1"); err != nil {
		t.Fatal(err)
	}

	if err := f.coord.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if r.count("Logout") != 1 {
		t.Error("server logout not attempted")
	}
	if f.chats.Count() != 0 || f.details.Count() != 0 || f.users.Count() != 0 {
		t.Errorf("caches not cleared: %d chats, %d details, %d users", f.chats.Count(), f.details.Count(), f.users.Count())
	}
	if _, ok := f.seen.LastSeen("a"); ok {
		t.Error("seen ledger not cleared")
	}
	if f.keeper.HasSession() {
		t.Error("session survived logout")
	}
	st, err := f.db.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Chats+st.ChatDetails+st.Users+st.Seen != 0 {
		t.Errorf("store not cleared: %+v", st)
	}
}

func TestValidateSessionInvalidClearsLocal(t *testing.T) {
	r := &fakeRemote{valid: func(string) (bool, error) { return false, nil }}
	f := newFixture(t, r, transport.Static(true))
	f.login(t, "u1")

	valid, err := f.coord.ValidateSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if valid || f.keeper.HasSession() {
		t.Errorf("valid = %v, session = %v; want both false", valid, f.keeper.HasSession())
	}
}

func TestStartAutoRefreshMarksInitialTick(t *testing.T) {
	f := newFixture(t, &fakeRemote{}, transport.Static(true))
	ticks := make(chan Refresh, 8)
	h := f.coord.StartAutoRefresh(context.Background(), 10*time.Millisecond, func(_ context.Context, r Refresh) {
		ticks <- r
	})
	defer h.Stop()

	for i := range 2 {
		select {
		case r := <-ticks:
			if r.Initial != (i == 0) {
				t.Errorf("tick %d Initial = %v", i, r.Initial)
			}
		case <-time.After(time.Second):
			t.Fatalf("tick %d never came", i)
		}
	}
}

func TestClearTargets(t *testing.T) {
	f := newFixture(t, &fakeRemote{}, transport.Static(true))
	ctx := context.Background()
	if err := f.chats.Replace(ctx, []model.ChatSummary{chatA}); err != nil {
		t.Fatal(err)
	}
	if err := f.users.Replace(ctx, []model.UserSummary{{UserID: "u2"}}); err != nil {
		t.Fatal(err)
	}

	target, err := ParseCacheTarget(" Users ")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.coord.Clear(ctx, target); err != nil {
		t.Fatal(err)
	}
	s, err := f.coord.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if s.Users != 0 || s.Chats != 1 {
		t.Errorf("stats = %+v, want users cleared and chats kept", s)
	}

	if _, err := ParseCacheTarget("bogus"); err == nil {
		t.Error("ParseCacheTarget accepted bogus")
	}
	if got, _ := ParseCacheTarget(""); got != ClearAll {
		t.Errorf("empty target = %q, want all", got)
	}
}

func TestUnreadListsChatsAheadOfLedger(t *testing.T) {
	f := newFixture(t, &fakeRemote{}, transport.Static(true))
	ctx := context.Background()
	if err := f.chats.Replace(ctx, []model.ChatSummary{chatA, chatB, {ID: "c", LastMessageID: "m9"}}); err != nil {
		t.Fatal(err)
	}
	_ = f.seen.RecordSeen(ctx, "a", "m0")
	_ = f.seen.RecordSeen(ctx, "b", "m5")

	if got := f.coord.Unread(); !slices.Equal(got, []string{"a"}) {
		t.Errorf("Unread = %v, want [a]", got)
	}
}

type staticDownloader []byte

func (d staticDownloader) Download(context.Context, string) ([]byte, error) {
	if d == nil {
		return nil, netErr()
	}
	return d, nil
}

func TestLoadAvatarFallsBackToStaleImage(t *testing.T) {
	c, err := imagecache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	newCoord := func(dl imagecache.Downloader) *Coordinator {
		return NewCoordinator(Deps{
			Remote:   &fakeRemote{},
			Images:   imagecache.NewLoader(c, dl, 1, nil),
			ImageTTL: time.Nanosecond,
		})
	}
	ctx := context.Background()
	key := imagecache.KeyForUsername("Bob")

	data, err := newCoord(staticDownloader("png")).LoadAvatar(ctx, "avatars/bob", key)
	if err != nil || string(data) != "png" {
		t.Fatalf("LoadAvatar = %q, %v", data, err)
	}
	data, err = newCoord(staticDownloader(nil)).LoadAvatar(ctx, "avatars/bob", key)
	if err != nil || string(data) != "png" {
		t.Errorf("LoadAvatar with a failing download = %q, %v; want the stale copy", data, err)
	}
	if _, err := newCoord(staticDownloader("png")).LoadAvatar(ctx, "avatars/bob", ""); !errors.Is(err, imagecache.ErrInvalidKey) {
		t.Errorf("empty key err = %v, want ErrInvalidKey", err)
	}
}
