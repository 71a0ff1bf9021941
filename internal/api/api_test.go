package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/matheus3301/chatsync/internal/session"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"github.com/matheus3301/chatsync/internal/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"jwt":"T"}`)
	})
	mux.HandleFunc("/api/users/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"u1","username":"alice"}`)
	})
	mux.HandleFunc("/api/users/all/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"users":[{"user_id":"u2","username":"bob"},{"user_id":"u3","username":"carol"}]}`)
	})
	mux.HandleFunc("/api/chats/all/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"chats":[{"id":"c1","user":"u2","username":"bob","last_message_id":"m1","last_message_sender_id":"u2"}]}`)
	})
	mux.HandleFunc("/api/chats/id/c1/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"c1","user":"u2","messages":[{"id":"m1","sender_id":"u2","content":"hi"}]}`)
	})
	mux.HandleFunc("/api/chats/messages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	client *rpc.Client
	coord  *intsync.Coordinator
	bus    *bus.Bus
}

func newHarness(t *testing.T, conn transport.Connectivity) *harness {
	t.Helper()
	api := fakeAPI(t)
	b := bus.New()
	coord := intsync.NewCoordinator(intsync.Deps{
		Remote:  remote.New(transport.New(api.URL), time.Second, nil),
		Conn:    conn,
		Chats:   cache.NewChatList(nil),
		Details: cache.NewChatDetail(nil),
		Users:   cache.NewUserDirectory(nil),
		Session: session.NewKeeper(nil),
		Bus:     b,
	})

	dir, err := os.MkdirTemp("/tmp", "chatsync-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socket := filepath.Join(dir, "d.sock")
	lis, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatal(err)
	}
	srv := grpc.NewServer()
	rpc.RegisterSessionServer(srv, NewSessionService("test", coord, nil))
	rpc.RegisterChatServer(srv, NewChatService(coord, 20*time.Millisecond, nil))
	rpc.RegisterUserServer(srv, NewUserService(coord))
	rpc.RegisterMediaServer(srv, NewMediaService(coord))
	rpc.RegisterCacheServer(srv, NewCacheService(coord, nil))
	rpc.RegisterEventServer(srv, NewEventService(b, "test", nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := rpc.Dial(socket)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return &harness{client: c, coord: coord, bus: b}
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestReadsRequireSession(t *testing.T) {
	h := newHarness(t, transport.Static(true))
	_, err := h.client.ListChats(ctxT(t))
	if grpcstatus.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", grpcstatus.Code(err))
	}
}

func TestLoginThenRead(t *testing.T) {
	h := newHarness(t, transport.Static(true))
	ctx := ctxT(t)

	login, err := h.client.Login(ctx, &rpc.LoginRequest{Email: "alice@example.com", Password: "pw"})
	if err != nil {
		t.Fatal(err)
	}
	if login.UserID != "u1" || login.Username != "alice" {
		t.Errorf("login = %+v", login)
	}

	chats, err := h.client.ListChats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats.Chats) != 1 || chats.Chats[0].CounterpartUsername != "bob" || chats.FromCache {
		t.Errorf("chats = %+v", chats)
	}

	found, err := h.client.FindChatByUser(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if !found.Found || found.Chat.ID != "c1" {
		t.Errorf("find = %+v", found)
	}

	users, err := h.client.SearchUsers(ctx, "car")
	if err != nil {
		t.Fatal(err)
	}
	if len(users.Users) != 1 || users.Users[0].UserID != "u3" {
		t.Errorf("users = %+v", users.Users)
	}

	st, err := h.client.GetStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.LoggedIn || st.UserID != "u1" || !st.Online {
		t.Errorf("status = %+v", st)
	}
	var listState string
	for _, r := range st.Resources {
		if r.Resource == "chat_list" {
			listState = r.State
			if !r.Fresh {
				t.Error("chat list should be fresh right after a fetch")
			}
		}
	}
	if listState != "SUCCEEDED" {
		t.Errorf("chat_list state = %q, want SUCCEEDED", listState)
	}

	stats, err := h.client.CacheStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Chats != 1 || stats.Users != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t, transport.Static(true))
	ctx := ctxT(t)
	if _, err := h.client.Login(ctx, &rpc.LoginRequest{Email: "a", Password: "b"}); err != nil {
		t.Fatal(err)
	}

	_, err := h.client.SendMessage(ctx, &rpc.SendMessageRequest{ChatID: "c1", Content: "  "})
	if grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("empty message code = %v", grpcstatus.Code(err))
	}
	res, err := h.client.SendMessage(ctx, &rpc.SendMessageRequest{ChatID: "c1", Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.ChatID != "c1" {
		t.Errorf("send = %+v", res)
	}
}

func TestOfflineWithoutCacheIsNotFound(t *testing.T) {
	h := newHarness(t, transport.Static(false))
	ctx := ctxT(t)
	if _, err := h.client.Login(ctx, &rpc.LoginRequest{Email: "a", Password: "b"}); err != nil {
		t.Fatal(err)
	}
	_, err := h.client.GetChat(ctx, "c1")
	if grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("code = %v, want NotFound", grpcstatus.Code(err))
	}
}

func TestFollowChatStreamsTicks(t *testing.T) {
	h := newHarness(t, transport.Static(true))
	ctx := ctxT(t)
	if _, err := h.client.Login(ctx, &rpc.LoginRequest{Email: "a", Password: "b"}); err != nil {
		t.Fatal(err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := h.client.FollowChat(streamCtx, &rpc.FollowChatRequest{ChatID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	for i := range 2 {
		u, err := stream.Recv()
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if u.Initial != (i == 0) || u.Error != "" || len(u.Chat.Messages) != 1 {
			t.Errorf("tick %d = %+v", i, u)
		}
	}
}

func TestWatchFiltersByPrefix(t *testing.T) {
	h := newHarness(t, transport.Static(true))
	ctx := ctxT(t)

	stream, err := h.client.Watch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Wait for the server side subscription before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for h.bus.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.bus.Publish(bus.Event{Kind: bus.KindStatusChanged})
	h.bus.Publish(bus.Event{Kind: bus.KindNewMessages, Payload: bus.NewMessages{Count: 1, Chats: []string{"c1"}}})

	evt, err := stream.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if evt.Kind != bus.KindNewMessages || evt.Session != "test" || evt.ID == "" {
		t.Errorf("event = %+v", evt)
	}
}

func TestClearRejectsUnknownTarget(t *testing.T) {
	h := newHarness(t, transport.Static(true))
	_, err := h.client.ClearCache(ctxT(t), "everything")
	if grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", grpcstatus.Code(err))
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{session.ErrNoSession, codes.Unauthenticated},
		{&intsync.NoDataError{Resource: "chat_list"}, codes.NotFound},
		{&transport.HTTPError{Status: 401}, codes.Unauthenticated},
		{&transport.HTTPError{Status: 400, Code: transport.CodeInvalidSession}, codes.Unauthenticated},
		{&transport.HTTPError{Status: 409, Code: transport.CodeUsernameTaken}, codes.FailedPrecondition},
		{fmt.Errorf("send message: %w", &transport.NetworkError{Err: errors.New("reset")}), codes.Unavailable},
		{&transport.DecodeError{Err: errors.New("bad")}, codes.Internal},
		{remote.ErrEmptyMessage, codes.InvalidArgument},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		if got := grpcstatus.Code(toStatus("op", tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
	if toStatus("op", nil) != nil {
		t.Error("toStatus(nil) != nil")
	}
}
