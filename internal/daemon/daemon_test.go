package daemon

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/matheus3301/chatsync/internal/session"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"jwt":"T","expiration_date":"2099-01-01T00:00:00Z"}`)
	})
	mux.HandleFunc("/api/users/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"u1","username":"alice"}`)
	})
	mux.HandleFunc("/api/users/sessions/validate", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"valid":true}`)
	})
	mux.HandleFunc("/api/chats/all/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"chats":[{"id":"c1","user":"u2","username":"bob","last_message_id":"m1","last_message_sender_id":"u2"}]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// testEnv points the session tree at a short temp dir; unix socket paths
// are limited to about 104 bytes on some systems.
func testEnv(t *testing.T) Params {
	t.Helper()
	home, err := os.MkdirTemp("/tmp", "chatsync-d-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(home) })
	t.Setenv("CHATSYNC_HOME", home)

	cfg := config.Default()
	cfg.API.BaseURL = fakeAPI(t).URL
	cfg.Sync.ChatListInterval = config.Duration{Duration: time.Hour}
	return Params{SessionName: "test", Config: cfg, Logger: zap.NewNop()}
}

func dial(t *testing.T, p Params) *rpc.Client {
	t.Helper()
	c, err := rpc.Dial(session.SocketPath(p.SessionName))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDaemonLifecycle(t *testing.T) {
	p := testEnv(t)
	app := fxtest.New(t, Module(p))
	app.RequireStart()

	c := dial(t, p)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := c.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus error = %v", err)
	}
	if st.Session != "test" || st.LoggedIn || st.Polling {
		t.Errorf("status before login = %+v", st)
	}

	if _, err := c.Login(ctx, &rpc.LoginRequest{Email: "alice@example.com", Password: "pw", Remember: true}); err != nil {
		t.Fatalf("Login error = %v", err)
	}
	waitFor(t, "poller to resume", func() bool {
		st, err := c.GetStatus(ctx)
		return err == nil && st.Polling
	})

	chats, err := c.ListChats(ctx)
	if err != nil {
		t.Fatalf("ListChats error = %v", err)
	}
	if len(chats.Chats) != 1 {
		t.Errorf("expected 1 chat, got %d", len(chats.Chats))
	}

	if _, err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout error = %v", err)
	}
	waitFor(t, "poller to pause", func() bool {
		st, err := c.GetStatus(ctx)
		return err == nil && !st.Polling && !st.LoggedIn
	})
	stats, err := c.CacheStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Chats != 0 || stats.Seen != 0 {
		t.Errorf("stats after logout = %+v", stats)
	}

	app.RequireStop()
	if _, err := os.Stat(session.SocketPath(p.SessionName)); !os.IsNotExist(err) {
		t.Error("socket left behind after stop")
	}
	if _, held, _ := lock.Holder(session.LockPath(p.SessionName)); held {
		t.Error("lock still held after stop")
	}
}

func TestSecondDaemonRefusesSession(t *testing.T) {
	p := testEnv(t)
	app := fxtest.New(t, Module(p))
	app.RequireStart()
	defer app.RequireStop()

	p2 := p
	p2.SocketPath = session.Dir(p.SessionName) + "/other.sock"
	second := fx.New(Module(p2), fx.NopLogger)
	err := second.Err()
	if err == nil {
		t.Fatal("second daemon started on a locked session")
	}
	if !strings.Contains(err.Error(), "session lock held") {
		t.Errorf("err = %v, want lock held", err)
	}
}

func TestRememberedSessionSurvivesRestart(t *testing.T) {
	p := testEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	app := fxtest.New(t, Module(p))
	app.RequireStart()
	c := dial(t, p)
	if _, err := c.Login(ctx, &rpc.LoginRequest{Email: "alice@example.com", Password: "pw", Remember: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListChats(ctx); err != nil {
		t.Fatal(err)
	}
	app.RequireStop()

	app = fxtest.New(t, Module(p))
	app.RequireStart()
	defer app.RequireStop()
	c = dial(t, p)

	st, err := c.GetStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.LoggedIn || st.Username != "alice" || !st.Remembered {
		t.Errorf("status after restart = %+v", st)
	}
	stats, err := c.CacheStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Chats != 1 {
		t.Errorf("cached chats after restart = %d, want 1", stats.Chats)
	}
}

func TestResetWipesCache(t *testing.T) {
	p := testEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	app := fxtest.New(t, Module(p))
	app.RequireStart()
	c := dial(t, p)
	if _, err := c.Login(ctx, &rpc.LoginRequest{Email: "alice@example.com", Password: "pw", Remember: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListChats(ctx); err != nil {
		t.Fatal(err)
	}
	app.RequireStop()

	p.Reset = true
	app = fxtest.New(t, Module(p))
	app.RequireStart()
	defer app.RequireStop()
	c = dial(t, p)

	st, err := c.GetStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.LoggedIn {
		t.Error("reset kept the remembered session")
	}
	stats, err := c.CacheStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Chats != 0 {
		t.Errorf("cached chats after reset = %d, want 0", stats.Chats)
	}
}
