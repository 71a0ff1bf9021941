package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/seen"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/transport"
)

type wireChat struct {
	ID                  string `json:"id"`
	User                string `json:"user"`
	Username            string `json:"username"`
	LastMessage         string `json:"last_message"`
	LastMessageTime     string `json:"last_message_time"`
	LastMessageID       string `json:"last_message_id"`
	LastMessageSenderID string `json:"last_message_sender_id"`
}

// pollServer serves a different chat list on each call, repeating the last.
func pollServer(t *testing.T, rounds ...[]wireChat) *remote.Client {
	t.Helper()
	var n atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chats/all/" {
			http.NotFound(w, r)
			return
		}
		i := min(int(n.Add(1))-1, len(rounds)-1)
		_ = json.NewEncoder(w).Encode(map[string]any{"chats": rounds[i]})
	}))
	t.Cleanup(srv.Close)
	return remote.New(transport.New(srv.URL), time.Second, nil)
}

func newEngine(f *fixture, interval time.Duration) *Engine {
	return NewEngine(f.coord, seen.NewDiffer(f.seen, nil), f.bus, interval, nil)
}

func drain(ch <-chan bus.Event) []bus.Event {
	var out []bus.Event
	for {
		select {
		case evt := <-ch:
			out = append(out, evt)
		default:
			return out
		}
	}
}

func kinds(events []bus.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func TestPollThreeRoundsNotifiesOnlyForOthers(t *testing.T) {
	const ts = "2024-05-01T10:00:00Z"
	round1 := []wireChat{
		{ID: "a", User: "u2", Username: "bob", LastMessage: "hi", LastMessageTime: ts, LastMessageID: "m1", LastMessageSenderID: "u2"},
		{ID: "b", User: "u3", Username: "carol", LastMessage: "yo", LastMessageTime: ts, LastMessageID: "m5", LastMessageSenderID: "u3"},
	}
	round2 := []wireChat{round1[0], round1[1]}
	round2[1].LastMessageID, round2[1].LastMessageSenderID = "m6", "u1"
	round3 := []wireChat{round2[0], round2[1]}
	round3[0].LastMessageID = "m2"

	f := newFixture(t, pollServer(t, round1, round2, round3), transport.Static(true))
	f.login(t, "u1")
	e := newEngine(f, time.Hour)
	events, unsub := f.bus.Subscribe("", 32)
	defer unsub()
	ctx := context.Background()

	// First poll only baselines.
	res, err := e.PollOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Chats != 2 || len(res.Notified) != 0 {
		t.Errorf("poll 1 = %+v, want 2 chats and no notification", res)
	}

	// Second poll: the only change is our own message.
	res, err = e.PollOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Notified) != 0 {
		t.Errorf("poll 2 notified %v for a self-sent message", res.Notified)
	}
	if last, _ := f.seen.LastSeen("b"); last != "m6" {
		t.Errorf("self-sent message not recorded as seen: %q", last)
	}

	drain(events)

	// Third poll: bob wrote.
	res, err = e.PollOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(res.Notified, []string{"a"}) {
		t.Errorf("poll 3 notified %v, want [a]", res.Notified)
	}
	got := drain(events)
	var seq []string
	for _, k := range kinds(got) {
		if k == bus.KindNewMessages || k == bus.KindChatsChanged {
			seq = append(seq, k)
		}
	}
	if !slices.Equal(seq, []string{bus.KindNewMessages, bus.KindChatsChanged}) {
		t.Errorf("events = %v, want notification then chats changed", seq)
	}
	for _, evt := range got {
		if evt.Kind == bus.KindNewMessages {
			p := evt.Payload.(bus.NewMessages)
			if p.Count != 1 || !slices.Equal(p.Chats, []string{"a"}) {
				t.Errorf("notification payload = %+v", p)
			}
		}
	}
}

func TestPollFromCacheDoesNotNotify(t *testing.T) {
	r := &fakeRemote{chats: func() ([]model.ChatSummary, error) { return nil, netErr() }}
	f := newFixture(t, r, transport.Static(true))
	f.login(t, "u1")
	ctx := context.Background()
	if err := f.chats.Replace(ctx, []model.ChatSummary{chatA}); err != nil {
		t.Fatal(err)
	}
	if err := f.seen.RecordSeen(ctx, "a", "m0"); err != nil {
		t.Fatal(err)
	}
	events, unsub := f.bus.Subscribe(bus.KindChatsChanged, 4)
	defer unsub()

	res, err := newEngine(f, time.Hour).PollOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.FromCache || len(res.Notified) != 0 {
		t.Errorf("poll = %+v, want cached and silent", res)
	}
	if last, _ := f.seen.LastSeen("a"); last != "m0" {
		t.Errorf("cached poll moved seen marker to %q", last)
	}
	select {
	case evt := <-events:
		if p := evt.Payload.(bus.ChatsChanged); !p.FromCache || p.Count != 1 {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no chats changed event")
	}
}

func TestPollWithoutSessionIsSkipped(t *testing.T) {
	r := &fakeRemote{}
	f := newFixture(t, r, transport.Static(true))

	res, err := newEngine(f, time.Hour).PollOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped {
		t.Error("poll without a session should be skipped")
	}
	if r.count("ListChats") != 0 {
		t.Error("remote called without a session")
	}
}

func TestEngineStartPauseResume(t *testing.T) {
	r := &fakeRemote{chats: func() ([]model.ChatSummary, error) { return []model.ChatSummary{chatA}, nil }}
	f := newFixture(t, r, transport.Static(true))
	f.login(t, "u1")
	e := newEngine(f, time.Hour)
	events, unsub := f.bus.Subscribe(bus.KindChatsChanged, 8)
	defer unsub()

	wait := func(what string) {
		t.Helper()
		select {
		case <-events:
		case <-time.After(time.Second):
			t.Fatalf("%s: no poll", what)
		}
	}

	e.Start(context.Background())
	defer e.Stop()
	wait("start")
	if !e.Running() {
		t.Error("not running after Start")
	}

	e.Pause()
	if e.Running() {
		t.Error("running after Pause")
	}
	e.Pause()

	e.Resume()
	wait("resume")
	if !e.Running() {
		t.Error("not running after Resume")
	}

	e.Stop()
	e.Stop()
	if e.Running() {
		t.Error("running after Stop")
	}
	e.Resume()
	if e.Running() {
		t.Error("Resume restarted a stopped engine")
	}
}

func TestPauseDuringPollPublishesNothing(t *testing.T) {
	started := make(chan struct{})
	r := &fakeRemote{chatsCtx: func(ctx context.Context) ([]model.ChatSummary, error) {
		close(started)
		<-ctx.Done()
		return nil, netErr()
	}}
	f := newFixture(t, r, transport.Static(true))
	f.login(t, "u1")
	ctx := context.Background()
	if err := f.chats.Replace(ctx, []model.ChatSummary{chatA}); err != nil {
		t.Fatal(err)
	}
	events, unsub := f.bus.Subscribe("", 32)
	defer unsub()

	e := newEngine(f, time.Hour)
	e.Start(ctx)
	defer e.Stop()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("poll never started")
	}
	drain(events)

	e.Pause()

	if got := drain(events); len(got) != 0 {
		t.Errorf("events after Pause = %v, want none", kinds(got))
	}
	if st := f.coord.Status().For(status.ChatList).Current(); st != status.Idle {
		t.Errorf("chat list state = %s, want IDLE after an abandoned poll", st)
	}
}

func TestReadWithCanceledContextSkipsCache(t *testing.T) {
	r := &fakeRemote{chats: func() ([]model.ChatSummary, error) { return nil, netErr() }}
	f := newFixture(t, r, transport.Static(true))
	tok := f.login(t, "u1")
	if err := f.chats.Replace(context.Background(), []model.ChatSummary{chatA}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.coord.FetchChatList(ctx, tok); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if r.count("ListChats") != 0 {
		t.Error("remote called with a canceled context")
	}
}
