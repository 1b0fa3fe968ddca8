package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kapu/stream-chess-vote-go/internal/adapter"
	"github.com/kapu/stream-chess-vote-go/internal/config"
	"github.com/kapu/stream-chess-vote-go/internal/game"
	"github.com/kapu/stream-chess-vote-go/internal/rules"
	"github.com/kapu/stream-chess-vote-go/pkg/gamedto"
)

type fakeConn struct {
	events chan adapter.Event
}

func newFakeConn(events ...adapter.Event) *fakeConn {
	ch := make(chan adapter.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return &fakeConn{events: ch}
}

func (f *fakeConn) Connect(context.Context) error     { return nil }
func (f *fakeConn) Events() <-chan adapter.Event      { return f.events }
func (f *fakeConn) Close(string)                      {}
func (f *fakeConn) IsConnected() bool                 { return false }

func newTestServer(t *testing.T, cfg *config.AppConfig, opts ...Option) (*Server, *game.Manager) {
	t.Helper()
	settings := config.DefaultSettings()
	settings.SecondsPerMove = 60
	mgr, err := game.New(settings)
	if err != nil {
		t.Fatalf("game.New: %v", err)
	}
	t.Cleanup(mgr.Close)
	if cfg == nil {
		cfg = &config.AppConfig{ListenAddr: ":0"}
	}
	return New(cfg, mgr, opts...), mgr
}

func TestTwitchChatRequiresChannelID(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/twitch/chat", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body gamedto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if !strings.Contains(body.Error, "channel_id") {
		t.Errorf("error = %q", body.Error)
	}
}

func TestYouTubeChatRequiresAPIKey(t *testing.T) {
	s, _ := newTestServer(t, &config.AppConfig{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/youtube/chat?channel_id=@someone", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestTwitchChatStreamsEvents(t *testing.T) {
	factory := func(channel string) adapter.Conn {
		if channel != "somechannel" {
			t.Errorf("factory channel = %q", channel)
		}
		return newFakeConn(
			adapter.Event{Kind: adapter.KindSystem, Notice: "Joined #somechannel"},
			adapter.Event{Kind: adapter.KindMessage, Message: adapter.ChatEvent{User: "alice", Text: "e4"}},
		)
	}
	s, _ := newTestServer(t, nil, WithTwitchFactory(factory))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/twitch/chat?channel_id=somechannel", nil))

	body := rec.Body.String()
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(body, "event: system\ndata: {\"message\":\"Joined #somechannel\"}\n\n") {
		t.Errorf("missing system frame:\n%s", body)
	}
	if !strings.Contains(body, "event: message\ndata: {\"user\":\"alice\",\"text\":\"e4\"}\n\n") {
		t.Errorf("missing message frame:\n%s", body)
	}
}

func TestChatStreamEmitsTerminalError(t *testing.T) {
	factory := func(string) adapter.Conn {
		return newFakeConn(adapter.Event{Kind: adapter.KindError, Notice: "Stream error", Detail: "connection reset"})
	}
	s, _ := newTestServer(t, nil, WithTwitchFactory(factory))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/twitch/chat?channel_id=x", nil))

	body := rec.Body.String()
	if got := strings.Count(body, "event: error"); got != 1 {
		t.Fatalf("error frames = %d, want 1:\n%s", got, body)
	}
	if !strings.Contains(body, "connection reset") {
		t.Errorf("missing detail:\n%s", body)
	}
}

type blockingConn struct {
	events chan adapter.Event

	mu     sync.Mutex
	closes int
}

func (c *blockingConn) Connect(context.Context) error { return nil }
func (c *blockingConn) Events() <-chan adapter.Event  { return c.events }
func (c *blockingConn) IsConnected() bool             { return true }
func (c *blockingConn) Close(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
}

func (c *blockingConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func TestClientCancelClosesAdapterOnce(t *testing.T) {
	conn := &blockingConn{events: make(chan adapter.Event)}
	s, _ := newTestServer(t, nil, WithTwitchFactory(func(string) adapter.Conn { return conn }))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/twitch/chat?channel_id=x", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.Handler().ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after client cancellation")
	}
	if got := conn.closeCount(); got != 1 {
		t.Errorf("adapter Close calls = %d, want 1", got)
	}
}

func TestGameStateEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/game/state", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var st gamedto.GameState
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.Turn != "white" || !st.Paused {
		t.Errorf("state = %+v", st)
	}
	if st.FEN == "" || st.GameID == "" {
		t.Errorf("incomplete state = %+v", st)
	}
}

func TestGameStartPauseReset(t *testing.T) {
	s, mgr := newTestServer(t, nil)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/game/start", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}
	if mgr.Snapshot().Paused {
		t.Error("game still paused after start")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/game/pause", nil))
	if rec.Code != http.StatusOK || !mgr.Snapshot().Paused {
		t.Error("pause did not freeze the game")
	}

	firstID := mgr.ID()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/game/reset",
		strings.NewReader(`{"secondsPerMove": 45}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d body=%s", rec.Code, rec.Body.String())
	}
	if mgr.ID() == firstID {
		t.Error("reset kept the old game id")
	}
	if got := mgr.Settings().SecondsPerMove; got != 45 {
		t.Errorf("secondsPerMove = %d, want 45", got)
	}
}

func TestGameResetRejectsBadSettings(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/game/reset",
		strings.NewReader(`{"moveSelection": "bogus"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGameBan(t *testing.T) {
	s, mgr := newTestServer(t, nil)
	mgr.SubmitChat(rules.SideWhite, "alice", "e4")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/game/ban",
		strings.NewReader(`{"move":"e4"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := mgr.Snapshot().White.Candidates; len(got) != 0 {
		t.Errorf("candidates after ban = %+v", got)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/game/ban",
		strings.NewReader(`{"move":"zz9"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unparseable ban status = %d", rec.Code)
	}
}

func TestOptionalEndpointsUnconfigured(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	for _, path := range []string{"/api/game/evaluation", "/api/game/history"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestMethodGuards(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/game/start"},
		{http.MethodGet, "/api/game/pause"},
		{http.MethodGet, "/api/game/reset"},
		{http.MethodGet, "/api/game/ban"},
		{http.MethodPost, "/api/game/state"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status = %d, want 405", tc.method, tc.path, rec.Code)
		}
	}
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
