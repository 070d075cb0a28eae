package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rupesh-2/matrimonial-UI/internal/models"
)

type staticToken string

func (s staticToken) Get(context.Context) string { return string(s) }

type recordingReceiver struct {
	mu   sync.Mutex
	seen map[int64]bool
	msgs []models.Message
	got  chan models.Message
}

func newReceiver() *recordingReceiver {
	return &recordingReceiver{seen: map[int64]bool{}, got: make(chan models.Message, 8)}
}

func (r *recordingReceiver) Receive(msg models.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[msg.ID] {
		return false
	}
	r.seen[msg.ID] = true
	r.msgs = append(r.msgs, msg)
	r.got <- msg
	return true
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
}

func waitMessage(t *testing.T, r *recordingReceiver) models.Message {
	t.Helper()
	select {
	case msg := <-r.got:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return models.Message{}
	}
}

func TestRunDeliversMessagesWithToken(t *testing.T) {
	var gotToken atomic.Value
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken.Store(r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"info","data":"connected"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","data":{"id":"9","from_user_id":2,"to_user_id":1,"message":"hi","created_at":"2024-05-01T10:00:00Z"}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	recv := newReceiver()
	l, err := New(wsURL(srv), staticToken("tok-1"), recv)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	msg := waitMessage(t, recv)
	if msg.ID != 9 || msg.SenderID != 2 || msg.Content != "hi" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if got, _ := gotToken.Load().(string); got != "tok-1" {
		t.Fatalf("expected token query parameter, got %q", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}
}

func TestRunReconnectsAfterDrop(t *testing.T) {
	var connections atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := connections.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		payload := `{"type":"message","data":{"id":` + strconv.Itoa(int(min(n, 2))) + `,"sender_id":5,"receiver_id":1,"content":"x"}}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(payload))
		if n == 1 {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	recv := newReceiver()
	l, err := New(wsURL(srv), staticToken("tok"), recv, WithBackoff(5*time.Millisecond, 20*time.Millisecond))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	first := waitMessage(t, recv)
	second := waitMessage(t, recv)
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("expected messages 1 then 2, got %d and %d", first.ID, second.ID)
	}
	if connections.Load() < 2 {
		t.Fatalf("expected a reconnect, got %d connections", connections.Load())
	}
}

func TestRunStopsOnUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	l, err := New(wsURL(srv), staticToken("stale"), newReceiver(), WithBackoff(time.Millisecond, time.Millisecond))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := l.Run(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized got %v", err)
	}
}

func TestRunRequiresCredential(t *testing.T) {
	l, err := New("ws://127.0.0.1:1/ws/chat", staticToken(""), newReceiver())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := l.Run(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential got %v", err)
	}
}

func TestEndpointFromBase(t *testing.T) {
	cases := map[string]string{
		"http://127.0.0.1:8000":        "ws://127.0.0.1:8000/ws/chat",
		"https://api.example.com/":     "wss://api.example.com/ws/chat",
		"https://api.example.com/v1?x": "wss://api.example.com/v1/ws/chat",
	}
	for in, want := range cases {
		got, err := EndpointFromBase(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got != want {
			t.Fatalf("%s: expected %q got %q", in, want, got)
		}
	}
	if _, err := EndpointFromBase("ftp://example.com"); err == nil {
		t.Fatal("expected unsupported scheme to fail")
	}
}

func TestBackoffIsCapped(t *testing.T) {
	l := &Listener{minBackoff: 100 * time.Millisecond, maxBackoff: time.Second}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := l.backoff(i + 1); got != w {
			t.Fatalf("attempt %d: expected %s got %s", i+1, w, got)
		}
	}
	if got := l.backoff(200); got != time.Second {
		t.Fatalf("expected cap for huge attempt, got %s", got)
	}
}

func TestNewRejectsHTTPEndpoint(t *testing.T) {
	if _, err := New("http://example.com/ws/chat", staticToken("t"), newReceiver()); err == nil {
		t.Fatal("expected http endpoint to be rejected")
	}
}
