package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/buddychat/internal/models"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// fakeServer is a minimal Socket.IO endpoint. serve runs once per connection
// after the CONNECT handshake has been accepted.
type fakeServer struct {
	t        *testing.T
	token    string
	reject   string
	conns    int32
	received chan string
	serve    func(conn *websocket.Conn, n int32)
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
		s.t.Errorf("unexpected query %s", r.URL.RawQuery)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Error(err)
		return
	}
	defer conn.Close()
	n := atomic.AddInt32(&s.conns, 1)

	conn.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"eio1","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`))

	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	if string(data) != `40{"token":"`+s.token+`"}` {
		s.t.Errorf("unexpected connect packet %s", data)
	}
	if s.reject != "" {
		conn.WriteMessage(websocket.TextMessage, []byte(`44{"message":"`+s.reject+`"}`))
		return
	}
	conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"sio1"}`))

	if s.serve != nil {
		s.serve(conn, n)
	}
}

func startFake(t *testing.T, s *fakeServer) string {
	t.Helper()
	s.t = t
	if s.token == "" {
		s.token = "tok"
	}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv.URL
}

func newTestChannel(url string) *Channel {
	return New(Options{
		URL:               url,
		Token:             "tok",
		ReconnectDelay:    10 * time.Millisecond,
		ReconnectAttempts: 3,
		Logger:            zerolog.Nop(),
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestChannelDeliversInboundInOrder(t *testing.T) {
	url := startFake(t, &fakeServer{
		serve: func(conn *websocket.Conn, n int32) {
			conn.WriteMessage(websocket.TextMessage, []byte(`2`))
			for _, body := range []string{"one", "two", "three"} {
				conn.WriteMessage(websocket.TextMessage, []byte(`42["chatMessage",{"sender":"u2","receiver":"u1","message":"`+body+`","createdAt":1714557600000}]`))
			}
			// keep the connection open until the client goes away
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		},
	})

	ch := newTestChannel(url)
	var mu sync.Mutex
	var got []string
	ch.OnChatMessage(func(m models.Message) {
		mu.Lock()
		got = append(got, m.Body)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	})
	if strings.Join(got, ",") != "one,two,three" {
		t.Fatalf("unexpected order %v", got)
	}
	if !ch.Connected() {
		t.Fatal("expected channel to report connected")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if ch.Connected() {
		t.Fatal("expected channel to report disconnected after shutdown")
	}
}

func TestChannelEmitsEvents(t *testing.T) {
	received := make(chan string, 4)
	url := startFake(t, &fakeServer{
		serve: func(conn *websocket.Conn, n int32) {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				received <- string(data)
			}
		},
	})

	ch := newTestChannel(url)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)
	waitFor(t, ch.Connected)

	if err := ch.MarkRead("u2"); err != nil {
		t.Fatal(err)
	}
	msg := models.Message{ClientID: "01HX", SenderID: "u1", ReceiverID: "u2", Body: "hey", CreatedAt: time.UnixMilli(1714557600000)}
	if err := ch.SendMessage(msg); err != nil {
		t.Fatal(err)
	}

	if got := <-received; got != `42["mark-read",{"from":"u2"}]` {
		t.Fatalf("unexpected mark-read packet %s", got)
	}
	got := <-received
	if !strings.HasPrefix(got, `42["chatMessage",`) {
		t.Fatalf("unexpected chat packet %s", got)
	}
	_, args, err := decodeEvent(json.RawMessage(got[2:]))
	if err != nil {
		t.Fatal(err)
	}
	var wire map[string]interface{}
	json.Unmarshal(args[0], &wire)
	if wire["to"] != "u2" || wire["message"] != "hey" || wire["clientId"] != "01HX" {
		t.Fatalf("unexpected payload %v", wire)
	}
}

func TestChannelEmitWhileDisconnectedIsDropped(t *testing.T) {
	ch := newTestChannel("http://127.0.0.1:1")
	err := ch.MarkRead("u2")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestChannelReconnectsWithSameCredential(t *testing.T) {
	url := startFake(t, &fakeServer{
		serve: func(conn *websocket.Conn, n int32) {
			if n == 1 {
				// drop the first session to force a reconnect
				conn.WriteMessage(websocket.TextMessage, []byte(`41`))
				return
			}
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		},
	})

	ch := newTestChannel(url)
	var states []State
	var mu sync.Mutex
	ch.OnState(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		connects := 0
		for _, s := range states {
			if s.Connected {
				connects++
			}
		}
		return connects == 2
	})
}

func TestChannelRejectedIsNotRetried(t *testing.T) {
	s := &fakeServer{reject: "Authentication error"}
	url := startFake(t, s)

	ch := newTestChannel(url)
	err := ch.Run(context.Background())

	var rejected *RejectedError
	if !errors.As(err, &rejected) || rejected.Reason != "Authentication error" {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if n := atomic.LoadInt32(&s.conns); n != 1 {
		t.Fatalf("expected a single attempt, got %d", n)
	}
	if ch.State().LastError == "" {
		t.Fatal("expected last error to be recorded")
	}
}

func TestChannelGivesUpAfterAttempts(t *testing.T) {
	ch := newTestChannel("http://127.0.0.1:1")
	err := ch.Run(context.Background())
	if !errors.Is(err, ErrReconnectsExhausted) {
		t.Fatalf("expected ErrReconnectsExhausted, got %v", err)
	}
	if ch.State().Attempt != 4 {
		t.Fatalf("expected 4 failed attempts, got %d", ch.State().Attempt)
	}
}

func TestChannelRequiresToken(t *testing.T) {
	ch := New(Options{URL: "http://127.0.0.1:1", Logger: zerolog.Nop()})
	if err := ch.Run(context.Background()); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}
