package ws

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPublishReachesConnectedClient(t *testing.T) {
	s := NewServer(log.New(io.Discard, "", 0), nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)

	// Wait for the connection to register before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		n := len(s.conns)
		s.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("connection never registered")
		}
		time.Sleep(2 * time.Millisecond)
	}

	s.Publish(map[string]any{"tiles": 42})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["tiles"] != float64(42) {
		t.Fatalf("payload = %v", got)
	}
}

func TestLateJoinerGetsLatestSnapshot(t *testing.T) {
	s := NewServer(log.New(io.Discard, "", 0), nil)
	s.Publish(map[string]any{"seq": 1})
	s.Publish(map[string]any{"seq": 2})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dial(t, srv)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got map[string]any
	_ = json.Unmarshal(msg, &got)
	if got["seq"] != float64(2) {
		t.Fatalf("late joiner saw %v, want the newest snapshot", got)
	}
}

func TestHealthReportsReachCallback(t *testing.T) {
	rates := make(chan float64, 4)
	s := NewServer(log.New(io.Discard, "", 0), func(rate float64) { rates <- rate })
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dial(t, srv)

	// Junk and non-health messages are ignored.
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"status"}`))
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"h1","type":"health","rate":57.5}`))

	select {
	case r := <-rates:
		if r != 57.5 {
			t.Fatalf("rate = %f", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("health report never reached the callback")
	}
	if len(rates) != 0 {
		t.Fatalf("non-health messages triggered the callback")
	}
}

func TestSendLatestDropsStale(t *testing.T) {
	c := &client{out: make(chan []byte, 1)}
	c.sendLatest([]byte("a"))
	c.sendLatest([]byte("b"))
	c.sendLatest([]byte("c"))

	if got := string(<-c.out); got != "c" {
		t.Fatalf("outbox held %q, want the newest", got)
	}
	select {
	case b := <-c.out:
		t.Fatalf("stale message left behind: %q", b)
	default:
	}
}
