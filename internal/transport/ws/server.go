// Package ws streams scheduler status to observers and accepts frame
// health reports back. Each connection holds a single-slot outbox: a
// slow reader sees the latest snapshot, never a backlog.
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hexelev.dev/internal/protocol"
)

// OnHealth receives measured frame rates reported by connected clients.
type OnHealth func(rate float64)

type Server struct {
	log      *log.Logger
	onHealth OnHealth

	upgrader websocket.Upgrader

	mu     sync.Mutex
	latest []byte
	conns  map[*client]struct{}
}

type client struct {
	out chan []byte
}

func NewServer(logger *log.Logger, onHealth OnHealth) *Server {
	return &Server{
		log:      logger,
		onHealth: onHealth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		conns: make(map[*client]struct{}),
	}
}

// Publish replaces the current snapshot and pushes it to every
// connection. Marshal errors are logged and dropped.
func (s *Server) Publish(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("status marshal: %v", err)
		return
	}
	s.mu.Lock()
	s.latest = b
	for c := range s.conns {
		c.sendLatest(b)
	}
	s.mu.Unlock()
}

// sendLatest keeps only the newest snapshot in the outbox.
func (c *client) sendLatest(b []byte) {
	for {
		select {
		case c.out <- b:
			return
		default:
			select {
			case <-c.out:
			default:
			}
		}
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &client{out: make(chan []byte, 1)}
		s.mu.Lock()
		s.conns[c] = struct{}{}
		if s.latest != nil {
			c.sendLatest(s.latest)
		}
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			delete(s.conns, c)
			s.mu.Unlock()
		}()

		done := make(chan struct{})

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-done:
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						return
					}
				}
			}
		}()

		// Reader loop: frame health reports, everything else ignored.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeHealth {
				continue
			}
			var h protocol.HealthMsg
			if err := json.Unmarshal(msg, &h); err != nil {
				continue
			}
			if h.Rate > 0 && s.onHealth != nil {
				s.onHealth(h.Rate)
			}
		}
		close(done)
	}
}
