// WebSocket stream of finished rounds. Each subscriber receives one JSON
// round record per completed round; slow subscribers are dropped rather
// than allowed to stall the simulation loop.
package api

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxStreamConns = 8
	clientBuffer   = 16
	writeTimeout   = 5 * time.Second
)

// Hub fans broadcast payloads out to connected WebSocket clients.
type Hub struct {
	upgrader websocket.Upgrader

	mu         sync.Mutex
	clients    map[*streamClient]bool
	broadcast  chan any
	register   chan *streamClient
	unregister chan *streamClient

	conns  atomic.Int32
	nextID atomic.Uint64
}

type streamClient struct {
	id   uint64
	send chan any
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[*streamClient]bool),
		broadcast:  make(chan any, 64),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
	}
}

// Run drives the hub event loop. Call once, in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.removeClient(c)
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client; disconnect rather than block the loop.
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) removeClient(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast queues a payload for every subscriber. Never blocks; if the
// hub is backed up the payload is dropped.
func (h *Hub) Broadcast(v any) {
	select {
	case h.broadcast <- v:
	default:
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handler upgrades the request to a WebSocket and streams broadcasts
// until the client goes away.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.conns.Load() >= maxStreamConns {
			http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.conns.Add(1)
		defer h.conns.Add(-1)
		defer conn.Close()

		client := &streamClient{
			id:   h.nextID.Add(1),
			send: make(chan any, clientBuffer),
		}
		h.register <- client
		defer func() {
			select {
			case h.unregister <- client:
			default:
				h.removeClient(client)
			}
		}()

		slog.Info("stream client connected", "client", client.id)

		// Writer goroutine; the send channel closes when the hub drops us.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.send {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(time.Second))
		}()

		// Reader loop exists only to notice the client closing.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		slog.Info("stream client disconnected", "client", client.id)
		conn.Close()
		<-done
	}
}
