package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"pillar-api/events"
	"pillar-api/types"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Client represents a websocket connection bound to a user and a session.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	userID    int
	sessionID string
}

// Hub mirrors the SSE stream over websocket for integrations that prefer a
// socket. It holds one bus subscription and applies the same per-connection
// delivery filter as the SSE endpoint.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	clients    map[*Client]bool
}

// NewHub creates a Hub and starts its loop against the given bus.
func NewHub(bus *events.Bus) *Hub {
	h := &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
	go h.run(bus)
	return h
}

func (h *Hub) run(bus *events.Bus) {
	sub := bus.Subscribe()
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case ev := <-sub.Events():
			h.broadcast(ev)
		}
	}
}

func (h *Hub) broadcast(ev types.SyncEvent) {
	var payload []byte
	for c := range h.clients {
		if !events.ShouldDeliver(ev, c.userID, c.sessionID) {
			continue
		}
		if payload == nil {
			b, err := json.Marshal(ev)
			if err != nil {
				slog.Error("websocket marshal failed", "entity", ev.Entity, "err", err)
				return
			}
			payload = b
		}
		select {
		case c.send <- payload:
		default:
			// Backpressure: drop and disconnect slow clients
			close(c.send)
			delete(h.clients, c)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the HTTP connection and registers the client. The caller
// must authenticate first and set userId in the context; the session id
// comes from the sessionId query parameter, same as the SSE endpoint.
func ServeWS(h *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetInt("userId")
		if userID == 0 {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "err", err)
			return
		}
		client := &Client{hub: h, conn: conn, send: make(chan []byte, 256), userID: userID, sessionID: c.Query("sessionId")}
		h.register <- client

		// Reader goroutine
		go func() {
			defer func() {
				h.unregister <- client
				_ = conn.Close()
			}()
			conn.SetReadLimit(1024)
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			})
			for {
				_, _, err := conn.ReadMessage()
				if err != nil {
					break
				}
			}
		}()

		// Writer loop (same goroutine)
		for msg := range client.send {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}
}
