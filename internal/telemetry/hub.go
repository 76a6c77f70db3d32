package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"trading-desk-go/internal/events"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub streams bus events to connected websocket clients as JSON.
type Hub struct {
	clients map[*websocket.Conn]bool
	lock    sync.Mutex
	logger  *zap.Logger
}

// NewHub creates a hub without clients.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		logger:  logger.Named("telemetry"),
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	h.lock.Lock()
	h.clients[conn] = true
	h.lock.Unlock()
	h.logger.Debug("Client connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.readPump(conn)
}

// readPump discards client messages and unregisters the connection once it closes.
func (h *Hub) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.NextReader(); err != nil {
			h.remove(conn)
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.clients[conn] {
		delete(h.clients, conn)
		conn.Close()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// Broadcast writes msg to every client, dropping clients that fail.
func (h *Hub) Broadcast(msg []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for client := range h.clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("Dropping client after write failure", zap.Error(err))
			client.Close()
			delete(h.clients, client)
		}
	}
}

// Run broadcasts events from ch until it closes or ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context, ch <-chan events.Event) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			msg, err := json.Marshal(e)
			if err != nil {
				h.logger.Error("Failed to encode event", zap.String("kind", string(e.Kind)), zap.Error(err))
				continue
			}
			h.Broadcast(msg)
		}
	}
}

func (h *Hub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}
