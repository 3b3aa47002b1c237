package realtime

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub pushes payment events to connected WebSocket subscribers.
// Subscribers are read-only; anything they send is discarded.
type Hub struct {
	mu          sync.Mutex
	connections map[*websocket.Conn]struct{}

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	outbound   chan []byte

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub constructs a Hub. Run must be started for it to deliver.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[*websocket.Conn]struct{}),
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn),
		outbound:    make(chan []byte, 64),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Broadcast queues a message for every connected subscriber. Messages
// are dropped when the hub backlog is full rather than blocking the
// payment flow.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.outbound <- message:
	default:
		h.logger.Warn("realtime backlog full, dropping message")
	}
}

// ServeWS upgrades the request and subscribes the connection.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	h.register <- conn
	go h.drain(conn)
}

// drain consumes inbound frames so pings and close messages are
// processed, then unsubscribes on error.
func (h *Hub) drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.unregister <- conn
			return
		}
	}
}

// Run processes subscriptions and deliveries until the hub is closed.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			delete(h.connections, conn)
			h.mu.Unlock()
			conn.Close()
		case msg := <-h.outbound:
			h.mu.Lock()
			for conn := range h.connections {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.connections, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}
