package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/config"
	"github.com/Thegreatsura/better-analytics-sub000/pkg/httpx"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Allow same-origin requests, or requests with no Origin header
		// No Origin header = direct connection (non-browser clients like curl, testing tools)
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// Event notifies a tenant's dashboards that a record was persisted.
type Event struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
	ID       string `json:"id"`
}

type subscription struct {
	clientID string
	conn     *websocket.Conn
}

type message struct {
	clientID string
	data     []byte
}

// Hub fans events out to the websocket connections of each tenant. Publishing
// never waits for subscribers.
type Hub struct {
	// Connections by tenant
	clients map[string]map[*websocket.Conn]bool

	register   chan subscription
	unregister chan subscription
	broadcast  chan message

	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*websocket.Conn]bool),
		register:   make(chan subscription, config.WSChannelBuffer),
		unregister: make(chan subscription, config.WSChannelBuffer),
		broadcast:  make(chan message, config.WSBroadcastBuffer),
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Close all client connections on shutdown
			h.mu.Lock()
			for _, conns := range h.clients {
				for conn := range conns {
					conn.Close()
				}
			}
			h.clients = make(map[string]map[*websocket.Conn]bool)
			h.mu.Unlock()
			return
		case sub := <-h.register:
			h.mu.Lock()
			conns, ok := h.clients[sub.clientID]
			if !ok {
				conns = make(map[*websocket.Conn]bool)
				h.clients[sub.clientID] = conns
			}
			conns[sub.conn] = true
			count := len(conns)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", zap.String("client_id", sub.clientID), zap.Int("total", count))
		case sub := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.clients[sub.clientID]; ok && conns[sub.conn] {
				delete(conns, sub.conn)
				sub.conn.Close()
				if len(conns) == 0 {
					delete(h.clients, sub.clientID)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", zap.String("client_id", sub.clientID))
		case msg := <-h.broadcast:
			h.mu.RLock()
			// Collect failed connections to unregister after releasing lock
			var failed []subscription
			for conn := range h.clients[msg.clientID] {
				conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
				if err := conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
					h.logger.Debug("websocket write failed", zap.Error(err))
					failed = append(failed, subscription{clientID: msg.clientID, conn: conn})
				}
			}
			h.mu.RUnlock()

			// Run is the only reader of unregister, so don't block on it here
			for _, sub := range failed {
				select {
				case h.unregister <- sub:
				default:
					go func(sub subscription) { h.unregister <- sub }(sub)
				}
			}
		}
	}
}

// Publish queues ev for the tenant's subscribers. A nil hub, a tenant with no
// subscribers and a full queue all drop the event.
func (h *Hub) Publish(clientID string, ev Event) {
	if h == nil || h.Subscribers(clientID) == 0 {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	select {
	case h.broadcast <- message{clientID: clientID, data: data}:
	default:
		// Channel full, drop message to prevent blocking
		h.logger.Warn("broadcast channel full, dropping event", zap.String("client_id", clientID))
	}
}

// Subscribers returns the number of connections subscribed to a tenant
func (h *Hub) Subscribers(clientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[clientID])
}

// HandleWebSocket upgrades a dashboard connection and subscribes it to the
// tenant named by the client_id query parameter.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		httpx.RespondError(w, http.StatusUnauthorized, ErrUnauthorized)
		return
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		httpx.RespondError(w, http.StatusBadRequest, ErrMissingClientID)
		return
	}
	if h.hub == nil {
		httpx.RespondErrorString(w, http.StatusServiceUnavailable, "realtime updates are disabled")
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := subscription{clientID: clientID, conn: conn}
	h.hub.register <- sub

	// Create context for managing goroutine lifecycle
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Start ping sender to keep connection alive
	go func() {
		ticker := time.NewTicker(config.WSPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(config.WSWriteDeadline)); err != nil {
					return
				}
			}
		}
	}()

	// Read loop handles ping/pong and detects connection close
	defer func() {
		cancel() // Signal ping goroutine to stop
		h.hub.unregister <- sub
	}()

	conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		return nil
	})

	// Subscribers never send data; read only to process control frames
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket error", zap.Error(err))
			}
			break
		}
	}
}
