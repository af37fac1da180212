package signal

import (
	"sync"
	"time"

	"huddle/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// clientConn wraps a websocket connection with a write lock; gorilla
// connections allow only one concurrent writer.
type clientConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *clientConn) writeJSON(v interface{}, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return c.conn.WriteJSON(v)
}

// Hub owns the live websocket connections and implements ports.EventPusher.
// Pushes are best effort: writes to missing or broken connections are
// dropped.
type Hub struct {
	conns        map[domain.ConnectionID]*clientConn
	mu           sync.RWMutex
	writeTimeout time.Duration
	logger       *zap.SugaredLogger
}

func NewHub(writeTimeout time.Duration, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		conns:        make(map[domain.ConnectionID]*clientConn),
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

func (h *Hub) Add(connID domain.ConnectionID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[connID] = &clientConn{conn: conn}
}

func (h *Hub) Remove(connID domain.ConnectionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connID)
}

// Close closes the underlying socket, if still present. The read loop of
// that connection observes the close and runs its own cleanup.
func (h *Hub) Close(connID domain.ConnectionID) {
	h.mu.RLock()
	client, ok := h.conns[connID]
	h.mu.RUnlock()

	if ok {
		client.conn.Close()
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Emit pushes an event to a single connection.
func (h *Hub) Emit(connID domain.ConnectionID, event string, payload interface{}) error {
	h.mu.RLock()
	client, ok := h.conns[connID]
	h.mu.RUnlock()

	if !ok {
		return domain.ErrConnectionNotFound
	}
	return client.writeJSON(outbound{Type: event, Payload: payload}, h.writeTimeout)
}

// EmitEach pushes an event to every listed connection independently.
func (h *Hub) EmitEach(connIDs []domain.ConnectionID, event string, payload interface{}) {
	for _, connID := range connIDs {
		if err := h.Emit(connID, event, payload); err != nil {
			h.logger.Debugw("push failed", "connection_id", connID, "event", event, "error", err)
		}
	}
}
