package watch

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"biztrack/internal/events"
	"biztrack/internal/log"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 32
)

// Hub fans record change events out to websocket subscribers. A subscriber
// that falls sendBuffer events behind is disconnected.
type Hub struct {
	mu       sync.Mutex
	clients  map[*subscriber]struct{}
	upgrader websocket.Upgrader
	logger   *log.Logger
}

type subscriber struct {
	conn *websocket.Conn
	send chan events.RecordChanged
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Discard()
	}
	return &Hub{
		clients: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.WithComponent(log.ComponentWatch),
	}
}

// Broadcast queues msg for every subscriber.
func (h *Hub) Broadcast(msg events.RecordChanged) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.clients {
		select {
		case s.send <- msg:
		default:
			h.dropLocked(s)
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Websocket upgrade failed", log.FieldError, err.Error())
		return
	}
	s := &subscriber{conn: conn, send: make(chan events.RecordChanged, sendBuffer)}

	h.mu.Lock()
	h.clients[s] = struct{}{}
	h.mu.Unlock()
	h.logger.InfoContext(r.Context(), "Subscriber connected", "remote", r.RemoteAddr)

	go h.readLoop(s)
	h.writeLoop(s)
}

// readLoop discards inbound frames and notices when the peer closes.
func (h *Hub) readLoop(s *subscriber) {
	defer h.drop(s)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				h.drop(s)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(s)
				return
			}
		}
	}
}

func (h *Hub) drop(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(s)
}

func (h *Hub) dropLocked(s *subscriber) {
	if _, ok := h.clients[s]; !ok {
		return
	}
	delete(h.clients, s)
	close(s.send)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.clients {
		h.dropLocked(s)
	}
}
