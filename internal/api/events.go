package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/websocket"

	"kvstore.contract/kvs/internal/abci"
)

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans delivered contract events out to websocket subscribers. Slow
// subscribers miss events rather than stall block delivery.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan abci.Event]struct{}
	logger  log.Logger
}

var _ abci.EventSink = (*Hub)(nil)

func NewHub(logger log.Logger) *Hub {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Hub{
		clients: make(map[chan abci.Event]struct{}),
		logger:  log.With(logger, "module", "events"),
	}
}

func (h *Hub) subscribe() chan abci.Event {
	ch := make(chan abci.Event, eventBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan abci.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

// Subscribers is the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish implements abci.EventSink.
func (h *Hub) Publish(ev abci.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client <- ev:
		default:
			level.Debug(h.logger).Log("msg", "dropped event for slow subscriber", "tx", ev.TxHash)
		}
	}
}

// @Title: Stream Events
// @Route: GET /ws/events
// @Description: WebSocket stream of contract events as they are delivered
// @Response: JSON event per message: {"height": 3, "tx_hash": "...", "attributes": [...]}
func (h *Hub) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		level.Warn(h.logger).Log("msg", "websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	events := h.subscribe()
	defer h.unsubscribe(events)

	// The read side only watches for the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
