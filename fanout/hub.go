package fanout

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/log"
	"github.com/Serph91P/StreamVault-sub001/metrics"
)

// Hub maintains the set of connected dashboard clients and fans broadcasts
// out to all of them. One content-hash cache per hub coalesces repeat
// snapshot broadcasts (e.g. an unchanged queue_stats_update tick).
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	metrics    *metrics.CoreMetrics

	lastHashMu sync.Mutex
	lastHash   map[MessageType]string
}

func NewHub(m *metrics.CoreMetrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, config.WebSocketSendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		metrics:    m,
		lastHash:   make(map[MessageType]string),
	}
}

// Run drives the hub's event loop; it must be started in its own goroutine
// and returns only once the register channel is closed, which nothing in
// this package does.
func (h *Hub) Run() {
	for {
		select {
		case c, ok := <-h.register:
			if !ok {
				return
			}
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.WSConnectedClients.Set(float64(len(h.clients)))
			}

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.WSConnectedClients.Set(float64(len(h.clients)))
			}

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for c := range h.clients {
		select {
		case c.send <- payload:
			sent++
		default:
			close(c.send)
			delete(h.clients, c)
			if h.metrics != nil {
				h.metrics.WSSendFailures.Inc()
			}
		}
	}
	if h.metrics != nil && sent > 0 {
		h.metrics.WSMessagesSent.WithLabelValues("broadcast").Add(float64(sent))
	}
}

// Broadcast sends msg to every connected client. If coalesce is true (used
// for periodic snapshots like queue_stats_update), an identical payload to
// the last one sent for this message type is silently dropped.
func (h *Hub) Broadcast(msg Message, coalesce bool) {
	msg.Timestamp = config.Clock.Now()
	body, err := json.Marshal(msg)
	if err != nil {
		log.LogError("", "fanout: marshal broadcast failed", err, "type", msg.Type)
		return
	}

	if coalesce {
		hash := contentHash(msg.Data)
		h.lastHashMu.Lock()
		if h.lastHash[msg.Type] == hash {
			h.lastHashMu.Unlock()
			return
		}
		h.lastHash[msg.Type] = hash
		h.lastHashMu.Unlock()
	}

	select {
	case h.broadcast <- body:
	default:
		log.Log("", "fanout: broadcast channel full, dropping message", "type", msg.Type)
	}
}

func contentHash(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Register/Unregister expose the channels to Client for its own lifecycle.
func (h *Hub) Register(c *Client)   { h.register <- c }
func (h *Hub) Unregister(c *Client) { h.unregister <- c }
