// Package gateway fans live market data out to WebSocket clients. It
// consumes the Redis bar streams through a consumer group and the
// indicator/quote PubSub channels, wraps each payload in a sequenced
// envelope, and broadcasts it to subscribed clients. A per-topic replay
// buffer lets clients backfill short gaps after a reconnect.
package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Envelope is the wire format sent to WebSocket clients. Seq is
// monotonic per topic so clients can detect gaps.
type Envelope struct {
	Type    string          `json:"type"` // "data"
	Topic   string          `json:"topic"`
	Seq     int64           `json:"seq"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// Hub manages WebSocket clients and topic fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	// Per-topic state: latest envelope, monotonic seq, replay buffer.
	latest  map[string][]byte
	seqs    map[string]int64
	replays map[string]*ReplayBuffer

	// ReplayCapacity is the per-topic replay buffer size. Set before
	// the first Broadcast; defaults to 500.
	ReplayCapacity int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string][]byte),
		seqs:    make(map[string]int64),
		replays: make(map[string]*ReplayBuffer),
	}
}

// Broadcast wraps payload in an envelope and sends it to every client
// subscribed to topic. Slow clients drop the message.
func (h *Hub) Broadcast(topic string, payload []byte) {
	h.mu.Lock()
	h.seqs[topic]++
	seq := h.seqs[topic]

	env, err := json.Marshal(Envelope{
		Type:    "data",
		Topic:   topic,
		Seq:     seq,
		TS:      time.Now().UTC(),
		Payload: json.RawMessage(payload),
	})
	if err != nil {
		h.mu.Unlock()
		log.Printf("[gateway] envelope marshal for %s: %v", topic, err)
		return
	}

	h.latest[topic] = env
	rb, ok := h.replays[topic]
	if !ok {
		rb = NewReplayBuffer(h.ReplayCapacity)
		h.replays[topic] = rb
	}
	rb.Push(seq, env)

	for client := range h.clients {
		if client.subscribed(topic) {
			select {
			case client.send <- env:
			default: // slow client, drop
			}
		}
	}
	h.mu.Unlock()
}

// Latest returns the last envelope broadcast on topic, or nil.
func (h *Hub) Latest(topic string) []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest[topic]
}

// Replay returns buffered envelopes on topic with seq > since, oldest
// first. Used for gap backfill after reconnect.
func (h *Hub) Replay(topic string, since int64) [][]byte {
	h.mu.RLock()
	rb := h.replays[topic]
	h.mu.RUnlock()
	if rb == nil {
		return nil
	}
	return rb.Since(since)
}

// Seq returns the current sequence number for topic.
func (h *Hub) Seq(topic string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seqs[topic]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("[gateway] client connected (%d total)", count)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("[gateway] client disconnected (%d total)", count)
}
