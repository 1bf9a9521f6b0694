package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	subMu sync.RWMutex
	subs  map[string]bool // topic -> subscribed
}

// clientCommand is the message clients send to manage subscriptions.
//
//	{"action":"subscribe","topics":["bar:1m:NSE:RELIANCE"]}
//	{"action":"unsubscribe","topics":[...]}
//	{"action":"replay","topic":"bar:1m:NSE:RELIANCE","since":42}
type clientCommand struct {
	Action string   `json:"action"`
	Topics []string `json:"topics,omitempty"`
	Topic  string   `json:"topic,omitempty"`
	Since  int64    `json:"since,omitempty"`
}

// ServeWS upgrades an HTTP request and registers the client on the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade: %v", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]bool),
	}
	h.addClient(client)

	go client.writePump()
	go client.readPump()
}

func (c *Client) subscribed(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.subs[topic]
}

func (c *Client) handleCommand(msg []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(msg, &cmd); err != nil {
		log.Printf("[gateway] bad client command: %v", err)
		return
	}

	switch cmd.Action {
	case "subscribe":
		c.subMu.Lock()
		for _, topic := range cmd.Topics {
			c.subs[topic] = true
		}
		c.subMu.Unlock()
		// Prime each new subscription with the latest value.
		for _, topic := range cmd.Topics {
			if env := c.hub.Latest(topic); env != nil {
				select {
				case c.send <- env:
				default:
				}
			}
		}

	case "unsubscribe":
		c.subMu.Lock()
		for _, topic := range cmd.Topics {
			delete(c.subs, topic)
		}
		c.subMu.Unlock()

	case "replay":
		for _, env := range c.hub.Replay(cmd.Topic, cmd.Since) {
			select {
			case c.send <- env:
			default:
				return // client can't keep up, stop replaying
			}
		}

	default:
		log.Printf("[gateway] unknown client action %q", cmd.Action)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleCommand(msg)
	}
}
