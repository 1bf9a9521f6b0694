// Package wsfeed is a WebSocket ingest client for plain-JSON tick
// feeds, such as the one cmd/ticksim serves. Messages on the wire are
// model.Tick encoded as JSON:
//
//	{"symbol":"RELIANCE","exchange":"NSE","price":2940.55,"qty":10,"ts":"..."}
//
// It is a drop-in alternative to the quote poller for environments that
// have a push feed available.
package wsfeed

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"time"

	"tickdata/internal/model"
	"tickdata/internal/ringbuf"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the WS ingest.
type Config struct {
	// URL of the tick WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration

	// RingSize is the capacity of the SPSC ring between the socket
	// reader and the downstream channel. Defaults to 4096.
	RingSize int
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.RingSize == 0 {
		c.RingSize = 4096
	}
}

// Ingest connects to a JSON tick server and pushes model.Tick values
// into tickCh, reconnecting with backoff on disconnect. The socket
// reader never blocks on the consumer; ticks flow through a lock-free
// SPSC ring and a slow consumer drops the oldest unread ticks.
type Ingest struct {
	cfg  Config
	ring *ringbuf.Ring

	// Optional hook, called each time a reconnection happens.
	OnReconnect func()
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Ingest{cfg: cfg, ring: ringbuf.New(cfg.RingSize)}, nil
}

// Overflow returns the number of ticks dropped because the ring was full.
func (ing *Ingest) Overflow() uint64 {
	return ing.ring.Overflow()
}

// Start connects and streams ticks into tickCh. Blocks until ctx is
// cancelled. Reconnects automatically on disconnect.
func (ing *Ingest) Start(ctx context.Context, tickCh chan<- model.Tick) error {
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		ing.drain(ctx, tickCh)
	}()
	defer func() { <-drainDone }()

	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx)
		if err == nil {
			return nil
		}

		log.Printf("[wsfeed] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// drain pops ticks from the ring onto tickCh until ctx is cancelled.
func (ing *Ingest) drain(ctx context.Context, tickCh chan<- model.Tick) {
	idle := time.NewTicker(time.Millisecond)
	defer idle.Stop()

	for {
		tick, ok := ing.ring.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-idle.C:
			}
			continue
		}
		select {
		case tickCh <- tick:
		case <-ctx.Done():
			return
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect
// or ctx cancellation.
func (ing *Ingest) runOnce(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[wsfeed] connected to %s", ing.cfg.URL)

	// Context watcher closes the connection so ReadMessage unblocks.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var tick model.Tick
		if err := json.Unmarshal(raw, &tick); err != nil {
			log.Printf("[wsfeed] parse error: %v (raw: %s)", err, raw)
			continue
		}

		if tick.Symbol == "" {
			log.Printf("[wsfeed] skipping tick with empty symbol")
			continue
		}
		if tick.TS.IsZero() {
			tick.TS = time.Now()
		}

		if !ing.ring.Push(tick) {
			log.Println("[wsfeed] ring full, dropping tick")
		}
	}
}
