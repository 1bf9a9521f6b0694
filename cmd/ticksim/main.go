// Command ticksim is a demo WebSocket tick server. It broadcasts
// simulated NSE/BSE ticks so the feed daemon can run without market
// access or broker credentials.
//
// Tick JSON shape is identical to model.Tick:
//
//	{"symbol":"RELIANCE","exchange":"NSE","price":2940.55,"qty":10,"ts":"..."}
//
// Config (env vars):
//
//	TICKSIM_ADDR         - listen address (default: ":9001")
//	TICKSIM_SYMBOLS      - comma-separated SYMBOL:EXCHANGE pairs
//	                       (default: "RELIANCE:NSE,TCS:NSE,INFY:NSE")
//	TICKSIM_INTERVAL_MS  - broadcast interval milliseconds (default: "100")
package main

import (
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tickdata/internal/model"
)

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol   string
	Exchange model.Exchange
	Price    float64
}

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop tick
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[ticksim] upgrade error: %v", err)
			return
		}
		log.Printf("[ticksim] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[ticksim] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump: sends tick JSON to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// walkPrice applies a tiny random walk (up to ±0.1%) per tick.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	next := price * (1 + pct)
	if next < 1 {
		next = 1
	}
	// quote to paise resolution
	return float64(int64(next*100)) / 100
}

func runGenerator(h *hub, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for i := range instruments {
			instruments[i].Price = walkPrice(instruments[i].Price)
			tick := model.Tick{
				Symbol:   instruments[i].Symbol,
				Exchange: instruments[i].Exchange,
				Price:    instruments[i].Price,
				Qty:      int64(rand.Intn(100) + 1),
				TS:       time.Now().UTC(),
			}
			h.broadcast(tick.JSON())
		}
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[ticksim] starting demo tick server...")

	addr := envOrDefault("TICKSIM_ADDR", ":9001")
	symbolsEnv := envOrDefault("TICKSIM_SYMBOLS", "RELIANCE:NSE,TCS:NSE,INFY:NSE")
	intervalMs := envIntOrDefault("TICKSIM_INTERVAL_MS", 100)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[ticksim] no instruments configured via TICKSIM_SYMBOLS")
	}
	log.Printf("[ticksim] instruments: %+v", instruments)
	log.Printf("[ticksim] broadcast interval: %dms", intervalMs)

	h := newHub()
	go runGenerator(h, instruments, intervalMs)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"ticksim"}`)
	})

	log.Printf("[ticksim] listening on %s (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[ticksim] server error: %v", err)
	}
}

func parseInstruments(s string) []instrument {
	// Plausible starting prices in rupees.
	defaultPrices := map[string]float64{
		"RELIANCE": 2940.55,
		"TCS":      4102.30,
		"INFY":     1593.85,
		"SBIN":     811.40,
		"HDFCBANK": 1655.00,
	}

	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		seg := strings.SplitN(part, ":", 2)
		if len(seg) != 2 {
			log.Printf("[ticksim] skipping invalid symbol spec: %q", part)
			continue
		}
		symbol, exchange := strings.TrimSpace(seg[0]), strings.TrimSpace(seg[1])
		price := defaultPrices[symbol]
		if price == 0 {
			price = 1000.00
		}
		result = append(result, instrument{
			Symbol:   symbol,
			Exchange: model.Exchange(strings.ToUpper(exchange)),
			Price:    price,
		})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
