// Package api serves the read-side HTTP surface: bar history from
// SQLite, cached quotes and recent bars from Redis, and the WebSocket
// stream endpoint.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"tickdata/internal/gateway"
	"tickdata/internal/markethours"
	"tickdata/internal/model"
	redisstore "tickdata/internal/store/redis"
	sqlitestore "tickdata/internal/store/sqlite"
)

// Server bundles the data sources behind the HTTP handlers. Redis is
// optional; endpoints that need it return 503 when it is nil.
type Server struct {
	bars  *sqlitestore.Reader
	redis *redisstore.Reader
	hub   *gateway.Hub
	start time.Time
}

// NewServer creates the API server.
func NewServer(bars *sqlitestore.Reader, redis *redisstore.Reader, hub *gateway.Hub) *Server {
	return &Server{bars: bars, redis: redis, hub: hub, start: time.Now()}
}

// Router sets up the HTTP routes.
func (s *Server) Router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/bars", s.handleBars)
	mux.HandleFunc("/api/v1/recent", s.handleRecent)
	mux.HandleFunc("/api/v1/quote", s.handleQuote)
	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.ServeWS)
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(now.Sub(s.start).Seconds()),
		"market":         markethours.StatusString("NSE", now),
		"clients":        clientCount(s.hub),
	})
}

// handleBars serves stored history:
// GET /api/v1/bars?symbol=RELIANCE&exchange=NSE&interval=1m&from=RFC3339&to=RFC3339
func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	exchange, symbol, interval, ok := instrumentParams(w, r)
	if !ok {
		return
	}

	now := time.Now().UTC()
	from, to := now.Add(-24*time.Hour), now
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "from must be RFC3339")
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "to must be RFC3339")
			return
		}
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	bars, err := s.bars.ReadBars(exchange, symbol, interval, from, to)
	if err != nil {
		log.Printf("[api] read bars %s:%s: %v", exchange, symbol, err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	writeBars(w, bars)
}

// handleRecent serves the freshest bars from the Redis stream, falling
// back to SQLite when Redis is unavailable:
// GET /api/v1/recent?symbol=RELIANCE&exchange=NSE&interval=1m&count=50
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	exchange, symbol, interval, ok := instrumentParams(w, r)
	if !ok {
		return
	}

	count := int64(50)
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "count must be 1..1000")
			return
		}
		count = n
	}

	if s.redis != nil {
		bars, err := s.redis.RecentBars(r.Context(), exchange, symbol, interval, count)
		if err == nil {
			writeBars(w, bars)
			return
		}
		log.Printf("[api] redis recent bars %s:%s: %v", exchange, symbol, err)
	}

	bars, err := s.bars.ReadRecentBars(exchange, symbol, interval, int(count))
	if err != nil {
		log.Printf("[api] sqlite recent bars %s:%s: %v", exchange, symbol, err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	writeBars(w, bars)
}

// handleQuote serves the cached latest quote:
// GET /api/v1/quote?symbol=RELIANCE&exchange=NSE
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	exchange, err := model.ParseExchange(orDefault(r.URL.Query().Get("exchange"), "NSE"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	if s.redis == nil {
		writeError(w, http.StatusServiceUnavailable, "quote cache unavailable")
		return
	}

	quote, err := s.redis.LatestQuote(r.Context(), exchange, symbol)
	if err != nil {
		log.Printf("[api] latest quote %s:%s: %v", exchange, symbol, err)
		writeError(w, http.StatusInternalServerError, "cache error")
		return
	}
	if quote == nil {
		writeError(w, http.StatusNotFound, "no cached quote")
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func instrumentParams(w http.ResponseWriter, r *http.Request) (model.Exchange, string, model.Interval, bool) {
	q := r.URL.Query()

	symbol := q.Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return "", "", "", false
	}
	exchange, err := model.ParseExchange(orDefault(q.Get("exchange"), "NSE"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", "", false
	}
	interval, err := model.ParseInterval(orDefault(q.Get("interval"), "1m"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", "", false
	}
	return exchange, symbol, interval, true
}

func writeBars(w http.ResponseWriter, bars []model.Bar) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(bars),
		"bars":  bars,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func clientCount(h *gateway.Hub) int {
	if h == nil {
		return 0
	}
	return h.ClientCount()
}
