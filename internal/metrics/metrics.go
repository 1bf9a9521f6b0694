// Package metrics exposes Prometheus metrics and a /healthz endpoint
// for the feed daemon.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the feed pipeline.
type Metrics struct {
	QuotePolls      prometheus.Counter
	QuotePollErrors prometheus.Counter
	TicksTotal      prometheus.Counter
	BarsTotal       *prometheus.CounterVec // labels: interval
	DroppedTicks    prometheus.Counter
	WSReconnects    prometheus.Counter

	FetchDur        *prometheus.HistogramVec // labels: provider
	FetchErrors     *prometheus.CounterVec   // labels: provider, kind
	BackfillBars    prometheus.Counter
	IndicatorsTotal prometheus.Counter
	IndicatorDur    prometheus.Histogram

	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram

	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name
	RingBufOverflow      prometheus.Counter

	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	MarketState    prometheus.Gauge   // 0=closed, 1=open
	SessionFlushes prometheus.Counter
	GatewayClients prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		QuotePolls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickdata_quote_polls_total",
			Help: "Total realtime quote polls issued",
		}),
		QuotePollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickdata_quote_poll_errors_total",
			Help: "Quote polls that returned an error",
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickdata_ticks_total",
			Help: "Total ticks emitted into the pipeline",
		}),
		BarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickdata_bars_total",
			Help: "Total bars emitted (by interval)",
		}, []string{"interval"}),
		DroppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickdata_dropped_ticks_total",
			Help: "Ticks dropped (late or channel full)",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickdata_ws_reconnects_total",
			Help: "Total WebSocket feed reconnection attempts",
		}),

		FetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tickdata_fetch_duration_seconds",
			Help:    "Market data fetch latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickdata_fetch_errors_total",
			Help: "Fetch failures (by provider and error kind)",
		}, []string{"provider", "kind"}),
		BackfillBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickdata_backfill_bars_total",
			Help: "Historical bars fetched during backfill",
		}),
		IndicatorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickdata_indicators_total",
			Help: "Total indicator values computed",
		}),
		IndicatorDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tickdata_indicator_compute_duration_seconds",
			Help:    "Streaming indicator update latency per bar",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tickdata_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tickdata_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickdata_fanout_drops_total",
			Help: "Bars dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tickdata_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickdata_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (dropped ticks)",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tickdata_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickdata_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickdata_redis_buffered_writes_total",
			Help: "Writes buffered locally while the Redis circuit was open",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tickdata_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
		SessionFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickdata_session_flushes_total",
			Help: "End-of-session flushes of open aggregator bars",
		}),
		GatewayClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tickdata_gateway_clients",
			Help: "Connected WebSocket gateway clients",
		}),
	}

	prometheus.MustRegister(
		m.QuotePolls,
		m.QuotePollErrors,
		m.TicksTotal,
		m.BarsTotal,
		m.DroppedTicks,
		m.WSReconnects,
		m.FetchDur,
		m.FetchErrors,
		m.BackfillBars,
		m.IndicatorsTotal,
		m.IndicatorDur,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.RingBufOverflow,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.MarketState,
		m.SessionFlushes,
		m.GatewayClients,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Symbols        []string  `json:"symbols"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(symbols []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		FeedConnected   bool     `json:"feed_connected"`
		LastTickTime    string   `json:"last_tick_time"`
		TickAge         string   `json:"tick_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		Symbols         []string `json:"symbols"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Symbols:         h.Symbols,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
