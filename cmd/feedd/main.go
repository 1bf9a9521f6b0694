// Command feedd is the streaming market data daemon: it polls realtime
// quotes (or ingests a WebSocket tick feed), aggregates ticks into
// interval bars, computes streaming indicators, and publishes the
// results to SQLite and Redis. A cron-scheduled backfill keeps the
// SQLite archive gap-free.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"tickdata/config"
	"tickdata/internal/api"
	"tickdata/internal/backfill"
	"tickdata/internal/fetch"
	"tickdata/internal/gateway"
	"tickdata/internal/indicator"
	"tickdata/internal/logger"
	"tickdata/internal/markethours"
	"tickdata/internal/metrics"
	"tickdata/internal/model"
	"tickdata/internal/stream"
	"tickdata/internal/stream/agg"
	"tickdata/internal/stream/bus"
	"tickdata/internal/stream/sessionclose"
	"tickdata/internal/stream/wsfeed"
	redisstore "tickdata/internal/store/redis"
	sqlitestore "tickdata/internal/store/sqlite"
	"tickdata/pkg/smartapi"
)

// defaultIndicatorRequests is the streaming indicator set computed for
// every instrument and interval.
var defaultIndicatorRequests = []indicator.Request{
	{Kind: indicator.KindSMA, Window: 20},
	{Kind: indicator.KindEMA, Window: 20},
	{Kind: indicator.KindRSI, Period: 14},
	{Kind: indicator.KindMACD},
	{Kind: indicator.KindBollinger, Window: 20, K: 2},
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedd] starting...")

	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[feedd] config load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[feedd] config invalid: %v", err)
	}

	logger.Init("feedd", parseLevel(cfg.LogLevel))

	instruments, _ := cfg.Instruments() // validated above
	intervals, _ := cfg.ParseIntervals()
	log.Printf("[feedd] %d instruments, intervals %v, provider %s",
		len(instruments), cfg.Intervals, cfg.Provider)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetSymbols(cfg.Symbols)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Fetcher ----
	fetcher := fetch.WithRetry(&instrumentedFetcher{
		inner:    newBaseFetcher(cfg),
		provider: cfg.Provider,
		prom:     prom,
	})

	// ---- SQLite writer (off hot path) ----
	os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.Database.SQLitePath})
	if err != nil {
		log.Fatalf("[feedd] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	sqlWriter.OnCommit = func(n int, d time.Duration) {
		prom.SQLiteCommitDur.Observe(d.Seconds())
	}
	health.SetSQLiteOK(true)
	log.Println("[feedd] sqlite writer ready")

	// ---- Redis writer behind a circuit breaker ----
	var (
		redisWriter *redisstore.Writer
		buffered    *redisstore.BufferedWriter
	)
	redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Printf("[feedd] WARNING: redis init failed: %v (continuing without redis)", err)
		health.SetRedisConnected(false)
	} else {
		health.SetRedisConnected(true)

		cb := redisstore.NewCircuitBreaker(5, 30*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			log.Printf("[feedd] redis circuit breaker %s -> %s", from, to)
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
		}
		buffered = redisstore.NewBufferedWriter(ctx, redisWriter, cb, 10000)
		buffered.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
		buffered.OnWrite = func(d time.Duration) { prom.RedisWriteDur.Observe(d.Seconds()) }
		log.Println("[feedd] redis writer ready")
	}

	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Pipeline channels ----
	tickCh := make(chan model.Tick, 10000)
	barCh := make(chan model.Bar, 5000)

	// ---- Aggregators: one per interval, fed by a tick distributor ----
	aggInputs := make([]chan model.Tick, len(intervals))
	aggs := make([]*agg.Aggregator, len(intervals))
	for i, iv := range intervals {
		aggInputs[i] = make(chan model.Tick, 5000)
		a := agg.New(iv)
		a.OnDroppedTick = func() { prom.DroppedTicks.Inc() }
		aggs[i] = a
		go a.Run(ctx, aggInputs[i], barCh)
	}

	// ---- Session close: flush open bars once the feed settles ----
	closeWatcher := sessionclose.New(func() {
		prom.SessionFlushes.Inc()
		for _, a := range aggs {
			a.FlushNow()
		}
	})
	go closeWatcher.Run(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-tickCh:
				if !ok {
					return
				}
				prom.TicksTotal.Inc()
				health.SetLastTickTime(time.Now())
				closeWatcher.Observe()
				for _, ch := range aggInputs {
					select {
					case ch <- tick:
					default:
						prom.DroppedTicks.Inc()
					}
				}
			}
		}
	}()

	// ---- Bar meter feeding the fan-out ----
	meteredBarCh := make(chan model.Bar, 5000)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case bar, ok := <-barCh:
				if !ok {
					return
				}
				prom.BarsTotal.WithLabelValues(string(bar.Interval)).Inc()
				select {
				case meteredBarCh <- bar:
				default:
				}
			}
		}
	}()

	// ---- Fan-out: SQLite + Redis + indicator engine ----
	fanout := bus.New(5000)
	fanout.OnDrop = func(subscriberIdx int) {
		prom.FanoutDropsTotal.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}

	sqliteBarCh := fanout.Subscribe()
	var redisBarCh <-chan model.Bar
	if buffered != nil {
		redisBarCh = fanout.Subscribe()
	}
	indicatorBarCh := fanout.Subscribe()

	go fanout.Run(ctx, meteredBarCh)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for i, s := range fanout.ChannelStats() {
					if s.Cap > 0 {
						pct := float64(s.Len) / float64(s.Cap) * 100
						prom.ChannelSaturationPct.WithLabelValues("fanout_" + strconv.Itoa(i)).Set(pct)
					}
				}
			}
		}
	}()

	go sqlWriter.Run(ctx, sqliteBarCh)
	if buffered != nil {
		go buffered.Run(ctx, redisBarCh)
	}

	// ---- Streaming indicator engine ----
	engine := indicator.NewStreamEngine(defaultIndicatorRequests)
	engine.OnProcess = func(n int, d time.Duration) {
		prom.IndicatorDur.Observe(d.Seconds())
		prom.IndicatorsTotal.Add(float64(n))
	}
	batchCh := make(chan []model.IndicatorResult, 5000)
	go engine.Run(ctx, indicatorBarCh, batchCh)

	if redisWriter != nil {
		go redisWriter.RunIndicators(ctx, batchCh)
	} else {
		go drainResults(ctx, batchCh)
	}

	// ---- Quote cache path ----
	quoteCh := make(chan model.Quote, 1000)
	if buffered != nil {
		go buffered.RunQuotes(ctx, quoteCh)
	} else {
		go drainQuotes(ctx, quoteCh)
	}

	// ---- Market state gauge ----
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			if markethours.IsMarketOpen(time.Now()) {
				prom.MarketState.Set(1)
			} else {
				prom.MarketState.Set(0)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	// ---- Tick source: WS feed or quote poller ----
	if cfg.Feed.WSURL != "" {
		ingest, err := wsfeed.New(wsfeed.Config{URL: cfg.Feed.WSURL})
		if err != nil {
			log.Fatalf("[feedd] wsfeed init failed: %v", err)
		}
		ingest.OnReconnect = func() { prom.WSReconnects.Inc() }
		health.SetFeedConnected(true)

		go func() {
			if err := ingest.Start(ctx, tickCh); err != nil {
				log.Printf("[feedd] wsfeed error: %v", err)
			}
			health.SetFeedConnected(false)
		}()

		// Sample ring buffer overflow into the counter.
		go func() {
			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()
			var seen uint64
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if total := ingest.Overflow(); total > seen {
						prom.RingBufOverflow.Add(float64(total - seen))
						seen = total
					}
				}
			}
		}()

		log.Printf("[feedd] tick source: websocket feed %s", cfg.Feed.WSURL)
	} else {
		pollInstruments := make([]stream.Instrument, len(instruments))
		for i, inst := range instruments {
			pollInstruments[i] = stream.Instrument{Symbol: inst.Symbol, Exchange: inst.Exchange}
		}

		poller := stream.NewPoller(fetcher, pollInstruments, cfg.Feed.PollInterval)
		poller.OnQuote = func(q model.Quote) {
			prom.QuotePolls.Inc()
			select {
			case quoteCh <- q:
			default:
			}
		}
		poller.OnError = func(inst stream.Instrument, err error) {
			prom.QuotePollErrors.Inc()
			log.Printf("[feedd] poll %s:%s: %v", inst.Exchange, inst.Symbol, err)
		}
		health.SetFeedConnected(true)
		go poller.Run(ctx, tickCh)

		log.Printf("[feedd] tick source: quote poller every %s (market hours only)", cfg.Feed.PollInterval)
	}

	// ---- Backfill: once at startup, then on the cron schedule ----
	bfInstruments := make([]backfill.Instrument, len(instruments))
	for i, inst := range instruments {
		bfInstruments[i] = backfill.Instrument{Symbol: inst.Symbol, Exchange: inst.Exchange}
	}
	bf := backfill.New(fetcher, sqlWriter, backfill.Config{
		Instruments:  bfInstruments,
		Intervals:    intervals,
		LookbackDays: cfg.Backfill.LookbackDays,
	})
	bf.OnBatch = func(inst backfill.Instrument, interval model.Interval, n int) {
		prom.BackfillBars.Add(float64(n))
	}

	go func() {
		if err := bf.Run(ctx); err != nil {
			log.Printf("[feedd] startup backfill: %v", err)
		}
	}()

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.Backfill.Cron, func() {
		log.Println("[feedd] scheduled backfill starting")
		if err := bf.Run(ctx); err != nil {
			log.Printf("[feedd] scheduled backfill: %v", err)
		}
	}); err != nil {
		log.Fatalf("[feedd] invalid backfill cron %q: %v", cfg.Backfill.Cron, err)
	}
	sched.Start()
	defer sched.Stop()

	// ---- HTTP API and WebSocket gateway ----
	var apiSrv *http.Server
	if cfg.APIAddr != "" {
		sqlReader, err := sqlitestore.NewReader(cfg.Database.SQLitePath)
		if err != nil {
			log.Fatalf("[feedd] sqlite reader init failed: %v", err)
		}
		defer sqlReader.Close()

		hub := gateway.NewHub()
		go func() {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					prom.GatewayClients.Set(float64(hub.ClientCount()))
				}
			}
		}()

		var redisReader *redisstore.Reader
		if redisWriter != nil {
			host, _ := os.Hostname()
			redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
				Addr:          cfg.Redis.Addr,
				Password:      cfg.Redis.Password,
				DB:            cfg.Redis.DB,
				ConsumerGroup: "gateway",
				ConsumerName:  host,
			})
			if err != nil {
				log.Printf("[feedd] WARNING: redis reader init failed: %v (gateway serves without live feed)", err)
			} else {
				defer redisReader.Close()
				gwInstruments := make([]gateway.Instrument, len(instruments))
				for i, inst := range instruments {
					gwInstruments[i] = gateway.Instrument{Symbol: inst.Symbol, Exchange: inst.Exchange}
				}
				feed := gateway.NewFeed(redisReader, hub)
				go func() {
					if err := feed.Run(ctx, gateway.BarStreams(gwInstruments, intervals)); err != nil && ctx.Err() == nil {
						log.Printf("[feedd] gateway feed: %v", err)
					}
				}()
			}
		}

		apiSrv = &http.Server{
			Addr:    cfg.APIAddr,
			Handler: api.NewServer(sqlReader, redisReader, hub).Router(),
		}
		go func() {
			log.Printf("[feedd] api listening on %s", cfg.APIAddr)
			if err := apiSrv.ListenAndServe(); err != http.ErrServerClosed {
				log.Printf("[feedd] api server error: %v", err)
			}
		}()
	}

	log.Printf("[feedd] pipeline ready - %s", markethours.StatusString("NSE", time.Now()))

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[feedd] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	if apiSrv != nil {
		apiSrv.Shutdown(shutdownCtx)
	}

	if redisWriter != nil {
		redisWriter.Close()
	}

	log.Println("[feedd] shutdown complete.")
}

// newBaseFetcher builds the provider-specific fetcher.
func newBaseFetcher(cfg *config.Config) fetch.Fetcher {
	if cfg.Provider == "smartapi" {
		client := smartapi.New(smartapi.Config{
			APIKey:     cfg.SmartAPI.APIKey,
			ClientCode: cfg.SmartAPI.ClientCode,
			Password:   cfg.SmartAPI.Password,
			TOTPSecret: cfg.SmartAPI.TOTPSecret,
		})
		return fetch.NewSmartAPIFetcher(client, cfg.SmartAPI.Tokens)
	}
	return fetch.NewYahooFetcher(cfg.Proxy)
}

// instrumentedFetcher records fetch latency and error kinds.
type instrumentedFetcher struct {
	inner    fetch.Fetcher
	provider string
	prom     *metrics.Metrics
}

func (f *instrumentedFetcher) HistoricalSeries(ctx context.Context, symbol string, exchange model.Exchange,
	interval model.Interval, start, end time.Time) ([]model.Bar, error) {
	t0 := time.Now()
	bars, err := f.inner.HistoricalSeries(ctx, symbol, exchange, interval, start, end)
	f.observe(t0, err)
	return bars, err
}

func (f *instrumentedFetcher) RealtimeQuote(ctx context.Context, symbol string, exchange model.Exchange) (model.Quote, error) {
	t0 := time.Now()
	q, err := f.inner.RealtimeQuote(ctx, symbol, exchange)
	f.observe(t0, err)
	return q, err
}

func (f *instrumentedFetcher) observe(t0 time.Time, err error) {
	f.prom.FetchDur.WithLabelValues(f.provider).Observe(time.Since(t0).Seconds())
	if err != nil {
		f.prom.FetchErrors.WithLabelValues(f.provider, errKind(err)).Inc()
	}
}

func errKind(err error) string {
	switch {
	case errors.Is(err, fetch.ErrNetwork):
		return "network"
	case errors.Is(err, fetch.ErrSymbolNotFound):
		return "symbol_not_found"
	case errors.Is(err, fetch.ErrMarketClosed):
		return "market_closed"
	default:
		return "other"
	}
}

func drainResults(ctx context.Context, ch <-chan []model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
		}
	}
}

func drainQuotes(ctx context.Context, ch <-chan model.Quote) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
		}
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
