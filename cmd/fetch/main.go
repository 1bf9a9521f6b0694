// Command fetch downloads a historical bar series for one instrument,
// optionally computes a set of technical indicators over it, and writes
// the results to CSV or JSON files.
//
// Examples:
//
//	fetch -symbol RELIANCE -exchange NSE -interval 1d -days 90
//	fetch -symbol 500325 -exchange BSE -interval 1d -days 30 -ind SMA:20,RSI:14
//	fetch -symbol TCS -interval 5m -days 5 -format json -out data/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"tickdata/config"
	"tickdata/internal/export"
	"tickdata/internal/fetch"
	"tickdata/internal/indicator"
	"tickdata/internal/logger"
	"tickdata/internal/model"
	"tickdata/pkg/smartapi"
)

func main() {
	log.SetFlags(0)

	var (
		configPath = flag.String("config", "config.yaml", "path to YAML config file")
		symbol     = flag.String("symbol", "", "trading symbol (NSE) or scrip code (BSE), required")
		exchange   = flag.String("exchange", "NSE", "exchange: NSE or BSE")
		interval   = flag.String("interval", "1d", "bar interval (1m 5m 15m 30m 1h 1d 1wk 1mo)")
		days       = flag.Int("days", 30, "number of days of history to fetch")
		indSpec    = flag.String("ind", "", "indicators, e.g. SMA:20,EMA:12,RSI:14,MACD,BB:20:2")
		format     = flag.String("format", "csv", "bar output format: csv or json")
		outDir     = flag.String("out", "data", "output directory")
		timeout    = flag.Duration("timeout", 60*time.Second, "overall fetch timeout")
	)
	flag.Parse()

	if *symbol == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fetch: config: %v", err)
	}
	logger.Init("fetch", slog.LevelWarn)

	ex, err := parseExchange(*exchange)
	if err != nil {
		log.Fatalf("fetch: %v", err)
	}
	iv, err := model.ParseInterval(*interval)
	if err != nil {
		log.Fatalf("fetch: %v", err)
	}
	reqs, err := parseIndicators(*indSpec)
	if err != nil {
		log.Fatalf("fetch: %v", err)
	}
	saver := export.NewSaver(*format)
	if saver == nil {
		log.Fatalf("fetch: unsupported format %q", *format)
	}

	fetcher := fetch.WithRetry(newBaseFetcher(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	end := time.Now()
	start := end.AddDate(0, 0, -*days)
	bars, err := fetcher.HistoricalSeries(ctx, *symbol, ex, iv, start, end)
	if err != nil {
		log.Fatalf("fetch: %s:%s: %v", ex, *symbol, err)
	}
	if len(bars) == 0 {
		log.Fatalf("fetch: no bars returned for %s:%s %s", ex, *symbol, iv)
	}
	log.Printf("fetched %d %s bars for %s:%s (%s .. %s)",
		len(bars), iv, ex, *symbol,
		bars[0].TS.Format("2006-01-02"), bars[len(bars)-1].TS.Format("2006-01-02"))

	os.MkdirAll(*outDir, 0o755)
	base := fmt.Sprintf("%s_%s_%s", ex, *symbol, iv)

	barPath := filepath.Join(*outDir, base+"."+saver.Extension())
	if err := saver.Save(bars, barPath); err != nil {
		log.Fatalf("fetch: save bars: %v", err)
	}
	log.Printf("wrote %s", barPath)

	if len(reqs) == 0 {
		return
	}

	series, err := indicator.Compute(bars, reqs)
	if err != nil {
		log.Fatalf("fetch: indicators: %v", err)
	}

	// Derived columns the indicator export always carries: average traded
	// volume and close-to-close change, fractional and absolute.
	if s, err := indicator.VolumeSMA(bars, indicator.DefaultVolumeSMAWindow); err == nil {
		series["VOLSMA_10"] = s
	}
	if s, err := indicator.PctChange(bars); err == nil {
		series["CHG_pct"] = s
	}
	if s, err := indicator.PriceDiff(bars); err == nil {
		series["CHG_abs"] = s
	}

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	indPath := filepath.Join(*outDir, base+"_indicators.csv")
	if err := export.SaveIndicatorCSV(indPath, bars, series, names); err != nil {
		log.Fatalf("fetch: save indicators: %v", err)
	}
	log.Printf("wrote %s (%s)", indPath, strings.Join(names, ", "))

	rep := indicator.DetectPatterns(bars)
	if len(rep.Trends) > 0 || len(rep.ResistanceLevels) > 0 || len(rep.SupportLevels) > 0 {
		log.Printf("patterns: trends=%v resistance=%.2f support=%.2f (last close %.2f)",
			rep.Trends, rep.ResistanceLevels, rep.SupportLevels, rep.CurrentPrice)
	}
}

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

func parseExchange(s string) (model.Exchange, error) {
	switch strings.ToUpper(s) {
	case "NSE":
		return model.NSE, nil
	case "BSE":
		return model.BSE, nil
	default:
		return "", fmt.Errorf("unknown exchange %q", s)
	}
}

// parseIndicators parses "SMA:20,EMA:12,RSI:14,MACD,BB:20:2" into
// indicator requests. An empty spec means no indicators.
func parseIndicators(spec string) ([]indicator.Request, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}

	var reqs []indicator.Request
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		kind := strings.ToUpper(parts[0])

		args := make([]int, 0, 2)
		for _, p := range parts[1:] {
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("indicator %q: bad parameter %q", entry, p)
			}
			args = append(args, n)
		}

		var req indicator.Request
		switch kind {
		case "SMA":
			req = indicator.Request{Kind: indicator.KindSMA, Window: argOr(args, 0, 20)}
		case "EMA":
			req = indicator.Request{Kind: indicator.KindEMA, Window: argOr(args, 0, 20)}
		case "RSI":
			req = indicator.Request{Kind: indicator.KindRSI, Period: argOr(args, 0, 14)}
		case "MACD":
			req = indicator.Request{Kind: indicator.KindMACD}
		case "BB", "BOLLINGER":
			req = indicator.Request{
				Kind:   indicator.KindBollinger,
				Window: argOr(args, 0, 20),
				K:      float64(argOr(args, 1, 2)),
			}
		default:
			return nil, fmt.Errorf("unknown indicator %q", kind)
		}
		reqs = append(reqs, req)
	}

	if err := indicator.ValidateRequests(reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

func argOr(args []int, i, fallback int) int {
	if i < len(args) {
		return args[i]
	}
	return fallback
}
