package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"tickdata/internal/model"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Fetcher using the Yahoo Finance chart API.
// NSE symbols get a .NS suffix, BSE symbols .BO (scrip codes resolved
// to trading symbols first).
type YahooFetcher struct {
	Client  *http.Client
	BaseURL string
}

// NewYahooFetcher creates a Yahoo Finance fetcher, optionally routed
// through an HTTP proxy.
func NewYahooFetcher(proxyURL string) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooFetcher{
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		BaseURL: defaultYahooBaseURL,
	}
}

// yahooChart is the response structure from the Yahoo chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice  float64 `json:"regularMarketPrice"`
				ChartPreviousClose  float64 `json:"chartPreviousClose"`
				RegularMarketVolume int64   `json:"regularMarketVolume"`
				RegularMarketTime   int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func (f *YahooFetcher) fetchChart(ctx context.Context, ticker string, query url.Values) (*yahooChart, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", f.BaseURL, url.PathEscape(ticker), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo fetch: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo read body: %v", ErrNetwork, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, ticker)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: yahoo status %d", ErrNetwork, resp.StatusCode)
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, ticker)
		}
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, ticker)
	}
	return &chart, nil
}

// HistoricalSeries fetches OHLCV bars via the chart API. Null bars
// (holidays, halts) are skipped; output is ascending by timestamp.
func (f *YahooFetcher) HistoricalSeries(ctx context.Context, symbol string, exchange model.Exchange,
	interval model.Interval, start, end time.Time) ([]model.Bar, error) {

	ticker := exchange.YahooTicker(symbol)
	q := url.Values{}
	q.Set("interval", string(interval))
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	q.Set("period2", fmt.Sprintf("%d", end.Unix()))
	q.Set("events", "history")

	chart, err := f.fetchChart(ctx, ticker, q)
	if err != nil {
		return nil, err
	}

	result := chart.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	sym := symbol
	if exchange == model.BSE {
		sym = model.ResolveBSEScripCode(symbol)
	}

	bars := make([]model.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o := toFloat(quote.Open[i])
		h := toFloat(quote.High[i])
		l := toFloat(quote.Low[i])
		c := toFloat(quote.Close[i])
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // skip null bars (holidays etc.)
		}
		bars = append(bars, model.Bar{
			Symbol:   sym,
			Exchange: exchange,
			Interval: interval,
			TS:       time.Unix(ts, 0),
			Open:     o,
			High:     h,
			Low:      l,
			Close:    c,
			Volume:   int64(toFloat(quote.Volume[i])),
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].TS.Before(bars[j].TS) })
	return bars, nil
}

// RealtimeQuote fetches the latest quote. The chart meta carries the
// last price and previous close; the day's OHLC comes from the 1m bars.
func (f *YahooFetcher) RealtimeQuote(ctx context.Context, symbol string, exchange model.Exchange) (model.Quote, error) {
	ticker := exchange.YahooTicker(symbol)
	q := url.Values{}
	q.Set("interval", "1m")
	q.Set("range", "1d")

	chart, err := f.fetchChart(ctx, ticker, q)
	if err != nil {
		return model.Quote{}, err
	}

	result := chart.Chart.Result[0]
	meta := result.Meta
	if meta.RegularMarketPrice == 0 {
		return model.Quote{}, fmt.Errorf("%w: no price for %s", ErrSymbolNotFound, ticker)
	}

	sym := symbol
	if exchange == model.BSE {
		sym = model.ResolveBSEScripCode(symbol)
	}

	quote := model.Quote{
		Symbol:    sym,
		Exchange:  exchange,
		LTP:       meta.RegularMarketPrice,
		PrevClose: meta.ChartPreviousClose,
		Volume:    meta.RegularMarketVolume,
		TS:        time.Unix(meta.RegularMarketTime, 0),
	}
	if quote.TS.IsZero() || meta.RegularMarketTime == 0 {
		quote.TS = time.Now()
	}

	// Day OHLC from the intraday bars.
	if len(result.Timestamp) > 0 && len(result.Indicators.Quote) > 0 {
		bars := result.Indicators.Quote[0]
		for i := range result.Timestamp {
			o, h, l := toFloat(bars.Open[i]), toFloat(bars.High[i]), toFloat(bars.Low[i])
			if o == 0 && h == 0 && l == 0 {
				continue
			}
			if quote.Open == 0 {
				quote.Open = o
			}
			if h > quote.High {
				quote.High = h
			}
			if quote.Low == 0 || (l > 0 && l < quote.Low) {
				quote.Low = l
			}
		}
	}
	return quote, nil
}
