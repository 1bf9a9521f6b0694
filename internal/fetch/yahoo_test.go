package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tickdata/internal/model"
)

func newTestYahoo(t *testing.T, handler http.HandlerFunc) *YahooFetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := NewYahooFetcher("")
	f.BaseURL = srv.URL
	return f
}

const chartBody = `{"chart":{"result":[{
  "meta":{"regularMarketPrice":2940.55,"chartPreviousClose":2895.0,
          "regularMarketVolume":123456,"regularMarketTime":1770003900},
  "timestamp":[1769995500,1769995560,1769995620],
  "indicators":{"quote":[{
    "open":[2900.0,null,2910.0],
    "high":[2905.0,null,2915.0],
    "low":[2898.0,null,2908.0],
    "close":[2902.0,null,2912.0],
    "volume":[1000,null,1200]
  }]}}],"error":null}}`

func TestYahooHistoricalSeries(t *testing.T) {
	var gotPath string
	f := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.URL.Query().Get("interval") != "1m" {
			t.Errorf("interval = %q", r.URL.Query().Get("interval"))
		}
		fmt.Fprint(w, chartBody)
	})

	bars, err := f.HistoricalSeries(context.Background(), "RELIANCE", model.NSE,
		model.Interval1m, time.Unix(1769995500, 0), time.Unix(1769995680, 0))
	if err != nil {
		t.Fatalf("HistoricalSeries: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/RELIANCE.NS") {
		t.Errorf("request path %q, want .NS suffix", gotPath)
	}
	// null middle bar is skipped
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if bars[0].Close != 2902.0 || bars[1].Close != 2912.0 {
		t.Errorf("unexpected closes: %v %v", bars[0].Close, bars[1].Close)
	}
	if !bars[0].TS.Before(bars[1].TS) {
		t.Error("bars not ascending")
	}
	if bars[0].Exchange != model.NSE || bars[0].Interval != model.Interval1m {
		t.Errorf("metadata not set: %+v", bars[0])
	}
}

func TestYahooBSEScripCodeResolved(t *testing.T) {
	var gotPath string
	f := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, chartBody)
	})

	bars, err := f.HistoricalSeries(context.Background(), "500325", model.BSE,
		model.Interval1d, time.Unix(0, 0), time.Now())
	if err != nil {
		t.Fatalf("HistoricalSeries: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/RELIANCE.BO") {
		t.Errorf("request path %q, want RELIANCE.BO", gotPath)
	}
	if bars[0].Symbol != "RELIANCE" {
		t.Errorf("symbol = %q, want resolved trading symbol", bars[0].Symbol)
	}
}

func TestYahooSymbolNotFound(t *testing.T) {
	f := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,
			"error":{"code":"Not Found","description":"No data found"}}}`)
	})

	_, err := f.HistoricalSeries(context.Background(), "NOSUCH", model.NSE,
		model.Interval1d, time.Unix(0, 0), time.Now())
	if !errors.Is(err, ErrSymbolNotFound) {
		t.Fatalf("err = %v, want ErrSymbolNotFound", err)
	}
}

func TestYahooServerErrorIsNetwork(t *testing.T) {
	f := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	})

	_, err := f.RealtimeQuote(context.Background(), "TCS", model.NSE)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestYahooRealtimeQuote(t *testing.T) {
	f := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartBody)
	})

	q, err := f.RealtimeQuote(context.Background(), "RELIANCE", model.NSE)
	if err != nil {
		t.Fatalf("RealtimeQuote: %v", err)
	}
	if q.LTP != 2940.55 {
		t.Errorf("LTP = %v", q.LTP)
	}
	if q.PrevClose != 2895.0 {
		t.Errorf("PrevClose = %v", q.PrevClose)
	}
	if q.Open != 2900.0 {
		t.Errorf("Open = %v, want first bar open", q.Open)
	}
	if q.High != 2915.0 || q.Low != 2898.0 {
		t.Errorf("day range = %v/%v", q.High, q.Low)
	}
	if got := q.ChangePercent(); got < 1.5 || got > 1.6 {
		t.Errorf("ChangePercent = %v", got)
	}
}
