package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"tickdata/internal/gateway"
	"tickdata/internal/model"
	sqlitestore "tickdata/internal/store/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "bars.db")
	writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}

	base := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	bars := make([]model.Bar, 10)
	for i := range bars {
		bars[i] = model.Bar{
			Symbol:   "RELIANCE",
			Exchange: model.NSE,
			Interval: model.Interval1m,
			TS:       base.Add(time.Duration(i) * time.Minute),
			Open:     2940 + float64(i),
			High:     2941 + float64(i),
			Low:      2939 + float64(i),
			Close:    2940.5 + float64(i),
			Volume:   int64(1000 + i),
		}
	}
	if err := writer.InsertBatch(bars); err != nil {
		t.Fatalf("insert fixture bars: %v", err)
	}
	writer.Close()

	reader, err := sqlitestore.NewReader(dbPath)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	t.Cleanup(func() { reader.Close() })

	srv := httptest.NewServer(NewServer(reader, nil, gateway.NewHub()).Router())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, wantStatus int, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Status  string `json:"status"`
		Market  string `json:"market"`
		Clients int    `json:"clients"`
	}
	getJSON(t, srv.URL+"/api/v1/health", http.StatusOK, &body)

	if body.Status != "ok" {
		t.Errorf("status: got %q, want ok", body.Status)
	}
	if body.Market == "" {
		t.Error("market status missing")
	}
	if body.Clients != 0 {
		t.Errorf("clients: got %d, want 0", body.Clients)
	}
}

func TestBars_RangeQuery(t *testing.T) {
	srv := newTestServer(t)

	from := "2026-03-02T09:17:00Z"
	to := "2026-03-02T09:20:00Z"
	url := srv.URL + "/api/v1/bars?symbol=RELIANCE&exchange=NSE&interval=1m&from=" + from + "&to=" + to

	var body struct {
		Count int         `json:"count"`
		Bars  []model.Bar `json:"bars"`
	}
	getJSON(t, url, http.StatusOK, &body)

	// [09:17, 09:20) covers three bars.
	if body.Count != 3 {
		t.Fatalf("count: got %d, want 3", body.Count)
	}
	if body.Bars[0].TS.Format(time.RFC3339) != from {
		t.Errorf("first bar ts: got %v, want %s", body.Bars[0].TS, from)
	}
	if body.Bars[0].Close != 2942.5 {
		t.Errorf("first bar close: got %v, want 2942.5", body.Bars[0].Close)
	}
}

func TestBars_BadParams(t *testing.T) {
	srv := newTestServer(t)

	cases := []string{
		"/api/v1/bars",                              // no symbol
		"/api/v1/bars?symbol=X&exchange=NYSE",       // unknown exchange
		"/api/v1/bars?symbol=X&interval=7m",         // unknown interval
		"/api/v1/bars?symbol=X&from=not-a-time",     // bad from
		"/api/v1/bars?symbol=X&from=2026-03-02T10:00:00Z&to=2026-03-02T09:00:00Z", // inverted range
	}
	for _, path := range cases {
		var body struct {
			Error string `json:"error"`
		}
		getJSON(t, srv.URL+path, http.StatusBadRequest, &body)
		if body.Error == "" {
			t.Errorf("%s: expected error message", path)
		}
	}
}

func TestRecent_FallsBackToSQLite(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Count int         `json:"count"`
		Bars  []model.Bar `json:"bars"`
	}
	getJSON(t, srv.URL+"/api/v1/recent?symbol=RELIANCE&count=4", http.StatusOK, &body)

	if body.Count != 4 {
		t.Fatalf("count: got %d, want 4", body.Count)
	}
	// Newest 4, ascending.
	if body.Bars[3].Close != 2949.5 {
		t.Errorf("last bar close: got %v, want 2949.5", body.Bars[3].Close)
	}
	if !body.Bars[0].TS.Before(body.Bars[3].TS) {
		t.Error("bars not in ascending order")
	}
}

func TestQuote_UnavailableWithoutRedis(t *testing.T) {
	srv := newTestServer(t)
	getJSON(t, srv.URL+"/api/v1/quote?symbol=RELIANCE", http.StatusServiceUnavailable, nil)
}

func TestRecent_CountBounds(t *testing.T) {
	srv := newTestServer(t)
	getJSON(t, srv.URL+"/api/v1/recent?symbol=RELIANCE&count=0", http.StatusBadRequest, nil)
	getJSON(t, srv.URL+"/api/v1/recent?symbol=RELIANCE&count=5000", http.StatusBadRequest, nil)
}
