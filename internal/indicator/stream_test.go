package indicator

import (
	"context"
	"math"
	"testing"
	"time"

	"tickdata/internal/model"
)

// Batch and stream variants must agree on every shared prefix: feeding the
// first i bars through an accumulator must land on the batch value at i.

func TestStreamSMA_MatchesBatch(t *testing.T) {
	bars := trendBars(50)
	batch, _ := SMA(bars, 10)

	s := NewStreamSMA(10)
	for i, b := range bars {
		s.Update(b.Close)
		if s.Ready() != batch[i].Defined {
			t.Fatalf("index %d: Ready()=%v, batch Defined=%v", i, s.Ready(), batch[i].Defined)
		}
		if batch[i].Defined {
			assertClose(t, "stream SMA", s.Value(), batch[i].Value, 1e-9)
		}
	}
}

func TestStreamEMA_MatchesBatch(t *testing.T) {
	bars := trendBars(50)
	batch, _ := EMA(bars, 12)

	e := NewStreamEMA(12)
	for i, b := range bars {
		e.Update(b.Close)
		if batch[i].Defined {
			assertClose(t, "stream EMA", e.Value(), batch[i].Value, 1e-9)
		}
	}
}

func TestStreamRSI_MatchesBatch(t *testing.T) {
	bars := trendBars(60)
	batch, _ := RSI(bars, 14)

	r := NewStreamRSI(14)
	for i, b := range bars {
		r.Update(b.Close)
		if r.Ready() != batch[i].Defined {
			t.Fatalf("index %d: Ready()=%v, batch Defined=%v", i, r.Ready(), batch[i].Defined)
		}
		if batch[i].Defined {
			assertClose(t, "stream RSI", r.Value(), batch[i].Value, 1e-9)
		}
	}
}

func TestStreamMACD_MatchesBatch(t *testing.T) {
	bars := trendBars(80)
	batch, _ := MACD(bars, 12, 26, 9)

	m := NewStreamMACD(12, 26, 9)
	for i, b := range bars {
		m.Update(b.Close)
		if batch.Line[i].Defined {
			assertClose(t, "stream MACD line", m.Value(), batch.Line[i].Value, 1e-9)
		}
		if batch.Signal[i].Defined {
			assertClose(t, "stream MACD signal", m.SignalValue(), batch.Signal[i].Value, 1e-9)
			assertClose(t, "stream MACD histogram", m.HistogramValue(), batch.Histogram[i].Value, 1e-9)
		}
	}
}

func TestStreamBollinger_MatchesBatch(t *testing.T) {
	bars := trendBars(60)
	batch, _ := Bollinger(bars, 20, 2)

	b := NewStreamBollinger(20, 2)
	for i, bar := range bars {
		b.Update(bar.Close)
		if batch.Middle[i].Defined {
			u, m, l := b.Bands()
			assertClose(t, "stream BB upper", u, batch.Upper[i].Value, 1e-9)
			assertClose(t, "stream BB middle", m, batch.Middle[i].Value, 1e-9)
			assertClose(t, "stream BB lower", l, batch.Lower[i].Value, 1e-9)
		}
	}
}

func TestStreamSMA_ResetClearsState(t *testing.T) {
	s := NewStreamSMA(3)
	for _, c := range []float64{100, 102, 104} {
		s.Update(c)
	}
	if !s.Ready() {
		t.Fatal("expected ready after 3 updates")
	}
	s.Reset()
	if s.Ready() || s.Value() != 0 {
		t.Error("expected cleared state after Reset")
	}
	// State after Reset must match a fresh accumulator.
	fresh := NewStreamSMA(3)
	for _, c := range []float64{5, 6, 7} {
		s.Update(c)
		fresh.Update(c)
	}
	if math.Abs(s.Value()-fresh.Value()) > 1e-12 {
		t.Errorf("reset accumulator diverged: %.6f vs %.6f", s.Value(), fresh.Value())
	}
}

// ────────────────────────────────────────────────────────────
// StreamEngine
// ────────────────────────────────────────────────────────────

func TestStreamEngine_MultiSymbol(t *testing.T) {
	engine := NewStreamEngine([]Request{
		{Kind: KindSMA, Window: 3},
		{Kind: KindRSI, Period: 2},
	})

	// Interleave two symbols; per-symbol state must stay independent.
	aCloses := []float64{10, 11, 12, 11, 13}
	bCloses := []float64{200, 200, 200, 200, 200}

	var lastA, lastB []model.IndicatorResult
	for i := 0; i < 5; i++ {
		barA := makeBars(aCloses...)[i]
		barB := makeBars(bCloses...)[i]
		barB.Symbol = "TCS"
		lastA = engine.Process(barA)
		lastB = engine.Process(barB)
	}

	if len(lastA) != 2 || len(lastB) != 2 {
		t.Fatalf("expected 2 results per symbol, got %d and %d", len(lastA), len(lastB))
	}
	// Symbol A: SMA(3) over last three closes (12, 11, 13) = 12.0
	if lastA[0].Name != "SMA_3" {
		t.Fatalf("expected SMA_3 first, got %s", lastA[0].Name)
	}
	assertClose(t, "engine SMA A", lastA[0].Value, 12.0, 1e-9)
	// Symbol B is flat: SMA = 200, RSI pinned at 100.
	assertClose(t, "engine SMA B", lastB[0].Value, 200.0, 1e-9)
	assertClose(t, "engine RSI B", lastB[1].Value, 100.0, 1e-9)
}

func TestStreamEngine_IntervalsIsolated(t *testing.T) {
	engine := NewStreamEngine([]Request{{Kind: KindSMA, Window: 3}})

	// One symbol emitting on two intervals at once, as the per-interval
	// aggregators do in production. Accumulators must not be shared.
	minuteCloses := []float64{10, 11, 12, 11, 13}
	fiveMinCloses := []float64{100, 100, 100, 100, 100}

	var lastMinute, lastFive []model.IndicatorResult
	for i := 0; i < 5; i++ {
		minuteBar := makeBars(minuteCloses...)[i]
		minuteBar.Interval = model.Interval1m
		fiveBar := makeBars(fiveMinCloses...)[i]
		fiveBar.Interval = model.Interval5m
		lastMinute = engine.Process(minuteBar)
		lastFive = engine.Process(fiveBar)
	}

	// SMA(3) over the last three 1m closes (12, 11, 13) = 12.0. A shared
	// accumulator would mix in the 5m closes and report 41.33.
	assertClose(t, "1m SMA", lastMinute[0].Value, 12.0, 1e-9)
	assertClose(t, "5m SMA", lastFive[0].Value, 100.0, 1e-9)
	if lastMinute[0].Interval != model.Interval1m || lastFive[0].Interval != model.Interval5m {
		t.Errorf("result intervals mislabeled: %s, %s", lastMinute[0].Interval, lastFive[0].Interval)
	}
}

func TestStreamEngine_RunEmitsPerBarBatches(t *testing.T) {
	engine := NewStreamEngine([]Request{
		{Kind: KindSMA, Window: 3},
		{Kind: KindMACD},
	})
	var processed int
	engine.OnProcess = func(n int, _ time.Duration) { processed += n }

	barCh := make(chan model.Bar, 8)
	batchCh := make(chan []model.IndicatorResult, 8)
	for _, b := range makeBars(10, 11, 12, 13) {
		barCh <- b
	}
	close(barCh)
	engine.Run(context.Background(), barCh, batchCh)
	close(batchCh)

	var batches [][]model.IndicatorResult
	for b := range batchCh {
		batches = append(batches, b)
	}
	if len(batches) != 4 {
		t.Fatalf("expected one batch per bar, got %d", len(batches))
	}
	for _, b := range batches {
		// SMA contributes one result, MACD three.
		if len(b) != 4 {
			t.Fatalf("expected 4 results per batch, got %d", len(b))
		}
	}
	if processed != 16 {
		t.Errorf("OnProcess counted %d results, want 16", processed)
	}
}

func TestStreamEngine_MACDExpandsToThree(t *testing.T) {
	engine := NewStreamEngine([]Request{{Kind: KindMACD}})
	bars := trendBars(40)

	var last []model.IndicatorResult
	for _, b := range bars {
		last = engine.Process(b)
	}
	if len(last) != 3 {
		t.Fatalf("expected 3 MACD results, got %d", len(last))
	}
	names := map[string]bool{}
	for _, r := range last {
		names[r.Name] = true
	}
	for _, want := range []string{"MACD_line", "MACD_signal", "MACD_histogram"} {
		if !names[want] {
			t.Errorf("missing result %q", want)
		}
	}
}

func TestStreamEngine_WarmupNotReady(t *testing.T) {
	engine := NewStreamEngine([]Request{{Kind: KindSMA, Window: 5}})
	bars := makeBars(1, 2, 3)
	var last []model.IndicatorResult
	for _, b := range bars {
		last = engine.Process(b)
	}
	if last[0].Ready {
		t.Error("expected Ready=false inside warm-up")
	}
}
