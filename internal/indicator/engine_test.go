package indicator

import (
	"errors"
	"testing"
)

func TestCompute_NamesAndLengths(t *testing.T) {
	bars := trendBars(60)
	out, err := Compute(bars, []Request{
		{Kind: KindSMA, Window: 20},
		{Kind: KindEMA, Window: 12},
		{Kind: KindRSI}, // default period 14
		{Kind: KindMACD},
		{Kind: KindBollinger}, // defaults 20/2
	})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	want := []string{
		"SMA_20", "EMA_12", "RSI_14",
		"MACD_line", "MACD_signal", "MACD_histogram",
		"BB_upper", "BB_middle", "BB_lower",
	}
	if len(out) != len(want) {
		t.Fatalf("got %d series, want %d", len(out), len(want))
	}
	for _, name := range want {
		s, ok := out[name]
		if !ok {
			t.Errorf("missing series %q", name)
			continue
		}
		if len(s) != len(bars) {
			t.Errorf("%s: length %d, want %d", name, len(s), len(bars))
		}
	}
}

func TestCompute_EmptyInput(t *testing.T) {
	if _, err := Compute(nil, []Request{{Kind: KindSMA, Window: 3}}); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func TestCompute_UnknownKind(t *testing.T) {
	bars := trendBars(10)
	if _, err := Compute(bars, []Request{{Kind: "VWAP", Window: 5}}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for unknown kind, got %v", err)
	}
}

func TestValidateRequests(t *testing.T) {
	tests := []struct {
		name    string
		reqs    []Request
		wantErr bool
	}{
		{"valid mix", []Request{{Kind: KindSMA, Window: 20}, {Kind: KindMACD}, {Kind: KindRSI}}, false},
		{"sma zero window", []Request{{Kind: KindSMA, Window: 0}}, true},
		{"ema negative window", []Request{{Kind: KindEMA, Window: -1}}, true},
		{"bollinger defaults", []Request{{Kind: KindBollinger}}, false},
		{"bollinger negative k", []Request{{Kind: KindBollinger, Window: 20, K: -2}}, true},
		{"unknown kind", []Request{{Kind: "ATR", Window: 14}}, true},
		{"empty set", nil, false},
	}
	for _, tt := range tests {
		err := ValidateRequests(tt.reqs)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err=%v, wantErr=%v", tt.name, err, tt.wantErr)
		}
	}
}

func TestRequestName(t *testing.T) {
	tests := []struct {
		req  Request
		want string
	}{
		{Request{Kind: KindSMA, Window: 20}, "SMA_20"},
		{Request{Kind: KindEMA, Window: 9}, "EMA_9"},
		{Request{Kind: KindRSI, Period: 7}, "RSI_7"},
		{Request{Kind: KindRSI}, "RSI_14"},
		{Request{Kind: KindMACD}, "MACD"},
	}
	for _, tt := range tests {
		if got := tt.req.Name(); got != tt.want {
			t.Errorf("Name() = %q, want %q", got, tt.want)
		}
	}
}
