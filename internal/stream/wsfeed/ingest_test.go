package wsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tickdata/internal/model"
)

func tickServer(t *testing.T, serve func(*websocket.Conn)) string {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestIngest_ReceivesTicks(t *testing.T) {
	url := tickServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(model.Tick{Symbol: "RELIANCE", Exchange: model.NSE, Price: 2940.55, Qty: 10, TS: time.Now()})
		conn.WriteJSON(model.Tick{Symbol: "TCS", Exchange: model.NSE, Price: 4100.0, Qty: 5, TS: time.Now()})
		time.Sleep(500 * time.Millisecond)
	})

	ing, err := New(Config{URL: url})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tickCh := make(chan model.Tick, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ing.Start(ctx, tickCh)

	var got []model.Tick
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case tick := <-tickCh:
			got = append(got, tick)
		case <-timeout:
			t.Fatalf("timed out, got %d ticks", len(got))
		}
	}

	if got[0].Symbol != "RELIANCE" || got[0].Price != 2940.55 {
		t.Errorf("first tick = %+v", got[0])
	}
	if got[1].Symbol != "TCS" {
		t.Errorf("second tick = %+v", got[1])
	}
}

func TestIngest_RingOverflowWhenConsumerStalls(t *testing.T) {
	url := tickServer(t, func(conn *websocket.Conn) {
		for i := 0; i < 50; i++ {
			conn.WriteJSON(model.Tick{Symbol: "SBIN", Exchange: model.NSE, Price: 800, Qty: 1, TS: time.Now()})
		}
		time.Sleep(500 * time.Millisecond)
	})

	ing, err := New(Config{URL: url, RingSize: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Nobody reads tickCh, so the drain goroutine stalls and the ring fills.
	tickCh := make(chan model.Tick)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ing.Start(ctx, tickCh)

	deadline := time.After(2 * time.Second)
	for ing.Overflow() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected ring overflow with stalled consumer")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestIngest_SkipsMalformedMessages(t *testing.T) {
	url := tickServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"exchange":"NSE","price":1}`)) // empty symbol
		conn.WriteJSON(model.Tick{Symbol: "INFY", Exchange: model.NSE, Price: 1500, TS: time.Now()})
		time.Sleep(500 * time.Millisecond)
	})

	ing, err := New(Config{URL: url})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tickCh := make(chan model.Tick, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ing.Start(ctx, tickCh)

	select {
	case tick := <-tickCh:
		if tick.Symbol != "INFY" {
			t.Errorf("tick = %+v, want INFY", tick)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for valid tick")
	}
}
