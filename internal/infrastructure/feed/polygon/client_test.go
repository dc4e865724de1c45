package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"coinpulse/internal/application/port"
	"coinpulse/internal/domain"
)

var upgrader = websocket.Upgrader{}

// fakeFeed runs an httptest websocket server; handler receives each
// accepted connection and the 1-based dial count.
func fakeFeed(t *testing.T, handler func(conn *websocket.Conn, dial int64)) (*httptest.Server, string, *atomic.Int64) {
	t.Helper()

	var dials atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn, dials.Add(1))
	}))
	t.Cleanup(srv.Close)

	return srv, "ws" + strings.TrimPrefix(srv.URL, "http"), &dials
}

func readControl(t *testing.T, conn *websocket.Conn) controlFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame controlFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Errorf("read control frame: %v", err)
	}
	return frame
}

func collectEvents(t *testing.T, events <-chan port.TradeEvent, n int) []port.TradeEvent {
	t.Helper()
	out := make([]port.TradeEvent, 0, n)
	deadline := time.After(3 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed after %d events, want %d", len(out), n)
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out after %d events, want %d", len(out), n)
		}
	}
	return out
}

func TestClientHandshakeAndTrades(t *testing.T) {
	_, wsURL, _ := fakeFeed(t, func(conn *websocket.Conn, _ int64) {
		auth := readControl(t, conn)
		if auth.Action != "auth" || auth.Params != "test-key" {
			t.Errorf("unexpected auth frame: %+v", auth)
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"ev":"status","status":"connected","message":"Connected Successfully"}]`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"ev":"status","status":"auth_success","message":"authenticated"}]`))

		sub := readControl(t, conn)
		if sub.Action != "subscribe" || !strings.Contains(sub.Params, "XT.X:BTCUSD") {
			t.Errorf("unexpected subscribe frame: %+v", sub)
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"ev":"status","status":"success","message":"subscribed to: XT.X:BTCUSD"}]`))

		// one single-object frame, one batch frame
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"ev":"XT","pair":"X:BTCUSD","p":65000.5,"s":0.5,"t":1700000000000}`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"ev":"XT","pair":"X:ETHUSD","p":3500,"s":1,"t":1700000000001},
			         {"ev":"XT","pair":"X:SOLUSD","p":150,"s":2,"t":1700000000002}]`))

		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := New(Config{
		URL:     wsURL,
		APIKey:  "test-key",
		Symbols: []string{"BTC", "ETH", "SOL"},
	}, domain.NewSymbolMapper())

	events, err := c.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	got := collectEvents(t, events, 3)
	if got[0].Symbol != "BTC" || got[0].Price != 65000.5 {
		t.Errorf("first event = %+v, want BTC @ 65000.5", got[0])
	}
	if got[1].Symbol != "ETH" || got[2].Symbol != "SOL" {
		t.Errorf("batch events = %+v, %+v", got[1], got[2])
	}
	if !got[0].EventTime.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("event time = %v", got[0].EventTime)
	}

	if !c.Connected() || !c.Authenticated() {
		t.Errorf("state = %v, want subscribed", c.State())
	}

	c.Close()
	select {
	case _, ok := <-events:
		if ok {
			// a buffered event may still drain; wait for the close
			for range events {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event channel did not close after Close")
	}
	if err := c.Err(); err != nil {
		t.Errorf("Err() after manual close = %v, want nil", err)
	}
}

func TestClientReconnectExhaustion(t *testing.T) {
	start := time.Now()

	_, wsURL, dials := fakeFeed(t, func(conn *websocket.Conn, _ int64) {
		// drop every connection right after the auth frame
		readControl(t, conn)
	})

	c := New(Config{
		URL:         wsURL,
		APIKey:      "test-key",
		Symbols:     []string{"BTC"},
		BackoffBase: 20 * time.Millisecond,
		BackoffMax:  50 * time.Millisecond,
		MaxAttempts: 3,
	}, nil)

	events, err := c.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("unexpected trade event")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event channel never closed")
	}

	if !errors.Is(c.Err(), ErrFeedUnavailable) {
		t.Errorf("Err() = %v, want ErrFeedUnavailable", c.Err())
	}
	if got := dials.Load(); got != 4 {
		t.Errorf("dials = %d, want 4 (initial + 3 reconnects)", got)
	}
	// backoff schedule 20ms, 40ms, 50ms between attempts
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("exhaustion took %v, backoff delays not applied", elapsed)
	}
}

func TestClientAuthRejectionReconnects(t *testing.T) {
	_, wsURL, dials := fakeFeed(t, func(conn *websocket.Conn, _ int64) {
		readControl(t, conn)
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"ev":"status","status":"auth_failed","message":"invalid api key"}]`))
		// wait for the client to drop us
		_, _, _ = conn.ReadMessage()
	})

	c := New(Config{
		URL:         wsURL,
		APIKey:      "bad-key",
		Symbols:     []string{"BTC"},
		BackoffBase: 10 * time.Millisecond,
		MaxAttempts: 1,
	}, nil)

	events, err := c.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("unexpected trade event")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event channel never closed")
	}

	if !errors.Is(c.Err(), ErrFeedUnavailable) {
		t.Errorf("Err() = %v, want ErrFeedUnavailable", c.Err())
	}
	// auth failure takes the same reconnect path as a transport close
	if got := dials.Load(); got != 2 {
		t.Errorf("dials = %d, want 2", got)
	}
}

func TestCloseWhileBufferFull(t *testing.T) {
	_, wsURL, _ := fakeFeed(t, func(conn *websocket.Conn, _ int64) {
		readControl(t, conn)
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"ev":"status","status":"auth_success","message":"authenticated"}]`))
		readControl(t, conn)

		// flood a one-slot buffer with nobody draining it
		for i := 0; i < 20; i++ {
			_ = conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"ev":"XT","pair":"X:BTCUSD","p":100,"s":1,"t":1}`))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := New(Config{
		URL:     wsURL,
		APIKey:  "test-key",
		Symbols: []string{"BTC"},
		Buffer:  1,
	}, nil)

	events, err := c.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// wait for the buffer to fill, then disconnect without draining
	deadline := time.Now().Add(2 * time.Second)
	for len(events) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(events) == 0 {
		t.Fatal("no event buffered before close")
	}
	c.Close()

	closed := make(chan struct{})
	go func() {
		for range events {
		}
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("event channel did not close with a full buffer")
	}
	if err := c.Err(); err != nil {
		t.Errorf("Err() after manual close = %v, want nil", err)
	}
}

func TestHandleFrameSkipsMalformed(t *testing.T) {
	c := New(Config{URL: "ws://unused", APIKey: "k", Symbols: []string{"BTC"}}, nil)

	ctx := context.Background()
	out := make(chan port.TradeEvent, 4)
	var authed atomic.Bool

	if err := c.handleFrame(ctx, nil, []byte(`{broken`), out, &authed); err != nil {
		t.Fatalf("malformed frame returned error: %v", err)
	}
	if err := c.handleFrame(ctx, nil, []byte(`{"ev":"XT","pair":"X:BTCUSD","p":100,"s":1,"t":1}`), out, &authed); err != nil {
		t.Fatalf("valid frame after malformed returned error: %v", err)
	}
	if err := c.handleFrame(ctx, nil, []byte(`{"ev":"wat"}`), out, &authed); err != nil {
		t.Fatalf("unknown discriminator returned error: %v", err)
	}

	if len(out) != 1 {
		t.Fatalf("got %d events, want 1", len(out))
	}
	ev := <-out
	if ev.Symbol != "BTC" || ev.Price != 100 {
		t.Errorf("event = %+v", ev)
	}
}

func TestHandleFrameDropsBadTrades(t *testing.T) {
	c := New(Config{URL: "ws://unused", APIKey: "k", Symbols: []string{"BTC"}}, nil)

	ctx := context.Background()
	out := make(chan port.TradeEvent, 4)
	var authed atomic.Bool

	frames := []string{
		`{"ev":"XT","pair":"","p":100,"t":1}`,    // no symbol
		`{"ev":"XT","pair":"X:BTCUSD","p":0}`,    // non-positive price
		`{"ev":"XT","pair":"X:BTCUSD","p":-5}`,   // negative price
		`{"ev":"XT","pair":"X:BTCUSD","p":42.5}`, // the keeper
	}
	for _, f := range frames {
		if err := c.handleFrame(ctx, nil, []byte(f), out, &authed); err != nil {
			t.Fatalf("handleFrame(%s) error: %v", f, err)
		}
	}

	if len(out) != 1 {
		t.Fatalf("got %d events, want 1", len(out))
	}
}

func TestControlFrameEncoding(t *testing.T) {
	b, err := json.Marshal(controlFrame{Action: "subscribe", Params: "XT.X:BTCUSD,XT.X:ETHUSD"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"action":"subscribe","params":"XT.X:BTCUSD,XT.X:ETHUSD"}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}
