package polygon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"coinpulse/internal/application/port"
	"coinpulse/internal/domain"
)

// ConnState tracks the connection lifecycle. Owned exclusively by the
// client; other components only see Connected/Authenticated snapshots.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateAuthenticated
	StateSubscribed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// ErrFeedUnavailable is the escalation when the reconnect budget is
// exhausted. The only feed error the owning process should act on.
var ErrFeedUnavailable = errors.New("polygon: feed unavailable, reconnect attempts exhausted")

var errAuthRejected = errors.New("polygon: authentication rejected")

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 90 * time.Second
)

// Config carries every externally supplied knob; nothing is hardcoded.
type Config struct {
	URL     string
	APIKey  string
	Symbols []string // canonical tickers to subscribe

	DialTimeout       time.Duration
	HeartbeatInterval time.Duration
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	MaxAttempts       int // consecutive failed attempts before giving up
	Buffer            int // event channel depth
}

func (c *Config) applyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 5 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 2 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
}

// Client owns exactly one logical upstream connection at a time and
// keeps it alive, authenticated, and subscribed until closed.
type Client struct {
	cfg    Config
	mapper *domain.SymbolMapper

	state  atomic.Int32
	closed atomic.Bool

	mu      sync.Mutex
	err     error
	started bool
	cancel  context.CancelFunc
}

func New(cfg Config, mapper *domain.SymbolMapper) *Client {
	cfg.applyDefaults()
	if mapper == nil {
		mapper = domain.NewSymbolMapper()
	}
	return &Client{cfg: cfg, mapper: mapper}
}

func (c *Client) Name() string { return "polygon" }

func (c *Client) State() ConnState { return ConnState(c.state.Load()) }

func (c *Client) Connected() bool { return c.State() >= StateConnected }

func (c *Client) Authenticated() bool { return c.State() >= StateAuthenticated }

func (c *Client) setState(s ConnState) { c.state.Store(int32(s)) }

// Err returns the terminal error after the event channel closed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// Subscribe starts the connection state machine and returns the
// normalized trade stream.
func (c *Client) Subscribe(ctx context.Context) (<-chan port.TradeEvent, error) {
	if strings.TrimSpace(c.cfg.URL) == "" {
		return nil, errors.New("polygon: ws url empty")
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, errors.New("polygon: api key empty")
	}
	if len(c.cfg.Symbols) == 0 {
		return nil, errors.New("polygon: symbols empty")
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil, errors.New("polygon: already subscribed")
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	out := make(chan port.TradeEvent, c.cfg.Buffer)
	go c.run(ctx, out)
	return out, nil
}

// Close disconnects and stops all timers without triggering the
// reconnect path. Distinguished from an unexpected close.
func (c *Client) Close() {
	c.closed.Store(true)
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Client) run(ctx context.Context, out chan<- port.TradeEvent) {
	defer close(out)
	defer c.setState(StateDisconnected)

	backoff := c.cfg.BackoffBase
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		authed, err := c.session(ctx, out)
		c.setState(StateDisconnected)

		if ctx.Err() != nil || c.closed.Load() {
			// operator-initiated: no reconnect
			return
		}

		if authed {
			// a full handshake resets the reconnect budget
			attempts = 0
			backoff = c.cfg.BackoffBase
		}

		attempts++
		if attempts > c.cfg.MaxAttempts {
			log.Error().Str("feed", c.Name()).Int("attempts", attempts-1).
				Msg("reconnect attempts exhausted, giving up")
			c.setErr(ErrFeedUnavailable)
			return
		}

		log.Warn().Str("feed", c.Name()).Err(err).
			Int("attempt", attempts).Dur("backoff", backoff).
			Msg("ws disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = minDur(backoff*2, c.cfg.BackoffMax)
	}
}

// session runs one connection from dial to close. It reports whether
// authentication succeeded at any point, so the caller can reset the
// reconnect budget.
func (c *Client) session(ctx context.Context, out chan<- port.TradeEvent) (bool, error) {
	c.setState(StateConnecting)
	log.Info().Str("feed", c.Name()).Str("url", c.cfg.URL).Msg("ws connecting")

	// the timeout also guards against a transport stuck in the open
	// handshake that never calls back
	dctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dctx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	c.setState(StateConnected)
	log.Info().Str("feed", c.Name()).Msg("ws connected")

	// auth goes out immediately on open; success is never assumed on
	// send, only on the explicit ack
	c.setState(StateAuthenticating)
	if err := writeJSON(conn, controlFrame{Action: "auth", Params: c.cfg.APIKey}); err != nil {
		return false, fmt.Errorf("send auth: %w", err)
	}

	return c.readLoop(ctx, conn, out)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- port.TradeEvent) (bool, error) {
	var authed atomic.Bool

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			if err := c.handleFrame(ctx, conn, b, out, &authed); err != nil {
				errCh <- err
				return
			}
		}
	}()

	heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			// unblock ReadMessage and wait the reader out; the caller
			// closes the event channel, so the reader must be gone first
			_ = conn.Close()
			<-errCh
			return authed.Load(), ctx.Err()
		case err := <-errCh:
			return authed.Load(), err
		case <-heartbeat.C:
			// liveness probe only while authenticated; failures show up
			// as a transport close, not separately
			if !c.Authenticated() {
				continue
			}
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
		}
	}
}

// handleFrame runs on the reader goroutine, the single writer to the
// cache downstream. It must never block on network or disk I/O, and
// its emits stay cancellation-aware so a full buffer cannot pin the
// reader past shutdown.
func (c *Client) handleFrame(ctx context.Context, conn *websocket.Conn, b []byte, out chan<- port.TradeEvent, authed *atomic.Bool) error {
	msgs, err := decodeFrame(b)
	if err != nil {
		// one bad frame must not tear down the connection
		log.Error().Str("feed", c.Name()).Err(err).Msg("unparseable frame, skipped")
		return nil
	}

	for _, m := range msgs {
		switch m := m.(type) {
		case StatusMessage:
			if err := c.handleStatus(conn, m, authed); err != nil {
				return err
			}
		case TradeMessage:
			ev, ok := c.normalize(m)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		case UnknownMessage:
			log.Debug().Str("feed", c.Name()).Str("ev", m.Ev).Msg("unknown event type, dropped")
		}
	}
	return nil
}

func (c *Client) handleStatus(conn *websocket.Conn, m StatusMessage, authed *atomic.Bool) error {
	switch m.Status {
	case statusConnected:
		log.Info().Str("feed", c.Name()).Str("status", m.Message).Msg("upstream status")
	case statusAuthSuccess:
		authed.Store(true)
		c.setState(StateAuthenticated)
		log.Info().Str("feed", c.Name()).Msg("authenticated")
		if err := c.sendSubscribe(conn); err != nil {
			return fmt.Errorf("send subscribe: %w", err)
		}
		// optimistic: trade processing starts without a subscribe ack
		c.setState(StateSubscribed)
	case statusAuthFailed:
		// same recovery path as a transport close
		log.Error().Str("feed", c.Name()).Str("msg", m.Message).Msg("authentication rejected")
		return errAuthRejected
	case statusSuccess:
		log.Info().Str("feed", c.Name()).Str("msg", m.Message).Msg("subscribe acknowledged")
	default:
		log.Warn().Str("feed", c.Name()).Str("status", m.Status).Str("msg", m.Message).Msg("unhandled status")
	}
	return nil
}

func (c *Client) sendSubscribe(conn *websocket.Conn) error {
	params := make([]string, 0, len(c.cfg.Symbols))
	for _, sym := range c.cfg.Symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		params = append(params, "XT."+c.mapper.ToWire(sym))
	}
	return writeJSON(conn, controlFrame{Action: "subscribe", Params: strings.Join(params, ",")})
}

// normalize converts a wire trade into the canonical event. Trades
// with no usable symbol or a non-positive price are dropped.
func (c *Client) normalize(m TradeMessage) (port.TradeEvent, bool) {
	base := c.mapper.ToCanonical(m.Pair)
	if base == "" || m.Price <= 0 {
		return port.TradeEvent{}, false
	}
	return port.TradeEvent{
		Symbol:    base,
		Price:     m.Price,
		Volume:    m.Size,
		EventTime: time.UnixMilli(m.Millis),
	}, true
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

var _ port.PriceFeed = (*Client)(nil)
