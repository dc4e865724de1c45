package port

import (
	"context"
	"time"
)

// TradeEvent is one normalized trade observed on the upstream feed.
// Symbol is canonical (e.g. "BTC"), never the wire pair.
type TradeEvent struct {
	Symbol    string
	Price     float64
	Volume    float64
	EventTime time.Time
}

// PriceFeed is a long-lived upstream trade stream.
type PriceFeed interface {
	Name() string

	// Subscribe starts the connection lifecycle and returns the event
	// stream. The channel closes when ctx is cancelled, Close is called,
	// or the reconnect budget is exhausted; Err reports the terminal
	// cause after the close.
	Subscribe(ctx context.Context) (<-chan TradeEvent, error)

	// Err is the terminal error, nil for an orderly shutdown.
	Err() error

	// Connection state snapshots for health reporting. Nothing outside
	// the feed may act on these beyond display.
	Connected() bool
	Authenticated() bool

	// Close disconnects without triggering the reconnect path.
	Close()
}
