package composite

import (
	"context"
	"time"

	"coinpulse/internal/application/port"
)

// Sink fans one price write out to several sinks, typically the SQL
// store plus the redis mirror. Every sink sees the write; the first
// error wins.
type Sink struct {
	sinks []port.PriceSink
}

func New(sinks ...port.PriceSink) *Sink {
	// nil sinks are allowed; filter in constructor for safety
	out := make([]port.PriceSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Sink{sinks: out}
}

func (s *Sink) InsertPrice(ctx context.Context, symbol string, price, volume float64, ts time.Time) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.InsertPrice(ctx, symbol, price, volume, ts); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Sink) Close() error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.PriceSink = (*Sink)(nil)
