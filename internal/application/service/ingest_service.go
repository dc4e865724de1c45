package service

import (
	"context"

	"coinpulse/internal/application/port"
)

// IngestService is the single choke point between "trade observed on
// the wire" and "state visible to the rest of the system".
type IngestService struct {
	cache   port.QuoteCache
	queue   *PersistQueue
	tracker *SignalTracker // optional
}

func NewIngestService(cache port.QuoteCache, queue *PersistQueue, tracker *SignalTracker) *IngestService {
	return &IngestService{cache: cache, queue: queue, tracker: tracker}
}

// Handle applies one trade event. The cache update completes before
// return, so every subsequent read sees it; the durable write is
// queued and never delays the next message.
func (s *IngestService) Handle(ev port.TradeEvent) {
	s.cache.Set(ev.Symbol, ev.Price, ev.Volume, ev.EventTime)
	s.queue.Enqueue(ev)
	if s.tracker != nil {
		s.tracker.Observe(ev)
	}
}

// Run drains the feed channel until it closes or ctx is cancelled.
// A closed channel means the feed reached a terminal state; the caller
// consults the feed's Err to distinguish shutdown from exhaustion.
func (s *IngestService) Run(ctx context.Context, events <-chan port.TradeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.Handle(ev)
		}
	}
}
