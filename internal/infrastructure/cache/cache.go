package cache

import (
	"sync"
	"time"

	"coinpulse/internal/application/port"
	"coinpulse/internal/domain"
)

// PriceCache holds the latest observed quote per canonical symbol.
//
// Single writer (the ingestion pipeline), many concurrent readers.
// Entries are replaced whole under the lock, never mutated in place,
// so a reader can never observe a torn record. Staleness is filtered
// at read time; entries are never evicted and a re-set makes a symbol
// fresh again immediately.
type PriceCache struct {
	mu     sync.RWMutex
	quotes map[string]domain.Quote

	window time.Duration
	now    func() time.Time
}

// New creates a cache with the given staleness window. A non-positive
// window keeps entries fresh forever.
func New(window time.Duration) *PriceCache {
	return &PriceCache{
		quotes: make(map[string]domain.Quote),
		window: window,
		now:    time.Now,
	}
}

// Set overwrites the symbol's quote unconditionally; arrival order
// wins over embedded event times. Never blocks on I/O.
func (c *PriceCache) Set(symbol string, price, volume float64, eventTime time.Time) {
	q := domain.Quote{
		Price:      price,
		Volume:     volume,
		EventTime:  eventTime,
		ObservedAt: c.now(),
	}
	c.mu.Lock()
	c.quotes[symbol] = q
	c.mu.Unlock()
}

// Get returns the symbol's quote, hiding entries older than the
// staleness window instead of serving misleading data during outages.
func (c *PriceCache) Get(symbol string) (domain.Quote, bool) {
	c.mu.RLock()
	q, ok := c.quotes[symbol]
	c.mu.RUnlock()

	if !ok || !q.FreshAt(c.now(), c.window) {
		return domain.Quote{}, false
	}
	return q, true
}

// All returns a copy of every fresh entry.
func (c *PriceCache) All() map[string]domain.Quote {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]domain.Quote, len(c.quotes))
	for sym, q := range c.quotes {
		if q.FreshAt(now, c.window) {
			out[sym] = q
		}
	}
	return out
}

// Len counts fresh entries.
func (c *PriceCache) Len() int {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, q := range c.quotes {
		if q.FreshAt(now, c.window) {
			n++
		}
	}
	return n
}

var _ port.QuoteCache = (*PriceCache)(nil)
