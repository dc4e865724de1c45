package port

import (
	"time"

	"coinpulse/internal/domain"
)

// QuoteCache is the always-fresh view of the latest price per symbol.
// Written only by the ingestion pipeline, read by everything else.
type QuoteCache interface {
	// Set overwrites unconditionally; arrival order wins.
	Set(symbol string, price, volume float64, eventTime time.Time)

	// Get returns the quote, or false when the symbol was never seen
	// or its entry has gone stale.
	Get(symbol string) (domain.Quote, bool)

	// All returns every fresh entry keyed by canonical symbol.
	All() map[string]domain.Quote

	// Len counts fresh entries.
	Len() int
}
