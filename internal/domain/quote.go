package domain

import "time"

// Quote is the latest observed state for one symbol.
// EventTime comes from the upstream clock; ObservedAt is the local
// receipt instant and drives staleness.
type Quote struct {
	Price      float64   `json:"price"`
	Volume     float64   `json:"volume"`
	EventTime  time.Time `json:"timestamp"`
	ObservedAt time.Time `json:"lastUpdated"`
}

// FreshAt reports whether the quote is still usable at now.
// A non-positive window disables the check.
func (q Quote) FreshAt(now time.Time, window time.Duration) bool {
	if window <= 0 {
		return true
	}
	return now.Sub(q.ObservedAt) <= window
}
