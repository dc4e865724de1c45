package port

import (
	"context"
	"time"
)

// Signal lifecycle states.
const (
	SignalActive    = "active"
	SignalHitTarget = "hit_target"
	SignalHitStop   = "hit_stop"
)

// PricePoint is one persisted price observation.
type PricePoint struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// CoinStat is the aggregated 24h view for one symbol.
type CoinStat struct {
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Trades24h   int64     `json:"volume"`
	Change24h   float64   `json:"change24h"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Signal is a tracked trading signal.
type Signal struct {
	ID         int64     `json:"id"`
	Symbol     string    `json:"symbol"`
	StopLoss   float64   `json:"stopLoss"`
	Target     float64   `json:"target"`
	EntryPrice float64   `json:"entryPrice"`
	ExitPrice  float64   `json:"exitPrice,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	ClosedAt   time.Time `json:"closedAt,omitempty"`
}

// SignalStats summarizes closed signal performance.
type SignalStats struct {
	TotalClosed int64   `json:"totalClosed"`
	Successful  int64   `json:"successful"`
	Failed      int64   `json:"failed"`
	TotalProfit float64 `json:"totalProfit"`
	SuccessPct  float64 `json:"successPercentage"`
	FailPct     float64 `json:"failPercentage"`
}

// MonthlyPerformance is one month of signal outcomes.
type MonthlyPerformance struct {
	Month        string  `json:"month"`
	TotalSignals int64   `json:"totalSignals"`
	TotalProfit  float64 `json:"totalProfit"`
}

// PriceSink is the write side consumed by the ingestion pipeline.
// Implementations must tolerate concurrent appends alongside reads.
type PriceSink interface {
	InsertPrice(ctx context.Context, symbol string, price, volume float64, ts time.Time) error
	Close() error
}

// Repository is the durable store: the price sink plus every query the
// read path needs.
type Repository interface {
	PriceSink

	PriceHistory(ctx context.Context, symbol string, limit int) ([]PricePoint, error)
	LatestPerSymbol(ctx context.Context) ([]PricePoint, error)
	SearchSymbols(ctx context.Context, term string, limit int) ([]PricePoint, error)
	CoinStats(ctx context.Context) ([]CoinStat, error)
	DeleteOldPrices(ctx context.Context, before time.Time) (int64, error)

	CreateSignal(ctx context.Context, symbol string, stopLoss, target, entryPrice float64) (Signal, error)
	ListSignals(ctx context.Context) ([]Signal, error)
	OpenSignals(ctx context.Context, symbol string) ([]Signal, error)
	CloseSignal(ctx context.Context, id int64, status string, exitPrice float64) error
	SignalStats(ctx context.Context) (SignalStats, error)
	RecentSignals(ctx context.Context, limit int) ([]Signal, error)
	MonthlyPerformance(ctx context.Context) ([]MonthlyPerformance, error)
}

// SignalPublisher pushes signal events to a live channel (redis stream
// and pubsub) for external consumers. Best-effort.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, sig Signal, event string) error
}
