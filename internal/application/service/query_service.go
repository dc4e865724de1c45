package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"coinpulse/internal/application/port"
	"coinpulse/internal/domain"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// QueryService builds the read-side views. Current prices come from
// the cache (the source of truth for "now"); everything historical or
// aggregated comes from the repository.
type QueryService struct {
	cache port.QuoteCache
	repo  port.Repository
}

func NewQueryService(cache port.QuoteCache, repo port.Repository) *QueryService {
	return &QueryService{cache: cache, repo: repo}
}

// CurrentPrice returns the live quote, absent when never observed or
// stale.
func (s *QueryService) CurrentPrice(symbol string) (domain.Quote, bool) {
	return s.cache.Get(strings.ToUpper(strings.TrimSpace(symbol)))
}

// AllPrices returns every fresh quote keyed by canonical symbol.
func (s *QueryService) AllPrices() map[string]domain.Quote {
	return s.cache.All()
}

// History returns persisted observations, newest first.
func (s *QueryService) History(ctx context.Context, symbol string, limit int) ([]port.PricePoint, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.repo.PriceHistory(ctx, strings.ToUpper(strings.TrimSpace(symbol)), limit)
}

// Search finds symbols by substring, newest price per symbol.
func (s *QueryService) Search(ctx context.Context, term string, limit int) ([]port.PricePoint, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.repo.SearchSymbols(ctx, strings.TrimSpace(term), limit)
}

// AllCoins is the aggregated 24h view. Prices are overlaid with the
// live cache where fresh, since the store may lag the feed.
func (s *QueryService) AllCoins(ctx context.Context) ([]port.CoinStat, error) {
	stats, err := s.repo.CoinStats(ctx)
	if err != nil {
		return nil, err
	}
	for i := range stats {
		stats[i].Name = stats[i].Symbol
		if q, ok := s.cache.Get(stats[i].Symbol); ok {
			stats[i].Price = q.Price
			stats[i].LastUpdated = q.ObservedAt
		}
	}
	return stats, nil
}

// TopCoins returns the best 24h performers.
func (s *QueryService) TopCoins(ctx context.Context, limit int) ([]port.CoinStat, error) {
	if limit <= 0 {
		limit = 10
	}
	stats, err := s.AllCoins(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Change24h > stats[j].Change24h })
	if len(stats) > limit {
		stats = stats[:limit]
	}
	return stats, nil
}

// MarketStats is the rollup broadcast to websocket clients.
type MarketStats struct {
	TotalCoins int   `json:"totalCoins"`
	Trades24h  int64 `json:"total24hVolume"`
	Gainers    int   `json:"gainers"`
	Losers     int   `json:"losers"`
}

// MarketSnapshot bundles the rollup with the per-coin view.
type MarketSnapshot struct {
	Stats MarketStats     `json:"stats"`
	Coins []port.CoinStat `json:"coins"`
	At    time.Time       `json:"at"`
}

// Market builds the snapshot pushed to streaming clients.
func (s *QueryService) Market(ctx context.Context) (MarketSnapshot, error) {
	coins, err := s.AllCoins(ctx)
	if err != nil {
		return MarketSnapshot{}, err
	}

	var st MarketStats
	st.TotalCoins = len(coins)
	for _, c := range coins {
		st.Trades24h += c.Trades24h
		switch {
		case c.Change24h > 0:
			st.Gainers++
		case c.Change24h < 0:
			st.Losers++
		}
	}
	return MarketSnapshot{Stats: st, Coins: coins, At: time.Now()}, nil
}
