package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"coinpulse/internal/application/port"
)

// SignalService manages trading signals: creation, listing with live
// prices, and the dashboard rollups.
type SignalService struct {
	repo    port.Repository
	cache   port.QuoteCache
	tracker *SignalTracker
	pub     port.SignalPublisher // optional
}

func NewSignalService(repo port.Repository, cache port.QuoteCache, tracker *SignalTracker, pub port.SignalPublisher) *SignalService {
	return &SignalService{repo: repo, cache: cache, tracker: tracker, pub: pub}
}

// SignalView is a signal enriched with the live price and progress
// toward its target and stop-loss.
type SignalView struct {
	port.Signal
	CurrentPrice     float64 `json:"currentPrice"`
	ProgressToTarget float64 `json:"progressToTarget"`
	ProgressToStop   float64 `json:"progressToStop"`
}

// Dashboard is the aggregate view served at /api/dashboard.
type Dashboard struct {
	Stats   port.SignalStats          `json:"stats"`
	Recent  []port.Signal             `json:"recentSignals"`
	Monthly []port.MonthlyPerformance `json:"monthlyPerformance"`
}

// Create validates and records a new signal. The entry price comes
// from the live cache when the symbol is fresh.
func (s *SignalService) Create(ctx context.Context, symbol string, stopLoss, target float64) (port.Signal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return port.Signal{}, errors.New("symbol is required")
	}
	if stopLoss <= 0 || target <= 0 {
		return port.Signal{}, errors.New("stopLoss and target must be positive")
	}
	if target <= stopLoss {
		return port.Signal{}, errors.New("target must be above stopLoss")
	}

	var entry float64
	if q, ok := s.cache.Get(symbol); ok {
		entry = q.Price
	}

	sig, err := s.repo.CreateSignal(ctx, symbol, stopLoss, target, entry)
	if err != nil {
		return port.Signal{}, err
	}

	if s.tracker != nil {
		s.tracker.Track(sig)
	}
	if s.pub != nil {
		if err := s.pub.PublishSignal(ctx, sig, "created"); err != nil {
			log.Warn().Err(err).Int64("signal", sig.ID).Msg("signal publish failed")
		}
	}
	return sig, nil
}

// List returns every signal with its live price overlay.
func (s *SignalService) List(ctx context.Context) ([]SignalView, error) {
	sigs, err := s.repo.ListSignals(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]SignalView, 0, len(sigs))
	for _, sig := range sigs {
		v := SignalView{Signal: sig}
		if q, ok := s.cache.Get(sig.Symbol); ok {
			v.CurrentPrice = q.Price
			if sig.Target != sig.EntryPrice {
				v.ProgressToTarget = (q.Price - sig.EntryPrice) / (sig.Target - sig.EntryPrice) * 100
			}
			if sig.StopLoss != sig.EntryPrice {
				v.ProgressToStop = (q.Price - sig.EntryPrice) / (sig.StopLoss - sig.EntryPrice) * 100
			}
		}
		views = append(views, v)
	}
	return views, nil
}

// Dashboard assembles performance stats, recent signals and the
// monthly rollup.
func (s *SignalService) Dashboard(ctx context.Context, recentLimit int) (Dashboard, error) {
	if recentLimit <= 0 {
		recentLimit = 10
	}

	stats, err := s.repo.SignalStats(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	recent, err := s.repo.RecentSignals(ctx, recentLimit)
	if err != nil {
		return Dashboard{}, err
	}
	monthly, err := s.repo.MonthlyPerformance(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{Stats: stats, Recent: recent, Monthly: monthly}, nil
}

// SignalTracker closes open signals when the live price crosses their
// target or stop-loss. Observe runs on the ingestion path and must not
// block, so closures go through a small buffered queue to a single
// worker doing the repository writes.
type SignalTracker struct {
	repo port.Repository
	pub  port.SignalPublisher // optional

	mu   sync.Mutex
	open map[string][]port.Signal

	closures chan signalClosure
}

type signalClosure struct {
	sig    port.Signal
	status string
	exit   float64
}

func NewSignalTracker(repo port.Repository, pub port.SignalPublisher) *SignalTracker {
	return &SignalTracker{
		repo:     repo,
		pub:      pub,
		open:     make(map[string][]port.Signal),
		closures: make(chan signalClosure, 64),
	}
}

// Start loads open signals and launches the closure worker.
func (t *SignalTracker) Start(ctx context.Context) error {
	if err := t.Refresh(ctx); err != nil {
		return err
	}
	go t.worker(ctx)
	return nil
}

// Refresh reloads the open-signal index from the repository.
func (t *SignalTracker) Refresh(ctx context.Context) error {
	sigs, err := t.repo.OpenSignals(ctx, "")
	if err != nil {
		return err
	}

	open := make(map[string][]port.Signal, len(sigs))
	for _, sig := range sigs {
		open[sig.Symbol] = append(open[sig.Symbol], sig)
	}

	t.mu.Lock()
	t.open = open
	t.mu.Unlock()
	return nil
}

// Track adds a freshly created signal to the live index.
func (t *SignalTracker) Track(sig port.Signal) {
	t.mu.Lock()
	t.open[sig.Symbol] = append(t.open[sig.Symbol], sig)
	t.mu.Unlock()
}

// Observe checks one trade against the open signals for its symbol.
// Runs on the feed path: index update under the lock, repository
// writes deferred to the worker.
func (t *SignalTracker) Observe(ev port.TradeEvent) {
	t.mu.Lock()
	sigs := t.open[ev.Symbol]
	if len(sigs) == 0 {
		t.mu.Unlock()
		return
	}

	var fired []signalClosure
	remaining := sigs[:0]
	for _, sig := range sigs {
		switch {
		case ev.Price >= sig.Target:
			fired = append(fired, signalClosure{sig: sig, status: port.SignalHitTarget, exit: ev.Price})
		case ev.Price <= sig.StopLoss:
			fired = append(fired, signalClosure{sig: sig, status: port.SignalHitStop, exit: ev.Price})
		default:
			remaining = append(remaining, sig)
		}
	}
	if len(remaining) == 0 {
		delete(t.open, ev.Symbol)
	} else {
		t.open[ev.Symbol] = remaining
	}
	t.mu.Unlock()

	for _, cl := range fired {
		select {
		case t.closures <- cl:
		default:
			// keep tracking so the next trade fires it again
			t.Track(cl.sig)
			log.Warn().Int64("signal", cl.sig.ID).Msg("closure queue full, signal kept open")
		}
	}
}

func (t *SignalTracker) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cl := <-t.closures:
			t.close(ctx, cl)
		}
	}
}

func (t *SignalTracker) close(ctx context.Context, cl signalClosure) {
	wctx, cancel := context.WithTimeout(ctx, persistWriteTimeout)
	defer cancel()

	if err := t.repo.CloseSignal(wctx, cl.sig.ID, cl.status, cl.exit); err != nil {
		// still active in the store, so it must stay in the index
		t.Track(cl.sig)
		log.Error().Err(err).Int64("signal", cl.sig.ID).Str("status", cl.status).Msg("signal close failed, kept open")
		return
	}
	log.Info().Int64("signal", cl.sig.ID).Str("symbol", cl.sig.Symbol).
		Str("status", cl.status).Float64("exit", cl.exit).Msg("signal closed")

	if t.pub != nil {
		cl.sig.Status = cl.status
		cl.sig.ExitPrice = cl.exit
		cl.sig.ClosedAt = time.Now()
		if err := t.pub.PublishSignal(wctx, cl.sig, cl.status); err != nil {
			log.Warn().Err(err).Int64("signal", cl.sig.ID).Msg("signal publish failed")
		}
	}
}
