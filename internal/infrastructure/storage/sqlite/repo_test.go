package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"coinpulse/internal/application/port"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestInsertAndHistory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		err := repo.InsertPrice(ctx, "BTC", 65000+float64(i), 0.1, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("InsertPrice: %v", err)
		}
	}
	if err := repo.InsertPrice(ctx, "ETH", 3500, 1, base); err != nil {
		t.Fatalf("InsertPrice: %v", err)
	}

	hist, err := repo.PriceHistory(ctx, "BTC", 3)
	if err != nil {
		t.Fatalf("PriceHistory: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(hist))
	}
	if hist[0].Price != 65004 {
		t.Errorf("newest first: got %v, want 65004", hist[0].Price)
	}
	for _, p := range hist {
		if p.Symbol != "BTC" {
			t.Errorf("wrong symbol in history: %q", p.Symbol)
		}
	}
}

func TestLatestPerSymbol(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	repo.InsertPrice(ctx, "BTC", 64000, 0.1, now.Add(-time.Minute))
	repo.InsertPrice(ctx, "BTC", 65000, 0.2, now)
	repo.InsertPrice(ctx, "ETH", 3500, 1, now)

	latest, err := repo.LatestPerSymbol(ctx)
	if err != nil {
		t.Fatalf("LatestPerSymbol: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(latest))
	}
	// ordered by symbol
	if latest[0].Symbol != "BTC" || latest[0].Price != 65000 {
		t.Errorf("BTC latest = %+v, want price 65000", latest[0])
	}
	if latest[1].Symbol != "ETH" {
		t.Errorf("expected ETH second, got %+v", latest[1])
	}
}

func TestSearchSymbols(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	repo.InsertPrice(ctx, "BTC", 65000, 0.1, now)
	repo.InsertPrice(ctx, "ETH", 3500, 1, now)
	repo.InsertPrice(ctx, "BCH", 450, 2, now)

	got, err := repo.SearchSymbols(ctx, "bt", 10)
	if err != nil {
		t.Fatalf("SearchSymbols: %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "BTC" {
		t.Errorf("search bt = %+v, want just BTC", got)
	}

	got, err = repo.SearchSymbols(ctx, "B", 10)
	if err != nil {
		t.Fatalf("SearchSymbols: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("search B matched %d symbols, want 2 (BCH, BTC)", len(got))
	}
}

func TestCoinStatsChange(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	// reference from before the 24h window, latest from now: +10%
	repo.InsertPrice(ctx, "BTC", 50000, 0.1, now.Add(-25*time.Hour))
	repo.InsertPrice(ctx, "BTC", 55000, 0.1, now)
	// no reference for ETH: change stays zero
	repo.InsertPrice(ctx, "ETH", 3500, 1, now)

	stats, err := repo.CoinStats(ctx)
	if err != nil {
		t.Fatalf("CoinStats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 coins, got %d", len(stats))
	}

	btc := stats[0]
	if btc.Symbol != "BTC" {
		t.Fatalf("expected BTC first, got %+v", btc)
	}
	if btc.Price != 55000 {
		t.Errorf("BTC price = %v, want latest 55000", btc.Price)
	}
	if btc.Change24h < 9.99 || btc.Change24h > 10.01 {
		t.Errorf("BTC change = %v, want ~10", btc.Change24h)
	}
	if btc.Trades24h != 1 {
		t.Errorf("BTC 24h trades = %d, want 1", btc.Trades24h)
	}

	eth := stats[1]
	if eth.Change24h != 0 {
		t.Errorf("ETH change = %v, want 0 without reference", eth.Change24h)
	}
}

func TestDeleteOldPrices(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	repo.InsertPrice(ctx, "BTC", 60000, 0.1, now.Add(-48*time.Hour))
	repo.InsertPrice(ctx, "BTC", 61000, 0.1, now.Add(-36*time.Hour))
	repo.InsertPrice(ctx, "BTC", 65000, 0.1, now)

	n, err := repo.DeleteOldPrices(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOldPrices: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d rows, want 2", n)
	}

	hist, _ := repo.PriceHistory(ctx, "BTC", 10)
	if len(hist) != 1 {
		t.Errorf("%d rows remain, want 1", len(hist))
	}
}

func TestSignalLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	sig, err := repo.CreateSignal(ctx, "BTC", 60000, 70000, 65000)
	if err != nil {
		t.Fatalf("CreateSignal: %v", err)
	}
	if sig.ID == 0 || sig.Status != port.SignalActive {
		t.Fatalf("unexpected signal: %+v", sig)
	}

	open, err := repo.OpenSignals(ctx, "BTC")
	if err != nil {
		t.Fatalf("OpenSignals: %v", err)
	}
	if len(open) != 1 || open[0].ID != sig.ID {
		t.Fatalf("open signals = %+v", open)
	}

	if err := repo.CloseSignal(ctx, sig.ID, port.SignalHitTarget, 70500); err != nil {
		t.Fatalf("CloseSignal: %v", err)
	}

	open, _ = repo.OpenSignals(ctx, "")
	if len(open) != 0 {
		t.Errorf("signal still open after close: %+v", open)
	}

	all, err := repo.ListSignals(ctx)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(all))
	}
	got := all[0]
	if got.Status != port.SignalHitTarget || got.ExitPrice != 70500 {
		t.Errorf("closed signal = %+v", got)
	}
	if got.ClosedAt.IsZero() {
		t.Error("closedAt not recorded")
	}
}

func TestCloseSignalOnlyWhileActive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	sig, _ := repo.CreateSignal(ctx, "BTC", 60000, 70000, 65000)
	repo.CloseSignal(ctx, sig.ID, port.SignalHitTarget, 70500)

	// second close must not overwrite the first outcome
	repo.CloseSignal(ctx, sig.ID, port.SignalHitStop, 59000)

	all, _ := repo.ListSignals(ctx)
	if all[0].Status != port.SignalHitTarget || all[0].ExitPrice != 70500 {
		t.Errorf("outcome overwritten: %+v", all[0])
	}
}

func TestSignalStats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	s1, _ := repo.CreateSignal(ctx, "BTC", 60000, 70000, 65000)
	s2, _ := repo.CreateSignal(ctx, "ETH", 3000, 4000, 3500)
	repo.CreateSignal(ctx, "SOL", 100, 200, 150) // stays open

	repo.CloseSignal(ctx, s1.ID, port.SignalHitTarget, 70000) // +5000
	repo.CloseSignal(ctx, s2.ID, port.SignalHitStop, 3000)    // -500

	st, err := repo.SignalStats(ctx)
	if err != nil {
		t.Fatalf("SignalStats: %v", err)
	}
	if st.TotalClosed != 2 || st.Successful != 1 || st.Failed != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.TotalProfit != 4500 {
		t.Errorf("totalProfit = %v, want 4500", st.TotalProfit)
	}
	if st.SuccessPct != 50 || st.FailPct != 50 {
		t.Errorf("percentages = %v / %v, want 50 / 50", st.SuccessPct, st.FailPct)
	}
}

func TestMonthlyPerformance(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	sig, _ := repo.CreateSignal(ctx, "BTC", 60000, 70000, 65000)
	repo.CloseSignal(ctx, sig.ID, port.SignalHitTarget, 70000)

	months, err := repo.MonthlyPerformance(ctx)
	if err != nil {
		t.Fatalf("MonthlyPerformance: %v", err)
	}
	if len(months) != 1 {
		t.Fatalf("expected 1 month, got %d", len(months))
	}
	want := time.Now().UTC().Format("2006-01")
	if months[0].Month != want {
		t.Errorf("month = %q, want %q", months[0].Month, want)
	}
	if months[0].TotalSignals != 1 || months[0].TotalProfit != 5000 {
		t.Errorf("month rollup = %+v", months[0])
	}
}

func TestSignalStatsEmpty(t *testing.T) {
	repo := newTestRepo(t)

	st, err := repo.SignalStats(context.Background())
	if err != nil {
		t.Fatalf("SignalStats: %v", err)
	}
	if st.TotalClosed != 0 || st.SuccessPct != 0 {
		t.Errorf("empty stats = %+v", st)
	}
}
