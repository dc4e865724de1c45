package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"coinpulse/internal/application/port"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) GetDB() *sql.DB {
	return r.db
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS price_history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  symbol TEXT NOT NULL,
  price REAL NOT NULL,
  volume REAL NOT NULL DEFAULT 0,
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_symbol_ts ON price_history(symbol, ts_ms DESC);
CREATE INDEX IF NOT EXISTS idx_history_ts ON price_history(ts_ms);

CREATE TABLE IF NOT EXISTS signals (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  symbol TEXT NOT NULL,
  stop_loss REAL NOT NULL,
  target REAL NOT NULL,
  entry_price REAL NOT NULL,
  exit_price REAL,
  status TEXT NOT NULL DEFAULT 'active',
  created_at INTEGER NOT NULL,
  closed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);
CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status);
`)
	return err
}

func (r *Repo) InsertPrice(ctx context.Context, symbol string, price, volume float64, ts time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO price_history(symbol, price, volume, ts_ms, created_at)
		VALUES(?, ?, ?, ?, ?)
	`, symbol, price, volume, ts.UnixMilli(), time.Now().UnixMilli())
	return err
}

func (r *Repo) PriceHistory(ctx context.Context, symbol string, limit int) ([]port.PricePoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, price, volume, ts_ms, created_at
		FROM price_history
		WHERE symbol = ?
		ORDER BY ts_ms DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPoints(rows)
}

func (r *Repo) LatestPerSymbol(ctx context.Context) ([]port.PricePoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH ranked AS (
			SELECT symbol, price, volume, ts_ms, created_at,
			       ROW_NUMBER() OVER (PARTITION BY symbol ORDER BY ts_ms DESC) AS rn
			FROM price_history
		)
		SELECT symbol, price, volume, ts_ms, created_at
		FROM ranked WHERE rn = 1
		ORDER BY symbol
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPoints(rows)
}

func (r *Repo) SearchSymbols(ctx context.Context, term string, limit int) ([]port.PricePoint, error) {
	pattern := "%" + strings.ToUpper(strings.TrimSpace(term)) + "%"
	rows, err := r.db.QueryContext(ctx, `
		WITH ranked AS (
			SELECT symbol, price, volume, ts_ms, created_at,
			       ROW_NUMBER() OVER (PARTITION BY symbol ORDER BY ts_ms DESC) AS rn
			FROM price_history
			WHERE symbol LIKE ?
		)
		SELECT symbol, price, volume, ts_ms, created_at
		FROM ranked WHERE rn = 1
		ORDER BY symbol
		LIMIT ?
	`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPoints(rows)
}

// CoinStats joins the latest observation per symbol with a 24h-old
// reference price and a 24h trade count. The percent change is computed
// here rather than in SQL so a missing reference degrades to zero.
func (r *Repo) CoinStats(ctx context.Context) ([]port.CoinStat, error) {
	cutoff := time.Now().Add(-24 * time.Hour).UnixMilli()
	rows, err := r.db.QueryContext(ctx, `
		WITH latest AS (
			SELECT symbol, price, ts_ms,
			       ROW_NUMBER() OVER (PARTITION BY symbol ORDER BY ts_ms DESC) AS rn
			FROM price_history
		),
		ref AS (
			SELECT symbol, price,
			       ROW_NUMBER() OVER (PARTITION BY symbol ORDER BY ts_ms DESC) AS rn
			FROM price_history
			WHERE ts_ms <= ?
		),
		counts AS (
			SELECT symbol, COUNT(*) AS n
			FROM price_history
			WHERE ts_ms >= ?
			GROUP BY symbol
		)
		SELECT l.symbol, l.price, l.ts_ms, COALESCE(c.n, 0), r.price
		FROM latest l
		LEFT JOIN ref r ON r.symbol = l.symbol AND r.rn = 1
		LEFT JOIN counts c ON c.symbol = l.symbol
		WHERE l.rn = 1
		ORDER BY l.symbol
	`, cutoff, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []port.CoinStat
	for rows.Next() {
		var st port.CoinStat
		var ts int64
		var ref sql.NullFloat64
		if err := rows.Scan(&st.Symbol, &st.Price, &ts, &st.Trades24h, &ref); err != nil {
			return nil, err
		}
		st.LastUpdated = time.UnixMilli(ts)
		if ref.Valid && ref.Float64 > 0 {
			st.Change24h = (st.Price - ref.Float64) / ref.Float64 * 100
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (r *Repo) DeleteOldPrices(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM price_history WHERE ts_ms < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repo) CreateSignal(ctx context.Context, symbol string, stopLoss, target, entryPrice float64) (port.Signal, error) {
	now := time.Now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO signals(symbol, stop_loss, target, entry_price, status, created_at)
		VALUES(?, ?, ?, ?, ?, ?)
	`, symbol, stopLoss, target, entryPrice, port.SignalActive, now.UnixMilli())
	if err != nil {
		return port.Signal{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return port.Signal{}, err
	}
	return port.Signal{
		ID:         id,
		Symbol:     symbol,
		StopLoss:   stopLoss,
		Target:     target,
		EntryPrice: entryPrice,
		Status:     port.SignalActive,
		CreatedAt:  now,
	}, nil
}

func (r *Repo) ListSignals(ctx context.Context) ([]port.Signal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, symbol, stop_loss, target, entry_price, exit_price, status, created_at, closed_at
		FROM signals
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSignals(rows)
}

func (r *Repo) OpenSignals(ctx context.Context, symbol string) ([]port.Signal, error) {
	query := `
		SELECT id, symbol, stop_loss, target, entry_price, exit_price, status, created_at, closed_at
		FROM signals
		WHERE status = ?`
	args := []any{port.SignalActive}
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSignals(rows)
}

func (r *Repo) CloseSignal(ctx context.Context, id int64, status string, exitPrice float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE signals
		SET status = ?, exit_price = ?, closed_at = ?
		WHERE id = ? AND status = ?
	`, status, exitPrice, time.Now().UnixMilli(), id, port.SignalActive)
	return err
}

func (r *Repo) SignalStats(ctx context.Context) (port.SignalStats, error) {
	var st port.SignalStats
	var profit sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       SUM(COALESCE(exit_price, 0) - entry_price)
		FROM signals
		WHERE status != ?
	`, port.SignalHitTarget, port.SignalHitStop, port.SignalActive).
		Scan(&st.TotalClosed, &st.Successful, &st.Failed, &profit)
	if err != nil {
		return port.SignalStats{}, err
	}
	st.TotalProfit = profit.Float64
	if st.TotalClosed > 0 {
		st.SuccessPct = float64(st.Successful) / float64(st.TotalClosed) * 100
		st.FailPct = float64(st.Failed) / float64(st.TotalClosed) * 100
	}
	return st, nil
}

func (r *Repo) RecentSignals(ctx context.Context, limit int) ([]port.Signal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, symbol, stop_loss, target, entry_price, exit_price, status, created_at, closed_at
		FROM signals
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSignals(rows)
}

func (r *Repo) MonthlyPerformance(ctx context.Context) ([]port.MonthlyPerformance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m', created_at / 1000, 'unixepoch') AS month,
		       COUNT(*),
		       SUM(CASE WHEN status != ? THEN COALESCE(exit_price, 0) - entry_price ELSE 0 END)
		FROM signals
		GROUP BY month
		ORDER BY month DESC
	`, port.SignalActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []port.MonthlyPerformance
	for rows.Next() {
		var mp port.MonthlyPerformance
		var profit sql.NullFloat64
		if err := rows.Scan(&mp.Month, &mp.TotalSignals, &profit); err != nil {
			return nil, err
		}
		mp.TotalProfit = profit.Float64
		out = append(out, mp)
	}
	return out, rows.Err()
}

func scanPoints(rows *sql.Rows) ([]port.PricePoint, error) {
	var out []port.PricePoint
	for rows.Next() {
		var p port.PricePoint
		var ts, created int64
		if err := rows.Scan(&p.Symbol, &p.Price, &p.Volume, &ts, &created); err != nil {
			return nil, err
		}
		p.Timestamp = time.UnixMilli(ts)
		p.CreatedAt = time.UnixMilli(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanSignals(rows *sql.Rows) ([]port.Signal, error) {
	var out []port.Signal
	for rows.Next() {
		var s port.Signal
		var exit sql.NullFloat64
		var created int64
		var closed sql.NullInt64
		if err := rows.Scan(&s.ID, &s.Symbol, &s.StopLoss, &s.Target, &s.EntryPrice, &exit, &s.Status, &created, &closed); err != nil {
			return nil, err
		}
		s.ExitPrice = exit.Float64
		s.CreatedAt = time.UnixMilli(created)
		if closed.Valid {
			s.ClosedAt = time.UnixMilli(closed.Int64)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var _ port.Repository = (*Repo)(nil)
