package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"coinpulse/internal/application/port"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS price_history (
  id BIGSERIAL PRIMARY KEY,
  symbol TEXT NOT NULL,
  price DOUBLE PRECISION NOT NULL,
  volume DOUBLE PRECISION NOT NULL DEFAULT 0,
  ts_ms BIGINT NOT NULL,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_symbol_ts ON price_history(symbol, ts_ms DESC);
CREATE INDEX IF NOT EXISTS idx_history_ts ON price_history(ts_ms);

CREATE TABLE IF NOT EXISTS signals (
  id BIGSERIAL PRIMARY KEY,
  symbol TEXT NOT NULL,
  stop_loss DOUBLE PRECISION NOT NULL,
  target DOUBLE PRECISION NOT NULL,
  entry_price DOUBLE PRECISION NOT NULL,
  exit_price DOUBLE PRECISION,
  status TEXT NOT NULL DEFAULT 'active',
  created_at BIGINT NOT NULL,
  closed_at BIGINT
);
CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);
CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status);
`)
	return err
}

func (r *Repo) InsertPrice(ctx context.Context, symbol string, price, volume float64, ts time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO price_history(symbol, price, volume, ts_ms, created_at)
		VALUES($1, $2, $3, $4, $5)
	`, symbol, price, volume, ts.UnixMilli(), time.Now().UnixMilli())
	return err
}

func (r *Repo) PriceHistory(ctx context.Context, symbol string, limit int) ([]port.PricePoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, price, volume, ts_ms, created_at
		FROM price_history
		WHERE symbol = $1
		ORDER BY ts_ms DESC
		LIMIT $2
	`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPoints(rows)
}

func (r *Repo) LatestPerSymbol(ctx context.Context) ([]port.PricePoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (symbol) symbol, price, volume, ts_ms, created_at
		FROM price_history
		ORDER BY symbol, ts_ms DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPoints(rows)
}

func (r *Repo) SearchSymbols(ctx context.Context, term string, limit int) ([]port.PricePoint, error) {
	pattern := "%" + strings.TrimSpace(term) + "%"
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (symbol) symbol, price, volume, ts_ms, created_at
		FROM price_history
		WHERE symbol ILIKE $1
		ORDER BY symbol, ts_ms DESC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPoints(rows)
}

func (r *Repo) CoinStats(ctx context.Context) ([]port.CoinStat, error) {
	cutoff := time.Now().Add(-24 * time.Hour).UnixMilli()
	rows, err := r.db.QueryContext(ctx, `
		WITH latest AS (
			SELECT DISTINCT ON (symbol) symbol, price, ts_ms
			FROM price_history
			ORDER BY symbol, ts_ms DESC
		),
		ref AS (
			SELECT DISTINCT ON (symbol) symbol, price
			FROM price_history
			WHERE ts_ms <= $1
			ORDER BY symbol, ts_ms DESC
		),
		counts AS (
			SELECT symbol, COUNT(*) AS n
			FROM price_history
			WHERE ts_ms >= $1
			GROUP BY symbol
		)
		SELECT l.symbol, l.price, l.ts_ms, COALESCE(c.n, 0), r.price
		FROM latest l
		LEFT JOIN ref r ON r.symbol = l.symbol
		LEFT JOIN counts c ON c.symbol = l.symbol
		ORDER BY l.symbol
	`, cutoff)
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM price_history WHERE ts_ms < $1`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repo) CreateSignal(ctx context.Context, symbol string, stopLoss, target, entryPrice float64) (port.Signal, error) {
	now := time.Now()
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO signals(symbol, stop_loss, target, entry_price, status, created_at)
		VALUES($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, symbol, stopLoss, target, entryPrice, port.SignalActive, now.UnixMilli()).Scan(&id)
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
		WHERE status = $1`
	args := []any{port.SignalActive}
	if symbol != "" {
		query += ` AND symbol = $2`
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
		SET status = $1, exit_price = $2, closed_at = $3
		WHERE id = $4 AND status = $5
	`, status, exitPrice, time.Now().UnixMilli(), id, port.SignalActive)
	return err
}

func (r *Repo) SignalStats(ctx context.Context) (port.SignalStats, error) {
	var st port.SignalStats
	var profit sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = $1),
		       COUNT(*) FILTER (WHERE status = $2),
		       SUM(COALESCE(exit_price, 0) - entry_price)
		FROM signals
		WHERE status != $3
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
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSignals(rows)
}

func (r *Repo) MonthlyPerformance(ctx context.Context) ([]port.MonthlyPerformance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT TO_CHAR(TO_TIMESTAMP(created_at / 1000.0), 'YYYY-MM') AS month,
		       COUNT(*),
		       SUM(CASE WHEN status != $1 THEN COALESCE(exit_price, 0) - entry_price ELSE 0 END)
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
