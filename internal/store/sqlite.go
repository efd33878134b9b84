package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"strategylab/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements ResultStore backed by a SQLite database. All
// timestamps are stored as Unix milliseconds in UTC.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy         TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	start_date       INTEGER NOT NULL,
	end_date         INTEGER NOT NULL,
	initial_capital  REAL NOT NULL,
	final_capital    REAL NOT NULL,
	total_return     REAL NOT NULL,
	sharpe_ratio     REAL NOT NULL,
	max_drawdown_pct REAL NOT NULL,
	total_trades     INTEGER NOT NULL,
	win_rate         REAL NOT NULL,
	profit_factor    REAL NOT NULL,
	created_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      INTEGER NOT NULL REFERENCES backtest_runs(id),
	symbol      TEXT NOT NULL,
	direction   TEXT NOT NULL,
	entry_time  INTEGER NOT NULL,
	exit_time   INTEGER,
	entry_price REAL NOT NULL,
	exit_price  REAL,
	quantity    REAL NOT NULL,
	commission  REAL NOT NULL,
	bars_held   INTEGER NOT NULL,
	exit_reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);

CREATE TABLE IF NOT EXISTS optimization_runs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy      TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	objective     TEXT NOT NULL,
	best_fitness  REAL NOT NULL,
	best_settings TEXT NOT NULL,
	started_at    INTEGER NOT NULL,
	finished_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS generation_stats (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       INTEGER NOT NULL REFERENCES optimization_runs(id),
	generation   INTEGER NOT NULL,
	best_fitness REAL NOT NULL,
	avg_fitness  REAL NOT NULL,
	worst_fitness REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_generation_stats_run ON generation_stats(run_id);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveBacktest persists a backtest run with its trades in one transaction.
func (s *SQLiteStore) SaveBacktest(ctx context.Context, result *domain.BacktestResult) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	m := result.Metrics
	res, err := tx.ExecContext(ctx, `
		INSERT INTO backtest_runs (
			strategy, symbol, start_date, end_date, initial_capital,
			final_capital, total_return, sharpe_ratio, max_drawdown_pct,
			total_trades, win_rate, profit_factor, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.StrategyName, result.Symbol,
		result.StartDate.UnixMilli(), result.EndDate.UnixMilli(),
		result.InitialCapital, result.FinalCapital,
		m.TotalReturn, m.SharpeRatio, m.MaxDrawdownPercent,
		m.TotalTrades, m.WinRate, m.ProfitFactor,
		time.Now().UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("inserting backtest run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (
			run_id, symbol, direction, entry_time, exit_time,
			entry_price, exit_price, quantity, commission, bars_held, exit_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, t := range result.Trades {
		var exitTime, exitPrice any
		if t.ExitTime != nil {
			exitTime = t.ExitTime.UnixMilli()
		}
		if t.ExitPrice != nil {
			exitPrice = *t.ExitPrice
		}
		if _, err := stmt.ExecContext(ctx,
			runID, t.Symbol, t.Direction.String(), t.EntryTime.UnixMilli(),
			exitTime, t.EntryPrice, exitPrice, t.Quantity,
			t.Commission, t.BarsHeld, t.ExitReason); err != nil {
			return 0, fmt.Errorf("inserting trade: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// ListBacktests returns the most recent runs for a symbol, newest first. An
// empty symbol matches all runs.
func (s *SQLiteStore) ListBacktests(ctx context.Context, symbol string, limit int) ([]BacktestSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbol, start_date, end_date, initial_capital,
		       final_capital, total_return, sharpe_ratio, max_drawdown_pct,
		       total_trades, win_rate, profit_factor, created_at
		FROM backtest_runs
		WHERE (? = '' OR symbol = ?)
		ORDER BY created_at DESC
		LIMIT ?`, symbol, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []BacktestSummary
	for rows.Next() {
		var b BacktestSummary
		var startMs, endMs, createdMs int64
		if err := rows.Scan(&b.ID, &b.StrategyName, &b.Symbol, &startMs, &endMs,
			&b.InitialCapital, &b.FinalCapital, &b.TotalReturn, &b.SharpeRatio,
			&b.MaxDrawdownPct, &b.TotalTrades, &b.WinRate, &b.ProfitFactor,
			&createdMs); err != nil {
			return nil, err
		}
		b.StartDate = time.UnixMilli(startMs).UTC()
		b.EndDate = time.UnixMilli(endMs).UTC()
		b.CreatedAt = time.UnixMilli(createdMs).UTC()
		summaries = append(summaries, b)
	}
	return summaries, rows.Err()
}

// GetTrades returns the trades of a backtest run in entry-time order.
func (s *SQLiteStore) GetTrades(ctx context.Context, runID int64) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, direction, entry_time, exit_time, entry_price,
		       exit_price, quantity, commission, bars_held, exit_reason
		FROM trades
		WHERE run_id = ?
		ORDER BY entry_time`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var direction string
		var entryMs int64
		var exitMs sql.NullInt64
		var exitPrice sql.NullFloat64
		if err := rows.Scan(&t.Symbol, &direction, &entryMs, &exitMs,
			&t.EntryPrice, &exitPrice, &t.Quantity, &t.Commission,
			&t.BarsHeld, &t.ExitReason); err != nil {
			return nil, err
		}
		if direction == domain.DirectionShort.String() {
			t.Direction = domain.DirectionShort
		}
		t.EntryTime = time.UnixMilli(entryMs).UTC()
		if exitMs.Valid {
			et := time.UnixMilli(exitMs.Int64).UTC()
			t.ExitTime = &et
		}
		if exitPrice.Valid {
			ep := exitPrice.Float64
			t.ExitPrice = &ep
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveOptimization persists an optimization run with its generation history
// in one transaction.
func (s *SQLiteStore) SaveOptimization(ctx context.Context, run *OptimizationRun) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO optimization_runs (
			strategy, symbol, objective, best_fitness, best_settings,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.StrategyName, run.Symbol, run.Objective, run.BestFitness,
		run.BestSettings, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("inserting optimization run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, g := range run.Generations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO generation_stats (
				run_id, generation, best_fitness, avg_fitness, worst_fitness
			) VALUES (?, ?, ?, ?, ?)`,
			runID, g.Generation, g.BestFitness, g.AverageFitness, g.WorstFitness); err != nil {
			return 0, fmt.Errorf("inserting generation stats: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// ListOptimizations returns the most recent optimization runs for a symbol,
// newest first, without their generation history. An empty symbol matches
// all runs.
func (s *SQLiteStore) ListOptimizations(ctx context.Context, symbol string, limit int) ([]OptimizationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbol, objective, best_fitness, best_settings,
		       started_at, finished_at
		FROM optimization_runs
		WHERE (? = '' OR symbol = ?)
		ORDER BY finished_at DESC
		LIMIT ?`, symbol, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []OptimizationRun
	for rows.Next() {
		var r OptimizationRun
		var startedMs, finishedMs int64
		if err := rows.Scan(&r.ID, &r.StrategyName, &r.Symbol, &r.Objective,
			&r.BestFitness, &r.BestSettings, &startedMs, &finishedMs); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(startedMs).UTC()
		r.FinishedAt = time.UnixMilli(finishedMs).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
