// Package store defines the storage interfaces for candle history and run
// results, with a Parquet-backed candle store and a SQLite-backed result
// store.
package store

import (
	"context"
	"time"

	"strategylab/internal/domain"
)

// CandleStore persists and retrieves OHLCV candle history.
type CandleStore interface {
	// WriteCandles persists a batch of candles for the given timeframe.
	WriteCandles(ctx context.Context, timeframe string, candles []domain.Candle) error

	// ReadCandles returns candles for the symbol and timeframe whose open
	// time falls within [start, end], sorted by open time.
	ReadCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Candle, error)

	// ListSymbols returns all distinct symbols with data in the timeframe.
	ListSymbols(ctx context.Context, timeframe string) ([]string, error)
}

// BacktestSummary is the run-level row persisted for each backtest.
type BacktestSummary struct {
	ID             int64
	StrategyName   string
	Symbol         string
	StartDate      time.Time
	EndDate        time.Time
	InitialCapital float64
	FinalCapital   float64
	TotalReturn    float64
	SharpeRatio    float64
	MaxDrawdownPct float64
	TotalTrades    int
	WinRate        float64
	ProfitFactor   float64
	CreatedAt      time.Time
}

// OptimizationRun is the persisted record of one optimization, with its
// per-generation history. BestSettings is a JSON blob; the store does not
// interpret strategy parameters.
type OptimizationRun struct {
	ID           int64
	StrategyName string
	Symbol       string
	Objective    string
	BestFitness  float64
	BestSettings string
	StartedAt    time.Time
	FinishedAt   time.Time
	Generations  []GenerationRecord
}

// GenerationRecord is one generation's fitness statistics.
type GenerationRecord struct {
	Generation     int
	BestFitness    float64
	AverageFitness float64
	WorstFitness   float64
}

// ResultStore persists backtest and optimization results.
type ResultStore interface {
	// SaveBacktest persists a backtest run with its trades and returns the
	// new run ID.
	SaveBacktest(ctx context.Context, result *domain.BacktestResult) (int64, error)

	// ListBacktests returns the most recent runs for a symbol, newest
	// first, up to limit. An empty symbol matches all runs.
	ListBacktests(ctx context.Context, symbol string, limit int) ([]BacktestSummary, error)

	// GetTrades returns the trades of a backtest run in entry-time order.
	GetTrades(ctx context.Context, runID int64) ([]domain.Trade, error)

	// SaveOptimization persists an optimization run with its generation
	// history and returns the new run ID.
	SaveOptimization(ctx context.Context, run *OptimizationRun) (int64, error)

	// ListOptimizations returns the most recent optimization runs for a
	// symbol, newest first, up to limit. An empty symbol matches all runs.
	ListOptimizations(ctx context.Context, symbol string, limit int) ([]OptimizationRun, error)
}
