package optimize

import (
	"errors"
	"fmt"
	"log/slog"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/risk"
	"strategylab/internal/strategy"
)

// MinOptimizationCandles is the smallest history an optimization accepts.
// Below it the indicator warmup dominates the sample and every genome
// scores on noise.
const MinOptimizationCandles = 200

// ErrInsufficientCandles is returned when the candle history is too short
// to optimize on.
var ErrInsufficientCandles = errors.New("insufficient candles for optimization")

// Tuner binds the generic optimizer to the backtest engine for one strategy
// family. Every fitness evaluation builds a fresh engine and position sizer
// so parallel evaluations share nothing.
type Tuner[S any] struct {
	backtest domain.BacktestSettings
	risk     domain.RiskSettings
	genetic  domain.GeneticSettings
	policy   FitnessPolicy
	ops      Operators[S]
	build    func(S) strategy.Strategy
	observer Observer[S]
	workers  int
	log      *slog.Logger
}

// NewTuner creates a tuner for one strategy family. build constructs a
// strategy instance from a genome.
func NewTuner[S any](
	backtestSettings domain.BacktestSettings,
	riskSettings domain.RiskSettings,
	geneticSettings domain.GeneticSettings,
	policy FitnessPolicy,
	ops Operators[S],
	build func(S) strategy.Strategy,
) (*Tuner[S], error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("fitness policy: %w", err)
	}
	if build == nil {
		return nil, errors.New("strategy builder must not be nil")
	}
	return &Tuner[S]{
		backtest: backtestSettings,
		risk:     riskSettings,
		genetic:  geneticSettings,
		policy:   policy,
		ops:      ops,
		build:    build,
		log:      slog.Default().With("component", "tuner"),
	}, nil
}

// SetObserver registers a progress observer for subsequent Optimize calls.
func (t *Tuner[S]) SetObserver(o Observer[S]) { t.observer = o }

// SetWorkers overrides the parallel evaluation worker count.
func (t *Tuner[S]) SetWorkers(n int) { t.workers = n }

// Optimize searches the parameter space against the given candle history.
// The returned result carries the best genome ever observed and the full
// generation history.
func (t *Tuner[S]) Optimize(candles []domain.Candle, symbol string) (*Result[S], error) {
	if len(candles) < MinOptimizationCandles {
		return nil, fmt.Errorf("%w: have %d, need %d",
			ErrInsufficientCandles, len(candles), MinOptimizationCandles)
	}

	fitness := func(s S) (float64, error) {
		if !t.ops.Validate(s) {
			return InvalidGenomePenalty, nil
		}
		sizer := risk.NewFixedFractionalSizer(t.risk, t.backtest.InitialCapital)
		engine := backtest.NewEngine(t.backtest, sizer)
		result, err := engine.Run(t.build(s), candles, symbol)
		if err != nil {
			return 0, err
		}
		return t.policy.Score(result.Metrics), nil
	}

	genetic := NewGenetic(t.genetic, t.ops, fitness)
	genetic.SetObserver(t.observer)
	if t.workers > 0 {
		genetic.SetWorkers(t.workers)
	}

	t.log.Info("starting optimization",
		"symbol", symbol,
		"candles", len(candles),
		"population", t.genetic.PopulationSize,
		"generations", t.genetic.Generations,
		"objective", string(t.policy.Objective))

	result, err := genetic.Optimize()
	if err != nil {
		return nil, err
	}
	t.log.Info("optimization complete",
		"symbol", symbol, "best_fitness", result.BestFitness)
	return result, nil
}
