package backtest

import (
	"fmt"
	"time"

	"strategylab/internal/domain"
	"strategylab/internal/strategy"
)

// WalkForwardWindow is the result of one rolling window: an in-sample run and
// the immediately following out-of-sample run, each with an independent,
// freshly reset strategy instance.
type WalkForwardWindow struct {
	InSampleStart  time.Time
	InSampleEnd    time.Time
	OutSampleStart time.Time
	OutSampleEnd   time.Time
	InSample       domain.PerformanceMetrics
	OutSample      domain.PerformanceMetrics
}

// WalkForwardResult summarizes a rolling-window robustness analysis.
type WalkForwardResult struct {
	Windows []WalkForwardWindow

	// Efficiency is average out-of-sample annualized return over average
	// in-sample annualized return, in percent.
	Efficiency float64
	// Consistency is the share of windows with a positive out-of-sample
	// return, in percent.
	Consistency float64
	// AvgOutSampleSharpe is the mean out-of-sample Sharpe ratio.
	AvgOutSampleSharpe float64
	// Robust is set when efficiency, consistency and the out-of-sample
	// Sharpe all clear their configured thresholds simultaneously.
	Robust bool
}

// WalkForwardAnalyzer splits a candle series into rolling in-sample /
// out-of-sample windows and backtests each slice independently.
type WalkForwardAnalyzer struct {
	settings domain.WalkForwardSettings
	engine   *Engine
	factory  strategy.Factory
}

// NewWalkForwardAnalyzer creates an analyzer that runs the given engine over
// fresh strategy instances produced by the factory.
func NewWalkForwardAnalyzer(settings domain.WalkForwardSettings, engine *Engine, factory strategy.Factory) *WalkForwardAnalyzer {
	return &WalkForwardAnalyzer{settings: settings, engine: engine, factory: factory}
}

// Run slides the window across the series. It fails when the fractions
// produce an empty window.
func (a *WalkForwardAnalyzer) Run(candles []domain.Candle, symbol string) (*WalkForwardResult, error) {
	if len(candles) == 0 {
		return nil, domain.ErrNoCandles
	}

	n := len(candles)
	inLen := int(float64(n) * a.settings.InSampleFraction)
	outLen := int(float64(n) * a.settings.OutSampleFraction)
	step := int(float64(n) * a.settings.StepFraction)
	if inLen < 1 || outLen < 1 || step < 1 {
		return nil, fmt.Errorf("walk-forward fractions (%v/%v/%v) produce empty windows over %d candles",
			a.settings.InSampleFraction, a.settings.OutSampleFraction, a.settings.StepFraction, n)
	}

	var result WalkForwardResult
	var sumIn, sumOut, sumOutSharpe float64
	positive := 0

	for start := 0; start+inLen+outLen <= n; start += step {
		inSlice := candles[start : start+inLen]
		outSlice := candles[start+inLen : start+inLen+outLen]

		inResult, err := a.engine.Run(a.factory(), inSlice, symbol)
		if err != nil {
			return nil, fmt.Errorf("in-sample window at %d: %w", start, err)
		}
		outResult, err := a.engine.Run(a.factory(), outSlice, symbol)
		if err != nil {
			return nil, fmt.Errorf("out-of-sample window at %d: %w", start, err)
		}

		result.Windows = append(result.Windows, WalkForwardWindow{
			InSampleStart:  inSlice[0].OpenTime,
			InSampleEnd:    inSlice[len(inSlice)-1].CloseTime,
			OutSampleStart: outSlice[0].OpenTime,
			OutSampleEnd:   outSlice[len(outSlice)-1].CloseTime,
			InSample:       inResult.Metrics,
			OutSample:      outResult.Metrics,
		})

		sumIn += inResult.Metrics.AnnualizedReturn
		sumOut += outResult.Metrics.AnnualizedReturn
		sumOutSharpe += outResult.Metrics.SharpeRatio
		if outResult.Metrics.TotalReturn > 0 {
			positive++
		}
	}

	windows := len(result.Windows)
	if windows == 0 {
		return nil, fmt.Errorf("series of %d candles too short for walk-forward windows of %d+%d", n, inLen, outLen)
	}

	avgIn := sumIn / float64(windows)
	avgOut := sumOut / float64(windows)
	if avgIn != 0 {
		result.Efficiency = avgOut / avgIn * 100
	}
	result.Consistency = float64(positive) / float64(windows) * 100
	result.AvgOutSampleSharpe = sumOutSharpe / float64(windows)

	result.Robust = result.Efficiency >= a.settings.MinEfficiency &&
		result.Consistency >= a.settings.MinConsistency &&
		result.AvgOutSampleSharpe >= a.settings.MinOOSSharpe
	return &result, nil
}
