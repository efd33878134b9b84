package backtest

import (
	"math"
	"time"

	"strategylab/internal/domain"
)

// ProfitFactorMax is the sentinel returned when a run has gross profit and
// no gross loss. A finite value keeps fitness comparisons well-ordered.
const ProfitFactorMax = 999.0

// ComputeMetrics aggregates performance statistics over a completed run. It
// is a pure function of the trade list, the equity curve, the starting
// capital and the run's time span.
func ComputeMetrics(trades []domain.Trade, equity []float64, initialCapital float64, start, end time.Time) domain.PerformanceMetrics {
	var m domain.PerformanceMetrics

	// Trade statistics use net P&L (after commission).
	var grossProfit, grossLoss float64
	var sumWin, sumLoss float64
	var sumHoldingBars int
	var sumHoldingTime time.Duration
	for _, t := range trades {
		net := t.NetPnL()
		if net == nil {
			continue
		}
		m.TotalTrades++
		m.TotalCommission += t.Commission
		sumHoldingBars += t.BarsHeld
		sumHoldingTime += t.HoldingPeriod()

		if *net >= 0 {
			m.WinningTrades++
			sumWin += *net
			grossProfit += *net
			if *net > m.LargestWin {
				m.LargestWin = *net
			}
		} else {
			m.LosingTrades++
			sumLoss += *net
			grossLoss += -*net
			if *net < m.LargestLoss {
				m.LargestLoss = *net
			}
		}
	}
	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
		m.AverageHoldingBars = float64(sumHoldingBars) / float64(m.TotalTrades)
		m.AverageHoldingTime = sumHoldingTime / time.Duration(m.TotalTrades)
	}
	if m.WinningTrades > 0 {
		m.AverageWin = sumWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = sumLoss / float64(m.LosingTrades)
	}
	switch {
	case grossLoss > 0:
		m.ProfitFactor = grossProfit / grossLoss
		if m.ProfitFactor > ProfitFactorMax {
			m.ProfitFactor = ProfitFactorMax
		}
	case grossProfit > 0:
		m.ProfitFactor = ProfitFactorMax
	}

	if len(equity) == 0 || initialCapital <= 0 {
		return m
	}

	final := equity[len(equity)-1]
	m.TotalReturn = (final - initialCapital) / initialCapital * 100

	m.MaxDrawdown, m.MaxDrawdownPercent = maxDrawdown(equity)

	// Annualize with the series' actual average sampling interval so 1h
	// and 1d bars produce comparable ratios.
	periodsPerYear := periodsPerYearOf(start, end, len(equity))
	years := end.Sub(start).Hours() / (24 * 365.25)
	if years > 0 && final > 0 {
		m.AnnualizedReturn = (math.Pow(final/initialCapital, 1/years) - 1) * 100
	}

	returns := periodReturns(equity)
	m.SharpeRatio = sharpe(returns, periodsPerYear)
	m.SortinoRatio = sortino(returns, periodsPerYear)
	return m
}

// maxDrawdown tracks the running peak and returns the worst absolute and
// percentage drawdowns independently.
func maxDrawdown(equity []float64) (abs, pct float64) {
	peak := math.Inf(-1)
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		dd := peak - e
		if dd > abs {
			abs = dd
		}
		if peak > 0 {
			if p := dd / peak * 100; p > pct {
				pct = p
			}
		}
	}
	return abs, pct
}

// periodReturns computes period-over-period equity-curve returns.
func periodReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1]
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (equity[i]-prev)/prev)
	}
	return returns
}

// periodsPerYearOf derives the annualization factor from the actual average
// sampling interval of the series.
func periodsPerYearOf(start, end time.Time, samples int) float64 {
	if samples < 2 {
		return 0
	}
	avgInterval := end.Sub(start) / time.Duration(samples-1)
	if avgInterval <= 0 {
		return 0
	}
	const year = 365.25 * 24 * time.Hour
	return float64(year) / float64(avgInterval)
}

func sharpe(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return 0
	}
	mean := meanOf(returns)
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

func sortino(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return 0
	}
	mean := meanOf(returns)
	downside := 0.0
	for _, r := range returns {
		if r < 0 {
			downside += r * r
		}
	}
	downside = math.Sqrt(downside / float64(len(returns)))
	if downside == 0 {
		if mean > 0 {
			// Loss-free series: mirror the profit-factor sentinel.
			return ProfitFactorMax
		}
		return 0
	}
	return mean / downside * math.Sqrt(periodsPerYear)
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
