package backtest

import (
	"math/rand"
	"sort"

	"strategylab/internal/domain"
)

// MinMonteCarloTrades is the smallest closed-trade count for which order
// permutation is statistically meaningful. Below it the simulator returns
// the original metrics as a zero-width distribution instead of failing.
const MinMonteCarloTrades = 10

// MonteCarloResult holds the resampled return and drawdown distributions.
type MonteCarloResult struct {
	// Iterations is the number of permutations replayed. Zero marks a
	// degenerate result: too few trades to resample, every percentile
	// equals the original outcome.
	Iterations     int
	OriginalReturn float64 // percent

	MedianReturn float64
	P5Return     float64
	P95Return    float64

	MedianMaxDrawdown float64 // percent
	P95MaxDrawdown    float64

	// RuinProbability is the fraction of permutations whose total return
	// was at or below the configured ruin line.
	RuinProbability float64
}

// MonteCarloSimulator estimates the dispersion of a strategy's outcome by
// replaying random permutations of its closed trades. Permuting the order
// preserves the total P&L but reshapes the drawdown path.
type MonteCarloSimulator struct {
	settings domain.MonteCarloSettings
}

// NewMonteCarloSimulator creates a simulator with the given settings.
func NewMonteCarloSimulator(settings domain.MonteCarloSettings) *MonteCarloSimulator {
	return &MonteCarloSimulator{settings: settings}
}

// Run resamples the result's closed trades. The injected seed makes runs
// reproducible.
func (s *MonteCarloSimulator) Run(result *domain.BacktestResult) MonteCarloResult {
	pnls := closedTradePnLs(result.Trades)
	initial := result.InitialCapital

	originalReturn, originalDD := replayPnL(pnls, initial)

	if len(pnls) < MinMonteCarloTrades {
		// Too few trades for permutation testing; report the original
		// outcome with a zero-width distribution.
		out := MonteCarloResult{
			OriginalReturn:    originalReturn,
			MedianReturn:      originalReturn,
			P5Return:          originalReturn,
			P95Return:         originalReturn,
			MedianMaxDrawdown: originalDD,
			P95MaxDrawdown:    originalDD,
		}
		if originalReturn <= s.settings.RuinReturnPercent {
			out.RuinProbability = 1
		}
		return out
	}

	rng := rand.New(rand.NewSource(s.settings.Seed))
	iterations := s.settings.Iterations
	if iterations <= 0 {
		iterations = 1000
	}

	returns := make([]float64, 0, iterations)
	drawdowns := make([]float64, 0, iterations)
	ruined := 0

	perm := make([]float64, len(pnls))
	copy(perm, pnls)
	for i := 0; i < iterations; i++ {
		shuffle(perm, rng)
		ret, dd := replayPnL(perm, initial)
		returns = append(returns, ret)
		drawdowns = append(drawdowns, dd)
		if ret <= s.settings.RuinReturnPercent {
			ruined++
		}
	}

	sort.Float64s(returns)
	sort.Float64s(drawdowns)
	return MonteCarloResult{
		Iterations:        iterations,
		OriginalReturn:    originalReturn,
		MedianReturn:      percentile(returns, 50),
		P5Return:          percentile(returns, 5),
		P95Return:         percentile(returns, 95),
		MedianMaxDrawdown: percentile(drawdowns, 50),
		P95MaxDrawdown:    percentile(drawdowns, 95),
		RuinProbability:   float64(ruined) / float64(iterations),
	}
}

// closedTradePnLs extracts net P&L per closed trade.
func closedTradePnLs(trades []domain.Trade) []float64 {
	pnls := make([]float64, 0, len(trades))
	for _, t := range trades {
		if net := t.NetPnL(); net != nil {
			pnls = append(pnls, *net)
		}
	}
	return pnls
}

// replayPnL accumulates the P&L sequence from the starting capital and
// returns (total return %, max drawdown %).
func replayPnL(pnls []float64, initial float64) (totalReturn, maxDD float64) {
	if initial <= 0 {
		return 0, 0
	}
	capital := initial
	peak := initial
	for _, p := range pnls {
		capital += p
		if capital > peak {
			peak = capital
		}
		if peak > 0 {
			if dd := (peak - capital) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return (capital - initial) / initial * 100, maxDD
}

// shuffle is an in-place Fisher-Yates shuffle over the given source.
func shuffle(xs []float64, rng *rand.Rand) {
	for i := len(xs) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// percentile returns the nearest-rank percentile of sorted data.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p / 100 * float64(len(sorted)-1))
	return sorted[idx]
}
