package domain

// ExitPriority decides which forced exit wins when a single candle touches
// both the stop-loss and the take-profit level.
type ExitPriority int

const (
	// ExitPriorityStopFirst resolves a both-touched candle as a stop-loss.
	// This is the default: it is the conservative tie-break, assuming the
	// adverse level was reached before the favorable one.
	ExitPriorityStopFirst ExitPriority = iota
	// ExitPriorityTargetFirst resolves a both-touched candle as a take-profit.
	ExitPriorityTargetFirst
)

// BacktestSettings configures a single backtest run.
type BacktestSettings struct {
	InitialCapital    float64
	CommissionPercent float64 // flat fee on entry and exit notional
	SlippagePercent   float64 // adverse, applied on entry and exit prices
	ExitPriority      ExitPriority
}

// DefaultBacktestSettings returns settings with a 10k starting balance, 0.1%
// commission and 0.05% slippage.
func DefaultBacktestSettings() BacktestSettings {
	return BacktestSettings{
		InitialCapital:    10_000,
		CommissionPercent: 0.1,
		SlippagePercent:   0.05,
	}
}

// WithCommission returns a copy with the commission rate replaced.
func (s BacktestSettings) WithCommission(pct float64) BacktestSettings {
	s.CommissionPercent = pct
	return s
}

// WithSlippage returns a copy with the slippage rate replaced.
func (s BacktestSettings) WithSlippage(pct float64) BacktestSettings {
	s.SlippagePercent = pct
	return s
}

// WithInitialCapital returns a copy with the starting balance replaced.
func (s BacktestSettings) WithInitialCapital(capital float64) BacktestSettings {
	s.InitialCapital = capital
	return s
}

// GeneticSettings configures the evolutionary search.
type GeneticSettings struct {
	PopulationSize         int
	Generations            int
	EliteCount             int
	TournamentSize         int
	CrossoverRate          float64
	MutationRate           float64
	EarlyStoppingPatience  int     // generations without improvement before stopping; 0 disables
	EarlyStoppingThreshold float64 // minimum fitness improvement that counts
	RandomSeed             int64
}

// DefaultGeneticSettings returns a moderate search configuration.
func DefaultGeneticSettings() GeneticSettings {
	return GeneticSettings{
		PopulationSize:         60,
		Generations:            40,
		EliteCount:             4,
		TournamentSize:         3,
		CrossoverRate:          0.8,
		MutationRate:           0.2,
		EarlyStoppingPatience:  10,
		EarlyStoppingThreshold: 1e-6,
		RandomSeed:             1,
	}
}

// RiskSettings configures position sizing.
type RiskSettings struct {
	RiskPerTradePercent float64 // equity fraction risked between entry and stop
	MaxPositionPercent  float64 // cap on a single position's notional
	MaxOpenPositions    int
}

// DefaultRiskSettings risks 1% per trade, caps positions at 95% of equity and
// allows a single open position.
func DefaultRiskSettings() RiskSettings {
	return RiskSettings{
		RiskPerTradePercent: 1,
		MaxPositionPercent:  95,
		MaxOpenPositions:    1,
	}
}

// WalkForwardSettings configures rolling-window robustness validation.
// Fractions are of the full candle series.
type WalkForwardSettings struct {
	InSampleFraction  float64
	OutSampleFraction float64
	StepFraction      float64

	// Robustness thresholds.
	MinEfficiency  float64 // walk-forward efficiency, percent
	MinConsistency float64 // share of positive out-of-sample windows, percent
	MinOOSSharpe   float64
}

// DefaultWalkForwardSettings uses 60/20 windows stepping by 20%, with the
// commonly used 50% WFE and consistency floors.
func DefaultWalkForwardSettings() WalkForwardSettings {
	return WalkForwardSettings{
		InSampleFraction:  0.6,
		OutSampleFraction: 0.2,
		StepFraction:      0.2,
		MinEfficiency:     50,
		MinConsistency:    50,
		MinOOSSharpe:      0.5,
	}
}

// MonteCarloSettings configures trade-order resampling.
type MonteCarloSettings struct {
	Iterations           int
	Seed                 int64
	RuinReturnPercent    float64 // permutations at or below this return count as ruin
}

// DefaultMonteCarloSettings runs 1000 permutations with a -50% ruin line.
func DefaultMonteCarloSettings() MonteCarloSettings {
	return MonteCarloSettings{
		Iterations:        1000,
		Seed:              1,
		RuinReturnPercent: -50,
	}
}
