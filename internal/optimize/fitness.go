package optimize

import (
	"fmt"
	"math"

	"strategylab/internal/domain"
)

// Penalty sentinels returned by FitnessPolicy.Score. Each failure class gets
// its own magnitude so an optimization log makes clear why a genome was
// rejected. All are far below any fitness a real backtest can produce but
// above WorstFitness, which is reserved for evaluation failures.
const (
	// InvalidGenomePenalty marks genomes that fail structural validation,
	// such as a fast period not below the slow period.
	InvalidGenomePenalty = -1e9

	// ExcessDrawdownPenalty marks genomes whose backtest breached the
	// configured maximum drawdown.
	ExcessDrawdownPenalty = -1e7

	// TooFewTradesPenalty marks genomes that produced fewer trades than the
	// configured minimum, where metrics are statistically meaningless.
	TooFewTradesPenalty = -1e6
)

// Objective selects the scalar metric an optimization maximizes.
type Objective string

const (
	ObjectiveSharpe       Objective = "sharpe"
	ObjectiveSortino      Objective = "sortino"
	ObjectiveProfitFactor Objective = "profit_factor"
	ObjectiveTotalReturn  Objective = "total_return"
	ObjectiveComposite    Objective = "composite"
	ObjectiveWeighted     Objective = "weighted"
)

// ObjectiveWeights configures the weighted objective. Drawdown enters
// negatively, so a positive DrawdownWeight penalizes deeper drawdowns.
type ObjectiveWeights struct {
	Sharpe   float64 `yaml:"sharpe"`
	Return   float64 `yaml:"return"`
	WinRate  float64 `yaml:"win_rate"`
	Drawdown float64 `yaml:"drawdown"`
}

// DefaultObjectiveWeights balances risk-adjusted return against raw return.
func DefaultObjectiveWeights() ObjectiveWeights {
	return ObjectiveWeights{Sharpe: 0.4, Return: 0.3, WinRate: 0.1, Drawdown: 0.2}
}

// FitnessPolicy turns backtest metrics into a scalar fitness. Hard
// constraints are applied first and map to penalty sentinels; only then is
// the selected objective computed.
type FitnessPolicy struct {
	Objective          Objective        `yaml:"objective"`
	MinTrades          int              `yaml:"min_trades"`
	MaxDrawdownPercent float64          `yaml:"max_drawdown_percent"`
	Weights            ObjectiveWeights `yaml:"weights"`
}

// DefaultFitnessPolicy maximizes the composite objective with a minimum of
// 10 trades and no drawdown cap.
func DefaultFitnessPolicy() FitnessPolicy {
	return FitnessPolicy{
		Objective: ObjectiveComposite,
		MinTrades: 10,
		Weights:   DefaultObjectiveWeights(),
	}
}

// Validate reports whether the policy is usable.
func (p FitnessPolicy) Validate() error {
	switch p.Objective {
	case ObjectiveSharpe, ObjectiveSortino, ObjectiveProfitFactor,
		ObjectiveTotalReturn, ObjectiveComposite, ObjectiveWeighted:
	default:
		return fmt.Errorf("unknown objective %q", p.Objective)
	}
	if p.MinTrades < 0 {
		return fmt.Errorf("min trades must not be negative, got %d", p.MinTrades)
	}
	if p.MaxDrawdownPercent < 0 {
		return fmt.Errorf("max drawdown percent must not be negative, got %v", p.MaxDrawdownPercent)
	}
	return nil
}

// Score converts metrics into fitness. Constraint checks run in a fixed
// order so the dominant failure is always reported the same way.
func (p FitnessPolicy) Score(m domain.PerformanceMetrics) float64 {
	if m.TotalTrades < p.MinTrades {
		return TooFewTradesPenalty
	}
	if p.MaxDrawdownPercent > 0 && m.MaxDrawdownPercent > p.MaxDrawdownPercent {
		return ExcessDrawdownPenalty
	}

	switch p.Objective {
	case ObjectiveSharpe:
		return m.SharpeRatio
	case ObjectiveSortino:
		return m.SortinoRatio
	case ObjectiveProfitFactor:
		return m.ProfitFactor
	case ObjectiveTotalReturn:
		return m.TotalReturn
	case ObjectiveWeighted:
		w := p.Weights
		return w.Sharpe*m.SharpeRatio +
			w.Return*m.TotalReturn/100 +
			w.WinRate*m.WinRate/100 -
			w.Drawdown*m.MaxDrawdownPercent/100
	default:
		return compositeScore(m)
	}
}

// compositeScore blends Sharpe, win rate and Calmar into a single bounded
// score. Negative components are floored at zero so one bad dimension does
// not dominate the others.
func compositeScore(m domain.PerformanceMetrics) float64 {
	calmar := 0.0
	if m.MaxDrawdownPercent > 0 {
		calmar = m.AnnualizedReturn / m.MaxDrawdownPercent
	} else if m.AnnualizedReturn > 0 {
		calmar = m.AnnualizedReturn
	}
	return 0.4*math.Max(0, m.SharpeRatio) +
		0.3*m.WinRate/100 +
		0.3*math.Max(0, math.Min(calmar, 10))
}
