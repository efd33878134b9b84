package optimize

import (
	"math"
	"testing"

	"strategylab/internal/domain"
)

func healthyMetrics() domain.PerformanceMetrics {
	return domain.PerformanceMetrics{
		TotalReturn:        25,
		AnnualizedReturn:   12,
		MaxDrawdownPercent: 8,
		SharpeRatio:        1.5,
		SortinoRatio:       2.1,
		ProfitFactor:       1.8,
		WinRate:            55,
		TotalTrades:        40,
	}
}

func TestPenaltySentinelOrdering(t *testing.T) {
	if !(WorstFitness < InvalidGenomePenalty &&
		InvalidGenomePenalty < ExcessDrawdownPenalty &&
		ExcessDrawdownPenalty < TooFewTradesPenalty &&
		TooFewTradesPenalty < 0) {
		t.Errorf("sentinel ordering broken: %v %v %v %v",
			WorstFitness, InvalidGenomePenalty, ExcessDrawdownPenalty, TooFewTradesPenalty)
	}
}

func TestScoreMinTradesConstraint(t *testing.T) {
	policy := DefaultFitnessPolicy()
	m := healthyMetrics()
	m.TotalTrades = 3
	if got := policy.Score(m); got != TooFewTradesPenalty {
		t.Errorf("Score = %v, want TooFewTradesPenalty for %d trades", got, m.TotalTrades)
	}
}

func TestScoreDrawdownConstraint(t *testing.T) {
	policy := DefaultFitnessPolicy()
	policy.MaxDrawdownPercent = 20
	m := healthyMetrics()
	m.MaxDrawdownPercent = 35
	if got := policy.Score(m); got != ExcessDrawdownPenalty {
		t.Errorf("Score = %v, want ExcessDrawdownPenalty for a 35%% drawdown", got)
	}
}

func TestScoreConstraintPrecedence(t *testing.T) {
	// A genome that breaks both constraints reports the trade count first.
	policy := DefaultFitnessPolicy()
	policy.MaxDrawdownPercent = 20
	m := healthyMetrics()
	m.TotalTrades = 3
	m.MaxDrawdownPercent = 35
	if got := policy.Score(m); got != TooFewTradesPenalty {
		t.Errorf("Score = %v, want the trade-count penalty to dominate", got)
	}
}

func TestScoreObjectiveSelection(t *testing.T) {
	m := healthyMetrics()
	tests := []struct {
		objective Objective
		want      float64
	}{
		{ObjectiveSharpe, m.SharpeRatio},
		{ObjectiveSortino, m.SortinoRatio},
		{ObjectiveProfitFactor, m.ProfitFactor},
		{ObjectiveTotalReturn, m.TotalReturn},
	}
	for _, tt := range tests {
		t.Run(string(tt.objective), func(t *testing.T) {
			policy := FitnessPolicy{Objective: tt.objective}
			if got := policy.Score(m); got != tt.want {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreWeightedObjective(t *testing.T) {
	m := healthyMetrics()
	policy := FitnessPolicy{Objective: ObjectiveWeighted, Weights: DefaultObjectiveWeights()}
	w := policy.Weights
	want := w.Sharpe*m.SharpeRatio + w.Return*m.TotalReturn/100 +
		w.WinRate*m.WinRate/100 - w.Drawdown*m.MaxDrawdownPercent/100
	if got := policy.Score(m); math.Abs(got-want) > 1e-12 {
		t.Errorf("Score = %v, want %v", got, want)
	}
}

func TestCompositeScoreFloorsNegativeComponents(t *testing.T) {
	m := domain.PerformanceMetrics{
		SharpeRatio:        -2,
		WinRate:            40,
		AnnualizedReturn:   -10,
		MaxDrawdownPercent: 30,
		TotalTrades:        40,
	}
	policy := FitnessPolicy{Objective: ObjectiveComposite}
	// Only the win-rate term survives the flooring.
	if got, want := policy.Score(m), 0.3*0.4; math.Abs(got-want) > 1e-12 {
		t.Errorf("Score = %v, want %v", got, want)
	}
}

func TestCompositeScoreCapsCalmar(t *testing.T) {
	m := domain.PerformanceMetrics{
		SharpeRatio:        1,
		WinRate:            50,
		AnnualizedReturn:   500,
		MaxDrawdownPercent: 1, // raw calmar 500, capped at 10
		TotalTrades:        40,
	}
	policy := FitnessPolicy{Objective: ObjectiveComposite}
	want := 0.4*1 + 0.3*0.5 + 0.3*10
	if got := policy.Score(m); math.Abs(got-want) > 1e-12 {
		t.Errorf("Score = %v, want calmar capped: %v", got, want)
	}
}

func TestFitnessPolicyValidate(t *testing.T) {
	if err := DefaultFitnessPolicy().Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
	bad := FitnessPolicy{Objective: "alpha-decay"}
	if err := bad.Validate(); err == nil {
		t.Error("unknown objective accepted")
	}
	neg := DefaultFitnessPolicy()
	neg.MinTrades = -1
	if err := neg.Validate(); err == nil {
		t.Error("negative min trades accepted")
	}
}
