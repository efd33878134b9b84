package strategy

import (
	"fmt"

	"strategylab/internal/domain"
)

// Compile-time interface check.
var _ Strategy = (*Ensemble)(nil)

// EnsembleSettings combines the three base families under a weighted vote.
// The weighted-ensemble optimizer family tunes only the weights and the
// threshold; the full-parameter family additionally tunes the nested
// settings.
type EnsembleSettings struct {
	Trend   TrendSettings   `yaml:"trend"`
	Cross   MACrossSettings `yaml:"cross"`
	MeanRev MeanRevSettings `yaml:"mean_reversion"`

	TrendWeight    float64 `yaml:"trend_weight"`
	CrossWeight    float64 `yaml:"cross_weight"`
	MeanRevWeight  float64 `yaml:"mean_rev_weight"`
	EntryThreshold float64 `yaml:"entry_threshold"`

	StopLossPercent float64 `yaml:"stop_loss_percent"`
}

// DefaultEnsembleSettings returns equal weights over the default base
// settings with a majority-vote threshold.
func DefaultEnsembleSettings() EnsembleSettings {
	return EnsembleSettings{
		Trend:           DefaultTrendSettings(),
		Cross:           DefaultMACrossSettings(),
		MeanRev:         DefaultMeanRevSettings(),
		TrendWeight:     1,
		CrossWeight:     1,
		MeanRevWeight:   1,
		EntryThreshold:  1.5,
		StopLossPercent: 2.5,
	}
}

// Validate checks the nested settings and the vote parameters.
func (s EnsembleSettings) Validate() error {
	if err := s.Trend.Validate(); err != nil {
		return fmt.Errorf("trend: %w", err)
	}
	if err := s.Cross.Validate(); err != nil {
		return fmt.Errorf("cross: %w", err)
	}
	if err := s.MeanRev.Validate(); err != nil {
		return fmt.Errorf("mean reversion: %w", err)
	}
	if s.TrendWeight < 0 || s.CrossWeight < 0 || s.MeanRevWeight < 0 {
		return fmt.Errorf("weights must be non-negative (%v, %v, %v)",
			s.TrendWeight, s.CrossWeight, s.MeanRevWeight)
	}
	total := s.TrendWeight + s.CrossWeight + s.MeanRevWeight
	if total <= 0 {
		return fmt.Errorf("at least one weight must be positive")
	}
	if s.EntryThreshold <= 0 || s.EntryThreshold > total {
		return fmt.Errorf("entry threshold %v must be in (0, %v]", s.EntryThreshold, total)
	}
	if s.StopLossPercent <= 0 {
		return fmt.Errorf("stop loss percent must be positive, got %v", s.StopLossPercent)
	}
	return nil
}

// Ensemble runs the three base families side by side and acts when the
// weighted vote of their signals clears the entry threshold.
type Ensemble struct {
	settings EnsembleSettings
	trend    *TrendFollowing
	cross    *MACross
	meanRev  *MeanReversion
}

// NewEnsemble creates a weighted ensemble with the given settings.
func NewEnsemble(settings EnsembleSettings) *Ensemble {
	return &Ensemble{
		settings: settings,
		trend:    NewTrendFollowing(settings.Trend),
		cross:    NewMACross(settings.Cross),
		meanRev:  NewMeanReversion(settings.MeanRev),
	}
}

// Name returns "ensemble".
func (e *Ensemble) Name() string { return "ensemble" }

// ATR exposes the trend member's ATR for position sizing.
func (e *Ensemble) ATR() float64 { return e.trend.ATR() }

// StopLevel exposes the trend member's trailing stop.
func (e *Ensemble) StopLevel() float64 { return e.trend.StopLevel() }

// Reset clears all members.
func (e *Ensemble) Reset() {
	e.trend.Reset()
	e.cross.Reset()
	e.meanRev.Reset()
}

// Analyze implements Strategy. Every member sees every candle so their
// indicator state stays in sync; votes are the weighted sum of member
// buy/sell signals.
func (e *Ensemble) Analyze(c domain.Candle, pos *domain.PositionState) (*domain.TradeSignal, error) {
	type member struct {
		s Strategy
		w float64
	}
	members := []member{
		{e.trend, e.settings.TrendWeight},
		{e.cross, e.settings.CrossWeight},
		{e.meanRev, e.settings.MeanRevWeight},
	}

	score := 0.0
	for _, m := range members {
		sig, err := m.s.Analyze(c, pos)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.s.Name(), err)
		}
		if sig == nil {
			continue
		}
		switch sig.Type {
		case domain.SignalBuy:
			score += m.w
		case domain.SignalSell:
			score -= m.w
		}
	}

	stopPct := e.settings.StopLossPercent / 100

	if pos.IsFlat() {
		switch {
		case score >= e.settings.EntryThreshold:
			sig, err := domain.NewTradeSignal(domain.SignalBuy, c.Close,
				fmt.Sprintf("ensemble vote %.2f", score))
			if err != nil {
				return nil, err
			}
			return sig.WithStops(c.Close*(1-stopPct), 0), nil

		case score <= -e.settings.EntryThreshold:
			sig, err := domain.NewTradeSignal(domain.SignalSell, c.Close,
				fmt.Sprintf("ensemble vote %.2f", score))
			if err != nil {
				return nil, err
			}
			return sig.WithStops(c.Close*(1+stopPct), 0), nil
		}
		return nil, nil
	}

	// Exit when the vote flips against the open position.
	long := pos.Direction() == domain.DirectionLong
	if (long && score <= -e.settings.EntryThreshold) || (!long && score >= e.settings.EntryThreshold) {
		sig, err := domain.NewTradeSignal(domain.SignalExit, c.Close,
			fmt.Sprintf("ensemble vote flipped %.2f", score))
		if err != nil {
			return nil, err
		}
		return sig, nil
	}
	return nil, nil
}
