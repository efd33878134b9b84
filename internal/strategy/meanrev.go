package strategy

import (
	"fmt"

	"strategylab/internal/domain"
)

// Compile-time interface check.
var _ Strategy = (*MeanReversion)(nil)

// MeanRevSettings are the tunable parameters of the mean-reversion family.
// Oversold must sit below the neutral midpoint (50) and overbought above it.
type MeanRevSettings struct {
	RSIPeriod       int     `yaml:"rsi_period"`
	Oversold        float64 `yaml:"oversold"`
	Overbought      float64 `yaml:"overbought"`
	StopLossPercent float64 `yaml:"stop_loss_percent"`
}

// DefaultMeanRevSettings returns a 14-period RSI with 30/70 bands and a 3%
// stop.
func DefaultMeanRevSettings() MeanRevSettings {
	return MeanRevSettings{RSIPeriod: 14, Oversold: 30, Overbought: 70, StopLossPercent: 3}
}

// Validate enforces the band invariants around the neutral midpoint.
func (s MeanRevSettings) Validate() error {
	if s.RSIPeriod < 2 {
		return fmt.Errorf("rsi period must be at least 2, got %d", s.RSIPeriod)
	}
	if s.Oversold >= 50 {
		return fmt.Errorf("oversold level must be below 50, got %v", s.Oversold)
	}
	if s.Overbought <= 50 {
		return fmt.Errorf("overbought level must be above 50, got %v", s.Overbought)
	}
	if s.Oversold >= s.Overbought {
		return fmt.Errorf("oversold (%v) must be below overbought (%v)", s.Oversold, s.Overbought)
	}
	if s.StopLossPercent <= 0 {
		return fmt.Errorf("stop loss percent must be positive, got %v", s.StopLossPercent)
	}
	return nil
}

// MeanReversion fades RSI extremes: it buys below the oversold band, scales
// half out at the midpoint with the stop moved to breakeven, and exits fully
// at the opposite band. Short entries mirror the long logic.
type MeanReversion struct {
	settings MeanRevSettings
	rsi      *RSI
	scaled   bool // half the position already taken off
}

// NewMeanReversion creates a mean-reversion strategy with the given settings.
func NewMeanReversion(settings MeanRevSettings) *MeanReversion {
	return &MeanReversion{settings: settings, rsi: NewRSI(settings.RSIPeriod)}
}

// Name returns "mean-reversion".
func (m *MeanReversion) Name() string { return "mean-reversion" }

// ATR returns 0; this family sizes off its percent stop.
func (m *MeanReversion) ATR() float64 { return 0 }

// StopLevel returns 0; this family does not trail a stop.
func (m *MeanReversion) StopLevel() float64 { return 0 }

// Reset clears all indicator state.
func (m *MeanReversion) Reset() {
	m.rsi.Reset()
	m.scaled = false
}

// Analyze implements Strategy.
func (m *MeanReversion) Analyze(c domain.Candle, pos *domain.PositionState) (*domain.TradeSignal, error) {
	rsi := m.rsi.Update(c.Close)
	if !m.rsi.Ready() {
		return nil, nil
	}

	if pos.IsFlat() {
		m.scaled = false
		switch {
		case rsi <= m.settings.Oversold:
			sig, err := domain.NewTradeSignal(domain.SignalBuy, c.Close, fmt.Sprintf("RSI oversold (%.1f)", rsi))
			if err != nil {
				return nil, err
			}
			return sig.WithStops(c.Close*(1-m.settings.StopLossPercent/100), 0), nil

		case rsi >= m.settings.Overbought:
			sig, err := domain.NewTradeSignal(domain.SignalSell, c.Close, fmt.Sprintf("RSI overbought (%.1f)", rsi))
			if err != nil {
				return nil, err
			}
			return sig.WithStops(c.Close*(1+m.settings.StopLossPercent/100), 0), nil
		}
		return nil, nil
	}

	long := pos.Direction() == domain.DirectionLong
	reverted := (long && rsi >= 50) || (!long && rsi <= 50)
	exhausted := (long && rsi >= m.settings.Overbought) || (!long && rsi <= m.settings.Oversold)

	if exhausted {
		sig, err := domain.NewTradeSignal(domain.SignalExit, c.Close, fmt.Sprintf("RSI reverted (%.1f)", rsi))
		if err != nil {
			return nil, err
		}
		return sig, nil
	}

	if reverted && !m.scaled {
		m.scaled = true
		sig, err := domain.NewTradeSignal(domain.SignalPartialExit, c.Close, "RSI midpoint scale-out")
		if err != nil {
			return nil, err
		}
		half := pos.AbsQuantity() / 2
		return sig.WithPartialExit(half, true)
	}
	return nil, nil
}
