package strategy

import (
	"fmt"

	"strategylab/internal/domain"
)

// Compile-time interface check.
var _ Strategy = (*MACross)(nil)

// MACrossSettings are the tunable parameters of the moving-average crossover
// family.
type MACrossSettings struct {
	FastPeriod        int     `yaml:"fast_period"`
	SlowPeriod        int     `yaml:"slow_period"`
	StopLossPercent   float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent float64 `yaml:"take_profit_percent"`
}

// DefaultMACrossSettings returns a 10/30 crossover with a 2% stop and 4%
// target.
func DefaultMACrossSettings() MACrossSettings {
	return MACrossSettings{FastPeriod: 10, SlowPeriod: 30, StopLossPercent: 2, TakeProfitPercent: 4}
}

// Validate enforces fast < slow and positive stop distances.
func (s MACrossSettings) Validate() error {
	if s.FastPeriod < 2 {
		return fmt.Errorf("fast period must be at least 2, got %d", s.FastPeriod)
	}
	if s.FastPeriod >= s.SlowPeriod {
		return fmt.Errorf("fast period (%d) must be smaller than slow period (%d)", s.FastPeriod, s.SlowPeriod)
	}
	if s.StopLossPercent <= 0 {
		return fmt.Errorf("stop loss percent must be positive, got %v", s.StopLossPercent)
	}
	if s.TakeProfitPercent <= 0 {
		return fmt.Errorf("take profit percent must be positive, got %v", s.TakeProfitPercent)
	}
	return nil
}

// MACross generates a buy when the fast SMA crosses above the slow SMA and a
// sell when it crosses below.
type MACross struct {
	settings MACrossSettings
	fast     *SMA
	slow     *SMA

	prevFast float64
	prevSlow float64
	seeded   bool
}

// NewMACross creates a crossover strategy with the given settings.
func NewMACross(settings MACrossSettings) *MACross {
	return &MACross{
		settings: settings,
		fast:     NewSMA(settings.FastPeriod),
		slow:     NewSMA(settings.SlowPeriod),
	}
}

// Name returns "ma-cross".
func (m *MACross) Name() string { return "ma-cross" }

// ATR returns 0; this family sizes off its percent stop.
func (m *MACross) ATR() float64 { return 0 }

// StopLevel returns 0; this family does not trail a stop.
func (m *MACross) StopLevel() float64 { return 0 }

// Reset clears all indicator state.
func (m *MACross) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.prevFast = 0
	m.prevSlow = 0
	m.seeded = false
}

// Analyze implements Strategy.
func (m *MACross) Analyze(c domain.Candle, _ *domain.PositionState) (*domain.TradeSignal, error) {
	fast := m.fast.Update(c.Close)
	slow := m.slow.Update(c.Close)

	defer func() {
		m.prevFast = fast
		m.prevSlow = slow
		m.seeded = true
	}()

	if !m.slow.Ready() || !m.seeded {
		return nil, nil
	}

	goldenCross := m.prevFast <= m.prevSlow && fast > slow
	deathCross := m.prevFast >= m.prevSlow && fast < slow

	switch {
	case goldenCross:
		sig, err := domain.NewTradeSignal(domain.SignalBuy, c.Close, "golden cross")
		if err != nil {
			return nil, err
		}
		stop := c.Close * (1 - m.settings.StopLossPercent/100)
		target := c.Close * (1 + m.settings.TakeProfitPercent/100)
		return sig.WithStops(stop, target), nil

	case deathCross:
		sig, err := domain.NewTradeSignal(domain.SignalSell, c.Close, "death cross")
		if err != nil {
			return nil, err
		}
		stop := c.Close * (1 + m.settings.StopLossPercent/100)
		target := c.Close * (1 - m.settings.TakeProfitPercent/100)
		return sig.WithStops(stop, target), nil
	}
	return nil, nil
}
