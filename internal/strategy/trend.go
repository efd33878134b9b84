package strategy

import (
	"errors"
	"fmt"

	"strategylab/internal/domain"
)

// Compile-time interface check.
var _ Strategy = (*TrendFollowing)(nil)

// TrendSettings are the tunable parameters of the trend-following family.
type TrendSettings struct {
	EMAPeriod       int     `yaml:"ema_period"`
	ATRPeriod       int     `yaml:"atr_period"`
	ATRMultiplier   float64 `yaml:"atr_multiplier"`
	RewardRiskRatio float64 `yaml:"reward_risk_ratio"`
}

// DefaultTrendSettings returns a 21-period EMA with a 14-period, 2x ATR stop.
func DefaultTrendSettings() TrendSettings {
	return TrendSettings{EMAPeriod: 21, ATRPeriod: 14, ATRMultiplier: 2, RewardRiskRatio: 2}
}

// Validate enforces the cross-field invariants of the settings.
func (s TrendSettings) Validate() error {
	if s.EMAPeriod < 2 {
		return fmt.Errorf("ema period must be at least 2, got %d", s.EMAPeriod)
	}
	if s.ATRPeriod < 2 {
		return fmt.Errorf("atr period must be at least 2, got %d", s.ATRPeriod)
	}
	if s.ATRMultiplier <= 0 {
		return errors.New("atr multiplier must be positive")
	}
	if s.RewardRiskRatio <= 0 {
		return errors.New("reward/risk ratio must be positive")
	}
	return nil
}

// TrendFollowing enters in the direction of an EMA cross and trails an
// ATR-multiple stop behind price.
type TrendFollowing struct {
	settings TrendSettings
	ema      *EMA
	atr      *ATRIndicator

	prevClose float64
	prevEMA   float64
	seeded    bool
	trailStop float64
}

// NewTrendFollowing creates a trend-following strategy with the given
// settings.
func NewTrendFollowing(settings TrendSettings) *TrendFollowing {
	return &TrendFollowing{
		settings: settings,
		ema:      NewEMA(settings.EMAPeriod),
		atr:      NewATR(settings.ATRPeriod),
	}
}

// Name returns "trend-following".
func (t *TrendFollowing) Name() string { return "trend-following" }

// ATR returns the current average true range, or 0 during warm-up.
func (t *TrendFollowing) ATR() float64 {
	if !t.atr.Ready() {
		return 0
	}
	return t.atr.Value()
}

// StopLevel returns the current trailing stop, or 0 when flat.
func (t *TrendFollowing) StopLevel() float64 { return t.trailStop }

// Reset clears all indicator and trailing state.
func (t *TrendFollowing) Reset() {
	t.ema.Reset()
	t.atr.Reset()
	t.prevClose = 0
	t.prevEMA = 0
	t.seeded = false
	t.trailStop = 0
}

// Analyze implements Strategy.
func (t *TrendFollowing) Analyze(c domain.Candle, pos *domain.PositionState) (*domain.TradeSignal, error) {
	ema := t.ema.Update(c.Close)
	atr := t.atr.Update(c)

	defer func() {
		t.prevClose = c.Close
		t.prevEMA = ema
		t.seeded = true
	}()

	if !t.ema.Ready() || !t.atr.Ready() || !t.seeded {
		return nil, nil
	}

	crossedUp := t.prevClose <= t.prevEMA && c.Close > ema
	crossedDown := t.prevClose >= t.prevEMA && c.Close < ema
	risk := atr * t.settings.ATRMultiplier

	if pos.IsFlat() {
		t.trailStop = 0
		if crossedUp {
			sig, err := domain.NewTradeSignal(domain.SignalBuy, c.Close, "EMA cross up")
			if err != nil {
				return nil, err
			}
			t.trailStop = c.Close - risk
			return sig.WithStops(c.Close-risk, c.Close+risk*t.settings.RewardRiskRatio), nil
		}
		if crossedDown {
			sig, err := domain.NewTradeSignal(domain.SignalSell, c.Close, "EMA cross down")
			if err != nil {
				return nil, err
			}
			t.trailStop = c.Close + risk
			return sig.WithStops(c.Close+risk, c.Close-risk*t.settings.RewardRiskRatio), nil
		}
		return nil, nil
	}

	// Trail the stop in the trade's favor only.
	if pos.Direction() == domain.DirectionLong {
		if s := c.Close - risk; s > t.trailStop {
			t.trailStop = s
		}
		if crossedDown {
			sig, err := domain.NewTradeSignal(domain.SignalSell, c.Close, "EMA cross down")
			if err != nil {
				return nil, err
			}
			return sig.WithStops(c.Close+risk, c.Close-risk*t.settings.RewardRiskRatio), nil
		}
	} else {
		if s := c.Close + risk; t.trailStop == 0 || s < t.trailStop {
			t.trailStop = s
		}
		if crossedUp {
			sig, err := domain.NewTradeSignal(domain.SignalBuy, c.Close, "EMA cross up")
			if err != nil {
				return nil, err
			}
			return sig.WithStops(c.Close-risk, c.Close+risk*t.settings.RewardRiskRatio), nil
		}
	}
	return nil, nil
}
