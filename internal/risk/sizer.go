// Package risk implements position sizing for the backtest engine.
package risk

import (
	"fmt"
	"math"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
)

// Compile-time interface check.
var _ backtest.PositionSizer = (*FixedFractionalSizer)(nil)

// FixedFractionalSizer risks a fixed fraction of current equity between the
// entry and the stop, capped at a maximum share of equity per position. Each
// backtest run constructs its own sizer; the type is not safe for concurrent
// use.
type FixedFractionalSizer struct {
	settings domain.RiskSettings
	equity   float64
	open     int
}

// NewFixedFractionalSizer creates a sizer with the given risk settings and
// starting equity.
func NewFixedFractionalSizer(settings domain.RiskSettings, startingEquity float64) *FixedFractionalSizer {
	return &FixedFractionalSizer{settings: settings, equity: startingEquity}
}

// CanOpenPosition reports whether the open-position cap allows another
// entry.
func (s *FixedFractionalSizer) CanOpenPosition() bool {
	return s.open < s.settings.MaxOpenPositions
}

// PositionSize computes the quantity so that the loss from entry to stop
// equals the per-trade risk budget. When the stop distance is degenerate it
// falls back to the ATR; with neither available the entry is declined with a
// zero quantity.
func (s *FixedFractionalSizer) PositionSize(entryPrice, stopPrice, atr float64) (backtest.SizeResult, error) {
	if entryPrice <= 0 {
		return backtest.SizeResult{}, fmt.Errorf("entry price must be positive, got %v", entryPrice)
	}
	if s.equity <= 0 {
		return backtest.SizeResult{}, nil
	}

	stopDistance := math.Abs(entryPrice - stopPrice)
	if stopPrice <= 0 || stopDistance == 0 {
		stopDistance = atr
	}
	if stopDistance <= 0 {
		return backtest.SizeResult{}, nil
	}

	riskAmount := s.equity * s.settings.RiskPerTradePercent / 100
	quantity := riskAmount / stopDistance

	// Cap the notional at the configured share of equity.
	maxNotional := s.equity * s.settings.MaxPositionPercent / 100
	if quantity*entryPrice > maxNotional {
		quantity = maxNotional / entryPrice
	}

	return backtest.SizeResult{
		Quantity:     quantity,
		RiskAmount:   riskAmount,
		StopDistance: stopDistance,
	}, nil
}

// UpdateEquity records the running equity mark.
func (s *FixedFractionalSizer) UpdateEquity(equity float64) { s.equity = equity }

// AddPosition records an opened position against the cap.
func (s *FixedFractionalSizer) AddPosition(string, float64, float64) { s.open++ }

// ClearPositions resets the open-position count for a new run.
func (s *FixedFractionalSizer) ClearPositions() { s.open = 0 }
