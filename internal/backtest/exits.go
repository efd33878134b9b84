// Package backtest implements the deterministic bar-by-bar trade simulator,
// its performance metrics, and the walk-forward and Monte Carlo robustness
// validators built on top of completed runs.
package backtest

import "strategylab/internal/domain"

// Exit reasons attached to forced exits.
const (
	ReasonStopLoss      = "Stop Loss"
	ReasonTakeProfit    = "Take Profit"
	ReasonReversal      = "Signal Reversal"
	ReasonEndOfBacktest = "End of Backtest"
)

// ForcedExit is the outcome of an intrabar stop/target check.
type ForcedExit struct {
	Hit    bool
	Price  float64
	Reason string
}

// CheckStopLoss reports whether the candle touched the stop level for the
// given direction. A long stop triggers when the low trades through the
// level, a short stop when the high does. The exit price is the level with
// adverse slippage applied (a long exit sells lower, a short exit buys
// higher). Pure; safe to call any number of times per candle.
func CheckStopLoss(c domain.Candle, level float64, dir domain.Direction, slippagePercent float64) ForcedExit {
	if level <= 0 {
		return ForcedExit{}
	}
	hit := (dir == domain.DirectionLong && c.Low <= level) ||
		(dir == domain.DirectionShort && c.High >= level)
	if !hit {
		return ForcedExit{}
	}
	return ForcedExit{Hit: true, Price: exitWithSlippage(level, dir, slippagePercent), Reason: ReasonStopLoss}
}

// CheckTakeProfit mirrors CheckStopLoss for the profit target: a long target
// triggers on the high, a short target on the low.
func CheckTakeProfit(c domain.Candle, level float64, dir domain.Direction, slippagePercent float64) ForcedExit {
	if level <= 0 {
		return ForcedExit{}
	}
	hit := (dir == domain.DirectionLong && c.High >= level) ||
		(dir == domain.DirectionShort && c.Low <= level)
	if !hit {
		return ForcedExit{}
	}
	return ForcedExit{Hit: true, Price: exitWithSlippage(level, dir, slippagePercent), Reason: ReasonTakeProfit}
}

// exitWithSlippage applies adverse slippage to an exit price: closing a long
// sells below the level, closing a short buys above it.
func exitWithSlippage(price float64, dir domain.Direction, slippagePercent float64) float64 {
	s := slippagePercent / 100
	if dir == domain.DirectionLong {
		return price * (1 - s)
	}
	return price * (1 + s)
}

// entryWithSlippage applies adverse slippage to an entry price: opening a
// long buys above the quote, opening a short sells below it.
func entryWithSlippage(price float64, dir domain.Direction, slippagePercent float64) float64 {
	s := slippagePercent / 100
	if dir == domain.DirectionLong {
		return price * (1 + s)
	}
	return price * (1 - s)
}
