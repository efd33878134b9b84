// Package domain defines the core value types shared across the strategylab
// platform: candles, trade signals, trades, position state, and the result
// records produced by backtests and optimizations.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Candle is a single OHLCV sample over a fixed time interval. Candles are
// produced by the data layer and consumed read-only by the engine.
type Candle struct {
	Symbol    string
	OpenTime  time.Time
	CloseTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Direction is the side of a position or trade.
type Direction int

const (
	DirectionLong Direction = iota
	DirectionShort
)

// String returns "long" or "short".
func (d Direction) String() string {
	if d == DirectionShort {
		return "short"
	}
	return "long"
}

// Sign returns +1 for long and -1 for short, the multiplier that converts a
// price move into signed P&L.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// SignalType enumerates the actions a strategy can request.
type SignalType int

const (
	SignalNone SignalType = iota
	SignalBuy
	SignalSell
	SignalExit
	SignalPartialExit
)

// String returns the lower-case signal name.
func (s SignalType) String() string {
	switch s {
	case SignalBuy:
		return "buy"
	case SignalSell:
		return "sell"
	case SignalExit:
		return "exit"
	case SignalPartialExit:
		return "partial-exit"
	default:
		return "none"
	}
}

// TradeSignal is a strategy's request to act at the current candle. StopLoss,
// TakeProfit and the partial-exit fields are optional; absent values are nil.
type TradeSignal struct {
	Type       SignalType
	Price      float64
	StopLoss   *float64
	TakeProfit *float64
	Reason     string

	// PartialExitPercent is the fraction of the open quantity to close.
	// Values above 1 are interpreted as percentage units (50 means 50%).
	PartialExitPercent *float64
	// PartialExitQuantity, when set, takes precedence over the percent.
	PartialExitQuantity *float64
	// MoveStopToBreakeven moves the stop to the entry price after a
	// partial exit.
	MoveStopToBreakeven bool
}

// NewTradeSignal creates a validated TradeSignal. The price must be strictly
// positive, and a partial-exit quantity, when given, must be strictly
// positive as well.
func NewTradeSignal(typ SignalType, price float64, reason string) (*TradeSignal, error) {
	if price <= 0 {
		return nil, fmt.Errorf("trade signal price must be positive, got %v", price)
	}
	return &TradeSignal{Type: typ, Price: price, Reason: reason}, nil
}

// WithStops returns a copy of the signal with stop-loss and take-profit set.
// Zero values leave the corresponding level unset.
func (s TradeSignal) WithStops(stopLoss, takeProfit float64) *TradeSignal {
	if stopLoss > 0 {
		s.StopLoss = &stopLoss
	}
	if takeProfit > 0 {
		s.TakeProfit = &takeProfit
	}
	return &s
}

// WithPartialExit returns a copy of the signal configured as a partial exit
// for the given quantity. It returns an error when quantity is not positive.
func (s TradeSignal) WithPartialExit(quantity float64, breakeven bool) (*TradeSignal, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("partial exit quantity must be positive, got %v", quantity)
	}
	s.Type = SignalPartialExit
	s.PartialExitQuantity = &quantity
	s.MoveStopToBreakeven = breakeven
	return &s, nil
}

// Trade is a closed-or-closing trade record. ExitTime, ExitPrice and
// ExitReason are filled when the position (or part of it) is closed.
type Trade struct {
	Symbol     string
	Direction  Direction
	EntryTime  time.Time
	ExitTime   *time.Time
	EntryPrice float64
	ExitPrice  *float64
	Quantity   float64
	StopLoss   *float64
	TakeProfit *float64
	ExitReason string
	Commission float64
	BarsHeld   int
}

// NewTrade creates a validated open Trade. Entry price and quantity must be
// strictly positive; invalid values are a caller error, not a simulation
// outcome.
func NewTrade(symbol string, dir Direction, entryTime time.Time, entryPrice, quantity float64) (*Trade, error) {
	if entryPrice <= 0 {
		return nil, fmt.Errorf("trade entry price must be positive, got %v", entryPrice)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("trade quantity must be positive, got %v", quantity)
	}
	return &Trade{
		Symbol:     symbol,
		Direction:  dir,
		EntryTime:  entryTime,
		EntryPrice: entryPrice,
		Quantity:   quantity,
	}, nil
}

// Close records the exit of the trade.
func (t *Trade) Close(exitTime time.Time, exitPrice float64, reason string) {
	t.ExitTime = &exitTime
	t.ExitPrice = &exitPrice
	t.ExitReason = reason
}

// PnL returns the gross price P&L of the trade (excluding commission), or
// nil while the trade is still open.
func (t *Trade) PnL() *float64 {
	if t.ExitPrice == nil {
		return nil
	}
	pnl := (*t.ExitPrice - t.EntryPrice) * t.Quantity * t.Direction.Sign()
	return &pnl
}

// NetPnL returns PnL minus commission, or nil while the trade is open.
func (t *Trade) NetPnL() *float64 {
	gross := t.PnL()
	if gross == nil {
		return nil
	}
	net := *gross - t.Commission
	return &net
}

// PnLPercent returns the gross P&L as a percentage of the entry notional, or
// nil while the trade is still open.
func (t *Trade) PnLPercent() *float64 {
	gross := t.PnL()
	if gross == nil {
		return nil
	}
	pct := *gross / (t.EntryPrice * t.Quantity) * 100
	return &pct
}

// HoldingPeriod returns the time the trade was open, or zero while open.
func (t *Trade) HoldingPeriod() time.Duration {
	if t.ExitTime == nil {
		return 0
	}
	return t.ExitTime.Sub(t.EntryTime)
}

// PerformanceMetrics aggregates statistics over a completed backtest run.
// It is a pure function of the trade list, equity curve, initial capital and
// time span; see backtest.ComputeMetrics.
type PerformanceMetrics struct {
	TotalReturn         float64 // percent
	AnnualizedReturn    float64 // percent
	MaxDrawdown         float64 // absolute currency units
	MaxDrawdownPercent  float64
	SharpeRatio         float64
	SortinoRatio        float64
	ProfitFactor        float64
	WinRate             float64 // percent
	TotalTrades         int
	WinningTrades       int
	LosingTrades        int
	AverageWin          float64
	AverageLoss         float64
	LargestWin          float64
	LargestLoss         float64
	AverageHoldingBars  float64
	AverageHoldingTime  time.Duration
	TotalCommission     float64
}

// BacktestResult is the canonical output of a backtest run, consumed by the
// optimizer, walk-forward analysis, Monte Carlo simulation and reporting.
type BacktestResult struct {
	StrategyName   string
	Symbol         string
	StartDate      time.Time
	EndDate        time.Time
	InitialCapital float64
	FinalCapital   float64
	Trades         []Trade
	EquityCurve    []float64
	Metrics        PerformanceMetrics
}

// ErrNoCandles is returned when a backtest is started with an empty candle
// slice.
var ErrNoCandles = errors.New("no candles provided")
