package backtest

// SizeResult is the outcome of a position-sizing calculation.
type SizeResult struct {
	Quantity     float64
	RiskAmount   float64
	StopDistance float64
}

// PositionSizer translates a risk budget and a stop distance into an order
// quantity. Each backtest run owns its sizer exclusively; implementations do
// not need to be safe for concurrent use.
type PositionSizer interface {
	// CanOpenPosition reports whether another position may be opened.
	CanOpenPosition() bool

	// PositionSize computes the quantity for an entry at entryPrice with a
	// protective stop at stopPrice. When the stop distance is degenerate,
	// implementations may fall back to the given ATR. A zero-quantity
	// result means the entry is declined.
	PositionSize(entryPrice, stopPrice, atr float64) (SizeResult, error)

	// UpdateEquity feeds the running equity to the sizer once per bar.
	UpdateEquity(equity float64)

	// AddPosition records an opened position.
	AddPosition(symbol string, quantity, entryPrice float64)

	// ClearPositions resets the open-position bookkeeping for a new run.
	ClearPositions()
}
