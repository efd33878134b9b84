package domain

import "time"

// PositionState is the mutable lifecycle of a single open position inside one
// backtest run. Quantity is signed: positive for long, negative for short.
// A position is flat iff Quantity == 0; quantity and entry price are always
// both present or both absent.
type PositionState struct {
	Quantity   float64
	EntryPrice float64
	StopLoss   float64 // 0 means no stop
	TakeProfit float64 // 0 means no target
	EntryTime  time.Time

	// MAE/MFE: worst and best unrealized P&L observed while open.
	MaxAdverseExcursion   float64
	MaxFavorableExcursion float64
	BarsHeld              int
}

// Open initializes the position. Quantity carries the direction sign.
func (p *PositionState) Open(quantity, entryPrice, stopLoss, takeProfit float64, entryTime time.Time) {
	p.Quantity = quantity
	p.EntryPrice = entryPrice
	p.StopLoss = stopLoss
	p.TakeProfit = takeProfit
	p.EntryTime = entryTime
	p.MaxAdverseExcursion = 0
	p.MaxFavorableExcursion = 0
	p.BarsHeld = 0
}

// IsFlat reports whether no position is open.
func (p *PositionState) IsFlat() bool { return p.Quantity == 0 }

// Direction returns the side encoded in the quantity sign. Only meaningful
// when the position is open.
func (p *PositionState) Direction() Direction {
	if p.Quantity < 0 {
		return DirectionShort
	}
	return DirectionLong
}

// AbsQuantity returns the unsigned open quantity.
func (p *PositionState) AbsQuantity() float64 {
	if p.Quantity < 0 {
		return -p.Quantity
	}
	return p.Quantity
}

// UnrealizedPnL marks the position to the given price.
func (p *PositionState) UnrealizedPnL(price float64) float64 {
	if p.IsFlat() {
		return 0
	}
	return (price - p.EntryPrice) * p.Quantity
}

// UpdateExcursions records the running MAE/MFE against the candle extremes
// and advances the bars-held counter.
func (p *PositionState) UpdateExcursions(c Candle) {
	if p.IsFlat() {
		return
	}
	p.BarsHeld++

	var worst, best float64
	if p.Quantity > 0 {
		worst = (c.Low - p.EntryPrice) * p.Quantity
		best = (c.High - p.EntryPrice) * p.Quantity
	} else {
		worst = (c.High - p.EntryPrice) * p.Quantity
		best = (c.Low - p.EntryPrice) * p.Quantity
	}
	if worst < p.MaxAdverseExcursion {
		p.MaxAdverseExcursion = worst
	}
	if best > p.MaxFavorableExcursion {
		p.MaxFavorableExcursion = best
	}
}

// PartialClose reduces the open quantity by the unsigned amount, clamped to
// the current quantity. It returns the unsigned quantity actually closed and
// whether the position is now flat.
func (p *PositionState) PartialClose(quantity float64) (closed float64, flat bool) {
	if p.IsFlat() || quantity <= 0 {
		return 0, p.IsFlat()
	}
	abs := p.AbsQuantity()
	if quantity >= abs {
		p.Close()
		return abs, true
	}
	if p.Quantity > 0 {
		p.Quantity -= quantity
	} else {
		p.Quantity += quantity
	}
	return quantity, false
}

// UpdateStopLoss replaces the stop level.
func (p *PositionState) UpdateStopLoss(stop float64) { p.StopLoss = stop }

// Close flattens the position and clears all per-trade state.
func (p *PositionState) Close() { *p = PositionState{} }
