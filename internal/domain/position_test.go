package domain

import (
	"testing"
	"time"
)

func TestPositionOpenAndFlat(t *testing.T) {
	var p PositionState
	if !p.IsFlat() {
		t.Fatal("zero-value position not flat")
	}
	if p.UnrealizedPnL(100) != 0 {
		t.Error("flat position has unrealized P&L")
	}

	p.Open(5, 100, 95, 110, time.Now())
	if p.IsFlat() {
		t.Fatal("opened position reports flat")
	}
	if p.Direction() != DirectionLong || p.AbsQuantity() != 5 {
		t.Errorf("direction=%v abs=%v", p.Direction(), p.AbsQuantity())
	}

	p.Close()
	if !p.IsFlat() || p.StopLoss != 0 || p.BarsHeld != 0 {
		t.Errorf("close left state behind: %+v", p)
	}
}

func TestPositionShortDirection(t *testing.T) {
	var p PositionState
	p.Open(-3, 100, 105, 0, time.Now())
	if p.Direction() != DirectionShort {
		t.Errorf("direction = %v, want short", p.Direction())
	}
	if p.AbsQuantity() != 3 {
		t.Errorf("abs quantity = %v, want 3", p.AbsQuantity())
	}
}

func TestUnrealizedPnLSigns(t *testing.T) {
	var long PositionState
	long.Open(2, 100, 0, 0, time.Now())
	if got := long.UnrealizedPnL(110); got != 20 {
		t.Errorf("long mark-up pnl = %v, want 20", got)
	}
	if got := long.UnrealizedPnL(90); got != -20 {
		t.Errorf("long mark-down pnl = %v, want -20", got)
	}

	var short PositionState
	short.Open(-2, 100, 0, 0, time.Now())
	if got := short.UnrealizedPnL(90); got != 20 {
		t.Errorf("short mark-down pnl = %v, want 20", got)
	}
	if got := short.UnrealizedPnL(110); got != -20 {
		t.Errorf("short mark-up pnl = %v, want -20", got)
	}
}

func TestUpdateExcursions(t *testing.T) {
	var p PositionState
	p.Open(1, 100, 0, 0, time.Now())

	p.UpdateExcursions(Candle{High: 105, Low: 97})
	p.UpdateExcursions(Candle{High: 112, Low: 99})
	p.UpdateExcursions(Candle{High: 104, Low: 94})

	if p.BarsHeld != 3 {
		t.Errorf("bars held = %d, want 3", p.BarsHeld)
	}
	if p.MaxFavorableExcursion != 12 {
		t.Errorf("MFE = %v, want 12", p.MaxFavorableExcursion)
	}
	if p.MaxAdverseExcursion != -6 {
		t.Errorf("MAE = %v, want -6", p.MaxAdverseExcursion)
	}

	// A flat position never accrues excursions.
	var flat PositionState
	flat.UpdateExcursions(Candle{High: 200, Low: 1})
	if flat.BarsHeld != 0 {
		t.Error("flat position counted a bar")
	}
}

func TestUpdateExcursionsShort(t *testing.T) {
	var p PositionState
	p.Open(-1, 100, 0, 0, time.Now())
	p.UpdateExcursions(Candle{High: 108, Low: 95})

	// For a short, the high is adverse and the low is favorable.
	if p.MaxAdverseExcursion != -8 {
		t.Errorf("MAE = %v, want -8", p.MaxAdverseExcursion)
	}
	if p.MaxFavorableExcursion != 5 {
		t.Errorf("MFE = %v, want 5", p.MaxFavorableExcursion)
	}
}

func TestPartialClose(t *testing.T) {
	var p PositionState
	p.Open(10, 100, 95, 0, time.Now())

	closed, flat := p.PartialClose(4)
	if closed != 4 || flat {
		t.Errorf("PartialClose(4) = (%v, %v), want (4, false)", closed, flat)
	}
	if p.Quantity != 6 {
		t.Errorf("remaining quantity = %v, want 6", p.Quantity)
	}

	// Requests beyond the open quantity clamp and flatten.
	closed, flat = p.PartialClose(100)
	if closed != 6 || !flat {
		t.Errorf("PartialClose(100) = (%v, %v), want (6, true)", closed, flat)
	}
	if !p.IsFlat() {
		t.Error("position not flat after the clamped close")
	}

	// A flat position closes nothing.
	closed, flat = p.PartialClose(1)
	if closed != 0 || !flat {
		t.Errorf("PartialClose on flat = (%v, %v), want (0, true)", closed, flat)
	}
}

func TestPartialCloseShort(t *testing.T) {
	var p PositionState
	p.Open(-10, 100, 105, 0, time.Now())

	closed, flat := p.PartialClose(4)
	if closed != 4 || flat {
		t.Errorf("PartialClose(4) = (%v, %v), want (4, false)", closed, flat)
	}
	if p.Quantity != -6 {
		t.Errorf("remaining quantity = %v, want -6", p.Quantity)
	}
	if p.Direction() != DirectionShort {
		t.Error("partial close flipped the direction")
	}
}

func TestUpdateStopLoss(t *testing.T) {
	var p PositionState
	p.Open(1, 100, 95, 0, time.Now())
	p.UpdateStopLoss(98)
	if p.StopLoss != 98 {
		t.Errorf("stop = %v, want 98", p.StopLoss)
	}
}
