package backtest

import (
	"fmt"
	"log/slog"

	"strategylab/internal/domain"
	"strategylab/internal/strategy"
)

// Engine drives the single-timeframe simulation loop. An Engine instance is
// owned by one goroutine at a time; concurrent backtests each construct
// their own Engine and PositionSizer.
type Engine struct {
	settings domain.BacktestSettings
	sizer    PositionSizer
	log      *slog.Logger

	// Multi-timeframe state, nil for the single-timeframe engine.
	evaluator *SignalFilterEvaluator
	feeds     []*FilterFeed

	// Per-run state.
	capital   float64
	position  domain.PositionState
	openTrade *domain.Trade
	trades    []domain.Trade
}

// NewEngine creates a single-timeframe engine.
func NewEngine(settings domain.BacktestSettings, sizer PositionSizer) *Engine {
	return &Engine{
		settings: settings,
		sizer:    sizer,
		log:      slog.Default().With("component", "backtest"),
	}
}

// Run replays the candle series through the strategy and returns the
// completed result. It fails immediately on an empty series; an error from
// the strategy or the sizer is fatal and terminates the run.
func (e *Engine) Run(strat strategy.Strategy, candles []domain.Candle, symbol string) (*domain.BacktestResult, error) {
	if len(candles) == 0 {
		return nil, domain.ErrNoCandles
	}

	strat.Reset()
	e.sizer.ClearPositions()
	for _, ff := range e.feeds {
		ff.Reset()
	}
	e.capital = e.settings.InitialCapital
	e.position = domain.PositionState{}
	e.openTrade = nil
	e.trades = nil

	equity := make([]float64, 0, len(candles))

	for _, c := range candles {
		e.position.UpdateExcursions(c)

		// Mark to the candle close. Fees and slippage never touch the
		// mid-trade equity curve; they are settled at trade close.
		mark := e.capital + e.position.UnrealizedPnL(c.Close)
		equity = append(equity, mark)
		e.sizer.UpdateEquity(mark)

		// Intrabar forced exits, in configured priority order.
		forced := false
		if !e.position.IsFlat() {
			if exit := e.checkForcedExit(c); exit.Hit {
				e.closePosition(c, exit.Price, exit.Reason)
				forced = true
			}
		}

		// Auxiliary filters see everything that closed up to this bar.
		for _, ff := range e.feeds {
			ff.Advance(c.CloseTime)
		}

		// The strategy always sees the bar so its indicators stay warm, but
		// its signal is dropped on a bar that already stopped out: the next
		// entry waits for a fresh bar.
		sig, err := strat.Analyze(c, &e.position)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", strat.Name(), err)
		}
		if !forced {
			if sig != nil && sig.Type != domain.SignalNone {
				if err := e.applySignal(strat, c, symbol, sig); err != nil {
					return nil, err
				}
			}
			e.syncTrailingStop(strat)
		}
	}

	// Force-close whatever is still open at the last candle.
	last := candles[len(candles)-1]
	if !e.position.IsFlat() {
		price := exitWithSlippage(last.Close, e.position.Direction(), e.settings.SlippagePercent)
		e.closePosition(last, price, ReasonEndOfBacktest)
	}

	result := &domain.BacktestResult{
		StrategyName:   strat.Name(),
		Symbol:         symbol,
		StartDate:      candles[0].OpenTime,
		EndDate:        last.CloseTime,
		InitialCapital: e.settings.InitialCapital,
		FinalCapital:   e.capital,
		Trades:         e.trades,
		EquityCurve:    equity,
	}
	result.Metrics = ComputeMetrics(result.Trades, result.EquityCurve, result.InitialCapital, result.StartDate, result.EndDate)
	return result, nil
}

// checkForcedExit checks stop-loss and take-profit against the candle. With
// the default stop-first priority, a candle that touches both levels is
// resolved as a stop-loss: the deliberate, conservative tie-break.
func (e *Engine) checkForcedExit(c domain.Candle) ForcedExit {
	dir := e.position.Direction()
	slip := e.settings.SlippagePercent

	first := CheckStopLoss(c, e.position.StopLoss, dir, slip)
	second := CheckTakeProfit(c, e.position.TakeProfit, dir, slip)
	if e.settings.ExitPriority == domain.ExitPriorityTargetFirst {
		first, second = second, first
	}
	if first.Hit {
		return first
	}
	return second
}

// applySignal runs the position/signal transition table for one signal. In
// the multi-timeframe engine every signal, exits included, passes the filter
// evaluator first; the combined score-filter confidence scales entry sizing.
func (e *Engine) applySignal(strat strategy.Strategy, c domain.Candle, symbol string, sig *domain.TradeSignal) error {
	confidence := 1.0
	if e.evaluator != nil {
		decision := e.evaluator.Evaluate(sig)
		if !decision.Approved {
			e.log.Debug("signal blocked", "symbol", symbol, "time", c.CloseTime, "reason", decision.Reason)
			return nil
		}
		confidence = decision.Confidence
		if sig.Type == domain.SignalBuy || sig.Type == domain.SignalSell {
			sig.Reason = sig.Reason + " (" + decision.Reason + ")"
		}
	}

	switch sig.Type {
	case domain.SignalBuy:
		if e.position.IsFlat() {
			return e.openPosition(strat, c, symbol, sig, domain.DirectionLong, confidence)
		}
		if e.position.Direction() == domain.DirectionShort {
			price := exitWithSlippage(c.Close, domain.DirectionShort, e.settings.SlippagePercent)
			e.closePosition(c, price, ReasonReversal)
			return e.openPosition(strat, c, symbol, sig, domain.DirectionLong, confidence)
		}

	case domain.SignalSell:
		if e.position.IsFlat() {
			return e.openPosition(strat, c, symbol, sig, domain.DirectionShort, confidence)
		}
		if e.position.Direction() == domain.DirectionLong {
			price := exitWithSlippage(c.Close, domain.DirectionLong, e.settings.SlippagePercent)
			e.closePosition(c, price, ReasonReversal)
			return e.openPosition(strat, c, symbol, sig, domain.DirectionShort, confidence)
		}

	case domain.SignalExit:
		if !e.position.IsFlat() {
			price := exitWithSlippage(c.Close, e.position.Direction(), e.settings.SlippagePercent)
			e.closePosition(c, price, sig.Reason)
		}

	case domain.SignalPartialExit:
		if !e.position.IsFlat() {
			e.partialExit(c, sig)
		}
	}
	return nil
}

// openPosition sizes and opens a new position. Entries require a stop-loss
// in the signal and the sizer's approval; otherwise the signal is a no-op.
func (e *Engine) openPosition(strat strategy.Strategy, c domain.Candle, symbol string, sig *domain.TradeSignal, dir domain.Direction, confidence float64) error {
	if sig.StopLoss == nil {
		e.log.Debug("entry without stop-loss ignored", "symbol", symbol, "time", c.CloseTime)
		return nil
	}
	if !e.sizer.CanOpenPosition() {
		return nil
	}

	entryPrice := entryWithSlippage(c.Close, dir, e.settings.SlippagePercent)
	size, err := e.sizer.PositionSize(entryPrice, *sig.StopLoss, strat.ATR())
	if err != nil {
		return fmt.Errorf("position sizing: %w", err)
	}
	quantity := size.Quantity * confidence
	if quantity <= 0 {
		return nil
	}

	trade, err := domain.NewTrade(symbol, dir, c.CloseTime, entryPrice, quantity)
	if err != nil {
		return err
	}
	trade.StopLoss = sig.StopLoss
	trade.TakeProfit = sig.TakeProfit
	trade.Commission = entryPrice * quantity * e.settings.CommissionPercent / 100
	e.openTrade = trade

	takeProfit := 0.0
	if sig.TakeProfit != nil {
		takeProfit = *sig.TakeProfit
	}
	signed := quantity * dir.Sign()
	e.position.Open(signed, entryPrice, *sig.StopLoss, takeProfit, c.CloseTime)
	e.sizer.AddPosition(symbol, quantity, entryPrice)
	return nil
}

// partialExit reduces the open position per the signal, clamped to the open
// quantity. Closing more than is open flattens the position instead of going
// negative.
func (e *Engine) partialExit(c domain.Candle, sig *domain.TradeSignal) {
	requested := 0.0
	switch {
	case sig.PartialExitQuantity != nil:
		requested = *sig.PartialExitQuantity
	case sig.PartialExitPercent != nil:
		fraction := *sig.PartialExitPercent
		if fraction > 1 {
			// Already expressed in percentage units (50 means 50%).
			fraction /= 100
		}
		requested = e.position.AbsQuantity() * fraction
	default:
		return
	}

	dir := e.position.Direction()
	entryPrice := e.position.EntryPrice
	entryTime := e.position.EntryTime
	barsHeld := e.position.BarsHeld
	price := exitWithSlippage(c.Close, dir, e.settings.SlippagePercent)

	closed, flat := e.position.PartialClose(requested)
	if closed <= 0 {
		return
	}

	if flat {
		e.settleClose(c, price, sig.Reason, closed, barsHeld)
		e.sizer.ClearPositions()
		return
	}

	// Book the closed fraction as its own trade record; the remainder
	// keeps running under the original entry.
	slice := domain.Trade{
		Symbol:     e.openTrade.Symbol,
		Direction:  dir,
		EntryTime:  entryTime,
		EntryPrice: entryPrice,
		Quantity:   closed,
		StopLoss:   e.openTrade.StopLoss,
		TakeProfit: e.openTrade.TakeProfit,
		BarsHeld:   barsHeld,
	}
	slice.Commission = (entryPrice + price) * closed * e.settings.CommissionPercent / 100
	slice.Close(c.CloseTime, price, sig.Reason)
	e.capital += *slice.PnL() - slice.Commission
	e.trades = append(e.trades, slice)

	remaining := e.position.AbsQuantity()
	e.openTrade.Quantity = remaining
	e.openTrade.Commission = entryPrice * remaining * e.settings.CommissionPercent / 100

	// Stop management after scaling out.
	if sig.MoveStopToBreakeven {
		e.position.UpdateStopLoss(entryPrice)
	} else if sig.StopLoss != nil {
		e.position.UpdateStopLoss(*sig.StopLoss)
	}
}

// closePosition closes the full open position at the given price.
func (e *Engine) closePosition(c domain.Candle, price float64, reason string) {
	e.settleClose(c, price, reason, e.position.AbsQuantity(), e.position.BarsHeld)
	e.position.Close()
	e.sizer.ClearPositions()
}

// settleClose finalizes the open trade record for the given quantity and
// realizes its P&L into capital. Fees are charged on both entry and exit
// notional; slippage is already in the prices.
func (e *Engine) settleClose(c domain.Candle, price float64, reason string, quantity float64, barsHeld int) {
	if e.openTrade == nil || quantity <= 0 {
		return
	}
	t := *e.openTrade
	t.Quantity = quantity
	t.BarsHeld = barsHeld
	t.Commission = (t.EntryPrice + price) * quantity * e.settings.CommissionPercent / 100
	t.Close(c.CloseTime, price, reason)

	e.capital += *t.PnL() - t.Commission
	e.trades = append(e.trades, t)
	e.openTrade = nil
}

// syncTrailingStop tightens the position's stop from a strategy that tracks
// a trailing level. The stop only ever moves in the trade's favor.
func (e *Engine) syncTrailingStop(strat strategy.Strategy) {
	if e.position.IsFlat() {
		return
	}
	level := strat.StopLevel()
	if level <= 0 {
		return
	}
	if e.position.Direction() == domain.DirectionLong {
		if level > e.position.StopLoss {
			e.position.UpdateStopLoss(level)
		}
	} else {
		if e.position.StopLoss == 0 || level < e.position.StopLoss {
			e.position.UpdateStopLoss(level)
		}
	}
}
