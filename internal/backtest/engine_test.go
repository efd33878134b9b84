package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"strategylab/internal/domain"
	"strategylab/internal/strategy"
)

// scriptStrategy returns a pre-planned signal per candle, nil where the
// script has no entry.
type scriptStrategy struct {
	signals []*domain.TradeSignal
	i       int
}

func (s *scriptStrategy) Name() string { return "script" }

func (s *scriptStrategy) Analyze(_ domain.Candle, _ *domain.PositionState) (*domain.TradeSignal, error) {
	var sig *domain.TradeSignal
	if s.i < len(s.signals) {
		sig = s.signals[s.i]
	}
	s.i++
	return sig, nil
}

func (s *scriptStrategy) Reset()             { s.i = 0 }
func (s *scriptStrategy) ATR() float64       { return 0 }
func (s *scriptStrategy) StopLevel() float64 { return 0 }

// fixedSizer always approves and returns a fixed quantity.
type fixedSizer struct {
	quantity float64
	maxOpen  int
	open     int
}

func (f *fixedSizer) CanOpenPosition() bool {
	if f.maxOpen == 0 {
		return true
	}
	return f.open < f.maxOpen
}

func (f *fixedSizer) PositionSize(_, _, _ float64) (SizeResult, error) {
	return SizeResult{Quantity: f.quantity}, nil
}

func (f *fixedSizer) UpdateEquity(float64)              {}
func (f *fixedSizer) AddPosition(string, float64, float64) { f.open++ }
func (f *fixedSizer) ClearPositions()                   { f.open = 0 }

func mkCandles(ohlc [][4]float64) []domain.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]domain.Candle, len(ohlc))
	for i, v := range ohlc {
		candles[i] = domain.Candle{
			Symbol:    "TEST",
			OpenTime:  base.AddDate(0, 0, i),
			CloseTime: base.AddDate(0, 0, i+1),
			Open:      v[0],
			High:      v[1],
			Low:       v[2],
			Close:     v[3],
			Volume:    1000,
		}
	}
	return candles
}

func buySignal(t *testing.T, price, stop, target float64) *domain.TradeSignal {
	t.Helper()
	sig, err := domain.NewTradeSignal(domain.SignalBuy, price, "test buy")
	if err != nil {
		t.Fatalf("NewTradeSignal: %v", err)
	}
	return sig.WithStops(stop, target)
}

func sellSignal(t *testing.T, price, stop, target float64) *domain.TradeSignal {
	t.Helper()
	sig, err := domain.NewTradeSignal(domain.SignalSell, price, "test sell")
	if err != nil {
		t.Fatalf("NewTradeSignal: %v", err)
	}
	return sig.WithStops(stop, target)
}

func TestRunNoCandles(t *testing.T) {
	engine := NewEngine(domain.BacktestSettings{InitialCapital: 10_000}, &fixedSizer{quantity: 1})
	_, err := engine.Run(&scriptStrategy{}, nil, "TEST")
	if !errors.Is(err, domain.ErrNoCandles) {
		t.Errorf("Run(nil candles) error = %v, want ErrNoCandles", err)
	}
}

func TestStopLossForcesIntrabarExit(t *testing.T) {
	candles := mkCandles([][4]float64{
		{100, 103, 99, 102},
		{102, 104, 101, 103},
		{103, 104, 90, 92}, // low trades through the 95 stop
	})
	strat := &scriptStrategy{signals: []*domain.TradeSignal{
		buySignal(t, 102, 95, 0),
	}}

	engine := NewEngine(domain.BacktestSettings{InitialCapital: 10_000}, &fixedSizer{quantity: 1})
	result, err := engine.Run(strat, candles, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.ExitPrice == nil || *trade.ExitPrice != 95 {
		t.Errorf("exit price = %v, want 95 (the stop level, not the candle low)", trade.ExitPrice)
	}
	if trade.ExitReason != ReasonStopLoss {
		t.Errorf("exit reason = %q, want %q", trade.ExitReason, ReasonStopLoss)
	}
	want := 10_000 + (95.0 - 102.0)
	if math.Abs(result.FinalCapital-want) > 1e-9 {
		t.Errorf("final capital = %v, want %v", result.FinalCapital, want)
	}
}

func TestNoReentryOnStopOutBar(t *testing.T) {
	candles := mkCandles([][4]float64{
		{100, 103, 99, 102},
		{102, 104, 90, 96}, // stops out through 95 and signals a fresh buy
		{96, 98, 95, 97},
	})
	strat := &scriptStrategy{signals: []*domain.TradeSignal{
		buySignal(t, 102, 95, 0),
		buySignal(t, 96, 91, 0),
	}}

	engine := NewEngine(domain.BacktestSettings{InitialCapital: 10_000}, &fixedSizer{quantity: 1})
	result, err := engine.Run(strat, candles, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("got %d trades, want 1 (no re-entry on the bar that stopped out)", len(result.Trades))
	}
	if result.Trades[0].ExitReason != ReasonStopLoss {
		t.Errorf("exit reason = %q, want %q", result.Trades[0].ExitReason, ReasonStopLoss)
	}
}

func TestEntryOnBarAfterStopOut(t *testing.T) {
	// The same fresh buy one bar later is honored.
	candles := mkCandles([][4]float64{
		{100, 103, 99, 102},
		{102, 104, 90, 96},
		{96, 98, 95, 97},
		{97, 99, 96, 98},
	})
	strat := &scriptStrategy{signals: []*domain.TradeSignal{
		buySignal(t, 102, 95, 0),
		nil,
		buySignal(t, 97, 92, 0),
	}}

	engine := NewEngine(domain.BacktestSettings{InitialCapital: 10_000}, &fixedSizer{quantity: 1})
	result, err := engine.Run(strat, candles, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("got %d trades, want 2 (stop-out plus next-bar entry)", len(result.Trades))
	}
	if result.Trades[1].EntryPrice != 97 {
		t.Errorf("second entry price = %v, want the next bar's close 97", result.Trades[1].EntryPrice)
	}
	if result.Trades[1].ExitReason != ReasonEndOfBacktest {
		t.Errorf("second exit reason = %q, want %q", result.Trades[1].ExitReason, ReasonEndOfBacktest)
	}
}

func TestExitPriorityWhenBothLevelsTouched(t *testing.T) {
	// The second candle touches both the 95 stop and the 110 target.
	candles := mkCandles([][4]float64{
		{100, 101, 99, 100},
		{100, 115, 90, 105},
	})

	tests := []struct {
		name       string
		priority   domain.ExitPriority
		wantPrice  float64
		wantReason string
	}{
		{"stop first", domain.ExitPriorityStopFirst, 95, ReasonStopLoss},
		{"target first", domain.ExitPriorityTargetFirst, 110, ReasonTakeProfit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strat := &scriptStrategy{signals: []*domain.TradeSignal{
				buySignal(t, 100, 95, 110),
			}}
			settings := domain.BacktestSettings{InitialCapital: 10_000, ExitPriority: tt.priority}
			engine := NewEngine(settings, &fixedSizer{quantity: 1})

			result, err := engine.Run(strat, candles, "TEST")
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(result.Trades) != 1 {
				t.Fatalf("got %d trades, want 1", len(result.Trades))
			}
			trade := result.Trades[0]
			if *trade.ExitPrice != tt.wantPrice {
				t.Errorf("exit price = %v, want %v", *trade.ExitPrice, tt.wantPrice)
			}
			if trade.ExitReason != tt.wantReason {
				t.Errorf("exit reason = %q, want %q", trade.ExitReason, tt.wantReason)
			}
		})
	}
}

func TestEndOfBacktestForceClose(t *testing.T) {
	candles := mkCandles([][4]float64{
		{100, 101, 99, 100},
		{100, 102, 100, 101},
		{101, 107, 101, 106},
	})
	strat := &scriptStrategy{signals: []*domain.TradeSignal{
		buySignal(t, 100, 80, 0),
	}}

	engine := NewEngine(domain.BacktestSettings{InitialCapital: 10_000}, &fixedSizer{quantity: 1})
	result, err := engine.Run(strat, candles, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.ExitReason != ReasonEndOfBacktest {
		t.Errorf("exit reason = %q, want %q", trade.ExitReason, ReasonEndOfBacktest)
	}
	if *trade.ExitPrice != 106 {
		t.Errorf("exit price = %v, want the last close 106", *trade.ExitPrice)
	}
}

func TestReversalClosesAndReopens(t *testing.T) {
	candles := mkCandles([][4]float64{
		{100, 101, 99, 100},
		{100, 101, 99, 100},
		{100, 101, 99, 100},
		{100, 101, 99, 100},
	})
	strat := &scriptStrategy{signals: []*domain.TradeSignal{
		buySignal(t, 100, 90, 0),
		nil,
		sellSignal(t, 100, 110, 0),
	}}

	engine := NewEngine(domain.BacktestSettings{InitialCapital: 10_000}, &fixedSizer{quantity: 1})
	result, err := engine.Run(strat, candles, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("got %d trades, want 2 (reversal close plus end close)", len(result.Trades))
	}
	if result.Trades[0].ExitReason != ReasonReversal {
		t.Errorf("first exit reason = %q, want %q", result.Trades[0].ExitReason, ReasonReversal)
	}
	if result.Trades[0].Direction != domain.DirectionLong {
		t.Errorf("first trade direction = %v, want long", result.Trades[0].Direction)
	}
	if result.Trades[1].Direction != domain.DirectionShort {
		t.Errorf("second trade direction = %v, want short", result.Trades[1].Direction)
	}
}

func TestPartialExitClampedToOpenQuantity(t *testing.T) {
	candles := mkCandles([][4]float64{
		{100, 101, 99, 100},
		{100, 111, 100, 110},
		{110, 111, 109, 110},
	})
	base, err := domain.NewTradeSignal(domain.SignalExit, 110, "scale out")
	if err != nil {
		t.Fatalf("NewTradeSignal: %v", err)
	}
	partial, err := base.WithPartialExit(5, false) // far more than the 2 open
	if err != nil {
		t.Fatalf("WithPartialExit: %v", err)
	}
	strat := &scriptStrategy{signals: []*domain.TradeSignal{
		buySignal(t, 100, 90, 0),
		partial,
	}}

	engine := NewEngine(domain.BacktestSettings{InitialCapital: 10_000}, &fixedSizer{quantity: 2})
	result, err := engine.Run(strat, candles, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("got %d trades, want 1 (oversized partial flattens)", len(result.Trades))
	}
	if got := result.Trades[0].Quantity; got != 2 {
		t.Errorf("closed quantity = %v, want the open 2, not the requested 5", got)
	}
	want := 10_000 + (110.0-100.0)*2
	if math.Abs(result.FinalCapital-want) > 1e-9 {
		t.Errorf("final capital = %v, want %v", result.FinalCapital, want)
	}
}

func TestPartialExitBooksSliceAndKeepsRemainder(t *testing.T) {
	candles := mkCandles([][4]float64{
		{100, 101, 99, 100},
		{100, 111, 100, 110},
		{110, 121, 110, 120},
	})
	base, err := domain.NewTradeSignal(domain.SignalExit, 110, "scale out")
	if err != nil {
		t.Fatalf("NewTradeSignal: %v", err)
	}
	partial, err := base.WithPartialExit(1, true)
	if err != nil {
		t.Fatalf("WithPartialExit: %v", err)
	}
	strat := &scriptStrategy{signals: []*domain.TradeSignal{
		buySignal(t, 100, 90, 0),
		partial,
	}}

	engine := NewEngine(domain.BacktestSettings{InitialCapital: 10_000}, &fixedSizer{quantity: 2})
	result, err := engine.Run(strat, candles, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("got %d trades, want 2 (partial slice plus end close)", len(result.Trades))
	}
	slice := result.Trades[0]
	if slice.Quantity != 1 || *slice.ExitPrice != 110 {
		t.Errorf("slice = qty %v @ %v, want qty 1 @ 110", slice.Quantity, *slice.ExitPrice)
	}
	rest := result.Trades[1]
	if rest.Quantity != 1 || *rest.ExitPrice != 120 {
		t.Errorf("remainder = qty %v @ %v, want qty 1 @ 120", rest.Quantity, *rest.ExitPrice)
	}
	want := 10_000 + (110.0 - 100.0) + (120.0 - 100.0)
	if math.Abs(result.FinalCapital-want) > 1e-9 {
		t.Errorf("final capital = %v, want %v", result.FinalCapital, want)
	}
}

func TestEntryWithoutStopIsIgnored(t *testing.T) {
	candles := mkCandles([][4]float64{
		{100, 101, 99, 100},
		{100, 101, 99, 100},
	})
	sig, err := domain.NewTradeSignal(domain.SignalBuy, 100, "no stop")
	if err != nil {
		t.Fatalf("NewTradeSignal: %v", err)
	}
	strat := &scriptStrategy{signals: []*domain.TradeSignal{sig}}

	engine := NewEngine(domain.BacktestSettings{InitialCapital: 10_000}, &fixedSizer{quantity: 1})
	result, err := engine.Run(strat, candles, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("got %d trades, want 0 for a stop-less entry", len(result.Trades))
	}
	if result.FinalCapital != 10_000 {
		t.Errorf("final capital = %v, want untouched 10000", result.FinalCapital)
	}
}

func TestCapitalConservation(t *testing.T) {
	candles := mkCandles([][4]float64{
		{100, 101, 99, 100},
		{100, 105, 100, 104},
		{104, 106, 103, 105},
		{105, 106, 102, 103},
		{103, 108, 103, 107},
	})
	exit, err := domain.NewTradeSignal(domain.SignalExit, 105, "take profit")
	if err != nil {
		t.Fatalf("NewTradeSignal: %v", err)
	}
	strat := &scriptStrategy{signals: []*domain.TradeSignal{
		buySignal(t, 100, 90, 0),
		nil,
		exit,
		buySignal(t, 103, 95, 0),
	}}

	settings := domain.BacktestSettings{
		InitialCapital:    10_000,
		CommissionPercent: 0.1,
		SlippagePercent:   0.05,
	}
	engine := NewEngine(settings, &fixedSizer{quantity: 3})
	result, err := engine.Run(strat, candles, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	sumNet := 0.0
	for _, tr := range result.Trades {
		net := tr.NetPnL()
		if net == nil {
			t.Fatalf("trade still open in result: %+v", tr)
		}
		sumNet += *net
	}
	want := settings.InitialCapital + sumNet
	if math.Abs(result.FinalCapital-want) > 1e-9 {
		t.Errorf("final capital = %v, want initial + sum(net pnl) = %v", result.FinalCapital, want)
	}
}

func TestSlippageAppliedToForcedExit(t *testing.T) {
	candles := mkCandles([][4]float64{
		{100, 101, 99, 100},
		{100, 101, 90, 95},
	})
	strat := &scriptStrategy{signals: []*domain.TradeSignal{
		buySignal(t, 100, 95, 0),
	}}

	settings := domain.BacktestSettings{InitialCapital: 10_000, SlippagePercent: 1}
	engine := NewEngine(settings, &fixedSizer{quantity: 1})
	result, err := engine.Run(strat, candles, "TEST")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(result.Trades))
	}
	// Long stop exit sells below the level.
	wantExit := 95 * (1 - 0.01)
	if got := *result.Trades[0].ExitPrice; math.Abs(got-wantExit) > 1e-9 {
		t.Errorf("exit price = %v, want %v (stop level minus slippage)", got, wantExit)
	}
	// Long entry buys above the quote.
	wantEntry := 100 * (1 + 0.01)
	if got := result.Trades[0].EntryPrice; math.Abs(got-wantEntry) > 1e-9 {
		t.Errorf("entry price = %v, want %v (close plus slippage)", got, wantEntry)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	// A jagged but fully deterministic series.
	var ohlc [][4]float64
	price := 100.0
	for i := 0; i < 120; i++ {
		move := float64((i*7)%13) - 6
		open := price
		price += move
		high := math.Max(open, price) + 1
		low := math.Min(open, price) - 1
		ohlc = append(ohlc, [4]float64{open, high, low, price})
	}
	candles := mkCandles(ohlc)
	settings := domain.BacktestSettings{InitialCapital: 10_000, CommissionPercent: 0.1}

	run := func() *domain.BacktestResult {
		engine := NewEngine(settings, &fixedSizer{quantity: 1})
		result, err := engine.Run(strategy.NewMACross(strategy.MACrossSettings{
			FastPeriod: 5, SlowPeriod: 15, StopLossPercent: 2, TakeProfitPercent: 4,
		}), candles, "TEST")
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return result
	}

	a, b := run(), run()
	if a.FinalCapital != b.FinalCapital {
		t.Errorf("final capital differs between identical runs: %v vs %v", a.FinalCapital, b.FinalCapital)
	}
	if len(a.Trades) != len(b.Trades) {
		t.Errorf("trade count differs between identical runs: %d vs %d", len(a.Trades), len(b.Trades))
	}
	for i := range a.Trades {
		if *a.Trades[i].ExitPrice != *b.Trades[i].ExitPrice {
			t.Errorf("trade %d exit differs: %v vs %v", i, *a.Trades[i].ExitPrice, *b.Trades[i].ExitPrice)
		}
	}
}
