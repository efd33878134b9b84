package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"strategylab/internal/domain"
)

func testCandles(symbol string, start time.Time, n int) []domain.Candle {
	candles := make([]domain.Candle, n)
	for i := range candles {
		open := 100.0 + float64(i)
		candles[i] = domain.Candle{
			Symbol:    symbol,
			OpenTime:  start.AddDate(0, 0, i),
			CloseTime: start.AddDate(0, 0, i+1),
			Open:      open,
			High:      open + 2,
			Low:       open - 1,
			Close:     open + 1,
			Volume:    1000 + float64(i),
		}
	}
	return candles
}

func TestCandlePathLayout(t *testing.T) {
	s := NewParquetStore("/data")
	got := s.candlePath("aapl", "1d", 2024)
	want := filepath.Join("/data", "1d", "AAPL", "2024.parquet")
	if got != want {
		t.Errorf("candlePath = %q, want %q", got, want)
	}
}

func TestParquetWriteReadRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := testCandles("AAPL", start, 5)

	if err := s.WriteCandles(ctx, "1d", candles); err != nil {
		t.Fatalf("WriteCandles: %v", err)
	}

	got, err := s.ReadCandles(ctx, "AAPL", "1d", start, start.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("ReadCandles: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d candles, want 5", len(got))
	}
	for i, c := range got {
		want := candles[i]
		if !c.OpenTime.Equal(want.OpenTime) || c.Close != want.Close || c.Volume != want.Volume {
			t.Errorf("candle %d = %+v, want %+v", i, c, want)
		}
	}
}

func TestParquetReadRangeFilter(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := s.WriteCandles(ctx, "1d", testCandles("AAPL", start, 10)); err != nil {
		t.Fatalf("WriteCandles: %v", err)
	}

	// Inclusive on both ends of the open-time range.
	got, err := s.ReadCandles(ctx, "AAPL", "1d", start.AddDate(0, 0, 2), start.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("ReadCandles: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d candles, want 4", len(got))
	}
	if !got[0].OpenTime.Equal(start.AddDate(0, 0, 2)) {
		t.Errorf("first candle opens at %v, want %v", got[0].OpenTime, start.AddDate(0, 0, 2))
	}
}

func TestParquetRewriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := testCandles("AAPL", start, 5)

	if err := s.WriteCandles(ctx, "1d", candles); err != nil {
		t.Fatalf("first WriteCandles: %v", err)
	}
	// Re-fetch of an overlapping range: last 3 again plus 2 new, with a
	// corrected close on the overlap.
	refetch := testCandles("AAPL", start.AddDate(0, 0, 2), 5)
	refetch[0].Close = 999
	if err := s.WriteCandles(ctx, "1d", refetch); err != nil {
		t.Fatalf("second WriteCandles: %v", err)
	}

	got, err := s.ReadCandles(ctx, "AAPL", "1d", start, start.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("ReadCandles: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("got %d candles after overlapping rewrite, want 7", len(got))
	}
	if got[2].Close != 999 {
		t.Errorf("overlap candle close = %v, want the incoming 999", got[2].Close)
	}
}

func TestParquetSpansYearFiles(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())
	start := time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC)
	if err := s.WriteCandles(ctx, "1d", testCandles("MSFT", start, 6)); err != nil {
		t.Fatalf("WriteCandles: %v", err)
	}

	got, err := s.ReadCandles(ctx, "MSFT", "1d", start, start.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("ReadCandles: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("got %d candles across the year boundary, want 6", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].OpenTime.After(got[i-1].OpenTime) {
			t.Errorf("candles out of order at %d: %v then %v", i, got[i-1].OpenTime, got[i].OpenTime)
		}
	}
}

func TestParquetListSymbols(t *testing.T) {
	ctx := context.Background()
	s := NewParquetStore(t.TempDir())
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	symbols, err := s.ListSymbols(ctx, "1d")
	if err != nil {
		t.Fatalf("ListSymbols on empty store: %v", err)
	}
	if len(symbols) != 0 {
		t.Fatalf("empty store lists %v", symbols)
	}

	for _, sym := range []string{"MSFT", "AAPL"} {
		if err := s.WriteCandles(ctx, "1d", testCandles(sym, start, 2)); err != nil {
			t.Fatalf("WriteCandles(%s): %v", sym, err)
		}
	}
	symbols, err = s.ListSymbols(ctx, "1d")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "MSFT" {
		t.Errorf("ListSymbols = %v, want [AAPL MSFT]", symbols)
	}
}

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testBacktestResult(t *testing.T) *domain.BacktestResult {
	t.Helper()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	trade, err := domain.NewTrade("AAPL", domain.DirectionLong, start, 100, 2)
	if err != nil {
		t.Fatalf("NewTrade: %v", err)
	}
	trade.Commission = 0.4
	trade.BarsHeld = 3
	trade.Close(start.AddDate(0, 0, 3), 108, "Take Profit")

	short, err := domain.NewTrade("AAPL", domain.DirectionShort, start.AddDate(0, 0, 5), 110, 1)
	if err != nil {
		t.Fatalf("NewTrade: %v", err)
	}
	short.Close(start.AddDate(0, 0, 7), 105, "Stop Loss")

	return &domain.BacktestResult{
		StrategyName:   "macross",
		Symbol:         "AAPL",
		StartDate:      start,
		EndDate:        start.AddDate(0, 1, 0),
		InitialCapital: 10_000,
		FinalCapital:   10_020.6,
		Trades:         []domain.Trade{*trade, *short},
		Metrics: domain.PerformanceMetrics{
			TotalReturn:        0.206,
			SharpeRatio:        0.9,
			MaxDrawdownPercent: 1.2,
			TotalTrades:        2,
			WinRate:            100,
			ProfitFactor:       999,
		},
	}
}

func TestSQLiteBacktestRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	result := testBacktestResult(t)

	runID, err := s.SaveBacktest(ctx, result)
	if err != nil {
		t.Fatalf("SaveBacktest: %v", err)
	}
	if runID <= 0 {
		t.Fatalf("run id = %d, want positive", runID)
	}

	summaries, err := s.ListBacktests(ctx, "AAPL", 10)
	if err != nil {
		t.Fatalf("ListBacktests: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	got := summaries[0]
	if got.ID != runID || got.StrategyName != "macross" || got.Symbol != "AAPL" {
		t.Errorf("summary = %+v", got)
	}
	if got.TotalTrades != 2 || got.FinalCapital != 10_020.6 {
		t.Errorf("summary metrics = %+v", got)
	}
	if !got.StartDate.Equal(result.StartDate) {
		t.Errorf("start date = %v, want %v", got.StartDate, result.StartDate)
	}

	trades, err := s.GetTrades(ctx, runID)
	if err != nil {
		t.Fatalf("GetTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	first := trades[0]
	if first.Direction != domain.DirectionLong || first.EntryPrice != 100 || first.Quantity != 2 {
		t.Errorf("first trade = %+v", first)
	}
	if first.ExitPrice == nil || *first.ExitPrice != 108 {
		t.Errorf("first trade exit price = %v, want 108", first.ExitPrice)
	}
	if first.ExitReason != "Take Profit" || first.BarsHeld != 3 {
		t.Errorf("first trade exit = %q after %d bars", first.ExitReason, first.BarsHeld)
	}
	if trades[1].Direction != domain.DirectionShort {
		t.Errorf("second trade direction = %v, want short", trades[1].Direction)
	}
}

func TestSQLiteListBacktestsSymbolFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	result := testBacktestResult(t)
	if _, err := s.SaveBacktest(ctx, result); err != nil {
		t.Fatalf("SaveBacktest: %v", err)
	}
	other := testBacktestResult(t)
	other.Symbol = "MSFT"
	if _, err := s.SaveBacktest(ctx, other); err != nil {
		t.Fatalf("SaveBacktest: %v", err)
	}

	all, err := s.ListBacktests(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListBacktests(all): %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d runs for the empty filter, want 2", len(all))
	}

	msft, err := s.ListBacktests(ctx, "MSFT", 10)
	if err != nil {
		t.Fatalf("ListBacktests(MSFT): %v", err)
	}
	if len(msft) != 1 || msft[0].Symbol != "MSFT" {
		t.Errorf("MSFT filter returned %+v", msft)
	}
}

func TestSQLiteOptimizationRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	started := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	run := &OptimizationRun{
		StrategyName: "trend",
		Symbol:       "AAPL",
		Objective:    "composite",
		BestFitness:  1.42,
		BestSettings: `{"ema_period":21}`,
		StartedAt:    started,
		FinishedAt:   started.Add(5 * time.Minute),
		Generations: []GenerationRecord{
			{Generation: 0, BestFitness: 0.8, AverageFitness: 0.2, WorstFitness: -1e6},
			{Generation: 1, BestFitness: 1.42, AverageFitness: 0.6, WorstFitness: -0.3},
		},
	}

	runID, err := s.SaveOptimization(ctx, run)
	if err != nil {
		t.Fatalf("SaveOptimization: %v", err)
	}
	if runID <= 0 {
		t.Fatalf("run id = %d, want positive", runID)
	}

	runs, err := s.ListOptimizations(ctx, "AAPL", 10)
	if err != nil {
		t.Fatalf("ListOptimizations: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	got := runs[0]
	if got.ID != runID || got.StrategyName != "trend" || got.Objective != "composite" {
		t.Errorf("run = %+v", got)
	}
	if got.BestFitness != 1.42 || got.BestSettings != `{"ema_period":21}` {
		t.Errorf("best = %v %q", got.BestFitness, got.BestSettings)
	}
	if !got.StartedAt.Equal(run.StartedAt) || !got.FinishedAt.Equal(run.FinishedAt) {
		t.Errorf("times = %v..%v, want %v..%v", got.StartedAt, got.FinishedAt, run.StartedAt, run.FinishedAt)
	}
	// The list view is shallow.
	if len(got.Generations) != 0 {
		t.Errorf("list returned %d generation records, want none", len(got.Generations))
	}
}
