package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"strategylab/internal/backtest"
	"strategylab/internal/config"
	"strategylab/internal/domain"
	"strategylab/internal/risk"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
	"strategylab/internal/util"
)

func main() {
	symbol := flag.String("symbol", "", "symbol to backtest (required)")
	strategyName := flag.String("strategy", "trend", "strategy family: trend, macross, meanrev, ensemble")
	timeframe := flag.String("timeframe", "", "bar size, defaults to fetch.timeframe from config")
	startStr := flag.String("start", "", "start date YYYY-MM-DD, defaults to 3 years before end")
	endStr := flag.String("end", "", "end date YYYY-MM-DD, defaults to today")
	save := flag.Bool("save", false, "persist the run and its trades to the result store")
	monteCarlo := flag.Bool("montecarlo", false, "resample trade order after the run")
	flag.Parse()

	cfgPath := "config/strategylab.yaml"
	if p := os.Getenv("STRATEGYLAB_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if *symbol == "" {
		log.Fatal("-symbol is required")
	}
	tf := *timeframe
	if tf == "" {
		tf = cfg.Fetch.Timeframe
	}

	end := time.Now().UTC()
	if *endStr != "" {
		end, err = time.Parse("2006-01-02", *endStr)
		if err != nil {
			log.Fatalf("invalid -end date: %v", err)
		}
	}
	start := end.AddDate(-3, 0, 0)
	if *startStr != "" {
		start, err = time.Parse("2006-01-02", *startStr)
		if err != nil {
			log.Fatalf("invalid -start date: %v", err)
		}
	}

	ctx := context.Background()

	candleStore := store.NewParquetStore(cfg.Storage.DataDir)
	candles, err := candleStore.ReadCandles(ctx, *symbol, tf, start, end)
	if err != nil {
		log.Fatalf("reading candles: %v", err)
	}
	if len(candles) == 0 {
		log.Fatalf("no candles for %s/%s in [%s, %s]; run strategylab-fetch first",
			*symbol, tf, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	registry := strategy.DefaultRegistry()
	factory, ok := registry.Get(*strategyName)
	if !ok {
		log.Fatalf("unknown strategy %q; available: %s", *strategyName, strings.Join(registry.List(), ", "))
	}

	settings := cfg.Backtest.Settings()
	sizer := risk.NewFixedFractionalSizer(cfg.Risk.Settings(), settings.InitialCapital)
	engine := backtest.NewEngine(settings, sizer)

	result, err := engine.Run(factory(), candles, *symbol)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	printReport(result)

	if *monteCarlo {
		sim := backtest.NewMonteCarloSimulator(cfg.MonteCarlo.Settings())
		mc := sim.Run(result)
		printMonteCarlo(mc)
	}

	if *save {
		resultStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening result store: %v", err)
		}
		defer resultStore.Close()

		runID, err := resultStore.SaveBacktest(ctx, result)
		if err != nil {
			log.Fatalf("saving run: %v", err)
		}
		fmt.Printf("\nsaved as run %d\n", runID)
	}
}

func printReport(r *domain.BacktestResult) {
	m := r.Metrics
	fmt.Printf("Backtest: %s on %s  (%s to %s)\n",
		r.StrategyName, r.Symbol,
		r.StartDate.Format("2006-01-02"), r.EndDate.Format("2006-01-02"))
	fmt.Printf("  Capital:          %.2f -> %.2f\n", r.InitialCapital, r.FinalCapital)
	fmt.Printf("  Total return:     %.2f%%  (annualized %.2f%%)\n", m.TotalReturn, m.AnnualizedReturn)
	fmt.Printf("  Max drawdown:     %.2f (%.2f%%)\n", m.MaxDrawdown, m.MaxDrawdownPercent)
	fmt.Printf("  Sharpe / Sortino: %.2f / %.2f\n", m.SharpeRatio, m.SortinoRatio)
	fmt.Printf("  Profit factor:    %.2f\n", m.ProfitFactor)
	fmt.Printf("  Trades:           %d  (win rate %.1f%%)\n", m.TotalTrades, m.WinRate)
	fmt.Printf("  Avg win / loss:   %.2f / %.2f\n", m.AverageWin, m.AverageLoss)
	fmt.Printf("  Commission paid:  %.2f\n", m.TotalCommission)
}

func printMonteCarlo(mc backtest.MonteCarloResult) {
	fmt.Printf("\nMonte Carlo (%d permutations):\n", mc.Iterations)
	fmt.Printf("  Return:       median %.2f%%  [p5 %.2f%%, p95 %.2f%%]\n",
		mc.MedianReturn, mc.P5Return, mc.P95Return)
	fmt.Printf("  Max drawdown: median %.2f%%  p95 %.2f%%\n",
		mc.MedianMaxDrawdown, mc.P95MaxDrawdown)
	fmt.Printf("  Ruin probability: %.2f%%\n", mc.RuinProbability*100)
}
