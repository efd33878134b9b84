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
	"strategylab/internal/risk"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
	"strategylab/internal/util"
)

func main() {
	symbol := flag.String("symbol", "", "symbol to analyze (required)")
	strategyName := flag.String("strategy", "trend", "strategy family: trend, macross, meanrev, ensemble")
	timeframe := flag.String("timeframe", "", "bar size, defaults to fetch.timeframe from config")
	startStr := flag.String("start", "", "start date YYYY-MM-DD, defaults to 3 years before end")
	endStr := flag.String("end", "", "end date YYYY-MM-DD, defaults to today")
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
		log.Fatalf("no candles for %s/%s; run strategylab-fetch first", *symbol, tf)
	}

	registry := strategy.DefaultRegistry()
	factory, ok := registry.Get(*strategyName)
	if !ok {
		log.Fatalf("unknown strategy %q; available: %s", *strategyName, strings.Join(registry.List(), ", "))
	}

	settings := cfg.Backtest.Settings()
	sizer := risk.NewFixedFractionalSizer(cfg.Risk.Settings(), settings.InitialCapital)
	engine := backtest.NewEngine(settings, sizer)
	analyzer := backtest.NewWalkForwardAnalyzer(cfg.WalkForward.Settings(), engine, factory)

	result, err := analyzer.Run(candles, *symbol)
	if err != nil {
		log.Fatalf("walk-forward analysis failed: %v", err)
	}

	fmt.Printf("Walk-forward: %s on %s  (%d windows)\n", *strategyName, *symbol, len(result.Windows))
	for i, w := range result.Windows {
		fmt.Printf("  window %2d: in %s..%s ret %7.2f%%  |  out %s..%s ret %7.2f%% sharpe %5.2f\n",
			i+1,
			w.InSampleStart.Format("2006-01-02"), w.InSampleEnd.Format("2006-01-02"),
			w.InSample.TotalReturn,
			w.OutSampleStart.Format("2006-01-02"), w.OutSampleEnd.Format("2006-01-02"),
			w.OutSample.TotalReturn, w.OutSample.SharpeRatio)
	}
	fmt.Printf("  Efficiency:  %.1f%%\n", result.Efficiency)
	fmt.Printf("  Consistency: %.1f%%\n", result.Consistency)
	fmt.Printf("  Avg OOS Sharpe: %.2f\n", result.AvgOutSampleSharpe)
	if result.Robust {
		fmt.Println("  Verdict: ROBUST")
	} else {
		fmt.Println("  Verdict: NOT ROBUST")
	}
}
