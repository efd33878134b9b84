package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"strategylab/internal/config"
	"strategylab/internal/domain"
	"strategylab/internal/optimize"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
	"strategylab/internal/util"
)

func main() {
	symbol := flag.String("symbol", "", "symbol to optimize on (required)")
	strategyName := flag.String("strategy", "trend", "strategy family: trend, macross, meanrev, ensemble, ensemble-weights")
	timeframe := flag.String("timeframe", "", "bar size, defaults to fetch.timeframe from config")
	startStr := flag.String("start", "", "start date YYYY-MM-DD, defaults to 3 years before end")
	endStr := flag.String("end", "", "end date YYYY-MM-DD, defaults to today")
	workers := flag.Int("workers", 0, "parallel fitness workers, 0 means GOMAXPROCS")
	save := flag.Bool("save", false, "persist the run to the result store")
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

	run := run{
		ctx:      ctx,
		cfg:      cfg,
		candles:  candles,
		symbol:   *symbol,
		strategy: *strategyName,
		workers:  *workers,
		save:     *save,
	}

	switch *strategyName {
	case "trend":
		err = optimizeFamily(run,
			optimize.TrendOperators{Ranges: cfg.Optimize.Trend},
			func(s strategy.TrendSettings) strategy.Strategy { return strategy.NewTrendFollowing(s) })
	case "macross":
		err = optimizeFamily(run,
			optimize.MACrossOperators{Ranges: cfg.Optimize.Cross},
			func(s strategy.MACrossSettings) strategy.Strategy { return strategy.NewMACross(s) })
	case "meanrev":
		err = optimizeFamily(run,
			optimize.MeanRevOperators{Ranges: cfg.Optimize.MeanRev},
			func(s strategy.MeanRevSettings) strategy.Strategy { return strategy.NewMeanReversion(s) })
	case "ensemble":
		err = optimizeFamily(run,
			optimize.EnsembleFullOperators{Ranges: optimize.EnsembleRanges{
				Trend:   cfg.Optimize.Trend,
				Cross:   cfg.Optimize.Cross,
				MeanRev: cfg.Optimize.MeanRev,
				Weights: cfg.Optimize.Weights,
			}},
			func(s strategy.EnsembleSettings) strategy.Strategy { return strategy.NewEnsemble(s) })
	case "ensemble-weights":
		err = optimizeFamily(run,
			optimize.EnsembleWeightOperators{
				Base:   strategy.DefaultEnsembleSettings(),
				Ranges: cfg.Optimize.Weights,
			},
			func(s strategy.EnsembleSettings) strategy.Strategy { return strategy.NewEnsemble(s) })
	default:
		log.Fatalf("unknown strategy %q", *strategyName)
	}
	if err != nil {
		log.Fatalf("optimization failed: %v", err)
	}
}

type run struct {
	ctx      context.Context
	cfg      *config.Config
	candles  []domain.Candle
	symbol   string
	strategy string
	workers  int
	save     bool
}

// optimizeFamily runs the tuner for one strategy family and reports (and
// optionally persists) the outcome.
func optimizeFamily[S any](r run, ops optimize.Operators[S], build func(S) strategy.Strategy) error {
	tuner, err := optimize.NewTuner(
		r.cfg.Backtest.Settings(),
		r.cfg.Risk.Settings(),
		r.cfg.Genetic.Settings(),
		r.cfg.Optimize.Policy,
		ops,
		build,
	)
	if err != nil {
		return err
	}
	tuner.SetObserver(optimize.LogObserver[S]{})
	if r.workers > 0 {
		tuner.SetWorkers(r.workers)
	}

	started := time.Now().UTC()
	result, err := tuner.Optimize(r.candles, r.symbol)
	if err != nil {
		return err
	}
	finished := time.Now().UTC()

	settingsJSON, err := json.MarshalIndent(result.BestSettings, "", "  ")
	if err != nil {
		return err
	}

	fmt.Printf("Best fitness: %.4f  (%d generations, %s)\n",
		result.BestFitness, len(result.Generations), finished.Sub(started).Round(time.Second))
	fmt.Printf("Best settings:\n%s\n", settingsJSON)

	if !r.save {
		return nil
	}

	resultStore, err := store.NewSQLiteStore(r.cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer resultStore.Close()

	generations := make([]store.GenerationRecord, len(result.Generations))
	for i, g := range result.Generations {
		generations[i] = store.GenerationRecord{
			Generation:     g.Generation,
			BestFitness:    g.BestFitness,
			AverageFitness: g.AverageFitness,
			WorstFitness:   g.WorstFitness,
		}
	}

	runID, err := resultStore.SaveOptimization(r.ctx, &store.OptimizationRun{
		StrategyName: r.strategy,
		Symbol:       r.symbol,
		Objective:    string(r.cfg.Optimize.Policy.Objective),
		BestFitness:  result.BestFitness,
		BestSettings: string(settingsJSON),
		StartedAt:    started,
		FinishedAt:   finished,
		Generations:  generations,
	})
	if err != nil {
		return err
	}
	fmt.Printf("\nsaved as optimization run %d\n", runID)
	return nil
}
