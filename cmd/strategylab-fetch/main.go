package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"strategylab/internal/config"
	"strategylab/internal/gather"
	"strategylab/internal/store"
	"strategylab/internal/util"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols, defaults to fetch.symbols from config")
	timeframe := flag.String("timeframe", "", "bar size, defaults to fetch.timeframe from config")
	startStr := flag.String("start", "", "start date YYYY-MM-DD, defaults to fetch.start_date from config")
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

	symbols := cfg.Fetch.Symbols
	if *symbolsFlag != "" {
		symbols = strings.Split(*symbolsFlag, ",")
		for i := range symbols {
			symbols[i] = strings.ToUpper(strings.TrimSpace(symbols[i]))
		}
	}
	if len(symbols) == 0 {
		log.Fatal("no symbols: pass -symbols or set fetch.symbols in config")
	}

	tf := *timeframe
	if tf == "" {
		tf = cfg.Fetch.Timeframe
	}

	startDate := cfg.Fetch.StartDate
	if *startStr != "" {
		startDate = *startStr
	}
	if startDate == "" {
		log.Fatal("no start date: pass -start or set fetch.start_date in config")
	}
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		log.Fatalf("invalid start date %q: %v", startDate, err)
	}

	end := time.Now().UTC()
	if *endStr != "" {
		endDate := *endStr
		end, err = time.Parse("2006-01-02", endDate)
		if err != nil {
			log.Fatalf("invalid -end date: %v", err)
		}
	} else if cfg.Fetch.EndDate != "" {
		end, err = time.Parse("2006-01-02", cfg.Fetch.EndDate)
		if err != nil {
			log.Fatalf("invalid fetch.end_date %q: %v", cfg.Fetch.EndDate, err)
		}
	}

	candleStore := store.NewParquetStore(cfg.Storage.DataDir)

	gatherer := gather.NewAlpacaGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		candleStore,
		symbols,
		tf,
		gather.DateRange{Start: start, End: end},
		cfg.Fetch.RateLimitPerMin,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("fetch failed: %v", err)
	}
}
