package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"strategylab/internal/domain"
	"strategylab/internal/store"
	"strategylab/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*AlpacaGatherer)(nil)

// AlpacaGatherer fetches candle history for a configured symbol list from
// the Alpaca market-data API and writes it to the candle store.
type AlpacaGatherer struct {
	client    *marketdata.Client
	store     store.CandleStore
	symbols   []string
	timeframe string
	dates     DateRange
	batchSize int
	limiter   *util.RateLimiter
	log       *slog.Logger
}

// NewAlpacaGatherer creates an AlpacaGatherer with the given credentials,
// target store, symbol list and fetch window. ratePerMin bounds API calls.
func NewAlpacaGatherer(apiKey, apiSecret, dataURL string, s store.CandleStore, symbols []string, timeframe string, dates DateRange, ratePerMin int) *AlpacaGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if ratePerMin <= 0 {
		ratePerMin = 200
	}

	return &AlpacaGatherer{
		client:    marketdata.NewClient(opts),
		store:     s,
		symbols:   symbols,
		timeframe: timeframe,
		dates:     dates,
		batchSize: 100,
		limiter:   util.NewRateLimiter(ratePerMin),
		log:       slog.Default().With("gatherer", "alpaca"),
	}
}

// Name returns the gatherer identifier.
func (g *AlpacaGatherer) Name() string { return "alpaca" }

// Run fetches candles for all configured symbols in batches and writes them
// to the store. Writes are idempotent, so an interrupted run can simply be
// restarted.
func (g *AlpacaGatherer) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}

	frame, err := alpacaTimeFrame(g.timeframe)
	if err != nil {
		return err
	}
	barSpan, err := util.ParseTimeframe(g.timeframe)
	if err != nil {
		return err
	}

	runStart := time.Now()
	total := 0

	for i := 0; i < len(g.symbols); i += g.batchSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		end := min(i+g.batchSize, len(g.symbols))
		batch := g.symbols[i:end]

		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		var multiBars map[string][]marketdata.Bar
		err := util.Retry(ctx, 3, time.Second, func() error {
			var fetchErr error
			multiBars, fetchErr = g.client.GetMultiBars(batch, marketdata.GetBarsRequest{
				TimeFrame: frame,
				Start:     g.dates.Start,
				End:       g.dates.End,
			})
			return fetchErr
		})
		if err != nil {
			return fmt.Errorf("fetching bars for batch %v: %w", batch, err)
		}

		candles := convertBars(multiBars, barSpan)
		if err := g.store.WriteCandles(ctx, g.timeframe, candles); err != nil {
			return fmt.Errorf("writing candles: %w", err)
		}
		total += len(candles)

		g.log.Info("batch fetched",
			"symbols", len(batch),
			"candles", len(candles),
			"elapsed", time.Since(runStart).Round(time.Second))
	}

	g.log.Info("fetch complete",
		"symbols", len(g.symbols),
		"candles", total,
		"elapsed", time.Since(runStart).Round(time.Second))
	return nil
}

// convertBars flattens the per-symbol bar map into candles. Alpaca stamps a
// bar with its open time; the close time is derived from the bar span.
func convertBars(multiBars map[string][]marketdata.Bar, barSpan time.Duration) []domain.Candle {
	var candles []domain.Candle
	for symbol, bars := range multiBars {
		for _, b := range bars {
			candles = append(candles, domain.Candle{
				Symbol:    strings.ToUpper(symbol),
				OpenTime:  b.Timestamp,
				CloseTime: b.Timestamp.Add(barSpan),
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    float64(b.Volume),
			})
		}
	}
	return candles
}

// alpacaTimeFrame maps a bar-size string such as "5m", "1h" or "1d" to the
// Alpaca API timeframe type.
func alpacaTimeFrame(tf string) (marketdata.TimeFrame, error) {
	tf = strings.ToLower(strings.TrimSpace(tf))
	if len(tf) < 2 {
		return marketdata.TimeFrame{}, fmt.Errorf("invalid timeframe %q", tf)
	}
	n := 0
	for _, r := range tf[:len(tf)-1] {
		if r < '0' || r > '9' {
			return marketdata.TimeFrame{}, fmt.Errorf("invalid timeframe %q", tf)
		}
		n = n*10 + int(r-'0')
	}
	if n < 1 {
		return marketdata.TimeFrame{}, fmt.Errorf("invalid timeframe %q", tf)
	}

	switch tf[len(tf)-1] {
	case 'm':
		return marketdata.NewTimeFrame(n, marketdata.Min), nil
	case 'h':
		return marketdata.NewTimeFrame(n, marketdata.Hour), nil
	case 'd':
		return marketdata.NewTimeFrame(n, marketdata.Day), nil
	case 'w':
		return marketdata.NewTimeFrame(n, marketdata.Week), nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("invalid timeframe unit in %q", tf)
	}
}
