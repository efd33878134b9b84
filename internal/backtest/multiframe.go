package backtest

import "strategylab/internal/domain"

// MultiTimeframeEngine routes every strategy signal, exits included, through
// auxiliary-timeframe filters before execution. Each filter is advanced up to
// the primary bar's close time, so higher-timeframe state never looks into
// the future.
type MultiTimeframeEngine struct {
	*Engine
}

// NewMultiTimeframeEngine creates an engine whose signals must pass the
// given filter feeds. The combined score-filter confidence scales the sized
// quantity of approved entries; the end-of-data force close is not a signal
// and bypasses the filters.
func NewMultiTimeframeEngine(settings domain.BacktestSettings, sizer PositionSizer, feeds ...*FilterFeed) *MultiTimeframeEngine {
	e := NewEngine(settings, sizer)
	filters := make([]SignalFilter, len(feeds))
	for i, ff := range feeds {
		filters[i] = ff.Filter
	}
	e.evaluator = NewSignalFilterEvaluator(filters...)
	e.feeds = feeds
	return &MultiTimeframeEngine{Engine: e}
}
