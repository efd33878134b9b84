package backtest

import (
	"fmt"
	"time"

	"strategylab/internal/domain"
	"strategylab/internal/strategy"
)

// FilterMode determines how an auxiliary-timeframe filter's verdict combines
// with the others.
type FilterMode int

const (
	// FilterConfirm filters must all approve; the first rejection blocks
	// the signal.
	FilterConfirm FilterMode = iota
	// FilterVeto filters block the signal when any of them rejects.
	FilterVeto
	// FilterScore filters never block; they contribute a confidence
	// multiplier instead.
	FilterScore
)

// FilterResult is a single filter's verdict on a signal.
type FilterResult struct {
	Approved   bool
	Confidence float64
	Reason     string
}

// SignalFilter evaluates signals against state accumulated from an auxiliary
// timeframe. A filter whose indicator is not yet warmed up must report
// Ready() == false; the evaluator then passes it through without blocking.
type SignalFilter interface {
	Name() string
	Mode() FilterMode

	// Update advances the filter with the next auxiliary-timeframe candle.
	Update(c domain.Candle)

	// Ready reports whether the filter has computed at least one value.
	Ready() bool

	// Evaluate returns the filter's verdict for the signal.
	Evaluate(sig *domain.TradeSignal) FilterResult

	// Reset clears the filter state for a fresh run.
	Reset()
}

// FilterDecision is the combined verdict over all filters.
type FilterDecision struct {
	Approved   bool
	Confidence float64
	Reason     string
}

// SignalFilterEvaluator combines confirm, veto and score filters. Confirm
// filters are checked first and short-circuit on rejection, veto filters
// second; score filters multiply into a confidence factor and never block.
type SignalFilterEvaluator struct {
	filters []SignalFilter
}

// NewSignalFilterEvaluator creates an evaluator over the given filters.
func NewSignalFilterEvaluator(filters ...SignalFilter) *SignalFilterEvaluator {
	return &SignalFilterEvaluator{filters: filters}
}

// Evaluate runs every filter against the signal. Filters that are not ready
// pass through with multiplier 1.0 so warm-up periods cannot cause spurious
// rejections. The combined confidence is attached to the returned reason; it
// is not applied to any quantity here.
func (e *SignalFilterEvaluator) Evaluate(sig *domain.TradeSignal) FilterDecision {
	confidence := 1.0

	for _, f := range e.filters {
		if f.Mode() != FilterConfirm || !f.Ready() {
			continue
		}
		if r := f.Evaluate(sig); !r.Approved {
			return FilterDecision{Approved: false, Confidence: 0, Reason: fmt.Sprintf("%s: %s", f.Name(), r.Reason)}
		}
	}

	for _, f := range e.filters {
		if f.Mode() != FilterVeto || !f.Ready() {
			continue
		}
		if r := f.Evaluate(sig); !r.Approved {
			return FilterDecision{Approved: false, Confidence: 0, Reason: fmt.Sprintf("%s veto: %s", f.Name(), r.Reason)}
		}
	}

	for _, f := range e.filters {
		if f.Mode() != FilterScore || !f.Ready() {
			continue
		}
		confidence *= f.Evaluate(sig).Confidence
	}

	return FilterDecision{
		Approved:   true,
		Confidence: confidence,
		Reason:     fmt.Sprintf("confidence %.2f", confidence),
	}
}

// Reset clears every filter.
func (e *SignalFilterEvaluator) Reset() {
	for _, f := range e.filters {
		f.Reset()
	}
}

// FilterFeed pairs a filter with its auxiliary candle series and a cursor.
// The engine advances each feed up to, but never past, the primary bar's
// close time before evaluating a signal.
type FilterFeed struct {
	Filter  SignalFilter
	Candles []domain.Candle
	next    int
}

// Advance feeds the filter every auxiliary candle that closed at or before
// the given time.
func (ff *FilterFeed) Advance(until time.Time) {
	for ff.next < len(ff.Candles) && !ff.Candles[ff.next].CloseTime.After(until) {
		ff.Filter.Update(ff.Candles[ff.next])
		ff.next++
	}
}

// Reset rewinds the feed and clears the filter.
func (ff *FilterFeed) Reset() {
	ff.next = 0
	ff.Filter.Reset()
}

// ---------------------------------------------------------------------------
// Filter implementations
// ---------------------------------------------------------------------------

// TrendConfirmFilter approves entries aligned with the auxiliary timeframe's
// EMA trend: buys above the EMA, sells below it.
type TrendConfirmFilter struct {
	ema       *strategy.EMA
	lastClose float64
}

// NewTrendConfirmFilter creates a confirm-mode trend filter over the given
// EMA period.
func NewTrendConfirmFilter(period int) *TrendConfirmFilter {
	return &TrendConfirmFilter{ema: strategy.NewEMA(period)}
}

// Name returns "trend-confirm".
func (f *TrendConfirmFilter) Name() string { return "trend-confirm" }

// Mode returns FilterConfirm.
func (f *TrendConfirmFilter) Mode() FilterMode { return FilterConfirm }

// Update advances the EMA with the auxiliary candle close.
func (f *TrendConfirmFilter) Update(c domain.Candle) {
	f.ema.Update(c.Close)
	f.lastClose = c.Close
}

// Ready reports whether the EMA is warmed up.
func (f *TrendConfirmFilter) Ready() bool { return f.ema.Ready() }

// Evaluate approves signals aligned with the higher-timeframe trend.
func (f *TrendConfirmFilter) Evaluate(sig *domain.TradeSignal) FilterResult {
	up := f.lastClose > f.ema.Value()
	switch sig.Type {
	case domain.SignalBuy:
		if !up {
			return FilterResult{Reason: "higher timeframe trend is down"}
		}
	case domain.SignalSell:
		if up {
			return FilterResult{Reason: "higher timeframe trend is up"}
		}
	}
	return FilterResult{Approved: true, Confidence: 1}
}

// Reset clears the filter state.
func (f *TrendConfirmFilter) Reset() {
	f.ema.Reset()
	f.lastClose = 0
}

// RSIVetoFilter blocks entries into auxiliary-timeframe exhaustion: buys when
// the higher-timeframe RSI is already overbought, sells when oversold.
type RSIVetoFilter struct {
	rsi        *strategy.RSI
	overbought float64
	oversold   float64
}

// NewRSIVetoFilter creates a veto-mode RSI filter.
func NewRSIVetoFilter(period int, oversold, overbought float64) *RSIVetoFilter {
	return &RSIVetoFilter{rsi: strategy.NewRSI(period), oversold: oversold, overbought: overbought}
}

// Name returns "rsi-veto".
func (f *RSIVetoFilter) Name() string { return "rsi-veto" }

// Mode returns FilterVeto.
func (f *RSIVetoFilter) Mode() FilterMode { return FilterVeto }

// Update advances the RSI with the auxiliary candle close.
func (f *RSIVetoFilter) Update(c domain.Candle) { f.rsi.Update(c.Close) }

// Ready reports whether the RSI is warmed up.
func (f *RSIVetoFilter) Ready() bool { return f.rsi.Ready() }

// Evaluate vetoes entries into an exhausted higher-timeframe move.
func (f *RSIVetoFilter) Evaluate(sig *domain.TradeSignal) FilterResult {
	v := f.rsi.Value()
	switch sig.Type {
	case domain.SignalBuy:
		if v >= f.overbought {
			return FilterResult{Reason: fmt.Sprintf("higher timeframe RSI overbought (%.1f)", v)}
		}
	case domain.SignalSell:
		if v <= f.oversold {
			return FilterResult{Reason: fmt.Sprintf("higher timeframe RSI oversold (%.1f)", v)}
		}
	}
	return FilterResult{Approved: true, Confidence: 1}
}

// Reset clears the filter state.
func (f *RSIVetoFilter) Reset() { f.rsi.Reset() }

// VolatilityScoreFilter scales confidence down as the auxiliary timeframe's
// ATR (relative to price) rises above a reference level. It never blocks.
type VolatilityScoreFilter struct {
	atr       *strategy.ATRIndicator
	reference float64 // ATR as a fraction of price considered "normal"
	lastClose float64
}

// NewVolatilityScoreFilter creates a score-mode volatility filter. The
// reference is the ATR/price ratio at which confidence starts to shrink,
// e.g. 0.02 for 2%.
func NewVolatilityScoreFilter(period int, reference float64) *VolatilityScoreFilter {
	return &VolatilityScoreFilter{atr: strategy.NewATR(period), reference: reference}
}

// Name returns "volatility-score".
func (f *VolatilityScoreFilter) Name() string { return "volatility-score" }

// Mode returns FilterScore.
func (f *VolatilityScoreFilter) Mode() FilterMode { return FilterScore }

// Update advances the ATR with the auxiliary candle.
func (f *VolatilityScoreFilter) Update(c domain.Candle) {
	f.atr.Update(c)
	f.lastClose = c.Close
}

// Ready reports whether the ATR is warmed up.
func (f *VolatilityScoreFilter) Ready() bool { return f.atr.Ready() && f.lastClose > 0 }

// Evaluate returns a confidence in (0, 1] shrinking with excess volatility.
func (f *VolatilityScoreFilter) Evaluate(_ *domain.TradeSignal) FilterResult {
	ratio := f.atr.Value() / f.lastClose
	confidence := 1.0
	if ratio > f.reference && f.reference > 0 {
		confidence = f.reference / ratio
	}
	return FilterResult{Approved: true, Confidence: confidence}
}

// Reset clears the filter state.
func (f *VolatilityScoreFilter) Reset() {
	f.atr.Reset()
	f.lastClose = 0
}
