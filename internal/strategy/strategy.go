// Package strategy defines the Strategy contract consumed by the backtest
// engine and provides the built-in strategy families tuned by the optimizer.
package strategy

import (
	"sort"

	"strategylab/internal/domain"
)

// Strategy is the interface all trading strategies implement. The engine
// treats a strategy as an opaque function from (candle, current position) to
// an optional signal.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Analyze processes the next candle and returns a signal, or nil when
	// the strategy has nothing to say. The position is read-only from the
	// strategy's point of view.
	Analyze(c domain.Candle, pos *domain.PositionState) (*domain.TradeSignal, error)

	// Reset clears all indicator state so the instance can be replayed
	// over a fresh candle series.
	Reset()

	// ATR returns the strategy's current average true range, or 0 when it
	// is not ready. Used for ATR-based position sizing.
	ATR() float64

	// StopLevel returns the strategy's current trailing stop, or 0 when
	// none is tracked.
	StopLevel() float64
}

// Factory creates a fresh strategy instance. Walk-forward analysis uses it
// to get independent instances per window.
type Factory func() Strategy

// Registry holds a named collection of strategy factories for lookup and
// enumeration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Get retrieves a factory by name. The second return value indicates whether
// the name was found.
func (r *Registry) Get(name string) (Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with the built-in strategy families
// registered under their canonical names, each constructed with default
// settings.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("trend", func() Strategy { return NewTrendFollowing(DefaultTrendSettings()) })
	r.Register("macross", func() Strategy { return NewMACross(DefaultMACrossSettings()) })
	r.Register("meanrev", func() Strategy { return NewMeanReversion(DefaultMeanRevSettings()) })
	r.Register("ensemble", func() Strategy { return NewEnsemble(DefaultEnsembleSettings()) })
	return r
}
