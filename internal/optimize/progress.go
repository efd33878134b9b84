package optimize

import "log/slog"

// Progress is a snapshot emitted after each completed generation.
type Progress[S any] struct {
	Generation       int
	TotalGenerations int
	BestFitness      float64
	AverageFitness   float64
	BestSettings     S
}

// Observer receives generation progress. OnProgress is called from the
// optimizer goroutine between generations, never concurrently.
type Observer[S any] interface {
	OnProgress(p Progress[S])
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc[S any] func(p Progress[S])

// OnProgress implements Observer.
func (f ObserverFunc[S]) OnProgress(p Progress[S]) { f(p) }

// LogObserver logs each generation via slog.
type LogObserver[S any] struct {
	Log *slog.Logger
}

// OnProgress implements Observer.
func (o LogObserver[S]) OnProgress(p Progress[S]) {
	log := o.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("generation complete",
		"generation", p.Generation,
		"total", p.TotalGenerations,
		"best_fitness", p.BestFitness,
		"avg_fitness", p.AverageFitness)
}
