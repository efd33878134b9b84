// Package optimize implements the generic evolutionary search used to tune
// strategy parameters, the fitness policies that score backtest results, and
// the per-family genome operators.
package optimize

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"strategylab/internal/domain"
)

// WorstFitness is assigned to a genome whose fitness evaluation failed
// (error or panic). It is distinct from the policy penalty sentinels so
// optimizer behavior stays diagnosable.
const WorstFitness = -1e12

// ErrNoValidSolution is returned when not a single genome was successfully
// evaluated across the entire run.
var ErrNoValidSolution = errors.New("no valid solution found")

// Operators supplies the domain-specific genome operations. Implementations
// exist per strategy family; the optimizer only orchestrates.
type Operators[S any] interface {
	// Random creates a genome with every field drawn from its range.
	Random(rng *rand.Rand) S

	// Mutate returns a copy with one parameter perturbed.
	Mutate(s S, rng *rand.Rand) S

	// Crossover returns a child inheriting each field from one of the two
	// parents.
	Crossover(a, b S, rng *rand.Rand) S

	// Validate reports whether the genome satisfies its cross-field
	// invariants. Invalid genomes are penalized by the fitness function,
	// never hard-filtered, so selection pressure breeds them out.
	Validate(s S) bool
}

// FitnessFunc scores a genome. It is called concurrently from multiple
// goroutines and must be side-effect-free with respect to external state.
type FitnessFunc[S any] func(S) (float64, error)

// Chromosome pairs a settings genome with its fitness. Once evaluated a
// chromosome is never mutated in place, which keeps the parallel evaluation
// phase race-free.
type Chromosome[S any] struct {
	Settings  S
	Fitness   float64
	Evaluated bool
}

// GenerationStats is the per-generation history snapshot.
type GenerationStats[S any] struct {
	Generation     int
	BestFitness    float64
	AverageFitness float64
	WorstFitness   float64
	BestSettings   S
}

// Result is the outcome of one Optimize call.
type Result[S any] struct {
	BestSettings S
	BestFitness  float64
	Generations  []GenerationStats[S]
}

// Genetic is a strategy-agnostic evolutionary optimizer over an opaque
// genome type. Fitness evaluation is parallel; selection, crossover,
// mutation and elitism run on a single sequential, seeded random stream so
// the same seed reproduces the same trajectory.
type Genetic[S any] struct {
	settings domain.GeneticSettings
	ops      Operators[S]
	fitness  FitnessFunc[S]
	observer Observer[S]
	workers  int
	log      *slog.Logger
}

// NewGenetic creates an optimizer. Worker count defaults to GOMAXPROCS.
func NewGenetic[S any](settings domain.GeneticSettings, ops Operators[S], fitness FitnessFunc[S]) *Genetic[S] {
	return &Genetic[S]{
		settings: settings,
		ops:      ops,
		fitness:  fitness,
		workers:  runtime.GOMAXPROCS(0),
		log:      slog.Default().With("component", "genetic"),
	}
}

// SetObserver registers a progress observer. Pass nil to disable.
func (g *Genetic[S]) SetObserver(o Observer[S]) { g.observer = o }

// SetWorkers overrides the parallel evaluation worker count.
func (g *Genetic[S]) SetWorkers(n int) {
	if n > 0 {
		g.workers = n
	}
}

// Optimize runs the evolutionary search and returns the best genome ever
// seen together with the full generation history.
func (g *Genetic[S]) Optimize() (*Result[S], error) {
	if g.settings.PopulationSize < 2 {
		return nil, fmt.Errorf("population size must be at least 2, got %d", g.settings.PopulationSize)
	}
	if g.settings.Generations < 1 {
		return nil, fmt.Errorf("generations must be at least 1, got %d", g.settings.Generations)
	}

	rng := rand.New(rand.NewSource(g.settings.RandomSeed))

	population := make([]Chromosome[S], g.settings.PopulationSize)
	for i := range population {
		population[i] = Chromosome[S]{Settings: g.ops.Random(rng)}
	}

	var (
		result    Result[S]
		best      Chromosome[S]
		bestFound bool
		bestHist  []float64
		evaluated int64
	)

	for gen := 0; gen < g.settings.Generations; gen++ {
		evaluated += g.evaluatePopulation(population)

		stats := generationStats(population, gen)
		result.Generations = append(result.Generations, stats)

		// Ties keep the first genome found.
		if !bestFound || stats.BestFitness > best.Fitness {
			for i := range population {
				if population[i].Fitness == stats.BestFitness {
					best = population[i]
					bestFound = true
					break
				}
			}
		}

		if g.observer != nil {
			g.observer.OnProgress(Progress[S]{
				Generation:       gen + 1,
				TotalGenerations: g.settings.Generations,
				BestFitness:      best.Fitness,
				AverageFitness:   stats.AverageFitness,
				BestSettings:     best.Settings,
			})
		}

		// Plateau detection at generation boundaries.
		bestHist = append(bestHist, best.Fitness)
		if p := g.settings.EarlyStoppingPatience; p > 0 && len(bestHist) > p {
			improvement := bestHist[len(bestHist)-1] - bestHist[len(bestHist)-1-p]
			if improvement < g.settings.EarlyStoppingThreshold {
				g.log.Info("early stopping on plateau",
					"generation", gen+1, "patience", p, "improvement", improvement)
				break
			}
		}

		if gen < g.settings.Generations-1 {
			population = g.evolve(population, rng)
		}
	}

	if evaluated == 0 || !bestFound {
		return nil, ErrNoValidSolution
	}

	result.BestSettings = best.Settings
	result.BestFitness = best.Fitness
	return &result, nil
}

// evaluatePopulation computes fitness for every not-yet-evaluated genome in
// parallel. Each worker owns exactly one chromosome slot at a time; a panic
// or error inside an evaluation is contained and penalized with
// WorstFitness rather than aborting the generation. It returns the number
// of successful evaluations.
func (g *Genetic[S]) evaluatePopulation(population []Chromosome[S]) int64 {
	var wg sync.WaitGroup
	var succeeded atomic.Int64
	sem := make(chan struct{}, g.workers)

	for i := range population {
		if population[i].Evaluated {
			continue
		}
		wg.Add(1)
		go func(c *Chromosome[S]) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			defer func() {
				if r := recover(); r != nil {
					g.log.Warn("fitness evaluation panicked", "panic", r)
					c.Fitness = WorstFitness
					c.Evaluated = true
				}
			}()

			fitness, err := g.fitness(c.Settings)
			if err != nil {
				g.log.Warn("fitness evaluation failed", "error", err)
				c.Fitness = WorstFitness
				c.Evaluated = true
				return
			}
			c.Fitness = fitness
			c.Evaluated = true
			succeeded.Add(1)
		}(&population[i])
	}

	wg.Wait()
	return succeeded.Load()
}

// evolve builds the next generation: the top elites are carried over
// unchanged, the remainder comes from tournament selection, crossover and
// mutation. Strictly sequential and deterministic for a given rng state.
func (g *Genetic[S]) evolve(population []Chromosome[S], rng *rand.Rand) []Chromosome[S] {
	order := make([]int, len(population))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return population[order[a]].Fitness > population[order[b]].Fitness
	})

	next := make([]Chromosome[S], 0, len(population))

	elites := g.settings.EliteCount
	if elites > len(population) {
		elites = len(population)
	}
	for i := 0; i < elites; i++ {
		next = append(next, population[order[i]])
	}

	for len(next) < len(population) {
		p1 := g.tournament(population, rng)
		p2 := g.tournament(population, rng)

		var child S
		if rng.Float64() < g.settings.CrossoverRate {
			child = g.ops.Crossover(p1.Settings, p2.Settings, rng)
		} else if rng.Intn(2) == 0 {
			child = p1.Settings
		} else {
			child = p2.Settings
		}

		if rng.Float64() < g.settings.MutationRate {
			child = g.ops.Mutate(child, rng)
		}
		next = append(next, Chromosome[S]{Settings: child})
	}
	return next
}

// tournament draws tournamentSize genomes uniformly with replacement and
// returns the fittest.
func (g *Genetic[S]) tournament(population []Chromosome[S], rng *rand.Rand) Chromosome[S] {
	size := g.settings.TournamentSize
	if size < 1 {
		size = 1
	}
	best := population[rng.Intn(len(population))]
	for i := 1; i < size; i++ {
		candidate := population[rng.Intn(len(population))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best
}

func generationStats[S any](population []Chromosome[S], gen int) GenerationStats[S] {
	stats := GenerationStats[S]{Generation: gen}
	sum := 0.0
	bestIdx := 0
	for i := range population {
		f := population[i].Fitness
		sum += f
		if f > population[bestIdx].Fitness {
			bestIdx = i
		}
		if i == 0 || f < stats.WorstFitness {
			stats.WorstFitness = f
		}
	}
	stats.BestFitness = population[bestIdx].Fitness
	stats.AverageFitness = sum / float64(len(population))
	stats.BestSettings = population[bestIdx].Settings
	return stats
}
