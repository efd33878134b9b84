package optimize

import (
	"errors"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"

	"strategylab/internal/domain"
)

// scalarGenome is a one-parameter genome for exercising the optimizer
// machinery without a backtest in the loop.
type scalarGenome struct {
	X float64
}

type scalarOperators struct{}

var _ Operators[scalarGenome] = scalarOperators{}

func (scalarOperators) Random(rng *rand.Rand) scalarGenome {
	return scalarGenome{X: rng.Float64()*20 - 10}
}

func (scalarOperators) Mutate(s scalarGenome, rng *rand.Rand) scalarGenome {
	s.X += rng.NormFloat64()
	return s
}

func (scalarOperators) Crossover(a, b scalarGenome, rng *rand.Rand) scalarGenome {
	if rng.Intn(2) == 0 {
		return a
	}
	return b
}

func (scalarOperators) Validate(scalarGenome) bool { return true }

// quadratic peaks at x = 3 with fitness 0.
func quadratic(s scalarGenome) (float64, error) {
	d := s.X - 3
	return -d * d, nil
}

func testGeneticSettings() domain.GeneticSettings {
	return domain.GeneticSettings{
		PopulationSize: 30,
		Generations:    25,
		EliteCount:     2,
		TournamentSize: 3,
		CrossoverRate:  0.8,
		MutationRate:   0.4,
		RandomSeed:     1,
	}
}

func TestOptimizeConvergesOnQuadratic(t *testing.T) {
	g := NewGenetic[scalarGenome](testGeneticSettings(), scalarOperators{}, quadratic)
	result, err := g.Optimize()
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if math.Abs(result.BestSettings.X-3) > 1.0 {
		t.Errorf("best x = %v, want near the peak at 3", result.BestSettings.X)
	}
	if result.BestFitness > 0 {
		t.Errorf("best fitness = %v, objective maximum is 0", result.BestFitness)
	}
	if len(result.Generations) == 0 {
		t.Error("no generation history recorded")
	}
}

func TestOptimizeDeterministicSeed(t *testing.T) {
	settings := testGeneticSettings()
	settings.RandomSeed = 99

	run := func() *Result[scalarGenome] {
		g := NewGenetic[scalarGenome](settings, scalarOperators{}, quadratic)
		g.SetWorkers(4)
		result, err := g.Optimize()
		if err != nil {
			t.Fatalf("Optimize: %v", err)
		}
		return result
	}

	a, b := run(), run()
	if a.BestSettings.X != b.BestSettings.X || a.BestFitness != b.BestFitness {
		t.Errorf("same seed diverged: (%v, %v) vs (%v, %v)",
			a.BestSettings.X, a.BestFitness, b.BestSettings.X, b.BestFitness)
	}
	if len(a.Generations) != len(b.Generations) {
		t.Fatalf("generation counts differ: %d vs %d", len(a.Generations), len(b.Generations))
	}
	for i := range a.Generations {
		if a.Generations[i].BestFitness != b.Generations[i].BestFitness {
			t.Errorf("generation %d best differs: %v vs %v",
				i, a.Generations[i].BestFitness, b.Generations[i].BestFitness)
		}
	}
}

func TestOptimizeElitismKeepsBestNonDecreasing(t *testing.T) {
	g := NewGenetic[scalarGenome](testGeneticSettings(), scalarOperators{}, quadratic)
	result, err := g.Optimize()
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	for i := 1; i < len(result.Generations); i++ {
		prev, cur := result.Generations[i-1].BestFitness, result.Generations[i].BestFitness
		if cur < prev {
			t.Errorf("generation %d best %v fell below generation %d best %v",
				i, cur, i-1, prev)
		}
	}
}

func TestOptimizeEliteCountEqualsPopulation(t *testing.T) {
	// With the elite count covering the whole population the breeding loop
	// has no slots left, so every generation carries the same genomes and
	// the same top genome forward.
	settings := testGeneticSettings()
	settings.PopulationSize = 10
	settings.Generations = 5
	settings.EliteCount = 10

	var calls atomic.Int64
	counted := func(s scalarGenome) (float64, error) {
		calls.Add(1)
		return quadratic(s)
	}

	g := NewGenetic[scalarGenome](settings, scalarOperators{}, counted)
	result, err := g.Optimize()
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	if len(result.Generations) != 5 {
		t.Fatalf("got %d generations, want 5", len(result.Generations))
	}
	first := result.Generations[0]
	for i, gen := range result.Generations[1:] {
		if gen.BestFitness != first.BestFitness || gen.BestSettings.X != first.BestSettings.X {
			t.Errorf("generation %d best (%v at x=%v) differs from generation 1 (%v at x=%v)",
				i+2, gen.BestFitness, gen.BestSettings.X, first.BestFitness, first.BestSettings.X)
		}
		if gen.AverageFitness != first.AverageFitness {
			t.Errorf("generation %d average %v differs from generation 1 average %v",
				i+2, gen.AverageFitness, first.AverageFitness)
		}
	}
	if got := calls.Load(); got != 10 {
		t.Errorf("fitness evaluated %d times, want 10 (carried elites are not re-evaluated)", got)
	}
}

func TestOptimizeAllEvaluationsFail(t *testing.T) {
	failing := func(scalarGenome) (float64, error) {
		return 0, errors.New("backtest exploded")
	}
	settings := testGeneticSettings()
	settings.Generations = 3
	g := NewGenetic[scalarGenome](settings, scalarOperators{}, failing)
	if _, err := g.Optimize(); !errors.Is(err, ErrNoValidSolution) {
		t.Errorf("Optimize error = %v, want ErrNoValidSolution", err)
	}
}

func TestOptimizePanicIsContained(t *testing.T) {
	// Genomes left of zero panic; the optimizer must survive and still
	// converge on the survivors.
	spiky := func(s scalarGenome) (float64, error) {
		if s.X < 0 {
			panic("negative genome")
		}
		d := s.X - 3
		return -d * d, nil
	}
	g := NewGenetic[scalarGenome](testGeneticSettings(), scalarOperators{}, spiky)
	result, err := g.Optimize()
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if result.BestSettings.X < 0 {
		t.Errorf("best genome %v is from the panicking region", result.BestSettings.X)
	}
	if result.BestFitness <= WorstFitness {
		t.Errorf("best fitness = %v, never rose above the failure sentinel", result.BestFitness)
	}
}

func TestOptimizeEarlyStopping(t *testing.T) {
	constant := func(scalarGenome) (float64, error) { return 1, nil }
	settings := testGeneticSettings()
	settings.Generations = 100
	settings.EarlyStoppingPatience = 5
	settings.EarlyStoppingThreshold = 1e-6

	g := NewGenetic[scalarGenome](settings, scalarOperators{}, constant)
	result, err := g.Optimize()
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if got := len(result.Generations); got >= 100 {
		t.Errorf("ran %d generations on a flat landscape, early stopping never fired", got)
	}
}

func TestOptimizeInvalidSettings(t *testing.T) {
	settings := testGeneticSettings()
	settings.PopulationSize = 1
	g := NewGenetic[scalarGenome](settings, scalarOperators{}, quadratic)
	if _, err := g.Optimize(); err == nil {
		t.Error("Optimize accepted a population of 1")
	}

	settings = testGeneticSettings()
	settings.Generations = 0
	g = NewGenetic[scalarGenome](settings, scalarOperators{}, quadratic)
	if _, err := g.Optimize(); err == nil {
		t.Error("Optimize accepted zero generations")
	}
}

func TestObserverSeesEveryGeneration(t *testing.T) {
	settings := testGeneticSettings()
	settings.Generations = 5
	g := NewGenetic[scalarGenome](settings, scalarOperators{}, quadratic)

	var seen []int
	g.SetObserver(ObserverFunc[scalarGenome](func(p Progress[scalarGenome]) {
		seen = append(seen, p.Generation)
		if p.TotalGenerations != 5 {
			t.Errorf("total generations = %d, want 5", p.TotalGenerations)
		}
	}))

	if _, err := g.Optimize(); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(seen) != 5 {
		t.Fatalf("observer called %d times, want 5", len(seen))
	}
	for i, gen := range seen {
		if gen != i+1 {
			t.Errorf("observer call %d reported generation %d, want %d", i, gen, i+1)
		}
	}
}
