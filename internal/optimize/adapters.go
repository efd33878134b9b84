package optimize

import (
	"math/rand"

	"strategylab/internal/strategy"
)

// IntRange is an inclusive integer parameter range.
type IntRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

func (r IntRange) random(rng *rand.Rand) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Intn(r.Max-r.Min+1)
}

// perturb shifts v by up to a quarter of the range in either direction and
// clamps the result back into the range.
func (r IntRange) perturb(v int, rng *rand.Rand) int {
	span := (r.Max - r.Min) / 4
	if span < 1 {
		span = 1
	}
	v += rng.Intn(2*span+1) - span
	if v < r.Min {
		v = r.Min
	}
	if v > r.Max {
		v = r.Max
	}
	return v
}

// FloatRange is an inclusive floating-point parameter range.
type FloatRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (r FloatRange) random(rng *rand.Rand) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

func (r FloatRange) perturb(v float64, rng *rand.Rand) float64 {
	span := (r.Max - r.Min) / 4
	v += (rng.Float64()*2 - 1) * span
	if v < r.Min {
		v = r.Min
	}
	if v > r.Max {
		v = r.Max
	}
	return v
}

// pick returns a when take is true, else b. Keeps uniform crossover terse.
func pick[T any](take bool, a, b T) T {
	if take {
		return a
	}
	return b
}

// ---- trend following ----

// TrendRanges bounds the trend-following search space.
type TrendRanges struct {
	EMAPeriod       IntRange   `yaml:"ema_period"`
	ATRPeriod       IntRange   `yaml:"atr_period"`
	ATRMultiplier   FloatRange `yaml:"atr_multiplier"`
	RewardRiskRatio FloatRange `yaml:"reward_risk_ratio"`
}

// DefaultTrendRanges covers the common tuning space for the trend strategy.
func DefaultTrendRanges() TrendRanges {
	return TrendRanges{
		EMAPeriod:       IntRange{Min: 8, Max: 55},
		ATRPeriod:       IntRange{Min: 7, Max: 28},
		ATRMultiplier:   FloatRange{Min: 1, Max: 4},
		RewardRiskRatio: FloatRange{Min: 1, Max: 4},
	}
}

// TrendOperators implements Operators for strategy.TrendSettings.
type TrendOperators struct {
	Ranges TrendRanges
}

var _ Operators[strategy.TrendSettings] = TrendOperators{}

func (o TrendOperators) Random(rng *rand.Rand) strategy.TrendSettings {
	return strategy.TrendSettings{
		EMAPeriod:       o.Ranges.EMAPeriod.random(rng),
		ATRPeriod:       o.Ranges.ATRPeriod.random(rng),
		ATRMultiplier:   o.Ranges.ATRMultiplier.random(rng),
		RewardRiskRatio: o.Ranges.RewardRiskRatio.random(rng),
	}
}

func (o TrendOperators) Mutate(s strategy.TrendSettings, rng *rand.Rand) strategy.TrendSettings {
	switch rng.Intn(4) {
	case 0:
		s.EMAPeriod = o.Ranges.EMAPeriod.perturb(s.EMAPeriod, rng)
	case 1:
		s.ATRPeriod = o.Ranges.ATRPeriod.perturb(s.ATRPeriod, rng)
	case 2:
		s.ATRMultiplier = o.Ranges.ATRMultiplier.perturb(s.ATRMultiplier, rng)
	default:
		s.RewardRiskRatio = o.Ranges.RewardRiskRatio.perturb(s.RewardRiskRatio, rng)
	}
	return s
}

func (o TrendOperators) Crossover(a, b strategy.TrendSettings, rng *rand.Rand) strategy.TrendSettings {
	return strategy.TrendSettings{
		EMAPeriod:       pick(rng.Intn(2) == 0, a.EMAPeriod, b.EMAPeriod),
		ATRPeriod:       pick(rng.Intn(2) == 0, a.ATRPeriod, b.ATRPeriod),
		ATRMultiplier:   pick(rng.Intn(2) == 0, a.ATRMultiplier, b.ATRMultiplier),
		RewardRiskRatio: pick(rng.Intn(2) == 0, a.RewardRiskRatio, b.RewardRiskRatio),
	}
}

func (o TrendOperators) Validate(s strategy.TrendSettings) bool { return s.Validate() == nil }

// ---- moving average crossover ----

// MACrossRanges bounds the crossover search space.
type MACrossRanges struct {
	FastPeriod        IntRange   `yaml:"fast_period"`
	SlowPeriod        IntRange   `yaml:"slow_period"`
	StopLossPercent   FloatRange `yaml:"stop_loss_percent"`
	TakeProfitPercent FloatRange `yaml:"take_profit_percent"`
}

// DefaultMACrossRanges covers the common tuning space for the crossover
// strategy. The ranges overlap, so crossover can produce fast >= slow;
// those genomes fail Validate and are penalized away.
func DefaultMACrossRanges() MACrossRanges {
	return MACrossRanges{
		FastPeriod:        IntRange{Min: 5, Max: 30},
		SlowPeriod:        IntRange{Min: 20, Max: 100},
		StopLossPercent:   FloatRange{Min: 0.5, Max: 5},
		TakeProfitPercent: FloatRange{Min: 1, Max: 10},
	}
}

// MACrossOperators implements Operators for strategy.MACrossSettings.
type MACrossOperators struct {
	Ranges MACrossRanges
}

var _ Operators[strategy.MACrossSettings] = MACrossOperators{}

func (o MACrossOperators) Random(rng *rand.Rand) strategy.MACrossSettings {
	s := strategy.MACrossSettings{
		FastPeriod:        o.Ranges.FastPeriod.random(rng),
		SlowPeriod:        o.Ranges.SlowPeriod.random(rng),
		StopLossPercent:   o.Ranges.StopLossPercent.random(rng),
		TakeProfitPercent: o.Ranges.TakeProfitPercent.random(rng),
	}
	if s.FastPeriod >= s.SlowPeriod {
		s.SlowPeriod = s.FastPeriod + 1 + rng.Intn(10)
	}
	return s
}

func (o MACrossOperators) Mutate(s strategy.MACrossSettings, rng *rand.Rand) strategy.MACrossSettings {
	switch rng.Intn(4) {
	case 0:
		s.FastPeriod = o.Ranges.FastPeriod.perturb(s.FastPeriod, rng)
	case 1:
		s.SlowPeriod = o.Ranges.SlowPeriod.perturb(s.SlowPeriod, rng)
	case 2:
		s.StopLossPercent = o.Ranges.StopLossPercent.perturb(s.StopLossPercent, rng)
	default:
		s.TakeProfitPercent = o.Ranges.TakeProfitPercent.perturb(s.TakeProfitPercent, rng)
	}
	return s
}

func (o MACrossOperators) Crossover(a, b strategy.MACrossSettings, rng *rand.Rand) strategy.MACrossSettings {
	return strategy.MACrossSettings{
		FastPeriod:        pick(rng.Intn(2) == 0, a.FastPeriod, b.FastPeriod),
		SlowPeriod:        pick(rng.Intn(2) == 0, a.SlowPeriod, b.SlowPeriod),
		StopLossPercent:   pick(rng.Intn(2) == 0, a.StopLossPercent, b.StopLossPercent),
		TakeProfitPercent: pick(rng.Intn(2) == 0, a.TakeProfitPercent, b.TakeProfitPercent),
	}
}

func (o MACrossOperators) Validate(s strategy.MACrossSettings) bool { return s.Validate() == nil }

// ---- mean reversion ----

// MeanRevRanges bounds the mean-reversion search space.
type MeanRevRanges struct {
	RSIPeriod       IntRange   `yaml:"rsi_period"`
	Oversold        FloatRange `yaml:"oversold"`
	Overbought      FloatRange `yaml:"overbought"`
	StopLossPercent FloatRange `yaml:"stop_loss_percent"`
}

// DefaultMeanRevRanges covers the common tuning space for RSI reversion.
func DefaultMeanRevRanges() MeanRevRanges {
	return MeanRevRanges{
		RSIPeriod:       IntRange{Min: 7, Max: 28},
		Oversold:        FloatRange{Min: 15, Max: 40},
		Overbought:      FloatRange{Min: 60, Max: 85},
		StopLossPercent: FloatRange{Min: 1, Max: 6},
	}
}

// MeanRevOperators implements Operators for strategy.MeanRevSettings.
type MeanRevOperators struct {
	Ranges MeanRevRanges
}

var _ Operators[strategy.MeanRevSettings] = MeanRevOperators{}

func (o MeanRevOperators) Random(rng *rand.Rand) strategy.MeanRevSettings {
	return strategy.MeanRevSettings{
		RSIPeriod:       o.Ranges.RSIPeriod.random(rng),
		Oversold:        o.Ranges.Oversold.random(rng),
		Overbought:      o.Ranges.Overbought.random(rng),
		StopLossPercent: o.Ranges.StopLossPercent.random(rng),
	}
}

func (o MeanRevOperators) Mutate(s strategy.MeanRevSettings, rng *rand.Rand) strategy.MeanRevSettings {
	switch rng.Intn(4) {
	case 0:
		s.RSIPeriod = o.Ranges.RSIPeriod.perturb(s.RSIPeriod, rng)
	case 1:
		s.Oversold = o.Ranges.Oversold.perturb(s.Oversold, rng)
	case 2:
		s.Overbought = o.Ranges.Overbought.perturb(s.Overbought, rng)
	default:
		s.StopLossPercent = o.Ranges.StopLossPercent.perturb(s.StopLossPercent, rng)
	}
	return s
}

func (o MeanRevOperators) Crossover(a, b strategy.MeanRevSettings, rng *rand.Rand) strategy.MeanRevSettings {
	return strategy.MeanRevSettings{
		RSIPeriod:       pick(rng.Intn(2) == 0, a.RSIPeriod, b.RSIPeriod),
		Oversold:        pick(rng.Intn(2) == 0, a.Oversold, b.Oversold),
		Overbought:      pick(rng.Intn(2) == 0, a.Overbought, b.Overbought),
		StopLossPercent: pick(rng.Intn(2) == 0, a.StopLossPercent, b.StopLossPercent),
	}
}

func (o MeanRevOperators) Validate(s strategy.MeanRevSettings) bool { return s.Validate() == nil }

// ---- ensemble weights ----

// WeightRanges bounds the voting parameters of the ensemble.
type WeightRanges struct {
	Weight          FloatRange `yaml:"weight"`
	EntryThreshold  FloatRange `yaml:"entry_threshold"`
	StopLossPercent FloatRange `yaml:"stop_loss_percent"`
}

// DefaultWeightRanges covers the common ensemble weighting space.
func DefaultWeightRanges() WeightRanges {
	return WeightRanges{
		Weight:          FloatRange{Min: 0, Max: 1},
		EntryThreshold:  FloatRange{Min: 0.3, Max: 0.9},
		StopLossPercent: FloatRange{Min: 1, Max: 5},
	}
}

// EnsembleWeightOperators tunes only the voting weights, the entry
// threshold and the ensemble stop while keeping the member strategies fixed
// at Base. Used when the members were already optimized individually.
type EnsembleWeightOperators struct {
	Base   strategy.EnsembleSettings
	Ranges WeightRanges
}

var _ Operators[strategy.EnsembleSettings] = EnsembleWeightOperators{}

func (o EnsembleWeightOperators) Random(rng *rand.Rand) strategy.EnsembleSettings {
	s := o.Base
	s.TrendWeight = o.Ranges.Weight.random(rng)
	s.CrossWeight = o.Ranges.Weight.random(rng)
	s.MeanRevWeight = o.Ranges.Weight.random(rng)
	s.EntryThreshold = o.Ranges.EntryThreshold.random(rng)
	s.StopLossPercent = o.Ranges.StopLossPercent.random(rng)
	return s
}

func (o EnsembleWeightOperators) Mutate(s strategy.EnsembleSettings, rng *rand.Rand) strategy.EnsembleSettings {
	switch rng.Intn(5) {
	case 0:
		s.TrendWeight = o.Ranges.Weight.perturb(s.TrendWeight, rng)
	case 1:
		s.CrossWeight = o.Ranges.Weight.perturb(s.CrossWeight, rng)
	case 2:
		s.MeanRevWeight = o.Ranges.Weight.perturb(s.MeanRevWeight, rng)
	case 3:
		s.EntryThreshold = o.Ranges.EntryThreshold.perturb(s.EntryThreshold, rng)
	default:
		s.StopLossPercent = o.Ranges.StopLossPercent.perturb(s.StopLossPercent, rng)
	}
	return s
}

func (o EnsembleWeightOperators) Crossover(a, b strategy.EnsembleSettings, rng *rand.Rand) strategy.EnsembleSettings {
	s := o.Base
	s.TrendWeight = pick(rng.Intn(2) == 0, a.TrendWeight, b.TrendWeight)
	s.CrossWeight = pick(rng.Intn(2) == 0, a.CrossWeight, b.CrossWeight)
	s.MeanRevWeight = pick(rng.Intn(2) == 0, a.MeanRevWeight, b.MeanRevWeight)
	s.EntryThreshold = pick(rng.Intn(2) == 0, a.EntryThreshold, b.EntryThreshold)
	s.StopLossPercent = pick(rng.Intn(2) == 0, a.StopLossPercent, b.StopLossPercent)
	return s
}

func (o EnsembleWeightOperators) Validate(s strategy.EnsembleSettings) bool {
	return s.Validate() == nil
}

// ---- full ensemble ----

// EnsembleRanges bounds the combined member and weight search space.
type EnsembleRanges struct {
	Trend   TrendRanges   `yaml:"trend"`
	Cross   MACrossRanges `yaml:"cross"`
	MeanRev MeanRevRanges `yaml:"mean_reversion"`
	Weights WeightRanges  `yaml:"weights"`
}

// DefaultEnsembleRanges combines the per-family defaults.
func DefaultEnsembleRanges() EnsembleRanges {
	return EnsembleRanges{
		Trend:   DefaultTrendRanges(),
		Cross:   DefaultMACrossRanges(),
		MeanRev: DefaultMeanRevRanges(),
		Weights: DefaultWeightRanges(),
	}
}

// EnsembleFullOperators tunes member parameters and voting weights jointly.
// The search space is large, so it composes the per-family operators and
// mutates one sub-genome at a time.
type EnsembleFullOperators struct {
	Ranges EnsembleRanges
}

var _ Operators[strategy.EnsembleSettings] = EnsembleFullOperators{}

func (o EnsembleFullOperators) members() (TrendOperators, MACrossOperators, MeanRevOperators) {
	return TrendOperators{Ranges: o.Ranges.Trend},
		MACrossOperators{Ranges: o.Ranges.Cross},
		MeanRevOperators{Ranges: o.Ranges.MeanRev}
}

func (o EnsembleFullOperators) Random(rng *rand.Rand) strategy.EnsembleSettings {
	trend, cross, meanRev := o.members()
	return strategy.EnsembleSettings{
		Trend:           trend.Random(rng),
		Cross:           cross.Random(rng),
		MeanRev:         meanRev.Random(rng),
		TrendWeight:     o.Ranges.Weights.Weight.random(rng),
		CrossWeight:     o.Ranges.Weights.Weight.random(rng),
		MeanRevWeight:   o.Ranges.Weights.Weight.random(rng),
		EntryThreshold:  o.Ranges.Weights.EntryThreshold.random(rng),
		StopLossPercent: o.Ranges.Weights.StopLossPercent.random(rng),
	}
}

func (o EnsembleFullOperators) Mutate(s strategy.EnsembleSettings, rng *rand.Rand) strategy.EnsembleSettings {
	trend, cross, meanRev := o.members()
	switch rng.Intn(4) {
	case 0:
		s.Trend = trend.Mutate(s.Trend, rng)
	case 1:
		s.Cross = cross.Mutate(s.Cross, rng)
	case 2:
		s.MeanRev = meanRev.Mutate(s.MeanRev, rng)
	default:
		weights := EnsembleWeightOperators{Base: s, Ranges: o.Ranges.Weights}
		s = weights.Mutate(s, rng)
	}
	return s
}

func (o EnsembleFullOperators) Crossover(a, b strategy.EnsembleSettings, rng *rand.Rand) strategy.EnsembleSettings {
	trend, cross, meanRev := o.members()
	return strategy.EnsembleSettings{
		Trend:           trend.Crossover(a.Trend, b.Trend, rng),
		Cross:           cross.Crossover(a.Cross, b.Cross, rng),
		MeanRev:         meanRev.Crossover(a.MeanRev, b.MeanRev, rng),
		TrendWeight:     pick(rng.Intn(2) == 0, a.TrendWeight, b.TrendWeight),
		CrossWeight:     pick(rng.Intn(2) == 0, a.CrossWeight, b.CrossWeight),
		MeanRevWeight:   pick(rng.Intn(2) == 0, a.MeanRevWeight, b.MeanRevWeight),
		EntryThreshold:  pick(rng.Intn(2) == 0, a.EntryThreshold, b.EntryThreshold),
		StopLossPercent: pick(rng.Intn(2) == 0, a.StopLossPercent, b.StopLossPercent),
	}
}

func (o EnsembleFullOperators) Validate(s strategy.EnsembleSettings) bool {
	return s.Validate() == nil
}
