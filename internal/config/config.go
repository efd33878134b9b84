// Package config loads the YAML configuration file and applies environment
// variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"strategylab/internal/domain"
	"strategylab/internal/optimize"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the strategylab tools.
type Config struct {
	Storage     Storage           `yaml:"storage"`
	Logging     Logging           `yaml:"logging"`
	Alpaca      Alpaca            `yaml:"alpaca"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	Risk        RiskConfig        `yaml:"risk"`
	Genetic     GeneticConfig     `yaml:"genetic"`
	Optimize    OptimizeConfig    `yaml:"optimize"`
	WalkForward WalkForwardConfig `yaml:"walk_forward"`
	MonteCarlo  MonteCarloConfig  `yaml:"monte_carlo"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// FetchConfig controls candle history fetching.
type FetchConfig struct {
	Symbols         []string `yaml:"symbols"`
	Timeframe       string   `yaml:"timeframe"`
	StartDate       string   `yaml:"start_date"` // YYYY-MM-DD
	EndDate         string   `yaml:"end_date"`   // YYYY-MM-DD, empty means now
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// BacktestConfig mirrors domain.BacktestSettings in YAML form.
type BacktestConfig struct {
	InitialCapital    float64 `yaml:"initial_capital"`
	CommissionPercent float64 `yaml:"commission_percent"`
	SlippagePercent   float64 `yaml:"slippage_percent"`
	ExitPriority      string  `yaml:"exit_priority"` // "stop_first" or "target_first"
}

// Settings converts the YAML form into engine settings.
func (c BacktestConfig) Settings() domain.BacktestSettings {
	s := domain.BacktestSettings{
		InitialCapital:    c.InitialCapital,
		CommissionPercent: c.CommissionPercent,
		SlippagePercent:   c.SlippagePercent,
	}
	if c.ExitPriority == "target_first" {
		s.ExitPriority = domain.ExitPriorityTargetFirst
	}
	return s
}

// RiskConfig mirrors domain.RiskSettings in YAML form.
type RiskConfig struct {
	RiskPerTradePercent float64 `yaml:"risk_per_trade_percent"`
	MaxPositionPercent  float64 `yaml:"max_position_percent"`
	MaxOpenPositions    int     `yaml:"max_open_positions"`
}

// Settings converts the YAML form into sizing settings.
func (c RiskConfig) Settings() domain.RiskSettings {
	return domain.RiskSettings{
		RiskPerTradePercent: c.RiskPerTradePercent,
		MaxPositionPercent:  c.MaxPositionPercent,
		MaxOpenPositions:    c.MaxOpenPositions,
	}
}

// GeneticConfig mirrors domain.GeneticSettings in YAML form.
type GeneticConfig struct {
	PopulationSize         int     `yaml:"population_size"`
	Generations            int     `yaml:"generations"`
	EliteCount             int     `yaml:"elite_count"`
	TournamentSize         int     `yaml:"tournament_size"`
	CrossoverRate          float64 `yaml:"crossover_rate"`
	MutationRate           float64 `yaml:"mutation_rate"`
	EarlyStoppingPatience  int     `yaml:"early_stopping_patience"`
	EarlyStoppingThreshold float64 `yaml:"early_stopping_threshold"`
	RandomSeed             int64   `yaml:"random_seed"`
}

// Settings converts the YAML form into optimizer settings.
func (c GeneticConfig) Settings() domain.GeneticSettings {
	return domain.GeneticSettings{
		PopulationSize:         c.PopulationSize,
		Generations:            c.Generations,
		EliteCount:             c.EliteCount,
		TournamentSize:         c.TournamentSize,
		CrossoverRate:          c.CrossoverRate,
		MutationRate:           c.MutationRate,
		EarlyStoppingPatience:  c.EarlyStoppingPatience,
		EarlyStoppingThreshold: c.EarlyStoppingThreshold,
		RandomSeed:             c.RandomSeed,
	}
}

// OptimizeConfig selects the fitness policy and the per-family parameter
// ranges searched by the optimizer.
type OptimizeConfig struct {
	Policy  optimize.FitnessPolicy  `yaml:"policy"`
	Trend   optimize.TrendRanges    `yaml:"trend"`
	Cross   optimize.MACrossRanges  `yaml:"cross"`
	MeanRev optimize.MeanRevRanges  `yaml:"mean_reversion"`
	Weights optimize.WeightRanges   `yaml:"weights"`
}

// WalkForwardConfig mirrors domain.WalkForwardSettings in YAML form.
type WalkForwardConfig struct {
	InSampleFraction  float64 `yaml:"in_sample_fraction"`
	OutSampleFraction float64 `yaml:"out_sample_fraction"`
	StepFraction      float64 `yaml:"step_fraction"`
	MinEfficiency     float64 `yaml:"min_efficiency"`
	MinConsistency    float64 `yaml:"min_consistency"`
	MinOOSSharpe      float64 `yaml:"min_oos_sharpe"`
}

// Settings converts the YAML form into walk-forward settings.
func (c WalkForwardConfig) Settings() domain.WalkForwardSettings {
	return domain.WalkForwardSettings{
		InSampleFraction:  c.InSampleFraction,
		OutSampleFraction: c.OutSampleFraction,
		StepFraction:      c.StepFraction,
		MinEfficiency:     c.MinEfficiency,
		MinConsistency:    c.MinConsistency,
		MinOOSSharpe:      c.MinOOSSharpe,
	}
}

// MonteCarloConfig mirrors domain.MonteCarloSettings in YAML form.
type MonteCarloConfig struct {
	Iterations        int     `yaml:"iterations"`
	Seed              int64   `yaml:"seed"`
	RuinReturnPercent float64 `yaml:"ruin_return_percent"`
}

// Settings converts the YAML form into Monte Carlo settings.
func (c MonteCarloConfig) Settings() domain.MonteCarloSettings {
	return domain.MonteCarloSettings{
		Iterations:        c.Iterations,
		Seed:              c.Seed,
		RuinReturnPercent: c.RuinReturnPercent,
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config mirroring the domain default settings, suitable
// as the base that a YAML file partially overrides.
func Default() *Config {
	bt := domain.DefaultBacktestSettings()
	rs := domain.DefaultRiskSettings()
	gs := domain.DefaultGeneticSettings()
	wf := domain.DefaultWalkForwardSettings()
	mc := domain.DefaultMonteCarloSettings()

	return &Config{
		Storage: Storage{DataDir: "data", SQLitePath: "strategylab.db"},
		Logging: Logging{Level: "info", Format: "json"},
		Fetch: FetchConfig{
			Timeframe:       "1d",
			RateLimitPerMin: 200,
		},
		Backtest: BacktestConfig{
			InitialCapital:    bt.InitialCapital,
			CommissionPercent: bt.CommissionPercent,
			SlippagePercent:   bt.SlippagePercent,
			ExitPriority:      "stop_first",
		},
		Risk: RiskConfig{
			RiskPerTradePercent: rs.RiskPerTradePercent,
			MaxPositionPercent:  rs.MaxPositionPercent,
			MaxOpenPositions:    rs.MaxOpenPositions,
		},
		Genetic: GeneticConfig{
			PopulationSize:         gs.PopulationSize,
			Generations:            gs.Generations,
			EliteCount:             gs.EliteCount,
			TournamentSize:         gs.TournamentSize,
			CrossoverRate:          gs.CrossoverRate,
			MutationRate:           gs.MutationRate,
			EarlyStoppingPatience:  gs.EarlyStoppingPatience,
			EarlyStoppingThreshold: gs.EarlyStoppingThreshold,
			RandomSeed:             gs.RandomSeed,
		},
		Optimize: OptimizeConfig{
			Policy:  optimize.DefaultFitnessPolicy(),
			Trend:   optimize.DefaultTrendRanges(),
			Cross:   optimize.DefaultMACrossRanges(),
			MeanRev: optimize.DefaultMeanRevRanges(),
			Weights: optimize.DefaultWeightRanges(),
		},
		WalkForward: WalkForwardConfig{
			InSampleFraction:  wf.InSampleFraction,
			OutSampleFraction: wf.OutSampleFraction,
			StepFraction:      wf.StepFraction,
			MinEfficiency:     wf.MinEfficiency,
			MinConsistency:    wf.MinConsistency,
			MinOOSSharpe:      wf.MinOOSSharpe,
		},
		MonteCarlo: MonteCarloConfig{
			Iterations:        mc.Iterations,
			Seed:              mc.Seed,
			RuinReturnPercent: mc.RuinReturnPercent,
		},
	}
}

// Load reads the YAML configuration file at the given path over the
// defaults, then applies environment variable overrides. A missing file is
// an error; use LoadOrDefault when the file is optional.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to the defaults (plus
// environment overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return Load(path)
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
