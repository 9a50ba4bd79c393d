// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogConsole  bool   `yaml:"log_console"`
}

// Session describes the trading session: capital, the underlyings traded and how they are marked.
type Session struct {
	Capital        float64            `yaml:"capital"`
	Underlyings    []string           `yaml:"underlyings"`
	LotSizes       map[string]int64   `yaml:"lot_sizes"`
	InitialSpots   map[string]float64 `yaml:"initial_spots"`
	Rate           float64            `yaml:"rate"`
	MarkVolatility float64            `yaml:"mark_volatility"`
}

// Feed configures the synthetic underlying feed.
type Feed struct {
	Provider    string  `yaml:"provider"`
	IntervalMs  int     `yaml:"interval_ms"`
	SimStepSecs int     `yaml:"sim_step_secs"`
	Seed        int64   `yaml:"seed"`
	Drift       float64 `yaml:"drift"`
	Volatility  float64 `yaml:"volatility"`
}

// Risk holds the session risk limits. Zero disables a limit.
type Risk struct {
	MaxVaR               float64 `yaml:"max_var"`
	MaxDrawdown          float64 `yaml:"max_drawdown"`
	MaxPositionSize      int64   `yaml:"max_position_size"`
	MaxAggregateExposure float64 `yaml:"max_aggregate_exposure"`
	MaxTradeRiskPercent  float64 `yaml:"max_trade_risk_percent"`
	VaRConfidence        float64 `yaml:"var_confidence"`
	VaRHorizonDays       float64 `yaml:"var_horizon_days"`
}

// VaRModel sets the return distribution assumed by value at risk.
type VaRModel struct {
	Method            string               `yaml:"method"`
	DefaultVolatility float64              `yaml:"default_volatility"`
	Volatility        map[string]float64   `yaml:"volatility"`
	Correlation       *float64             `yaml:"correlation"` // nil means fully correlated
	VolOfVol          float64              `yaml:"vol_of_vol"`
	TradingDays       float64              `yaml:"trading_days"`
	History           map[string][]float64 `yaml:"history"` // daily log returns, oldest first
}

// Solver tunes the implied volatility solver.
type Solver struct {
	Tolerance     float64 `yaml:"tolerance"`
	MaxIterations int     `yaml:"max_iterations"`
	MinVol        float64 `yaml:"min_vol"`
	MaxVol        float64 `yaml:"max_vol"`
	MinVega       float64 `yaml:"min_vega"`
}

// StrategyParams groups tunable knobs for a strategy implementation.
type StrategyParams struct {
	Lots              int64   `yaml:"lots"`
	StrikeStep        float64 `yaml:"strike_step"`
	ExpiryDays        int     `yaml:"expiry_days"`
	Volatility        float64 `yaml:"volatility"`
	CondorShortOffset float64 `yaml:"condor_short_offset"`
	CondorLongOffset  float64 `yaml:"condor_long_offset"`
	RSIPeriod         int     `yaml:"rsi_period"`
	RSIOverbought     float64 `yaml:"rsi_overbought"`
	RSIOversold       float64 `yaml:"rsi_oversold"`
}

// Strategy specifies which strategy is active along with the parameter bundle.
type Strategy struct {
	Mode   string         `yaml:"mode"`
	Params StrategyParams `yaml:"params"`
}

// Paper captures paper execution settings.
type Paper struct {
	SlippageBps float64 `yaml:"slippage_bps"`
	MaxTicks    int     `yaml:"max_ticks"` // 0 runs until interrupted
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Session  Session  `yaml:"session"`
	Feed     Feed     `yaml:"feed"`
	Risk     Risk     `yaml:"risk"`
	VaRModel VaRModel `yaml:"var_model"`
	Solver   Solver   `yaml:"solver"`
	Strategy Strategy `yaml:"strategy"`
	Paper    Paper    `yaml:"paper"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.normalize()
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// normalize upper-cases symbol keys so they match contract underlyings.
func (c *Config) normalize() {
	for i, u := range c.Session.Underlyings {
		c.Session.Underlyings[i] = strings.ToUpper(strings.TrimSpace(u))
	}
	c.Session.LotSizes = upperKeys(c.Session.LotSizes)
	c.Session.InitialSpots = upperKeys(c.Session.InitialSpots)
	c.VaRModel.Volatility = upperKeys(c.VaRModel.Volatility)
	c.VaRModel.History = upperKeys(c.VaRModel.History)
}

func upperKeys[V any](m map[string]V) map[string]V {
	if m == nil {
		return nil
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}

// Validate checks the settings a session cannot start without.
func (c *Config) Validate() error {
	if c.Session.Capital <= 0 {
		return fmt.Errorf("session.capital must be positive")
	}
	if len(c.Session.Underlyings) == 0 {
		return fmt.Errorf("session.underlyings is empty")
	}
	for _, u := range c.Session.Underlyings {
		if c.LotSize(u) <= 0 {
			return fmt.Errorf("session.lot_sizes: missing lot size for %s", u)
		}
	}
	if err := c.Limits().Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if err := c.ReturnModel().Validate(); err != nil {
		return fmt.Errorf("var_model: %w", err)
	}
	return nil
}

// LotSize returns the contract multiplier configured for an underlying.
func (c *Config) LotSize(underlying string) int64 {
	return c.Session.LotSizes[strings.ToUpper(underlying)]
}

// FeedInterval is the wall-clock delay between ticks.
func (c *Config) FeedInterval() time.Duration {
	return time.Duration(c.Feed.IntervalMs) * time.Millisecond
}

// SimStep is the simulated time between ticks; zero means wall-clock time.
func (c *Config) SimStep() time.Duration {
	return time.Duration(c.Feed.SimStepSecs) * time.Second
}
