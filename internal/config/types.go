package config

import "time"

// Config is the root configuration for the ballast engine.
type Config struct {
	App        AppConfig                 `yaml:"app"`
	Budget     BudgetConfig              `yaml:"budget"`
	Strategies map[string]StrategyConfig `yaml:"strategies"`
	Risk       RiskConfig                `yaml:"risk"`
	Monitor    MonitorConfig             `yaml:"monitor"`
	Exchange   ExchangeConfig            `yaml:"exchange"`
}

type AppConfig struct {
	LogLevel     string `yaml:"log_level"`
	LogPath      string `yaml:"log_path"`
	HTTPAddr     string `yaml:"http_addr"`
	StatePath    string `yaml:"state_path"`
	TradeLogPath string `yaml:"trade_log_path"`
}

// BudgetConfig fixes the capital envelope. InitialBudget is the quote-currency
// amount the engine may ever commit; MaxTotalAllocation keeps a cash buffer
// (0.95 means 5% of the budget is never allocated).
type BudgetConfig struct {
	Initial            float64 `yaml:"initial"`
	MaxTotalAllocation float64 `yaml:"max_total_allocation"`
}

// StrategyConfig carries per-strategy risk parameters.
type StrategyConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ATRMultiplier   float64       `yaml:"atr_multiplier"`
	AllocationLimit float64       `yaml:"allocation_limit"`
	MinHoldTime     time.Duration `yaml:"min_hold_time"`
	TimeBetweenBuys time.Duration `yaml:"time_between_buys"`
}

// RiskConfig drives the pre-execution guardrails and the emergency latch.
type RiskConfig struct {
	EmergencyStopPct    float64 `yaml:"emergency_stop_pct"`
	MaxTradesPerHour    int     `yaml:"max_trades_per_hour"`
	PriceSanityPct      float64 `yaml:"price_sanity_pct"`
	MaxPositionPct      float64 `yaml:"max_position_pct"`
	MaxExposurePct      float64 `yaml:"max_exposure_pct"`
	CloseAllOnEmergency bool    `yaml:"close_all_on_emergency"`
}

type MonitorConfig struct {
	Interval       time.Duration `yaml:"interval"`
	RunImmediately bool          `yaml:"run_immediately"`
	LargeMovePct   float64       `yaml:"large_move_pct"`
}

// ExchangeConfig selects the execution client. Driver "sim" fills orders at
// a simulated reference price seeded by SimPrice; "binance" routes market
// orders through the spot API.
type ExchangeConfig struct {
	Driver         string  `yaml:"driver"`
	Symbol         string  `yaml:"symbol"`
	APIKey         string  `yaml:"api_key"`
	APISecret      string  `yaml:"api_secret"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	SimPrice       float64 `yaml:"sim_price"`
}

// Strategy returns the configuration for a strategy tag.
func (c *Config) Strategy(name string) (StrategyConfig, bool) {
	sc, ok := c.Strategies[name]
	return sc, ok
}

// StrategyNames returns the configured strategy tags in stable order.
func (c *Config) StrategyNames() []string {
	names := make([]string, 0, len(c.Strategies))
	for _, name := range []string{"dca", "swing", "day"} {
		if _, ok := c.Strategies[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
