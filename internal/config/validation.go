package config

import (
	"fmt"
	"strings"
)

var knownStrategies = map[string]bool{"dca": true, "swing": true, "day": true}

// validate runs once at load time; a config that passes here can never make
// the ledger open a position against an out-of-range limit.
func validate(c *Config) error {
	if err := c.Budget.validate(); err != nil {
		return err
	}
	if err := validateStrategies(c.Strategies); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Monitor.validate(); err != nil {
		return err
	}
	return c.Exchange.validate()
}

func (b *BudgetConfig) validate() error {
	if b.Initial <= 0 {
		return fmt.Errorf("budget.initial must be > 0")
	}
	if b.MaxTotalAllocation <= 0 || b.MaxTotalAllocation > 1 {
		return fmt.Errorf("budget.max_total_allocation must be in (0, 1], got %v", b.MaxTotalAllocation)
	}
	return nil
}

func validateStrategies(strategies map[string]StrategyConfig) error {
	if len(strategies) == 0 {
		return fmt.Errorf("strategies cannot be empty")
	}
	for name, sc := range strategies {
		if !knownStrategies[name] {
			return fmt.Errorf("unknown strategy %q (want dca, swing or day)", name)
		}
		if sc.ATRMultiplier <= 0 {
			return fmt.Errorf("strategies.%s.atr_multiplier must be > 0", name)
		}
		if sc.AllocationLimit <= 0 || sc.AllocationLimit > 1 {
			return fmt.Errorf("strategies.%s.allocation_limit must be in (0, 1]", name)
		}
		if sc.MinHoldTime < 0 {
			return fmt.Errorf("strategies.%s.min_hold_time must be >= 0", name)
		}
		if sc.TimeBetweenBuys < 0 {
			return fmt.Errorf("strategies.%s.time_between_buys must be >= 0", name)
		}
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.EmergencyStopPct >= 0 || r.EmergencyStopPct <= -1 {
		return fmt.Errorf("risk.emergency_stop_pct must be in (-1, 0), got %v", r.EmergencyStopPct)
	}
	if r.MaxTradesPerHour <= 0 {
		return fmt.Errorf("risk.max_trades_per_hour must be > 0")
	}
	if r.PriceSanityPct <= 0 || r.PriceSanityPct > 1 {
		return fmt.Errorf("risk.price_sanity_pct must be in (0, 1]")
	}
	if r.MaxPositionPct <= 0 || r.MaxPositionPct > 1 {
		return fmt.Errorf("risk.max_position_pct must be in (0, 1]")
	}
	if r.MaxExposurePct <= 0 || r.MaxExposurePct > 1 {
		return fmt.Errorf("risk.max_exposure_pct must be in (0, 1]")
	}
	return nil
}

func (m *MonitorConfig) validate() error {
	if m.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be > 0")
	}
	if m.LargeMovePct <= 0 {
		return fmt.Errorf("monitor.large_move_pct must be > 0")
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Driver)) {
	case "sim":
		if e.SimPrice <= 0 {
			return fmt.Errorf("exchange.sim_price must be > 0 for driver=sim")
		}
	case "binance":
		if strings.TrimSpace(e.APIKey) == "" || strings.TrimSpace(e.APISecret) == "" {
			return fmt.Errorf("exchange.api_key and exchange.api_secret are required for driver=binance")
		}
	default:
		return fmt.Errorf("exchange.driver must be sim or binance, got %q", e.Driver)
	}
	if strings.TrimSpace(e.Symbol) == "" {
		return fmt.Errorf("exchange.symbol cannot be empty")
	}
	if e.TimeoutSeconds <= 0 {
		return fmt.Errorf("exchange.timeout_seconds must be > 0")
	}
	return nil
}
