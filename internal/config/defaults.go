package config

import "time"

// Strategy defaults mirror the shipped risk profile: DCA takes wide stops and
// the biggest slice of the budget, day trading is disabled out of the box.
func defaultStrategies() map[string]StrategyConfig {
	return map[string]StrategyConfig{
		"dca": {
			Enabled:         true,
			ATRMultiplier:   2.0,
			AllocationLimit: 0.5,
			MinHoldTime:     24 * time.Hour,
			TimeBetweenBuys: time.Hour,
		},
		"swing": {
			Enabled:         true,
			ATRMultiplier:   1.5,
			AllocationLimit: 0.3,
			MinHoldTime:     time.Hour,
		},
		"day": {
			Enabled:         false,
			ATRMultiplier:   1.0,
			AllocationLimit: 0.2,
			MinHoldTime:     15 * time.Minute,
		},
	}
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":9985"
	}
	if c.App.StatePath == "" {
		c.App.StatePath = "data/positions.json"
	}
	if c.App.TradeLogPath == "" {
		c.App.TradeLogPath = "data/tradelog.db"
	}

	if c.Budget.Initial == 0 {
		c.Budget.Initial = 10000
	}
	if c.Budget.MaxTotalAllocation == 0 {
		c.Budget.MaxTotalAllocation = 0.95
	}

	if len(c.Strategies) == 0 {
		c.Strategies = defaultStrategies()
	} else {
		defaults := defaultStrategies()
		for name, sc := range c.Strategies {
			def, ok := defaults[name]
			if !ok {
				continue
			}
			if sc.ATRMultiplier == 0 {
				sc.ATRMultiplier = def.ATRMultiplier
			}
			if sc.AllocationLimit == 0 {
				sc.AllocationLimit = def.AllocationLimit
			}
			if sc.MinHoldTime == 0 {
				sc.MinHoldTime = def.MinHoldTime
			}
			if sc.TimeBetweenBuys == 0 {
				sc.TimeBetweenBuys = def.TimeBetweenBuys
			}
			c.Strategies[name] = sc
		}
	}

	if c.Risk.EmergencyStopPct == 0 {
		c.Risk.EmergencyStopPct = -0.25
	}
	if c.Risk.MaxTradesPerHour == 0 {
		c.Risk.MaxTradesPerHour = 5
	}
	if c.Risk.PriceSanityPct == 0 {
		c.Risk.PriceSanityPct = 0.05
	}
	if c.Risk.MaxPositionPct == 0 {
		c.Risk.MaxPositionPct = 0.20
	}
	if c.Risk.MaxExposurePct == 0 {
		c.Risk.MaxExposurePct = 0.80
	}

	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = 30 * time.Minute
	}
	if c.Monitor.LargeMovePct == 0 {
		c.Monitor.LargeMovePct = 0.02
	}

	if c.Exchange.Driver == "" {
		c.Exchange.Driver = "sim"
	}
	if c.Exchange.Symbol == "" {
		c.Exchange.Symbol = "BTCUSDT"
	}
	if c.Exchange.TimeoutSeconds == 0 {
		c.Exchange.TimeoutSeconds = 10
	}
	if c.Exchange.Driver == "sim" && c.Exchange.SimPrice == 0 {
		c.Exchange.SimPrice = 62000
	}
}
