package position

import "time"

// StrategyStats is the open-position footprint of one strategy.
type StrategyStats struct {
	Count         int     `json:"count"`
	Allocated     float64 `json:"allocated"`
	AllocationPct float64 `json:"allocation_pct"`
}

// BudgetStats is a pure function of the position list; it has no storage of
// its own and is recomputed on demand.
type BudgetStats struct {
	InitialBudget    float64                  `json:"initial_budget"`
	AllocatedCapital float64                  `json:"allocated_capital"`
	AvailableCapital float64                  `json:"available_capital"`
	AllocationPct    float64                  `json:"allocation_pct"`
	PortfolioValue   float64                  `json:"portfolio_value"`
	UnrealizedPnL    float64                  `json:"unrealized_pnl"`
	RealizedPnL      float64                  `json:"realized_pnl"`
	TotalPnL         float64                  `json:"total_pnl"`
	ByStrategy       map[string]StrategyStats `json:"by_strategy"`
}

// PortfolioState is the snapshot handed to the guardrail pipeline.
type PortfolioState struct {
	BaseBalance   float64    `json:"base_balance"`
	QuoteBalance  float64    `json:"quote_balance"`
	OpenPositions []Position `json:"open_positions"`
	LastUpdated   time.Time  `json:"last_updated"`
}

func computeBudgetStats(initial float64, strategies []string, positions []*Position) BudgetStats {
	stats := BudgetStats{
		InitialBudget: initial,
		ByStrategy:    make(map[string]StrategyStats, len(strategies)),
	}
	for _, name := range strategies {
		stats.ByStrategy[name] = StrategyStats{}
	}

	for _, p := range positions {
		if p.Open() {
			stats.AllocatedCapital += p.AmountQuote
			stats.UnrealizedPnL += p.UnrealizedPnL
			ss := stats.ByStrategy[p.Strategy]
			ss.Count++
			ss.Allocated += p.AmountQuote
			stats.ByStrategy[p.Strategy] = ss
			continue
		}
		stats.RealizedPnL += p.RealizedPnL
	}

	// Allocation headroom is measured against the fixed initial budget.
	// Realized results are reported but never shrink or grow it.
	stats.AvailableCapital = initial - stats.AllocatedCapital
	if initial > 0 {
		stats.AllocationPct = stats.AllocatedCapital / initial
		for name, ss := range stats.ByStrategy {
			ss.AllocationPct = ss.Allocated / initial
			stats.ByStrategy[name] = ss
		}
	}
	// Cash plus committed capital plus paper P&L of the open book.
	stats.PortfolioValue = stats.AvailableCapital + stats.AllocatedCapital + stats.UnrealizedPnL
	stats.TotalPnL = stats.UnrealizedPnL + stats.RealizedPnL
	return stats
}
