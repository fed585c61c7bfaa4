package position

import "time"

// EmergencyState is the portfolio drawdown latch plus the snapshot captured
// at the moment it tripped. Once Active it stays Active across restarts until
// an explicit reset; a price recovery never clears it.
type EmergencyState struct {
	Active         bool       `json:"active"`
	PortfolioValue float64    `json:"portfolio_value,omitempty"`
	PnLPct         float64    `json:"pnl_pct,omitempty"`
	Threshold      float64    `json:"threshold,omitempty"`
	TrippedAt      *time.Time `json:"tripped_at,omitempty"`
}
