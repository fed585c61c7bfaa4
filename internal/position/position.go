package position

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a position. Transitions are one-way:
// open -> closed (manual or guardrail driven) or open -> stopped (stop-loss
// driven). Terminal positions are kept forever for audit.
type Status string

const (
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusStopped Status = "stopped"
)

// Close reasons recorded in position metadata. CloseReasonStopLoss selects
// the stopped terminal state; every other reason closes.
const (
	CloseReasonManual    = "manual"
	CloseReasonStopLoss  = "stop_loss"
	CloseReasonEmergency = "emergency_close"
	CloseReasonSignal    = "signal"
)

// Position is a single allocation of capital to one strategy.
type Position struct {
	ID               string         `json:"position_id"`
	Strategy         string         `json:"strategy"`
	AmountBase       float64        `json:"amount_base"`
	AmountQuote      float64        `json:"amount_quote"`
	EntryPrice       float64        `json:"entry_price"`
	EntryTime        time.Time      `json:"entry_time"`
	StopLoss         float64        `json:"stop_loss,omitempty"`
	CurrentPrice     float64        `json:"current_price,omitempty"`
	ExitPrice        float64        `json:"exit_price,omitempty"`
	ExitTime         *time.Time     `json:"exit_time,omitempty"`
	Status           Status         `json:"status"`
	UnrealizedPnL    float64        `json:"unrealized_pnl"`
	UnrealizedPnLPct float64        `json:"unrealized_pnl_pct"`
	RealizedPnL      float64        `json:"realized_pnl,omitempty"`
	RealizedPnLPct   float64        `json:"realized_pnl_pct,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Open reports whether the position still holds capital.
func (p *Position) Open() bool {
	return p.Status == StatusOpen
}

// Terminal reports whether the position reached a final state.
func (p *Position) Terminal() bool {
	return p.Status == StatusClosed || p.Status == StatusStopped
}

// UpdateCurrentPrice refreshes the mark price and unrealized P&L. Calling it
// twice with the same price yields identical figures.
func (p *Position) UpdateCurrentPrice(price float64) {
	if price <= 0 || !p.Open() {
		return
	}
	p.CurrentPrice = price
	p.UnrealizedPnL, p.UnrealizedPnLPct = pnl(p.EntryPrice, price, p.AmountBase)
}

// StopTriggered reports whether price is at or below the stop. Detection
// only; execution is a separate, retryable step.
func (p *Position) StopTriggered(price float64) bool {
	if !p.Open() || p.StopLoss <= 0 || price <= 0 {
		return false
	}
	return decimal.NewFromFloat(price).Cmp(decimal.NewFromFloat(p.StopLoss)) <= 0
}

// settle computes realized figures for an exit at price.
func (p *Position) settle(price float64, at time.Time) {
	p.ExitPrice = price
	p.CurrentPrice = price
	p.ExitTime = &at
	p.RealizedPnL, p.RealizedPnLPct = pnl(p.EntryPrice, price, p.AmountBase)
}

// pnl returns ((price - entry) * base, (price - entry) / entry) computed in
// decimal so repeated marks cannot drift.
func pnl(entry, price, base float64) (abs float64, pct float64) {
	if entry <= 0 {
		return 0, 0
	}
	entryDec := decimal.NewFromFloat(entry)
	diff := decimal.NewFromFloat(price).Sub(entryDec)
	abs, _ = diff.Mul(decimal.NewFromFloat(base)).Float64()
	pct, _ = diff.Div(entryDec).Float64()
	return abs, pct
}

func (p *Position) clone() *Position {
	cp := *p
	if p.ExitTime != nil {
		t := *p.ExitTime
		cp.ExitTime = &t
	}
	if p.Metadata != nil {
		cp.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
