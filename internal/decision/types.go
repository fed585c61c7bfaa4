package decision

import (
	"fmt"
	"strings"
	"time"
)

// Actions a proposed trade may carry. Anything the guardrails veto is
// downgraded to ActionHold.
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
	ActionHold = "hold"
)

// ProposedTrade is the value handed down by the upstream decision layer.
// The engine never mutates a caller's ProposedTrade in place; vetoes produce
// a replacement via Held.
type ProposedTrade struct {
	Action     string    `json:"action"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Strategy   string    `json:"strategy"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// QuoteValue is the quote-currency value of the trade at its entry price.
func (p ProposedTrade) QuoteValue() float64 {
	return p.Quantity * p.EntryPrice
}

// Held returns a copy of the trade downgraded to a no-op, carrying the
// guardrail failure reasons behind the original reasoning.
func (p ProposedTrade) Held(reasons []string) ProposedTrade {
	held := p
	held.Action = ActionHold
	held.Quantity = 0
	held.Reasoning = fmt.Sprintf("BLOCKED (original: %s %.6f @ %.2f). Failures: %s",
		p.Action, p.Quantity, p.EntryPrice, strings.Join(reasons, "; "))
	return held
}

// ValidateBasic rejects malformed trades before they reach any policy check.
func (p ProposedTrade) ValidateBasic() error {
	switch p.Action {
	case ActionBuy, ActionSell, ActionHold:
	default:
		return fmt.Errorf("invalid action %q", p.Action)
	}
	if p.Action == ActionHold {
		return nil
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("quantity must be > 0, got %v", p.Quantity)
	}
	if p.EntryPrice <= 0 {
		return fmt.Errorf("entry_price must be > 0, got %v", p.EntryPrice)
	}
	if strings.TrimSpace(p.Strategy) == "" {
		return fmt.Errorf("strategy is required")
	}
	return nil
}
