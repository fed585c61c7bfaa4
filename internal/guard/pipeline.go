package guard

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"ballast/internal/config"
	"ballast/internal/decision"
	"ballast/internal/logger"
	"ballast/internal/position"
)

// Check names, stable across config reloads so the audit trail stays
// queryable.
const (
	CheckBalance      = "balance"
	CheckPositionSize = "position_size"
	CheckExposure     = "exposure"
	CheckEmergency    = "emergency"
	CheckFrequency    = "frequency"
	CheckPriceSanity  = "price_sanity"

	// CheckBudget is appended by the executor when the allocation policy
	// rejects a buy the pipeline approved.
	CheckBudget = "budget"
)

// Result is one check's outcome inside a verdict.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// Verdict is the full pipeline outcome for one proposed trade. Every check
// runs even after a failure so the caller sees all reasons at once.
type Verdict struct {
	TraceID  string   `json:"trace_id"`
	Approved bool     `json:"approved"`
	Results  []Result `json:"results"`
}

// Failures lists the reasons of every failed check.
func (v Verdict) Failures() []string {
	var out []string
	for _, r := range v.Results {
		if !r.Passed {
			out = append(out, r.Reason)
		}
	}
	return out
}

// Pipeline runs every risk check against a proposed trade. A veto is a
// decision, not an error; the pipeline itself never fails.
type Pipeline struct {
	mu   sync.RWMutex
	risk config.RiskConfig
	freq *FrequencyWindow
}

func NewPipeline(risk config.RiskConfig, freq *FrequencyWindow) *Pipeline {
	return &Pipeline{risk: risk, freq: freq}
}

// ApplyConfig swaps in reloaded risk limits. The frequency window keeps its
// recorded history.
func (p *Pipeline) ApplyConfig(risk config.RiskConfig) {
	p.mu.Lock()
	p.risk = risk
	p.mu.Unlock()
}

func (p *Pipeline) limits() config.RiskConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.risk
}

// Evaluate runs all checks. Hold trades are approved trivially; they change
// nothing and must never be blocked from reaching the caller.
func (p *Pipeline) Evaluate(trade decision.ProposedTrade, portfolio position.PortfolioState, emergency position.EmergencyState, marketPrice float64) Verdict {
	v := Verdict{TraceID: uuid.NewString(), Approved: true}
	if trade.Action == decision.ActionHold {
		return v
	}

	risk := p.limits()
	v.add(checkBalance(trade, portfolio))
	v.add(checkPositionSize(risk, trade, portfolio))
	v.add(checkExposure(risk, trade, portfolio, marketPrice))
	v.add(checkEmergency(emergency))
	v.add(p.checkFrequency())
	v.add(checkPriceSanity(risk, trade, marketPrice))

	if !v.Approved {
		logger.Warnf("trade vetoed [%s]: %s %.6f %s @ %.2f: %v",
			v.TraceID, trade.Action, trade.Quantity, trade.Strategy, trade.EntryPrice, v.Failures())
	}
	return v
}

// Reject appends a failed result and flips the verdict. The executor uses it
// to fold allocation-policy rejections into the recorded outcome.
func (v *Verdict) Reject(name, reason string) {
	v.add(fail(name, reason))
}

func (v *Verdict) add(r Result) {
	v.Results = append(v.Results, r)
	if !r.Passed {
		v.Approved = false
	}
}

func pass(name string) Result {
	return Result{Name: name, Passed: true}
}

func fail(name, reason string) Result {
	return Result{Name: name, Passed: false, Reason: reason}
}

// checkBalance confirms the portfolio can actually fund the trade: quote
// cash for buys, base inventory for sells.
func checkBalance(trade decision.ProposedTrade, portfolio position.PortfolioState) Result {
	switch trade.Action {
	case decision.ActionBuy:
		need := trade.QuoteValue()
		if need > portfolio.QuoteBalance {
			return fail(CheckBalance, fmt.Sprintf("insufficient quote balance: %.2f available, %.2f required",
				portfolio.QuoteBalance, need))
		}
	case decision.ActionSell:
		if trade.Quantity > portfolio.BaseBalance {
			return fail(CheckBalance, fmt.Sprintf("insufficient base balance: %.6f held, %.6f required",
				portfolio.BaseBalance, trade.Quantity))
		}
	}
	return pass(CheckBalance)
}

// checkPositionSize caps a single buy at a fraction of total portfolio
// value.
func checkPositionSize(risk config.RiskConfig, trade decision.ProposedTrade, portfolio position.PortfolioState) Result {
	if trade.Action != decision.ActionBuy {
		return pass(CheckPositionSize)
	}
	total := portfolioValue(portfolio)
	if total <= 0 {
		return fail(CheckPositionSize, "portfolio value is zero")
	}
	pct := trade.QuoteValue() / total
	if pct > risk.MaxPositionPct {
		return fail(CheckPositionSize, fmt.Sprintf("position size %.1f%% exceeds limit %.1f%%",
			pct*100, risk.MaxPositionPct*100))
	}
	return pass(CheckPositionSize)
}

// checkExposure caps the base-asset share of the portfolio after the trade,
// everything valued at the live market price. An appreciated book counts at
// what it is worth now, not at what it cost.
func checkExposure(risk config.RiskConfig, trade decision.ProposedTrade, portfolio position.PortfolioState, marketPrice float64) Result {
	if trade.Action != decision.ActionBuy {
		return pass(CheckExposure)
	}
	if marketPrice <= 0 {
		return fail(CheckExposure, "no market price available")
	}
	baseAfter := portfolio.BaseBalance + trade.Quantity
	total := portfolio.QuoteBalance + portfolio.BaseBalance*marketPrice
	if total <= 0 {
		return fail(CheckExposure, "portfolio value is zero")
	}
	projected := baseAfter * marketPrice / total
	if projected > risk.MaxExposurePct {
		return fail(CheckExposure, fmt.Sprintf("post-trade exposure %.1f%% exceeds limit %.1f%%",
			projected*100, risk.MaxExposurePct*100))
	}
	return pass(CheckExposure)
}

func checkEmergency(emergency position.EmergencyState) Result {
	if emergency.Active {
		return fail(CheckEmergency, fmt.Sprintf("emergency latch active since %v (pnl %.2f%%)",
			emergency.TrippedAt, emergency.PnLPct*100))
	}
	return pass(CheckEmergency)
}

func (p *Pipeline) checkFrequency() Result {
	if p.freq == nil {
		return pass(CheckFrequency)
	}
	if ok, reason := p.freq.Allow(); !ok {
		return fail(CheckFrequency, reason)
	}
	return pass(CheckFrequency)
}

// checkPriceSanity rejects trades whose entry price has drifted too far
// from the live market, a stale or hallucinated quote.
func checkPriceSanity(risk config.RiskConfig, trade decision.ProposedTrade, marketPrice float64) Result {
	if marketPrice <= 0 {
		return fail(CheckPriceSanity, "no market price available")
	}
	drift := math.Abs(trade.EntryPrice-marketPrice) / marketPrice
	if drift > risk.PriceSanityPct {
		return fail(CheckPriceSanity, fmt.Sprintf("entry price %.2f deviates %.1f%% from market %.2f (max %.1f%%)",
			trade.EntryPrice, drift*100, marketPrice, risk.PriceSanityPct*100))
	}
	return pass(CheckPriceSanity)
}

// portfolioValue is cash plus the marked value of the open book.
func portfolioValue(portfolio position.PortfolioState) float64 {
	total := portfolio.QuoteBalance
	for _, pos := range portfolio.OpenPositions {
		total += pos.AmountQuote + pos.UnrealizedPnL
	}
	return total
}
