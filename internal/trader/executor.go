// Package trader turns approved trade proposals into ledger transitions.
package trader

import (
	"context"
	"fmt"

	"ballast/internal/decision"
	"ballast/internal/gateway/exchange"
	"ballast/internal/guard"
	"ballast/internal/logger"
	"ballast/internal/position"
	"ballast/internal/store/tradelog"
)

// Executor is the single path from a proposed trade to the ledger. Every
// proposal passes the full guardrail pipeline first; a veto downgrades it to
// a hold with the reasons attached, it never raises an error.
type Executor struct {
	ledger   *position.Ledger
	pipeline *guard.Pipeline
	freq     *guard.FrequencyWindow
	feed     exchange.PriceFeed
	audit    *tradelog.Store
}

// Request pairs the proposal with the market context it was made in. ATR
// comes from the caller's indicator pipeline; the executor does not compute
// indicators.
type Request struct {
	Trade decision.ProposedTrade
	ATR   float64
}

// Outcome reports what actually happened to a proposal.
type Outcome struct {
	Trade    decision.ProposedTrade `json:"trade"`
	Verdict  guard.Verdict          `json:"verdict"`
	Executed bool                   `json:"executed"`
	Opened   *position.Position     `json:"opened,omitempty"`
	Closed   []position.Position    `json:"closed,omitempty"`
}

func NewExecutor(ledger *position.Ledger, pipeline *guard.Pipeline, freq *guard.FrequencyWindow, feed exchange.PriceFeed, audit *tradelog.Store) *Executor {
	return &Executor{
		ledger:   ledger,
		pipeline: pipeline,
		freq:     freq,
		feed:     feed,
		audit:    audit,
	}
}

// Execute runs one proposal end to end.
func (e *Executor) Execute(ctx context.Context, req Request) (Outcome, error) {
	trade := req.Trade
	if err := trade.ValidateBasic(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", position.ErrInvalidInput, err)
	}
	out := Outcome{Trade: trade}
	if trade.Action == decision.ActionHold {
		return out, nil
	}

	marketPrice, err := e.feed.LatestPrice(ctx)
	if err != nil {
		logger.Errorf("market price unavailable, holding: %v", err)
		marketPrice = 0
	}

	portfolio := e.ledger.PortfolioState()
	verdict := e.pipeline.Evaluate(trade, portfolio, e.ledger.Emergency(), marketPrice)
	out.Verdict = verdict
	if !verdict.Approved {
		e.recordVeto(ctx, verdict, trade)
		out.Trade = trade.Held(verdict.Failures())
		return out, nil
	}

	switch trade.Action {
	case decision.ActionBuy:
		return e.executeBuy(ctx, out, trade, req.ATR)
	case decision.ActionSell:
		return e.executeSell(ctx, out, trade, marketPrice)
	}
	return out, nil
}

func (e *Executor) executeBuy(ctx context.Context, out Outcome, trade decision.ProposedTrade, atr float64) (Outcome, error) {
	quote := trade.QuoteValue()

	// Budget policy runs after the guardrails; its rejections downgrade
	// the same way.
	var ok bool
	var reason string
	if trade.Strategy == "dca" {
		ok, reason = e.ledger.CanOpenDCA(quote)
	} else {
		ok, reason = e.ledger.CanAllocate(trade.Strategy, quote)
	}
	if !ok {
		out.Verdict.Reject(guard.CheckBudget, reason)
		e.recordVeto(ctx, out.Verdict, trade)
		out.Trade = trade.Held(out.Verdict.Failures())
		return out, nil
	}

	pos, err := e.ledger.Open(ctx, position.OpenRequest{
		Strategy:    trade.Strategy,
		EntryPrice:  trade.EntryPrice,
		AmountQuote: quote,
		ATR:         atr,
		Reason:      trade.Reasoning,
	})
	if err != nil {
		return out, err
	}
	e.freq.Record()
	out.Executed = true
	out.Opened = pos
	return out, nil
}

// executeSell closes open positions of the trade's strategy, oldest first,
// until the requested base quantity is covered. Partial closes are not
// supported; the last position may overshoot the requested quantity.
func (e *Executor) executeSell(ctx context.Context, out Outcome, trade decision.ProposedTrade, marketPrice float64) (Outcome, error) {
	price := marketPrice
	if price <= 0 {
		price = trade.EntryPrice
	}

	remaining := trade.Quantity
	for _, pos := range e.ledger.List(position.StatusOpen) {
		if remaining <= 0 {
			break
		}
		if pos.Strategy != trade.Strategy {
			continue
		}
		closed, err := e.ledger.Close(ctx, pos.ID, price, position.CloseReasonSignal)
		if err != nil {
			logger.Errorf("signal close of %s failed: %v", pos.ID, err)
			continue
		}
		remaining -= closed.AmountBase
		out.Closed = append(out.Closed, *closed)
		if e.audit != nil {
			if err := e.audit.AppendTrade(ctx, *closed); err != nil {
				logger.Errorf("audit append for %s failed: %v", closed.ID, err)
			}
		}
	}

	if len(out.Closed) == 0 {
		out.Trade = trade.Held([]string{fmt.Sprintf("no open %s positions to sell", trade.Strategy)})
		return out, nil
	}
	e.freq.Record()
	out.Executed = true
	return out, nil
}

func (e *Executor) recordVeto(ctx context.Context, verdict guard.Verdict, trade decision.ProposedTrade) {
	if e.audit == nil {
		return
	}
	if err := e.audit.AppendVeto(ctx, verdict, trade.Action, trade.Strategy, trade.Quantity, trade.EntryPrice); err != nil {
		logger.Errorf("audit veto append failed: %v", err)
	}
}
