// Package monitor drives the periodic safety pass: mark prices, stop-loss
// execution, and the portfolio drawdown check.
package monitor

import (
	"context"
	"fmt"
	"sync"

	"ballast/internal/config"
	"ballast/internal/gateway/exchange"
	"ballast/internal/logger"
	"ballast/internal/position"
	"ballast/internal/scheduler"
	"ballast/internal/store/tradelog"
)

// Monitor runs the recurring risk pass over the open book. Detection and
// execution are split on purpose: a pass first collects triggered stops,
// then sells each one, so a failed sell is simply retried next pass.
type Monitor struct {
	ledger *position.Ledger
	feed   exchange.PriceFeed
	audit  *tradelog.Store

	mu   sync.RWMutex
	cfg  config.MonitorConfig
	risk config.RiskConfig
}

// PassReport summarizes one monitoring pass.
type PassReport struct {
	Price           float64
	Updated         int
	LargeMoves      []position.LargeMove
	StopsTriggered  int
	StopsExecuted   int
	EmergencyActive bool
	ClosedAll       bool
}

func New(ledger *position.Ledger, feed exchange.PriceFeed, audit *tradelog.Store, cfg config.MonitorConfig, risk config.RiskConfig) *Monitor {
	return &Monitor{
		ledger: ledger,
		feed:   feed,
		audit:  audit,
		cfg:    cfg,
		risk:   risk,
	}
}

// ApplyConfig swaps in reloaded monitor and risk settings. The loop cadence
// is fixed at startup; only thresholds change live.
func (m *Monitor) ApplyConfig(cfg config.MonitorConfig, risk config.RiskConfig) {
	m.mu.Lock()
	m.cfg.LargeMovePct = cfg.LargeMovePct
	m.risk = risk
	m.mu.Unlock()
}

func (m *Monitor) limits() (config.MonitorConfig, config.RiskConfig) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg, m.risk
}

// RunOnce executes a single pass at the current market price.
func (m *Monitor) RunOnce(ctx context.Context) (PassReport, error) {
	price, err := m.feed.LatestPrice(ctx)
	if err != nil {
		return PassReport{}, fmt.Errorf("fetching market price: %w", err)
	}
	return m.runAt(ctx, price)
}

func (m *Monitor) runAt(ctx context.Context, price float64) (PassReport, error) {
	report := PassReport{Price: price}
	cfg, risk := m.limits()

	res, err := m.ledger.Reprice(price, cfg.LargeMovePct)
	if err != nil {
		return report, err
	}
	report.Updated = res.Updated
	report.LargeMoves = res.LargeMoves
	for _, mv := range res.LargeMoves {
		logger.Warnf("large move on %s: pnl %.2f%% -> %.2f%% (%.2f)",
			mv.PositionID, mv.OldPct*100, mv.NewPct*100, mv.PnL)
	}

	triggered := m.ledger.PositionsPastStop(price)
	report.StopsTriggered = len(triggered)
	for _, pos := range triggered {
		stopped, err := m.ledger.ExecuteStop(ctx, pos.ID, price)
		if err != nil {
			logger.Errorf("stop-loss execution for %s failed, will retry next pass: %v", pos.ID, err)
			continue
		}
		report.StopsExecuted++
		m.recordClose(ctx, *stopped)
	}

	active, state := m.ledger.CheckEmergency(price)
	report.EmergencyActive = active
	if active && risk.CloseAllOnEmergency && len(m.ledger.OpenPositions()) > 0 {
		logger.Warnf("emergency close-all: liquidating open book at %.2f (pnl %.2f%%)",
			price, state.PnLPct*100)
		for _, r := range m.ledger.CloseAll(ctx, price, position.CloseReasonEmergency) {
			if r.Err != nil {
				continue
			}
			if closed, ok := m.ledger.Get(r.PositionID); ok {
				m.recordClose(ctx, closed)
			}
		}
		report.ClosedAll = true
	}

	logger.Debugf("monitor pass done: price=%.2f updated=%d stops=%d/%d emergency=%v",
		price, report.Updated, report.StopsExecuted, report.StopsTriggered, active)
	return report, nil
}

func (m *Monitor) recordClose(ctx context.Context, pos position.Position) {
	if m.audit == nil {
		return
	}
	if err := m.audit.AppendTrade(ctx, pos); err != nil {
		logger.Errorf("audit append for %s failed: %v", pos.ID, err)
	}
}

// Run blocks, executing passes on the configured interval until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) {
	cfg, _ := m.limits()
	s := scheduler.NewIntervalScheduler(ctx, cfg.Interval)
	s.RunImmediately = cfg.RunImmediately
	s.Start(func() {
		if _, err := m.RunOnce(ctx); err != nil {
			logger.Errorf("monitor pass failed: %v", err)
		}
	})
}
