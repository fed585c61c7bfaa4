package position

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ballast/internal/config"
	"ballast/internal/gateway/exchange"
	"ballast/internal/logger"
)

// Ledger owns the authoritative position list and every state transition.
// All mutating operations run under one mutex for the whole
// read-modify-persist sequence, so two callers can never double-spend the
// budget or double-close a position.
//
// Consistency contract: the durable write happens AFTER the in-memory
// transition commits (write-after). A failed persist is logged and surfaced
// as ErrPersist but does not roll the transition back; the next successful
// persist heals the file. Callers hold the returned position either way.
type Ledger struct {
	mu sync.Mutex

	budget     config.BudgetConfig
	strategies map[string]config.StrategyConfig
	threshold  float64

	store *FileStore
	exec  exchange.ExecutionClient

	positions   []*Position
	emergency   EmergencyState
	lastDCATime *time.Time

	nowFn func() time.Time
}

// OpenRequest describes a new allocation.
type OpenRequest struct {
	Strategy    string
	EntryPrice  float64
	AmountQuote float64
	ATR         float64
	Reason      string
	Metadata    map[string]any
}

// RepriceResult summarizes one monitoring pass over the open book.
type RepriceResult struct {
	Updated        int
	TotalUnrealPnL float64
	PortfolioValue float64
	PortfolioPct   float64
	LargeMoves     []LargeMove
}

// LargeMove flags a position whose unrealized P&L percentage jumped more
// than the configured threshold since the previous mark.
type LargeMove struct {
	PositionID string
	OldPct     float64
	NewPct     float64
	PnL        float64
}

// CloseResult is one entry of a CloseAll sweep.
type CloseResult struct {
	PositionID  string
	RealizedPnL float64
	Err         error
}

// NewLedger builds a ledger, restoring state from store when a file exists.
// store may be nil (ephemeral ledger, used in tests); exec may be nil (no
// venue, fills are assumed at the requested price).
func NewLedger(cfg *config.Config, store *FileStore, exec exchange.ExecutionClient) (*Ledger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidInput)
	}
	l := &Ledger{
		budget:     cfg.Budget,
		strategies: cfg.Strategies,
		threshold:  cfg.Risk.EmergencyStopPct,
		store:      store,
		exec:       exec,
		nowFn:      time.Now,
	}
	if store != nil {
		st, ok, err := store.Load()
		if err != nil {
			return nil, err
		}
		if ok {
			l.positions = st.Positions
			l.emergency = st.Emergency
			l.lastDCATime = st.LastDCATime
			open := 0
			for _, p := range l.positions {
				if p.Open() {
					open++
				}
			}
			logger.Infof("ledger restored: %d positions (%d open), emergency=%v",
				len(l.positions), open, l.emergency.Active)
		}
	}
	stats := l.BudgetStats()
	logger.Infof("ledger ready: budget=%.2f allocated=%.2f (%.1f%%) available=%.2f",
		stats.InitialBudget, stats.AllocatedCapital, stats.AllocationPct*100, stats.AvailableCapital)
	return l, nil
}

// ApplyConfig swaps in reloaded strategy and risk limits. The initial budget
// is pinned for the life of the process; changing it mid-run would corrupt
// every derived allocation figure.
func (l *Ledger) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if cfg.Budget.Initial != l.budget.Initial {
		logger.Warnf("ignoring initial budget change %.2f -> %.2f (restart required)",
			l.budget.Initial, cfg.Budget.Initial)
	}
	l.budget.MaxTotalAllocation = cfg.Budget.MaxTotalAllocation
	l.strategies = cfg.Strategies
	l.threshold = cfg.Risk.EmergencyStopPct
}

// Open allocates capital to a strategy: policy checks, stop-loss, venue
// fill, then the ledger append and durable write.
func (l *Ledger) Open(ctx context.Context, req OpenRequest) (*Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sc, ok := l.strategies[req.Strategy]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidInput, req.Strategy)
	}
	if req.EntryPrice <= 0 {
		return nil, fmt.Errorf("%w: entry price must be > 0, got %v", ErrInvalidInput, req.EntryPrice)
	}
	if req.AmountQuote <= 0 {
		return nil, fmt.Errorf("%w: amount must be > 0, got %v", ErrInvalidInput, req.AmountQuote)
	}
	if !sc.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrStrategyDisabled, req.Strategy)
	}
	if l.emergency.Active {
		return nil, ErrEmergencyActive
	}
	if ok, reason := l.canAllocateLocked(req.Strategy, req.AmountQuote); !ok {
		return nil, fmt.Errorf("%w: %s", ErrBudgetExceeded, reason)
	}

	stop, err := StopLossPrice(req.EntryPrice, req.ATR, sc.ATRMultiplier)
	if err != nil {
		return nil, err
	}

	// Venue first: the ledger records confirmed state only after a fill.
	entryPrice := req.EntryPrice
	amountBase := req.AmountQuote / req.EntryPrice
	orderID := ""
	if l.exec != nil {
		fill, err := l.exec.MarketBuy(ctx, amountBase)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExecution, err)
		}
		if fill.Price > 0 {
			entryPrice = fill.Price
		}
		if fill.Quantity > 0 {
			amountBase = fill.Quantity
		}
		orderID = fill.OrderID
	}

	now := l.nowFn()
	pos := &Position{
		ID:          l.nextIDLocked(req.Strategy, now),
		Strategy:    req.Strategy,
		AmountBase:  amountBase,
		AmountQuote: req.AmountQuote,
		EntryPrice:  entryPrice,
		EntryTime:   now,
		StopLoss:    stop,
		Status:      StatusOpen,
		Metadata:    make(map[string]any, len(req.Metadata)+4),
	}
	for k, v := range req.Metadata {
		pos.Metadata[k] = v
	}
	pos.Metadata[metaReason] = req.Reason
	pos.Metadata[metaATRUsed] = req.ATR
	pos.Metadata[metaATRMultiplier] = sc.ATRMultiplier
	if orderID != "" {
		pos.Metadata[metaOrderID] = orderID
	}

	l.positions = append(l.positions, pos)
	if req.Strategy == "dca" {
		l.lastDCATime = &now
	}

	logger.Infof("%s position opened: %s base=%.6f quote=%.2f entry=%.2f stop=%.2f reason=%q",
		strings.ToUpper(req.Strategy), pos.ID, amountBase, req.AmountQuote, entryPrice, stop, req.Reason)

	if err := l.persistLocked(); err != nil {
		return pos.clone(), err
	}
	return pos.clone(), nil
}

// Reprice marks every open position at price. Repeating the call with the
// same price is a no-op in effect: the resulting figures are identical.
// largeMoveThreshold bounds the P&L percentage jump that gets flagged.
func (l *Ledger) Reprice(price float64, largeMoveThreshold float64) (RepriceResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if price <= 0 {
		return RepriceResult{}, fmt.Errorf("%w: price must be > 0, got %v", ErrInvalidInput, price)
	}

	var res RepriceResult
	for _, p := range l.positions {
		if !p.Open() {
			continue
		}
		oldPct := p.UnrealizedPnLPct
		p.UpdateCurrentPrice(price)
		res.Updated++
		res.TotalUnrealPnL += p.UnrealizedPnL
		if largeMoveThreshold > 0 {
			delta := p.UnrealizedPnLPct - oldPct
			if delta > largeMoveThreshold || delta < -largeMoveThreshold {
				res.LargeMoves = append(res.LargeMoves, LargeMove{
					PositionID: p.ID,
					OldPct:     oldPct,
					NewPct:     p.UnrealizedPnLPct,
					PnL:        p.UnrealizedPnL,
				})
			}
		}
	}

	stats := computeBudgetStats(l.budget.Initial, l.strategyNames(), l.positions)
	res.PortfolioValue = stats.PortfolioValue
	if l.budget.Initial > 0 {
		res.PortfolioPct = (stats.PortfolioValue - l.budget.Initial) / l.budget.Initial
	}

	if res.Updated > 0 {
		if err := l.persistLocked(); err != nil {
			return res, err
		}
	}
	return res, nil
}

// PositionsPastStop returns copies of open positions whose stop is at or
// above price. Nothing is mutated; execution happens via ExecuteStop so a
// failed sell can be retried on the next pass.
func (l *Ledger) PositionsPastStop(price float64) []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Position
	for _, p := range l.positions {
		if p.StopTriggered(price) {
			out = append(out, *p.clone())
		}
	}
	return out
}

// Close settles a position manually or on a guardrail signal.
func (l *Ledger) Close(ctx context.Context, id string, exitPrice float64, reason string) (*Position, error) {
	return l.closeAs(ctx, id, exitPrice, reason, StatusClosed)
}

// ExecuteStop settles a position whose stop-loss triggered.
func (l *Ledger) ExecuteStop(ctx context.Context, id string, exitPrice float64) (*Position, error) {
	return l.closeAs(ctx, id, exitPrice, CloseReasonStopLoss, StatusStopped)
}

func (l *Ledger) closeAs(ctx context.Context, id string, exitPrice float64, reason string, terminal Status) (*Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if exitPrice <= 0 {
		return nil, fmt.Errorf("%w: exit price must be > 0, got %v", ErrInvalidInput, exitPrice)
	}
	pos := l.findLocked(id)
	if pos == nil {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}
	if !pos.Open() {
		return nil, fmt.Errorf("%w: %s has status %s", ErrPositionNotOpen, id, pos.Status)
	}

	executed := exitPrice
	orderID := ""
	if l.exec != nil {
		fill, err := l.exec.MarketSell(ctx, pos.AmountBase)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExecution, err)
		}
		if fill.Price > 0 {
			executed = fill.Price
		}
		orderID = fill.OrderID
	}

	pos.Status = terminal
	pos.settle(executed, l.nowFn())
	if pos.Metadata == nil {
		pos.Metadata = make(map[string]any, 2)
	}
	pos.Metadata[metaCloseReason] = reason
	if orderID != "" {
		pos.Metadata[metaCloseOrderID] = orderID
	}
	scorePrediction(pos)

	logger.Infof("position %s -> %s: exit=%.2f realized=%.2f (%.2f%%) reason=%q capital_freed=%.2f",
		pos.ID, terminal, executed, pos.RealizedPnL, pos.RealizedPnLPct*100, reason, pos.AmountQuote)

	if err := l.persistLocked(); err != nil {
		return pos.clone(), err
	}
	return pos.clone(), nil
}

// CloseAll attempts to close every open position. Failures do not abort the
// sweep; each position is tried independently and its error collected.
func (l *Ledger) CloseAll(ctx context.Context, exitPrice float64, reason string) []CloseResult {
	ids := make([]string, 0)
	l.mu.Lock()
	for _, p := range l.positions {
		if p.Open() {
			ids = append(ids, p.ID)
		}
	}
	l.mu.Unlock()

	results := make([]CloseResult, 0, len(ids))
	succeeded := 0
	for _, id := range ids {
		closed, err := l.Close(ctx, id, exitPrice, reason)
		if err != nil {
			logger.Errorf("close_all: %s failed: %v", id, err)
			results = append(results, CloseResult{PositionID: id, Err: err})
			continue
		}
		succeeded++
		results = append(results, CloseResult{PositionID: id, RealizedPnL: closed.RealizedPnL})
	}
	if len(ids) > 0 {
		logger.Warnf("close_all done: %d/%d succeeded (reason=%q)", succeeded, len(ids), reason)
	}
	return results
}

// CheckEmergency evaluates the drawdown latch at the given mark price. The
// trip is edge-triggered (logged and persisted once); the latched state is
// level-triggered, so an already-active latch reports active again quietly.
func (l *Ledger) CheckEmergency(price float64) (bool, EmergencyState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	value := l.portfolioValueAtLocked(price)
	pct := 0.0
	if l.budget.Initial > 0 {
		pct = (value - l.budget.Initial) / l.budget.Initial
	}

	if l.emergency.Active {
		return true, l.emergency
	}
	if pct > l.threshold {
		return false, EmergencyState{
			PortfolioValue: value,
			PnLPct:         pct,
			Threshold:      l.threshold,
		}
	}

	now := l.nowFn()
	l.emergency = EmergencyState{
		Active:         true,
		PortfolioValue: value,
		PnLPct:         pct,
		Threshold:      l.threshold,
		TrippedAt:      &now,
	}
	logger.WarnBlock(fmt.Sprintf(
		"EMERGENCY STOP TRIGGERED\nportfolio_value=%.2f\ninitial_budget=%.2f\npnl_pct=%.2f%%\nthreshold=%.2f%%\nall new positions blocked until reset",
		value, l.budget.Initial, pct*100, l.threshold*100))
	if err := l.persistLocked(); err != nil {
		logger.Errorf("persisting emergency state failed: %v", err)
	}
	return true, l.emergency
}

// ResetEmergency clears the latch. This is an explicit administrative act.
func (l *Ledger) ResetEmergency() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.emergency.Active {
		return nil
	}
	l.emergency = EmergencyState{}
	logger.Warnf("emergency latch reset by operator")
	return l.persistLocked()
}

// Emergency returns the current latch snapshot.
func (l *Ledger) Emergency() EmergencyState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.emergency
}

// CanAllocate answers whether amount could be committed to strategy right
// now. Pure query; nothing is reserved.
func (l *Ledger) CanAllocate(strategy string, amount float64) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.emergency.Active {
		return false, "emergency latch active - all new positions blocked"
	}
	return l.canAllocateLocked(strategy, amount)
}

// CanOpenDCA adds the DCA cooldown on top of the allocation checks.
func (l *Ledger) CanOpenDCA(amount float64) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sc, ok := l.strategies["dca"]
	if !ok || !sc.Enabled {
		return false, "dca strategy is disabled"
	}
	if l.emergency.Active {
		return false, "emergency latch active - all new positions blocked"
	}
	if l.lastDCATime != nil && sc.TimeBetweenBuys > 0 {
		elapsed := l.nowFn().Sub(*l.lastDCATime)
		if elapsed < sc.TimeBetweenBuys {
			return false, fmt.Sprintf("too soon since last DCA buy: %s elapsed, %s required",
				elapsed.Truncate(time.Second), sc.TimeBetweenBuys)
		}
	}
	return l.canAllocateLocked("dca", amount)
}

func (l *Ledger) canAllocateLocked(strategy string, amount float64) (bool, string) {
	sc, ok := l.strategies[strategy]
	if !ok {
		return false, fmt.Sprintf("unknown strategy %q", strategy)
	}
	stats := computeBudgetStats(l.budget.Initial, l.strategyNames(), l.positions)

	if amount > stats.AvailableCapital {
		return false, fmt.Sprintf("insufficient capital: %.2f available, %.2f required",
			stats.AvailableCapital, amount)
	}
	totalPct := (stats.AllocatedCapital + amount) / l.budget.Initial
	if totalPct > l.budget.MaxTotalAllocation {
		return false, fmt.Sprintf("global allocation limit: %.1f%% > %.1f%%",
			totalPct*100, l.budget.MaxTotalAllocation*100)
	}
	strategyPct := (stats.ByStrategy[strategy].Allocated + amount) / l.budget.Initial
	if strategyPct > sc.AllocationLimit {
		return false, fmt.Sprintf("%s allocation limit: %.1f%% > %.1f%%",
			strategy, strategyPct*100, sc.AllocationLimit*100)
	}
	return true, "OK"
}

// BudgetStats recomputes the capital aggregates from the position list.
func (l *Ledger) BudgetStats() BudgetStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return computeBudgetStats(l.budget.Initial, l.strategyNames(), l.positions)
}

// PortfolioState snapshots balances and the open book for the guardrails.
func (l *Ledger) PortfolioState() PortfolioState {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := PortfolioState{LastUpdated: l.nowFn()}
	for _, p := range l.positions {
		if !p.Open() {
			continue
		}
		state.BaseBalance += p.AmountBase
		state.OpenPositions = append(state.OpenPositions, *p.clone())
	}
	stats := computeBudgetStats(l.budget.Initial, l.strategyNames(), l.positions)
	state.QuoteBalance = stats.AvailableCapital
	return state
}

// Get returns a copy of one position.
func (l *Ledger) Get(id string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p := l.findLocked(id); p != nil {
		return *p.clone(), true
	}
	return Position{}, false
}

// List returns position copies, optionally filtered by status, ordered by
// entry time.
func (l *Ledger) List(status Status) []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, *p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out
}

// OpenPositions is shorthand for List(StatusOpen).
func (l *Ledger) OpenPositions() []Position {
	return l.List(StatusOpen)
}

func (l *Ledger) findLocked(id string) *Position {
	for _, p := range l.positions {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// nextIDLocked builds STRATEGY-YYYYMMDD-HHMMSS ids, suffixing a counter when
// two opens land in the same second.
func (l *Ledger) nextIDLocked(strategy string, now time.Time) string {
	base := fmt.Sprintf("%s-%s", strings.ToUpper(strategy), now.Format("20060102-150405"))
	id := base
	for n := 2; l.findLocked(id) != nil; n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	return id
}

// portfolioValueAtLocked values the portfolio at price without mutating the
// stored marks. Only the open book moves the value; settled positions are
// out of the drawdown baseline.
func (l *Ledger) portfolioValueAtLocked(price float64) float64 {
	unrealized := 0.0
	for _, p := range l.positions {
		if !p.Open() {
			continue
		}
		if price > 0 {
			abs, _ := pnl(p.EntryPrice, price, p.AmountBase)
			unrealized += abs
		} else {
			unrealized += p.UnrealizedPnL
		}
	}
	return l.budget.Initial + unrealized
}

func (l *Ledger) strategyNames() []string {
	names := make([]string, 0, len(l.strategies))
	for _, name := range []string{"dca", "swing", "day"} {
		if _, ok := l.strategies[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

func (l *Ledger) persistLocked() error {
	if l.store == nil {
		return nil
	}
	st := State{
		Emergency:   l.emergency,
		LastDCATime: l.lastDCATime,
		Positions:   l.positions,
	}
	if err := l.store.Save(st); err != nil {
		logger.Errorf("state persist failed (in-memory state is ahead of disk): %v", err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
