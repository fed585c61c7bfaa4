package position

import "errors"

// Sentinel errors for the ledger. Policy rejections (budget, frequency,
// price sanity) are NOT errors; they come back as decisions with reasons.
// These cover bad input, bad state, and collaborator failure, which callers
// need to tell apart.
var (
	// ErrInvalidInput marks malformed or out-of-range arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStrategyDisabled is returned when opening under a strategy that is
	// administratively switched off.
	ErrStrategyDisabled = errors.New("strategy is disabled")

	// ErrEmergencyActive blocks every new allocation while the latch is set.
	ErrEmergencyActive = errors.New("emergency latch active")

	// ErrBudgetExceeded is returned by Open when the allocation check fails.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrPositionNotFound means the id matches no known position.
	ErrPositionNotFound = errors.New("position not found")

	// ErrPositionNotOpen means the position exists but is terminal; a
	// double close surfaces this, never a silent no-op.
	ErrPositionNotOpen = errors.New("position not open")

	// ErrExecution wraps execution-client failures. When Open or a close
	// returns it, no state transition happened.
	ErrExecution = errors.New("execution client failure")

	// ErrPersist wraps a failed durable write. The in-memory transition has
	// already been applied; see Ledger for the consistency contract.
	ErrPersist = errors.New("state persist failed")
)
