package position

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StopLossPrice computes the volatility-scaled stop for a long entry:
//
//	stop = entry - atr * multiplier
//
// The result is rounded to cents and always strictly below the entry price.
func StopLossPrice(entryPrice, atr, multiplier float64) (float64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("%w: entry price must be > 0, got %v", ErrInvalidInput, entryPrice)
	}
	if atr <= 0 {
		return 0, fmt.Errorf("%w: atr must be > 0, got %v", ErrInvalidInput, atr)
	}
	if multiplier <= 0 {
		return 0, fmt.Errorf("%w: atr multiplier must be > 0, got %v", ErrInvalidInput, multiplier)
	}
	stop := decimal.NewFromFloat(entryPrice).
		Sub(decimal.NewFromFloat(atr).Mul(decimal.NewFromFloat(multiplier))).
		Round(2)
	out, _ := stop.Float64()
	// A sub-cent atr*multiplier rounds away entirely and would leave the
	// stop at or above the entry.
	if out >= entryPrice {
		return 0, fmt.Errorf("%w: stop %v is not below entry %v (atr %v too small)",
			ErrInvalidInput, out, entryPrice, atr)
	}
	return out, nil
}
