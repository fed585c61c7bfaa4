// Package exchange defines the collaborator interfaces the risk engine talks
// to. The engine records confirmed position state only after a Fill comes
// back; retry policy against the venue belongs to the implementation.
package exchange

import "context"

// Fill reports what actually executed on the venue.
type Fill struct {
	OrderID  string
	Price    float64
	Quantity float64
	Fee      float64
	FeeAsset string
}

// ExecutionClient places market orders. Implementations are fallible; a nil
// error means the returned Fill is authoritative.
type ExecutionClient interface {
	MarketBuy(ctx context.Context, quantity float64) (Fill, error)
	MarketSell(ctx context.Context, quantity float64) (Fill, error)
}

// PriceFeed supplies the latest traded price for the configured symbol.
type PriceFeed interface {
	LatestPrice(ctx context.Context) (float64, error)
}
