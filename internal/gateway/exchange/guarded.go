package exchange

import (
	"context"
	"fmt"

	"ballast/internal/pkg/circuit"
)

// GuardedClient fences a live exchange connection behind a circuit breaker.
// While the breaker is open every call fails fast instead of hammering a
// venue that is already erroring.
type GuardedClient struct {
	exec    ExecutionClient
	feed    PriceFeed
	breaker *circuit.Breaker
}

var (
	_ ExecutionClient = (*GuardedClient)(nil)
	_ PriceFeed       = (*GuardedClient)(nil)
)

func NewGuardedClient(exec ExecutionClient, feed PriceFeed, breaker *circuit.Breaker) *GuardedClient {
	return &GuardedClient{exec: exec, feed: feed, breaker: breaker}
}

func (g *GuardedClient) MarketBuy(ctx context.Context, quantity float64) (Fill, error) {
	if !g.breaker.Allow() {
		return Fill{}, fmt.Errorf("exchange circuit breaker is open")
	}
	fill, err := g.exec.MarketBuy(ctx, quantity)
	g.record(err)
	return fill, err
}

func (g *GuardedClient) MarketSell(ctx context.Context, quantity float64) (Fill, error) {
	if !g.breaker.Allow() {
		return Fill{}, fmt.Errorf("exchange circuit breaker is open")
	}
	fill, err := g.exec.MarketSell(ctx, quantity)
	g.record(err)
	return fill, err
}

func (g *GuardedClient) LatestPrice(ctx context.Context) (float64, error) {
	if !g.breaker.Allow() {
		return 0, fmt.Errorf("exchange circuit breaker is open")
	}
	price, err := g.feed.LatestPrice(ctx)
	g.record(err)
	return price, err
}

func (g *GuardedClient) record(err error) {
	if err != nil {
		g.breaker.RecordFailure()
		return
	}
	g.breaker.RecordSuccess()
}
