package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballast/internal/pkg/circuit"
)

type flakyClient struct {
	fail bool
}

func (f *flakyClient) MarketBuy(ctx context.Context, quantity float64) (Fill, error) {
	if f.fail {
		return Fill{}, errors.New("venue unavailable")
	}
	return Fill{OrderID: "OK-1", Price: 62000, Quantity: quantity}, nil
}

func (f *flakyClient) MarketSell(ctx context.Context, quantity float64) (Fill, error) {
	return f.MarketBuy(ctx, quantity)
}

func (f *flakyClient) LatestPrice(ctx context.Context) (float64, error) {
	if f.fail {
		return 0, errors.New("venue unavailable")
	}
	return 62000, nil
}

func TestGuardedClientPassesThrough(t *testing.T) {
	inner := &flakyClient{}
	g := NewGuardedClient(inner, inner, circuit.NewBreaker("test", 2, time.Hour))

	fill, err := g.MarketBuy(context.Background(), 0.01)
	require.NoError(t, err)
	assert.Equal(t, "OK-1", fill.OrderID)

	price, err := g.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 62000.0, price)
}

func TestGuardedClientFailsFastWhenOpen(t *testing.T) {
	inner := &flakyClient{fail: true}
	g := NewGuardedClient(inner, inner, circuit.NewBreaker("test", 2, time.Hour))
	ctx := context.Background()

	_, err := g.MarketBuy(ctx, 0.01)
	require.Error(t, err)
	_, err = g.MarketBuy(ctx, 0.01)
	require.Error(t, err)

	// Breaker is open now; the inner client is no longer reached.
	inner.fail = false
	_, err = g.MarketBuy(ctx, 0.01)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")

	_, err = g.LatestPrice(ctx)
	assert.Error(t, err)
}
