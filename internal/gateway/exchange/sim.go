package exchange

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Simulator fills market orders at a caller-controlled reference price. It
// backs paper trading and tests; the order id sequence makes fills traceable
// in the audit log.
type Simulator struct {
	mu    sync.RWMutex
	price float64
	seq   atomic.Int64
}

func NewSimulator(price float64) *Simulator {
	return &Simulator{price: price}
}

// SetPrice moves the simulated market.
func (s *Simulator) SetPrice(price float64) {
	s.mu.Lock()
	s.price = price
	s.mu.Unlock()
}

func (s *Simulator) LatestPrice(ctx context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.price <= 0 {
		return 0, fmt.Errorf("simulator has no reference price")
	}
	return s.price, nil
}

func (s *Simulator) MarketBuy(ctx context.Context, quantity float64) (Fill, error) {
	return s.fill(ctx, quantity)
}

func (s *Simulator) MarketSell(ctx context.Context, quantity float64) (Fill, error) {
	return s.fill(ctx, quantity)
}

func (s *Simulator) fill(ctx context.Context, quantity float64) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if quantity <= 0 {
		return Fill{}, fmt.Errorf("quantity must be > 0, got %v", quantity)
	}
	price, err := s.LatestPrice(ctx)
	if err != nil {
		return Fill{}, err
	}
	return Fill{
		OrderID:  fmt.Sprintf("SIM-%06d", s.seq.Add(1)),
		Price:    price,
		Quantity: quantity,
	}, nil
}

var (
	_ ExecutionClient = (*Simulator)(nil)
	_ PriceFeed       = (*Simulator)(nil)
)
