// Package binance adapts the Binance spot API to the exchange collaborator
// interfaces. Only market orders and the latest price are needed here;
// everything else about the venue stays outside the risk engine.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"

	"ballast/internal/gateway/exchange"
	"ballast/internal/logger"
)

type Config struct {
	APIKey    string
	APISecret string
	Symbol    string
	Timeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	return c
}

// Client implements exchange.ExecutionClient and exchange.PriceFeed against
// the spot API.
type Client struct {
	cfg Config
	api *gobinance.Client
}

func New(cfg Config) (*Client, error) {
	final := cfg.withDefaults()
	if final.Symbol == "" {
		return nil, fmt.Errorf("binance: symbol is required")
	}
	if strings.TrimSpace(final.APIKey) == "" || strings.TrimSpace(final.APISecret) == "" {
		return nil, fmt.Errorf("binance: api credentials are required")
	}
	return &Client{cfg: final, api: gobinance.NewClient(final.APIKey, final.APISecret)}, nil
}

func (c *Client) MarketBuy(ctx context.Context, quantity float64) (exchange.Fill, error) {
	return c.marketOrder(ctx, gobinance.SideTypeBuy, quantity)
}

func (c *Client) MarketSell(ctx context.Context, quantity float64) (exchange.Fill, error) {
	return c.marketOrder(ctx, gobinance.SideTypeSell, quantity)
}

func (c *Client) marketOrder(ctx context.Context, side gobinance.SideType, quantity float64) (exchange.Fill, error) {
	if quantity <= 0 {
		return exchange.Fill{}, fmt.Errorf("binance: quantity must be > 0, got %v", quantity)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	res, err := c.api.NewCreateOrderService().
		Symbol(c.cfg.Symbol).
		Side(side).
		Type(gobinance.OrderTypeMarket).
		Quantity(formatQuantity(quantity)).
		Do(ctx)
	if err != nil {
		return exchange.Fill{}, fmt.Errorf("binance: %s order failed: %w", side, err)
	}

	fill := aggregateFills(res)
	logger.Infof("binance %s executed: order=%s qty=%.8f avg_price=%.2f fee=%.8f %s",
		side, fill.OrderID, fill.Quantity, fill.Price, fill.Fee, fill.FeeAsset)
	return fill, nil
}

func (c *Client) LatestPrice(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	prices, err := c.api.NewListPricesService().Symbol(c.cfg.Symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance: price query failed: %w", err)
	}
	for _, p := range prices {
		if p.Symbol != c.cfg.Symbol {
			continue
		}
		val, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return 0, fmt.Errorf("binance: unparseable price %q: %w", p.Price, err)
		}
		return val, nil
	}
	return 0, fmt.Errorf("binance: no price returned for %s", c.cfg.Symbol)
}

// aggregateFills flattens partial fills into one volume-weighted fill.
func aggregateFills(res *gobinance.CreateOrderResponse) exchange.Fill {
	fill := exchange.Fill{OrderID: strconv.FormatInt(res.OrderID, 10)}
	if qty, err := strconv.ParseFloat(res.ExecutedQuantity, 64); err == nil {
		fill.Quantity = qty
	}

	var notional, qtySum float64
	for _, f := range res.Fills {
		price, perr := strconv.ParseFloat(f.Price, 64)
		qty, qerr := strconv.ParseFloat(f.Quantity, 64)
		if perr != nil || qerr != nil {
			continue
		}
		notional += price * qty
		qtySum += qty
		if fee, err := strconv.ParseFloat(f.Commission, 64); err == nil {
			fill.Fee += fee
			fill.FeeAsset = f.CommissionAsset
		}
	}
	if qtySum > 0 {
		fill.Price = notional / qtySum
		if fill.Quantity == 0 {
			fill.Quantity = qtySum
		}
	}
	return fill
}

func formatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', 8, 64)
}

var (
	_ exchange.ExecutionClient = (*Client)(nil)
	_ exchange.PriceFeed       = (*Client)(nil)
)
