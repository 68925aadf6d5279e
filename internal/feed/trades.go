package feed

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkarlin/vwap-settler/internal/model"
)

// GetTrades fetches the most recent executed trades for a product, newest
// first, up to limit rows. Malformed rows are dropped with a warning; the
// second return value counts them.
func (c *Client) GetTrades(ctx context.Context, productID string, limit int) ([]model.Trade, int, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var raw []rawTrade
	path := fmt.Sprintf("/products/%s/trades", productID)
	if err := c.get(ctx, path, query, &raw); err != nil {
		return nil, 0, err
	}

	trades, dropped := convertTrades(raw, productID, time.Now().UTC(), c.logger)
	return trades, dropped, nil
}

// GetCurrentPrice fetches the latest traded price for a product from the
// ticker endpoint.
func (c *Client) GetCurrentPrice(ctx context.Context, productID string) (decimal.Decimal, error) {
	var ticker tickerResponse
	path := fmt.Sprintf("/products/%s/ticker", productID)
	if err := c.get(ctx, path, nil, &ticker); err != nil {
		return decimal.Decimal{}, err
	}

	price, err := parseDecimal("price", ticker.Price)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return price, nil
}
