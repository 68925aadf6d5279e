package feed

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkarlin/vwap-settler/internal/model"
)

// Feed timestamps come in two ISO-8601 shapes: whole seconds and fractional
// seconds, both UTC with a trailing Z.
var timestampLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05",
}

// ParseError reports a malformed field in a raw feed record. The offending
// record is dropped with a warning; it never aborts a cycle.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseTimestamp parses an ISO-8601 feed timestamp into UTC.
func ParseTimestamp(iso string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, iso)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, &ParseError{Field: "time", Value: iso, Err: lastErr}
}

// parseDecimal parses a decimal feed field.
func parseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, &ParseError{Field: field, Value: value, Err: err}
	}
	return d, nil
}

// toModel converts a raw feed row into an unassigned ledger trade.
func (r rawTrade) toModel(productID string, receivedAt time.Time) (model.Trade, error) {
	price, err := parseDecimal("price", r.Price)
	if err != nil {
		return model.Trade{}, err
	}
	size, err := parseDecimal("size", r.Size)
	if err != nil {
		return model.Trade{}, err
	}
	ts, err := ParseTimestamp(r.Time)
	if err != nil {
		return model.Trade{}, err
	}

	return model.Trade{
		ID:         r.TradeID,
		ProductID:  productID,
		Price:      price,
		Size:       size,
		Time:       ts,
		LongParty:  model.PartyUnassigned,
		ShortParty: model.PartyUnassigned,
		ReceivedAt: receivedAt,
	}, nil
}

// convertTrades converts a raw batch, dropping malformed rows with a
// warning. Returns the clean trades and the number of rows dropped.
func convertTrades(raw []rawTrade, productID string, receivedAt time.Time, logger *slog.Logger) ([]model.Trade, int) {
	trades := make([]model.Trade, 0, len(raw))
	dropped := 0

	for _, r := range raw {
		t, err := r.toModel(productID, receivedAt)
		if err != nil {
			logger.Warn("dropping malformed trade row",
				"product", productID,
				"trade_id", r.TradeID,
				"err", err,
			)
			dropped++
			continue
		}
		trades = append(trades, t)
	}

	return trades, dropped
}
