package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PartyUnassigned marks a trade side that has not yet been drawn from the
// counterparty pool.
const PartyUnassigned = -1

// Trade represents an executed trade observed on the market-data feed.
// Price, size and time are immutable once the trade enters the ledger;
// the two party fields are set exactly once, at first ingestion.
type Trade struct {
	ID         int64           `json:"trade_id"`    // Primary key (from the feed)
	ProductID  string          `json:"product_id"`  // Product (e.g., "BTC-USD")
	Price      decimal.Decimal `json:"price"`       // Execution price
	Size       decimal.Decimal `json:"size"`        // Executed quantity
	Time       time.Time       `json:"time"`        // Execution time (UTC)
	LongParty  int             `json:"long_party"`  // Assigned long side, PartyUnassigned until drawn
	ShortParty int             `json:"short_party"` // Assigned short side, PartyUnassigned until drawn
	ReceivedAt time.Time       `json:"received_at"` // Local receive timestamp
}

// Assigned reports whether both counterparties have been drawn.
func (t Trade) Assigned() bool {
	return t.LongParty != PartyUnassigned && t.ShortParty != PartyUnassigned
}

// Notional returns price * size.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Size)
}

// SettlementRecord is one party's settlement for a single cycle. Derived
// data: recomputed from the ledger every cycle, never mutated in place.
type SettlementRecord struct {
	PartyID      int             `json:"party_id"`
	VWAP         decimal.Decimal `json:"vwap"`          // Volume-weighted settlement value; zero when degenerate
	NetQuantity  decimal.Decimal `json:"net_quantity"`  // Signed windowed quantity (long positive)
	CurrentPrice decimal.Decimal `json:"current_price"` // Market price at evaluation time
	Obligation   decimal.Decimal `json:"obligation"`    // (VWAP - CurrentPrice) * NetQuantity; positive = party owes
	Currency     string          `json:"currency"`
	Degenerate   bool            `json:"degenerate"` // Net quantity fully offset within the window
}

// SettlementReport is the full settlement output of one cycle for one product.
type SettlementReport struct {
	CycleID      uuid.UUID          `json:"cycle_id"`
	ProductID    string             `json:"product_id"`
	ComputedAt   time.Time          `json:"computed_at"`
	CurrentPrice decimal.Decimal    `json:"current_price"`
	Records      []SettlementRecord `json:"records"`
}

// Obligations returns the report's per-party obligations.
func (r *SettlementReport) Obligations() map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal, len(r.Records))
	for _, rec := range r.Records {
		out[rec.PartyID] = rec.Obligation
	}
	return out
}

// PartyBalance is one counterparty's account. Created at process start,
// mutated additively every cycle, never deleted while the process runs.
type PartyBalance struct {
	PartyID int             `json:"party_id"`
	Initial decimal.Decimal `json:"initial_balance"`
	Current decimal.Decimal `json:"current_balance"`
}
