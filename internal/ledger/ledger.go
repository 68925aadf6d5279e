package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mkarlin/vwap-settler/internal/model"
)

// MergeConflict reports a trade ID that reappeared with different immutable
// fields. This indicates a corrupt or adversarial feed and is never resolved
// silently; the offending row is rejected and the ledger left intact.
type MergeConflict struct {
	TradeID int64
	Field   string
}

func (e *MergeConflict) Error() string {
	return fmt.Sprintf("merge conflict on trade %d: immutable field %q changed", e.TradeID, e.Field)
}

// ErrUnknownTrade is returned when assigning parties to an ID not in the ledger.
var ErrUnknownTrade = errors.New("trade not in ledger")

// ErrAlreadyAssigned is returned when a trade's counterparties would be
// reassigned. Assignment is write-once.
var ErrAlreadyAssigned = errors.New("trade counterparties already assigned")

// Ledger holds every trade seen so far for a single product, keyed by trade
// ID. It exclusively owns trade rows and their counterparty assignment.
type Ledger struct {
	productID string
	trades    map[int64]model.Trade
}

// New creates an empty ledger for the given product.
func New(productID string) *Ledger {
	return &Ledger{
		productID: productID,
		trades:    make(map[int64]model.Trade),
	}
}

// ProductID returns the product this ledger tracks.
func (l *Ledger) ProductID() string { return l.productID }

// Len returns the number of trades in the ledger.
func (l *Ledger) Len() int { return len(l.trades) }

// Get returns the trade with the given ID.
func (l *Ledger) Get(id int64) (model.Trade, bool) {
	t, ok := l.trades[id]
	return t, ok
}

// Merge folds an incoming batch into the ledger. Only IDs absent from the
// ledger are inserted; those rows are returned in ascending ID order so the
// caller can assign counterparties to them. Rows whose ID is already present
// pass through untouched, preserving any prior assignment, but their
// immutable fields are compared: a mismatch yields a MergeConflict for that
// row while the rest of the batch still merges.
func (l *Ledger) Merge(incoming []model.Trade) ([]model.Trade, error) {
	var added []model.Trade
	var conflicts []error

	for _, in := range incoming {
		existing, ok := l.trades[in.ID]
		if !ok {
			l.trades[in.ID] = in
			added = append(added, in)
			continue
		}

		if field, same := sameImmutables(existing, in); !same {
			conflicts = append(conflicts, &MergeConflict{TradeID: in.ID, Field: field})
		}
	}

	sort.Slice(added, func(i, j int) bool { return added[i].ID < added[j].ID })

	return added, errors.Join(conflicts...)
}

// sameImmutables compares the fields that must never change for a trade ID.
func sameImmutables(a, b model.Trade) (field string, same bool) {
	switch {
	case !a.Price.Equal(b.Price):
		return "price", false
	case !a.Size.Equal(b.Size):
		return "size", false
	case !a.Time.Equal(b.Time):
		return "time", false
	}
	return "", true
}

// SetParties records the counterparty assignment for a trade. The assignment
// is write-once: a second call for the same ID fails with ErrAlreadyAssigned.
func (l *Ledger) SetParties(id int64, long, short int) error {
	t, ok := l.trades[id]
	if !ok {
		return fmt.Errorf("set parties on trade %d: %w", id, ErrUnknownTrade)
	}
	if t.Assigned() {
		return fmt.Errorf("set parties on trade %d: %w", id, ErrAlreadyAssigned)
	}
	if long == short {
		return fmt.Errorf("set parties on trade %d: long and short are both %d", id, long)
	}

	t.LongParty = long
	t.ShortParty = short
	l.trades[id] = t
	return nil
}

// Window returns the trades inside the strict trailing window
// (Time > now - window). Trades exactly at the boundary are excluded so
// adjacent cycles never double count. Results are in ascending ID order.
func (l *Ledger) Window(now time.Time, window time.Duration) []model.Trade {
	cutoff := now.Add(-window)

	var out []model.Trade
	for _, t := range l.trades {
		if t.Time.After(cutoff) {
			out = append(out, t)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns all trades in ascending ID order.
func (l *Ledger) Snapshot() []model.Trade {
	out := make([]model.Trade, 0, len(l.trades))
	for _, t := range l.trades {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ledgerJSON is the serialized form of a Ledger.
type ledgerJSON struct {
	ProductID string        `json:"product_id"`
	Trades    []model.Trade `json:"trades"`
}

// MarshalJSON serializes the ledger with trades in ascending ID order.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(ledgerJSON{
		ProductID: l.productID,
		Trades:    l.Snapshot(),
	})
}

// UnmarshalJSON restores a ledger serialized by MarshalJSON.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var lj ledgerJSON
	if err := json.Unmarshal(data, &lj); err != nil {
		return err
	}

	l.productID = lj.ProductID
	l.trades = make(map[int64]model.Trade, len(lj.Trades))
	for _, t := range lj.Trades {
		l.trades[t.ID] = t
	}
	return nil
}
