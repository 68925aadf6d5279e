package settle

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkarlin/vwap-settler/internal/ledger"
	"github.com/mkarlin/vwap-settler/internal/model"
)

// CurrentPrice carries the latest market price from the market-data
// collaborator. Valid is false when the fetch failed this cycle.
type CurrentPrice struct {
	Value decimal.Decimal
	Valid bool
}

// Price wraps a fetched price.
func Price(v decimal.Decimal) CurrentPrice {
	return CurrentPrice{Value: v, Valid: true}
}

// NoPrice marks the price as unavailable for this cycle.
func NoPrice() CurrentPrice {
	return CurrentPrice{}
}

// SettlementComputationError is returned when the current price is
// unavailable while at least one party holds a nonzero net position. The
// whole settlement step fails: no records are produced and no balances move.
type SettlementComputationError struct {
	ProductID string
	Exposed   int // parties with nonzero net quantity
}

func (e *SettlementComputationError) Error() string {
	return fmt.Sprintf("settle %s: current price unavailable with %d exposed parties", e.ProductID, e.Exposed)
}

// position accumulates one party's signed exposure within the window.
type position struct {
	notional decimal.Decimal
	quantity decimal.Decimal
}

// Compute derives one settlement record per party with exposure in the
// trailing window. It is a complete recomputation from the ledger: no state
// is carried between cycles, so the output is re-derivable for auditing.
//
// Per party, with long trades positive and short trades negative:
//
//	netNotional = sum(price*size)        netQuantity = sum(size)
//	vwap        = netNotional / netQuantity
//	obligation  = (vwap - currentPrice) * netQuantity
//
// A party whose longs and shorts fully offset (netQuantity == 0) gets a
// degenerate record with a zero obligation instead of an undefined ratio: a
// flat position has no price exposure no matter what the VWAP would be.
func Compute(ldg *ledger.Ledger, now time.Time, window time.Duration, price CurrentPrice, currency string) ([]model.SettlementRecord, error) {
	trades := ldg.Window(now, window)

	positions := make(map[int]*position)
	touch := func(party int) *position {
		p, ok := positions[party]
		if !ok {
			p = &position{notional: decimal.Zero, quantity: decimal.Zero}
			positions[party] = p
		}
		return p
	}

	for _, t := range trades {
		if !t.Assigned() {
			// Unassigned rows never reach settlement; merge assigns before
			// compute runs. Skip rather than invent exposure for party -1.
			continue
		}

		notional := t.Notional()

		long := touch(t.LongParty)
		long.notional = long.notional.Add(notional)
		long.quantity = long.quantity.Add(t.Size)

		short := touch(t.ShortParty)
		short.notional = short.notional.Sub(notional)
		short.quantity = short.quantity.Sub(t.Size)
	}

	if len(positions) == 0 {
		return nil, nil
	}

	parties := make([]int, 0, len(positions))
	exposed := 0
	for party, p := range positions {
		parties = append(parties, party)
		if !p.quantity.IsZero() {
			exposed++
		}
	}
	sort.Ints(parties)

	if exposed > 0 && !price.Valid {
		return nil, &SettlementComputationError{ProductID: ldg.ProductID(), Exposed: exposed}
	}

	records := make([]model.SettlementRecord, 0, len(parties))
	for _, party := range parties {
		p := positions[party]

		rec := model.SettlementRecord{
			PartyID:      party,
			NetQuantity:  p.quantity,
			CurrentPrice: price.Value,
			Currency:     currency,
		}

		if p.quantity.IsZero() {
			rec.Degenerate = true
			rec.VWAP = decimal.Zero
			rec.Obligation = decimal.Zero
		} else {
			rec.VWAP = p.notional.Div(p.quantity)
			rec.Obligation = rec.VWAP.Sub(price.Value).Mul(p.quantity)
		}

		records = append(records, rec)
	}

	return records, nil
}
