package settle

import (
	"github.com/shopspring/decimal"

	"github.com/mkarlin/vwap-settler/internal/model"
)

// Deltas returns the per-party balance adjustment implied by the change in
// obligations between the current settlement and the previous cycle's:
//
//	delta(party) = -(obligation_now - obligation_prev)
//
// On the first cycle (prev == nil) the full current obligation is charged.
// A party present only in prev (position fully closed) is charged as if its
// current obligation were zero. Applying deltas cycle by cycle telescopes:
// the sum over cycles 1..N equals the single charge -obligation_N.
func Deltas(now, prev []model.SettlementRecord) map[int]decimal.Decimal {
	deltas := make(map[int]decimal.Decimal, len(now))

	for _, rec := range now {
		deltas[rec.PartyID] = rec.Obligation.Neg()
	}

	for _, rec := range prev {
		cur, ok := deltas[rec.PartyID]
		if !ok {
			cur = decimal.Zero
		}
		deltas[rec.PartyID] = cur.Add(rec.Obligation)
	}

	return deltas
}

// Reconcile applies Deltas to a balance slice and returns the updated copy.
// Parties absent from both settlement sets are untouched. This is the pure
// form of reconciliation; the running system routes the same deltas through
// the shared balance table's single mutation point.
func Reconcile(balances []model.PartyBalance, now, prev []model.SettlementRecord) []model.PartyBalance {
	deltas := Deltas(now, prev)

	out := make([]model.PartyBalance, len(balances))
	for i, b := range balances {
		if d, ok := deltas[b.PartyID]; ok {
			b.Current = b.Current.Add(d)
		}
		out[i] = b
	}
	return out
}
