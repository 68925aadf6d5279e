package engine

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mkarlin/vwap-settler/internal/model"
)

// BalanceTable holds the fixed counterparty pool's balances. Balances are a
// shared resource across product engines, so all mutation funnels through
// Apply, which is the single serialized mutation point.
type BalanceTable struct {
	mu      sync.RWMutex
	parties []model.PartyBalance // index == party ID
}

// NewBalanceTable creates poolSize parties, IDs [0, poolSize), each starting
// at the configured initial balance.
func NewBalanceTable(poolSize int, initial decimal.Decimal) *BalanceTable {
	parties := make([]model.PartyBalance, poolSize)
	for i := range parties {
		parties[i] = model.PartyBalance{PartyID: i, Initial: initial, Current: initial}
	}
	return &BalanceTable{parties: parties}
}

// Apply adds each delta to the matching party's current balance. The whole
// map is applied under one lock acquisition so concurrent product cycles
// never interleave partial updates. An out-of-pool party fails the entire
// call with no balances changed.
func (bt *BalanceTable) Apply(deltas map[int]decimal.Decimal) error {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	for party := range deltas {
		if party < 0 || party >= len(bt.parties) {
			return fmt.Errorf("apply deltas: party %d outside pool of %d", party, len(bt.parties))
		}
	}

	for party, delta := range deltas {
		bt.parties[party].Current = bt.parties[party].Current.Add(delta)
	}
	return nil
}

// Get returns one party's balance.
func (bt *BalanceTable) Get(partyID int) (model.PartyBalance, bool) {
	bt.mu.RLock()
	defer bt.mu.RUnlock()

	if partyID < 0 || partyID >= len(bt.parties) {
		return model.PartyBalance{}, false
	}
	return bt.parties[partyID], true
}

// Snapshot returns a copy of all balances in party ID order.
func (bt *BalanceTable) Snapshot() []model.PartyBalance {
	bt.mu.RLock()
	defer bt.mu.RUnlock()

	out := make([]model.PartyBalance, len(bt.parties))
	copy(out, bt.parties)
	return out
}

// Size returns the pool size.
func (bt *BalanceTable) Size() int {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return len(bt.parties)
}
