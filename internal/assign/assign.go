package assign

import (
	"fmt"
	"math/rand/v2"

	"github.com/mkarlin/vwap-settler/internal/model"
)

// Assignor draws synthetic counterparties for newly merged trades from a
// fixed pool of party IDs [0, poolSize).
type Assignor struct {
	poolSize int
	rng      *rand.Rand
}

// New creates an Assignor over a pool of the given size. A nil source seeds
// from process entropy; tests pass an explicit source for deterministic
// draws.
func New(poolSize int, src rand.Source) (*Assignor, error) {
	if poolSize < 2 {
		return nil, fmt.Errorf("pool size must be >= 2, got %d", poolSize)
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Assignor{
		poolSize: poolSize,
		rng:      rand.New(src),
	}, nil
}

// PoolSize returns the size of the counterparty pool.
func (a *Assignor) PoolSize() int { return a.poolSize }

// Assign draws a long and short party for every unassigned trade in rows and
// returns the assigned copies. Rows already carrying an assignment pass
// through unchanged; draws are independent per trade, uniform, and without
// replacement so no trade ever has the same party on both sides.
func (a *Assignor) Assign(rows []model.Trade) []model.Trade {
	out := make([]model.Trade, len(rows))
	for i, t := range rows {
		if !t.Assigned() {
			t.LongParty, t.ShortParty = a.drawPair()
		}
		out[i] = t
	}
	return out
}

// drawPair picks two distinct parties uniformly at random.
func (a *Assignor) drawPair() (long, short int) {
	long = a.rng.IntN(a.poolSize)
	short = a.rng.IntN(a.poolSize - 1)
	if short >= long {
		short++
	}
	return long, short
}
