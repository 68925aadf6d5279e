package engine

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mkarlin/vwap-settler/internal/assign"
	"github.com/mkarlin/vwap-settler/internal/ledger"
	"github.com/mkarlin/vwap-settler/internal/model"
	"github.com/mkarlin/vwap-settler/internal/settle"
)

// Config holds per-product engine settings.
type Config struct {
	ProductID string
	Window    time.Duration // Trailing settlement window
	Currency  string
}

// Engine runs the incremental settlement cycle for one product: merge the
// new batch into the ledger, assign counterparties to genuinely new rows,
// recompute windowed settlements, and reconcile balance deltas. All state is
// explicit; nothing lives in package globals.
//
// An Engine is driven from a single loop and is not safe for concurrent
// RunCycle calls. Cross-product coordination happens only through the shared
// BalanceTable, which serializes its own mutation.
type Engine struct {
	cfg      Config
	ledger   *ledger.Ledger
	assignor *assign.Assignor
	balances *BalanceTable
	logger   *slog.Logger

	// prev is the last successfully applied settlement. It advances only
	// when a cycle's deltas have actually reached the balance table, which
	// is what keeps the telescoping sum intact across failed cycles.
	prev []model.SettlementRecord
}

// CycleResult summarizes one completed cycle.
type CycleResult struct {
	Report    *model.SettlementReport
	NewTrades []model.Trade // Rows merged and assigned this cycle
	Fetched   int           // Incoming batch size
	Rejected  int           // Rows rejected by merge conflicts
	Skipped   bool          // Settlement step skipped (no windowed exposure)
}

// New creates an engine for one product.
func New(cfg Config, assignor *assign.Assignor, balances *BalanceTable, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		ledger:   ledger.New(cfg.ProductID),
		assignor: assignor,
		balances: balances,
		logger:   logger.With("product", cfg.ProductID),
	}
}

// ProductID returns the product this engine settles.
func (e *Engine) ProductID() string { return e.cfg.ProductID }

// LedgerLen returns the current ledger size.
func (e *Engine) LedgerLen() int { return e.ledger.Len() }

// RunCycle executes one settlement cycle over the supplied raw batch and
// current price. The sequence merge -> assign -> compute -> reconcile runs
// to completion; on a settlement failure the balances and the previous
// settlement pointer are left exactly as they were, so the next cycle
// retries against fresh data without ever half-applying a delta.
//
// Merge conflicts reject only the offending rows: they are surfaced in the
// result and logged, and the cycle continues with the clean remainder.
func (e *Engine) RunCycle(raw []model.Trade, price settle.CurrentPrice, now time.Time) (*CycleResult, error) {
	res := &CycleResult{Fetched: len(raw)}

	added, mergeErr := e.ledger.Merge(raw)
	if mergeErr != nil {
		res.Rejected = len(raw) - len(added) - e.passedThrough(raw, added)
		e.logger.Warn("merge rejected conflicting rows", "err", mergeErr)
	}

	assigned := e.assignor.Assign(added)
	for _, t := range assigned {
		if existing, ok := e.ledger.Get(t.ID); ok && existing.Assigned() {
			// The batch carried a pre-assigned row; the ledger already holds it.
			continue
		}
		if err := e.ledger.SetParties(t.ID, t.LongParty, t.ShortParty); err != nil {
			// Cannot happen for rows Merge just added; a failure here means
			// the ledger and engine disagree about ownership.
			return nil, err
		}
	}
	res.NewTrades = assigned

	records, err := settle.Compute(e.ledger, now, e.cfg.Window, price, e.cfg.Currency)
	if err != nil {
		return res, err
	}

	if records == nil && e.prev == nil {
		// Nothing in the window and nothing outstanding: a no-op cycle.
		res.Skipped = true
		return res, nil
	}

	deltas := settle.Deltas(records, e.prev)
	if err := e.balances.Apply(deltas); err != nil {
		return res, err
	}
	e.prev = records

	res.Report = &model.SettlementReport{
		CycleID:      uuid.New(),
		ProductID:    e.cfg.ProductID,
		ComputedAt:   now,
		CurrentPrice: price.Value,
		Records:      records,
	}

	e.logger.Debug("cycle settled",
		"fetched", res.Fetched,
		"merged", len(res.NewTrades),
		"parties", len(records),
		"ledger", e.ledger.Len(),
	)

	return res, nil
}

// passedThrough counts batch rows that were already in the ledger without
// conflict, so Rejected reflects only genuinely rejected rows.
func (e *Engine) passedThrough(raw, added []model.Trade) int {
	newIDs := make(map[int64]bool, len(added))
	for _, t := range added {
		newIDs[t.ID] = true
	}

	clean := 0
	for _, t := range raw {
		if newIDs[t.ID] {
			continue
		}
		if existing, ok := e.ledger.Get(t.ID); ok {
			if existing.Price.Equal(t.Price) && existing.Size.Equal(t.Size) && existing.Time.Equal(t.Time) {
				clean++
			}
		}
	}
	return clean
}

// Snapshot is the serializable engine state for one product.
type Snapshot struct {
	ProductID       string                   `json:"product_id"`
	Ledger          *ledger.Ledger           `json:"ledger"`
	LastSettlements []model.SettlementRecord `json:"last_settlements,omitempty"`
}

// Snapshot captures the engine's persistent state. Together with the balance
// table it is everything needed to resume settling after a restart.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		ProductID:       e.cfg.ProductID,
		Ledger:          e.ledger,
		LastSettlements: e.prev,
	}
}

// Restore replaces the engine state with a previously captured snapshot.
func (e *Engine) Restore(data []byte) error {
	var s Snapshot
	s.Ledger = ledger.New(e.cfg.ProductID)
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	e.ledger = s.Ledger
	e.prev = s.LastSettlements
	return nil
}
