package engine

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkarlin/vwap-settler/internal/assign"
	"github.com/mkarlin/vwap-settler/internal/model"
	"github.com/mkarlin/vwap-settler/internal/settle"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestEngine(t *testing.T, poolSize int, bt *BalanceTable) *Engine {
	t.Helper()
	asg, err := assign.New(poolSize, rand.NewPCG(1, 1))
	if err != nil {
		t.Fatalf("assign.New() error = %v", err)
	}
	cfg := Config{ProductID: "BTC-USD", Window: time.Hour, Currency: "USD"}
	return New(cfg, asg, bt, nil)
}

// preassigned builds a trade that already carries its counterparties, so
// scenario tests control the draw exactly.
func preassigned(id int64, price, size string, long, short int, at time.Time) model.Trade {
	return model.Trade{
		ID:        id,
		ProductID: "BTC-USD",
		Price:     dec(price),
		Size:      dec(size),
		Time:      at,
		LongParty: long, ShortParty: short,
	}
}

func unassigned(id int64, price, size string, at time.Time) model.Trade {
	return preassigned(id, price, size, model.PartyUnassigned, model.PartyUnassigned, at)
}

func TestEngine_EndToEndScenario(t *testing.T) {
	// Pool of 2, one trade: id=1, price=100, size=2, long=0, short=1,
	// current price 110. Party 0's VWAP is 100, net quantity 2, obligation
	// (100-110)*2 = -20: party 0 is owed 20. Balances start at 1000.
	bt := NewBalanceTable(2, dec("1000"))
	e := newTestEngine(t, 2, bt)

	res, err := e.RunCycle(
		[]model.Trade{preassigned(1, "100", "2", 0, 1, baseTime)},
		settle.Price(dec("110")),
		baseTime.Add(time.Minute),
	)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if res.Report == nil {
		t.Fatal("RunCycle() produced no report")
	}
	if len(res.NewTrades) != 1 {
		t.Fatalf("merged %d new trades, want 1", len(res.NewTrades))
	}

	obs := res.Report.Obligations()
	if !obs[0].Equal(dec("-20")) || !obs[1].Equal(dec("20")) {
		t.Fatalf("obligations = %s/%s, want -20/20", obs[0], obs[1])
	}

	b0, _ := bt.Get(0)
	b1, _ := bt.Get(1)
	if !b0.Current.Equal(dec("1020")) {
		t.Errorf("party 0 balance = %s, want 1020", b0.Current)
	}
	if !b1.Current.Equal(dec("980")) {
		t.Errorf("party 1 balance = %s, want 980", b1.Current)
	}
}

func TestEngine_SecondCycleDelta(t *testing.T) {
	// Continues the end-to-end scenario: trade 2 (price=120, size=1,
	// long=1, short=0) arrives and the price moves to 115. The reconciler
	// applies only the delta, and final balances must match a from-scratch
	// recomputation using only the final cumulative obligations.
	run := func(t *testing.T, twoCycles bool) *BalanceTable {
		bt := NewBalanceTable(2, dec("1000"))
		e := newTestEngine(t, 2, bt)

		batch1 := []model.Trade{preassigned(1, "100", "2", 0, 1, baseTime)}
		batch2 := []model.Trade{preassigned(2, "120", "1", 1, 0, baseTime.Add(time.Minute))}

		if twoCycles {
			if _, err := e.RunCycle(batch1, settle.Price(dec("110")), baseTime.Add(time.Minute)); err != nil {
				t.Fatalf("cycle 1 error = %v", err)
			}
			if _, err := e.RunCycle(batch2, settle.Price(dec("115")), baseTime.Add(2*time.Minute)); err != nil {
				t.Fatalf("cycle 2 error = %v", err)
			}
		} else {
			// From scratch: both trades in one cycle at the final price.
			if _, err := e.RunCycle(append(batch1, batch2...), settle.Price(dec("115")), baseTime.Add(2*time.Minute)); err != nil {
				t.Fatalf("single cycle error = %v", err)
			}
		}
		return bt
	}

	incremental := run(t, true)
	direct := run(t, false)

	for party := 0; party < 2; party++ {
		inc, _ := incremental.Get(party)
		dir, _ := direct.Get(party)
		if !inc.Current.Equal(dir.Current) {
			t.Errorf("party %d: incremental = %s, from-scratch = %s", party, inc.Current, dir.Current)
		}
	}

	// Cumulative cycle-2 obligations by hand: party 0 nets +2@VWAP100 and
	// -1@120 -> net quantity 1, notional 80, VWAP 80, obligation
	// (80-115)*1 = -35 -> balance 1035. Party 1 mirrors at 965.
	b0, _ := incremental.Get(0)
	if !b0.Current.Equal(dec("1035")) {
		t.Errorf("party 0 final = %s, want 1035", b0.Current)
	}
	b1, _ := incremental.Get(1)
	if !b1.Current.Equal(dec("965")) {
		t.Errorf("party 1 final = %s, want 965", b1.Current)
	}
}

func TestEngine_AssignmentStableAcrossCycles(t *testing.T) {
	bt := NewBalanceTable(10, dec("1000"))
	e := newTestEngine(t, 10, bt)

	batch := []model.Trade{unassigned(1, "100", "2", baseTime)}

	if _, err := e.RunCycle(batch, settle.Price(dec("110")), baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("cycle 1 error = %v", err)
	}

	first := e.Snapshot().Ledger.Snapshot()[0]
	if !first.Assigned() {
		t.Fatal("trade not assigned after first cycle")
	}

	// Same batch reappears (overlapping fetch window).
	if _, err := e.RunCycle(batch, settle.Price(dec("120")), baseTime.Add(2*time.Minute)); err != nil {
		t.Fatalf("cycle 2 error = %v", err)
	}

	second := e.Snapshot().Ledger.Snapshot()[0]
	if second.LongParty != first.LongParty || second.ShortParty != first.ShortParty {
		t.Errorf("assignment changed across cycles: %d/%d -> %d/%d",
			first.LongParty, first.ShortParty, second.LongParty, second.ShortParty)
	}
	if e.LedgerLen() != 1 {
		t.Errorf("ledger grew to %d on re-merge, want 1", e.LedgerLen())
	}
}

func TestEngine_FailedSettlementLeavesStateUntouched(t *testing.T) {
	bt := NewBalanceTable(2, dec("1000"))
	e := newTestEngine(t, 2, bt)

	if _, err := e.RunCycle(
		[]model.Trade{preassigned(1, "100", "2", 0, 1, baseTime)},
		settle.Price(dec("110")),
		baseTime.Add(time.Minute),
	); err != nil {
		t.Fatalf("cycle 1 error = %v", err)
	}

	// Cycle 2: price fetch failed while exposure exists. The cycle fails,
	// balances stay put, and the previous settlement pointer is retained.
	_, err := e.RunCycle(nil, settle.NoPrice(), baseTime.Add(2*time.Minute))
	var scErr *settle.SettlementComputationError
	if !errors.As(err, &scErr) {
		t.Fatalf("cycle 2 error = %v, want SettlementComputationError", err)
	}

	b0, _ := bt.Get(0)
	if !b0.Current.Equal(dec("1020")) {
		t.Errorf("party 0 balance moved to %s during failed cycle, want 1020", b0.Current)
	}

	// Cycle 3 retries with a price; it must delta against cycle 1's
	// obligations, not recharge from scratch.
	if _, err := e.RunCycle(nil, settle.Price(dec("110")), baseTime.Add(3*time.Minute)); err != nil {
		t.Fatalf("cycle 3 error = %v", err)
	}
	b0, _ = bt.Get(0)
	if !b0.Current.Equal(dec("1020")) {
		t.Errorf("party 0 balance = %s after identical re-settlement, want 1020", b0.Current)
	}
}

func TestEngine_PositionAgingOutUnwindsCharge(t *testing.T) {
	bt := NewBalanceTable(2, dec("1000"))
	e := newTestEngine(t, 2, bt)

	if _, err := e.RunCycle(
		[]model.Trade{preassigned(1, "100", "2", 0, 1, baseTime)},
		settle.Price(dec("110")),
		baseTime.Add(time.Minute),
	); err != nil {
		t.Fatalf("cycle 1 error = %v", err)
	}

	// Two hours later the trade is outside the window: everyone is flat and
	// the earlier provisional charges unwind to the starting balances.
	if _, err := e.RunCycle(nil, settle.Price(dec("140")), baseTime.Add(2*time.Hour)); err != nil {
		t.Fatalf("cycle 2 error = %v", err)
	}

	for party := 0; party < 2; party++ {
		b, _ := bt.Get(party)
		if !b.Current.Equal(dec("1000")) {
			t.Errorf("party %d balance = %s after position aged out, want 1000", party, b.Current)
		}
	}
}

func TestEngine_MergeConflictRejectsRowOnly(t *testing.T) {
	bt := NewBalanceTable(2, dec("1000"))
	e := newTestEngine(t, 2, bt)

	if _, err := e.RunCycle(
		[]model.Trade{preassigned(1, "100", "2", 0, 1, baseTime)},
		settle.Price(dec("110")),
		baseTime.Add(time.Minute),
	); err != nil {
		t.Fatalf("cycle 1 error = %v", err)
	}

	// The feed re-sends trade 1 with a different price. The row is rejected
	// but the cycle still settles.
	res, err := e.RunCycle(
		[]model.Trade{unassigned(1, "555", "2", baseTime)},
		settle.Price(dec("110")),
		baseTime.Add(2*time.Minute),
	)
	if err != nil {
		t.Fatalf("cycle 2 error = %v", err)
	}
	if res.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", res.Rejected)
	}
	if res.Report == nil {
		t.Error("conflict aborted the whole cycle")
	}

	kept := e.Snapshot().Ledger.Snapshot()[0]
	if !kept.Price.Equal(dec("100")) {
		t.Errorf("ledger price mutated to %s", kept.Price)
	}
}

func TestEngine_SnapshotRestore(t *testing.T) {
	bt := NewBalanceTable(2, dec("1000"))
	e := newTestEngine(t, 2, bt)

	if _, err := e.RunCycle(
		[]model.Trade{preassigned(1, "100", "2", 0, 1, baseTime)},
		settle.Price(dec("110")),
		baseTime.Add(time.Minute),
	); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	data, err := json.Marshal(e.Snapshot())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	restored := newTestEngine(t, 2, bt)
	if err := restored.Restore(data); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	if restored.LedgerLen() != 1 {
		t.Fatalf("restored ledger has %d trades, want 1", restored.LedgerLen())
	}

	// The restored engine must delta against the restored previous
	// settlement: an identical re-settlement applies a zero delta.
	if _, err := restored.RunCycle(nil, settle.Price(dec("110")), baseTime.Add(2*time.Minute)); err != nil {
		t.Fatalf("post-restore cycle error = %v", err)
	}
	b0, _ := bt.Get(0)
	if !b0.Current.Equal(dec("1020")) {
		t.Errorf("party 0 balance = %s after restored re-settlement, want 1020", b0.Current)
	}
}

func TestEngine_EmptyCycleIsNoOp(t *testing.T) {
	bt := NewBalanceTable(2, dec("1000"))
	e := newTestEngine(t, 2, bt)

	res, err := e.RunCycle(nil, settle.NoPrice(), baseTime)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if !res.Skipped {
		t.Error("empty cycle not marked skipped")
	}
	if res.Report != nil {
		t.Error("empty cycle produced a report")
	}
}
