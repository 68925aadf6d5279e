package settle

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkarlin/vwap-settler/internal/ledger"
	"github.com/mkarlin/vwap-settler/internal/model"
)

var (
	testNow    = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	testWindow = time.Hour
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ledgerWith(t *testing.T, trades ...model.Trade) *ledger.Ledger {
	t.Helper()
	l := ledger.New("BTC-USD")
	for i := range trades {
		trades[i].ProductID = "BTC-USD"
	}
	if _, err := l.Merge(trades); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	return l
}

func trade(id int64, price, size string, long, short int, at time.Time) model.Trade {
	return model.Trade{
		ID:         id,
		Price:      dec(price),
		Size:       dec(size),
		Time:       at,
		LongParty:  long,
		ShortParty: short,
	}
}

func findRecord(t *testing.T, recs []model.SettlementRecord, party int) model.SettlementRecord {
	t.Helper()
	for _, r := range recs {
		if r.PartyID == party {
			return r
		}
	}
	t.Fatalf("no record for party %d in %+v", party, recs)
	return model.SettlementRecord{}
}

func TestCompute_SingleTradeVWAP(t *testing.T) {
	l := ledgerWith(t, trade(1, "100", "2", 0, 1, testNow.Add(-time.Minute)))

	recs, err := Compute(l, testNow, testWindow, Price(dec("110")), "USD")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Compute() returned %d records, want 2", len(recs))
	}

	long := findRecord(t, recs, 0)
	if !long.VWAP.Equal(dec("100")) {
		t.Errorf("long VWAP = %s, want 100", long.VWAP)
	}
	if !long.NetQuantity.Equal(dec("2")) {
		t.Errorf("long net quantity = %s, want 2", long.NetQuantity)
	}
	// (100 - 110) * 2 = -20: party 0 is owed 20.
	if !long.Obligation.Equal(dec("-20")) {
		t.Errorf("long obligation = %s, want -20", long.Obligation)
	}

	short := findRecord(t, recs, 1)
	if !short.Obligation.Equal(dec("20")) {
		t.Errorf("short obligation = %s, want 20", short.Obligation)
	}
	if !short.NetQuantity.Equal(dec("-2")) {
		t.Errorf("short net quantity = %s, want -2", short.NetQuantity)
	}
}

func TestCompute_PerPartyVWAP(t *testing.T) {
	// Party 0 long 1@100 and 1@120: its own VWAP is 110. Party 1 is short
	// only the first trade, party 2 short only the second; their settlement
	// references differ from party 0's.
	l := ledgerWith(t,
		trade(1, "100", "1", 0, 1, testNow.Add(-time.Minute)),
		trade(2, "120", "1", 0, 2, testNow.Add(-time.Minute)),
	)

	recs, err := Compute(l, testNow, testWindow, Price(dec("115")), "USD")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	p0 := findRecord(t, recs, 0)
	if !p0.VWAP.Equal(dec("110")) {
		t.Errorf("party 0 VWAP = %s, want 110", p0.VWAP)
	}
	if !p0.Obligation.Equal(dec("-10")) { // (110-115)*2
		t.Errorf("party 0 obligation = %s, want -10", p0.Obligation)
	}

	p1 := findRecord(t, recs, 1)
	if !p1.VWAP.Equal(dec("100")) {
		t.Errorf("party 1 VWAP = %s, want 100", p1.VWAP)
	}
	if !p1.Obligation.Equal(dec("15")) { // (100-115)*(-1)
		t.Errorf("party 1 obligation = %s, want 15", p1.Obligation)
	}

	p2 := findRecord(t, recs, 2)
	if !p2.Obligation.Equal(dec("-5")) { // (120-115)*(-1)
		t.Errorf("party 2 obligation = %s, want -5", p2.Obligation)
	}
}

func TestCompute_DegenerateZeroCharge(t *testing.T) {
	// Party 0 is long 3 and short 3 within the window: fully flat. The
	// obligation must be exactly zero regardless of price, with no division
	// performed.
	l := ledgerWith(t,
		trade(1, "100", "3", 0, 1, testNow.Add(-time.Minute)),
		trade(2, "250", "3", 1, 0, testNow.Add(-2*time.Minute)),
	)

	recs, err := Compute(l, testNow, testWindow, Price(dec("999999")), "USD")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	for _, party := range []int{0, 1} {
		rec := findRecord(t, recs, party)
		if !rec.Degenerate {
			t.Errorf("party %d not flagged degenerate", party)
		}
		if !rec.Obligation.IsZero() {
			t.Errorf("party %d obligation = %s, want 0", party, rec.Obligation)
		}
		if !rec.NetQuantity.IsZero() {
			t.Errorf("party %d net quantity = %s, want 0", party, rec.NetQuantity)
		}
	}
}

func TestCompute_MissingPrice(t *testing.T) {
	l := ledgerWith(t, trade(1, "100", "2", 0, 1, testNow.Add(-time.Minute)))

	recs, err := Compute(l, testNow, testWindow, NoPrice(), "USD")

	var scErr *SettlementComputationError
	if !errors.As(err, &scErr) {
		t.Fatalf("Compute() error = %v, want SettlementComputationError", err)
	}
	if scErr.Exposed != 2 {
		t.Errorf("Exposed = %d, want 2", scErr.Exposed)
	}
	if recs != nil {
		t.Errorf("Compute() produced %d records on error, want none", len(recs))
	}
}

func TestCompute_MissingPriceAllFlat(t *testing.T) {
	// Every touched party is flat: a missing price is not an error because
	// nobody has price exposure.
	l := ledgerWith(t,
		trade(1, "100", "1", 0, 1, testNow.Add(-time.Minute)),
		trade(2, "200", "1", 1, 0, testNow.Add(-time.Minute)),
	)

	recs, err := Compute(l, testNow, testWindow, NoPrice(), "USD")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	for _, rec := range recs {
		if !rec.Degenerate || !rec.Obligation.IsZero() {
			t.Errorf("party %d: degenerate = %v obligation = %s", rec.PartyID, rec.Degenerate, rec.Obligation)
		}
	}
}

func TestCompute_EmptyWindow(t *testing.T) {
	l := ledgerWith(t, trade(1, "100", "2", 0, 1, testNow.Add(-2*testWindow)))

	recs, err := Compute(l, testNow, testWindow, Price(dec("110")), "USD")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if recs != nil {
		t.Errorf("Compute() on empty window returned %d records, want none", len(recs))
	}
}

func TestCompute_SkipsUnassignedRows(t *testing.T) {
	l := ledgerWith(t,
		trade(1, "100", "2", 0, 1, testNow.Add(-time.Minute)),
		trade(2, "100", "9", model.PartyUnassigned, model.PartyUnassigned, testNow.Add(-time.Minute)),
	)

	recs, err := Compute(l, testNow, testWindow, Price(dec("110")), "USD")
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Compute() returned %d records, want 2", len(recs))
	}
	long := findRecord(t, recs, 0)
	if !long.NetQuantity.Equal(dec("2")) {
		t.Errorf("unassigned row leaked into exposure: net quantity = %s", long.NetQuantity)
	}
}
