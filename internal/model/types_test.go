package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestTrade_Assigned(t *testing.T) {
	tr := Trade{LongParty: PartyUnassigned, ShortParty: PartyUnassigned}
	if tr.Assigned() {
		t.Error("Assigned() = true for unassigned trade")
	}

	tr.LongParty = 3
	if tr.Assigned() {
		t.Error("Assigned() = true with only the long side set")
	}

	tr.ShortParty = 7
	if !tr.Assigned() {
		t.Error("Assigned() = false with both sides set")
	}
}

func TestTrade_Notional(t *testing.T) {
	tr := Trade{
		Price: decimal.RequireFromString("100.5"),
		Size:  decimal.RequireFromString("2"),
	}

	want := decimal.RequireFromString("201")
	if !tr.Notional().Equal(want) {
		t.Errorf("Notional() = %s, want %s", tr.Notional(), want)
	}
}

func TestTrade_JSONRoundTrip(t *testing.T) {
	orig := Trade{
		ID:         42,
		ProductID:  "BTC-USD",
		Price:      decimal.RequireFromString("30123.45"),
		Size:       decimal.RequireFromString("0.0025"),
		Time:       time.Date(2024, 3, 1, 12, 30, 15, 0, time.UTC),
		LongParty:  2,
		ShortParty: 5,
		ReceivedAt: time.Date(2024, 3, 1, 12, 30, 16, 0, time.UTC),
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got Trade
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if got.ID != orig.ID || got.ProductID != orig.ProductID {
		t.Errorf("round trip changed identity: got %+v", got)
	}
	if !got.Price.Equal(orig.Price) || !got.Size.Equal(orig.Size) {
		t.Errorf("round trip changed price/size: got %s/%s", got.Price, got.Size)
	}
	if !got.Time.Equal(orig.Time) {
		t.Errorf("round trip changed time: got %s, want %s", got.Time, orig.Time)
	}
	if got.LongParty != 2 || got.ShortParty != 5 {
		t.Errorf("round trip changed parties: got %d/%d", got.LongParty, got.ShortParty)
	}
}

func TestSettlementReport_Obligations(t *testing.T) {
	report := SettlementReport{
		CycleID:    uuid.New(),
		ProductID:  "ETH-USD",
		ComputedAt: time.Now().UTC(),
		Records: []SettlementRecord{
			{PartyID: 0, Obligation: decimal.RequireFromString("-20")},
			{PartyID: 1, Obligation: decimal.RequireFromString("20")},
		},
	}

	obs := report.Obligations()
	if len(obs) != 2 {
		t.Fatalf("Obligations() returned %d entries, want 2", len(obs))
	}
	if !obs[0].Equal(decimal.RequireFromString("-20")) {
		t.Errorf("party 0 obligation = %s, want -20", obs[0])
	}
	if !obs[1].Equal(decimal.RequireFromString("20")) {
		t.Errorf("party 1 obligation = %s, want 20", obs[1])
	}
}
