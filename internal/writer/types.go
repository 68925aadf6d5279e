package writer

import (
	"time"

	"github.com/mkarlin/vwap-settler/internal/model"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: 1 * time.Second,
	}
}

// SettlementEnvelope carries one completed cycle for persistence: the
// settlement report plus the party balances after the deltas were applied.
type SettlementEnvelope struct {
	Report   model.SettlementReport
	Balances []model.PartyBalance
}

// tradeRow represents a row to be inserted into the trades table.
type tradeRow struct {
	TradeID    int64
	ProductID  string
	Price      string // NUMERIC as decimal string
	Size       string
	TradeTime  time.Time
	LongParty  int
	ShortParty int
	ReceivedAt time.Time
}

// settlementRow represents one party's line in the settlements table.
type settlementRow struct {
	CycleID      string // UUID
	ProductID    string
	ComputedAt   time.Time
	PartyID      int
	VWAP         string
	NetQuantity  string
	CurrentPrice string
	Obligation   string
	Currency     string
	Degenerate   bool
}

// balanceRow represents one party's line in the balance_snapshots table.
type balanceRow struct {
	CycleID string
	TakenAt time.Time
	PartyID int
	Balance string
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}
