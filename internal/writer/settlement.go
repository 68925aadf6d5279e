package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkarlin/vwap-settler/internal/stream"
)

// SettlementWriter consumes settlement envelopes and writes to the
// settlements and balance_snapshots tables.
type SettlementWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from the settlement poller
	input *stream.Ring[SettlementEnvelope]

	// Database
	db *pgxpool.Pool

	// Batching (separate batches for settlements and balances)
	settlementBatch []settlementRow
	balanceBatch    []balanceRow
	batchMu         sync.Mutex
	flushTicker     *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics SettlementWriterMetrics
}

// SettlementWriterMetrics extends WriterMetrics with a settlement/balance breakdown.
type SettlementWriterMetrics struct {
	SettlementInserts int64
	BalanceInserts    int64
	Conflicts         int64
	Errors            int64
	Flushes           int64
}

// NewSettlementWriter creates a new SettlementWriter.
func NewSettlementWriter(
	cfg WriterConfig,
	input *stream.Ring[SettlementEnvelope],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *SettlementWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettlementWriter{
		cfg:             cfg,
		input:           input,
		db:              db,
		logger:          logger,
		settlementBatch: make([]settlementRow, 0, cfg.BatchSize),
		balanceBatch:    make([]balanceRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming envelopes and writing to the database.
func (w *SettlementWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("settlement writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *SettlementWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping settlement writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("settlement writer stopped")
	case <-ctx.Done():
		w.logger.Warn("settlement writer stop timed out")
	}

	// Final drain and flush
	for _, env := range w.input.Drain() {
		w.handleEnvelope(env)
	}
	w.flush()

	return nil
}

// Stats returns current metrics.
func (w *SettlementWriter) Stats() SettlementWriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *SettlementWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			envs := w.input.Drain()
			if len(envs) == 0 {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			for _, env := range envs {
				w.handleEnvelope(env)
			}
		}
	}
}

func (w *SettlementWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// handleEnvelope expands one cycle into settlement and balance rows.
func (w *SettlementWriter) handleEnvelope(env SettlementEnvelope) {
	settlements, balances := w.transform(env)

	w.batchMu.Lock()
	w.settlementBatch = append(w.settlementBatch, settlements...)
	w.balanceBatch = append(w.balanceBatch, balances...)
	shouldFlush := len(w.settlementBatch) >= w.cfg.BatchSize || len(w.balanceBatch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts an envelope to per-party rows.
func (w *SettlementWriter) transform(env SettlementEnvelope) ([]settlementRow, []balanceRow) {
	r := env.Report
	cycleID := r.CycleID.String()

	settlements := make([]settlementRow, 0, len(r.Records))
	for _, rec := range r.Records {
		settlements = append(settlements, settlementRow{
			CycleID:      cycleID,
			ProductID:    r.ProductID,
			ComputedAt:   r.ComputedAt,
			PartyID:      rec.PartyID,
			VWAP:         rec.VWAP.String(),
			NetQuantity:  rec.NetQuantity.String(),
			CurrentPrice: rec.CurrentPrice.String(),
			Obligation:   rec.Obligation.String(),
			Currency:     rec.Currency,
			Degenerate:   rec.Degenerate,
		})
	}

	balances := make([]balanceRow, 0, len(env.Balances))
	for _, b := range env.Balances {
		balances = append(balances, balanceRow{
			CycleID: cycleID,
			TakenAt: r.ComputedAt,
			PartyID: b.PartyID,
			Balance: b.Current.String(),
		})
	}

	return settlements, balances
}

// flush writes the current batches to the database.
func (w *SettlementWriter) flush() {
	w.batchMu.Lock()
	if len(w.settlementBatch) == 0 && len(w.balanceBatch) == 0 {
		w.batchMu.Unlock()
		return
	}

	settlements := w.settlementBatch
	balances := w.balanceBatch
	w.settlementBatch = make([]settlementRow, 0, w.cfg.BatchSize)
	w.balanceBatch = make([]balanceRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(settlements, balances)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err,
			"settlements", len(settlements), "balances", len(balances))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.SettlementInserts += int64(len(settlements))
	w.metrics.BalanceInserts += int64(len(balances))
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed settlements",
		"settlements", len(settlements),
		"balances", len(balances),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts both row kinds in a single pgx.Batch round trip.
func (w *SettlementWriter) batchInsert(settlements []settlementRow, balances []balanceRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range settlements {
		batch.Queue(`
			INSERT INTO settlements (cycle_id, product_id, computed_at, party_id, vwap, net_quantity, current_price, obligation, currency, degenerate)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (cycle_id, party_id) DO NOTHING
		`, r.CycleID, r.ProductID, r.ComputedAt, r.PartyID, r.VWAP, r.NetQuantity, r.CurrentPrice, r.Obligation, r.Currency, r.Degenerate)
	}
	for _, r := range balances {
		batch.Queue(`
			INSERT INTO balance_snapshots (cycle_id, taken_at, party_id, balance)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (cycle_id, party_id) DO NOTHING
		`, r.CycleID, r.TakenAt, r.PartyID, r.Balance)
	}

	results := w.db.SendBatch(w.ctx, batch)
	defer results.Close()

	total := len(settlements) + len(balances)
	for i := 0; i < total; i++ {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
