package poller

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkarlin/vwap-settler/internal/engine"
	"github.com/mkarlin/vwap-settler/internal/metrics"
	"github.com/mkarlin/vwap-settler/internal/model"
	"github.com/mkarlin/vwap-settler/internal/settle"
	"github.com/mkarlin/vwap-settler/internal/stream"
	"github.com/mkarlin/vwap-settler/internal/writer"
)

// TradeSource provides trade history and prices for a product.
type TradeSource interface {
	GetTrades(ctx context.Context, productID string, limit int) ([]model.Trade, int, error)
	GetCurrentPrice(ctx context.Context, productID string) (decimal.Decimal, error)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Cycle interval (default: 30s)
	Concurrency int           // Max concurrent product cycles (default: 4)
	Timeout     time.Duration // Per-request timeout (default: 10s)
	FetchLimit  int           // Max trades per REST fetch (default: 1000)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Concurrency: 4,
		Timeout:     10 * time.Second,
		FetchLimit:  1000,
	}
}

// Outputs are the optional downstream rings fed after each settled cycle.
// A nil ring disables that output.
type Outputs struct {
	Trades      *stream.Ring[model.Trade]
	Settlements *stream.Ring[writer.SettlementEnvelope]
}

// Poller drives periodic settlement cycles for all configured products.
//
// Each tick it fetches recent trades and the current price over REST, folds
// in any trades buffered from the websocket stream, and hands the batch to
// the product's engine. Product cycles within a tick run concurrently under
// a semaphore; ticks never overlap.
type Poller struct {
	cfg      Config
	source   TradeSource
	engines  []*engine.Engine
	balances *engine.BalanceTable
	live     *stream.Ring[model.Trade] // nil when streaming is disabled
	outputs  Outputs
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(
	cfg Config,
	source TradeSource,
	engines []*engine.Engine,
	balances *engine.BalanceTable,
	live *stream.Ring[model.Trade],
	outputs Outputs,
	logger *slog.Logger,
) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:      cfg,
		source:   source,
		engines:  engines,
		balances: balances,
		live:     live,
		outputs:  outputs,
		logger:   logger,
	}
}

// Start begins the settlement loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("settlement poller started",
		"interval", p.cfg.Interval,
		"products", len(p.engines),
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("settlement poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main settlement loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Settle immediately on start.
	p.cycleAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.cycleAll()
		}
	}
}

// cycleAll runs one settlement cycle per product concurrently.
func (p *Poller) cycleAll() {
	start := time.Now()

	// Drain the live stream once per tick and split by product, so every
	// engine sees only its own rows.
	liveByProduct := p.drainLive()

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, eng := range p.engines {
		wg.Add(1)
		go func(eng *engine.Engine) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			p.cycleProduct(eng, liveByProduct[eng.ProductID()])
		}(eng)
	}

	wg.Wait()

	p.logger.Info("settlement tick complete",
		"products", len(p.engines),
		"duration", time.Since(start),
	)
}

// drainLive empties the websocket buffer and groups trades by product.
func (p *Poller) drainLive() map[string][]model.Trade {
	if p.live == nil {
		return nil
	}

	byProduct := make(map[string][]model.Trade)
	for _, t := range p.live.Drain() {
		byProduct[t.ProductID] = append(byProduct[t.ProductID], t)
		metrics.TradesFetched.WithLabelValues(t.ProductID, "stream").Inc()
	}
	return byProduct
}

// cycleProduct fetches fresh data and settles a single product.
func (p *Poller) cycleProduct(eng *engine.Engine, live []model.Trade) {
	productID := eng.ProductID()
	start := time.Now()

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	batch := live

	trades, dropped, err := p.source.GetTrades(ctx, productID, p.cfg.FetchLimit)
	if err != nil {
		// A failed fetch is not fatal: settle against what we already have.
		p.logger.Warn("trade fetch failed, no new data",
			"product", productID,
			"err", err,
		)
	} else {
		batch = append(batch, trades...)
		metrics.TradesFetched.WithLabelValues(productID, "rest").Add(float64(len(trades)))
		metrics.ParseErrors.WithLabelValues(productID).Add(float64(dropped))
	}

	price := settle.NoPrice()
	if v, err := p.source.GetCurrentPrice(ctx, productID); err != nil {
		p.logger.Warn("price fetch failed",
			"product", productID,
			"err", err,
		)
	} else {
		price = settle.Price(v)
	}

	res, err := eng.RunCycle(batch, price, time.Now().UTC())
	metrics.CycleDuration.WithLabelValues(productID).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.CyclesTotal.WithLabelValues(productID, "failed").Inc()
		p.logger.Error("settlement cycle failed",
			"product", productID,
			"err", err,
		)
		return
	}

	metrics.TradesMerged.WithLabelValues(productID).Add(float64(len(res.NewTrades)))
	metrics.TradesRejected.WithLabelValues(productID).Add(float64(res.Rejected))

	if p.outputs.Trades != nil {
		for _, t := range res.NewTrades {
			p.outputs.Trades.Push(t)
		}
	}

	if res.Skipped {
		metrics.CyclesTotal.WithLabelValues(productID, "skipped").Inc()
		return
	}
	metrics.CyclesTotal.WithLabelValues(productID, "settled").Inc()

	if res.Report != nil {
		p.publishReport(*res.Report)
	}
}

// publishReport updates gauges and hands the cycle to the settlement writer.
func (p *Poller) publishReport(report model.SettlementReport) {
	for _, rec := range report.Records {
		metrics.PartyObligation.
			WithLabelValues(report.ProductID, strconv.Itoa(rec.PartyID)).
			Set(rec.Obligation.InexactFloat64())
	}

	balances := p.balances.Snapshot()
	for _, b := range balances {
		metrics.PartyBalance.
			WithLabelValues(strconv.Itoa(b.PartyID)).
			Set(b.Current.InexactFloat64())
	}

	if p.outputs.Settlements != nil {
		p.outputs.Settlements.Push(writer.SettlementEnvelope{
			Report:   report,
			Balances: balances,
		})
	}
}
