package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkarlin/vwap-settler/internal/assign"
	"github.com/mkarlin/vwap-settler/internal/config"
	"github.com/mkarlin/vwap-settler/internal/database"
	"github.com/mkarlin/vwap-settler/internal/engine"
	"github.com/mkarlin/vwap-settler/internal/feed"
	"github.com/mkarlin/vwap-settler/internal/metrics"
	"github.com/mkarlin/vwap-settler/internal/model"
	"github.com/mkarlin/vwap-settler/internal/poller"
	"github.com/mkarlin/vwap-settler/internal/stream"
	"github.com/mkarlin/vwap-settler/internal/version"
	"github.com/mkarlin/vwap-settler/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/settler.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting settler",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"products", cfg.Engine.Products,
		"window", cfg.Engine.Window,
		"interval", cfg.Engine.Interval,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database when persistence is enabled
	var pool *pgxpool.Pool
	if cfg.Writers.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"port", cfg.Database.Postgres.Port,
			"database", cfg.Database.Postgres.Name,
		)

		pool, err = database.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}

		logger.Info("database connected")
	}

	// Create feed client
	feedClient := feed.NewClient(
		cfg.Feed.RestURL,
		feed.WithLogger(logger),
		feed.WithTimeout(cfg.Feed.Timeout),
		feed.WithRetries(cfg.Feed.MaxRetries, time.Second),
	)

	// Shared balance table and per-product engines
	balances := engine.NewBalanceTable(cfg.Engine.PoolSize, cfg.Engine.InitialBalanceDecimal())

	assignor, err := assign.New(cfg.Engine.PoolSize, nil)
	if err != nil {
		logger.Error("failed to create assignor", "error", err)
		os.Exit(1)
	}

	engines := make([]*engine.Engine, 0, len(cfg.Engine.Products))
	for _, product := range cfg.Engine.Products {
		engines = append(engines, engine.New(engine.Config{
			ProductID: product,
			Window:    cfg.Engine.Window,
			Currency:  cfg.Engine.Currency,
		}, assignor, balances, logger))
	}

	// Optional websocket match stream
	var liveRing *stream.Ring[model.Trade]
	if cfg.Feed.Stream {
		liveRing = stream.NewRing[model.Trade](cfg.Writers.BufferSize)
		matchStream := feed.NewStream(feed.StreamConfig{
			URL:        cfg.Feed.WSURL,
			ProductIDs: cfg.Engine.Products,
		}, liveRing, logger)

		if err := matchStream.Connect(ctx); err != nil {
			logger.Error("failed to connect match stream", "error", err)
			os.Exit(1)
		}
		defer matchStream.Close()
		metrics.StreamConnected.Set(1)

		go func() {
			for err := range matchStream.Errors() {
				metrics.StreamConnected.Set(0)
				logger.Warn("match stream error", "error", err)
			}
		}()
	}

	// Batch writers
	var outputs poller.Outputs
	var tradeWriter *writer.TradeWriter
	var settlementWriter *writer.SettlementWriter
	if cfg.Writers.Enabled {
		writerCfg := writer.WriterConfig{
			BatchSize:     cfg.Writers.BatchSize,
			FlushInterval: cfg.Writers.FlushInterval,
		}

		outputs.Trades = stream.NewRing[model.Trade](cfg.Writers.BufferSize)
		outputs.Settlements = stream.NewRing[writer.SettlementEnvelope](cfg.Writers.BufferSize)

		tradeWriter = writer.NewTradeWriter(writerCfg, outputs.Trades, pool, logger)
		settlementWriter = writer.NewSettlementWriter(writerCfg, outputs.Settlements, pool, logger)

		if err := tradeWriter.Start(ctx); err != nil {
			logger.Error("failed to start trade writer", "error", err)
			os.Exit(1)
		}
		if err := settlementWriter.Start(ctx); err != nil {
			logger.Error("failed to start settlement writer", "error", err)
			os.Exit(1)
		}
	}

	// Settlement poller
	pollerCfg := poller.Config{
		Interval:    cfg.Engine.Interval,
		Concurrency: cfg.Engine.Concurrency,
		Timeout:     cfg.Feed.Timeout,
		FetchLimit:  cfg.Engine.FetchLimit,
	}
	p := poller.New(pollerCfg, feedClient, engines, balances, liveRing, outputs, logger)

	if err := p.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}

	// Health and metrics server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHealthHandler(cfg, pool, balances, engines),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("settler running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	p.Stop(shutdownCtx)
	if tradeWriter != nil {
		tradeWriter.Stop(shutdownCtx)
	}
	if settlementWriter != nil {
		settlementWriter.Stop(shutdownCtx)
	}
	healthServer.Shutdown(shutdownCtx)

	logger.Info("settler stopped")
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
func createHealthHandler(cfg *config.SettlerConfig, pool *pgxpool.Pool, balances *engine.BalanceTable, engines []*engine.Engine) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(cfg.Metrics.Path, metrics.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["postgres"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["postgres"] = "connected"
			}
		}

		ledgers := make(map[string]int, len(engines))
		for _, eng := range engines {
			ledgers[eng.ProductID()] = eng.LedgerLen()
		}
		health.Components["ledgers"] = ledgers

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/balances", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"pool_size": balances.Size(),
			"balances":  balances.Snapshot(),
		})
	})

	return mux
}
