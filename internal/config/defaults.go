package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL        = "https://api.exchange.coinbase.com"
	DefaultWSURL          = "wss://ws-feed.exchange.coinbase.com"
	DefaultFeedTimeout    = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 10
	DefaultMinConns       = 2
	DefaultWindow         = time.Hour
	DefaultPoolSize       = 10
	DefaultInitialBalance = "100000"
	DefaultCurrency       = "USD"
	DefaultCycleInterval  = 30 * time.Second
	DefaultConcurrency    = 4
	DefaultFetchLimit     = 1000
	DefaultBatchSize      = 1000
	DefaultFlushInterval  = 1 * time.Second
	DefaultBufferSize     = 10000
	DefaultMetricsPort    = 9090
	DefaultMetricsPath    = "/metrics"
)

func (c *SettlerConfig) applyDefaults() {
	// Feed defaults
	if c.Feed.RestURL == "" {
		c.Feed.RestURL = DefaultRestURL
	}
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = DefaultWSURL
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = DefaultFeedTimeout
	}
	if c.Feed.MaxRetries == 0 {
		c.Feed.MaxRetries = DefaultMaxRetries
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Engine defaults
	if c.Engine.Window == 0 {
		c.Engine.Window = DefaultWindow
	}
	if c.Engine.PoolSize == 0 {
		c.Engine.PoolSize = DefaultPoolSize
	}
	if c.Engine.InitialBalance == "" {
		c.Engine.InitialBalance = DefaultInitialBalance
	}
	if c.Engine.Currency == "" {
		c.Engine.Currency = DefaultCurrency
	}
	if c.Engine.Interval == 0 {
		c.Engine.Interval = DefaultCycleInterval
	}
	if c.Engine.Concurrency == 0 {
		c.Engine.Concurrency = DefaultConcurrency
	}
	if c.Engine.FetchLimit == 0 {
		c.Engine.FetchLimit = DefaultFetchLimit
	}

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
