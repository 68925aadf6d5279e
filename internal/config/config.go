package config

import "time"

// SettlerConfig is the root configuration for a settler instance.
type SettlerConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Writers  WritersConfig  `yaml:"writers"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this settler.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds market-data feed settings.
type FeedConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	Stream     bool          `yaml:"stream"` // Enable the websocket match stream
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// DatabaseConfig holds the Postgres connection for persisted state.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// EngineConfig holds settlement engine settings.
type EngineConfig struct {
	Products       []string      `yaml:"products"`        // Products to settle (e.g., BTC-USD, ETH-USD)
	Window         time.Duration `yaml:"window"`          // Trailing settlement window
	PoolSize       int           `yaml:"pool_size"`       // Counterparty pool size
	InitialBalance string        `yaml:"initial_balance"` // Starting balance per party (decimal string)
	Currency       string        `yaml:"currency"`
	Interval       time.Duration `yaml:"interval"`    // Cycle interval
	Concurrency    int           `yaml:"concurrency"` // Max concurrent product cycles
	FetchLimit     int           `yaml:"fetch_limit"` // Max trades per REST fetch
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
