package config

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Validate checks that all required fields are set and values are valid.
func (c *SettlerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if len(c.Engine.Products) == 0 {
		return errors.New("engine.products must list at least one product")
	}
	if c.Engine.PoolSize < 2 {
		return fmt.Errorf("engine.pool_size must be >= 2, got %d", c.Engine.PoolSize)
	}
	if c.Engine.Window <= 0 {
		return errors.New("engine.window must be positive")
	}
	if c.Engine.Interval <= 0 {
		return errors.New("engine.interval must be positive")
	}
	if c.Engine.Concurrency < 1 {
		return errors.New("engine.concurrency must be >= 1")
	}
	if _, err := decimal.NewFromString(c.Engine.InitialBalance); err != nil {
		return fmt.Errorf("engine.initial_balance %q is not a decimal: %w", c.Engine.InitialBalance, err)
	}

	if c.Writers.Enabled {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
		if c.Writers.BatchSize < 1 {
			return errors.New("writers.batch_size must be >= 1")
		}
		if c.Writers.BufferSize < 1 {
			return errors.New("writers.buffer_size must be >= 1")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// InitialBalanceDecimal returns the parsed initial balance. Call only after
// Validate has passed.
func (c *EngineConfig) InitialBalanceDecimal() decimal.Decimal {
	return decimal.RequireFromString(c.InitialBalance)
}
