// Package database provides connection pool management for PostgreSQL.
//
// The settler persists three append-only tables:
//   - trades: merged ledger trades with party assignments
//   - settlements: per-cycle, per-party settlement records
//   - balance_snapshots: party balances after each applied cycle
package database
