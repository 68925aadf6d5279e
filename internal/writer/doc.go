// Package writer implements batch writers for settler output.
//
// Writers:
//   - Trade writer: merged ledger trades with their party assignments
//   - Settlement writer: per-cycle settlement records and balance snapshots
//
// All writers use append-only semantics (never update, only insert).
// Monetary values are stored as NUMERIC via their decimal string form.
package writer
