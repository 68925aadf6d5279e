// Package ledger maintains the per-product trade ledger.
//
// The ledger is the single owner of trade rows. Incremental merges never
// duplicate a trade ID and never touch the counterparty assignment of rows
// seen in an earlier cycle, even when the same trade reappears in a later
// fetch due to overlapping windows.
package ledger
