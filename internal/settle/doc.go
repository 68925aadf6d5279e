// Package settle computes windowed per-party VWAP settlements and the
// delta-based balance reconciliation between consecutive cycles.
//
// Settlement is stateless: every cycle recomputes from the ledger, and only
// the previous cycle's records are needed (by the reconciler) to avoid
// charging a party twice for an obligation already settled.
package settle
