// Package engine orchestrates the per-product settlement cycle and owns the
// shared counterparty balance table.
//
// Cycle order: ledger merge -> counterparty assignment (new rows only) ->
// windowed VWAP settlement -> delta reconciliation. A cycle is all-or-nothing
// at the settlement stage: if the current price is missing while parties are
// exposed, no balance moves and the previous settlement pointer is kept.
package engine
