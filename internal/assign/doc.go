// Package assign attaches synthetic counterparties to newly ingested trades.
//
// Assignment happens exactly once per trade, on the cycle that first merges
// it; re-running a cycle over already-merged trades never redraws.
package assign
