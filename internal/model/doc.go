// Package model defines shared data types used across the settlement engine.
//
// Conventions:
//   - Prices and quantities: decimal.Decimal (exact arithmetic, no float drift)
//   - Timestamps: time.Time in UTC
//   - IDs: int64 for feed trade IDs, small ints for pool parties,
//     uuid.UUID for settlement cycles
package model
