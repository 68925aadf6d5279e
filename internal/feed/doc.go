// Package feed is the market-data collaborator boundary: a REST client for
// trade history and ticker prices, a websocket match stream, and the
// conversion layer that turns raw string fields into ledger trades.
//
// Transient transport failures are the caller's signal for "no new data this
// cycle"; malformed rows are dropped individually with a warning.
package feed
