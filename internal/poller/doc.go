// Package poller implements the periodic settlement driver.
//
// The poller:
//   - Runs one settlement cycle per product on a fixed interval
//   - Fetches recent trades and the current price over REST
//   - Folds in trades buffered from the websocket stream
//   - Uses concurrent product cycles with bounded concurrency
//   - Feeds settled cycles to the batch writers
package poller
