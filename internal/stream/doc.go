// Package stream provides the buffering primitive between message producers
// and the batch-oriented consumers of the settlement pipeline.
package stream
