// Package poller provides the fixed-interval count poller for flockwatch.
//
// This package is internal to flockwatch. It repeatedly fetches the counting
// service's count endpoint and reconciles the result into a [store.Store].
//
// The main components are:
//
//   - [Poller]: Runs poll cycles and writes valid counts to the store
//   - [Handle]: Cancellable handle returned by [Poller.Start]
//   - [Result]: Outcome of a single poll cycle
//   - [CountExtractor]: Reads the count out of a decoded JSON payload
//
// A failed cycle never mutates the store and never stops the loop. At most
// one poll is in flight at a time; ticks that fire while a poll is running
// are dropped.
//
// Users of the flockwatch library should not need to interact with this
// package directly. Configuration is done through the main flockwatch package.
package poller
