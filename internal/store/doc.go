// Package store holds the state shared between the poller, the command
// dispatcher and the display layer.
//
// This package is internal to flockwatch. It keeps the last observed sheep
// count and the last reconciled device status, and implements a
// publish-subscribe pattern so the dashboard can push changes to browsers.
//
// The main components are:
//
//   - [Store]: Interface defining the reads, the two setters and subscriptions
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Snapshot]: Consistent copy of the state at one instant
//   - [DeviceStatus]: Outcome of the most recent command
//
// A single mutex guards every field, so a [Snapshot] never mixes an old
// count with a new device status or the other way round. Subscribers
// receive updates via channels with non-blocking sends (slow subscribers
// will miss updates rather than block the system).
package store
