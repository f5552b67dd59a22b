// Package command sends start/stop commands to the remote device and
// reconciles the service's answer into the shared store.
//
// This package is internal to flockwatch. Each call to [Dispatcher.Send]
// marks the device status as sent, performs one request, and replaces the
// status exactly once with an acknowledgement or an error before returning.
// Dispatch failures are reported through the store, not as Go errors; only
// an unrecognized action is returned as [ErrInvalidAction].
package command
