// Package server provides the HTTP display layer for flockwatch.
//
// This package is internal to flockwatch and handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded dashboard at "/" and the
//     connectivity test page at "/check"
//   - REST API: JSON snapshot at "/api/state", command dispatch at
//     "/api/command" and a live probe at "/api/check"
//   - Server-Sent Events: Real-time snapshots at "/api/sse"
//
// The server only reads the store; writes come from the poller and the
// command dispatcher. It supports graceful shutdown via context
// cancellation, with a 5-second timeout for in-flight requests.
package server
