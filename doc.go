// Package flockwatch provides a polling client, command dispatcher and live
// dashboard for a remote sheep-counting service.
//
// A [Session] keeps one state container holding the latest sheep count and
// the status of the counting device. A poller refreshes the count from
// GET {API_URL}/api/count on a fixed interval, and device commands
// ("start", "stop") are sent to GET {API_URL}/jetson/command?action=... with
// their outcome reconciled into the device status.
//
// # Quick Start
//
//	s, _ := flockwatch.New("http://192.168.0.10:8000")
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	s.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// Session uses the functional options pattern for configuration:
//
//	s, err := flockwatch.New(apiURL,
//	    flockwatch.WithPollingInterval(5 * time.Second),
//	    flockwatch.WithTimeout(2 * time.Second),
//	    flockwatch.WithPort(9090),
//	    flockwatch.WithTitle("North Paddock"),
//	)
//
// # Polling
//
// The count is polled once immediately and then on every interval. At most
// one poll is in flight; a tick that fires while a poll is still running is
// dropped. Failed polls (network errors, non-2xx answers, malformed bodies)
// are logged and leave the state unchanged. Use [WithPollCallback] to observe
// every poll.
//
// # Commands
//
// [Session.Send] marks the device status as sent before the request and
// replaces it with an acknowledged or error status once the service answers.
// The device status never stays in the sent state after Send returns.
//
// # Architecture
//
// Flockwatch consists of several internal packages (under internal/):
//
//   - internal/transport: HTTP GET + JSON decoding with typed errors
//   - internal/store: In-memory state with pub/sub for real-time updates
//   - internal/poller: Fixed-interval polling with overlap suppression
//   - internal/command: Command dispatch and status reconciliation
//   - internal/server: HTTP server with REST API and Server-Sent Events
//   - dashboard: Embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice.
package flockwatch
