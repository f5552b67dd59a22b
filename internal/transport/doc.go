// Package transport performs the single HTTP request/response exchanges used
// by flockwatch.
//
// This package is internal to flockwatch. It isolates network and decoding
// failures behind three typed errors so callers can tell them apart:
//
//   - [NetworkError]: the request could not complete (DNS, connection, timeout)
//   - [HTTPError]: the service answered with a non-2xx status code
//   - [ParseError]: the body was not valid JSON
//
// The client never retries. Retry policy, if any, belongs to the caller.
package transport
