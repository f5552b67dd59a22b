package flockwatch

import (
	"time"

	"github.com/jpalmerr/flockwatch/internal/command"
	"github.com/jpalmerr/flockwatch/internal/poller"
	"github.com/jpalmerr/flockwatch/internal/store"
	"github.com/jpalmerr/flockwatch/internal/transport"
)

// Error kinds reported by polls, checks and commands. Match them with
// errors.Is.
var (
	// ErrNetwork reports a request that could not complete, including timeouts.
	ErrNetwork = transport.ErrNetwork

	// ErrHTTP reports a non-2xx response.
	ErrHTTP = transport.ErrHTTP

	// ErrParse reports a body that is not valid JSON.
	ErrParse = transport.ErrParse

	// ErrMalformedPayload reports valid JSON without a non-negative integer
	// count.
	ErrMalformedPayload = poller.ErrMalformedPayload

	// ErrInvalidAction is returned by [Session.Send] for an action other than
	// "start" or "stop".
	ErrInvalidAction = command.ErrInvalidAction
)

// DeviceState classifies the remote device status.
//
// DeviceState is a string type that can hold one of four predefined values:
// [DeviceUnknown], [DeviceSent], [DeviceAcknowledged] or [DeviceError].
type DeviceState string

const (
	// DeviceUnknown is the state before any command was sent.
	DeviceUnknown DeviceState = DeviceState(store.KindUnknown)

	// DeviceSent indicates a command is in flight.
	DeviceSent DeviceState = DeviceState(store.KindSent)

	// DeviceAcknowledged indicates the service accepted the last command.
	DeviceAcknowledged DeviceState = DeviceState(store.KindAcknowledged)

	// DeviceError indicates the last command was rejected or not delivered.
	DeviceError DeviceState = DeviceState(store.KindError)
)

// String returns the string representation of the state.
func (s DeviceState) String() string {
	return string(s)
}

// DeviceStatus is the user-visible status of the remote device.
type DeviceStatus struct {
	// State is the status kind.
	State DeviceState

	// Action is the command in flight, set when State is [DeviceSent].
	Action string

	// Message is the acknowledgement or error text.
	Message string
}

// State is a consistent copy of the session state.
type State struct {
	// Count is the last sheep count observed by a successful poll.
	Count int64

	// Device is the status of the most recent command.
	Device DeviceStatus

	// LastUpdated is the time of the last change to Count or Device.
	// Zero until the first change.
	LastUpdated time.Time
}

// PollResult holds the outcome of a single poll.
//
// PollResult is immutable after creation. Count is only meaningful when Err
// is nil; a failed poll leaves the session state unchanged.
type PollResult struct {
	// URL is the count endpoint that was polled.
	URL string

	// Count is the sheep count read from the payload.
	Count int64

	// Latency is the time taken by the request.
	Latency time.Duration

	// CheckedAt is the timestamp when the poll completed.
	CheckedAt time.Time

	// Err is nil on success. Otherwise it matches one of [ErrNetwork],
	// [ErrHTTP], [ErrParse] or [ErrMalformedPayload].
	Err error
}

// CommandResult is the reconciled outcome of [Session.Send].
type CommandResult struct {
	// ID correlates the command with its log lines.
	ID string

	// Action is the command that was sent.
	Action string

	// Accepted is true when the service acknowledged the command.
	Accepted bool

	// Message is the text written to the device status.
	Message string

	// Err is the transport failure behind a rejection, if any.
	Err error
}

// CheckResult is the outcome of [Session.Check].
type CheckResult struct {
	// URL is the count endpoint that was requested.
	URL string

	// Count is the sheep count read from the payload, if any.
	Count int64

	// Payload is the decoded response body. Nil when the request failed.
	Payload any

	// Latency is the time taken by the request.
	Latency time.Duration

	// Err is nil when the service answered with a usable count.
	Err error
}

func stateFromSnapshot(snap store.Snapshot) State {
	return State{
		Count: snap.Count,
		Device: DeviceStatus{
			State:   DeviceState(snap.Device.Kind),
			Action:  snap.Device.Action,
			Message: snap.Device.Message,
		},
		LastUpdated: snap.LastUpdated,
	}
}

func pollResultFromPoller(r poller.Result) PollResult {
	return PollResult{
		URL:       r.URL,
		Count:     r.Count,
		Latency:   r.Latency,
		CheckedAt: r.CheckedAt,
		Err:       r.Err,
	}
}

func commandResultFromOutcome(o command.Outcome) CommandResult {
	return CommandResult{
		ID:       o.ID,
		Action:   string(o.Action),
		Accepted: o.Accepted,
		Message:  o.Message,
		Err:      o.Err,
	}
}
