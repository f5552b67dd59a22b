package store

import (
	"fmt"
	"time"
)

// DeviceStatusKind classifies a [DeviceStatus].
type DeviceStatusKind string

const (
	// KindUnknown is the state before any command was sent.
	KindUnknown DeviceStatusKind = "unknown"

	// KindSent marks a command that has been issued but not yet answered.
	KindSent DeviceStatusKind = "sent"

	// KindAcknowledged marks a command the service accepted.
	KindAcknowledged DeviceStatusKind = "acknowledged"

	// KindError marks a command that was rejected or could not be delivered.
	KindError DeviceStatusKind = "error"
)

// DeviceStatus is the user-visible state of the remote device.
//
// Action is set for [KindSent]; Message is set for [KindAcknowledged] and
// [KindError].
type DeviceStatus struct {
	Kind    DeviceStatusKind `json:"kind"`
	Action  string           `json:"action,omitempty"`
	Message string           `json:"message,omitempty"`
}

// Unknown returns the initial device status.
func Unknown() DeviceStatus {
	return DeviceStatus{Kind: KindUnknown}
}

// Sent returns the in-flight status for action.
func Sent(action string) DeviceStatus {
	return DeviceStatus{Kind: KindSent, Action: action}
}

// Acknowledged returns the status for a command the service accepted.
func Acknowledged(message string) DeviceStatus {
	return DeviceStatus{Kind: KindAcknowledged, Message: message}
}

// Error returns the status for a failed command.
func Error(message string) DeviceStatus {
	return DeviceStatus{Kind: KindError, Message: message}
}

// String renders the status for logs and the CLI.
func (s DeviceStatus) String() string {
	switch s.Kind {
	case KindSent:
		return fmt.Sprintf("sent(%s)", s.Action)
	case KindAcknowledged, KindError:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Message)
	case "":
		return string(KindUnknown)
	default:
		return string(s.Kind)
	}
}

// Snapshot is a consistent copy of the store's state.
//
// Snapshot is the storage representation exposed to the display layer and
// is shaped for JSON serialization (used by the REST API and SSE).
type Snapshot struct {
	// Count is the last sheep count observed by a successful poll.
	Count int64 `json:"count"`

	// Device is the outcome of the most recently completed command.
	Device DeviceStatus `json:"device"`

	// LastUpdated is the time of the last write to either field.
	// Zero until the first write.
	LastUpdated time.Time `json:"last_updated"`
}

// Store defines the state container shared by the poller, the command
// dispatcher and the display layer.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows every change to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Get returns a consistent snapshot of the current state.
	Get() Snapshot

	// SetCount replaces the count. Negative values are rejected.
	SetCount(count int64) error

	// SetDeviceStatus replaces the device status.
	SetDeviceStatus(status DeviceStatus)

	// Subscribe returns a channel that receives a snapshot after every write.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Snapshot

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Snapshot)
}
