package store

import (
	"fmt"
	"sync"
	"time"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore provides thread-safe storage with a publish-subscribe mechanism
// for real-time updates. Each setter replaces a single field and stamps
// LastUpdated under the same lock, so readers always see a consistent
// [Snapshot].
//
// Subscribers receive snapshots via buffered channels (buffer size 100).
// Updates are sent non-blocking; if a subscriber's buffer is full, the update
// is dropped for that subscriber to prevent blocking the entire system.
type MemoryStore struct {
	mu    sync.RWMutex
	state Snapshot
	now   func() time.Time

	subscribers map[chan Snapshot]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
//
// The store starts with a zero count and an unknown device status.
// No cleanup is required when done.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state:       Snapshot{Device: Unknown()},
		now:         time.Now,
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// Get returns a snapshot of the current state.
func (m *MemoryStore) Get() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SetCount replaces the count and notifies all subscribers.
//
// A negative count is rejected and leaves the store unchanged.
func (m *MemoryStore) SetCount(count int64) error {
	if count < 0 {
		return fmt.Errorf("count must be non-negative, got %d", count)
	}

	m.mu.Lock()
	m.state.Count = count
	m.state.LastUpdated = m.now()
	snap := m.state
	m.mu.Unlock()

	m.notifySubscribers(snap)
	return nil
}

// SetDeviceStatus replaces the device status and notifies all subscribers.
func (m *MemoryStore) SetDeviceStatus(status DeviceStatus) {
	m.mu.Lock()
	m.state.Device = status
	m.state.LastUpdated = m.now()
	snap := m.state
	m.mu.Unlock()

	m.notifySubscribers(snap)
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// The returned channel has a buffer of 100 messages. If the buffer fills
// (slow consumer), new updates are dropped for this subscriber.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// After calling Unsubscribe, the channel will be closed and no further
// updates will be sent. Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the snapshot to all active subscribers.
//
// This is non-blocking: if a subscriber's channel buffer is full, the message
// is dropped for that subscriber rather than blocking the write path.
func (m *MemoryStore) notifySubscribers(snap Snapshot) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
			// subscriber is slow, drop the message
		}
	}
}
