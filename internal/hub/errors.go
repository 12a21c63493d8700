package hub

import "errors"

// Hub-level failures surfaced to callers. Tool-level failures never appear
// here; they travel back to the model as text.
var (
	// ErrNotConnected means the target device has no live registration.
	// Returned immediately, no wire send attempted.
	ErrNotConnected = errors.New("not connected")

	// ErrTimeout means no response arrived within the hub's budget.
	ErrTimeout = errors.New("timeout")

	// ErrDisconnected means the device dropped while a task was in flight.
	ErrDisconnected = errors.New("device disconnected")
)
