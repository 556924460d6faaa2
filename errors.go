package herisson

import "errors"

// Common errors. The handle-based surface never propagates these to the
// caller; they fold into sentinel returns plus a log entry. The object-level
// API returns them so Go applications can branch on the cause.
var (
	// ErrPoolExhausted indicates an acquire above the pool cap.
	ErrPoolExhausted = errors.New("herisson: frame pool exhausted")

	// ErrInvalidArgument indicates failed validation of frame headers.
	ErrInvalidArgument = errors.New("herisson: invalid argument")

	// ErrHandleNotFound indicates an unknown frame, pin or module handle.
	ErrHandleNotFound = errors.New("herisson: handle not found")

	// ErrOutOfRange indicates a pin index beyond the pin count.
	ErrOutOfRange = errors.New("herisson: index out of range")

	// ErrClosed indicates the resource has been closed.
	ErrClosed = errors.New("herisson: resource is closed")

	// ErrQueueFull indicates a bounded send queue rejected a frame.
	ErrQueueFull = errors.New("herisson: send queue is full")

	// ErrConfigNoTarget indicates a configuration token outside any bucket.
	ErrConfigNoTarget = errors.New("herisson: configuration token has no target")

	// ErrTransportUnknown indicates a pin type with no registered transport.
	ErrTransportUnknown = errors.New("herisson: unknown transport type")

	// ErrInCallback indicates a lifecycle call from inside the module callback.
	ErrInCallback = errors.New("herisson: operation not allowed from callback")
)
