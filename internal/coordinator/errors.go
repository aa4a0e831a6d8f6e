package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by Snapshot before the first successful refresh.
	ErrNotReady = errors.New("coordinator: no snapshot available yet")

	// ErrFailed is returned when a coordinator whose first refresh failed is
	// used again. It must be discarded and recreated.
	ErrFailed = errors.New("coordinator: initialization failed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("coordinator: closed")

	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("coordinator: already initialized")
)

// UnavailableError reports that a refresh could not reach the device or the
// device answered with a protocol error. The cached snapshot is untouched.
type UnavailableError struct {
	Name string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Name, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
