package mediaplayer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidVolume is returned for volume levels outside [0, 1].
var ErrInvalidVolume = errors.New("volume level must be between 0 and 1")

// UnknownSourceError is returned when a source display name does not match
// any source in the current snapshot. No device call is made.
type UnknownSourceError struct {
	Name      string
	Available []string
}

func (e *UnknownSourceError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown source %q", e.Name)
	}
	return fmt.Sprintf("unknown source %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// CommandFailedError wraps a device mutation that failed. RefreshErr holds
// the outcome of the refresh that always follows a command, nil if it
// succeeded.
type CommandFailedError struct {
	Command    string
	Err        error
	RefreshErr error
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Command, e.Err)
}

func (e *CommandFailedError) Unwrap() error {
	return e.Err
}
