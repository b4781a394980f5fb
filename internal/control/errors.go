package control

import (
	"errors"
	"fmt"
)

// TransportError indicates the request never produced a protocol-level
// answer: connection refused, DNS failure, timeout, or an unreadable
// response.
type TransportError struct {
	Op  string // What was being attempted (e.g., "post control request")
	Err error  // Underlying error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport error: %s", e.Op)
}

// Unwrap returns the underlying error for error chain inspection
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Fault is a device-reported logical error: the request reached the device
// and the device answered with a UPnP fault envelope.
type Fault struct {
	Action      string // The action that was attempted
	Code        int    // Device error code (e.g., 401 Invalid Action)
	Description string // Human-readable description from the device
}

// Error implements the error interface
func (e *Fault) Error() string {
	return fmt.Sprintf("device fault %d (%s) for action %s", e.Code, e.Description, e.Action)
}

// IsTransportError reports whether err is (or wraps) a TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsFault reports whether err is (or wraps) a device Fault
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}
