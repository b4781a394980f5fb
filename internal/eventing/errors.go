package eventing

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups for a subscription id the registry
// does not know: already unsubscribed, dropped after renewal failure, or
// never existed. Callers cannot distinguish these cases and must simply
// discard whatever prompted the lookup.
var ErrNotFound = errors.New("subscription not found")

// SubscribeError indicates a subscribe request that failed. No local state
// is left behind when this is returned.
type SubscribeError struct {
	DeviceUDN string
	Reason    string
	Err       error
}

// Error implements the error interface
func (e *SubscribeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("subscribe failed for %s: %s: %v", e.DeviceUDN, e.Reason, e.Err)
	}
	return fmt.Sprintf("subscribe failed for %s: %s", e.DeviceUDN, e.Reason)
}

// Unwrap returns the underlying error for error chain inspection
func (e *SubscribeError) Unwrap() error {
	return e.Err
}

// RenewError indicates a renewal that failed, tagged with the subscription
// id. Rejected reports whether the device explicitly refused the id (the
// registry drops the local entry in that case); false means the id was
// unknown locally or the request never reached the device.
type RenewError struct {
	SID      string
	Rejected bool
	Reason   string
	Err      error
}

// Error implements the error interface
func (e *RenewError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("renew failed for %s: %s: %v", e.SID, e.Reason, e.Err)
	}
	return fmt.Sprintf("renew failed for %s: %s", e.SID, e.Reason)
}

// Unwrap returns the underlying error for error chain inspection
func (e *RenewError) Unwrap() error {
	return e.Err
}
