package control

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wemokit/wemokit/internal/description"
)

// Binary states reported by WeMo devices. Insight switches report 8 when
// the attached load is in standby.
const (
	StateOff     = 0
	StateOn      = 1
	StateStandby = 8
)

const (
	// DefaultRetryInitialInterval is the starting backoff interval for
	// the *WithRetry helpers
	DefaultRetryInitialInterval = 500 * time.Millisecond

	// DefaultMaxRetries is how many times the *WithRetry helpers retry
	// transient failures before giving up
	DefaultMaxRetries = 3
)

// Switch is a convenience wrapper for the on/off surface of a single
// device. It layers typed state accessors and optional retry on top of the
// stateless Client.
type Switch struct {
	// Device is the target device
	Device *description.Device

	// Client is the control client used for all calls
	Client *Client

	// MaxRetries bounds the *WithRetry helpers
	MaxRetries uint64

	// RetryInitialInterval is the starting backoff interval
	RetryInitialInterval time.Duration
}

// NewSwitch creates a Switch for the given device with default retry settings
func NewSwitch(device *description.Device) *Switch {
	return &Switch{
		Device:               device,
		Client:               NewClient(),
		MaxRetries:           DefaultMaxRetries,
		RetryInitialInterval: DefaultRetryInitialInterval,
	}
}

// State queries the device's current binary state (StateOff, StateOn or
// StateStandby)
func (s *Switch) State(ctx context.Context) (int, error) {
	result, err := s.Client.Send(ctx, s.Device, NewCommand("GetBinaryState"))
	if err != nil {
		return 0, err
	}

	raw, ok := result["BinaryState"]
	if !ok {
		return 0, &TransportError{Op: "GetBinaryState response missing BinaryState field"}
	}

	// Insight switches append power readings after a pipe
	if i := strings.IndexByte(raw, '|'); i >= 0 {
		raw = raw[:i]
	}

	state, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &TransportError{Op: fmt.Sprintf("unparseable BinaryState %q", raw), Err: err}
	}
	return state, nil
}

// On turns the device on
func (s *Switch) On(ctx context.Context) error {
	return s.setState(ctx, StateOn)
}

// Off turns the device off
func (s *Switch) Off(ctx context.Context) error {
	return s.setState(ctx, StateOff)
}

// Toggle flips the device's current state and returns the new state
func (s *Switch) Toggle(ctx context.Context) (int, error) {
	state, err := s.State(ctx)
	if err != nil {
		return 0, err
	}

	next := StateOn
	if state != StateOff {
		next = StateOff
	}
	if err := s.setState(ctx, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Switch) setState(ctx context.Context, state int) error {
	_, err := s.Client.Send(ctx, s.Device,
		NewCommand("SetBinaryState", "BinaryState", strconv.Itoa(state)))
	if err != nil {
		return err
	}
	return nil
}

// StateWithRetry is State with exponential backoff on transient failures
func (s *Switch) StateWithRetry(ctx context.Context) (int, error) {
	var state int
	err := s.retry(ctx, func() error {
		var err error
		state, err = s.State(ctx)
		return err
	})
	return state, err
}

// OnWithRetry is On with exponential backoff on transient failures
func (s *Switch) OnWithRetry(ctx context.Context) error {
	return s.retry(ctx, func() error { return s.On(ctx) })
}

// OffWithRetry is Off with exponential backoff on transient failures
func (s *Switch) OffWithRetry(ctx context.Context) error {
	return s.retry(ctx, func() error { return s.Off(ctx) })
}

// retry runs op under exponential backoff. Device faults are permanent:
// retrying an action the device rejected will not change the answer.
func (s *Switch) retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.RetryInitialInterval

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if IsFault(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped,
		backoff.WithContext(backoff.WithMaxRetries(bo, s.MaxRetries), ctx))
}
