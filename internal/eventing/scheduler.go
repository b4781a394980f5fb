package eventing

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/wemokit/wemokit/internal/logging"
)

const (
	// renewalMarginDivisor places the renewal deadline at
	// granted - granted/divisor, i.e. two-thirds of the way through the
	// lease with the default of 3
	renewalMarginDivisor = 3

	// resubscribeMaxRetries bounds the recovery re-subscribe attempts
	// after a failed renewal before a subscription is declared lost
	resubscribeMaxRetries = 2

	// resubscribeInitialInterval is the starting backoff interval for
	// recovery re-subscribes
	resubscribeInitialInterval = 500 * time.Millisecond

	// idleWait is how long the scheduler sleeps when there is nothing
	// to renew and no wake arrives
	idleWait = time.Minute
)

// Scheduler keeps subscriptions alive. A single background goroutine
// sleeps until the earliest renewal deadline (no polling; registry changes
// wake it early), renews what is due, and recovers rejected renewals with
// a fresh subscribe before declaring a subscription lost.
type Scheduler struct {
	registry *Registry

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewScheduler creates a scheduler over the given registry and hooks
// itself into the registry's change notifications.
func NewScheduler(registry *Registry) *Scheduler {
	s := &Scheduler{
		registry: registry,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	registry.SetOnChange(s.Wake)
	return s
}

// Start launches the background renewal loop
func (s *Scheduler) Start() {
	go s.loop()
}

// Stop terminates the renewal loop and waits for it to exit
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// Wake nudges the scheduler to recompute its next deadline. Safe to call
// from any goroutine; coalesces concurrent wakes.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)

	for {
		wait := s.untilNextDeadline(time.Now())

		timer := time.NewTimer(wait)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}

		s.renewDue(context.Background(), time.Now())
	}
}

// untilNextDeadline computes how long to sleep before the earliest
// renewal is due. With no live subscriptions it returns idleWait; a wake
// arrives whenever the registry changes.
func (s *Scheduler) untilNextDeadline(now time.Time) time.Duration {
	next := time.Duration(-1)
	for _, sub := range s.registry.Snapshots() {
		wait := renewAt(sub).Sub(now)
		if wait < 0 {
			wait = 0
		}
		if next < 0 || wait < next {
			next = wait
		}
	}
	if next < 0 {
		return idleWait
	}
	return next
}

// renewAt is the moment a subscription should be renewed: a fixed margin
// before expiry so a slow or retried renewal still lands inside the lease
func renewAt(sub Subscription) time.Time {
	return sub.Expires.Add(-sub.Granted / renewalMarginDivisor)
}

// renewDue renews every subscription whose deadline has passed. Liveness
// is re-checked against the registry per subscription, never cached, so a
// concurrent unsubscribe wins.
func (s *Scheduler) renewDue(ctx context.Context, now time.Time) {
	for _, snap := range s.registry.Snapshots() {
		if renewAt(snap).After(now) {
			continue
		}

		// Re-check at renewal time: the subscription may have been
		// unsubscribed since the snapshot was taken
		sub, handler, ok := s.registry.entrySnapshot(snap.SID)
		if !ok {
			continue
		}

		s.renewOne(ctx, sub, handler)
	}
}

// renewOne drives one subscription through the renewal state machine:
// renewing, then resubscribing on failure, then lost.
func (s *Scheduler) renewOne(ctx context.Context, sub Subscription, handler Handler) {
	_, err := s.registry.Renew(ctx, sub.SID)
	if err == nil {
		return
	}

	logging.Warn("Renewal failed; attempting fresh subscription",
		zap.String("sid", sub.SID),
		zap.String("udn", sub.DeviceUDN),
		zap.Error(err),
	)

	// Resubscribing: the device no longer honors the id, so a renewal
	// retry is pointless - only a fresh subscribe can recover
	newSID, err := s.resubscribeWithBackoff(ctx, sub, handler)
	if err == nil {
		logging.LogSubscription("recovered", newSID, sub.DeviceUDN)
		return
	}

	// Lost: drop the local entry and tell the handler, if it cares
	s.registry.Drop(sub.SID)
	logging.LogSubscription("lost", sub.SID, sub.DeviceUDN)
	if lh, ok := handler.(LostHandler); ok {
		lh.SubscriptionLost(sub.SID, err)
	}
}

// resubscribeWithBackoff retries the recovery subscribe a bounded number
// of times with exponential backoff
func (s *Scheduler) resubscribeWithBackoff(ctx context.Context, sub Subscription, handler Handler) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = resubscribeInitialInterval

	var newSID string
	err := backoff.Retry(func() error {
		var err error
		newSID, err = s.registry.resubscribe(ctx, sub, handler)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, resubscribeMaxRetries), ctx))

	return newSID, err
}
