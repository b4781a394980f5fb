package eventing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wemokit/wemokit/internal/description"
	"github.com/wemokit/wemokit/internal/logging"
)

const (
	// DefaultDuration is the subscription duration requested when the
	// caller passes zero
	DefaultDuration = 300 * time.Second

	// DefaultRequestTimeout bounds each SUBSCRIBE/UNSUBSCRIBE request
	DefaultRequestTimeout = 10 * time.Second
)

// Subscription is a snapshot of one active subscription. The registry owns
// the authoritative copy; snapshots handed out by Get and Snapshots never
// alias registry state.
type Subscription struct {
	// SID is the opaque subscription id assigned by the device
	SID string

	// DeviceUDN identifies the device the subscription belongs to
	DeviceUDN string

	// EventURL is the device endpoint renewals and unsubscribes go to
	EventURL string

	// CallbackURL is the full URL the device delivers notifications to
	CallbackURL string

	// CallbackPath is the generated path segment that routes inbound
	// notifications to this subscription
	CallbackPath string

	// Requested is the duration asked for at subscribe time
	Requested time.Duration

	// Granted is the duration the device actually granted
	Granted time.Duration

	// Expires is the absolute expiry of the current lease
	Expires time.Time
}

// entry is the registry-internal record: the snapshot plus the handler
type entry struct {
	Subscription
	handler Handler
}

// Registry tracks active subscriptions and performs the subscribe, renew
// and unsubscribe requests against device event URLs. It is the single
// shared state between the application, the renewal scheduler, and the
// callback listener; one mutex serializes all map access, and the mutex is
// never held across network I/O.
type Registry struct {
	// HTTPClient performs the SUBSCRIBE/UNSUBSCRIBE requests
	HTTPClient *http.Client

	mu     sync.Mutex
	bySID  map[string]*entry
	byPath map[string]string // callback path segment -> SID

	// onChange, when set, is called (without the lock held) after any
	// mutation so the scheduler can recompute its next deadline
	onChange func()
}

// NewRegistry creates an empty subscription registry
func NewRegistry() *Registry {
	return &Registry{
		HTTPClient: &http.Client{Timeout: DefaultRequestTimeout},
		bySID:      make(map[string]*entry),
		byPath:     make(map[string]string),
	}
}

// SetOnChange registers a callback invoked after every successful
// mutation. Used by the scheduler; must be set before concurrent use.
func (r *Registry) SetOnChange(fn func()) {
	r.onChange = fn
}

func (r *Registry) notifyChange() {
	if r.onChange != nil {
		r.onChange()
	}
}

// Subscribe issues a SUBSCRIBE request to the device's event URL and, on
// success, records the subscription and its handler. The callback URL is
// callbackBase plus a freshly generated path segment. A zero duration
// requests DefaultDuration.
//
// On failure a *SubscribeError is returned and no local state is left
// behind.
func (r *Registry) Subscribe(ctx context.Context, device *description.Device, callbackBase string, duration time.Duration, handler Handler) (string, error) {
	if handler == nil {
		return "", &SubscribeError{DeviceUDN: device.UDN, Reason: "nil handler"}
	}
	if duration <= 0 {
		duration = DefaultDuration
	}

	path := uuid.NewString()
	callbackURL := strings.TrimRight(callbackBase, "/") + "/" + path

	sid, granted, err := r.sendSubscribe(ctx, device.EventURL, subscribeRequest{
		callback: callbackURL,
		duration: duration,
	})
	if err != nil {
		return "", &SubscribeError{DeviceUDN: device.UDN, Reason: "subscribe request failed", Err: err}
	}

	sub := Subscription{
		SID:          sid,
		DeviceUDN:    device.UDN,
		EventURL:     device.EventURL,
		CallbackURL:  callbackURL,
		CallbackPath: path,
		Requested:    duration,
		Granted:      granted,
		Expires:      time.Now().Add(granted),
	}

	r.mu.Lock()
	r.bySID[sid] = &entry{Subscription: sub, handler: handler}
	r.byPath[path] = sid
	r.mu.Unlock()
	r.notifyChange()

	logging.LogSubscription("subscribed", sid, device.UDN)
	return sid, nil
}

// Renew re-issues the subscribe request for an existing subscription id
// and extends the stored expiry. An id unknown locally fails immediately
// with *RenewError and performs no network call. A device-side rejection
// also fails with *RenewError and removes the local entry, since the
// device no longer honors the id.
func (r *Registry) Renew(ctx context.Context, sid string) (time.Time, error) {
	r.mu.Lock()
	ent, ok := r.bySID[sid]
	if !ok {
		r.mu.Unlock()
		return time.Time{}, &RenewError{SID: sid, Reason: "unknown subscription id"}
	}
	eventURL := ent.EventURL
	udn := ent.DeviceUDN
	requested := ent.Requested
	r.mu.Unlock()

	granted, err := r.sendRenew(ctx, eventURL, sid, requested)
	if err != nil {
		if rejected(err) {
			// The device has forgotten the id; keeping the entry
			// would only produce further failed renewals
			r.remove(sid)
			logging.LogSubscription("renew_rejected", sid, udn)
			return time.Time{}, &RenewError{SID: sid, Rejected: true, Reason: "device rejected renewal", Err: err}
		}
		return time.Time{}, &RenewError{SID: sid, Reason: "renew request failed", Err: err}
	}

	expires := time.Now().Add(granted)

	r.mu.Lock()
	// The entry may have been unsubscribed while the request was in
	// flight; do not resurrect it
	if ent, ok := r.bySID[sid]; ok {
		ent.Granted = granted
		ent.Expires = expires
	}
	r.mu.Unlock()
	r.notifyChange()

	logging.LogSubscription("renewed", sid, udn)
	return expires, nil
}

// resubscribe replaces a dead subscription with a fresh one reusing the
// original callback URL, handler and requested duration. It works from a
// snapshot taken before the old entry was removed, so it recovers ids the
// device has already forgotten. The new id inherits the callback path, so
// routing stays intact. Used by the renewal scheduler's recovery path.
func (r *Registry) resubscribe(ctx context.Context, old Subscription, handler Handler) (string, error) {
	newSID, granted, err := r.sendSubscribe(ctx, old.EventURL, subscribeRequest{
		callback: old.CallbackURL,
		duration: old.Requested,
	})
	if err != nil {
		return "", &SubscribeError{DeviceUDN: old.DeviceUDN, Reason: "resubscribe request failed", Err: err}
	}

	sub := old
	sub.SID = newSID
	sub.Granted = granted
	sub.Expires = time.Now().Add(granted)

	r.mu.Lock()
	delete(r.bySID, old.SID)
	r.bySID[newSID] = &entry{Subscription: sub, handler: handler}
	r.byPath[old.CallbackPath] = newSID
	r.mu.Unlock()
	r.notifyChange()

	logging.LogSubscription("resubscribed", newSID, old.DeviceUDN)
	return newSID, nil
}

// entrySnapshot returns a subscription snapshot together with its handler.
// Scheduler-internal: the handler reference is needed to rebuild the
// subscription when the device rejects a renewal.
func (r *Registry) entrySnapshot(sid string) (Subscription, Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.bySID[sid]
	if !ok {
		return Subscription{}, nil, false
	}
	return ent.Subscription, ent.handler, true
}

// Unsubscribe removes the local entry and best-effort notifies the device.
// Transport failures are ignored - the local entry is gone regardless.
// Returns ErrNotFound for an unknown id.
func (r *Registry) Unsubscribe(ctx context.Context, sid string) error {
	ent, ok := r.remove(sid)
	if !ok {
		return ErrNotFound
	}

	if err := r.sendUnsubscribe(ctx, ent.EventURL, sid); err != nil {
		logging.Warn("Unsubscribe request failed; local entry removed anyway",
			zap.String("sid", sid), zap.Error(err))
	}

	logging.LogSubscription("unsubscribed", sid, ent.DeviceUDN)
	return nil
}

// Drop removes the local entry without contacting the device and returns
// the removed handler. Used when the device already considers the id dead.
func (r *Registry) Drop(sid string) (Handler, bool) {
	ent, ok := r.remove(sid)
	if !ok {
		return nil, false
	}
	return ent.handler, true
}

func (r *Registry) remove(sid string) (*entry, bool) {
	r.mu.Lock()
	ent, ok := r.bySID[sid]
	if ok {
		delete(r.bySID, sid)
		delete(r.byPath, ent.CallbackPath)
	}
	r.mu.Unlock()
	if ok {
		r.notifyChange()
	}
	return ent, ok
}

// Lookup returns the handler registered for a subscription id, or
// ErrNotFound when the id is unknown.
func (r *Registry) Lookup(sid string) (Handler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.bySID[sid]
	if !ok {
		return nil, ErrNotFound
	}
	return ent.handler, nil
}

// LookupPath resolves a callback path segment to its subscription id and
// handler. Used by the callback listener's dispatch path.
func (r *Registry) LookupPath(path string) (string, Handler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid, ok := r.byPath[path]
	if !ok {
		return "", nil, ErrNotFound
	}
	ent, ok := r.bySID[sid]
	if !ok {
		return "", nil, ErrNotFound
	}
	return sid, ent.handler, nil
}

// Get returns a snapshot of one subscription
func (r *Registry) Get(sid string) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ent, ok := r.bySID[sid]
	if !ok {
		return Subscription{}, false
	}
	return ent.Subscription, true
}

// Snapshots returns point-in-time copies of all live subscriptions
func (r *Registry) Snapshots() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := make([]Subscription, 0, len(r.bySID))
	for _, ent := range r.bySID {
		subs = append(subs, ent.Subscription)
	}
	return subs
}

// Len returns the number of live subscriptions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bySID)
}

// --- wire-level SUBSCRIBE/UNSUBSCRIBE ---

type subscribeRequest struct {
	callback string
	duration time.Duration
}

// rejectionError marks an HTTP-level refusal from the device, as opposed
// to a transport failure
type rejectionError struct {
	status int
}

func (e *rejectionError) Error() string {
	return fmt.Sprintf("device returned status %d", e.status)
}

func rejected(err error) bool {
	var re *rejectionError
	return errors.As(err, &re)
}

// sendSubscribe issues an initial SUBSCRIBE carrying CALLBACK and NT
// headers and returns the assigned sid and granted duration
func (r *Registry) sendSubscribe(ctx context.Context, eventURL string, sub subscribeRequest) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, "SUBSCRIBE", eventURL, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("CALLBACK", "<"+sub.callback+">")
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("TIMEOUT", formatTimeout(sub.duration))

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", 0, &rejectionError{status: resp.StatusCode}
	}

	sid := resp.Header.Get("SID")
	if sid == "" {
		return "", 0, fmt.Errorf("device response missing SID header")
	}

	return sid, parseTimeout(resp.Header.Get("TIMEOUT"), sub.duration), nil
}

// sendRenew issues a renewal SUBSCRIBE referencing the existing sid (no
// CALLBACK or NT headers) and returns the granted duration
func (r *Registry) sendRenew(ctx context.Context, eventURL, sid string, requested time.Duration) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, "SUBSCRIBE", eventURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("SID", sid)
	req.Header.Set("TIMEOUT", formatTimeout(requested))

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, &rejectionError{status: resp.StatusCode}
	}

	return parseTimeout(resp.Header.Get("TIMEOUT"), requested), nil
}

func (r *Registry) sendUnsubscribe(ctx context.Context, eventURL, sid string) error {
	req, err := http.NewRequestWithContext(ctx, "UNSUBSCRIBE", eventURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("SID", sid)

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &rejectionError{status: resp.StatusCode}
	}
	return nil
}

// formatTimeout renders a duration as the Second-N header value
func formatTimeout(d time.Duration) string {
	return fmt.Sprintf("Second-%d", int(d.Seconds()))
}

// parseTimeout parses a Second-N header value, falling back to the
// requested duration when the device answers something unparseable
// (some firmware replies "Second-infinite")
func parseTimeout(value string, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(value, "Second-"); ok {
		if secs, err := strconv.Atoi(rest); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
