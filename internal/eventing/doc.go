// Package eventing implements the UPnP eventing side of the toolkit:
// subscriptions, renewals, and the callback listener WeMo devices push
// state changes to.
//
// # Architecture
//
// Three pieces share one Registry:
//
//   - Registry: the single source of truth for live subscriptions. All
//     subscribe/renew/unsubscribe/lookup operations go through it and are
//     serialized by one internal mutex, so no caller ever observes a
//     half-updated subscription.
//   - Listener: one HTTP endpoint per process. Each subscription gets a
//     generated path segment; the segment in an inbound NOTIFY path is the
//     correlation key back to the subscription and its handler.
//   - Scheduler: a single background goroutine that sleeps until the
//     earliest renewal deadline and renews due subscriptions. A rejected
//     renewal is recovered with a fresh subscribe reusing the original
//     callback and handler; if that also fails the subscription is dropped
//     and the handler notified via LostHandler.
//
// Manager wires the three together with an explicit lifecycle:
//
//	mgr, err := eventing.Start(eventing.ListenerConfig{Port: 0})
//	if err != nil { ... }
//	defer mgr.Shutdown(ctx)
//
//	sid, err := mgr.Subscribe(ctx, device, 300*time.Second,
//	    eventing.HandlerFunc(func(e eventing.Event) {
//	        fmt.Println(e.Properties["BinaryState"])
//	    }))
//
// # Wire Format
//
// Subscriptions use SUBSCRIBE/UNSUBSCRIBE requests against the device's
// event URL (CALLBACK, NT and TIMEOUT headers; renewals reference the SID
// instead). Devices push NOTIFY requests carrying an XML property set to
// the callback URL.
//
// # Duplicate Subscriptions
//
// The registry permits multiple concurrent subscriptions to the same
// device; renewal and removal are always keyed by subscription id, never
// by device, so duplicates stay correct. Nothing coalesces them.
package eventing
