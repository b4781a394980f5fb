package eventing

import (
	"context"
	"testing"
	"time"
)

// End-to-end: subscribe, simulated renewal tick, inbound notification
func TestManager_SubscribeRenewNotify(t *testing.T) {
	device := newFakeDevice(t)

	mgr, err := Start(ListenerConfig{Host: "127.0.0.1", Port: 0})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = mgr.Shutdown(context.Background()) }()

	handler := newRecordingHandler()
	sid, err := mgr.Subscribe(context.Background(), device.device("uuid:D1"),
		300*time.Second, handler)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Renewal tick at 200s into the 300s lease: exactly one renew, a
	// fresh lease, and no handler involvement
	before, _ := mgr.Registry().Get(sid)
	mgr.scheduler.renewDue(context.Background(), time.Now().Add(200*time.Second))

	_, renews, _ := device.counts()
	if renews != 1 {
		t.Errorf("device saw %d renewals, want 1", renews)
	}
	after, _ := mgr.Registry().Get(sid)
	if !after.Expires.After(before.Expires) {
		t.Errorf("renewal did not extend expiry: %v -> %v", before.Expires, after.Expires)
	}
	if handler.eventCount() != 0 {
		t.Errorf("handler invoked %d times by renewal, want 0", handler.eventCount())
	}

	// Inbound notification with the current sid's callback URL
	sub, _ := mgr.Registry().Get(sid)
	resp := notify(t, sub.CallbackURL, binaryStateNotify)
	if resp.StatusCode != 200 {
		t.Fatalf("NOTIFY status = %d, want 200", resp.StatusCode)
	}

	select {
	case <-handler.gotOne:
	case <-time.After(2 * time.Second):
		t.Fatal("handler not invoked for notification")
	}

	event, _ := handler.lastEvent()
	if event.SID != sid {
		t.Errorf("event.SID = %s, want %s", event.SID, sid)
	}
	if event.Properties["BinaryState"] != "1" {
		t.Errorf("event.Properties = %v, want BinaryState=1", event.Properties)
	}
	if handler.eventCount() != 1 {
		t.Errorf("handler invoked %d times, want exactly 1", handler.eventCount())
	}
}

func TestManager_ShutdownUnsubscribesAll(t *testing.T) {
	device := newFakeDevice(t)

	mgr, err := Start(ListenerConfig{Host: "127.0.0.1", Port: 0})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, udn := range []string{"uuid:D1", "uuid:D2"} {
		if _, err := mgr.Subscribe(context.Background(), device.device(udn),
			300*time.Second, newRecordingHandler()); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", udn, err)
		}
	}

	if err := mgr.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	_, _, unsubs := device.counts()
	if unsubs != 2 {
		t.Errorf("device saw %d UNSUBSCRIBE requests, want 2", unsubs)
	}
	if mgr.Registry().Len() != 0 {
		t.Errorf("registry.Len() = %d, want 0 after shutdown", mgr.Registry().Len())
	}
}
