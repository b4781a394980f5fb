package eventing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRegistry_Subscribe(t *testing.T) {
	device := newFakeDevice(t)
	registry := NewRegistry()

	handler := newRecordingHandler()
	sid, err := registry.Subscribe(context.Background(), device.device("uuid:D1"),
		"http://192.168.1.10:8989/notify", 300*time.Second, handler)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if sid == "" {
		t.Fatal("Subscribe() returned empty sid")
	}

	sub, ok := registry.Get(sid)
	if !ok {
		t.Fatal("Get() did not find the new subscription")
	}
	if sub.DeviceUDN != "uuid:D1" {
		t.Errorf("DeviceUDN = %s, want uuid:D1", sub.DeviceUDN)
	}
	if sub.Granted != 300*time.Second {
		t.Errorf("Granted = %v, want 300s", sub.Granted)
	}
	if sub.CallbackPath == "" {
		t.Error("CallbackPath is empty")
	}

	got, err := registry.Lookup(sid)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got != Handler(handler) {
		t.Error("Lookup() returned a different handler than registered")
	}
}

func TestRegistry_SubscribeFailureLeavesNoState(t *testing.T) {
	device := newFakeDevice(t)
	device.setRejectSubscribes(true)
	registry := NewRegistry()

	_, err := registry.Subscribe(context.Background(), device.device("uuid:D1"),
		"http://192.168.1.10:8989/notify", 300*time.Second, newRecordingHandler())

	var subErr *SubscribeError
	if !errors.As(err, &subErr) {
		t.Fatalf("Subscribe() error = %T (%v), want *SubscribeError", err, err)
	}
	if registry.Len() != 0 {
		t.Errorf("registry.Len() = %d, want 0 after failed subscribe", registry.Len())
	}
}

func TestRegistry_ConcurrentSubscribes(t *testing.T) {
	device := newFakeDevice(t)
	registry := NewRegistry()

	const n = 8
	sids := make([]string, n)
	handlers := make([]*recordingHandler, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		handlers[i] = newRecordingHandler()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid, err := registry.Subscribe(context.Background(),
				device.device(fmt.Sprintf("uuid:D%d", i)),
				"http://192.168.1.10:8989/notify", 300*time.Second, handlers[i])
			if err != nil {
				t.Errorf("Subscribe(%d) error = %v", i, err)
				return
			}
			sids[i] = sid
		}(i)
	}
	wg.Wait()

	if registry.Len() != n {
		t.Fatalf("registry.Len() = %d, want %d", registry.Len(), n)
	}

	// Each sid must resolve to its own handler
	for i := 0; i < n; i++ {
		got, err := registry.Lookup(sids[i])
		if err != nil {
			t.Errorf("Lookup(%s) error = %v", sids[i], err)
			continue
		}
		if got != Handler(handlers[i]) {
			t.Errorf("Lookup(%s) resolved to another subscription's handler", sids[i])
		}
	}
}

func TestRegistry_RenewUnknownIDPerformsNoNetworkCall(t *testing.T) {
	device := newFakeDevice(t)
	registry := NewRegistry()

	_, err := registry.Renew(context.Background(), "uuid:never-existed")

	var renewErr *RenewError
	if !errors.As(err, &renewErr) {
		t.Fatalf("Renew() error = %T (%v), want *RenewError", err, err)
	}
	if renewErr.SID != "uuid:never-existed" {
		t.Errorf("RenewError.SID = %s, want uuid:never-existed", renewErr.SID)
	}

	subs, renews, unsubs := device.counts()
	if subs+renews+unsubs != 0 {
		t.Errorf("device saw %d requests, want 0", subs+renews+unsubs)
	}
}

func TestRegistry_RenewExtendsExpiry(t *testing.T) {
	device := newFakeDevice(t)
	registry := NewRegistry()

	sid, err := registry.Subscribe(context.Background(), device.device("uuid:D1"),
		"http://192.168.1.10:8989/notify", 300*time.Second, newRecordingHandler())
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	before, _ := registry.Get(sid)
	time.Sleep(10 * time.Millisecond)

	expires, err := registry.Renew(context.Background(), sid)
	if err != nil {
		t.Fatalf("Renew() error = %v", err)
	}
	if !expires.After(before.Expires) {
		t.Errorf("Renew() expiry %v not after previous %v", expires, before.Expires)
	}

	after, _ := registry.Get(sid)
	if !after.Expires.Equal(expires) {
		t.Errorf("stored expiry %v != returned expiry %v", after.Expires, expires)
	}
}

func TestRegistry_RenewRejectedRemovesEntry(t *testing.T) {
	device := newFakeDevice(t)
	registry := NewRegistry()

	sid, err := registry.Subscribe(context.Background(), device.device("uuid:D1"),
		"http://192.168.1.10:8989/notify", 300*time.Second, newRecordingHandler())
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Device-side expiry: the device forgets the sid
	device.dropSID(sid)

	_, err = registry.Renew(context.Background(), sid)
	var renewErr *RenewError
	if !errors.As(err, &renewErr) {
		t.Fatalf("Renew() error = %T (%v), want *RenewError", err, err)
	}
	if !renewErr.Rejected {
		t.Error("RenewError.Rejected = false, want true for device-side rejection")
	}

	if _, lookupErr := registry.Lookup(sid); !errors.Is(lookupErr, ErrNotFound) {
		t.Errorf("Lookup() after rejected renewal = %v, want ErrNotFound", lookupErr)
	}
}

func TestRegistry_Unsubscribe(t *testing.T) {
	device := newFakeDevice(t)
	registry := NewRegistry()

	sid, err := registry.Subscribe(context.Background(), device.device("uuid:D1"),
		"http://192.168.1.10:8989/notify", 300*time.Second, newRecordingHandler())
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := registry.Unsubscribe(context.Background(), sid); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}

	if _, err := registry.Lookup(sid); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup() after unsubscribe = %v, want ErrNotFound", err)
	}

	_, _, unsubs := device.counts()
	if unsubs != 1 {
		t.Errorf("device saw %d UNSUBSCRIBE requests, want 1", unsubs)
	}
}

func TestRegistry_UnsubscribeRemovesEntryDespiteTransportFailure(t *testing.T) {
	device := newFakeDevice(t)
	registry := NewRegistry()

	sid, err := registry.Subscribe(context.Background(), device.device("uuid:D1"),
		"http://192.168.1.10:8989/notify", 300*time.Second, newRecordingHandler())
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Device goes away before the unsubscribe
	device.server.Close()

	if err := registry.Unsubscribe(context.Background(), sid); err != nil {
		t.Fatalf("Unsubscribe() error = %v, transport failure must be swallowed", err)
	}
	if registry.Len() != 0 {
		t.Errorf("registry.Len() = %d, want 0", registry.Len())
	}
}

func TestRegistry_UnsubscribeUnknownID(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Unsubscribe(context.Background(), "uuid:nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Unsubscribe() = %v, want ErrNotFound", err)
	}
}

func TestRegistry_DuplicateSubscriptionsToSameDevice(t *testing.T) {
	device := newFakeDevice(t)
	registry := NewRegistry()

	dev := device.device("uuid:D1")
	sid1, err := registry.Subscribe(context.Background(), dev,
		"http://192.168.1.10:8989/notify", 300*time.Second, newRecordingHandler())
	if err != nil {
		t.Fatalf("first Subscribe() error = %v", err)
	}
	sid2, err := registry.Subscribe(context.Background(), dev,
		"http://192.168.1.10:8989/notify", 300*time.Second, newRecordingHandler())
	if err != nil {
		t.Fatalf("second Subscribe() error = %v", err)
	}

	if sid1 == sid2 {
		t.Fatal("duplicate subscriptions share a sid")
	}
	// id-keyed removal only touches its own entry
	if err := registry.Unsubscribe(context.Background(), sid1); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if _, err := registry.Lookup(sid2); err != nil {
		t.Errorf("Lookup(sid2) after removing sid1 = %v, want nil", err)
	}
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"Second-300", 300 * time.Second},
		{"Second-1800", 1800 * time.Second},
		{"Second-infinite", 120 * time.Second}, // fallback
		{"", 120 * time.Second},                // fallback
		{"garbage", 120 * time.Second},         // fallback
	}

	for _, tt := range tests {
		if got := parseTimeout(tt.value, 120*time.Second); got != tt.want {
			t.Errorf("parseTimeout(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
