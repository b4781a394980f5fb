package eventing

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/wemokit/wemokit/internal/description"
)

// fakeDevice emulates the eventing side of a WeMo device: SUBSCRIBE and
// UNSUBSCRIBE against the event URL, with configurable rejection.
type fakeDevice struct {
	server *httptest.Server

	mu               sync.Mutex
	sidCounter       int
	active           map[string]bool   // sid -> live
	callbacks        map[string]string // sid -> callback URL
	subscribeCount   int
	renewCount       int
	unsubscribeCount int

	rejectSubscribes bool
	rejectRenews     bool
	grantedTimeout   string // TIMEOUT response header; default Second-300
}

func newFakeDevice(t interface{ Cleanup(func()) }) *fakeDevice {
	d := &fakeDevice{
		active:         make(map[string]bool),
		callbacks:      make(map[string]string),
		grantedTimeout: "Second-300",
	}
	d.server = httptest.NewServer(http.HandlerFunc(d.handle))
	t.Cleanup(d.server.Close)
	return d
}

// device builds a Device whose event URL points at the fake
func (d *fakeDevice) device(udn string) *description.Device {
	return &description.Device{
		UDN:          udn,
		FriendlyName: "Fake " + udn,
		ServiceType:  "urn:Belkin:service:basicevent:1",
		BaseURL:      d.server.URL,
		ControlURL:   d.server.URL + "/upnp/control/basicevent1",
		EventURL:     d.server.URL + "/upnp/event/basicevent1",
	}
}

func (d *fakeDevice) handle(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch r.Method {
	case "SUBSCRIBE":
		if sid := r.Header.Get("SID"); sid != "" {
			// Renewal
			d.renewCount++
			if d.rejectRenews || !d.active[sid] {
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
			w.Header().Set("SID", sid)
			w.Header().Set("TIMEOUT", d.grantedTimeout)
			w.WriteHeader(http.StatusOK)
			return
		}

		// Initial subscribe
		d.subscribeCount++
		if d.rejectSubscribes {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		d.sidCounter++
		sid := fmt.Sprintf("uuid:fake-sub-%d", d.sidCounter)
		d.active[sid] = true
		d.callbacks[sid] = strings.Trim(r.Header.Get("CALLBACK"), "<>")
		w.Header().Set("SID", sid)
		w.Header().Set("TIMEOUT", d.grantedTimeout)
		w.WriteHeader(http.StatusOK)

	case "UNSUBSCRIBE":
		d.unsubscribeCount++
		sid := r.Header.Get("SID")
		if !d.active[sid] {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		delete(d.active, sid)
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (d *fakeDevice) counts() (subscribes, renews, unsubscribes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subscribeCount, d.renewCount, d.unsubscribeCount
}

func (d *fakeDevice) dropSID(sid string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, sid)
}

func (d *fakeDevice) setRejectRenews(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rejectRenews = v
}

func (d *fakeDevice) setRejectSubscribes(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rejectSubscribes = v
}

// recordingHandler collects delivered events and lost notifications
type recordingHandler struct {
	mu     sync.Mutex
	events []Event
	lost   []string
	gotOne chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{gotOne: make(chan struct{}, 16)}
}

func (h *recordingHandler) HandleEvent(e Event) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
	h.gotOne <- struct{}{}
}

func (h *recordingHandler) SubscriptionLost(sid string, err error) {
	h.mu.Lock()
	h.lost = append(h.lost, sid)
	h.mu.Unlock()
}

func (h *recordingHandler) eventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *recordingHandler) lastEvent() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) == 0 {
		return Event{}, false
	}
	return h.events[len(h.events)-1], true
}

func (h *recordingHandler) lostCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.lost)
}
