package control

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wemokit/wemokit/internal/description"
)

const setStateResponse = `<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body>
<u:SetBinaryStateResponse xmlns:u="urn:Belkin:service:basicevent:1">
<BinaryState>1</BinaryState>
</u:SetBinaryStateResponse>
</s:Body></s:Envelope>`

const getStateResponse = `<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body>
<u:GetBinaryStateResponse xmlns:u="urn:Belkin:service:basicevent:1">
<BinaryState>0</BinaryState>
</u:GetBinaryStateResponse>
</s:Body></s:Envelope>`

const faultResponse = `<?xml version="1.0" encoding="utf-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body>
<s:Fault>
<faultcode>s:Client</faultcode>
<faultstring>UPnPError</faultstring>
<detail>
<UPnPError xmlns="urn:schemas-upnp-org:control-1-0">
<errorCode>401</errorCode>
<errorDescription>Invalid Action</errorDescription>
</UPnPError>
</detail>
</s:Fault>
</s:Body></s:Envelope>`

// testDevice builds a Device pointing at the given control server
func testDevice(serverURL string) *description.Device {
	return &description.Device{
		UDN:          "uuid:Socket-1_0-TEST",
		FriendlyName: "Test Socket",
		ServiceType:  "urn:Belkin:service:basicevent:1",
		BaseURL:      serverURL,
		ControlURL:   serverURL + "/upnp/control/basicevent1",
		EventURL:     serverURL + "/upnp/event/basicevent1",
	}
}

func TestSend_Success(t *testing.T) {
	var gotSOAPAction, gotContentType, gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSOAPAction = r.Header.Get("SOAPACTION")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = w.Write([]byte(setStateResponse))
	}))
	defer server.Close()

	client := NewClient()
	result, err := client.Send(context.Background(), testDevice(server.URL),
		NewCommand("SetBinaryState", "BinaryState", "1"))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if result["BinaryState"] != "1" {
		t.Errorf("result[BinaryState] = %q, want \"1\"", result["BinaryState"])
	}

	wantAction := `"urn:Belkin:service:basicevent:1#SetBinaryState"`
	if gotSOAPAction != wantAction {
		t.Errorf("SOAPACTION = %s, want %s", gotSOAPAction, wantAction)
	}
	if !strings.Contains(gotContentType, "text/xml") {
		t.Errorf("Content-Type = %s, want text/xml", gotContentType)
	}
	if !strings.Contains(gotBody, "<BinaryState>1</BinaryState>") {
		t.Errorf("request body missing argument element: %s", gotBody)
	}
	if !strings.Contains(gotBody, `<u:SetBinaryState xmlns:u="urn:Belkin:service:basicevent:1">`) {
		t.Errorf("request body missing action element: %s", gotBody)
	}
}

func TestSend_Fault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(faultResponse))
	}))
	defer server.Close()

	client := NewClient()
	result, err := client.Send(context.Background(), testDevice(server.URL),
		NewCommand("SetBinaryState", "BinaryState", "1"))

	if result != nil {
		t.Errorf("Send() result = %v, want nil on fault", result)
	}

	var fault *Fault
	if !errors.As(err, &fault) {
		t.Fatalf("Send() error = %T (%v), want *Fault", err, err)
	}
	if fault.Code != 401 {
		t.Errorf("fault.Code = %d, want 401", fault.Code)
	}
	if fault.Description != "Invalid Action" {
		t.Errorf("fault.Description = %q, want \"Invalid Action\"", fault.Description)
	}
}

func TestSend_TransportError(t *testing.T) {
	// Point at a server that is already closed
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient()
	_, err := client.Send(context.Background(), testDevice(server.URL),
		NewCommand("GetBinaryState"))

	if !IsTransportError(err) {
		t.Errorf("Send() error = %T (%v), want *TransportError", err, err)
	}
}

func TestSend_ArgumentEscaping(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = w.Write([]byte(setStateResponse))
	}))
	defer server.Close()

	client := NewClient()
	_, err := client.Send(context.Background(), testDevice(server.URL),
		NewCommand("ChangeFriendlyName", "FriendlyName", `Lamp <&> "Den"`))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if strings.Contains(gotBody, `Lamp <&>`) {
		t.Errorf("argument value was not XML-escaped: %s", gotBody)
	}
	if !strings.Contains(gotBody, "Lamp &lt;&amp;&gt;") {
		t.Errorf("expected escaped argument value in body: %s", gotBody)
	}
}

func TestSwitch_State(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     int
	}{
		{"off", getStateResponse, StateOff},
		{"on", strings.Replace(getStateResponse, ">0<", ">1<", 1), StateOn},
		{"insight standby with power readings", strings.Replace(getStateResponse, ">0<", ">8|1758000000|0|0|0|1209600|0|0|0|0<", 1), StateStandby},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			sw := NewSwitch(testDevice(server.URL))
			state, err := sw.State(context.Background())
			if err != nil {
				t.Fatalf("State() error = %v", err)
			}
			if state != tt.want {
				t.Errorf("State() = %d, want %d", state, tt.want)
			}
		})
	}
}

func TestSwitch_Toggle(t *testing.T) {
	var setBodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "GetBinaryState") {
			_, _ = w.Write([]byte(getStateResponse)) // reports off
			return
		}
		setBodies = append(setBodies, string(body))
		_, _ = w.Write([]byte(setStateResponse))
	}))
	defer server.Close()

	sw := NewSwitch(testDevice(server.URL))
	state, err := sw.Toggle(context.Background())
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if state != StateOn {
		t.Errorf("Toggle() = %d, want %d (device was off)", state, StateOn)
	}
	if len(setBodies) != 1 || !strings.Contains(setBodies[0], "<BinaryState>1</BinaryState>") {
		t.Errorf("Toggle() should have sent exactly one SetBinaryState 1, got %v", setBodies)
	}
}

func TestSwitch_RetryRecoversTransientFailure(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			// Simulate a dropped connection on the first attempt
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("response writer does not support hijacking")
			}
			conn, _, _ := hj.Hijack()
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(setStateResponse))
	}))
	defer server.Close()

	sw := NewSwitch(testDevice(server.URL))
	sw.RetryInitialInterval = 10 * time.Millisecond

	if err := sw.OnWithRetry(context.Background()); err != nil {
		t.Fatalf("OnWithRetry() error = %v, want recovery on second attempt", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestSwitch_RetryDoesNotRetryFaults(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(faultResponse))
	}))
	defer server.Close()

	sw := NewSwitch(testDevice(server.URL))
	sw.RetryInitialInterval = 10 * time.Millisecond

	err := sw.OnWithRetry(context.Background())
	if !IsFault(err) {
		t.Fatalf("OnWithRetry() error = %T (%v), want *Fault", err, err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (faults are permanent)", attempts)
	}
}
