package relay

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wemokit/wemokit/internal/eventing"
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, r *Relay, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("ClientCount() = %d, want %d", r.ClientCount(), want)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v (payload %q)", err, data)
	}
	return msg
}

func TestRelay_BroadcastsToAllClients(t *testing.T) {
	r := NewRelay()
	defer r.Close()

	server := httptest.NewServer(r)
	defer server.Close()

	c1 := dial(t, wsURL(server))
	c2 := dial(t, wsURL(server))
	waitForClients(t, r, 2)

	r.HandleEvent(eventing.Event{
		SID:        "uuid:sub-1",
		Properties: map[string]string{"BinaryState": "1"},
	})

	for _, conn := range []*websocket.Conn{c1, c2} {
		msg := readMessage(t, conn)
		if msg.SID != "uuid:sub-1" {
			t.Errorf("msg.SID = %s, want uuid:sub-1", msg.SID)
		}
		if msg.Properties["BinaryState"] != "1" {
			t.Errorf("msg.Properties = %v, want BinaryState=1", msg.Properties)
		}
	}
}

func TestRelay_ResolvesUDN(t *testing.T) {
	r := NewRelay()
	defer r.Close()
	r.ResolveUDN = func(sid string) (string, bool) {
		if sid == "uuid:sub-1" {
			return "uuid:Socket-1_0-AAAA", true
		}
		return "", false
	}

	server := httptest.NewServer(r)
	defer server.Close()

	conn := dial(t, wsURL(server))
	waitForClients(t, r, 1)

	r.HandleEvent(eventing.Event{SID: "uuid:sub-1", Properties: map[string]string{}})

	msg := readMessage(t, conn)
	if msg.UDN != "uuid:Socket-1_0-AAAA" {
		t.Errorf("msg.UDN = %s, want resolved UDN", msg.UDN)
	}
}

func TestRelay_DisconnectedClientRemoved(t *testing.T) {
	r := NewRelay()
	defer r.Close()

	server := httptest.NewServer(r)
	defer server.Close()

	conn := dial(t, wsURL(server))
	waitForClients(t, r, 1)

	_ = conn.Close()
	waitForClients(t, r, 0)

	// Broadcasting with no clients must not block or panic
	r.HandleEvent(eventing.Event{SID: "uuid:sub-1", Properties: map[string]string{}})
}

func TestRelay_CloseDisconnectsClients(t *testing.T) {
	r := NewRelay()

	server := httptest.NewServer(r)
	defer server.Close()

	conn := dial(t, wsURL(server))
	waitForClients(t, r, 1)

	r.Close()

	// The server sends a close frame; the next read must fail
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	if r.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after Close, want 0", r.ClientCount())
	}
}

func TestRelay_SlowClientDropped(t *testing.T) {
	r := NewRelay()
	defer r.Close()

	// A client whose queue is already full: the unbuffered channel with no
	// reader models a writePump that has stalled completely
	stalled := &client{send: make(chan []byte)}
	r.mu.Lock()
	r.clients[stalled] = struct{}{}
	r.mu.Unlock()

	r.HandleEvent(eventing.Event{SID: "uuid:sub-1", Properties: map[string]string{}})

	if r.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want stalled client dropped", r.ClientCount())
	}
	if _, open := <-stalled.send; open {
		t.Error("stalled client's send channel should be closed")
	}
}
