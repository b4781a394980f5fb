// Package relay streams device notifications to WebSocket clients.
//
// A Relay implements eventing.Handler: every notification dispatched to it
// is serialized as JSON and broadcast to all connected WebSocket clients.
// This lets dashboards or other processes watch device state changes
// without speaking the notification protocol themselves.
package relay

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wemokit/wemokit/internal/eventing"
	"github.com/wemokit/wemokit/internal/logging"
)

const (
	// writeWait is the time allowed to write a message to a client
	writeWait = 10 * time.Second

	// sendBuffer is the per-client queue depth; clients that fall this far
	// behind are disconnected rather than allowed to stall the broadcast
	sendBuffer = 64
)

// Message is the JSON document broadcast for each device notification.
type Message struct {
	Time       time.Time         `json:"time"`
	SID        string            `json:"sid"`
	UDN        string            `json:"udn,omitempty"`
	Properties map[string]string `json:"properties"`
}

// Relay broadcasts device notifications to connected WebSocket clients.
// The zero value is not usable; call NewRelay.
type Relay struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	// ResolveUDN maps a subscription identifier to a device UDN for
	// outgoing messages. Optional; nil leaves UDN empty.
	ResolveUDN func(sid string) (string, bool)
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewRelay creates a relay with no connected clients.
func NewRelay() *Relay {
	return &Relay{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local-network tool; cross-origin dashboards are expected
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// HandleEvent implements eventing.Handler by broadcasting the event to all
// connected clients. Serialization failures are logged and dropped.
func (r *Relay) HandleEvent(event eventing.Event) {
	msg := Message{
		Time:       time.Now(),
		SID:        event.SID,
		Properties: event.Properties,
	}
	if r.ResolveUDN != nil {
		if udn, ok := r.ResolveUDN(event.SID); ok {
			msg.UDN = udn
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("Failed to marshal relay message", zap.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		select {
		case c.send <- data:
		default:
			// Client is not keeping up; drop it
			delete(r.clients, c)
			close(c.send)
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and streams
// broadcast messages to it until the client disconnects.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", req.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = conn.Close()
		return
	}
	r.clients[c] = struct{}{}
	count := len(r.clients)
	r.mu.Unlock()

	logging.Info("Relay client connected",
		zap.String("remote_addr", req.RemoteAddr),
		zap.Int("clients", count),
	)

	go c.writePump(r)
	c.readPump(r)
}

// ClientCount returns the number of connected clients.
func (r *Relay) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Close disconnects all clients and rejects future connections.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for c := range r.clients {
		delete(r.clients, c)
		close(c.send)
	}
}

// remove detaches a client, closing its send channel exactly once.
func (r *Relay) remove(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		close(c.send)
	}
}

// readPump drains inbound frames so close frames and pings are processed.
// Clients are read-only consumers; any payload they send is discarded.
func (c *client) readPump(r *Relay) {
	defer func() {
		r.remove(c)
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards queued broadcast messages to the connection.
func (c *client) writePump(r *Relay) {
	defer func() { _ = c.conn.Close() }()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			r.remove(c)
			return
		}
	}
	// Channel closed: say goodbye properly
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
