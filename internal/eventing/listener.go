package eventing

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wemokit/wemokit/internal/logging"
	"github.com/wemokit/wemokit/internal/netutil"
)

const (
	// DefaultBasePath is the path prefix notifications are routed under
	DefaultBasePath = "/notify"

	// maxNotifySize caps how much of a NOTIFY body is read
	maxNotifySize = 1024 * 1024

	// listenerShutdownGrace bounds how long Close waits for in-flight
	// requests before tearing the server down
	listenerShutdownGrace = 3 * time.Second
)

// ListenerConfig configures the callback listener binding
type ListenerConfig struct {
	// Host is the bind address. Empty or "0.0.0.0" binds all interfaces
	// and advertises the outbound-interface address in callback URLs.
	Host string

	// Port is the bind port; 0 picks an ephemeral port
	Port int

	// BasePath is the path prefix for callback URLs; empty uses
	// DefaultBasePath
	BasePath string
}

// Listener is the HTTP endpoint devices push notifications to. One
// listener is bound per process for the lifetime of the eventing
// subsystem; inbound NOTIFY requests are correlated to subscriptions via
// the generated path segment and dispatched to the registered handler.
type Listener struct {
	registry *Registry
	basePath string

	server       *http.Server
	netListener  net.Listener
	advertisedIP net.IP
}

// NewListener creates a listener bound per cfg. The socket is bound
// immediately (so the effective port is known) but serving starts with
// Start.
func NewListener(cfg ListenerConfig, registry *Registry) (*Listener, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	basePath = "/" + strings.Trim(basePath, "/")

	ip, err := netutil.ResolveBindIP(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve callback address: %w", err)
	}

	bindHost := cfg.Host
	if bindHost == "" {
		bindHost = "0.0.0.0"
	}

	nl, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bindHost, cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to bind callback listener: %w", err)
	}

	l := &Listener{
		registry:     registry,
		basePath:     basePath,
		netListener:  nl,
		advertisedIP: ip,
	}
	l.server = &http.Server{Handler: l}
	return l, nil
}

// Start begins serving notifications. It returns immediately; the serve
// loop runs on its own goroutine until Close.
func (l *Listener) Start() {
	logging.Info("Callback listener started",
		zap.String("addr", l.netListener.Addr().String()),
		zap.String("callback_base", l.CallbackBase()),
	)
	go func() {
		if err := l.server.Serve(l.netListener); err != nil && err != http.ErrServerClosed {
			logging.Error("Callback listener stopped unexpectedly", zap.Error(err))
		}
	}()
}

// Port returns the effective bound port
func (l *Listener) Port() int {
	return l.netListener.Addr().(*net.TCPAddr).Port
}

// CallbackBase returns the URL prefix advertised to devices:
// http://<local-ip>:<port><base-path>
func (l *Listener) CallbackBase() string {
	return fmt.Sprintf("http://%s:%d%s", l.advertisedIP, l.Port(), l.basePath)
}

// Close shuts the listener down, releasing the bound address. In-flight
// requests get a short grace period.
func (l *Listener) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), listenerShutdownGrace)
	defer cancel()
	return l.server.Shutdown(ctx)
}

// ServeHTTP handles one inbound notification.
//
// Response contract: unknown paths get 404, malformed bodies get 400 and
// the handler is never invoked, known well-formed notifications get 200
// regardless of what the handler does. The handler runs on its own
// goroutine so a slow handler cannot stall delivery to other
// subscriptions.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segment, ok := l.pathSegment(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	sid, handler, err := l.registry.LookupPath(segment)
	if err != nil {
		// Unsubscribed, expired-and-dropped, or never existed; the
		// notification is discarded either way
		logging.LogNotify(r.RemoteAddr, r.URL.Path, r.Header.Get("SID"), http.StatusNotFound)
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotifySize))
	if err != nil {
		logging.LogNotify(r.RemoteAddr, r.URL.Path, sid, http.StatusBadRequest)
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	props, err := ParseEventBody(body)
	if err != nil {
		logging.LogNotify(r.RemoteAddr, r.URL.Path, sid, http.StatusBadRequest)
		http.Error(w, "malformed event body", http.StatusBadRequest)
		return
	}

	event := Event{SID: sid, Properties: props}
	go l.dispatch(handler, event)

	logging.LogNotify(r.RemoteAddr, r.URL.Path, sid, http.StatusOK)
	w.WriteHeader(http.StatusOK)
}

// dispatch invokes the handler, containing panics so a misbehaving handler
// cannot take the listener down
func (l *Listener) dispatch(handler Handler, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("Event handler panicked",
				zap.String("sid", event.SID),
				zap.Any("panic", rec),
			)
		}
	}()
	handler.HandleEvent(event)
}

// pathSegment extracts the routing segment from a request path: the path
// must be exactly <basePath>/<segment>
func (l *Listener) pathSegment(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, l.basePath+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
