package eventing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wemokit/wemokit/internal/description"
	"github.com/wemokit/wemokit/internal/logging"
)

// Manager owns the eventing subsystem: one registry, one callback
// listener, one renewal scheduler, with an explicit lifecycle. Create it
// with Start, subscribe devices, and tear everything down with Shutdown.
type Manager struct {
	registry  *Registry
	listener  *Listener
	scheduler *Scheduler
}

// Start binds the callback listener and launches the renewal scheduler
func Start(cfg ListenerConfig) (*Manager, error) {
	registry := NewRegistry()

	listener, err := NewListener(cfg, registry)
	if err != nil {
		return nil, err
	}

	scheduler := NewScheduler(registry)

	listener.Start()
	scheduler.Start()

	return &Manager{
		registry:  registry,
		listener:  listener,
		scheduler: scheduler,
	}, nil
}

// Registry exposes the subscription registry for lookups and snapshots
func (m *Manager) Registry() *Registry {
	return m.registry
}

// CallbackBase returns the URL prefix advertised to devices
func (m *Manager) CallbackBase() string {
	return m.listener.CallbackBase()
}

// Subscribe subscribes to a device's events with the manager's callback
// listener and returns the subscription id. The scheduler renews the
// subscription until Unsubscribe or Shutdown.
func (m *Manager) Subscribe(ctx context.Context, device *description.Device, duration time.Duration, handler Handler) (string, error) {
	return m.registry.Subscribe(ctx, device, m.listener.CallbackBase(), duration, handler)
}

// Unsubscribe cancels one subscription
func (m *Manager) Unsubscribe(ctx context.Context, sid string) error {
	return m.registry.Unsubscribe(ctx, sid)
}

// Shutdown stops renewal, best-effort unsubscribes every live
// subscription, then releases the listener's bound address.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.scheduler.Stop()

	for _, sub := range m.registry.Snapshots() {
		if err := m.registry.Unsubscribe(ctx, sub.SID); err != nil {
			logging.Warn("Shutdown unsubscribe failed",
				zap.String("sid", sub.SID), zap.Error(err))
		}
	}

	return m.listener.Close()
}
