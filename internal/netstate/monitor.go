// Package netstate tracks whether the remote store is reachable and
// publishes a bus event on every transition.
package netstate

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/maclap/cashtrack/internal/bus"
	"go.uber.org/zap"
)

// Mode overrides the probed connectivity.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAuto, ModeOnline, ModeOffline:
		return m, nil
	case "":
		return ModeAuto, nil
	}
	return "", fmt.Errorf("invalid network mode %q: want auto, online or offline", s)
}

// Prober reports whether the remote is reachable right now.
type Prober func(ctx context.Context) bool

// DialProber returns a Prober that opens a TCP connection to addr.
func DialProber(addr string, timeout time.Duration) Prober {
	return func(ctx context.Context) bool {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}

// Options configures a Monitor.
type Options struct {
	Probe         Prober        // nil disables probing; use Set instead
	Interval      time.Duration // probe interval, default 10s
	Mode          Mode
	InitialOnline bool
}

// Monitor holds the effective online/offline signal.
type Monitor struct {
	bus      *bus.Bus
	logger   *zap.Logger
	probe    Prober
	interval time.Duration

	mu       sync.RWMutex
	mode     Mode
	observed bool
	online   bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor. No event is published for the initial state.
func NewMonitor(b *bus.Bus, logger *zap.Logger, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.Mode == "" {
		opts.Mode = ModeAuto
	}
	m := &Monitor{
		bus:      b,
		logger:   logger,
		probe:    opts.Probe,
		interval: opts.Interval,
		mode:     opts.Mode,
		observed: opts.InitialOnline,
	}
	m.online = m.effective()
	return m
}

// Online reports the effective connectivity.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Mode returns the current override mode.
func (m *Monitor) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// Set records observed connectivity. It only changes the effective state in auto mode.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	m.observed = online
	changed := m.recompute()
	m.mu.Unlock()
	m.announce(changed)
}

// SetMode changes the override mode.
func (m *Monitor) SetMode(mode Mode) {
	m.mu.Lock()
	m.mode = mode
	changed := m.recompute()
	m.mu.Unlock()
	m.logger.Info("network mode changed", zap.String("mode", string(mode)))
	m.announce(changed)
}

// Start probes once synchronously, then keeps probing in the background
// until Stop or ctx is cancelled. Without a Prober it does nothing.
func (m *Monitor) Start(ctx context.Context) {
	if m.probe == nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.Set(m.probe(ctx))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Set(m.probe(ctx))
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts probing and waits for the probe loop to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) effective() bool {
	switch m.mode {
	case ModeOnline:
		return true
	case ModeOffline:
		return false
	}
	return m.observed
}

// recompute must be called with mu held. It returns the new state and
// whether it changed, packed as a pointer (nil when unchanged).
func (m *Monitor) recompute() *bool {
	next := m.effective()
	if next == m.online {
		return nil
	}
	m.online = next
	return &next
}

func (m *Monitor) announce(changed *bool) {
	if changed == nil {
		return
	}
	kind := bus.KindNetOffline
	if *changed {
		kind = bus.KindNetOnline
	}
	m.logger.Info("connectivity changed", zap.Bool("online", *changed))
	if m.bus != nil {
		m.bus.Publish(bus.NewEvent(kind, *changed))
	}
}
