package devices

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"go.uber.org/zap"
)

const hotplugSettle = 300 * time.Millisecond

// Monitor listens for udev netlink events and calls onChange when a camera
// or sound device is added or removed. Bursts of events are coalesced into
// one call.
type Monitor struct {
	log      *zap.Logger
	onChange func()
	settle   time.Duration
	connect  func() (*netlink.UEventConn, error)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	timer   *time.Timer
	running bool
}

// NewMonitor creates a monitor. It returns nil when onChange is nil.
func NewMonitor(log *zap.Logger, onChange func()) *Monitor {
	if onChange == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{log: log, onChange: onChange, settle: hotplugSettle, connect: connectUdev}
}

func connectUdev() (*netlink.UEventConn, error) {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, err
	}
	return conn, nil
}

// Start begins listening. If the netlink socket cannot be opened the error
// is returned and the monitor stays stopped; enumeration still works on
// demand.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn, err := m.connect()
	if err != nil {
		return fmt.Errorf("connect netlink: %w", err)
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.loop(ctx, conn, quit)

	m.log.Info("hotplug monitor started")
	return nil
}

// Stop shuts the monitor down. Safe on a nil or stopped monitor.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	_ = m.conn.Close()
	m.conn = nil
	m.running = false

	m.log.Info("hotplug monitor stopped")
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, hotplugMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case ev := <-queue:
			m.handleEvent(ev)
		case err := <-errs:
			m.log.Warn("netlink monitor error", zap.Error(err))
		}
	}
}

// hotplugMatcher matches add/remove of video4linux and sound devices.
func hotplugMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    map[string]string{"SUBSYSTEM": "video4linux"},
	})
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    map[string]string{"SUBSYSTEM": "sound"},
	})
	return rules
}

// handleEvent (re)arms the settle timer.
func (m *Monitor) handleEvent(ev netlink.UEvent) {
	m.log.Debug("device hotplug",
		zap.String("action", string(ev.Action)),
		zap.String("subsystem", ev.Env["SUBSYSTEM"]),
		zap.String("devname", ev.Env["DEVNAME"]))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Reset(m.settle)
		return
	}
	m.timer = time.AfterFunc(m.settle, m.fire)
}

func (m *Monitor) fire() {
	m.mu.Lock()
	m.timer = nil
	m.mu.Unlock()
	m.onChange()
}
