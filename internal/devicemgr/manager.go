// Package devicemgr is the device manager of spec.md §4.4: it decides
// whether each known device is grabbed and bound to a keyboard instance,
// and drives the registry reload sequence of spec.md §4.3.
package devicemgr

import (
	"fmt"
	"time"

	"github.com/hidmux/keydaemon/internal/device"
	"github.com/hidmux/keydaemon/internal/hiddev"
	"github.com/hidmux/keydaemon/internal/remapconfig"
	"github.com/hidmux/keydaemon/internal/vkbd"
)

// Logger is the minimal logging surface the manager needs, satisfied by
// *zap.SugaredLogger in production and a no-op fake in tests.
type Logger interface {
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
}

// Manager owns the device table and the config registry it binds
// against.
type Manager struct {
	Table    *device.Table
	Registry *remapconfig.Registry
	Sink     *vkbd.Sink
	Log      Logger

	ConfigDir string

	// LastReload is when the registry was last successfully (re)loaded,
	// reported by internal/httpstatus's diagnostics snapshot. Zero until
	// MarkLoaded or a successful Reload sets it.
	LastReload time.Time
}

// MarkLoaded stamps LastReload with the current time. cmd/keydaemon calls
// this after the initial startup load, which goes through
// remapconfig.Registry.Load directly rather than Reload.
func (m *Manager) MarkLoaded() {
	m.LastReload = time.Now()
}

// New builds a Manager over an already-constructed table, registry, and
// sink.
func New(table *device.Table, registry *remapconfig.Registry, sink *vkbd.Sink, configDir string, log Logger) *Manager {
	return &Manager{Table: table, Registry: registry, Sink: sink, ConfigDir: configDir, Log: log}
}

// AddDevice appends dev to the table and binds it. It is the caller's
// responsibility to have already excluded the virtual sink's own
// sentinel name (spec.md §4.4/§6).
func (m *Manager) AddDevice(dev *device.Device) error {
	if err := m.Table.Add(dev); err != nil {
		return err
	}
	m.bind(dev)
	return nil
}

// RemoveDevice compacts dev out of the table.
func (m *Manager) RemoveDevice(dev *device.Device) {
	m.Table.Remove(dev)
}

// bind implements spec.md §4.4 step 2-4.
func (m *Manager) bind(dev *device.Device) {
	rank, ent := m.Registry.Lookup(dev.ID())

	shouldGrab := (rank >= 1 && dev.Caps.Has(hiddev.CapKeyboard)) ||
		(rank == 2 && (dev.Caps.Has(hiddev.CapMouseRelative) || dev.Caps.Has(hiddev.CapMouseAbsolute)))

	if !shouldGrab {
		dev.Bound = nil
		if dev.Raw != nil {
			_ = dev.Raw.Ungrab()
		}
		return
	}

	if dev.Raw != nil {
		if err := dev.Raw.Grab(); err != nil {
			if m.Log != nil {
				m.Log.Warnf("failed to grab %s: %v", dev.Path, err)
			}
			dev.Bound = nil
			return
		}
	}

	dev.Bound = ent
}

// Reload implements spec.md §4.3's reload semantics: load ConfigDir into
// a staging registry, replace the live registry's entries with it, rebind
// every device in the table, then clear the sink so no key an outgoing
// interpreter left pressed lingers. On a load error the live registry,
// the bindings, and the sink are left as they were.
func (m *Manager) Reload(emit func(code uint16, pressed bool), layer func(name string, active bool)) error {
	staging := remapconfig.New()
	if err := staging.Load(m.ConfigDir, emit, layer); err != nil {
		return fmt.Errorf("devicemgr: reload: %w", err)
	}

	*m.Registry = *staging

	for _, dev := range m.Table.All() {
		m.bind(dev)
	}

	m.Sink.Clear()
	m.LastReload = time.Now()
	return nil
}
