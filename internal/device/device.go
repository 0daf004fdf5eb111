// Package device holds the Device and Table types of spec.md §3: the
// daemon's view of a physical input device and the bounded table of
// currently known devices.
package device

import (
	"fmt"

	"github.com/hidmux/keydaemon/internal/hiddev"
	"github.com/hidmux/keydaemon/internal/remapconfig"
)

// MaxDevices bounds the device table, per spec.md §3.
const MaxDevices = 256

// VirtualSinkName is the display name of the synthesized device; devices
// carrying this exact name must never enter the table (spec.md §6).
const VirtualSinkName = "keyd virtual keyboard"

// Device is one physical input device, identified by a stable path and
// a (vendor, product) pair. Bound is nil ("ignored") or points at the
// registry entry currently driving it; it is mutated only by the device
// manager.
type Device struct {
	Path    string
	Name    string
	Vendor  uint16
	Product uint16
	Caps    hiddev.Capability

	Raw   hiddev.RawDevice
	Bound *remapconfig.Entry
}

// ID returns the (vendor<<16 | product) identity used to look up a
// config registry entry, per spec.md §4.4.
func (d *Device) ID() uint32 {
	return uint32(d.Vendor)<<16 | uint32(d.Product)
}

// FromRaw builds a Device from an opened RawDevice.
func FromRaw(raw hiddev.RawDevice) *Device {
	vendor, product := raw.VendorProduct()
	return &Device{
		Path:    raw.Path(),
		Name:    raw.Name(),
		Vendor:  vendor,
		Product: product,
		Caps:    raw.Capabilities(),
		Raw:     raw,
	}
}

// Table is the bounded, order-preserving device set of spec.md §3:
// insertion is append, removal preserves remaining order via compact.
type Table struct {
	devices []*Device
}

// NewTable returns an empty device table.
func NewTable() *Table {
	return &Table{}
}

// Add appends dev to the table. It returns an error if the table is at
// capacity, mirroring the reference daemon's assert(nr_devices < MAX_DEVICES).
func (t *Table) Add(dev *Device) error {
	if len(t.devices) >= MaxDevices {
		return fmt.Errorf("device: table full (%d devices)", MaxDevices)
	}
	t.devices = append(t.devices, dev)
	return nil
}

// Remove compacts dev out of the table in place. It is a no-op if dev is
// not present.
func (t *Table) Remove(dev *Device) {
	n := 0
	for _, d := range t.devices {
		if d != dev {
			t.devices[n] = d
			n++
		}
	}
	t.devices = t.devices[:n]
}

// All returns the table's devices in insertion order. The returned slice
// must not be mutated.
func (t *Table) All() []*Device {
	return t.devices
}

// Len returns the number of devices currently in the table.
func (t *Table) Len() int {
	return len(t.devices)
}
