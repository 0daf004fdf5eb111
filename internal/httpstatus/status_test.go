package httpstatus

import (
	"testing"
	"time"

	"github.com/hidmux/keydaemon/internal/device"
	"github.com/hidmux/keydaemon/internal/hiddev"
	"github.com/hidmux/keydaemon/internal/hidevent"
)

type fakeRaw struct{ path, name string }

func (f *fakeRaw) Path() string                    { return f.path }
func (f *fakeRaw) Name() string                    { return f.name }
func (f *fakeRaw) VendorProduct() (uint16, uint16) { return 0, 0 }
func (f *fakeRaw) Capabilities() hiddev.Capability { return hiddev.CapKeyboard }
func (f *fakeRaw) Fd() int                         { return -1 }
func (f *fakeRaw) Grab() error                     { return nil }
func (f *fakeRaw) Ungrab() error                   { return nil }
func (f *fakeRaw) ReadEvent() (hidevent.DevEvent, bool, error) {
	return hidevent.DevEvent{}, false, nil
}
func (f *fakeRaw) Close() error { return nil }

func TestSnapshotFromReportsUnboundDevices(t *testing.T) {
	table := device.NewTable()

	table.Add(device.FromRaw(&fakeRaw{path: "/dev/input/event0", name: "keyboard"}))
	table.Add(device.FromRaw(&fakeRaw{path: "/dev/input/event1", name: "mouse"}))

	reloadedAt := time.Now()
	snap := SnapshotFrom(table, 3, 5, reloadedAt)

	if len(snap.Devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(snap.Devices))
	}
	if snap.ListenerCount != 3 {
		t.Errorf("expected listener count 3, got %d", snap.ListenerCount)
	}
	if snap.ConfigCount != 5 {
		t.Errorf("expected config count 5, got %d", snap.ConfigCount)
	}
	if !snap.LastReload.Equal(reloadedAt) {
		t.Errorf("expected last reload time to round-trip, got %v", snap.LastReload)
	}
	for _, d := range snap.Devices {
		if d.Bound {
			t.Errorf("expected %s to be reported unbound", d.Path)
		}
	}
}
