package devicemgr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hidmux/keydaemon/internal/device"
	"github.com/hidmux/keydaemon/internal/hiddev"
	"github.com/hidmux/keydaemon/internal/hidevent"
	"github.com/hidmux/keydaemon/internal/remapconfig"
	"github.com/hidmux/keydaemon/internal/vkbd"
)

type fakeRaw struct {
	path, name      string
	vendor, product uint16
	caps            hiddev.Capability
	grabbed         bool
	grabErr         error
}

func (f *fakeRaw) Path() string                    { return f.path }
func (f *fakeRaw) Name() string                    { return f.name }
func (f *fakeRaw) VendorProduct() (uint16, uint16) { return f.vendor, f.product }
func (f *fakeRaw) Capabilities() hiddev.Capability { return f.caps }
func (f *fakeRaw) Fd() int                         { return -1 }
func (f *fakeRaw) Grab() error {
	if f.grabErr != nil {
		return f.grabErr
	}
	f.grabbed = true
	return nil
}
func (f *fakeRaw) Ungrab() error { f.grabbed = false; return nil }
func (f *fakeRaw) ReadEvent() (hidevent.DevEvent, bool, error) {
	return hidevent.DevEvent{}, false, nil
}
func (f *fakeRaw) Close() error { return nil }

type fakeLog struct{}

func (fakeLog) Warnf(string, ...interface{}) {}
func (fakeLog) Infof(string, ...interface{}) {}

func newTestManager(t *testing.T, confContents string) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.conf"), []byte(confContents), 0644); err != nil {
		t.Fatalf("write conf: %v", err)
	}

	table := device.NewTable()
	registry := remapconfig.New()
	if err := registry.Load(dir, func(uint16, bool) {}, func(string, bool) {}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sink := vkbd.NewSink(&fakeTransport{})
	mgr := New(table, registry, sink, dir, fakeLog{})
	return mgr, dir
}

type fakeTransport struct{}

func (fakeTransport) SendKey(uint16, bool) error      { return nil }
func (fakeTransport) MouseMove(int32, int32) error    { return nil }
func (fakeTransport) MouseMoveAbs(int32, int32) error { return nil }
func (fakeTransport) MouseScroll(int32, int32) error  { return nil }
func (fakeTransport) Close() error                    { return nil }

func TestBindGrabsRankOneKeyboard(t *testing.T) {
	mgr, _ := newTestManager(t, "[ids]\n0001:0001 rank=1\n")

	raw := &fakeRaw{path: "/dev/input/event0", vendor: 0x0001, product: 0x0001, caps: hiddev.CapKeyboard}
	dev := device.FromRaw(raw)

	if err := mgr.AddDevice(dev); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	if !raw.grabbed {
		t.Error("expected a rank-1 keyboard-capable device to be grabbed")
	}
	if dev.Bound == nil {
		t.Error("expected the device to be bound")
	}
}

func TestBindRankOneSkipsPointer(t *testing.T) {
	mgr, _ := newTestManager(t, "[ids]\n0001:0001 rank=1\n")

	raw := &fakeRaw{path: "/dev/input/event1", vendor: 0x0001, product: 0x0001, caps: hiddev.CapMouseRelative}
	dev := device.FromRaw(raw)

	if err := mgr.AddDevice(dev); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	if raw.grabbed {
		t.Error("expected a rank-1 match on a pointer-only device to not be grabbed")
	}
	if dev.Bound != nil {
		t.Error("expected the device to be left unbound")
	}
}

func TestBindRankTwoGrabsPointer(t *testing.T) {
	mgr, _ := newTestManager(t, "[ids]\n0001:0001 rank=2\n")

	raw := &fakeRaw{path: "/dev/input/event2", vendor: 0x0001, product: 0x0001, caps: hiddev.CapMouseRelative}
	dev := device.FromRaw(raw)

	if err := mgr.AddDevice(dev); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	if !raw.grabbed {
		t.Error("expected a rank-2 match to grab a relative-pointer device")
	}
}

func TestBindNoMatchLeavesUngrabbed(t *testing.T) {
	mgr, _ := newTestManager(t, "[ids]\n0001:0001 rank=2\n")

	raw := &fakeRaw{path: "/dev/input/event3", vendor: 0x9999, product: 0x9999, caps: hiddev.CapKeyboard}
	dev := device.FromRaw(raw)

	if err := mgr.AddDevice(dev); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	if raw.grabbed || dev.Bound != nil {
		t.Error("expected an unmatched device to stay ungrabbed and unbound")
	}
}

func TestBindGrabFailureLeavesUnbound(t *testing.T) {
	mgr, _ := newTestManager(t, "[ids]\n0001:0001 rank=1\n")

	raw := &fakeRaw{path: "/dev/input/event4", vendor: 0x0001, product: 0x0001, caps: hiddev.CapKeyboard, grabErr: os.ErrPermission}
	dev := device.FromRaw(raw)

	if err := mgr.AddDevice(dev); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	if dev.Bound != nil {
		t.Error("expected a failed grab to leave the device unbound")
	}
}

func TestRemoveDevice(t *testing.T) {
	mgr, _ := newTestManager(t, "[ids]\n0001:0001 rank=1\n")

	raw := &fakeRaw{path: "/dev/input/event5", vendor: 0x0001, product: 0x0001, caps: hiddev.CapKeyboard}
	dev := device.FromRaw(raw)
	mgr.AddDevice(dev)

	mgr.RemoveDevice(dev)
	if mgr.Table.Len() != 0 {
		t.Errorf("expected the table to be empty after removal, got %d", mgr.Table.Len())
	}
}

func TestReloadRebindsAndClearsSink(t *testing.T) {
	mgr, dir := newTestManager(t, "[ids]\n0001:0001 rank=1\n")

	raw := &fakeRaw{path: "/dev/input/event6", vendor: 0x0001, product: 0x0001, caps: hiddev.CapKeyboard}
	dev := device.FromRaw(raw)
	mgr.AddDevice(dev)

	mgr.Sink.SendKey(5, true)

	// Rewrite the config so the device no longer matches.
	if err := os.WriteFile(filepath.Join(dir, "a.conf"), []byte("[ids]\n9999:9999 rank=1\n"), 0644); err != nil {
		t.Fatalf("rewrite conf: %v", err)
	}

	if err := mgr.Reload(func(uint16, bool) {}, func(string, bool) {}); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if dev.Bound != nil {
		t.Error("expected the device to be unbound after a reload that no longer matches it")
	}
	if mgr.Sink.KeyState(5) {
		t.Error("expected Reload to clear the sink's keystate")
	}
}

func TestReloadStampsLastReload(t *testing.T) {
	mgr, _ := newTestManager(t, "[ids]\n0001:0001 rank=1\n")

	if !mgr.LastReload.IsZero() {
		t.Fatal("expected LastReload to be zero before any load")
	}

	mgr.MarkLoaded()
	afterMark := mgr.LastReload
	if afterMark.IsZero() {
		t.Fatal("expected MarkLoaded to stamp LastReload")
	}

	if err := mgr.Reload(func(uint16, bool) {}, func(string, bool) {}); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !mgr.LastReload.After(afterMark) && !mgr.LastReload.Equal(afterMark) {
		t.Error("expected Reload to advance LastReload")
	}
}

func TestReloadFailureLeavesRegistryUntouched(t *testing.T) {
	mgr, dir := newTestManager(t, "[ids]\n0001:0001 rank=1\n")

	if err := os.WriteFile(filepath.Join(dir, "bad.conf"), []byte("garbage"), 0644); err != nil {
		t.Fatalf("write bad.conf: %v", err)
	}

	before := mgr.Registry.Entries()
	if err := mgr.Reload(func(uint16, bool) {}, func(string, bool) {}); err == nil {
		t.Fatal("expected Reload to fail")
	}
	if len(mgr.Registry.Entries()) != len(before) {
		t.Error("expected a failed reload to leave the registry untouched")
	}
}
