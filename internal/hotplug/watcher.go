// Package hotplug scans /dev/input for device nodes and reports
// additions/removals against the previous scan, driven off an
// fsnotify.Watcher whose fd is registered with the event source like any
// other descriptor — no goroutine of its own touches daemon state,
// keeping the single-threaded model of spec.md §5. Grounded on the
// teacher's internal/features/devices.go DeviceMonitor, generalized from
// polling to fsnotify-driven rescans and from a fixed keyboard/mouse
// split to opening every event node and letting hiddev report
// capabilities.
package hotplug

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/hidmux/keydaemon/internal/device"
	"github.com/hidmux/keydaemon/internal/hiddev"
)

// Watcher tracks the set of open /dev/input/eventN nodes and reports the
// delta on each Rescan call.
type Watcher struct {
	fsw   *fsnotify.Watcher
	known map[string]*device.Device
}

// New creates a Watcher observing /dev/input for node creation/removal.
func New() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add("/dev/input"); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{fsw: fsw, known: make(map[string]*device.Device)}, nil
}

// FD returns the underlying inotify descriptor, for registration with
// the event source's poller.
func (w *Watcher) FD() int {
	return int(w.fsw.Fd())
}

// Drain consumes pending fsnotify events without acting on them; the
// caller is expected to follow up with Rescan, which is idempotent and
// doesn't depend on which specific events fired.
func (w *Watcher) Drain() {
	for {
		select {
		case <-w.fsw.Events:
		case <-w.fsw.Errors:
		default:
			return
		}
	}
}

// Close releases the fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Rescan lists /dev/input/event* and returns the devices that appeared
// and disappeared since the previous call. Newly opened devices have
// Raw set to a live hiddev.RawDevice; removed devices carry only the
// identity fields needed to find them in the table.
func (w *Watcher) Rescan() (added, removed []*device.Device) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, nil
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		path := filepath.Join("/dev/input", e.Name())
		seen[path] = true

		if _, ok := w.known[path]; ok {
			continue
		}

		raw, err := hiddev.Open(path)
		if err != nil {
			continue
		}
		dev := device.FromRaw(raw)
		w.known[path] = dev
		added = append(added, dev)
	}

	for path, dev := range w.known {
		if !seen[path] {
			removed = append(removed, dev)
			delete(w.known, path)
		}
	}

	return added, removed
}
