package httpstatus

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Bridge channels a status request from the HTTP server's own goroutine
// onto the single-threaded event loop. internal/device.Table and
// internal/ipcserver.Server's listener set are mutated exclusively by
// that loop per spec.md §5's no-locks model, so they may only be read
// from it too; Bridge is the mechanism that makes that true instead of
// letting the HTTP handler read them directly. It follows the same
// register-an-fd-with-the-poller shape internal/eventsource already uses
// for the hotplug watcher and the IPC listening socket, just with an
// eventfd standing in for a real device.
type Bridge struct {
	requests chan chan Snapshot
	wakeFD   int
}

// NewBridge creates the bridge and the eventfd the event loop registers
// with its poller to learn a request is pending.
func NewBridge() (*Bridge, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("httpstatus: create eventfd: %w", err)
	}
	return &Bridge{requests: make(chan chan Snapshot, 1), wakeFD: fd}, nil
}

// WakeFD is the descriptor to register with the event loop's poller.
func (b *Bridge) WakeFD() int { return b.wakeFD }

// Fetch posts a request and blocks for the loop's answer. Call only from
// the HTTP handler goroutine.
func (b *Bridge) Fetch() Snapshot {
	resp := make(chan Snapshot, 1)
	b.requests <- resp

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(b.wakeFD, buf[:])

	return <-resp
}

// Drain answers every pending request with build's result. Call only
// from the event loop goroutine, in response to WakeFD going readable;
// build is expected to close over that goroutine's own singletons (the
// device table, IPC server, and device manager) and call SnapshotFrom.
func (b *Bridge) Drain(build func() Snapshot) {
	var buf [8]byte
	_, _ = unix.Read(b.wakeFD, buf[:])

	for {
		select {
		case resp := <-b.requests:
			resp <- build()
		default:
			return
		}
	}
}

// Close releases the eventfd.
func (b *Bridge) Close() error {
	return unix.Close(b.wakeFD)
}
