// Package coreevent is the tagged event type spec.md §4.1 defines,
// shared between the event source that produces it and the dispatcher
// that consumes it.
package coreevent

import (
	"github.com/hidmux/keydaemon/internal/device"
	"github.com/hidmux/keydaemon/internal/hidevent"
)

// Kind tags which fields of Event are meaningful.
type Kind int

const (
	Timeout Kind = iota
	DevEvent
	DevAdd
	DevRemove
	FDActivity
)

// Event is the tagged union spec.md §4.1 describes.
type Event struct {
	Kind Kind

	// Dev is set for DevEvent, DevAdd, and DevRemove.
	Dev *device.Device
	// DevEv is set for DevEvent.
	DevEv hidevent.DevEvent
	// TimeLeft is the remaining millisecond count of any in-flight
	// timeout, set for DevEvent.
	TimeLeft int
	// FD is set for FDActivity.
	FD int
}
