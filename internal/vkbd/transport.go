// Package vkbd is the virtual sink of spec.md §4.2: a single synthesized
// keyboard+mouse device and the keystate vector layered on top of it.
package vkbd

// Transport is the evdev/uinput collaborator interface fixed by
// spec.md §9 ("Callback coupling"): the low-level device the sink writes
// synthesized events into. The real implementation
// (NewUinputTransport) issues the same ioctl sequence as the teacher's
// internal/features/touchpad.go, generalized from an absolute touch
// surface to a combined keyboard+relative-mouse device.
type Transport interface {
	SendKey(code uint16, pressed bool) error
	MouseMove(dx, dy int32) error
	MouseMoveAbs(x, y int32) error
	MouseScroll(dx, dy int32) error
	Close() error
}
