// Package hiddev is the evdev transport collaborator: opening a device
// node, reading its raw events, grabbing it exclusively, and reading its
// identity/capabilities. The ioctl sequence mirrors the teacher's
// internal/features/{keyboard,mouse}.go.
package hiddev

import (
	"encoding/binary"
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/hidmux/keydaemon/internal/hidevent"
)

// RawDevice is the interface the core depends on for a physical input
// device. The real implementation below talks to /dev/input/eventN; a
// fake stands in for it in tests.
type RawDevice interface {
	Path() string
	Name() string
	VendorProduct() (vendor, product uint16)
	Capabilities() Capability
	Fd() int
	Grab() error
	Ungrab() error
	// ReadEvent reads one raw kernel event and translates it. ok is
	// false for event types the core doesn't care about (EV_SYN and
	// friends), in which case the caller should read again.
	ReadEvent() (ev hidevent.DevEvent, ok bool, err error)
	Close() error
}

type linuxRawDevice struct {
	file    *os.File
	name    string
	vendor  uint16
	product uint16
	caps    Capability
	grabbed bool
}

// Open opens path, reads its identity and capabilities via ioctl, and
// returns a RawDevice ready to be grabbed and polled.
func Open(path string) (RawDevice, error) {
	f, err := os.OpenFile(path, syscall.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("hiddev: open %s: %w", path, err)
	}

	d := &linuxRawDevice{file: f}

	if err := d.readIdentity(); err != nil {
		f.Close()
		return nil, err
	}
	d.readCapabilities()
	d.name = deviceName(f, path)

	return d, nil
}

func (d *linuxRawDevice) Path() string { return d.file.Name() }
func (d *linuxRawDevice) Name() string { return d.name }
func (d *linuxRawDevice) Fd() int      { return int(d.file.Fd()) }

func (d *linuxRawDevice) VendorProduct() (uint16, uint16) { return d.vendor, d.product }
func (d *linuxRawDevice) Capabilities() Capability        { return d.caps }

func (d *linuxRawDevice) Grab() error {
	if d.grabbed {
		return nil
	}
	if err := ioctl(d.file, eviocgrab, 1); err != nil {
		return fmt.Errorf("hiddev: grab %s: %w", d.Path(), err)
	}
	d.grabbed = true
	return nil
}

func (d *linuxRawDevice) Ungrab() error {
	if !d.grabbed {
		return nil
	}
	if err := ioctl(d.file, eviocgrab, 0); err != nil {
		return fmt.Errorf("hiddev: ungrab %s: %w", d.Path(), err)
	}
	d.grabbed = false
	return nil
}

func (d *linuxRawDevice) Close() error {
	_ = d.Ungrab()
	return d.file.Close()
}

// kernelEvent mirrors struct input_event, matching the teacher's
// internal/types/event.go layout.
type kernelEvent struct {
	Time  syscall.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

const kernelEventSize = 24 // 2*8 (timeval) + 2 + 2 + 4, matching the teacher's mouse.go wire size

func (d *linuxRawDevice) ReadEvent() (hidevent.DevEvent, bool, error) {
	buf := make([]byte, kernelEventSize)
	if _, err := d.file.Read(buf); err != nil {
		return hidevent.DevEvent{}, false, err
	}

	var e kernelEvent
	e.Time.Sec = int64(binary.LittleEndian.Uint64(buf[0:8]))
	e.Time.Usec = int64(binary.LittleEndian.Uint64(buf[8:16]))
	e.Type = binary.LittleEndian.Uint16(buf[16:18])
	e.Code = binary.LittleEndian.Uint16(buf[18:20])
	e.Value = int32(binary.LittleEndian.Uint32(buf[20:24]))

	switch e.Type {
	case evKey:
		return hidevent.DevEvent{Kind: hidevent.Key, Code: e.Code, Pressed: e.Value != 0}, true, nil
	case evRel:
		switch e.Code {
		case relX:
			return hidevent.DevEvent{Kind: hidevent.MouseMove, DX: e.Value}, true, nil
		case relY:
			return hidevent.DevEvent{Kind: hidevent.MouseMove, DY: e.Value}, true, nil
		case relWheel:
			return hidevent.DevEvent{Kind: hidevent.MouseScroll, DY: e.Value}, true, nil
		}
	case evAbs:
		switch e.Code {
		case absX:
			return hidevent.DevEvent{Kind: hidevent.MouseMoveAbs, X: e.Value}, true, nil
		case absY:
			return hidevent.DevEvent{Kind: hidevent.MouseMoveAbs, Y: e.Value}, true, nil
		}
	}

	return hidevent.DevEvent{}, false, nil
}

func (d *linuxRawDevice) readIdentity() error {
	var id [4]uint16 // bustype, vendor, product, version, per struct input_id
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		d.file.Fd(),
		uintptr(eviocgid),
		uintptr(unsafe.Pointer(&id[0])),
	)
	if errno != 0 {
		return fmt.Errorf("hiddev: EVIOCGID %s: %w", d.Path(), errno)
	}
	d.vendor = id[1]
	d.product = id[2]
	return nil
}

const keyMax = 0x2ff

func (d *linuxRawDevice) readCapabilities() {
	keyBits := make([]byte, (keyMax/8)+1)
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		d.file.Fd(),
		uintptr(eviocgbit),
		uintptr(unsafe.Pointer(&keyBits[0])),
	)
	if errno == 0 {
		for _, b := range keyBits {
			if b != 0 {
				d.caps |= CapKeyboard
				break
			}
		}
	}

	relBits := make([]byte, 4)
	if err := ioctlGet(d.file, ioctlEvBitReq(evRel, len(relBits)), relBits); err == nil {
		if relBits[relX/8]&(1<<(relX%8)) != 0 {
			d.caps |= CapMouseRelative
		}
	}

	absBits := make([]byte, 4)
	if err := ioctlGet(d.file, ioctlEvBitReq(evAbs, len(absBits)), absBits); err == nil {
		if absBits[absX/8]&(1<<(absX%8)) != 0 {
			d.caps |= CapMouseAbsolute
		}
	}
}

// _IOC encoding constants from asm-generic/ioctl.h, used to build the
// EVIOCGBIT(ev, len) / EVIOCGNAME(len) request numbers parametrically
// instead of hard-coding one magic constant per event type.
const (
	iocRead      = 2
	iocNRBits    = 8
	iocTypeBits  = 8
	iocSizeBits  = 14
	iocTypeShift = iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	eviocgbitBaseNR  = 0x20
	eviocgnameBaseNR = 0x06
)

func iocRequest(nr, length int) uintptr {
	return uintptr(iocRead)<<iocDirShift | uintptr('E')<<iocTypeShift | uintptr(nr) | uintptr(length)<<iocSizeShift
}

func ioctlEvBitReq(ev, length int) uintptr {
	return iocRequest(eviocgbitBaseNR+ev, length)
}

func ioctlGet(f *os.File, req uintptr, buf []byte) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctl(f *os.File, req uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func deviceName(f *os.File, path string) string {
	buf := make([]byte, maxNameSize)
	if err := ioctlGet(f, iocRequest(eviocgnameBaseNR, len(buf)), buf); err != nil {
		return path
	}
	end := 0
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	if end == 0 {
		return path
	}
	return string(buf[:end])
}
