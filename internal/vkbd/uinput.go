package vkbd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// uinput ioctl and event-type constants, carried over from the
// teacher's internal/consts/device.go and generalized with EV_REL/EV_KEY
// registration for the full 0-255 key-code range instead of a fixed
// touch-button list.
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetRelBit  = 0x40045566

	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02

	relX     = 0x00
	relY     = 0x01
	relWheel = 0x08

	synReport = 0

	busUsb      = 0x03
	maxNameSize = 80
	absSize     = 64
)

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// userDev mirrors struct uinput_user_dev, matching the field layout in
// the teacher's internal/types/device.go.
type userDev struct {
	Name       [maxNameSize]byte
	ID         inputID
	EffectsMax uint32
	Absmax     [absSize]int32
	Absmin     [absSize]int32
	Absfuzz    [absSize]int32
	Absflat    [absSize]int32
}

type wireEvent struct {
	Time  syscall.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// UinputTransport is the real Transport backed by /dev/uinput.
type UinputTransport struct {
	file *os.File
}

// NewUinputTransport creates and registers a synthesized input device
// named name, capable of the full keyboard key range plus relative mouse
// motion and scroll.
func NewUinputTransport(name string) (*UinputTransport, error) {
	f, err := os.OpenFile("/dev/uinput", syscall.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("vkbd: open /dev/uinput: %w", err)
	}

	if err := registerBit(f, uiSetEvBit, evKey); err != nil {
		f.Close()
		return nil, err
	}
	for code := 0; code <= 0xff; code++ {
		if err := registerBit(f, uiSetKeyBit, uintptr(code)); err != nil {
			f.Close()
			return nil, fmt.Errorf("vkbd: register key %d: %w", code, err)
		}
	}

	if err := registerBit(f, uiSetEvBit, evRel); err != nil {
		f.Close()
		return nil, err
	}
	for _, rel := range []uintptr{relX, relY, relWheel} {
		if err := registerBit(f, uiSetRelBit, rel); err != nil {
			f.Close()
			return nil, fmt.Errorf("vkbd: register rel %d: %w", rel, err)
		}
	}

	dev := userDev{
		ID: inputID{Bustype: busUsb, Vendor: 0x4b4b, Product: 0x4b44, Version: 1},
	}
	copy(dev.Name[:], name)

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, dev); err != nil {
		f.Close()
		return nil, fmt.Errorf("vkbd: encode uinput_user_dev: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return nil, fmt.Errorf("vkbd: write uinput_user_dev: %w", err)
	}

	if err := ioctl(f, uiDevCreate, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("vkbd: UI_DEV_CREATE: %w", err)
	}

	return &UinputTransport{file: f}, nil
}

func (t *UinputTransport) SendKey(code uint16, pressed bool) error {
	value := int32(0)
	if pressed {
		value = 1
	}
	return t.write([]wireEvent{
		{Type: evKey, Code: code, Value: value},
		{Type: evSyn, Code: synReport, Value: 0},
	})
}

func (t *UinputTransport) MouseMove(dx, dy int32) error {
	return t.write([]wireEvent{
		{Type: evRel, Code: relX, Value: dx},
		{Type: evRel, Code: relY, Value: dy},
		{Type: evSyn, Code: synReport, Value: 0},
	})
}

func (t *UinputTransport) MouseMoveAbs(x, y int32) error {
	// NewUinputTransport never registers EV_ABS, so this device cannot
	// report absolute pointer motion and every call returns an error.
	// Kept as a Transport method so a fuller transport can implement it
	// without changing the Sink's API.
	return fmt.Errorf("vkbd: absolute mouse motion not supported by this transport")
}

func (t *UinputTransport) MouseScroll(dx, dy int32) error {
	return t.write([]wireEvent{
		{Type: evRel, Code: relWheel, Value: dy},
		{Type: evSyn, Code: synReport, Value: 0},
	})
}

func (t *UinputTransport) Close() error {
	_ = ioctl(t.file, uiDevDestroy, 0)
	return t.file.Close()
}

func (t *UinputTransport) write(events []wireEvent) error {
	for _, ev := range events {
		buf := new(bytes.Buffer)
		if err := binary.Write(buf, binary.LittleEndian, ev); err != nil {
			return fmt.Errorf("vkbd: encode event: %w", err)
		}
		if _, err := t.file.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("vkbd: write event: %w", err)
		}
	}
	return nil
}

func registerBit(f *os.File, req uintptr, bit uintptr) error {
	return ioctl(f, req, bit)
}

func ioctl(f *os.File, req uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}
