package hiddev

// Event type/code constants from input-event-codes.h, carried over from
// the teacher's internal/event/types.go and internal/consts/device.go
// and extended with the codes this daemon's transport needs.
const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03

	relX     = 0x00
	relY     = 0x01
	relWheel = 0x08

	absX = 0x00
	absY = 0x01

	synReport = 0
)

// ioctl request numbers, also carried over from the teacher's
// internal/consts/device.go (uinput.h / input.h derived values).
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetRelBit  = 0x40045566
	uiSetAbsBit  = 0x40045567

	eviocgrab = 0x40044590
	eviocgid  = 0x80084502
	eviocgbit = 0x80404521 // EVIOCGBIT(EV_KEY, ...) with a 512-bit buffer

	busUsb = 0x03

	maxNameSize = 80
	absSize     = 64
)

// Capability is a bitset of the pointer/keyboard classes spec.md §3
// defines for a Device.
type Capability uint8

const (
	CapKeyboard Capability = 1 << iota
	CapMouseRelative
	CapMouseAbsolute
)

func (c Capability) Has(f Capability) bool { return c&f != 0 }
