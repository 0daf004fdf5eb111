package vkbd

// Sink implements spec.md §4.2 on top of a Transport: it tracks the
// live key-down set and forwards every operation, guaranteeing that
// Clear leaves no key reported pressed.
type Sink struct {
	transport Transport
	keystate  [256]bool
}

// NewSink wraps transport in a Sink with an empty keystate vector.
func NewSink(transport Transport) *Sink {
	return &Sink{transport: transport}
}

// SendKey records keystate[code]=pressed and forwards it, unconditionally
// overwriting any prior state — repeated releases are safe to issue.
func (s *Sink) SendKey(code uint16, pressed bool) {
	s.keystate[code] = pressed
	_ = s.transport.SendKey(code, pressed)
}

// MouseMove forwards a relative motion unchanged.
func (s *Sink) MouseMove(dx, dy int32) {
	_ = s.transport.MouseMove(dx, dy)
}

// MouseMoveAbs forwards an absolute motion unchanged.
func (s *Sink) MouseMoveAbs(x, y int32) {
	_ = s.transport.MouseMoveAbs(x, y)
}

// MouseScroll forwards a scroll unchanged.
func (s *Sink) MouseScroll(dx, dy int32) {
	_ = s.transport.MouseScroll(dx, dy)
}

// Clear emits a release for every code currently reported pressed and
// zeroes the keystate vector. After Clear returns, KeyState reports every
// code released.
func (s *Sink) Clear() {
	for code := range s.keystate {
		if s.keystate[code] {
			s.SendKey(uint16(code), false)
		}
	}
}

// KeyState reports whether code is currently pressed according to the
// keystate vector. Exposed for tests asserting the invariants of
// spec.md §8.
func (s *Sink) KeyState(code uint16) bool {
	return s.keystate[code]
}

// Close releases the underlying transport.
func (s *Sink) Close() error {
	return s.transport.Close()
}
