// Package keyboard is the core's keyboard-instance collaborator
// (spec.md §4.7). It is intentionally small: a flat remap table, one
// held oneshot modifier slot, and named layers activated by holding a
// trigger key. Tap-hold, chords, and macro expansion are out of scope —
// the Interpreter interface exists so a fuller implementation can be
// swapped in without the core noticing.
package keyboard

import (
	"fmt"
	"strings"

	"github.com/hidmux/keydaemon/internal/remapspec"
)

// KeydExternalMouseButton is the reserved code the dispatcher presses
// and releases on every scroll event so oneshot state clears the way it
// would for a real mouse button. It is chosen well above the real HID
// key-code range (0-255 per spec.md §3) so it can never collide with a
// genuine key.
const KeydExternalMouseButton = 0x1000

// EmitFunc is called for every key the interpreter wants the virtual
// sink to send.
type EmitFunc func(code uint16, pressed bool)

// LayerFunc is called whenever a layer transitions active/inactive.
type LayerFunc func(name string, active bool)

// Interpreter is the contract spec.md §4.7 fixes.
type Interpreter interface {
	// ProcessKeyEvent delivers a physical key transition (or, when code
	// is 0, a pure timer tick) and returns the number of milliseconds
	// until the next tick should fire, 0 meaning none.
	ProcessKeyEvent(code uint16, pressed bool) int
	// Eval evaluates an ad-hoc binding expression against this
	// instance's live config, returning nil on success.
	Eval(expr string) error
}

type activeLayer struct {
	spec    *remapspec.LayerSpec
	pressed map[uint16]bool
}

// State is the concrete Interpreter this repository ships.
type State struct {
	spec  *remapspec.Spec
	emit  EmitFunc
	layer LayerFunc

	main map[uint16]uint16

	oneshotHeld bool
	oneshotCode uint16

	active *activeLayer
}

// New builds an interpreter from a parsed spec. emit and layer are the
// two callbacks the core wires to the virtual sink and the IPC layer
// broadcaster respectively.
func New(spec *remapspec.Spec, emit EmitFunc, layer LayerFunc) *State {
	main := make(map[uint16]uint16, len(spec.Main))
	for _, r := range spec.Main {
		main[r.From] = r.To
	}
	return &State{spec: spec, emit: emit, layer: layer, main: main}
}

// ProcessKeyEvent implements Interpreter.
func (s *State) ProcessKeyEvent(code uint16, pressed bool) int {
	if code == 0 {
		// pure tick: nothing in this minimal interpreter has its own
		// timer, so there is nothing to advance.
		return 0
	}

	if code == KeydExternalMouseButton {
		s.clearOneshot()
		return 0
	}

	if l := s.layerForTrigger(code); l != nil {
		if pressed {
			s.startLayer(l)
		} else {
			s.endLayer()
		}
		return 0
	}

	if s.active != nil {
		if pressed {
			s.active.pressed[code] = true
		} else {
			delete(s.active.pressed, code)
		}
		if to, ok := s.remapIn(s.active.spec.Remaps, code); ok {
			s.emit(to, pressed)
			if pressed && s.oneshotHeld && code != s.oneshotCode {
				s.clearOneshot()
			}
			return 0
		}
	}

	to := code
	if mapped, ok := s.main[code]; ok {
		to = mapped
	}

	s.emit(to, pressed)

	// Any ordinary key press clears a pending oneshot, matching the
	// scroll-clears-oneshot behavior for the general case.
	if pressed && s.oneshotHeld && code != s.oneshotCode {
		s.clearOneshot()
	}

	return 0
}

func (s *State) remapIn(rules []remapspec.RemapRule, code uint16) (uint16, bool) {
	for _, r := range rules {
		if r.From == code {
			return r.To, true
		}
	}
	return 0, false
}

func (s *State) layerForTrigger(code uint16) *remapspec.LayerSpec {
	for i := range s.spec.Layers {
		if s.spec.Layers[i].Trigger == code {
			return &s.spec.Layers[i]
		}
	}
	return nil
}

func (s *State) startLayer(l *remapspec.LayerSpec) {
	if s.active != nil && s.active.spec.Name == l.Name {
		return
	}
	s.active = &activeLayer{spec: l, pressed: make(map[uint16]bool)}
	if s.layer != nil {
		s.layer(l.Name, true)
	}
}

func (s *State) endLayer() {
	if s.active == nil {
		return
	}
	name := s.active.spec.Name
	for code := range s.active.pressed {
		if to, ok := s.remapIn(s.active.spec.Remaps, code); ok {
			s.emit(to, false)
		}
	}
	s.active = nil
	if s.layer != nil {
		s.layer(name, false)
	}
}

// HoldOneshot marks a modifier as held via the oneshot convention: it
// stays logically down until the next press of any other key (layer
// triggers excepted) or an external mouse button clears it. Exercised by BIND expressions of the form
// "oneshot=<code>".
func (s *State) HoldOneshot(code uint16) {
	s.oneshotHeld = true
	s.oneshotCode = code
	s.emit(code, true)
}

func (s *State) clearOneshot() {
	if !s.oneshotHeld {
		return
	}
	s.emit(s.oneshotCode, false)
	s.oneshotHeld = false
}

// Eval implements Interpreter. It understands two ad-hoc forms:
//
//	<code>=<code>   add (or replace) a main-table remap
//	oneshot=<code>  hold a oneshot modifier immediately
//
// Anything else is rejected — this is deliberately not a full
// expression language, matching the "the remapping configuration
// grammar and parser" Non-goal.
func (s *State) Eval(expr string) error {
	expr = strings.TrimSpace(expr)
	parts := strings.SplitN(expr, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("keyboard: malformed expression %q", expr)
	}

	if parts[0] == "oneshot" {
		code, err := remapspec.ParseKeyCode(parts[1], 10)
		if err != nil {
			return fmt.Errorf("keyboard: bad oneshot code %q: %w", parts[1], err)
		}
		s.HoldOneshot(code)
		return nil
	}

	from, err := remapspec.ParseKeyCode(parts[0], 10)
	if err != nil {
		return fmt.Errorf("keyboard: bad source code %q: %w", parts[0], err)
	}
	to, err := remapspec.ParseKeyCode(parts[1], 10)
	if err != nil {
		return fmt.Errorf("keyboard: bad target code %q: %w", parts[1], err)
	}

	s.main[from] = to
	return nil
}
