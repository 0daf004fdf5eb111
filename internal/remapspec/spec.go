// Package remapspec holds the parsed representation of a single remap
// ".conf" file: the device ids it claims and the remap/layer rules a
// keyboard interpreter is built from. It has no knowledge of the
// registry that loads these files or the interpreter that runs them.
package remapspec

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DeviceMatch is one "vendor:product" entry from a file's [ids] block.
type DeviceMatch struct {
	Vendor  uint16
	Product uint16
	// Rank is the value CheckMatch returns for this id: 1 means the
	// binding only ever applies to the keyboard capability, 2 means it
	// extends to pointer devices too.
	Rank int
}

// RemapRule rewrites one key code to another. A release of From always
// releases To; there is no independent state kept per rule.
type RemapRule struct {
	From uint16
	To   uint16
}

// LayerSpec activates Name for as long as Trigger is held, applying its
// own remap table while active.
type LayerSpec struct {
	Name    string
	Trigger uint16
	Remaps  []RemapRule
}

// Spec is everything parsed out of one ".conf" file.
type Spec struct {
	Path    string
	Matches []DeviceMatch
	Main    []RemapRule
	Layers  []LayerSpec
}

// CheckMatch implements the match-rank contract of spec.md §6: the
// highest rank among ids that equal (vendor<<16 | product), 0 if none.
func (s *Spec) CheckMatch(id uint32) int {
	rank := 0
	for _, m := range s.Matches {
		if uint32(m.Vendor)<<16|uint32(m.Product) != id {
			continue
		}
		if m.Rank > rank {
			rank = m.Rank
		}
	}
	return rank
}

// ParseFile reads a minimal ".conf" grammar:
//
//	[ids]
//	046d:c52b rank=1
//
//	[main]
//	30=48
//
//	[nav]
//	trigger=59
//	36=105
//
// Blank lines and lines starting with '#' are ignored. This grammar is
// deliberately small — the remapping configuration language is out of
// scope for this repository; this exists only so the registry and
// dispatcher have something concrete to load.
func ParseFile(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	spec := &Spec{Path: path}

	var section string
	var layer *LayerSpec

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if layer != nil {
				spec.Layers = append(spec.Layers, *layer)
				layer = nil
			}
			section = strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			if section != "ids" && section != "main" {
				layer = &LayerSpec{Name: section}
			}
			continue
		}

		switch {
		case section == "ids":
			m, err := parseIDLine(line)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
			}
			spec.Matches = append(spec.Matches, m)
		case section == "main":
			r, err := parseRemapLine(line)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
			}
			spec.Main = append(spec.Main, r)
		case layer != nil:
			if strings.HasPrefix(line, "trigger=") {
				code, err := parseKeyCode(strings.TrimPrefix(line, "trigger="), 10)
				if err != nil {
					return nil, fmt.Errorf("%s:%d: bad trigger: %w", path, lineNo, err)
				}
				layer.Trigger = code
				continue
			}
			r, err := parseRemapLine(line)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
			}
			layer.Remaps = append(layer.Remaps, r)
		default:
			return nil, fmt.Errorf("%s:%d: line outside any section", path, lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if layer != nil {
		spec.Layers = append(spec.Layers, *layer)
	}

	return spec, nil
}

func parseIDLine(line string) (DeviceMatch, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return DeviceMatch{}, fmt.Errorf("empty id line")
	}
	idParts := strings.SplitN(fields[0], ":", 2)
	if len(idParts) != 2 {
		return DeviceMatch{}, fmt.Errorf("expected vendor:product, got %q", fields[0])
	}
	vendor, err := strconv.ParseUint(idParts[0], 16, 16)
	if err != nil {
		return DeviceMatch{}, fmt.Errorf("bad vendor id %q: %w", idParts[0], err)
	}
	product, err := strconv.ParseUint(idParts[1], 16, 16)
	if err != nil {
		return DeviceMatch{}, fmt.Errorf("bad product id %q: %w", idParts[1], err)
	}

	rank := 2
	for _, f := range fields[1:] {
		if strings.HasPrefix(f, "rank=") {
			r, err := strconv.Atoi(strings.TrimPrefix(f, "rank="))
			if err != nil {
				return DeviceMatch{}, fmt.Errorf("bad rank %q: %w", f, err)
			}
			rank = r
		}
	}

	return DeviceMatch{Vendor: uint16(vendor), Product: uint16(product), Rank: rank}, nil
}

func parseRemapLine(line string) (RemapRule, error) {
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return RemapRule{}, fmt.Errorf("expected <code>=<code>, got %q", line)
	}
	from, err := parseKeyCode(strings.TrimSpace(parts[0]), 10)
	if err != nil {
		return RemapRule{}, fmt.Errorf("bad source code %q: %w", parts[0], err)
	}
	to, err := parseKeyCode(strings.TrimSpace(parts[1]), 10)
	if err != nil {
		return RemapRule{}, fmt.Errorf("bad target code %q: %w", parts[1], err)
	}
	return RemapRule{From: from, To: to}, nil
}

// parseKeyCode parses a key code in the given base, rejecting anything
// outside the 0-255 range spec.md §3 defines for key codes. Every remap
// endpoint, trigger, and oneshot code funnels through here so a
// malformed ".conf" line or an untrusted IPC BIND expression can never
// produce a code the virtual sink's fixed-size keystate vector can't
// hold.
func parseKeyCode(s string, base int) (uint16, error) {
	v, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, err
	}
	if v > 255 {
		return 0, fmt.Errorf("key code %d out of range (must be 0-255)", v)
	}
	return uint16(v), nil
}

// ParseKeyCode is the exported form of parseKeyCode, used by any other
// package (namely internal/keyboard's Eval) that accepts a key code from
// an untrusted source and must enforce the same 0-255 bound.
func ParseKeyCode(s string, base int) (uint16, error) {
	return parseKeyCode(s, base)
}
