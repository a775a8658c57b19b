package config

import (
	"errors"
	"fmt"
	"strings"
)

// Modifier is the modifier bitmask of a hotkey chord. The values match the
// fsModifiers argument of RegisterHotKey.
type Modifier int

const (
	ModAlt   Modifier = 1
	ModCtrl  Modifier = 2
	ModShift Modifier = 4

	modMask = ModAlt | ModCtrl | ModShift
)

// HotkeyBinding is a modifier mask paired with a virtual-key code
type HotkeyBinding struct {
	Modifiers Modifier `toml:"modifiers" json:"modifierMask"`
	KeyCode   int      `toml:"key_code" json:"keyCode"`
}

// Validate reports whether the binding can be registered as a global hotkey
func (h HotkeyBinding) Validate() error {
	if h.Modifiers&^modMask != 0 {
		return fmt.Errorf("unknown modifier bits: %#x", int(h.Modifiers&^modMask))
	}
	if h.KeyCode <= 0 || h.KeyCode > 0xFE {
		return fmt.Errorf("invalid key code: %d", h.KeyCode)
	}
	if IsModifierKey(h.KeyCode) {
		return errors.New("key must not be a modifier")
	}
	return nil
}

// SameChord reports whether both bindings describe the same key combination
func (h HotkeyBinding) SameChord(o HotkeyBinding) bool {
	return h.Modifiers == o.Modifiers && h.KeyCode == o.KeyCode
}

// String returns a readable form such as "Ctrl + Alt + B"
func (h HotkeyBinding) String() string {
	var keys []string
	if h.Modifiers&ModCtrl != 0 {
		keys = append(keys, "Ctrl")
	}
	if h.Modifiers&ModAlt != 0 {
		keys = append(keys, "Alt")
	}
	if h.Modifiers&ModShift != 0 {
		keys = append(keys, "Shift")
	}
	keys = append(keys, KeyName(h.KeyCode))
	return strings.Join(keys, " + ")
}

// Combo returns the binding in the form accepted by ParseHotkey, e.g. "ctrl+alt+b"
func (h HotkeyBinding) Combo() string {
	var parts []string
	if h.Modifiers&ModCtrl != 0 {
		parts = append(parts, "ctrl")
	}
	if h.Modifiers&ModAlt != 0 {
		parts = append(parts, "alt")
	}
	if h.Modifiers&ModShift != 0 {
		parts = append(parts, "shift")
	}
	parts = append(parts, strings.ToLower(KeyName(h.KeyCode)))
	return strings.Join(parts, "+")
}

// ParseHotkey parses a hotkey combo string like "ctrl+alt+b" or "shift+f5"
func ParseHotkey(combo string) (HotkeyBinding, error) {
	var hb HotkeyBinding
	combo = strings.TrimSpace(combo)
	if combo == "" {
		return hb, errors.New("empty hotkey combo")
	}

	parts := strings.Split(strings.ToLower(combo), "+")
	for i, part := range parts {
		part = strings.TrimSpace(part)

		isModifier := true
		switch part {
		case "ctrl", "control", "strg":
			hb.Modifiers |= ModCtrl
		case "shift":
			hb.Modifiers |= ModShift
		case "alt":
			hb.Modifiers |= ModAlt
		default:
			isModifier = false
		}
		if isModifier {
			continue
		}

		// The key must be the last part
		if i != len(parts)-1 {
			return hb, fmt.Errorf("unknown modifier: %s", part)
		}
		code, err := VKCode(part)
		if err != nil {
			return hb, err
		}
		hb.KeyCode = code
	}

	if hb.KeyCode == 0 {
		return hb, fmt.Errorf("no key specified in combo %q", combo)
	}
	return hb, nil
}
