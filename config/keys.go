package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Windows virtual-key codes used outside the A-Z / 0-9 ranges
const (
	VKBack     = 0x08
	VKTab      = 0x09
	VKReturn   = 0x0D
	VKShift    = 0x10
	VKControl  = 0x11
	VKMenu     = 0x12 // Alt
	VKPause    = 0x13
	VKEscape   = 0x1B
	VKSpace    = 0x20
	VKPrior    = 0x21
	VKNext     = 0x22
	VKEnd      = 0x23
	VKHome     = 0x24
	VKLeft     = 0x25
	VKUp       = 0x26
	VKRight    = 0x27
	VKDown     = 0x28
	VKInsert   = 0x2D
	VKDelete   = 0x2E
	VKLWin     = 0x5B
	VKRWin     = 0x5C
	VKNumpad0  = 0x60
	VKF1       = 0x70
	VKF24      = 0x87
	VKLShift   = 0xA0
	VKRShift   = 0xA1
	VKLControl = 0xA2
	VKRControl = 0xA3
	VKLMenu    = 0xA4
	VKRMenu    = 0xA5
)

var namedKeys = map[int]string{
	VKBack:   "Backspace",
	VKTab:    "Tab",
	VKReturn: "Enter",
	VKPause:  "Pause",
	VKEscape: "Esc",
	VKSpace:  "Space",
	VKPrior:  "PageUp",
	VKNext:   "PageDown",
	VKEnd:    "End",
	VKHome:   "Home",
	VKLeft:   "Left",
	VKUp:     "Up",
	VKRight:  "Right",
	VKDown:   "Down",
	VKInsert: "Insert",
	VKDelete: "Delete",
}

var keyAliases = map[string]int{
	"return": VKReturn,
	"escape": VKEscape,
	"del":    VKDelete,
	"ins":    VKInsert,
	"pgup":   VKPrior,
	"pgdn":   VKNext,
	"pos1":   VKHome,
}

// IsModifierKey reports whether vk is Ctrl, Shift or Alt (either side) or a
// Windows key. Such keys alone never form a chord.
func IsModifierKey(vk int) bool {
	switch vk {
	case VKShift, VKControl, VKMenu,
		VKLShift, VKRShift, VKLControl, VKRControl, VKLMenu, VKRMenu,
		VKLWin, VKRWin:
		return true
	}
	return false
}

// KeyName returns the display name of a virtual-key code
func KeyName(vk int) string {
	switch {
	case vk >= 'A' && vk <= 'Z', vk >= '0' && vk <= '9':
		return string(rune(vk))
	case vk >= VKF1 && vk <= VKF24:
		return "F" + strconv.Itoa(vk-VKF1+1)
	case vk >= VKNumpad0 && vk <= VKNumpad0+9:
		return "Num" + strconv.Itoa(vk-VKNumpad0)
	}
	if name, ok := namedKeys[vk]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", vk)
}

// VKCode returns the virtual-key code for a key name (case-insensitive)
func VKCode(key string) (int, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return 0, fmt.Errorf("empty key name")
	}

	if len(key) == 1 {
		c := key[0]
		switch {
		case c >= 'a' && c <= 'z':
			return int(c - 'a' + 'A'), nil
		case c >= '0' && c <= '9':
			return int(c), nil
		}
	}

	if n, ok := numberedKey(key, "f"); ok && n >= 1 && n <= 24 {
		return VKF1 + n - 1, nil
	}
	if n, ok := numberedKey(key, "num"); ok && n >= 0 && n <= 9 {
		return VKNumpad0 + n, nil
	}
	if strings.HasPrefix(key, "0x") {
		if v, err := strconv.ParseInt(key[2:], 16, 32); err == nil && v > 0 && v <= 0xFE {
			return int(v), nil
		}
	}

	for vk, name := range namedKeys {
		if strings.ToLower(name) == key {
			return vk, nil
		}
	}
	if vk, ok := keyAliases[key]; ok {
		return vk, nil
	}

	return 0, fmt.Errorf("unknown key: %s", key)
}

func numberedKey(key, prefix string) (int, bool) {
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(key[len(prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}
