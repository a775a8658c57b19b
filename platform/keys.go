package platform

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Keystroke is a decoded unit of keyboard input: either a literal character
// or a virtual key.
type Keystroke struct {
	Rune rune
	VK   int
}

var namedVK = map[string]int{
	"ENTER":     0x0D,
	"TAB":       0x09,
	"ESC":       0x1B,
	"BACKSPACE": 0x08,
	"BS":        0x08,
	"DELETE":    0x2E,
	"DEL":       0x2E,
	"HOME":      0x24,
	"END":       0x23,
	"LEFT":      0x25,
	"UP":        0x26,
	"RIGHT":     0x27,
	"DOWN":      0x28,
}

// DecodeKeys decodes one unit of brace notation. "a" types a, "{+}" types a
// literal plus sign and "{ENTER}" presses the Enter key.
func DecodeKeys(keys string) (Keystroke, error) {
	if keys == "" {
		return Keystroke{}, fmt.Errorf("empty keys")
	}

	if utf8.RuneCountInString(keys) == 1 {
		r, _ := utf8.DecodeRuneInString(keys)
		return Keystroke{Rune: r}, nil
	}

	if !strings.HasPrefix(keys, "{") || !strings.HasSuffix(keys, "}") {
		return Keystroke{}, fmt.Errorf("invalid keys %q: expected a single character or {...}", keys)
	}
	inner := keys[1 : len(keys)-1]
	if utf8.RuneCountInString(inner) == 1 {
		r, _ := utf8.DecodeRuneInString(inner)
		return Keystroke{Rune: r}, nil
	}
	if vk, ok := namedVK[strings.ToUpper(inner)]; ok {
		return Keystroke{VK: vk}, nil
	}
	return Keystroke{}, fmt.Errorf("unknown key name %q", inner)
}
