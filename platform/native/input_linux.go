//go:build linux

package native

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/atotto/clipboard"

	"markestedt/typetool/platform"
)

var xdotoolKeys = map[int]string{
	0x0D: "Return",
	0x09: "Tab",
	0x1B: "Escape",
	0x08: "BackSpace",
	0x2E: "Delete",
	0x24: "Home",
	0x23: "End",
	0x25: "Left",
	0x26: "Up",
	0x27: "Right",
	0x28: "Down",
}

// LinuxKeyboard types through xdotool on X11 and wtype on Wayland
type LinuxKeyboard struct {
	useWayland bool
}

// NewKeyboard creates a new Linux keyboard instance
func NewKeyboard() platform.Keyboard {
	return &LinuxKeyboard{
		useWayland: os.Getenv("WAYLAND_DISPLAY") != "",
	}
}

// Send synthesizes one unit of input
func (k *LinuxKeyboard) Send(keys string) error {
	ks, err := platform.DecodeKeys(keys)
	if err != nil {
		return err
	}

	var cmd *exec.Cmd
	if ks.VK != 0 {
		name, ok := xdotoolKeys[ks.VK]
		if !ok {
			return fmt.Errorf("key 0x%02X: %w", ks.VK, platform.ErrUnsupported)
		}
		if k.useWayland {
			cmd = exec.Command("wtype", "-k", name)
		} else {
			cmd = exec.Command("xdotool", "key", "--clearmodifiers", name)
		}
	} else {
		text := string(ks.Rune)
		if k.useWayland {
			cmd = exec.Command("wtype", "--", text)
		} else {
			cmd = exec.Command("xdotool", "type", "--clearmodifiers", "--", text)
		}
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", cmd.Path, err, out)
	}
	return nil
}

// LinuxClipboard reads the clipboard through xclip/xsel/wl-paste
type LinuxClipboard struct{}

// NewClipboard creates a new Linux clipboard instance
func NewClipboard() platform.Clipboard {
	return &LinuxClipboard{}
}

// ContainsText reports whether the clipboard holds non-empty text
func (c *LinuxClipboard) ContainsText() bool {
	text, err := clipboard.ReadAll()
	return err == nil && text != ""
}

// GetText retrieves text from the clipboard
func (c *LinuxClipboard) GetText() (string, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to read clipboard: %w", err)
	}
	return text, nil
}
