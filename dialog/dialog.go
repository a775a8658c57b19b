// Package dialog shows the small native dialogs of the tray menu.
package dialog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ncruces/zenity"

	"markestedt/typetool/config"
)

const title = "TypeTool"

// ConfirmHotkey asks whether to save hb as the new binding for what.
// Cancelling the dialog counts as no.
func ConfirmHotkey(what string, hb config.HotkeyBinding) bool {
	err := zenity.Question(
		fmt.Sprintf("Save %s as the new %s?", hb, what),
		zenity.Title(title),
		zenity.OKLabel("Save"),
		zenity.CancelLabel("Discard"),
	)
	return err == nil
}

// AskDelay asks for the delay per character. ok is false when the user
// cancelled.
func AskDelay(current int) (delay int, ok bool, err error) {
	text, err := zenity.Entry(
		"Speed (ms per character):",
		zenity.Title(title),
		zenity.EntryText(strconv.Itoa(current)),
	)
	if errors.Is(err, zenity.ErrCanceled) {
		return current, false, nil
	}
	if err != nil {
		return current, false, fmt.Errorf("failed to show speed dialog: %w", err)
	}

	delay, err = ParseDelay(text)
	if err != nil {
		return current, false, err
	}
	return delay, true, nil
}

// ParseDelay parses a delay in milliseconds, rejecting negative values
func ParseDelay(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("delay must be >= 0, got %d", n)
	}
	return n, nil
}

// ShowError shows an error message box
func ShowError(message string) {
	zenity.Error(message, zenity.Title(title))
}
