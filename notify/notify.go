package notify

import (
	"fmt"

	"github.com/gen2brain/beeep"
)

const appName = "TypeTool"

// Severity selects how a notification is presented
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Notifier shows a short message to the user
type Notifier interface {
	Notify(title, message string, severity Severity) error
}

// Toast sends desktop notifications
type Toast struct {
	icon string
}

// New creates a new desktop notifier. icon may be empty.
func New(icon string) *Toast {
	return &Toast{icon: icon}
}

// Notify shows title and message. Errors go through beeep.Alert, which adds
// the platform's alert sound.
func (t *Toast) Notify(title, message string, severity Severity) error {
	if title != "" {
		title = appName + ": " + title
	} else {
		title = appName
	}

	var err error
	if severity == Error {
		err = beeep.Alert(title, message, t.icon)
	} else {
		err = beeep.Notify(title, message, t.icon)
	}
	if err != nil {
		return fmt.Errorf("failed to show notification: %w", err)
	}
	return nil
}

// Func adapts a function to the Notifier interface
type Func func(title, message string, severity Severity) error

// Notify calls f
func (f Func) Notify(title, message string, severity Severity) error {
	return f(title, message, severity)
}
