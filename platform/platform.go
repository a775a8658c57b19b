package platform

import (
	"errors"
)

// ErrUnsupported is returned by operations the current OS cannot provide
var ErrUnsupported = errors.New("not supported on this platform")

// ErrAlreadyRunning is returned by AcquireInstance when another process
// holds the instance lock
var ErrAlreadyRunning = errors.New("another instance is already running")

// ErrClosed is returned when the event loop has already been shut down
var ErrClosed = errors.New("event loop closed")

// Modifier bits of a hotkey chord (RegisterHotKey fsModifiers)
const (
	ModAlt   uint32 = 0x0001
	ModCtrl  uint32 = 0x0002
	ModShift uint32 = 0x0004
)

// HotkeySink registers global key chords. Registrations belong to the sink
// and are dropped when it is closed.
type HotkeySink interface {
	Register(id int, mods uint32, vk uint32) error
	Unregister(id int) error
}

// KeyState answers whether a key is physically held right now
type KeyState interface {
	IsDown(vk int) bool
}

// Keyboard synthesizes keystrokes. keys uses the brace notation described in
// DecodeKeys: a single character, a braced literal such as "{(}", or a named
// key such as "{ENTER}".
type Keyboard interface {
	Send(keys string) error
}

// Clipboard provides clipboard access
type Clipboard interface {
	ContainsText() bool
	GetText() (string, error)
}

// KeyEvent is a physical key-down observed by a KeyHook
type KeyEvent struct {
	VK       int
	Ctrl     bool
	Alt      bool
	Shift    bool
	Injected bool // synthesized by SendInput or similar
}

// Modifiers returns the held modifiers as a RegisterHotKey mask
func (e KeyEvent) Modifiers() uint32 {
	var m uint32
	if e.Alt {
		m |= ModAlt
	}
	if e.Ctrl {
		m |= ModCtrl
	}
	if e.Shift {
		m |= ModShift
	}
	return m
}

// KeyHandler receives key-down events. Returning true consumes the event so
// no other application sees it.
type KeyHandler func(KeyEvent) (consumed bool)

// KeyHook intercepts key-down events system wide until unhook is called
type KeyHook interface {
	Hook(fn KeyHandler) (unhook func(), err error)
}
