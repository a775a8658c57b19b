//go:build linux

package native

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.design/x/hotkey"

	"markestedt/typetool/platform"
)

type registration struct {
	hk     *hotkey.Hotkey
	stopCh chan struct{}
}

// Loop serializes hotkey callbacks and registration changes on a single
// goroutine, mirroring the Win32 message loop. Chords are grabbed through X11.
type Loop struct {
	onHotkey func(id int)

	calls chan func()
	fired chan int
	done  chan struct{}

	mu     sync.Mutex
	closed bool

	// loop goroutine only
	regs map[int]*registration
}

// NewLoop starts the event loop. onHotkey runs on the loop goroutine.
func NewLoop(onHotkey func(id int)) (*Loop, error) {
	l := &Loop{
		onHotkey: onHotkey,
		calls:    make(chan func(), 16),
		fired:    make(chan int, 16),
		done:     make(chan struct{}),
		regs:     make(map[int]*registration),
	}
	go l.run()
	return l, nil
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case fn, ok := <-l.calls:
			if !ok {
				slog.Debug("Event loop stopped")
				return
			}
			fn()
		case id := <-l.fired:
			if l.onHotkey != nil {
				l.onHotkey(id)
			}
		}
	}
}

// Do runs fn on the loop goroutine and waits for it. Unlike the Windows
// loop it must not be called from inside onHotkey.
func (l *Loop) Do(fn func() error) error {
	result := make(chan error, 1)
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return platform.ErrClosed
	}
	l.calls <- func() { result <- fn() }
	l.mu.Unlock()
	return <-result
}

// Register grabs the chord and forwards its key-down events to onHotkey
func (l *Loop) Register(id int, mods uint32, vk uint32) error {
	return l.Do(func() error {
		key, ok := keyMap[int(vk)]
		if !ok {
			return fmt.Errorf("key 0x%02X: %w", vk, platform.ErrUnsupported)
		}
		var hkMods []hotkey.Modifier
		for bit, mod := range modifierMap {
			if mods&bit != 0 {
				hkMods = append(hkMods, mod)
			}
		}

		hk := hotkey.New(hkMods, key)
		if err := hk.Register(); err != nil {
			return fmt.Errorf("failed to grab hotkey: %w", err)
		}
		reg := &registration{hk: hk, stopCh: make(chan struct{})}
		l.regs[id] = reg
		go l.listen(id, reg)
		return nil
	})
}

func (l *Loop) listen(id int, reg *registration) {
	for {
		select {
		case <-reg.stopCh:
			return
		case _, ok := <-reg.hk.Keydown():
			if !ok {
				return
			}
			select {
			case l.fired <- id:
			case <-reg.stopCh:
				return
			}
		}
	}
}

// Unregister releases the chord registered under id
func (l *Loop) Unregister(id int) error {
	return l.Do(func() error {
		reg, ok := l.regs[id]
		if !ok {
			return fmt.Errorf("hotkey %d not registered", id)
		}
		delete(l.regs, id)
		close(reg.stopCh)

		done := make(chan error, 1)
		go func() { done <- reg.hk.Unregister() }()
		select {
		case err := <-done:
			return err
		case <-time.After(500 * time.Millisecond):
			slog.Warn("Hotkey unregister timeout", "id", id)
			return nil
		}
	})
}

// Hook is not available without a Win32 low-level hook
func (l *Loop) Hook(fn platform.KeyHandler) (func(), error) {
	return nil, platform.ErrUnsupported
}

// Close releases every registration and stops the loop
func (l *Loop) Close() error {
	err := l.Do(func() error {
		for id, reg := range l.regs {
			close(reg.stopCh)
			_ = reg.hk.Unregister()
			delete(l.regs, id)
		}
		return nil
	})
	if err == platform.ErrClosed {
		return nil
	}

	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	close(l.calls)
	<-l.done
	return err
}

// KeyProbe cannot observe physical key state on X11/Wayland without extra
// privileges; it always reports keys as released.
type KeyProbe struct{}

// NewKeyProbe creates a key state probe
func NewKeyProbe() platform.KeyState {
	return KeyProbe{}
}

// IsDown always returns false on Linux
func (KeyProbe) IsDown(vk int) bool {
	return false
}

var modifierMap = map[uint32]hotkey.Modifier{
	platform.ModCtrl:  hotkey.ModCtrl,
	platform.ModShift: hotkey.ModShift,
	platform.ModAlt:   hotkey.Mod1, // Alt = Mod1 on X11
}

// keyMap maps Windows virtual-key codes to hotkey keys
var keyMap = map[int]hotkey.Key{
	0x20: hotkey.KeySpace,
	0x0D: hotkey.KeyReturn,
	0x1B: hotkey.KeyEscape,
	0x09: hotkey.KeyTab,
	0x2E: hotkey.KeyDelete,
	0x25: hotkey.KeyLeft,
	0x26: hotkey.KeyUp,
	0x27: hotkey.KeyRight,
	0x28: hotkey.KeyDown,
	'0':  hotkey.Key0,
	'1':  hotkey.Key1,
	'2':  hotkey.Key2,
	'3':  hotkey.Key3,
	'4':  hotkey.Key4,
	'5':  hotkey.Key5,
	'6':  hotkey.Key6,
	'7':  hotkey.Key7,
	'8':  hotkey.Key8,
	'9':  hotkey.Key9,
	'A':  hotkey.KeyA,
	'B':  hotkey.KeyB,
	'C':  hotkey.KeyC,
	'D':  hotkey.KeyD,
	'E':  hotkey.KeyE,
	'F':  hotkey.KeyF,
	'G':  hotkey.KeyG,
	'H':  hotkey.KeyH,
	'I':  hotkey.KeyI,
	'J':  hotkey.KeyJ,
	'K':  hotkey.KeyK,
	'L':  hotkey.KeyL,
	'M':  hotkey.KeyM,
	'N':  hotkey.KeyN,
	'O':  hotkey.KeyO,
	'P':  hotkey.KeyP,
	'Q':  hotkey.KeyQ,
	'R':  hotkey.KeyR,
	'S':  hotkey.KeyS,
	'T':  hotkey.KeyT,
	'U':  hotkey.KeyU,
	'V':  hotkey.KeyV,
	'W':  hotkey.KeyW,
	'X':  hotkey.KeyX,
	'Y':  hotkey.KeyY,
	'Z':  hotkey.KeyZ,
	0x70: hotkey.KeyF1,
	0x71: hotkey.KeyF2,
	0x72: hotkey.KeyF3,
	0x73: hotkey.KeyF4,
	0x74: hotkey.KeyF5,
	0x75: hotkey.KeyF6,
	0x76: hotkey.KeyF7,
	0x77: hotkey.KeyF8,
	0x78: hotkey.KeyF9,
	0x79: hotkey.KeyF10,
	0x7A: hotkey.KeyF11,
	0x7B: hotkey.KeyF12,
}
