//go:build windows

package native

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"markestedt/typetool/platform"
)

var (
	registerHotKey      = user32.NewProc("RegisterHotKey")
	unregisterHotKey    = user32.NewProc("UnregisterHotKey")
	setWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	callNextHookEx      = user32.NewProc("CallNextHookEx")
	unhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
)

const (
	modNoRepeat = 0x4000

	whKeyboardLL = 13
	wmKeydown    = 0x0100
	wmSyskeydown = 0x0104

	llkhfInjected = 0x10
)

const (
	vkShift = 0x10
	vkCtrl  = 0x11
	vkAlt   = 0x12
)

type kbdllhookstruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

// Register binds a global chord to the hidden window. MOD_NOREPEAT keeps a
// held chord from firing repeatedly.
func (l *Loop) Register(id int, mods uint32, vk uint32) error {
	return l.Do(func() error {
		r, _, err := registerHotKey.Call(l.hwnd, uintptr(id), uintptr(mods|modNoRepeat), uintptr(vk))
		if r == 0 {
			return fmt.Errorf("RegisterHotKey failed: %w", err)
		}
		return nil
	})
}

// Unregister removes the chord registered under id
func (l *Loop) Unregister(id int) error {
	return l.Do(func() error {
		r, _, err := unregisterHotKey.Call(l.hwnd, uintptr(id))
		if r == 0 {
			return fmt.Errorf("UnregisterHotKey failed: %w", err)
		}
		return nil
	})
}

// Hook installs a low-level keyboard hook on the loop thread. fn runs on
// that thread for every key-down; returning true swallows the key.
// Only one hook is active at a time; a second Hook replaces the handler.
func (l *Loop) Hook(fn platform.KeyHandler) (func(), error) {
	err := l.Do(func() error {
		l.hookHandler = fn
		if l.hook != 0 {
			return nil
		}
		if l.hookCallback == 0 {
			l.hookCallback = windows.NewCallback(l.hookProc)
		}
		instance, _, _ := getModuleHandle.Call(0)
		hook, _, err := setWindowsHookEx.Call(whKeyboardLL, l.hookCallback, instance, 0)
		if hook == 0 {
			l.hookHandler = nil
			return fmt.Errorf("SetWindowsHookEx failed: %w", err)
		}
		l.hook = hook
		return nil
	})
	if err != nil {
		return nil, err
	}

	unhook := func() {
		_ = l.Do(func() error {
			if l.hook != 0 {
				unhookWindowsHookEx.Call(l.hook)
				l.hook = 0
			}
			l.hookHandler = nil
			return nil
		})
	}
	return unhook, nil
}

func (l *Loop) hookProc(nCode int32, wParam uintptr, lParam uintptr) uintptr {
	if nCode >= 0 && (wParam == wmKeydown || wParam == wmSyskeydown) && l.hookHandler != nil {
		kbInfo := (*kbdllhookstruct)(unsafe.Pointer(lParam))
		evt := platform.KeyEvent{
			VK:       int(kbInfo.vkCode),
			Ctrl:     isKeyPressed(vkCtrl),
			Alt:      isKeyPressed(vkAlt),
			Shift:    isKeyPressed(vkShift),
			Injected: kbInfo.flags&llkhfInjected != 0,
		}
		if l.hookHandler(evt) {
			return 1
		}
	}
	r, _, _ := callNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return r
}

func isKeyPressed(vk int) bool {
	r, _, _ := getAsyncKeyState.Call(uintptr(vk))
	return r&0x8000 != 0
}
