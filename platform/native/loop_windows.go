//go:build windows

package native

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"markestedt/typetool/platform"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	registerClassEx  = user32.NewProc("RegisterClassExW")
	createWindowEx   = user32.NewProc("CreateWindowExW")
	destroyWindow    = user32.NewProc("DestroyWindow")
	defWindowProc    = user32.NewProc("DefWindowProcW")
	getMessage       = user32.NewProc("GetMessageW")
	translateMessage = user32.NewProc("TranslateMessage")
	dispatchMessage  = user32.NewProc("DispatchMessageW")
	postMessage      = user32.NewProc("PostMessageW")
	postQuitMessage  = user32.NewProc("PostQuitMessage")
	getModuleHandle  = kernel32.NewProc("GetModuleHandleW")
	getCurrentThread = kernel32.NewProc("GetCurrentThreadId")
	getAsyncKeyState = user32.NewProc("GetAsyncKeyState")
)

const (
	wmHotkey  = 0x0312
	wmApp     = 0x8000
	wmRun     = wmApp + 1

	hwndMessage = ^uintptr(2) // HWND_MESSAGE = (HWND)-3
)

type msg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
}

type wndClassEx struct {
	size       uint32
	style      uint32
	wndProc    uintptr
	clsExtra   int32
	wndExtra   int32
	instance   uintptr
	icon       uintptr
	cursor     uintptr
	background uintptr
	menuName   *uint16
	className  *uint16
	iconSm     uintptr
}

var registerClassOnce struct {
	sync.Once
	err error
}

// Loop owns the thread that runs the Win32 message loop together with a
// hidden message-only window. Hotkey registrations and the keyboard hook are
// bound to that thread; every call touching them is marshalled there by Do.
type Loop struct {
	onHotkey func(id int)

	hwnd     uintptr
	threadID uint32

	mu     sync.Mutex
	calls  []func()
	closed bool
	done   chan struct{}

	// loop thread only
	hook         uintptr
	hookCallback uintptr
	hookHandler  platform.KeyHandler
}

// NewLoop starts the message loop. onHotkey runs on the loop thread for
// every WM_HOTKEY and must return quickly.
func NewLoop(onHotkey func(id int)) (*Loop, error) {
	l := &Loop{
		onHotkey: onHotkey,
		done:     make(chan struct{}),
	}

	errCh := make(chan error, 1)
	go l.run(errCh)
	if err := <-errCh; err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loop) run(errCh chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(l.done)

	hwnd, err := createHiddenWindow()
	if err != nil {
		errCh <- err
		return
	}
	tid, _, _ := getCurrentThread.Call()
	l.hwnd = hwnd
	l.threadID = uint32(tid)
	errCh <- nil

	var m msg
	for {
		r, _, _ := getMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) <= 0 {
			// WM_QUIT or error
			break
		}

		switch m.message {
		case wmHotkey:
			if l.onHotkey != nil {
				l.onHotkey(int(m.wParam))
			}
		case wmRun:
			l.drain()
		default:
			translateMessage.Call(uintptr(unsafe.Pointer(&m)))
			dispatchMessage.Call(uintptr(unsafe.Pointer(&m)))
		}
	}

	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.drain()
	slog.Debug("Message loop stopped")
}

func (l *Loop) drain() {
	l.mu.Lock()
	calls := l.calls
	l.calls = nil
	l.mu.Unlock()

	for _, fn := range calls {
		fn()
	}
}

func (l *Loop) onLoopThread() bool {
	tid, _, _ := getCurrentThread.Call()
	return uint32(tid) == l.threadID
}

// Do runs fn on the loop thread and waits for it. Called from the loop
// thread itself (e.g. inside a hotkey callback) fn runs inline.
func (l *Loop) Do(fn func() error) error {
	if l.onLoopThread() {
		return fn()
	}

	result := make(chan error, 1)
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return platform.ErrClosed
	}
	l.calls = append(l.calls, func() { result <- fn() })
	l.mu.Unlock()

	r, _, err := postMessage.Call(l.hwnd, wmRun, 0, 0)
	if r == 0 {
		return fmt.Errorf("PostMessage failed: %w", err)
	}

	select {
	case err := <-result:
		return err
	case <-l.done:
		// The loop drains pending calls before exiting
		select {
		case err := <-result:
			return err
		default:
			return platform.ErrClosed
		}
	}
}

// Close destroys the hidden window, which drops all of its hotkey
// registrations, and stops the loop.
func (l *Loop) Close() error {
	err := l.Do(func() error {
		if l.hook != 0 {
			unhookWindowsHookEx.Call(l.hook)
			l.hook = 0
			l.hookHandler = nil
		}
		destroyWindow.Call(l.hwnd)
		postQuitMessage.Call(0)
		return nil
	})
	if err == platform.ErrClosed {
		return nil
	}
	<-l.done
	return err
}

func createHiddenWindow() (uintptr, error) {
	className, err := windows.UTF16PtrFromString("TypeToolHotkeyWindow")
	if err != nil {
		return 0, err
	}
	instance, _, _ := getModuleHandle.Call(0)

	registerClassOnce.Do(func() {
		wc := wndClassEx{
			wndProc:   windows.NewCallback(wndProc),
			instance:  instance,
			className: className,
		}
		wc.size = uint32(unsafe.Sizeof(wc))
		if r, _, err := registerClassEx.Call(uintptr(unsafe.Pointer(&wc))); r == 0 {
			registerClassOnce.err = fmt.Errorf("RegisterClassEx failed: %w", err)
		}
	})
	if registerClassOnce.err != nil {
		return 0, registerClassOnce.err
	}

	hwnd, _, err := createWindowEx.Call(
		0,
		uintptr(unsafe.Pointer(className)),
		0,
		0,
		0, 0, 0, 0,
		hwndMessage,
		0,
		instance,
		0,
	)
	if hwnd == 0 {
		return 0, fmt.Errorf("CreateWindowEx failed: %w", err)
	}
	return hwnd, nil
}

func wndProc(hwnd, message, wParam, lParam uintptr) uintptr {
	r, _, _ := defWindowProc.Call(hwnd, message, wParam, lParam)
	return r
}

// KeyProbe reports physical key state via GetAsyncKeyState
type KeyProbe struct{}

// NewKeyProbe creates a key state probe
func NewKeyProbe() platform.KeyState {
	return KeyProbe{}
}

// IsDown reports whether vk is held right now
func (KeyProbe) IsDown(vk int) bool {
	return isKeyPressed(vk)
}
