//go:build windows

package platform

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

// AcquireInstance takes the named process-wide mutex. It returns
// ErrAlreadyRunning when another process holds it.
func AcquireInstance(name string) (release func(), err error) {
	namePtr, err := windows.UTF16PtrFromString("Local\\" + name)
	if err != nil {
		return nil, err
	}

	h, err := windows.CreateMutex(nil, true, namePtr)
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		if h != 0 {
			windows.CloseHandle(h)
		}
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create instance mutex: %w", err)
	}

	return func() {
		windows.ReleaseMutex(h)
		windows.CloseHandle(h)
	}, nil
}
