// Package native implements the platform contracts on the host OS: a Win32
// message loop with RegisterHotKey, SendInput and a low-level keyboard hook on
// Windows, and golang.design/x/hotkey with xdotool or wtype on Linux.
package native
