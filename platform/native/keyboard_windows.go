//go:build windows

package native

import (
	"fmt"
	"unicode/utf16"
	"unsafe"

	"markestedt/typetool/platform"
)

var (
	sendInput      = user32.NewProc("SendInput")
	mapVirtualKeyW = user32.NewProc("MapVirtualKeyW")
)

const (
	inputKeyboard    = 1
	keyeventfKeyup   = 0x0002
	keyeventfUnicode = 0x0004
	mapvkVkToVsc     = 0
)

type keyboardInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

type input struct {
	inputType uint32
	ki        keyboardInput
	padding   [8]byte // Padding to match C struct size
}

// WindowsKeyboard implements the Keyboard interface with SendInput
type WindowsKeyboard struct{}

// NewKeyboard creates a new Windows keyboard instance
func NewKeyboard() platform.Keyboard {
	return &WindowsKeyboard{}
}

// Send synthesizes one unit of input. Characters go out as
// KEYEVENTF_UNICODE so the result does not depend on the keyboard layout.
func (k *WindowsKeyboard) Send(keys string) error {
	ks, err := platform.DecodeKeys(keys)
	if err != nil {
		return err
	}

	var inputs []input
	if ks.VK != 0 {
		scan, _, _ := mapVirtualKeyW.Call(uintptr(ks.VK), mapvkVkToVsc)
		inputs = []input{
			{inputType: inputKeyboard, ki: keyboardInput{wVk: uint16(ks.VK), wScan: uint16(scan)}},
			{inputType: inputKeyboard, ki: keyboardInput{wVk: uint16(ks.VK), wScan: uint16(scan), dwFlags: keyeventfKeyup}},
		}
	} else {
		r := ks.Rune
		if r == '\n' {
			// Unicode LF is ignored by most edit controls
			return k.Send("{ENTER}")
		}
		for _, u := range utf16.Encode([]rune{r}) {
			inputs = append(inputs,
				input{inputType: inputKeyboard, ki: keyboardInput{wScan: u, dwFlags: keyeventfUnicode}},
				input{inputType: inputKeyboard, ki: keyboardInput{wScan: u, dwFlags: keyeventfUnicode | keyeventfKeyup}},
			)
		}
	}

	ret, _, err := sendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if int(ret) != len(inputs) {
		return fmt.Errorf("SendInput failed: %w", err)
	}
	return nil
}
