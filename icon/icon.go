// Package icon draws the tray icon
package icon

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"runtime"
)

const iconSize = 32

var (
	iconBackground = color.RGBA{30, 30, 30, 255}
	iconBorder     = color.RGBA{80, 80, 80, 255}
	iconAccent     = color.RGBA{0, 190, 255, 255}
	iconGlyph      = color.RGBA{235, 235, 235, 255}
)

// Tray returns the tray icon: ICO on Windows, PNG elsewhere
func Tray() []byte {
	pngData, err := renderIcon()
	if err != nil {
		slog.Warn("Failed to render tray icon", "error", err)
		return nil
	}
	if runtime.GOOS == "windows" {
		return wrapICO(pngData, iconSize)
	}
	return pngData
}

// renderIcon draws a dark rounded tile with a "T" and an accent bar
func renderIcon() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	const r = 6

	inside := func(x, y, inset int) bool {
		lo, hi := 1+inset, iconSize-2-inset
		if x < lo || x > hi || y < lo || y > hi {
			return false
		}
		// rounded corners
		cx, cy := x, y
		switch {
		case x < lo+r:
			cx = lo + r
		case x > hi-r:
			cx = hi - r
		}
		switch {
		case y < lo+r:
			cy = lo + r
		case y > hi-r:
			cy = hi - r
		}
		dx, dy := x-cx, y-cy
		return dx*dx+dy*dy <= r*r
	}

	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			switch {
			case inside(x, y, 1):
				img.Set(x, y, iconBackground)
			case inside(x, y, 0):
				img.Set(x, y, iconBorder)
			}
		}
	}

	fill := func(x0, y0, x1, y1 int, c color.Color) {
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				img.Set(x, y, c)
			}
		}
	}
	fill(8, 7, 24, 11, iconGlyph)   // bar of the T
	fill(14, 11, 18, 22, iconGlyph) // stem
	fill(8, 24, 24, 26, iconAccent)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// wrapICO wraps a PNG image into a single-entry ICO file
func wrapICO(pngData []byte, size int) []byte {
	var buf bytes.Buffer
	header := struct {
		Reserved, Type, Count uint16
	}{0, 1, 1}
	entry := struct {
		Width, Height, Colors, Reserved uint8
		Planes, BitCount                uint16
		Size, Offset                    uint32
	}{
		Width:    uint8(size),
		Height:   uint8(size),
		Planes:   1,
		BitCount: 32,
		Size:     uint32(len(pngData)),
		Offset:   6 + 16,
	}
	binary.Write(&buf, binary.LittleEndian, header)
	binary.Write(&buf, binary.LittleEndian, entry)
	buf.Write(pngData)
	return buf.Bytes()
}
