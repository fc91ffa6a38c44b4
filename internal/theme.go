package internal

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// The nord color scheme, same values the indicator has always shipped with.
var (
	nord0  = color.RGBA{0x2e, 0x34, 0x40, 0xff}
	nord1  = color.RGBA{0x3b, 0x42, 0x52, 0xff}
	nord2  = color.RGBA{0x43, 0x4c, 0x5e, 0xff}
	nord3  = color.RGBA{0x4c, 0x56, 0x6a, 0xff}
	nord4  = color.RGBA{0xd8, 0xde, 0xe9, 0xff}
	nord7  = color.RGBA{0x8f, 0xbc, 0xbb, 0xff}
	nord9  = color.RGBA{0x81, 0xa1, 0xc1, 0xff}
	nord10 = color.RGBA{0x5e, 0x81, 0xac, 0xff}
	nord11 = color.RGBA{0xbf, 0x61, 0x6a, 0xff}
	nord12 = color.RGBA{0xd0, 0x87, 0x70, 0xff}
)

// ParseHexColor parses a background color in "rrggbb" or "#rrggbb" form.
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q: expected 6 hex digits", s)
	}

	var channels [3]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("invalid color %q: %v", s, err)
		}
		channels[i] = uint8(v)
	}

	return color.RGBA{channels[0], channels[1], channels[2], 0xff}, nil
}
