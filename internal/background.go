package internal

import (
	"fmt"
	"image"
	"os"

	// Background images may be PNG, JPEG or BMP.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
)

// LoadBackground reads and decodes the background image. When the image
// is painted once (not tiled) it is stretched to the full virtual
// desktop resolution so a single paint at the origin covers everything.
func LoadBackground(path string, width, height int, tile bool) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open background image: %v", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode background image %s: %v", path, err)
	}
	Debug("Decoded %s background image: %v", format, img.Bounds().Size())

	if tile {
		return img, nil
	}

	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img, nil
	}

	stretched := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(stretched, stretched.Bounds(), img, b, xdraw.Src, nil)
	Debug("Stretched background image from %v to %dx%d", b.Size(), width, height)
	return stretched, nil
}
