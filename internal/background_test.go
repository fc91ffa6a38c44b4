package internal

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPNG(t *testing.T, width, height int, c color.RGBA) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}

	path := filepath.Join(t.TempDir(), "bg.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestLoadBackgroundStretches(t *testing.T) {
	c := color.RGBA{0x40, 0x80, 0xc0, 0xff}
	path := writeTestPNG(t, 4, 4, c)

	img, err := LoadBackground(path, 100, 50, false)
	require.NoError(t, err)

	b := img.Bounds()
	assert.Equal(t, 100, b.Dx())
	assert.Equal(t, 50, b.Dy())

	got := img.(*image.RGBA).RGBAAt(50, 25)
	assert.Equal(t, c, got)
}

func TestLoadBackgroundExactSizePassthrough(t *testing.T) {
	path := writeTestPNG(t, 64, 32, color.RGBA{0x11, 0x22, 0x33, 0xff})

	img, err := LoadBackground(path, 64, 32, false)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
}

func TestLoadBackgroundTileKeepsOriginalSize(t *testing.T) {
	path := writeTestPNG(t, 8, 8, color.RGBA{0x99, 0x00, 0x00, 0xff})

	img, err := LoadBackground(path, 1920, 1080, true)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx(), "tiles are not stretched")
}

func TestLoadBackgroundMissingFile(t *testing.T) {
	_, err := LoadBackground("/does/not/exist.png", 100, 100, false)
	require.Error(t, err)
}

func TestLoadBackgroundGarbageData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bg.png")
	require.NoError(t, os.WriteFile(path, []byte("definitely not an image"), 0644))

	_, err := LoadBackground(path, 100, 100, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}
