package internal

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockBufferSize(t *testing.T) {
	r := NewClockRenderer(testFonts(t))
	now := time.Date(2024, time.March, 15, 9, 41, 0, 0, time.UTC)

	buf := r.Render(now, 1.0)
	assert.Equal(t, 240, buf.Bounds().Dx())
	assert.Equal(t, 84, buf.Bounds().Dy())

	buf = r.Render(now, 1.5)
	assert.Equal(t, 360, buf.Bounds().Dx())
	assert.Equal(t, 126, buf.Bounds().Dy())
}

func TestClockDeterministicForFixedTime(t *testing.T) {
	r := NewClockRenderer(testFonts(t))
	now := time.Date(2024, time.March, 15, 9, 41, 0, 0, time.UTC)

	a := r.Render(now, 1.0)
	b := r.Render(now, 1.0)
	assert.True(t, bytes.Equal(a.Pix, b.Pix))
}

func TestClockChangesWithTime(t *testing.T) {
	r := NewClockRenderer(testFonts(t))

	a := r.Render(time.Date(2024, time.March, 15, 9, 41, 0, 0, time.UTC), 1.0)
	b := r.Render(time.Date(2024, time.March, 15, 9, 42, 0, 0, time.UTC), 1.0)
	assert.False(t, bytes.Equal(a.Pix, b.Pix), "a different minute must render differently")
}

func TestClockPanelColors(t *testing.T) {
	r := NewClockRenderer(testFonts(t))
	buf := r.Render(time.Date(2024, time.March, 15, 9, 41, 0, 0, time.UTC), 1.0)

	// Panel interior away from any text.
	got := buf.RGBAAt(10, 42)
	require.Equal(t, nord0, got)

	// Border midpoint on the top edge.
	got = buf.RGBAAt(120, 1)
	assert.Equal(t, nord2, got)
}
