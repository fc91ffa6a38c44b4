package internal

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFonts(t *testing.T) *FontSet {
	t.Helper()
	fonts, err := LoadFontSet("")
	require.NoError(t, err)
	return fonts
}

// colorNear compares two colors with a small per-channel tolerance so
// antialiasing at pixel edges does not flake the test. The sampled points
// sit in the middle of a 10px stroke, far from any edge.
func colorNear(t *testing.T, want color.RGBA, got color.RGBA, msg string) {
	t.Helper()
	diff := func(a, b uint8) int {
		d := int(a) - int(b)
		if d < 0 {
			d = -d
		}
		return d
	}
	assert.LessOrEqual(t, diff(want.R, got.R), 2, msg)
	assert.LessOrEqual(t, diff(want.G, got.G), 2, msg)
	assert.LessOrEqual(t, diff(want.B, got.B), 2, msg)
}

// ringPixel samples the indicator buffer on the ring centerline at the
// given angle.
func ringPixel(buf *image.RGBA, scale, angle float64) color.RGBA {
	cx := scale * buttonCenter
	cy := scale * buttonCenter
	r := scale * buttonRadius
	x := int(math.Round(cx + r*math.Cos(angle)))
	y := int(math.Round(cy + r*math.Sin(angle)))
	return buf.RGBAAt(x, y)
}

func TestIndicatorSide(t *testing.T) {
	assert.Equal(t, 190, IndicatorSide(1.0))
	assert.Equal(t, 285, IndicatorSide(1.5))
	assert.Equal(t, 380, IndicatorSide(2.0))
}

func TestIndicatorRenderDeterministic(t *testing.T) {
	r := NewIndicatorRenderer(testFonts(t))
	st := &RenderState{Auth: AuthIdle, Input: InputKeyActive}

	a, err := r.Render(st, false, 1.0, 1.25)
	require.NoError(t, err)
	b, err := r.Render(st, false, 1.0, 1.25)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(a.Pix, b.Pix), "same inputs must produce identical buffers")
}

func TestIndicatorHighlightArc(t *testing.T) {
	r := NewIndicatorRenderer(testFonts(t))

	tests := []struct {
		name  string
		input InputState
		want  color.RGBA
	}{
		{"keypress is green", InputKeyActive, nord7},
		{"backspace is red", InputBackspaceActive, nord11},
	}

	const start = math.Pi / 4
	// Clears the antialiased tick/arc boundaries by several pixels of
	// arc length at radius 90.
	const eps = math.Pi / 24
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &RenderState{Auth: AuthIdle, Input: tt.input}
			buf, err := r.Render(st, false, 1.0, start)
			require.NoError(t, err)

			end := start + highlightSpan

			// Middle of the highlight arc.
			colorNear(t, tt.want, ringPixel(buf, 1.0, start+highlightSpan/2), "arc midpoint")
			// Just inside each end, past the separator ticks.
			colorNear(t, tt.want, ringPixel(buf, 1.0, start+highlightTick+eps), "arc near start")
			colorNear(t, tt.want, ringPixel(buf, 1.0, end-highlightTick-eps), "arc near end")
			// Just outside each end the base ring resumes: the arc spans
			// 60 degrees and not a pixel more.
			colorNear(t, nord3, ringPixel(buf, 1.0, start-eps), "base ring before the arc")
			colorNear(t, nord3, ringPixel(buf, 1.0, end+eps), "base ring after the arc")
			// Opposite side stays the idle base ring color.
			colorNear(t, nord3, ringPixel(buf, 1.0, start+math.Pi), "base ring opposite the arc")
		})
	}
}

func TestIndicatorNoHighlightWhenIdle(t *testing.T) {
	r := NewIndicatorRenderer(testFonts(t))
	st := &RenderState{Auth: AuthIdle, Input: InputKeyPressed}

	buf, err := r.Render(st, false, 1.0, 0)
	require.NoError(t, err)

	// The whole ring stays the base color.
	for i := 0; i < 8; i++ {
		angle := float64(i) * math.Pi / 4
		colorNear(t, nord3, ringPixel(buf, 1.0, angle), "ring without highlight")
	}
}

func TestIndicatorRingColorByAuthState(t *testing.T) {
	r := NewIndicatorRenderer(testFonts(t))

	tests := []struct {
		auth AuthState
		want color.RGBA
	}{
		{AuthVerify, nord10},
		{AuthWrong, nord11},
		{AuthLockFailed, nord11},
	}
	for _, tt := range tests {
		t.Run(tt.auth.String(), func(t *testing.T) {
			st := &RenderState{Auth: tt.auth, Input: InputKeyPressed}
			buf, err := r.Render(st, false, 1.0, 0)
			require.NoError(t, err)
			colorNear(t, tt.want, ringPixel(buf, 1.0, math.Pi/2), "ring color")
		})
	}
}

func TestIndicatorScaledGeometry(t *testing.T) {
	r := NewIndicatorRenderer(testFonts(t))
	st := &RenderState{Auth: AuthVerify, Input: InputKeyPressed}

	buf, err := r.Render(st, false, 2.0, 0)
	require.NoError(t, err)

	require.Equal(t, 380, buf.Bounds().Dx())
	colorNear(t, nord10, ringPixel(buf, 2.0, math.Pi), "scaled ring centerline")
}

func TestIndicatorRejectsUnknownAuthState(t *testing.T) {
	r := NewIndicatorRenderer(testFonts(t))
	st := &RenderState{Auth: AuthState(42), Input: InputKeyPressed}

	_, err := r.Render(st, false, 1.0, 0)
	require.Error(t, err)
}

func TestIndicatorModifierLineChangesOutput(t *testing.T) {
	r := NewIndicatorRenderer(testFonts(t))

	plain := &RenderState{Auth: AuthWrong, Input: InputKeyPressed}
	labeled := &RenderState{Auth: AuthWrong, Input: InputKeyPressed, ModifierLabel: "Caps Lock"}

	a, err := r.Render(plain, false, 1.0, 0)
	require.NoError(t, err)
	b, err := r.Render(labeled, false, 1.0, 0)
	require.NoError(t, err)

	assert.False(t, bytes.Equal(a.Pix, b.Pix), "modifier label must be visible")
}

func TestIndicatorModifierOnlyWhileWrong(t *testing.T) {
	r := NewIndicatorRenderer(testFonts(t))

	plain := &RenderState{Auth: AuthVerify, Input: InputKeyPressed}
	labeled := &RenderState{Auth: AuthVerify, Input: InputKeyPressed, ModifierLabel: "Caps Lock"}

	a, err := r.Render(plain, false, 1.0, 0)
	require.NoError(t, err)
	b, err := r.Render(labeled, false, 1.0, 0)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(a.Pix, b.Pix), "modifier label is ignored outside the wrong state")
}

func TestAngleSourceRange(t *testing.T) {
	for seed := int64(0); seed < 100; seed++ {
		src := NewAngleSource(seed)
		angle := src.NextAngle()
		assert.GreaterOrEqual(t, angle, 0.0)
		assert.Less(t, angle, 2*math.Pi)
	}
}

func TestAngleSourceSeeded(t *testing.T) {
	a := NewAngleSource(7)
	b := NewAngleSource(7)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.NextAngle(), b.NextAngle())
	}
}
