package internal

import (
	"image"
	"math"
	"math/rand"

	"github.com/fogleman/gg"
)

// Logical geometry of the unlock indicator, in unscaled pixels.
const (
	buttonRadius   = 90.0
	buttonCenter   = buttonRadius + 5
	buttonDiameter = 2 * (buttonRadius + 5)

	ringWidth      = 10.0
	separatorWidth = 2.0

	statusFontSize   = 24.0
	modifierFontSize = 14.0
	modifierOffsetY  = 28.0

	// highlightSpan is the angular width of the keypress highlight arc.
	highlightSpan = math.Pi / 3
	// highlightTick is the width of the darker tick delimiting each arc end.
	highlightTick = math.Pi / 128
)

// AngleSource yields highlight arc start angles in [0, 2π). It exists so
// tests can pin the seed and assert exact geometry.
type AngleSource interface {
	NextAngle() float64
}

type randAngleSource struct {
	rng *rand.Rand
}

// NewAngleSource returns a seeded uniform angle source.
func NewAngleSource(seed int64) AngleSource {
	return &randAngleSource{rng: rand.New(rand.NewSource(seed))}
}

func (s *randAngleSource) NextAngle() float64 {
	return s.rng.Float64() * 2 * math.Pi
}

// IndicatorRenderer draws the circular unlock indicator into an offscreen
// buffer. It has no state beyond the font set; the buffer depends only on
// the passed arguments.
type IndicatorRenderer struct {
	fonts *FontSet
}

// NewIndicatorRenderer creates an indicator renderer using the given fonts.
func NewIndicatorRenderer(fonts *FontSet) *IndicatorRenderer {
	return &IndicatorRenderer{fonts: fonts}
}

// IndicatorSide returns the side of the square indicator buffer for a
// scaling factor.
func IndicatorSide(scale float64) int {
	return int(math.Ceil(scale * buttonDiameter))
}

// Render produces the indicator buffer for the given state. highlightStart
// is the start angle of the keypress highlight arc; it is only consulted
// when the input state asks for a highlight.
func (r *IndicatorRenderer) Render(st *RenderState, showAttempts bool, scale float64, highlightStart float64) (*image.RGBA, error) {
	side := IndicatorSide(scale)
	dc := gg.NewContext(side, side)
	// Butt caps keep the highlight arc and its ticks at their exact
	// angular extents; the default round cap would bulge past them.
	dc.SetLineCapButt()

	cx := scale * buttonCenter
	cy := scale * buttonCenter
	radius := scale * buttonRadius

	// Filled disk with the state-colored ring stroked around it.
	stroke, err := ringColor(st.Auth, st.Input)
	if err != nil {
		return nil, err
	}
	dc.SetLineWidth(scale * ringWidth)
	dc.DrawCircle(cx, cy, radius)
	dc.SetColor(nord1)
	dc.FillPreserve()
	dc.SetColor(stroke)
	dc.Stroke()

	// Inner separator line.
	dc.SetLineWidth(scale * separatorWidth)
	dc.DrawCircle(cx, cy, scale*(buttonRadius-5))
	dc.SetColor(nord0)
	dc.Stroke()

	// Centered status text.
	text, textCol, err := statusText(st.Auth, st.Input, st.FailedAttempts, showAttempts)
	if err != nil {
		return nil, err
	}
	if text != "" {
		dc.SetFontFace(r.fonts.Face(scale * statusFontSize))
		dc.SetColor(textCol)
		dc.DrawStringAnchored(text, cx, cy, 0.5, 0.5)
	}

	// Secondary modifier line, only while the password was wrong.
	if st.Auth == AuthWrong && st.ModifierLabel != "" {
		dc.SetFontFace(r.fonts.Face(scale * modifierFontSize))
		dc.SetColor(textCol)
		dc.DrawStringAnchored(st.ModifierLabel, cx, cy+scale*modifierOffsetY, 0.5, 0.5)
	}

	// Highlight a part of the ring to confirm the keypress, with two
	// little separator ticks delimiting it from the base ring.
	if st.highlightActive() {
		hlColor := nord7
		if st.Input == InputBackspaceActive {
			hlColor = nord11
		}
		end := highlightStart + highlightSpan

		dc.SetLineWidth(scale * ringWidth)
		dc.NewSubPath()
		dc.DrawArc(cx, cy, radius, highlightStart, end)
		dc.SetColor(hlColor)
		dc.Stroke()

		dc.SetColor(nord0)
		dc.NewSubPath()
		dc.DrawArc(cx, cy, radius, highlightStart, highlightStart+highlightTick)
		dc.Stroke()
		dc.NewSubPath()
		dc.DrawArc(cx, cy, radius, end-highlightTick, end)
		dc.Stroke()
	}

	return dc.Image().(*image.RGBA), nil
}
