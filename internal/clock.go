package internal

import (
	"image"
	"math"
	"time"

	"github.com/fogleman/gg"
)

// Logical geometry of the clock panel, in unscaled pixels.
const (
	clockWidth  = 240.0
	clockHeight = 84.0
	clockMargin = 24.0

	timeFontSize = 48.0
	dateFontSize = 16.0
)

const (
	clockTimeFormat = "15:04"
	clockDateFormat = "Mon, January 2"
)

// ClockRenderer draws the bordered time/date panel into an offscreen
// buffer. The output is a pure function of the wall-clock time and the
// scaling factor.
type ClockRenderer struct {
	fonts *FontSet
}

// NewClockRenderer creates a clock renderer using the given fonts.
func NewClockRenderer(fonts *FontSet) *ClockRenderer {
	return &ClockRenderer{fonts: fonts}
}

// Render produces the clock buffer for the given instant.
func (r *ClockRenderer) Render(now time.Time, scale float64) *image.RGBA {
	w := int(math.Ceil(scale * clockWidth))
	h := int(math.Ceil(scale * clockHeight))
	dc := gg.NewContext(w, h)

	pw := scale * clockWidth
	ph := scale * clockHeight

	// Bordered panel background.
	dc.DrawRectangle(scale*1, scale*1, scale*(clockWidth-2), scale*(clockHeight-2))
	dc.SetColor(nord0)
	dc.FillPreserve()
	dc.SetLineWidth(scale * 2)
	dc.SetColor(nord2)
	dc.Stroke()

	timeText := now.Format(clockTimeFormat)
	dateText := now.Format(clockDateFormat)

	// Large time string with an underline rule sized to the text width.
	dc.SetFontFace(r.fonts.Face(scale * timeFontSize))
	dc.SetColor(nord4)
	tw, th := dc.MeasureString(timeText)
	tx := pw/2 - tw/2
	ty := scale*12 + th
	dc.DrawString(timeText, tx, ty)

	dc.SetLineWidth(scale * 2)
	dc.SetColor(nord7)
	dc.DrawLine(tx-scale*4, ty+scale*4, tx+tw+scale*4, ty+scale*4)
	dc.Stroke()

	// Smaller date line near the bottom edge.
	dc.SetFontFace(r.fonts.Face(scale * dateFontSize))
	dc.SetColor(nord4)
	dw, _ := dc.MeasureString(dateText)
	dc.DrawString(dateText, pw/2-dw/2, ph-scale*12)

	return dc.Image().(*image.RGBA)
}
