package internal

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/fogleman/gg"
)

// FillSpec describes how the background surface is painted before the
// widget buffers are composited onto it.
type FillSpec struct {
	Color color.RGBA
	Image image.Image // optional
	Tile  bool
}

// RenderContext owns the full composition pipeline: the current render
// state, the two offscreen renderers and the cached background surface.
// Everything a redraw needs is sampled from the providers when Redraw is
// called; nothing global is touched. Callers must serialize invocations,
// there is no internal locking.
type RenderContext struct {
	State *RenderState

	geometry GeometryProvider
	dpi      DPIProvider

	indicator *IndicatorRenderer
	clock     *ClockRenderer
	angles    AngleSource
	now       func() time.Time

	fill FillSpec

	showIndicator bool
	showClock     bool
	showAttempts  bool

	// The background surface is the only cross-frame resource. It is
	// reused until the virtual desktop resolution changes so a redraw
	// never exposes a transient blank window background.
	surface *image.RGBA
}

// NewRenderContext wires a composition pipeline from its collaborators.
func NewRenderContext(cfg Configuration, geometry GeometryProvider, dpi DPIProvider, fonts *FontSet, angles AngleSource, fill FillSpec) *RenderContext {
	return &RenderContext{
		State:         &RenderState{},
		geometry:      geometry,
		dpi:           dpi,
		indicator:     NewIndicatorRenderer(fonts),
		clock:         NewClockRenderer(fonts),
		angles:        angles,
		now:           time.Now,
		fill:          fill,
		showIndicator: cfg.ShowIndicator,
		showClock:     cfg.ShowClock,
		showAttempts:  cfg.ShowFailedAttempts,
	}
}

// SetTimeSource replaces the wall-clock sampling function.
func (rc *RenderContext) SetTimeSource(now func() time.Time) { rc.now = now }

// ReseedHighlight replaces the highlight angle source.
func (rc *RenderContext) ReseedHighlight(angles AngleSource) { rc.angles = angles }

// InvalidateSurfaceCache releases the cached background surface so the
// next Redraw allocates one with the updated resolution.
func (rc *RenderContext) InvalidateSurfaceCache() {
	rc.surface = nil
}

// Redraw runs the full pipeline and returns the composited background
// surface. Any failure aborts the frame: a partially drawn lock screen
// must never be presented.
func (rc *RenderContext) Redraw() (*image.RGBA, error) {
	width, height := rc.geometry.Resolution()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("cannot render frame: invalid resolution %dx%d", width, height)
	}

	scale := rc.dpi.ScaleFactor()
	if scale < 1.0 {
		scale = 1.0
	}

	if rc.surface == nil || rc.surface.Bounds().Dx() != width || rc.surface.Bounds().Dy() != height {
		Debug("Allocating background surface for %dx%d px", width, height)
		rc.surface = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	surface := rc.surface

	// The surface still contains the previous frame. Clear the entire
	// area with the fill color first to get back into a defined state.
	dc := gg.NewContextForRGBA(surface)
	dc.SetColor(rc.fill.Color)
	dc.Clear()

	if rc.fill.Image != nil {
		if rc.fill.Tile {
			dc.SetFillStyle(gg.NewSurfacePattern(rc.fill.Image, gg.RepeatBoth))
			dc.DrawRectangle(0, 0, float64(width), float64(height))
			dc.Fill()
		} else {
			dc.DrawImage(rc.fill.Image, 0, 0)
		}
	}

	var indicatorBuf *image.RGBA
	if rc.showIndicator && rc.State.showRing() {
		start := 0.0
		if rc.State.highlightActive() {
			start = rc.angles.NextAngle()
		}
		buf, err := rc.indicator.Render(rc.State, rc.showAttempts, scale, start)
		if err != nil {
			return nil, err
		}
		indicatorBuf = buf
	}

	var clockBuf *image.RGBA
	if rc.showClock {
		clockBuf = rc.clock.Render(rc.now(), scale)
	}

	monitors := rc.geometry.MonitorRects()
	if len(monitors) == 0 {
		// No information about screen sizes/positions; use one rectangle
		// covering the full resolution and hope for the best.
		monitors = []Monitor{{X: 0, Y: 0, Width: width, Height: height}}
	}

	margin := int(math.Ceil(scale * clockMargin))
	for _, mon := range monitors {
		if indicatorBuf != nil {
			side := indicatorBuf.Bounds().Dx()
			x := mon.X + (mon.Width-side)/2
			y := mon.Y + (mon.Height-side)/2
			blit(surface, indicatorBuf, x, y)
		}
		if clockBuf != nil {
			cw := clockBuf.Bounds().Dx()
			ch := clockBuf.Bounds().Dy()
			x := mon.X + mon.Width - cw - margin
			y := mon.Y + mon.Height - ch - margin
			blit(surface, clockBuf, x, y)
		}
	}

	return surface, nil
}

// ClearIndicator resets the input state from the buffered input length
// (the indicator hides completely when the buffer is empty) and redraws.
func (rc *RenderContext) ClearIndicator() (*image.RGBA, error) {
	if rc.State.bufferedLen == 0 {
		rc.State.Input = InputStarted
	} else {
		rc.State.Input = InputKeyPressed
	}
	return rc.Redraw()
}

// blit paints a widget buffer over the freshly filled surface.
func blit(dst *image.RGBA, src *image.RGBA, x, y int) {
	b := src.Bounds()
	r := image.Rect(x, y, x+b.Dx(), y+b.Dy())
	draw.Draw(dst, r, src, b.Min, draw.Over)
}
