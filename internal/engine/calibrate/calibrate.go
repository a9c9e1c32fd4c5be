// Package calibrate converts between screen pixels and world coordinates
// for the fixed camera zoom the scanner runs at.
package calibrate

import (
	"math"

	"github.com/ConserveLee/exchange-scout/internal/constants"
)

// Calibrator maps a pixel offset from the screen center to a world offset.
// The tilt term models the camera skew: moving one world unit along X also
// shifts the image by Tilt pixels vertically.
type Calibrator struct {
	CenterX float64
	CenterY float64
	ScaleX  float64 // pixels per world unit along X
	ScaleY  float64 // pixels per world unit along Y
	Tilt    float64 // vertical pixels per world unit along X
}

// Default returns the calibration of the reference deployment
// (1920x1080 viewport, map zoomed fully out).
func Default() Calibrator {
	return Calibrator{
		CenterX: constants.ScreenCenterX,
		CenterY: constants.ScreenCenterY,
		ScaleX:  constants.PxPerWorldX,
		ScaleY:  constants.PxPerWorldY,
		Tilt:    constants.TiltY,
	}
}

// PixelToWorldOffset returns the world delta of the on-screen point
// (px, py) relative to the world position at the screen center.
func (c Calibrator) PixelToWorldOffset(px, py float64) (dx, dy int) {
	fx, fy := c.PixelToWorld(px, py)
	return int(math.Round(fx)), int(math.Round(fy))
}

// PixelToWorld is PixelToWorldOffset without rounding.
func (c Calibrator) PixelToWorld(px, py float64) (dx, dy float64) {
	sx := px - c.CenterX
	sy := py - c.CenterY
	dx = sx / c.ScaleX
	dy = (sy - c.Tilt*dx) / c.ScaleY
	return dx, dy
}

// WorldToPixel projects a world delta from the screen center onto the
// screen. It is the forward transform PixelToWorld inverts.
func (c Calibrator) WorldToPixel(dx, dy float64) (px, py float64) {
	px = c.CenterX + c.ScaleX*dx
	py = c.CenterY + c.Tilt*dx + c.ScaleY*dy
	return px, py
}

// NearCenter reports whether (px, py) lies strictly within tol pixels of
// the screen center on both axes.
func (c Calibrator) NearCenter(px, py, tol float64) bool {
	return math.Abs(px-c.CenterX) < tol && math.Abs(py-c.CenterY) < tol
}
