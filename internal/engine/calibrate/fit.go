package calibrate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Sample is one observation: the target sat WorldDX, WorldDY world units
// away from the position the camera was centered on and was seen at pixel
// (PixelX, PixelY).
type Sample struct {
	WorldDX float64
	WorldDY float64
	PixelX  float64
	PixelY  float64
}

// ErrTooFewSamples is returned when a fit is underdetermined.
var ErrTooFewSamples = errors.New("need at least 3 samples with distinct world offsets")

// Fit estimates center, scales and tilt from samples by least squares on
//
//	px = cx + sx*dx
//	py = cy + tilt*dx + sy*dy
//
// It returns the fitted calibrator and the RMS pixel residual.
func Fit(samples []Sample) (Calibrator, float64, error) {
	n := len(samples)
	if n < 3 {
		return Calibrator{}, 0, ErrTooFewSamples
	}

	// unknowns: cx, sx, cy, tilt, sy
	A := mat.NewDense(n*2, 5, nil)
	B := mat.NewVecDense(n*2, nil)
	for i, s := range samples {
		A.Set(i*2, 0, 1)
		A.Set(i*2, 1, s.WorldDX)
		B.SetVec(i*2, s.PixelX)

		A.Set(i*2+1, 2, 1)
		A.Set(i*2+1, 3, s.WorldDX)
		A.Set(i*2+1, 4, s.WorldDY)
		B.SetVec(i*2+1, s.PixelY)
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return Calibrator{}, 0, fmt.Errorf("solve calibration: %w", err)
	}

	c := Calibrator{
		CenterX: params.AtVec(0),
		ScaleX:  params.AtVec(1),
		CenterY: params.AtVec(2),
		Tilt:    params.AtVec(3),
		ScaleY:  params.AtVec(4),
	}
	if c.ScaleX == 0 || c.ScaleY == 0 || math.IsNaN(c.ScaleX) || math.IsNaN(c.ScaleY) {
		return Calibrator{}, 0, ErrTooFewSamples
	}

	var sum float64
	for _, s := range samples {
		px, py := c.WorldToPixel(s.WorldDX, s.WorldDY)
		sum += (px-s.PixelX)*(px-s.PixelX) + (py-s.PixelY)*(py-s.PixelY)
	}
	return c, math.Sqrt(sum / float64(n)), nil
}
