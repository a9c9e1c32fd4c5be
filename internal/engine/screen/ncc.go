package screen

import (
	"image"
	"math"
	"runtime"
	"sync"
)

// Surface holds one correlation score per template placement. Position
// (x, y) is the template's top-left corner in the searched image.
type Surface struct {
	W, H  int
	Score []float32
}

// At returns the score of placement (x, y).
func (s *Surface) At(x, y int) float32 {
	return s.Score[y*s.W+x]
}

// Max returns the best placement, scanning row-major and keeping the first
// of equal scores.
func (s *Surface) Max() (x, y int, score float32) {
	score = float32(math.Inf(-1))
	for yy := 0; yy < s.H; yy++ {
		row := s.Score[yy*s.W : (yy+1)*s.W]
		for xx, v := range row {
			if v > score {
				x, y, score = xx, yy, v
			}
		}
	}
	return x, y, score
}

// Correlator computes a full correlation surface of tmpl over img.
type Correlator interface {
	Surface(img, tmpl *image.Gray) *Surface
}

// NCC is normalized cross-correlation without mean removal:
//
//	sum(I*T) / sqrt(sum(I^2) * sum(T^2))
//
// Scores are in [0, 1] for 8-bit planes; windows with no energy score 0.
// Rows are split across all CPUs.
type NCC struct{}

func (NCC) Surface(img, tmpl *image.Gray) *Surface {
	iw, ih := img.Bounds().Dx(), img.Bounds().Dy()
	tw, th := tmpl.Bounds().Dx(), tmpl.Bounds().Dy()
	sw, sh := iw-tw+1, ih-th+1
	if sw <= 0 || sh <= 0 {
		return &Surface{}
	}
	out := &Surface{W: sw, H: sh, Score: make([]float32, sw*sh)}

	var tEnergy float64
	for y := 0; y < th; y++ {
		for _, v := range tmpl.Pix[y*tmpl.Stride : y*tmpl.Stride+tw] {
			tEnergy += float64(v) * float64(v)
		}
	}
	if tEnergy == 0 {
		return out
	}

	sq := squaredIntegral(img, iw, ih)
	stride := iw + 1

	workers := runtime.NumCPU()
	if workers > sh {
		workers = sh
	}
	var wg sync.WaitGroup
	for wkr := 0; wkr < workers; wkr++ {
		wg.Add(1)
		go func(first int) {
			defer wg.Done()
			for y := first; y < sh; y += workers {
				for x := 0; x < sw; x++ {
					iEnergy := float64(sq[(y+th)*stride+x+tw] - sq[y*stride+x+tw] -
						sq[(y+th)*stride+x] + sq[y*stride+x])
					if iEnergy == 0 {
						continue
					}
					var dot uint64
					for ty := 0; ty < th; ty++ {
						irow := img.Pix[(y+ty)*img.Stride+x : (y+ty)*img.Stride+x+tw]
						trow := tmpl.Pix[ty*tmpl.Stride : ty*tmpl.Stride+tw]
						var acc uint32
						for i, tv := range trow {
							acc += uint32(irow[i]) * uint32(tv)
						}
						dot += uint64(acc)
					}
					out.Score[y*sw+x] = float32(float64(dot) / math.Sqrt(iEnergy*tEnergy))
				}
			}
		}(wkr)
	}
	wg.Wait()
	return out
}

// squaredIntegral returns the (w+1)x(h+1) summed-area table of squared
// pixel values.
func squaredIntegral(img *image.Gray, w, h int) []uint64 {
	stride := w + 1
	sq := make([]uint64, stride*(h+1))
	for y := 0; y < h; y++ {
		var rowSum uint64
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x, v := range row {
			rowSum += uint64(v) * uint64(v)
			sq[(y+1)*stride+x+1] = sq[y*stride+x+1] + rowSum
		}
	}
	return sq
}
