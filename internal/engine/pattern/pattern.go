// Package pattern generates the ordered world positions visited while
// scanning a kingdom.
package pattern

import (
	"fmt"

	"github.com/ConserveLee/exchange-scout/internal/constants"
)

// Pattern names accepted by Generate.
const (
	Single = "single"
	Multi  = "multi"
	Wide   = "wide"
	Grid   = "grid"
	Known  = "known"
)

// Names lists every accepted pattern name.
var Names = []string{Single, Multi, Wide, Grid, Known}

// Point is a world position inside a kingdom.
type Point struct {
	X int
	Y int
}

// multiCenters are the spiral centers of the multi pattern, in scan order.
var multiCenters = []Point{
	{512, 512},
	{150, 150}, {874, 150}, {150, 874}, {874, 874},
	{512, 150}, {150, 512}, {874, 512}, {512, 874},
}

// Options selects and parameterizes a pattern.
type Options struct {
	Name      string
	Rings     int  // ignored unless HasRings
	HasRings  bool // false = the pattern's default ring count
	KnownFile string
}

// Generate returns the positions for the named pattern. Unknown names fall
// back to the grid.
func Generate(opts Options) []Point {
	rings := func(def int) int {
		if opts.HasRings {
			return opts.Rings
		}
		return def
	}

	switch opts.Name {
	case Single:
		return Spiral(constants.WorldCenter, constants.WorldCenter, constants.ScanStep, rings(constants.RingsSingle))
	case Multi:
		return MultiSpiral(constants.ScanStep, rings(constants.RingsMulti))
	case Wide:
		return Spiral(constants.WorldCenter, constants.WorldCenter, constants.WideScanStep, rings(constants.RingsWide))
	case Known:
		return KnownSpiral(opts.KnownFile, constants.ScanStep, rings(constants.RingsKnown))
	default:
		return DefaultGrid()
	}
}

// Valid reports whether name is an accepted pattern name.
func Valid(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// DefaultGrid covers a kingdom edge to edge: 30..970 step 30 on both axes.
func DefaultGrid() []Point {
	return GridPositions(constants.GridMin, constants.GridMax, constants.GridStep)
}

// GridPositions returns a row-major grid from lo to hi inclusive.
func GridPositions(lo, hi, step int) []Point {
	if step <= 0 || hi < lo {
		return nil
	}
	n := (hi-lo)/step + 1
	out := make([]Point, 0, n*n)
	for y := lo; y <= hi; y += step {
		for x := lo; x <= hi; x += step {
			out = append(out, Point{x, y})
		}
	}
	return out
}

// Ring returns the 8*r positions at Chebyshev distance r from the center,
// clamped to the world. The ring starts at the top of the right edge and
// runs clockwise: right edge down, bottom edge left, left edge up, top
// edge right.
func Ring(cx, cy, step, r int) []Point {
	if r == 0 {
		return []Point{clampPoint(cx, cy)}
	}
	out := make([]Point, 0, 8*r)
	at := func(i, j int) {
		out = append(out, clampPoint(cx+i*step, cy+j*step))
	}
	for j := -r; j <= r; j++ {
		at(r, j)
	}
	for i := r - 1; i >= -r; i-- {
		at(i, r)
	}
	for j := r - 1; j >= -r; j-- {
		at(-r, j)
	}
	for i := -r + 1; i <= r-1; i++ {
		at(i, -r)
	}
	return out
}

// Spiral returns the center followed by rings 1..rings. Positions that
// collapse onto an earlier one after clamping are dropped.
func Spiral(cx, cy, step, rings int) []Point {
	var out []Point
	seen := make(map[Point]struct{})
	for r := 0; r <= rings; r++ {
		out = appendUnique(out, seen, Ring(cx, cy, step, r))
	}
	return out
}

// MultiSpiral covers the world from nine centers in a 3x3 layout.
func MultiSpiral(step, rings int) []Point {
	return Interleaved(multiCenters, step, rings)
}

// Interleaved emits ring 0 of every center, then ring 1 of every center,
// and so on, so an interrupted scan has still touched every area. Repeats
// keep their first position.
func Interleaved(centers []Point, step, rings int) []Point {
	var out []Point
	seen := make(map[Point]struct{})
	for r := 0; r <= rings; r++ {
		for _, c := range centers {
			out = appendUnique(out, seen, Ring(c.X, c.Y, step, r))
		}
	}
	return out
}

func appendUnique(out []Point, seen map[Point]struct{}, pts []Point) []Point {
	for _, p := range pts {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func clampPoint(x, y int) Point {
	return Point{X: ClampWorld(x), Y: ClampWorld(y)}
}

// ClampWorld clamps a world coordinate to [0, 1023].
func ClampWorld(v int) int {
	if v < 0 {
		return 0
	}
	if v > constants.WorldMax {
		return constants.WorldMax
	}
	return v
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}
