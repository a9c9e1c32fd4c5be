package main

import (
	"math"
	"strings"
	"testing"

	"github.com/ConserveLee/exchange-scout/internal/engine/calibrate"
)

func TestParseSamplesAndFit(t *testing.T) {
	in := `world_dx,world_dy,pixel_x,pixel_y
# observed at zoom 0
0, 0, 760, 400
10, 0, 1254, 385
0, 10, 760, 683.2
-5, 5, 513, 549.1
`
	samples, err := parseSamples(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 4 {
		t.Fatalf("got %d samples, want 4", len(samples))
	}

	cal, rms, err := calibrate.Fit(samples)
	if err != nil {
		t.Fatal(err)
	}
	if rms > 0.01 {
		t.Errorf("rms = %v, want ~0", rms)
	}
	for name, got := range map[string][2]float64{
		"center_x": {cal.CenterX, 760},
		"center_y": {cal.CenterY, 400},
		"scale_x":  {cal.ScaleX, 49.4},
		"scale_y":  {cal.ScaleY, 28.32},
		"tilt":     {cal.Tilt, -1.5},
	} {
		if math.Abs(got[0]-got[1]) > 1e-6 {
			t.Errorf("%s = %v, want %v", name, got[0], got[1])
		}
	}
	if !strings.Contains(geometrySection(cal), "px_per_world_x = 49.40\n") {
		t.Errorf("geometry section:\n%s", geometrySection(cal))
	}
}

func TestParseSamplesRejectsGarbage(t *testing.T) {
	if _, err := parseSamples(strings.NewReader("0,0,1,1\n1,x,2,2\n")); err == nil {
		t.Error("expected error for non-numeric row")
	}
	if _, err := parseSamples(strings.NewReader("0,0,1\n")); err == nil {
		t.Error("expected error for short row")
	}
}
