package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ConserveLee/exchange-scout/internal/engine/calibrate"
)

// calibrate fits the pixel/world geometry from observations. Each CSV row
// is world_dx,world_dy,pixel_x,pixel_y: the target sat world_dx, world_dy
// away from where the camera was centered and showed at (pixel_x, pixel_y).
// A header row is skipped.
func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: calibrate samples.csv")
		os.Exit(2)
	}
	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Printf("Failed to open samples: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	samples, err := parseSamples(f)
	if err != nil {
		fmt.Printf("Failed to read samples: %v\n", err)
		os.Exit(1)
	}
	cal, rms, err := calibrate.Fit(samples)
	if err != nil {
		fmt.Printf("Fit failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Samples: %d, RMS residual %.2f px\n\n", len(samples), rms)
	fmt.Print(geometrySection(cal))
}

func parseSamples(r io.Reader) ([]calibrate.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var out []calibrate.Sample
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		var vals [4]float64
		bad := false
		for i, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				bad = true
				break
			}
			vals[i] = v
		}
		if bad {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("line %d: non-numeric field in %v", line, rec)
		}
		out = append(out, calibrate.Sample{WorldDX: vals[0], WorldDY: vals[1], PixelX: vals[2], PixelY: vals[3]})
	}
	return out, nil
}

// geometrySection renders the fit as a [geometry] config block.
func geometrySection(c calibrate.Calibrator) string {
	return fmt.Sprintf("[geometry]\ncenter_x = %.2f\ncenter_y = %.2f\npx_per_world_x = %.2f\npx_per_world_y = %.2f\ntilt_y = %.2f\n",
		c.CenterX, c.CenterY, c.ScaleX, c.ScaleY, c.Tilt)
}
