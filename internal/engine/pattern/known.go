package pattern

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ParseKnownLocations reads one location per line. A line of three fields
// is "kingdom,x,y" and a line of two fields is "x,y"; anything else is
// skipped with a warning. Blank lines and # comments are ignored and a
// repeated (x, y) keeps its first position.
func ParseKnownLocations(r io.Reader) []Point {
	var out []Point
	seen := make(map[Point]struct{})
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		var xs, ys string
		switch len(parts) {
		case 3:
			xs, ys = parts[1], parts[2]
		case 2:
			xs, ys = parts[0], parts[1]
		default:
			log.Warn().Int("line", lineNo).Str("text", line).Msg("Skipping malformed known location")
			continue
		}
		x, errX := strconv.Atoi(strings.TrimSpace(xs))
		y, errY := strconv.Atoi(strings.TrimSpace(ys))
		if errX != nil || errY != nil {
			log.Warn().Int("line", lineNo).Str("text", line).Msg("Skipping non-numeric known location")
			continue
		}
		p := Point{X: x, Y: y}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		log.Warn().Err(err).Msg("Known locations read stopped early")
	}
	return out
}

// LoadKnownLocations parses the known-locations file at path.
func LoadKnownLocations(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseKnownLocations(f), nil
}

// KnownSpiral interleaves small spirals around every known location. It
// falls back to the default grid when the file is missing or lists nothing.
func KnownSpiral(path string, step, rings int) []Point {
	if path == "" {
		log.Warn().Msg("No known locations file configured, using grid")
		return DefaultGrid()
	}
	locs, err := LoadKnownLocations(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Cannot read known locations, using grid")
		return DefaultGrid()
	}
	if len(locs) == 0 {
		log.Warn().Str("path", path).Msg("Known locations file is empty, using grid")
		return DefaultGrid()
	}

	for i, l := range locs {
		locs[i] = clampPoint(l.X, l.Y)
	}
	out := Interleaved(locs, step, rings)
	log.Debug().Int("locations", len(locs)).Int("positions", len(out)).Msg("Known spiral built")
	return out
}
