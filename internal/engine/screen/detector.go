// Package screen finds the reference icon in viewport screenshots using
// four-channel normalized cross-correlation.
package screen

import (
	"image"
	"sort"

	"github.com/ConserveLee/exchange-scout/internal/constants"
	"github.com/rs/zerolog/log"
)

// Match is a detection in full-frame pixel space. X, Y is the center of the
// matched template.
type Match struct {
	X     int
	Y     int
	Score float32
}

// Options configures a Detector.
type Options struct {
	// Viewport is the part of the screenshot searched; minimap, toolbars and
	// side panels lie outside it.
	Viewport      image.Rectangle
	ScaleDown     int
	Threshold     float32
	DedupDistance int
}

// DefaultOptions returns the reference deployment's detection settings.
func DefaultOptions() Options {
	return Options{
		Viewport:      image.Rect(constants.ViewportMinX, constants.ViewportMinY, constants.ViewportMaxX, constants.ViewportMaxY),
		ScaleDown:     constants.DefaultScaleDown,
		Threshold:     constants.MatchThreshold,
		DedupDistance: constants.DedupDistancePx,
	}
}

// Detector runs the correlation cascade. It holds no per-call state and is
// safe for concurrent use.
type Detector struct {
	opts Options
	corr Correlator
}

func NewDetector(opts Options) *Detector {
	if opts.ScaleDown < 1 {
		opts.ScaleDown = 1
	}
	return &Detector{opts: opts, corr: NCC{}}
}

// Options returns the detector's settings.
func (d *Detector) Options() Options {
	return d.opts
}

// frame is a screenshot cropped to the viewport, downscaled and split.
type frame struct {
	planes channels
	origin image.Point // full-frame position of the frame's (0,0)
	w, h   int
}

func (d *Detector) prepareFrame(img image.Image) *frame {
	area := d.opts.Viewport.Intersect(img.Bounds())
	if area.Empty() {
		log.Warn().Str("bounds", img.Bounds().String()).Msg("Screenshot does not overlap the viewport")
		return nil
	}
	var src image.Image = img
	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		src = sub.SubImage(area)
	} else {
		src = cropCopy(img, area)
	}
	planes := splitChannels(downscale(src, d.opts.ScaleDown))
	w, h := planes.size()
	return &frame{planes: planes, origin: area.Min, w: w, h: h}
}

func cropCopy(img image.Image, r image.Rectangle) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			dst.Set(x, y, img.At(r.Min.X+x, r.Min.Y+y))
		}
	}
	return dst
}

func (d *Detector) fits(f *frame, t *Template) bool {
	if t.Width >= f.w || t.Height >= f.h {
		log.Warn().Str("template", t.Name).
			Int("tw", t.Width).Int("th", t.Height).
			Int("w", f.w).Int("h", f.h).
			Msg("Reference image too large for screenshot, skipping")
		return false
	}
	return true
}

// toFrame maps a top-left placement to the full-frame template center.
func (d *Detector) toFrame(f *frame, t *Template, x, y int, score float32) Match {
	s := d.opts.ScaleDown
	return Match{
		X:     (x+t.Width/2)*s + f.origin.X,
		Y:     (y+t.Height/2)*s + f.origin.Y,
		Score: score,
	}
}

// FindMatches returns every placement where all four channels reach the
// threshold, best first, with near-duplicates removed.
func (d *Detector) FindMatches(img image.Image, templates []*Template) []Match {
	f := d.prepareFrame(img)
	if f == nil {
		return nil
	}

	var all []Match
	for _, t := range templates {
		if !d.fits(f, t) {
			continue
		}
		for _, c := range d.cascade(f, t) {
			all = append(all, d.toFrame(f, t, c.x, c.y, c.score))
		}
	}
	return Dedup(all, d.opts.DedupDistance)
}

type candidate struct {
	x, y  int
	score float32
}

type channelPass struct {
	name string
	img  *image.Gray
	tmpl *image.Gray
}

// cascade correlates R over the whole frame, then lets G, B and edge each
// narrow the surviving candidates. Each stage keeps the minimum score seen
// so far and stops the cascade as soon as nothing survives.
func (d *Detector) cascade(f *frame, t *Template) []candidate {
	th := d.opts.Threshold

	r := d.corr.Surface(f.planes.R, t.planes.R)
	cands, best := collect(r, th)
	if len(cands) == 0 {
		log.Debug().Str("template", t.Name).Float32("best", best).Msg("Early exit after R")
		return nil
	}
	log.Debug().Str("template", t.Name).Int("candidates", len(cands)).Float32("best", best).Msg("R pass")

	for _, p := range []channelPass{
		{"G", f.planes.G, t.planes.G},
		{"B", f.planes.B, t.planes.B},
		{"Edge", f.planes.Edge, t.planes.Edge},
	} {
		cands, best = narrow(cands, d.corr.Surface(p.img, p.tmpl), th)
		if len(cands) == 0 {
			log.Debug().Str("template", t.Name).Str("channel", p.name).Float32("best", best).Msg("Early exit")
			return nil
		}
		log.Debug().Str("template", t.Name).Str("channel", p.name).Int("candidates", len(cands)).Float32("best", best).Msg("Channel pass")
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	log.Info().Str("template", t.Name).Int("matches", len(cands)).Float32("best", cands[0].score).Msg("Template matched")
	return cands
}

// collect returns every placement scoring at least th, plus the best score.
func collect(s *Surface, th float32) ([]candidate, float32) {
	var out []candidate
	var best float32
	for y := 0; y < s.H; y++ {
		for x := 0; x < s.W; x++ {
			v := s.At(x, y)
			if v > best {
				best = v
			}
			if v >= th {
				out = append(out, candidate{x, y, v})
			}
		}
	}
	return out, best
}

// narrow lowers each candidate to min(score, channel score) and drops the
// ones that fall below th. The input slice is not modified.
func narrow(cands []candidate, s *Surface, th float32) ([]candidate, float32) {
	out := make([]candidate, 0, len(cands))
	var best float32
	for _, c := range cands {
		if v := s.At(c.x, c.y); v < c.score {
			c.score = v
		}
		if c.score > best {
			best = c.score
		}
		if c.score >= th {
			out = append(out, c)
		}
	}
	return out, best
}

// FindBestMatch returns the single best placement over all templates. A
// template whose R channel never reaches the threshold reports its best R
// score without running the other channels; otherwise the score is the
// four-channel minimum. A later template wins only with a strictly greater
// score.
func (d *Detector) FindBestMatch(img image.Image, templates []*Template) (Match, bool) {
	f := d.prepareFrame(img)
	if f == nil {
		return Match{}, false
	}

	var best Match
	found := false
	for _, t := range templates {
		if !d.fits(f, t) {
			continue
		}

		r := d.corr.Surface(f.planes.R, t.planes.R)
		x, y, score := r.Max()
		if score >= d.opts.Threshold {
			g := d.corr.Surface(f.planes.G, t.planes.G)
			b := d.corr.Surface(f.planes.B, t.planes.B)
			e := d.corr.Surface(f.planes.Edge, t.planes.Edge)
			x, y, score = minMax(r, g, b, e)
		}

		if !found || score > best.Score {
			best = d.toFrame(f, t, x, y, score)
			found = true
		}
	}
	if found {
		log.Debug().Int("x", best.X).Int("y", best.Y).Float32("score", best.Score).Msg("Best match")
	}
	return best, found
}

// minMax finds the placement with the highest four-channel minimum,
// row-major, first of equal scores.
func minMax(surfaces ...*Surface) (bx, by int, best float32) {
	s0 := surfaces[0]
	first := true
	for y := 0; y < s0.H; y++ {
		for x := 0; x < s0.W; x++ {
			v := s0.At(x, y)
			for _, s := range surfaces[1:] {
				if sv := s.At(x, y); sv < v {
					v = sv
				}
			}
			if first || v > best {
				bx, by, best = x, y, v
				first = false
			}
		}
	}
	return bx, by, best
}

// Dedup sorts matches best first and drops any match closer than dist
// pixels on both axes to one already kept.
func Dedup(matches []Match, dist int) []Match {
	sorted := make([]Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var kept []Match
	for _, m := range sorted {
		dup := false
		for _, k := range kept {
			if abs(m.X-k.X) < dist && abs(m.Y-k.Y) < dist {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, m)
		}
	}
	return kept
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
