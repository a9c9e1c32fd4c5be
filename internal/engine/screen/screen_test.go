package screen

import (
	"errors"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

var background = color.RGBA{R: 90, G: 110, B: 70, A: 255}

// icon returns a w x h noise patch framed by a 2px background border, so
// its edge plane is identical whether computed alone or inside a scene.
func icon(seed int64, w, h int) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < 2 || y < 2 || x >= w-2 || y >= h-2 {
				img.SetRGBA(x, y, background)
				continue
			}
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

func scene(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = background.R, background.G, background.B, 255
	}
	return img
}

func paste(dst *image.RGBA, src *image.RGBA, at image.Point) {
	b := src.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetRGBA(at.X+x, at.Y+y, src.RGBAAt(x, y))
		}
	}
}

// countingCorrelator records how many surfaces were computed.
type countingCorrelator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCorrelator) Surface(img, tmpl *image.Gray) *Surface {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return NCC{}.Surface(img, tmpl)
}

func testDetector(viewport image.Rectangle) (*Detector, *countingCorrelator) {
	d := NewDetector(Options{
		Viewport:      viewport,
		ScaleDown:     1,
		Threshold:     0.98,
		DedupDistance: 40,
	})
	cc := &countingCorrelator{}
	d.corr = cc
	return d, cc
}

func mustPrepare(t *testing.T, img image.Image) *Template {
	t.Helper()
	tmpl, err := Prepare("icon", img, 1)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return tmpl
}

func TestFindMatchesLocatesIcon(t *testing.T) {
	ic := icon(1, 30, 24)
	sc := scene(200, 150)
	paste(sc, ic, image.Pt(60, 40))

	d, cc := testDetector(sc.Bounds())
	matches := d.FindMatches(sc, []*Template{mustPrepare(t, ic)})
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1: %+v", len(matches), matches)
	}
	m := matches[0]
	if m.X != 75 || m.Y != 52 {
		t.Errorf("match at (%d,%d), want (75,52)", m.X, m.Y)
	}
	if m.Score < 0.99 {
		t.Errorf("score = %.4f, want >= 0.99", m.Score)
	}
	if cc.calls != 4 {
		t.Errorf("computed %d surfaces, want 4", cc.calls)
	}
}

func TestFindMatchesEarlyExitAfterR(t *testing.T) {
	sc := scene(200, 150)
	d, cc := testDetector(sc.Bounds())

	matches := d.FindMatches(sc, []*Template{mustPrepare(t, icon(2, 30, 24))})
	if len(matches) != 0 {
		t.Fatalf("got %d matches on an empty scene", len(matches))
	}
	if cc.calls != 1 {
		t.Fatalf("computed %d surfaces, want only the R surface", cc.calls)
	}
}

func TestFindMatchesViewportOffset(t *testing.T) {
	ic := icon(3, 30, 24)
	sc := scene(200, 150)
	paste(sc, ic, image.Pt(60, 40))

	d, _ := testDetector(image.Rect(20, 10, 200, 150))
	matches := d.FindMatches(sc, []*Template{mustPrepare(t, ic)})
	if len(matches) != 1 || matches[0].X != 75 || matches[0].Y != 52 {
		t.Fatalf("got %+v, want one match at (75,52)", matches)
	}
}

func TestFindMatchesOutsideViewportIgnored(t *testing.T) {
	ic := icon(4, 30, 24)
	sc := scene(200, 150)
	paste(sc, ic, image.Pt(5, 5))

	d, _ := testDetector(image.Rect(50, 50, 200, 150))
	if matches := d.FindMatches(sc, []*Template{mustPrepare(t, ic)}); len(matches) != 0 {
		t.Fatalf("got %+v, want nothing outside the viewport", matches)
	}
}

func TestFindMatchesSkipsOversizedTemplate(t *testing.T) {
	sc := scene(200, 150)
	d, cc := testDetector(sc.Bounds())
	big := mustPrepare(t, icon(5, 200, 20))
	if matches := d.FindMatches(sc, []*Template{big}); len(matches) != 0 {
		t.Fatalf("got %d matches", len(matches))
	}
	if cc.calls != 0 {
		t.Fatalf("oversized template was correlated %d times", cc.calls)
	}
}

func TestFindMatchesTwoIcons(t *testing.T) {
	ic := icon(6, 30, 24)
	sc := scene(300, 150)
	paste(sc, ic, image.Pt(20, 20))
	paste(sc, ic, image.Pt(200, 90))

	d, _ := testDetector(sc.Bounds())
	matches := d.FindMatches(sc, []*Template{mustPrepare(t, ic)})
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2: %+v", len(matches), matches)
	}
}

func TestFindBestMatch(t *testing.T) {
	ic := icon(7, 30, 24)
	sc := scene(200, 150)
	paste(sc, ic, image.Pt(100, 70))

	d, cc := testDetector(sc.Bounds())
	m, ok := d.FindBestMatch(sc, []*Template{mustPrepare(t, ic)})
	if !ok {
		t.Fatal("no best match")
	}
	if m.X != 115 || m.Y != 82 || m.Score < 0.99 {
		t.Fatalf("got %+v, want (115,82) with score >= 0.99", m)
	}
	if cc.calls != 4 {
		t.Errorf("computed %d surfaces, want 4", cc.calls)
	}
}

func TestFindBestMatchReportsROnlyScoreBelowThreshold(t *testing.T) {
	sc := scene(200, 150)
	d, cc := testDetector(sc.Bounds())
	m, ok := d.FindBestMatch(sc, []*Template{mustPrepare(t, icon(8, 30, 24))})
	if !ok {
		t.Fatal("expected a best placement even below threshold")
	}
	if m.Score >= 0.98 {
		t.Fatalf("score %.4f on an empty scene", m.Score)
	}
	if cc.calls != 1 {
		t.Fatalf("computed %d surfaces, want 1", cc.calls)
	}
}

func TestFindBestMatchNoTemplates(t *testing.T) {
	d, _ := testDetector(image.Rect(0, 0, 100, 100))
	if _, ok := d.FindBestMatch(scene(100, 100), nil); ok {
		t.Fatal("expected no match without templates")
	}
}

func TestSurfaceMaxKeepsFirstTie(t *testing.T) {
	s := &Surface{W: 3, H: 2, Score: []float32{0.5, 0.9, 0.9, 0.9, 0.1, 0.2}}
	x, y, v := s.Max()
	if x != 1 || y != 0 || v != 0.9 {
		t.Fatalf("Max = (%d,%d,%v), want (1,0,0.9)", x, y, v)
	}
}

func TestNCCSelfCorrelationIsOne(t *testing.T) {
	ic := splitChannels(icon(9, 20, 20))
	s := NCC{}.Surface(ic.R, ic.R)
	if s.W != 1 || s.H != 1 {
		t.Fatalf("surface is %dx%d, want 1x1", s.W, s.H)
	}
	if v := s.At(0, 0); v < 0.9999 || v > 1.0001 {
		t.Fatalf("self correlation = %v, want 1", v)
	}
}

func TestNCCZeroWindowScoresZero(t *testing.T) {
	black := image.NewGray(image.Rect(0, 0, 20, 20))
	tmpl := splitChannels(icon(10, 10, 10)).R
	s := NCC{}.Surface(black, tmpl)
	for _, v := range s.Score {
		if v != 0 {
			t.Fatalf("black image scored %v", v)
		}
	}
}

func TestDedup(t *testing.T) {
	in := []Match{
		{X: 100, Y: 100, Score: 0.99},
		{X: 120, Y: 110, Score: 0.995},
		{X: 300, Y: 300, Score: 0.98},
		{X: 100, Y: 200, Score: 0.985},
	}
	got := Dedup(in, 40)
	want := []Match{{120, 110, 0.995}, {100, 200, 0.985}, {300, 300, 0.98}}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("match %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDedupKeepsMinimumDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	var in []Match
	for i := 0; i < 500; i++ {
		in = append(in, Match{X: rng.Intn(400), Y: rng.Intn(400), Score: rng.Float32()})
	}
	got := Dedup(in, 40)
	for i := range got {
		for j := i + 1; j < len(got); j++ {
			if abs(got[i].X-got[j].X) < 40 && abs(got[i].Y-got[j].Y) < 40 {
				t.Fatalf("%+v and %+v are closer than 40px on both axes", got[i], got[j])
			}
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("result not sorted by score at %d", i)
		}
	}
}

func TestPrepareRejectsSmallImages(t *testing.T) {
	if _, err := Prepare("tiny", icon(12, 9, 20), 1); !errors.Is(err, ErrTemplateTooSmall) {
		t.Fatalf("9x20: err = %v, want ErrTemplateTooSmall", err)
	}
	if _, err := Prepare("halved", icon(13, 30, 18), 2); !errors.Is(err, ErrTemplateTooSmall) {
		t.Fatalf("30x18 at 1/2: err = %v, want ErrTemplateTooSmall", err)
	}
	tmpl, err := Prepare("ok", icon(14, 40, 40), 2)
	if err != nil {
		t.Fatalf("40x40 at 1/2: %v", err)
	}
	if tmpl.Width != 20 || tmpl.Height != 20 {
		t.Fatalf("prepared %dx%d, want 20x20", tmpl.Width, tmpl.Height)
	}
}

func TestEdgePlaneIsNormalized(t *testing.T) {
	planes := splitChannels(icon(15, 30, 30))
	var top uint8
	for _, v := range planes.Edge.Pix {
		if v > top {
			top = v
		}
	}
	if top != 255 {
		t.Fatalf("strongest edge = %d, want 255", top)
	}
}

func TestTranslucentPixelsKeepTheirColor(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 1))
	for x, a := range []uint8{0, 128, 255, 1} {
		img.SetNRGBA(x, 0, color.NRGBA{R: 200, G: 100, B: 50, A: a})
	}
	planes := splitChannels(downscale(img, 1))
	for x := 0; x < 4; x++ {
		if r, g, b := planes.R.Pix[x], planes.G.Pix[x], planes.B.Pix[x]; r != 200 || g != 100 || b != 50 {
			t.Errorf("pixel %d = (%d,%d,%d), want (200,100,50)", x, r, g, b)
		}
	}

	// premultiplied half-alpha and an offset sub-image
	rgba := image.NewRGBA(image.Rect(0, 0, 3, 2))
	rgba.SetRGBA(2, 1, color.RGBA{R: 100, G: 50, B: 25, A: 128})
	sub := rgba.SubImage(image.Rect(2, 1, 3, 2))
	got := downscale(sub, 1)
	if px := got.RGBAAt(0, 0); px.R != 199 || px.G != 99 || px.B != 49 || px.A != 255 {
		t.Errorf("premultiplied pixel = %v, want (199,99,49,255)", px)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not an image")); !errors.Is(err, ErrImageDecode) {
		t.Fatalf("err = %v, want ErrImageDecode", err)
	}
}

func TestLoadTemplates(t *testing.T) {
	empty := t.TempDir()
	dir := t.TempDir()
	if err := SavePNG(filepath.Join(dir, "mercenary_exchange_core_ref.png"), icon(16, 30, 24)); err != nil {
		t.Fatal(err)
	}
	if err := SavePNG(filepath.Join(dir, "mercenary_exchange_core_ref_2.png"), icon(17, 5, 5)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "other.png"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadTemplates([]string{empty, dir}, "Mercenary Exchange Core", 1)
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	if len(got) != 1 || got[0].Name != "mercenary_exchange_core_ref.png" {
		t.Fatalf("loaded %+v, want the one usable reference", got)
	}

	if _, err := LoadTemplates([]string{empty}, "Mercenary Exchange Core", 1); err == nil {
		t.Fatal("expected an error when no directory has references")
	}
}
