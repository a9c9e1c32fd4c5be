package tools

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"fyne.io/fyne/v2"

	"github.com/ConserveLee/exchange-scout/internal/engine"
	"github.com/ConserveLee/exchange-scout/internal/engine/screen"
)

func TestSelectionToImage(t *testing.T) {
	img := image.Rect(0, 0, 200, 100)
	tests := []struct {
		name string
		view fyne.Size
		a, b fyne.Position
		want image.Rectangle
	}{
		{"exact fit", fyne.NewSize(200, 100), fyne.NewPos(10, 20), fyne.NewPos(50, 60), image.Rect(10, 20, 50, 60)},
		{"reversed drag", fyne.NewSize(200, 100), fyne.NewPos(50, 60), fyne.NewPos(10, 20), image.Rect(10, 20, 50, 60)},
		// 400x400 view draws the image at 400x200, offset 100 down.
		{"letterboxed", fyne.NewSize(400, 400), fyne.NewPos(20, 80), fyne.NewPos(100, 160), image.Rect(10, 0, 50, 30)},
		{"outside image", fyne.NewSize(400, 400), fyne.NewPos(0, 0), fyne.NewPos(50, 90), image.Rectangle{}},
		{"zero view", fyne.NewSize(0, 0), fyne.NewPos(0, 0), fyne.NewPos(5, 5), image.Rectangle{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := selectionToImage(tt.view, img, tt.a, tt.b); got != tt.want {
				t.Errorf("selectionToImage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextRefName(t *testing.T) {
	dir := t.TempDir()
	base := screen.RefFileBase("Mercenary Exchange Core")

	if got := nextRefName(dir, base); got != base+".png" {
		t.Fatalf("empty dir: got %q", got)
	}
	for _, name := range []string{base + ".png", base + "_4.png", "other_ref_9.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := nextRefName(dir, base), base+"_5.png"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseGoto(t *testing.T) {
	k, x, y, err := parseGoto("111", " 506", "638 ")
	if err != nil || k != 111 || x != 506 || y != 638 {
		t.Errorf("parseGoto = %d %d %d %v", k, x, y, err)
	}
	if _, _, _, err := parseGoto("111", "abc", "1"); err == nil {
		t.Error("expected error for non-numeric X")
	}
	if _, _, _, err := parseGoto("-1", "1", "1"); err == nil {
		t.Error("expected error for negative kingdom")
	}
}

func TestFormatDetection(t *testing.T) {
	if got := formatDetection(engine.Detection{}); got != "未检测到 (no match)" {
		t.Errorf("no match: %q", got)
	}
	det := engine.Detection{Found: true, Threshold: 0.88, HasMatch: true,
		Match: screen.Match{X: 180, Y: 110, Score: 0.95}, WorldDX: 8, WorldDY: 3}
	want := "找到 (found)\nscore 0.950 / 0.88 at (180, 110)\nworld offset dx=8 dy=3"
	if got := formatDetection(det); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
