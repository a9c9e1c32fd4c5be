package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ConserveLee/exchange-scout/internal/engine/calibrate"
	"github.com/ConserveLee/exchange-scout/internal/engine/screen"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultNeedsKingdoms(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate() = %v, want ErrInvalid", err)
	}
	cfg.Scan.Kingdoms = []int{111}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.toml")
	data := `
[scan]
kingdoms = [111, 112]
pattern = "multi"
rings = 0
cooldown = "90s"

[detection]
threshold = 0.97

[geometry]
px_per_world_x = 50.0

[viewport]
driver = "desktop"
navigate_delay = "1s"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Scan.Kingdoms) != 2 || cfg.Scan.Kingdoms[1] != 112 {
		t.Errorf("kingdoms = %v", cfg.Scan.Kingdoms)
	}
	if cfg.Scan.Cooldown.Duration != 90*time.Second {
		t.Errorf("cooldown = %v", cfg.Scan.Cooldown)
	}
	if cfg.Viewport.NavigateDelay.Duration != time.Second {
		t.Errorf("navigate delay = %v", cfg.Viewport.NavigateDelay)
	}
	if cfg.Detection.Threshold != 0.97 || cfg.Geometry.ScaleX != 50.0 {
		t.Errorf("detection/geometry = %v / %v", cfg.Detection.Threshold, cfg.Geometry.ScaleX)
	}
	// untouched keys keep their defaults
	if cfg.Geometry.ScaleY != Default().Geometry.ScaleY || cfg.Scan.PopupDelay.Duration != 2*time.Second {
		t.Errorf("defaults lost: scale_y %v popup %v", cfg.Geometry.ScaleY, cfg.Scan.PopupDelay)
	}
	opts := cfg.PatternOptions()
	if opts.Name != "multi" || !opts.HasRings || opts.Rings != 0 {
		t.Errorf("pattern options = %+v", opts)
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[scan\nkingdoms = "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Load = %v, want ErrInvalid", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(env(map[string]string{
		"SCOUT_KINGDOMS":       "111, 112,113",
		"SCOUT_EMAIL":          "a@b.c",
		"SCOUT_HEADLESS":       "true",
		"SCOUT_PATTERN":        "wide",
		"SCOUT_RINGS":          "2",
		"SCOUT_NAVIGATE_DELAY": "1500ms",
	}))
	if err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if len(cfg.Scan.Kingdoms) != 3 || cfg.Scan.Kingdoms[2] != 113 {
		t.Errorf("kingdoms = %v", cfg.Scan.Kingdoms)
	}
	if !cfg.Viewport.Headless || cfg.Viewport.Email != "a@b.c" {
		t.Errorf("viewport = %+v", cfg.Viewport)
	}
	if cfg.Scan.Pattern != "wide" || cfg.Scan.Rings != 2 {
		t.Errorf("scan = %+v", cfg.Scan)
	}
	if cfg.Viewport.NavigateDelay.Duration != 1500*time.Millisecond {
		t.Errorf("navigate delay = %v", cfg.Viewport.NavigateDelay)
	}
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(env(map[string]string{
		"SCOUT_KINGDOMS": "111,abc",
		"SCOUT_HEADLESS": "maybe",
	}))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("applyEnv = %v, want ErrInvalid", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"pattern":    func(c *Config) { c.Scan.Pattern = "zigzag" },
		"driver":     func(c *Config) { c.Viewport.Driver = "vnc" },
		"threshold":  func(c *Config) { c.Detection.Threshold = 1.2 },
		"zero":       func(c *Config) { c.Detection.VerifyThreshold = 0 },
		"scale down": func(c *Config) { c.Detection.ScaleDown = 0 },
		"scale":      func(c *Config) { c.Geometry.ScaleY = -1 },
		"crop":       func(c *Config) { c.Geometry.CropMaxX = c.Geometry.CropMinX },
	}
	for name, mutate := range cases {
		cfg := Default()
		cfg.Scan.Kingdoms = []int{1}
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: Validate() = %v, want ErrInvalid", name, err)
		}
	}
}

func TestDetectorOptions(t *testing.T) {
	cfg := Default()
	opts := cfg.DetectorOptions()
	if opts.Viewport.Min.X != 160 || opts.Viewport.Max.Y != 1000 {
		t.Errorf("viewport = %v", opts.Viewport)
	}
	if opts.Threshold != 0.98 || opts.DedupDistance != 40 {
		t.Errorf("opts = %+v", opts)
	}
}

func TestDefaultMatchesEngineDefaults(t *testing.T) {
	cfg := Default()
	if got, want := cfg.Calibrator(), calibrate.Default(); got != want {
		t.Errorf("Calibrator() = %+v, want %+v", got, want)
	}
	if got, want := cfg.DetectorOptions(), screen.DefaultOptions(); got != want {
		t.Errorf("DetectorOptions() = %+v, want %+v", got, want)
	}
}
