// Package config loads scanner settings from a TOML file with SCOUT_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ConserveLee/exchange-scout/internal/constants"
	"github.com/ConserveLee/exchange-scout/internal/engine/calibrate"
	"github.com/ConserveLee/exchange-scout/internal/engine/pattern"
	"github.com/ConserveLee/exchange-scout/internal/engine/screen"
)

var ErrInvalid = errors.New("invalid config")

const (
	DriverChrome  = "chrome"
	DriverDesktop = "desktop"
)

// Duration reads "2m" or "750ms" style strings.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Scan      Scan      `toml:"scan"`
	Detection Detection `toml:"detection"`
	Geometry  Geometry  `toml:"geometry"`
	Viewport  Viewport  `toml:"viewport"`
	Audit     Audit     `toml:"audit"`
	Log       Log       `toml:"log"`
}

type Scan struct {
	Kingdoms       []int  `toml:"kingdoms"`
	Target         string `toml:"target"`
	Pattern        string `toml:"pattern"`
	Rings          int    `toml:"rings"` // -1 = pattern default
	KnownLocations string `toml:"known_locations"`
	AssetsDir      string `toml:"assets_dir"`

	Cooldown     Duration `toml:"cooldown"`
	SettleDelay  Duration `toml:"settle_delay"`
	PopupDelay   Duration `toml:"popup_delay"`
	DismissDelay Duration `toml:"dismiss_delay"`

	DebugScreenshots bool   `toml:"debug_screenshots"`
	DebugDir         string `toml:"debug_dir"`
}

type Detection struct {
	Threshold       float64 `toml:"threshold"`
	VerifyThreshold float64 `toml:"verify_threshold"`
	ManualThreshold float64 `toml:"manual_threshold"`
	ScaleDown       int     `toml:"scale_down"`
	DedupDistance   int     `toml:"dedup_distance"`
	NearCenter      float64 `toml:"near_center"`
}

// Geometry ties screen pixels to world units for one camera zoom and
// viewport size.
type Geometry struct {
	CropMinX int     `toml:"crop_min_x"`
	CropMinY int     `toml:"crop_min_y"`
	CropMaxX int     `toml:"crop_max_x"`
	CropMaxY int     `toml:"crop_max_y"`
	CenterX  float64 `toml:"center_x"`
	CenterY  float64 `toml:"center_y"`
	ScaleX   float64 `toml:"px_per_world_x"`
	ScaleY   float64 `toml:"px_per_world_y"`
	Tilt     float64 `toml:"tilt_y"`
}

type Viewport struct {
	Driver        string   `toml:"driver"`
	Headless      bool     `toml:"headless"`
	ChromiumPath  string   `toml:"chromium_path"`
	GameURL       string   `toml:"game_url"`
	NavigateDelay Duration `toml:"navigate_delay"`
	LoginWait     Duration `toml:"login_wait"`
	DisplayID     int      `toml:"display_id"`
	Email         string   `toml:"email"`
	Password      string   `toml:"password"`
}

type Audit struct {
	Path string `toml:"path"`
}

type Log struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

func Default() Config {
	cal := calibrate.Default()
	det := screen.DefaultOptions()
	return Config{
		Scan: Scan{
			Target:       "Mercenary Exchange Core",
			Pattern:      constants.DefaultPattern,
			Rings:        -1,
			Cooldown:     Duration{constants.KingdomCooldown},
			SettleDelay:  Duration{constants.SettleDelay},
			PopupDelay:   Duration{constants.PopupDelay},
			DismissDelay: Duration{constants.DismissDelay},
			DebugDir:     ".",
		},
		Detection: Detection{
			Threshold:       constants.MatchThreshold,
			VerifyThreshold: constants.VerifyScoreThreshold,
			ManualThreshold: constants.ManualDetectFound,
			ScaleDown:       det.ScaleDown,
			DedupDistance:   det.DedupDistance,
			NearCenter:      constants.NearCenterPx,
		},
		Geometry: Geometry{
			CropMinX: det.Viewport.Min.X,
			CropMinY: det.Viewport.Min.Y,
			CropMaxX: det.Viewport.Max.X,
			CropMaxY: det.Viewport.Max.Y,
			CenterX:  cal.CenterX,
			CenterY:  cal.CenterY,
			ScaleX:   cal.ScaleX,
			ScaleY:   cal.ScaleY,
			Tilt:     cal.Tilt,
		},
		Viewport: Viewport{
			Driver:        DriverChrome,
			NavigateDelay: Duration{constants.DefaultNavigateDelay},
			LoginWait:     Duration{20 * time.Second},
		},
		Audit: Audit{Path: constants.DefaultAuditPath},
		Log:   Log{Level: "info"},
	}
}

// Load reads path (skipped when empty), applies the environment and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}

	if v, ok := lookup("SCOUT_KINGDOMS"); ok {
		ks, err := ParseKingdoms(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SCOUT_KINGDOMS: %v", err))
		} else {
			c.Scan.Kingdoms = ks
		}
	}
	if v, ok := lookup("SCOUT_RINGS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SCOUT_RINGS: %v", err))
		} else {
			c.Scan.Rings = n
		}
	}
	if v, ok := lookup("SCOUT_NAVIGATE_DELAY"); ok {
		if err := c.Viewport.NavigateDelay.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("SCOUT_NAVIGATE_DELAY: %v", err))
		}
	}
	str("SCOUT_EMAIL", &c.Viewport.Email)
	str("SCOUT_PASSWORD", &c.Viewport.Password)
	str("SCOUT_DRIVER", &c.Viewport.Driver)
	str("SCOUT_CHROMIUM_PATH", &c.Viewport.ChromiumPath)
	boolean("SCOUT_HEADLESS", &c.Viewport.Headless)
	str("SCOUT_PATTERN", &c.Scan.Pattern)
	str("SCOUT_KNOWN_LOCATIONS", &c.Scan.KnownLocations)
	str("SCOUT_ASSETS_DIR", &c.Scan.AssetsDir)
	boolean("SCOUT_DEBUG_SCREENSHOTS", &c.Scan.DebugScreenshots)
	str("SCOUT_AUDIT_PATH", &c.Audit.Path)
	str("SCOUT_LOG_LEVEL", &c.Log.Level)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// ParseKingdoms reads a comma separated kingdom list such as "111, 112".
func ParseKingdoms(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		k, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("kingdom %q: %v", f, err)
		}
		out = append(out, k)
	}
	return out, nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Scan.Kingdoms) == 0 {
		errs = append(errs, errors.New("no kingdoms configured"))
	}
	if !pattern.Valid(c.Scan.Pattern) {
		errs = append(errs, fmt.Errorf("unknown scan pattern %q", c.Scan.Pattern))
	}
	if c.Viewport.Driver != DriverChrome && c.Viewport.Driver != DriverDesktop {
		errs = append(errs, fmt.Errorf("unknown viewport driver %q", c.Viewport.Driver))
	}
	for name, v := range map[string]float64{
		"threshold":        c.Detection.Threshold,
		"verify_threshold": c.Detection.VerifyThreshold,
		"manual_threshold": c.Detection.ManualThreshold,
	} {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("detection.%s %.3f outside (0,1]", name, v))
		}
	}
	if c.Detection.ScaleDown < 1 {
		errs = append(errs, fmt.Errorf("detection.scale_down %d < 1", c.Detection.ScaleDown))
	}
	if c.Geometry.ScaleX <= 0 || c.Geometry.ScaleY <= 0 {
		errs = append(errs, errors.New("geometry scales must be positive"))
	}
	if g := c.Geometry; g.CropMinX >= g.CropMaxX || g.CropMinY >= g.CropMaxY {
		errs = append(errs, errors.New("geometry crop rect is empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func (c *Config) CropRect() image.Rectangle {
	g := c.Geometry
	return image.Rect(g.CropMinX, g.CropMinY, g.CropMaxX, g.CropMaxY)
}

func (c *Config) Calibrator() calibrate.Calibrator {
	g := c.Geometry
	return calibrate.Calibrator{
		CenterX: g.CenterX,
		CenterY: g.CenterY,
		ScaleX:  g.ScaleX,
		ScaleY:  g.ScaleY,
		Tilt:    g.Tilt,
	}
}

// PatternOptions maps the scan section onto a generator request.
func (c *Config) PatternOptions() pattern.Options {
	return pattern.Options{
		Name:      c.Scan.Pattern,
		Rings:     c.Scan.Rings,
		HasRings:  c.Scan.Rings >= 0,
		KnownFile: c.Scan.KnownLocations,
	}
}

func (c *Config) DetectorOptions() screen.Options {
	return screen.Options{
		Viewport:      c.CropRect(),
		ScaleDown:     c.Detection.ScaleDown,
		Threshold:     float32(c.Detection.Threshold),
		DedupDistance: c.Detection.DedupDistance,
	}
}
