package screen

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// MinTemplateSize is the smallest usable template edge after downscaling.
const MinTemplateSize = 10

// ErrTemplateTooSmall is returned by Prepare for images under 10x10 after
// downscaling.
var ErrTemplateTooSmall = errors.New("template too small after downscale")

// Template is a reference icon split into the four correlation planes.
// It is immutable once prepared and shared by every detection.
type Template struct {
	Name   string
	Width  int
	Height int
	planes channels
}

// Prepare builds a Template from a reference image.
func Prepare(name string, img image.Image, scaleDown int) (*Template, error) {
	if scaleDown < 1 {
		scaleDown = 1
	}
	b := img.Bounds()
	w, h := b.Dx()/scaleDown, b.Dy()/scaleDown
	if w < MinTemplateSize || h < MinTemplateSize {
		return nil, fmt.Errorf("%w: %s is %dx%d", ErrTemplateTooSmall, name, w, h)
	}

	small := downscale(img, scaleDown)
	return &Template{
		Name:   name,
		Width:  w,
		Height: h,
		planes: splitChannels(small),
	}, nil
}

// RefFileBase turns a search target name into its reference file stem:
// "Mercenary Exchange" becomes "mercenary_exchange_ref".
func RefFileBase(target string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(target)), " ", "_") + "_ref"
}

// AssetDirs lists the reference search path: the override directory, then
// ./assets, then the install share directory next to the executable.
func AssetDirs(override string) []string {
	var dirs []string
	if override != "" {
		dirs = append(dirs, override)
	}
	dirs = append(dirs, "assets")
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), "..", "share", "exchange-scout", "assets"))
	}
	return dirs
}

// LoadTemplates loads every "<target>_ref*.png" from the first directory in
// dirs that has any, skipping images that fail to decode or prepare.
func LoadTemplates(dirs []string, target string, scaleDown int) ([]*Template, error) {
	base := RefFileBase(target)
	for _, dir := range dirs {
		files, err := filepath.Glob(filepath.Join(dir, base+"*.png"))
		if err != nil || len(files) == 0 {
			continue
		}
		sort.Strings(files)

		var out []*Template
		for _, file := range files {
			img, err := LoadImage(file)
			if err != nil {
				log.Warn().Err(err).Str("file", file).Msg("Failed to load reference image")
				continue
			}
			t, err := Prepare(filepath.Base(file), img, scaleDown)
			if err != nil {
				log.Warn().Err(err).Str("file", file).Msg("Skipping reference image")
				continue
			}
			log.Info().Str("file", file).Int("w", t.Width).Int("h", t.Height).Msg("Loaded reference image")
			out = append(out, t)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no usable reference images for %q in %s", target, dir)
		}
		return out, nil
	}
	return nil, fmt.Errorf("no reference images %s*.png found in %v", base, dirs)
}
