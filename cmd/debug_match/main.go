package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ConserveLee/exchange-scout/internal/config"
	"github.com/ConserveLee/exchange-scout/internal/engine/screen"
)

// debug_match runs the detector over saved screenshots, e.g. the
// debug_scan_*.png files written with debug_screenshots enabled.
func main() {
	configPath := flag.String("config", "", "TOML config file")
	refPath := flag.String("ref", "", "single reference image instead of the configured assets")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: debug_match [-config scout.toml] [-ref reference.png] shot.png...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Printf("Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	templates, err := loadReferences(&cfg, *refPath)
	if err != nil {
		fmt.Printf("Failed to load references: %v\n", err)
		os.Exit(1)
	}
	detector := screen.NewDetector(cfg.DetectorOptions())
	cal := cfg.Calibrator()
	fmt.Printf("Templates: %d, threshold %.2f, viewport %v\n", len(templates), cfg.Detection.Threshold, cfg.CropRect())

	for _, path := range flag.Args() {
		img, err := screen.LoadImage(path)
		if err != nil {
			fmt.Printf("Failed to load %s: %v\n", path, err)
			continue
		}
		fmt.Printf("\n=== %s (%dx%d) ===\n", path, img.Bounds().Dx(), img.Bounds().Dy())

		if best, ok := detector.FindBestMatch(img, templates); ok {
			dx, dy := cal.PixelToWorldOffset(float64(best.X), float64(best.Y))
			fmt.Printf("  Best: (%d, %d) score %.4f -> world offset (%+d, %+d)\n", best.X, best.Y, best.Score, dx, dy)
		} else {
			fmt.Println("  Best: none")
		}

		matches := detector.FindMatches(img, templates)
		fmt.Printf("  Cascade matches: %d", len(matches))
		if len(matches) > 0 {
			fmt.Printf(" -> %v", matches)
		}
		fmt.Println()
	}
}

func loadReferences(cfg *config.Config, ref string) ([]*screen.Template, error) {
	if ref == "" {
		return screen.LoadTemplates(screen.AssetDirs(cfg.Scan.AssetsDir), cfg.Scan.Target, cfg.Detection.ScaleDown)
	}
	img, err := screen.LoadImage(ref)
	if err != nil {
		return nil, err
	}
	t, err := screen.Prepare(filepath.Base(ref), img, cfg.Detection.ScaleDown)
	if err != nil {
		return nil, err
	}
	return []*screen.Template{t}, nil
}
