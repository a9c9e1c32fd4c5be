package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"

	"github.com/ConserveLee/exchange-scout/app/exchanges"
	"github.com/ConserveLee/exchange-scout/app/scanner"
	"github.com/ConserveLee/exchange-scout/app/tools"
	"github.com/ConserveLee/exchange-scout/internal/config"
	"github.com/ConserveLee/exchange-scout/internal/constants"
	"github.com/ConserveLee/exchange-scout/internal/engine"
	"github.com/ConserveLee/exchange-scout/internal/engine/audit"
	"github.com/ConserveLee/exchange-scout/internal/engine/screen"
	"github.com/ConserveLee/exchange-scout/internal/logger"
	"github.com/ConserveLee/exchange-scout/internal/viewport"
	"github.com/ConserveLee/exchange-scout/internal/viewport/chrome"
	"github.com/ConserveLee/exchange-scout/internal/viewport/desktop"
)

func main() {
	configPath := flag.String("config", "", "TOML config file")
	headless := flag.Bool("headless", false, "scan without the GUI until interrupted")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var logData binding.StringList
	opts := logger.Options{Level: cfg.Log.Level, File: cfg.Log.File}
	if !*headless {
		logData = binding.NewStringList()
		opts.UI = logger.NewUISink(logData)
	}
	closer, err := logger.Setup(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	templates, err := screen.LoadTemplates(screen.AssetDirs(cfg.Scan.AssetsDir), cfg.Scan.Target, cfg.Detection.ScaleDown)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load reference images")
	}

	launcher, picker := newLauncher(&cfg, *headless)
	sc := engine.NewScanner(
		engine.OptionsFromConfig(&cfg),
		launcher,
		screen.NewDetector(cfg.DetectorOptions()),
		templates,
		audit.NewFileRecorder(cfg.Audit.Path),
	)

	if *headless {
		if err := runHeadless(sc); err != nil {
			log.Error().Err(err).Msg("Headless run failed")
			os.Exit(1)
		}
		return
	}

	myApp := app.New()
	myWindow := myApp.NewWindow("Exchange Scout")
	myWindow.Resize(fyne.NewSize(640, 720))

	tabs := container.NewAppTabs(
		container.NewTabItem("扫描", scanner.NewScannerPanel(sc, logData, picker)),
		container.NewTabItem("交易所", exchanges.NewExchangesPanel(sc)),
		container.NewTabItem("工具箱", tools.NewToolsPanel(myWindow, sc, cfg.Scan.AssetsDir, cfg.Scan.Target)),
	)
	tabs.SetTabLocation(container.TabLocationTop)

	myWindow.SetOnClosed(func() {
		if err := sc.Logout(); err != nil {
			log.Warn().Err(err).Msg("Logout on exit failed")
		}
	})
	myWindow.SetContent(tabs)
	myWindow.ShowAndRun()
}

// newLauncher builds the configured viewport driver. The picker is set
// for drivers bound to a local display.
func newLauncher(cfg *config.Config, headless bool) (viewport.Launcher, scanner.DisplayPicker) {
	if cfg.Viewport.Driver == config.DriverDesktop {
		l := desktop.NewLauncher(desktop.Options{
			DisplayID:     cfg.Viewport.DisplayID,
			NavigateDelay: cfg.Viewport.NavigateDelay.Duration,
		})
		return l, l
	}
	return chrome.NewLauncher(chrome.Options{
		ExecPath:      cfg.Viewport.ChromiumPath,
		Headless:      cfg.Viewport.Headless || headless,
		NavigateDelay: cfg.Viewport.NavigateDelay.Duration,
		GameURL:       cfg.Viewport.GameURL,
		LoginWait:     cfg.Viewport.LoginWait.Duration,
	}), nil
}

// runHeadless prepares a session, scans until SIGINT or SIGTERM and logs
// out.
func runHeadless(sc *engine.Scanner) error {
	hl := logger.Module("headless")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		if err := sc.Logout(); err != nil {
			hl.Warn().Err(err).Msg("Logout failed")
		}
	}()

	if err := sc.Start(); err != nil {
		return err
	}
	if err := waitReady(ctx, sc); err != nil {
		return err
	}
	if err := sc.Start(); err != nil {
		return err
	}
	hl.Info().Msg("Scanning, press Ctrl+C to stop")

	ticker := time.NewTicker(constants.PhasePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hl.Info().Msg("Interrupted, shutting down")
			return nil
		case <-ticker.C:
			if p := sc.Phase(); p != engine.Scanning && p != engine.Paused {
				return fmt.Errorf("scan ended unexpectedly, phase %s", p)
			}
		}
	}
}

var errPrepareFailed = errors.New("session preparation failed")

func waitReady(ctx context.Context, sc *engine.Scanner) error {
	ticker := time.NewTicker(constants.PhasePollInterval)
	defer ticker.Stop()
	for {
		switch sc.Phase() {
		case engine.Ready:
			return nil
		case engine.Idle:
			return errPrepareFailed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
