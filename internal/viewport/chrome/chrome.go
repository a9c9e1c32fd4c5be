// Package chrome drives the game in a Chromium instance over the DevTools
// protocol.
package chrome

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/ConserveLee/exchange-scout/internal/viewport"
)

const (
	defaultGameURL   = "https://totalbattle.com/en/"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	width  = 1920
	height = 1080

	webdriverOverride = "Object.defineProperty(navigator, 'webdriver', { get: () => false });"
)

// Screen positions of game controls at 1920x1080.
var (
	searchIcon = [2]float64{83, 865}
	mapButton  = [2]float64{680, 1045}
	zoomOut    = [2]float64{1818, 1025}
)

// Options configures the browser.
type Options struct {
	ExecPath      string // empty = chromedp's lookup
	Headless      bool
	NavigateDelay time.Duration
	GameURL       string
	UserAgent     string
	LoginWait     time.Duration // time for the game client to load after login
}

// Launcher starts a browser with a throwaway profile per launch.
type Launcher struct {
	opts Options
}

func NewLauncher(opts Options) *Launcher {
	if opts.GameURL == "" {
		opts.GameURL = defaultGameURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.LoginWait == 0 {
		opts.LoginWait = 20 * time.Second
	}
	return &Launcher{opts: opts}
}

func (l *Launcher) Launch(ctx context.Context) (viewport.Session, error) {
	profile, err := os.MkdirTemp("", "exchange-scout-profile-*")
	if err != nil {
		return nil, fmt.Errorf("%w: temp profile: %v", viewport.ErrLaunchFailed, err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserDataDir(profile),
		chromedp.WindowSize(width, height),
		chromedp.UserAgent(l.opts.UserAgent),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("force-device-scale-factor", "1"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if l.opts.Headless {
		// new headless mode keeps WebGL
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	bctx, bcancel := chromedp.NewContext(allocCtx)
	s := &Session{
		ctx:     bctx,
		opts:    l.opts,
		profile: profile,
		cancel: func() {
			bcancel()
			allocCancel()
		},
	}

	// The first Run starts the browser and binds it to the context it is
	// given, so it must run on the session context itself.
	stop := context.AfterFunc(ctx, s.cancel)
	err = chromedp.Run(bctx,
		chromedp.EmulateViewport(width, height),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(webdriverOverride).Do(ctx)
			return err
		}),
	)
	stop()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %v", viewport.ErrLaunchFailed, err)
	}
	log.Info().Bool("headless", l.opts.Headless).Str("profile", profile).Msg("Browser launched")
	return s, nil
}

// Session is one browser tab showing the game.
type Session struct {
	ctx     context.Context
	cancel  func()
	opts    Options
	profile string

	closeOnce sync.Once
}

// run executes actions on the tab, aborting when ctx is done.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.ctx.Err() != nil {
		return viewport.ErrSessionClosed
	}
	rctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(rctx, actions...)
}

func (s *Session) Login(ctx context.Context, creds viewport.Credentials) error {
	step := func(name string, err error) error {
		if err != nil {
			return fmt.Errorf("%w: %s: %w", viewport.ErrLoginFailed, name, err)
		}
		return nil
	}

	log.Info().Str("email", creds.Email).Str("url", s.opts.GameURL).Msg("Logging in")
	if err := step("open site", s.run(ctx, chromedp.Navigate(s.opts.GameURL))); err != nil {
		return err
	}
	if err := viewport.Sleep(ctx, 5*time.Second); err != nil {
		return err
	}

	// The consent banner does not always show.
	s.eval(ctx, jsClickSelector("#didomi-notice-agree-button"))
	if err := viewport.Sleep(ctx, time.Second); err != nil {
		return err
	}

	if err := step("open login form", s.run(ctx, chromedp.Evaluate(jsOpenLoginForm, nil))); err != nil {
		return err
	}
	if err := viewport.Sleep(ctx, 2*time.Second); err != nil {
		return err
	}

	if err := step("fill credentials", s.run(ctx, chromedp.Evaluate(jsFillCredentials(creds), nil))); err != nil {
		return err
	}
	if err := viewport.Sleep(ctx, time.Second); err != nil {
		return err
	}

	if err := step("submit", s.run(ctx, chromedp.Evaluate(jsClickSelector(`#login form button[data-handler="login_form_handler"]`), nil))); err != nil {
		return err
	}

	log.Info().Dur("wait", s.opts.LoginWait).Msg("Waiting for the game client")
	if err := viewport.Sleep(ctx, s.opts.LoginWait); err != nil {
		return err
	}

	for i := 0; i < 5; i++ {
		s.canvasKey(ctx, "Escape", 27)
		if err := viewport.Sleep(ctx, 2*time.Second); err != nil {
			return err
		}
	}

	log.Info().Msg("Opening the world map")
	if err := s.click(ctx, mapButton[0], mapButton[1]); err != nil {
		log.Warn().Err(err).Msg("Map button click failed")
	}
	if err := viewport.Sleep(ctx, 5*time.Second); err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		s.canvasKey(ctx, "Escape", 27)
		if err := viewport.Sleep(ctx, time.Second); err != nil {
			return err
		}
	}

	log.Info().Msg("Zooming out")
	for i := 0; i < 8; i++ {
		if err := s.click(ctx, zoomOut[0], zoomOut[1]); err != nil {
			log.Warn().Err(err).Int("step", i).Msg("Zoom click failed")
		}
		pause := 600 * time.Millisecond
		if i == 3 || i == 7 {
			pause += time.Second
		}
		if err := viewport.Sleep(ctx, pause); err != nil {
			return err
		}
	}
	if err := viewport.Sleep(ctx, 2*time.Second); err != nil {
		return err
	}
	log.Info().Msg("Login and map setup complete")
	return nil
}

func (s *Session) NavigateTo(ctx context.Context, kingdom, x, y int) error {
	fail := func(err error) error {
		return fmt.Errorf("%w: K:%d X:%d Y:%d: %w", viewport.ErrNavigationFailed, kingdom, x, y, err)
	}

	if err := s.click(ctx, searchIcon[0], searchIcon[1]); err != nil {
		return fail(err)
	}
	if err := viewport.Sleep(ctx, 250*time.Millisecond); err != nil {
		return err
	}

	// K is focused when the dialog opens; Tab moves to X then Y.
	for i, v := range []int{kingdom, x, y} {
		if i > 0 {
			s.canvasKey(ctx, "Tab", 9)
			if err := viewport.Sleep(ctx, 75*time.Millisecond); err != nil {
				return err
			}
		}
		if err := s.selectAllAndType(ctx, strconv.Itoa(v)); err != nil {
			return fail(err)
		}
		if err := viewport.Sleep(ctx, 75*time.Millisecond); err != nil {
			return err
		}
	}

	s.canvasKey(ctx, "Enter", 13)
	if err := viewport.Sleep(ctx, s.opts.NavigateDelay); err != nil {
		return err
	}
	log.Debug().Int("kingdom", kingdom).Int("x", x).Int("y", y).Msg("Navigated")
	return nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("%w: %w", viewport.ErrScreenshotFailed, err)
	}
	return buf, nil
}

func (s *Session) ClickAt(ctx context.Context, x, y float64) error {
	if err := s.click(ctx, x, y); err != nil {
		return fmt.Errorf("%w: (%.0f,%.0f): %w", viewport.ErrClickFailed, x, y, err)
	}
	return nil
}

func (s *Session) ReadPopupText(ctx context.Context) (string, error) {
	var text string
	if err := s.run(ctx, chromedp.Evaluate(jsReadPopup, &text)); err != nil {
		return "", fmt.Errorf("read popup: %w", err)
	}
	if text == "" {
		return "", viewport.ErrPopupNotFound
	}
	return text, nil
}

func (s *Session) DismissPopup(ctx context.Context) {
	s.canvasKey(ctx, "Escape", 27)
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = os.RemoveAll(s.profile)
		log.Info().Msg("Browser closed")
	})
	return err
}

// click sends a full CDP move, press and release; the game ignores clicks
// without the preceding move.
func (s *Session) click(ctx context.Context, x, y float64) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
			return fmt.Errorf("mouse move: %w", err)
		}
		if err := viewport.Sleep(ctx, 50*time.Millisecond); err != nil {
			return err
		}
		if err := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).WithClickCount(1).Do(ctx); err != nil {
			return fmt.Errorf("mouse press: %w", err)
		}
		if err := viewport.Sleep(ctx, 50*time.Millisecond); err != nil {
			return err
		}
		if err := input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).WithClickCount(1).Do(ctx); err != nil {
			return fmt.Errorf("mouse release: %w", err)
		}
		return nil
	}))
}

// selectAllAndType replaces the focused field's text. CDP key events reach
// the game's hidden input elements.
func (s *Session) selectAllAndType(ctx context.Context, text string) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchKeyEvent(input.KeyDown).
			WithKey("a").WithCode("KeyA").WithModifiers(input.ModifierCtrl).Do(ctx); err != nil {
			return fmt.Errorf("ctrl+a: %w", err)
		}
		_ = input.DispatchKeyEvent(input.KeyUp).
			WithKey("a").WithCode("KeyA").WithModifiers(input.ModifierCtrl).Do(ctx)
		if err := viewport.Sleep(ctx, 50*time.Millisecond); err != nil {
			return err
		}

		for _, ch := range text {
			c := string(ch)
			if err := input.DispatchKeyEvent(input.KeyDown).WithKey(c).WithText(c).Do(ctx); err != nil {
				return fmt.Errorf("type %q: %w", c, err)
			}
			_ = input.DispatchKeyEvent(input.KeyUp).WithKey(c).Do(ctx)
			if err := viewport.Sleep(ctx, 30*time.Millisecond); err != nil {
				return err
			}
		}
		return nil
	}))
}

// canvasKey dispatches a key straight to the game canvas; CDP keyboard
// events for control keys do not reach it.
func (s *Session) canvasKey(ctx context.Context, key string, keyCode int) {
	s.eval(ctx, jsCanvasKey(key, keyCode))
}

func (s *Session) eval(ctx context.Context, js string) {
	if err := s.run(ctx, chromedp.Evaluate(js, nil)); err != nil {
		log.Debug().Err(err).Msg("Script failed")
	}
}
