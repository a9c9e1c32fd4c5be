// Package desktop drives a game client already open on a local display:
// robotgo for input, kbinani/screenshot for capture and Tesseract for
// reading the info popup.
package desktop

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-vgo/robotgo"
	"github.com/kbinani/screenshot"
	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog/log"

	"github.com/ConserveLee/exchange-scout/internal/viewport"
)

const popupChars = "KXY:0123456789 ()"

// Game-space control positions, relative to the display origin.
var searchIcon = image.Pt(83, 865)

// Popup search area relative to the last click.
var popupArea = image.Rect(-320, -260, 320, 60)

type Options struct {
	DisplayID     int
	NavigateDelay time.Duration
}

type Launcher struct {
	mu   sync.Mutex
	opts Options
}

func NewLauncher(opts Options) *Launcher {
	return &Launcher{opts: opts}
}

// SetDisplayID picks the monitor used by the next Launch.
func (l *Launcher) SetDisplayID(id int) {
	l.mu.Lock()
	l.opts.DisplayID = id
	l.mu.Unlock()
}

// Displays lists active monitors as "Display N (WxH)".
func Displays() []string {
	var out []string
	for i := 0; i < screenshot.NumActiveDisplays(); i++ {
		b := screenshot.GetDisplayBounds(i)
		out = append(out, fmt.Sprintf("Display %d (%dx%d)", i, b.Dx(), b.Dy()))
	}
	return out
}

func (l *Launcher) Launch(ctx context.Context) (viewport.Session, error) {
	l.mu.Lock()
	opts := l.opts
	l.mu.Unlock()

	if n := screenshot.NumActiveDisplays(); opts.DisplayID < 0 || opts.DisplayID >= n {
		return nil, fmt.Errorf("%w: display %d not available (%d active)", viewport.ErrLaunchFailed, opts.DisplayID, n)
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ocr language: %v", viewport.ErrLaunchFailed, err)
	}
	bounds := screenshot.GetDisplayBounds(opts.DisplayID)
	log.Info().Int("display", opts.DisplayID).Str("bounds", bounds.String()).Msg("Desktop viewport attached")
	return &Session{
		opts:   opts,
		bounds: bounds,
		ocr:    client,
	}, nil
}

// Session works on whatever the display shows; Close releases only the
// OCR client.
type Session struct {
	opts   Options
	bounds image.Rectangle

	mu        sync.Mutex
	ocr       *gosseract.Client
	lastClick image.Point
	closed    bool
}

// Login expects the player to be logged in with the map open already.
func (s *Session) Login(ctx context.Context, creds viewport.Credentials) error {
	if err := s.check(); err != nil {
		return err
	}
	log.Info().Msg("Desktop viewport uses the running client session; skipping login")
	return ctx.Err()
}

func (s *Session) NavigateTo(ctx context.Context, kingdom, x, y int) error {
	if err := s.check(); err != nil {
		return err
	}
	s.click(searchIcon.X, searchIcon.Y)
	if err := viewport.Sleep(ctx, 250*time.Millisecond); err != nil {
		return err
	}
	for i, v := range []int{kingdom, x, y} {
		if i > 0 {
			if err := robotgo.KeyTap("tab"); err != nil {
				return fmt.Errorf("%w: tab: %v", viewport.ErrNavigationFailed, err)
			}
		}
		if err := robotgo.KeyTap("a", "ctrl"); err != nil {
			return fmt.Errorf("%w: select all: %v", viewport.ErrNavigationFailed, err)
		}
		robotgo.TypeStr(strconv.Itoa(v))
		if err := viewport.Sleep(ctx, 75*time.Millisecond); err != nil {
			return err
		}
	}
	if err := robotgo.KeyTap("enter"); err != nil {
		return fmt.Errorf("%w: enter: %v", viewport.ErrNavigationFailed, err)
	}
	return viewport.Sleep(ctx, s.opts.NavigateDelay)
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	img, err := screenshot.CaptureRect(s.bounds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", viewport.ErrScreenshotFailed, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", viewport.ErrScreenshotFailed, err)
	}
	return buf.Bytes(), nil
}

func (s *Session) ClickAt(ctx context.Context, x, y float64) error {
	if err := s.check(); err != nil {
		return err
	}
	s.click(int(x), int(y))
	return ctx.Err()
}

func (s *Session) ReadPopupText(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", viewport.ErrSessionClosed
	}

	area := popupArea.Add(s.lastClick).Add(s.bounds.Min).Intersect(s.bounds)
	if area.Empty() {
		return "", viewport.ErrPopupNotFound
	}
	img, err := screenshot.CaptureRect(area)
	if err != nil {
		return "", fmt.Errorf("capture popup: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode popup: %w", err)
	}

	if err := s.ocr.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		return "", fmt.Errorf("ocr mode: %w", err)
	}
	if err := s.ocr.SetWhitelist(popupChars); err != nil {
		return "", fmt.Errorf("ocr whitelist: %w", err)
	}
	if err := s.ocr.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("ocr image: %w", err)
	}
	text, err := s.ocr.Text()
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	text = strings.Join(strings.Fields(text), " ")
	if _, _, _, ok := viewport.ParsePopupCoords(text); !ok {
		log.Debug().Str("text", text).Msg("No coordinates in popup area")
		return "", viewport.ErrPopupNotFound
	}
	return text, nil
}

func (s *Session) DismissPopup(ctx context.Context) {
	if s.check() != nil {
		return
	}
	if err := robotgo.KeyTap("esc"); err != nil {
		log.Debug().Err(err).Msg("Escape failed")
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.ocr.Close()
}

func (s *Session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return viewport.ErrSessionClosed
	}
	return nil
}

// click takes display-local coordinates.
func (s *Session) click(x, y int) {
	s.mu.Lock()
	s.lastClick = image.Pt(x, y)
	s.mu.Unlock()
	robotgo.MoveMouse(s.bounds.Min.X+x, s.bounds.Min.Y+y)
	robotgo.Click("left")
}
