// Package viewport defines the remote game view the scanner drives. The
// chrome and desktop subpackages implement it.
package viewport

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"
)

var (
	ErrLaunchFailed     = errors.New("viewport launch failed")
	ErrLoginFailed      = errors.New("login failed")
	ErrNavigationFailed = errors.New("navigation failed")
	ErrScreenshotFailed = errors.New("screenshot failed")
	ErrClickFailed      = errors.New("click failed")
	ErrPopupNotFound    = errors.New("popup element not found")
	ErrSessionClosed    = errors.New("viewport session closed")
)

// Credentials are the game account used by Login.
type Credentials struct {
	Email    string
	Password string
}

// Launcher starts a fresh viewport session.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is one live game view. Methods are called from a single scan
// loop at a time; Close may be called concurrently with anything.
type Session interface {
	Login(ctx context.Context, creds Credentials) error
	// NavigateTo centers the map on (x, y) of kingdom and waits for the
	// camera to settle.
	NavigateTo(ctx context.Context, kingdom, x, y int) error
	// Screenshot returns the current view as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	ClickAt(ctx context.Context, x, y float64) error
	// ReadPopupText returns the text of the open info popup, or
	// ErrPopupNotFound when no popup is showing coordinates.
	ReadPopupText(ctx context.Context) (string, error)
	DismissPopup(ctx context.Context)
	Close() error
}

var popupField = map[string]*regexp.Regexp{
	"K": regexp.MustCompile(`K:\s*(\d+)`),
	"X": regexp.MustCompile(`X:\s*(\d+)`),
	"Y": regexp.MustCompile(`Y:\s*(\d+)`),
}

// ParsePopupCoords extracts the kingdom and coordinates from popup text
// such as "Mercenary Exchange (K:111 X:506 Y:638)".
func ParsePopupCoords(text string) (kingdom, x, y int, ok bool) {
	vals := make(map[string]int, 3)
	for name, re := range popupField {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return 0, 0, 0, false
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, 0, 0, false
		}
		vals[name] = v
	}
	return vals["K"], vals["X"], vals["Y"], true
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
