package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/ConserveLee/exchange-scout/internal/engine/screen"
	"github.com/ConserveLee/exchange-scout/internal/viewport"
)

// Detection is a single best-match result for operator tooling.
type Detection struct {
	Found     bool // Match.Score reached Threshold
	Threshold float32
	HasMatch  bool
	Match     screen.Match
	WorldDX   int // Match offset from screen center in world units
	WorldDY   int
}

func (s *Scanner) liveSession() (viewport.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrNoSession
	}
	return s.session, nil
}

func (s *Scanner) cacheShot(shot []byte) {
	s.mu.Lock()
	s.lastShot = shot
	s.mu.Unlock()
}

// Screenshot captures the live view and keeps it for DetectLast.
func (s *Scanner) Screenshot(ctx context.Context) ([]byte, error) {
	sess, err := s.liveSession()
	if err != nil {
		return nil, err
	}
	shot, err := sess.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheShot(shot)
	return shot, nil
}

// Goto navigates the live view and returns the screenshot taken there.
func (s *Scanner) Goto(ctx context.Context, kingdom, x, y int) ([]byte, error) {
	sess, err := s.liveSession()
	if err != nil {
		return nil, err
	}
	if err := sess.NavigateTo(ctx, kingdom, x, y); err != nil {
		return nil, err
	}
	shot, err := sess.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheShot(shot)
	log.Info().Int("kingdom", kingdom).Int("x", x).Int("y", y).Msg("Goto done")
	return shot, nil
}

// LastScreenshot returns the screenshot cached by Screenshot or Goto.
func (s *Scanner) LastScreenshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastShot == nil {
		return nil, ErrNoScreenshot
	}
	return s.lastShot, nil
}

// DetectLast runs DetectOnce on the cached screenshot. The view drifts
// after navigation, so a fresh capture would not match what was shown.
func (s *Scanner) DetectLast() (Detection, error) {
	shot, err := s.LastScreenshot()
	if err != nil {
		return Detection{}, err
	}
	return s.DetectOnce(shot)
}

// DetectOnce finds the best match in PNG bytes and reports it against the
// manual threshold.
func (s *Scanner) DetectOnce(png []byte) (Detection, error) {
	img, err := screen.Decode(png)
	if err != nil {
		return Detection{}, err
	}
	det := Detection{Threshold: s.opts.ManualThreshold}
	m, ok := s.detector.FindBestMatch(img, s.templates)
	if !ok {
		return det, nil
	}
	det.HasMatch = true
	det.Match = m
	det.Found = m.Score >= s.opts.ManualThreshold
	det.WorldDX, det.WorldDY = s.opts.Calibrator.PixelToWorldOffset(float64(m.X), float64(m.Y))
	return det, nil
}

// ExchangeScreenshot returns the popup screenshot stored with exchange i
// of Exchanges.
func (s *Scanner) ExchangeScreenshot(i int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.store.Get(i)
	if !ok {
		return nil, fmt.Errorf("%w: index %d", ErrNoExchange, i)
	}
	if ex.Screenshot == nil {
		return nil, ErrNoScreenshot
	}
	return ex.Screenshot, nil
}

func (s *Scanner) saveDebug(name string, png []byte) {
	if !s.opts.DebugScreenshots {
		return
	}
	path := filepath.Join(s.opts.DebugDir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to save debug screenshot")
		return
	}
	log.Debug().Str("path", path).Msg("Saved debug screenshot")
}
