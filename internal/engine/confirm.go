package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ConserveLee/exchange-scout/internal/engine/audit"
	"github.com/ConserveLee/exchange-scout/internal/engine/exchange"
	"github.com/ConserveLee/exchange-scout/internal/engine/pattern"
	"github.com/ConserveLee/exchange-scout/internal/engine/screen"
	"github.com/ConserveLee/exchange-scout/internal/viewport"
)

// candidate is a scan detection waiting for confirmation.
type candidate struct {
	kingdom  int
	match    screen.Match
	origin   pattern.Point
	scanSecs *float64
}

// confirm centers the view on the candidate's estimated coordinates,
// refines the estimate with a second detection, clicks the building and
// reads its popup. It reports whether the kingdom's exchange was resolved;
// every outcome is audited.
func (s *Scanner) confirm(ctx context.Context, gen uint64, sess viewport.Session, c candidate) (bool, error) {
	cal := s.opts.Calibrator
	k := c.kingdom

	dx, dy := cal.PixelToWorldOffset(float64(c.match.X), float64(c.match.Y))
	estX := pattern.ClampWorld(c.origin.X + dx)
	estY := pattern.ClampWorld(c.origin.Y + dy)
	log.Info().Int("kingdom", k).Int("px", c.match.X).Int("py", c.match.Y).
		Int("dx", dx).Int("dy", dy).Int("x", estX).Int("y", estY).Msg("Estimated exchange coordinates")

	if err := sess.NavigateTo(ctx, k, estX, estY); err != nil {
		return false, fmt.Errorf("goto estimate: %w", err)
	}
	if err := s.sleep(ctx, s.opts.SettleDelay); err != nil {
		return false, err
	}
	gotoShot, err := sess.Screenshot(ctx)
	if err != nil {
		return false, fmt.Errorf("goto screenshot: %w", err)
	}
	s.saveDebug(fmt.Sprintf("debug_goto_k%d_%d_%d.png", k, estX, estY), gotoShot)
	img, err := screen.Decode(gotoShot)
	if err != nil {
		return false, fmt.Errorf("goto screenshot: %w", err)
	}

	// The building should now sit near screen center; its residual offset
	// corrects the estimate.
	refX, refY := estX, estY
	clickX, clickY := cal.CenterX, cal.CenterY
	var calScore *float32
	calMatch, calFound := s.detector.FindBestMatch(img, s.templates)
	if calFound {
		cdx, cdy := cal.PixelToWorldOffset(float64(calMatch.X), float64(calMatch.Y))
		refX = pattern.ClampWorld(estX + cdx)
		refY = pattern.ClampWorld(estY + cdy)
		clickX, clickY = float64(calMatch.X), float64(calMatch.Y)
		score := calMatch.Score
		calScore = &score
		log.Info().Int("px", calMatch.X).Int("py", calMatch.Y).Float32("score", score).
			Int("x", refX).Int("y", refY).Msg("Calibration")
	} else {
		log.Info().Msg("Calibration: no match, clicking screen center")
	}

	if err := sess.ClickAt(ctx, clickX, clickY); err != nil {
		return false, fmt.Errorf("click building: %w", err)
	}
	defer func() {
		sess.DismissPopup(ctx)
		_ = s.sleep(ctx, s.opts.DismissDelay)
	}()
	if err := s.sleep(ctx, s.opts.PopupDelay); err != nil {
		return false, err
	}

	popupShot, err := sess.Screenshot(ctx)
	if err != nil {
		return false, fmt.Errorf("popup screenshot: %w", err)
	}
	s.saveDebug(fmt.Sprintf("debug_popup_k%d_%d_%d.png", k, refX, refY), popupShot)

	text, err := sess.ReadPopupText(ctx)
	hasPopup := err == nil
	if err != nil && !errors.Is(err, viewport.ErrPopupNotFound) {
		return false, fmt.Errorf("read popup: %w", err)
	}

	entry := audit.NewEntry(s.now())
	entry.Kingdom, entry.X, entry.Y = k, refX, refY
	entry.InitialScore = c.match.Score
	entry.CalibrationScore = calScore
	entry.ScanPattern = s.opts.Pattern.Name
	entry.ScanDurationSecs = c.scanSecs
	defer func() { s.recorder.Record(entry) }()

	found := exchange.Exchange{
		Kingdom:    k,
		X:          refX,
		Y:          refY,
		Screenshot: popupShot,
	}
	if c.scanSecs != nil {
		found.ScanDuration = time.Duration(*c.scanSecs * float64(time.Second))
	}

	if hasPopup {
		pk, px, py, ok := viewport.ParsePopupCoords(text)
		if !ok {
			log.Info().Str("text", text).Msg("Popup has no coordinates, not confirmed")
			return false, nil
		}
		found.Kingdom, found.X, found.Y, found.Confirmed = pk, px, py, true
		entry.Kingdom, entry.X, entry.Y, entry.Confirmed = pk, px, py, true
		entry.Stored = s.addExchange(gen, found)
		log.Info().Int("kingdom", pk).Int("x", px).Int("y", py).Bool("stored", entry.Stored).Msg("Exchange confirmed from popup")
		return true, nil
	}

	if calFound && calMatch.Score >= s.opts.VerifyThreshold &&
		cal.NearCenter(float64(calMatch.X), float64(calMatch.Y), s.opts.NearCenter) {
		entry.Stored = s.addExchange(gen, found)
		log.Info().Int("kingdom", k).Int("x", refX).Int("y", refY).Bool("stored", entry.Stored).
			Msg("No popup but strong calibration, storing estimate")
		return true, nil
	}

	log.Info().Int("kingdom", k).Msg("No popup and weak calibration, not confirmed")
	return false, nil
}

func (s *Scanner) addExchange(gen uint64, e exchange.Exchange) bool {
	stored := false
	s.update(gen, func() {
		stored = s.store.Add(e, s.now())
	})
	return stored
}
