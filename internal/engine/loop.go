package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ConserveLee/exchange-scout/internal/engine/pattern"
	"github.com/ConserveLee/exchange-scout/internal/engine/screen"
	"github.com/ConserveLee/exchange-scout/internal/viewport"
)

// run scans every kingdom in turn, pass after pass, until the task is
// abandoned.
func (s *Scanner) run(ctx context.Context, gen uint64, sess viewport.Session) {
	log.Info().Ints("kingdoms", s.opts.Kingdoms).Str("pattern", s.opts.Pattern.Name).Msg("Starting kingdom scan loop")

	for pass := 1; ; pass++ {
		for _, k := range s.opts.Kingdoms {
			if !s.waitWhilePaused(ctx, gen) {
				log.Info().Msg("Scan loop exited")
				return
			}
			s.update(gen, func() {
				s.current = k
				s.hasCur = true
			})

			err := s.processKingdom(ctx, gen, sess, k)
			switch {
			case ctx.Err() != nil:
				log.Info().Msg("Scan loop exited")
				return
			case errors.Is(err, viewport.ErrSessionClosed):
				s.sessionLost(gen)
				return
			case err != nil:
				log.Error().Err(err).Int("kingdom", k).Msg("Kingdom scan failed")
			}
		}
		log.Info().Int("pass", pass).Msg("Completed scan pass, restarting")
	}
}

// waitWhilePaused blocks while the phase is Paused. It reports whether the
// loop should go on.
func (s *Scanner) waitWhilePaused(ctx context.Context, gen uint64) bool {
	logged := false
	for {
		s.mu.Lock()
		phase, stale := s.phase, gen != s.gen
		s.mu.Unlock()

		if stale || ctx.Err() != nil {
			return false
		}
		switch phase {
		case Scanning:
			return true
		case Paused:
			if !logged {
				log.Info().Msg("Scanner paused, waiting for resume")
				logged = true
			}
			select {
			case <-s.wake:
			case <-ctx.Done():
				return false
			}
		default:
			return false
		}
	}
}

// processKingdom applies the cooldown rules, then runs a full scan when
// the kingdom needs one.
func (s *Scanner) processKingdom(ctx context.Context, gen uint64, sess viewport.Session, k int) error {
	s.mu.Lock()
	last, scanned := s.store.LastScan(k)
	known, hasKnown := s.store.ForKingdom(k)
	s.mu.Unlock()

	if scanned {
		if elapsed := s.now().Sub(last); elapsed < s.opts.Cooldown {
			remaining := s.opts.Cooldown - elapsed
			if !hasKnown {
				log.Info().Int("kingdom", k).Dur("remaining", remaining).Msg("Cooldown active, waiting")
				if err := s.sleep(ctx, remaining); err != nil {
					return err
				}
			} else {
				log.Info().Int("kingdom", k).Int("x", known.X).Int("y", known.Y).Msg("Re-verifying exchange")
				present, err := s.verify(ctx, sess, k, known.X, known.Y)
				switch {
				case err != nil:
					if ctx.Err() != nil || errors.Is(err, viewport.ErrSessionClosed) {
						return err
					}
					log.Warn().Err(err).Int("kingdom", k).Msg("Verify failed, rescanning")
				case present:
					log.Info().Int("kingdom", k).Msg("Exchange still present")
					s.update(gen, func() { s.store.Refresh(k, known.X, known.Y, s.now()) })
					return s.sleep(ctx, remaining)
				default:
					log.Info().Int("kingdom", k).Msg("Exchange gone, removing")
					s.update(gen, func() { s.store.Remove(k) })
				}
			}
		}
	}

	err := s.scanKingdom(ctx, gen, sess, k)
	s.update(gen, func() { s.store.SetLastScan(k, s.now()) })
	return err
}

// verify reports whether the known exchange still shows near screen center.
func (s *Scanner) verify(ctx context.Context, sess viewport.Session, k, x, y int) (bool, error) {
	if err := sess.NavigateTo(ctx, k, x, y); err != nil {
		return false, err
	}
	if err := s.sleep(ctx, s.opts.SettleDelay); err != nil {
		return false, err
	}
	shot, err := sess.Screenshot(ctx)
	if err != nil {
		return false, fmt.Errorf("verification screenshot: %w", err)
	}
	img, err := screen.Decode(shot)
	if err != nil {
		return false, fmt.Errorf("verification screenshot: %w", err)
	}

	m, ok := s.detector.FindBestMatch(img, s.templates)
	if !ok {
		log.Info().Int("kingdom", k).Int("x", x).Int("y", y).Msg("Verify: no match")
		return false, nil
	}
	near := s.opts.Calibrator.NearCenter(float64(m.X), float64(m.Y), s.opts.NearCenter)
	good := m.Score >= s.opts.VerifyThreshold
	log.Info().Int("kingdom", k).Int("px", m.X).Int("py", m.Y).Float32("score", m.Score).
		Bool("near", near).Bool("good", good).Msg("Verify")
	return near && good, nil
}

// scanKingdom visits every pattern position, overlapping detection of one
// step with navigation to the next, and stops at the first confirmed
// exchange.
func (s *Scanner) scanKingdom(ctx context.Context, gen uint64, sess viewport.Session, k int) error {
	positions := pattern.Generate(s.opts.Pattern)
	total := len(positions)
	log.Info().Int("kingdom", k).Int("positions", total).Str("pattern", s.opts.Pattern.Name).Msg("Scanning kingdom")

	start := s.now()
	p := newDetectPipeline(s.detector, s.templates, total)
	defer p.close()

	for i, pos := range positions {
		if det, ok := p.poll(); ok {
			if s.resolve(ctx, gen, sess, k, det, start, total) {
				return nil
			}
			log.Info().Int("step", det.step+1).Int("of", total).Msg("Match not confirmed, resuming scan")
			p.drain()
		}

		if !s.waitWhilePaused(ctx, gen) {
			return ctx.Err()
		}

		log.Debug().Int("step", i+1).Int("of", total).Int("x", pos.X).Int("y", pos.Y).Msg("Goto")
		if err := sess.NavigateTo(ctx, k, pos.X, pos.Y); err != nil {
			return fmt.Errorf("kingdom %d step %d/%d: %w", k, i+1, total, err)
		}
		shot, err := sess.Screenshot(ctx)
		if err != nil {
			return fmt.Errorf("kingdom %d step %d/%d: %w", k, i+1, total, err)
		}
		s.saveDebug(fmt.Sprintf("debug_scan_k%d_s%03d.png", k, i+1), shot)
		p.submit(detectJob{shot: shot, origin: pos, step: i})
	}

	if det, ok := p.finish(ctx); ok {
		if s.resolve(ctx, gen, sess, k, det, start, total) {
			return nil
		}
		log.Info().Int("step", det.step+1).Int("of", total).Msg("Final match not confirmed")
	}
	log.Info().Int("kingdom", k).Dur("elapsed", s.now().Sub(start)).Msg("Kingdom scanned, no exchange found")
	return ctx.Err()
}

// resolve runs the confirm workflow on a detection's best match and
// reports whether the kingdom is done.
func (s *Scanner) resolve(ctx context.Context, gen uint64, sess viewport.Session, k int, det detection, start time.Time, total int) bool {
	m := det.matches[0]
	secs := s.now().Sub(start).Seconds()
	log.Info().Int("step", det.step+1).Int("of", total).Int("px", m.X).Int("py", m.Y).
		Float32("score", m.Score).Msg("Confirming detection")

	ok, err := s.confirm(ctx, gen, sess, candidate{kingdom: k, match: m, origin: det.origin, scanSecs: &secs})
	if err != nil {
		log.Warn().Err(err).Int("kingdom", k).Int("px", m.X).Int("py", m.Y).Msg("Confirm failed")
		return false
	}
	if ok {
		log.Info().Int("kingdom", k).Float64("secs", secs).Int("step", det.step+1).Int("of", total).Msg("Kingdom scan completed")
	}
	return ok
}
