package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ConserveLee/exchange-scout/internal/engine/pattern"
	"github.com/ConserveLee/exchange-scout/internal/engine/screen"
)

type detectJob struct {
	shot   []byte
	origin pattern.Point // navigation target the screenshot was taken at
	step   int
}

// detection is a screenshot with at least one match, best first.
type detection struct {
	matches []screen.Match
	origin  pattern.Point
	step    int
}

// detectPipeline decodes and correlates screenshots on one worker while the
// scan loop navigates to the next position. Results arrive in step order.
// Both queues hold a full scan's worth of steps, so neither side blocks.
type detectPipeline struct {
	jobs    chan detectJob
	results chan detection
	quit    chan struct{}

	finishOnce sync.Once
	closeOnce  sync.Once
}

func newDetectPipeline(d *screen.Detector, templates []*screen.Template, steps int) *detectPipeline {
	p := &detectPipeline{
		jobs:    make(chan detectJob, steps),
		results: make(chan detection, steps),
		quit:    make(chan struct{}),
	}
	go p.work(d, templates, steps)
	return p
}

func (p *detectPipeline) work(d *screen.Detector, templates []*screen.Template, steps int) {
	defer close(p.results)
	for job := range p.jobs {
		select {
		case <-p.quit:
			return
		default:
		}

		img, err := screen.Decode(job.shot)
		if err != nil {
			log.Warn().Err(err).Int("step", job.step+1).Msg("Failed to decode screenshot")
			continue
		}
		matches := d.FindMatches(img, templates)
		if len(matches) == 0 {
			log.Debug().Int("step", job.step+1).Int("of", steps).Msg("No matches")
			continue
		}
		log.Info().Int("step", job.step+1).Int("of", steps).Int("matches", len(matches)).
			Float32("best", matches[0].Score).Msg("Detection")
		p.results <- detection{matches: matches, origin: job.origin, step: job.step}
	}
}

func (p *detectPipeline) submit(job detectJob) {
	p.jobs <- job
}

// poll returns a queued result without waiting.
func (p *detectPipeline) poll() (detection, bool) {
	select {
	case r, ok := <-p.results:
		return r, ok
	default:
		return detection{}, false
	}
}

// drain drops every result queued so far.
func (p *detectPipeline) drain() {
	for {
		select {
		case _, ok := <-p.results:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// finish accepts no more jobs and waits for the next result, or for the
// worker to run out of jobs.
func (p *detectPipeline) finish(ctx context.Context) (detection, bool) {
	p.finishOnce.Do(func() { close(p.jobs) })
	select {
	case r, ok := <-p.results:
		return r, ok
	case <-ctx.Done():
		return detection{}, false
	}
}

// close abandons outstanding jobs; their results are never read.
func (p *detectPipeline) close() {
	p.closeOnce.Do(func() { close(p.quit) })
	p.finishOnce.Do(func() { close(p.jobs) })
}
