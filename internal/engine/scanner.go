// Package engine runs the exchange scan: the phase state machine, the
// per-kingdom loop and the confirm workflow, all driven through a
// viewport.Session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ConserveLee/exchange-scout/internal/config"
	"github.com/ConserveLee/exchange-scout/internal/engine/audit"
	"github.com/ConserveLee/exchange-scout/internal/engine/calibrate"
	"github.com/ConserveLee/exchange-scout/internal/engine/exchange"
	"github.com/ConserveLee/exchange-scout/internal/engine/pattern"
	"github.com/ConserveLee/exchange-scout/internal/engine/screen"
	"github.com/ConserveLee/exchange-scout/internal/viewport"
)

var (
	ErrConflict     = errors.New("operation not allowed in current phase")
	ErrNoSession    = errors.New("no viewport session")
	ErrNoScreenshot = errors.New("no screenshot taken yet")
	ErrNoExchange   = errors.New("no such exchange")
)

// Phase is the scanner's lifecycle state.
type Phase int

const (
	Idle Phase = iota
	Preparing
	Ready
	Scanning
	Paused
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Ready:
		return "ready"
	case Scanning:
		return "scanning"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Options holds everything the scan loop needs besides its collaborators.
type Options struct {
	Kingdoms    []int
	Credentials viewport.Credentials
	Pattern     pattern.Options
	Calibrator  calibrate.Calibrator

	Cooldown     time.Duration
	SettleDelay  time.Duration
	PopupDelay   time.Duration
	DismissDelay time.Duration

	VerifyThreshold float32
	ManualThreshold float32
	NearCenter      float64

	DebugScreenshots bool
	DebugDir         string
}

// OptionsFromConfig maps the loaded configuration onto scanner options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Kingdoms: append([]int(nil), cfg.Scan.Kingdoms...),
		Credentials: viewport.Credentials{
			Email:    cfg.Viewport.Email,
			Password: cfg.Viewport.Password,
		},
		Pattern:          cfg.PatternOptions(),
		Calibrator:       cfg.Calibrator(),
		Cooldown:         cfg.Scan.Cooldown.Duration,
		SettleDelay:      cfg.Scan.SettleDelay.Duration,
		PopupDelay:       cfg.Scan.PopupDelay.Duration,
		DismissDelay:     cfg.Scan.DismissDelay.Duration,
		VerifyThreshold:  float32(cfg.Detection.VerifyThreshold),
		ManualThreshold:  float32(cfg.Detection.ManualThreshold),
		NearCenter:       cfg.Detection.NearCenter,
		DebugScreenshots: cfg.Scan.DebugScreenshots,
		DebugDir:         cfg.Scan.DebugDir,
	}
}

// Scanner owns all shared scan state behind one mutex. The mutex is never
// held across viewport I/O.
type Scanner struct {
	opts      Options
	launcher  viewport.Launcher
	detector  *screen.Detector
	templates []*screen.Template
	recorder  audit.Recorder

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu       sync.Mutex
	phase    Phase
	current  int
	hasCur   bool // current is set
	store    *exchange.Store
	lastShot []byte
	session  viewport.Session
	cancel   context.CancelFunc
	gen      uint64 // bumped whenever the running task is abandoned
	wake     chan struct{}
}

func NewScanner(opts Options, launcher viewport.Launcher, detector *screen.Detector, templates []*screen.Template, recorder audit.Recorder) *Scanner {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Scanner{
		opts:      opts,
		launcher:  launcher,
		detector:  detector,
		templates: templates,
		recorder:  recorder,
		now:       time.Now,
		sleep:     viewport.Sleep,
		store:     exchange.NewStore(),
		wake:      make(chan struct{}, 1),
	}
}

// Start prepares a session when there is none, starts a fresh scan pass
// when a session is ready and resumes a paused scan.
func (s *Scanner) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case Paused:
		s.phase = Scanning
		s.signal()
		log.Info().Msg("Scan resumed")
		return nil
	case Idle, Ready:
		if s.session == nil {
			s.spawnPrepare()
			return nil
		}
		s.abortTask()
		s.store.Clear()
		s.hasCur = false
		s.spawnScan()
		return nil
	default:
		return fmt.Errorf("%w: start while %s", ErrConflict, s.phase)
	}
}

// Pause holds the scan loop at its next check. Pausing twice is allowed.
func (s *Scanner) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case Scanning:
		s.phase = Paused
		log.Info().Msg("Scan paused")
		return nil
	case Paused:
		return nil
	default:
		return fmt.Errorf("%w: pause while %s", ErrConflict, s.phase)
	}
}

// Stop abandons the running task and keeps the session for a fast restart.
func (s *Scanner) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abortTask()
	s.signal()
	if s.session != nil {
		s.phase = Ready
	} else {
		s.phase = Idle
	}
	log.Info().Str("phase", s.phase.String()).Msg("Scanner stopped")
	return nil
}

// Prepare launches and logs in a session without scanning.
func (s *Scanner) Prepare() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case Idle:
		s.spawnPrepare()
		return nil
	case Ready, Paused:
		return nil
	default:
		return fmt.Errorf("%w: prepare while %s", ErrConflict, s.phase)
	}
}

// Logout stops everything and closes the session.
func (s *Scanner) Logout() error {
	s.mu.Lock()
	s.abortTask()
	s.signal()
	sess := s.session
	s.session = nil
	s.lastShot = nil
	s.phase = Idle
	s.mu.Unlock()

	if sess == nil {
		return nil
	}
	log.Info().Msg("Logging out")
	if err := sess.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (s *Scanner) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Exchanges returns a copy of the stored exchanges, oldest first.
func (s *Scanner) Exchanges() []exchange.Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.List()
}

// Status is a point-in-time view for operator surfaces.
type Status struct {
	Phase          Phase
	Running        bool
	Paused         bool
	CurrentKingdom int
	HasKingdom     bool
	Exchanges      int
	HasSession     bool
}

func (s *Scanner) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Phase:          s.phase,
		Running:        s.phase == Scanning,
		Paused:         s.phase == Paused,
		CurrentKingdom: s.current,
		HasKingdom:     s.hasCur,
		Exchanges:      s.store.Len(),
		HasSession:     s.session != nil,
	}
}

// signal wakes a paused loop; it never blocks. Caller holds s.mu.
func (s *Scanner) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// abortTask cancels the running task and invalidates its pending writes.
// Caller holds s.mu.
func (s *Scanner) abortTask() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
}

// newTask starts a task context. Caller holds s.mu.
func (s *Scanner) newTask() (context.Context, uint64) {
	s.abortTask()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	return ctx, s.gen
}

func (s *Scanner) spawnPrepare() {
	ctx, gen := s.newTask()
	s.phase = Preparing
	log.Info().Msg("Preparing viewport session")
	go s.prepare(ctx, gen)
}

func (s *Scanner) spawnScan() {
	ctx, gen := s.newTask()
	s.phase = Scanning
	sess := s.session
	go s.run(ctx, gen, sess)
}

func (s *Scanner) prepare(ctx context.Context, gen uint64) {
	sess, err := s.openSession(ctx)

	s.mu.Lock()
	stale := gen != s.gen
	if !stale {
		s.cancel = nil
		if err != nil {
			s.phase = Idle
		} else {
			s.session = sess
			s.phase = Ready
		}
	}
	s.mu.Unlock()

	switch {
	case err != nil:
		log.Error().Err(err).Msg("Session preparation failed")
	case stale:
		log.Info().Msg("Preparation superseded, closing session")
		if cerr := sess.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Close session")
		}
	default:
		log.Info().Msg("Viewport session ready")
	}
}

func (s *Scanner) openSession(ctx context.Context) (viewport.Session, error) {
	sess, err := s.launcher.Launch(ctx)
	if err != nil {
		return nil, err
	}
	if err := sess.Login(ctx, s.opts.Credentials); err != nil {
		if cerr := sess.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Close session after failed login")
		}
		return nil, err
	}
	return sess, nil
}

// update runs fn under the lock unless the task that owns gen was
// abandoned. It reports whether fn ran.
func (s *Scanner) update(gen uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	fn()
	return true
}

// sessionLost drops a session that stopped working under the scan loop.
func (s *Scanner) sessionLost(gen uint64) {
	var sess viewport.Session
	s.update(gen, func() {
		sess = s.session
		s.session = nil
		s.cancel = nil
		s.phase = Idle
	})
	log.Error().Msg("Viewport session closed during scan; log in again")
	if sess != nil {
		_ = sess.Close()
	}
}
