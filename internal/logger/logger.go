package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2/data/binding"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ConserveLee/exchange-scout/internal/constants"
)

// Options configures the global logger.
type Options struct {
	Level string // debug | info | warn | error
	File  string // JSON log file, appended; empty = none
	UI    *UISink
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup installs the global zerolog logger: human readable on stderr, JSON
// in the optional file and short lines in the optional UI sink. The
// returned closer closes the file.
func Setup(opts Options) (io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, f)
		closer = f
	}
	if opts.UI != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        opts.UI,
			NoColor:    true,
			TimeFormat: time.TimeOnly,
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return closer, nil
}

// Module returns a sub-logger tagged with module=name.
func Module(name string) zerolog.Logger {
	return log.With().Str("module", name).Logger()
}

// UISink feeds log lines into a fyne list binding, keeping the newest
// constants.UILogLines entries.
type UISink struct {
	mu    sync.Mutex
	data  binding.StringList
	limit int
}

func NewUISink(data binding.StringList) *UISink {
	return &UISink{data: data, limit: constants.UILogLines}
}

func (s *UISink) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	if line == "" {
		return len(p), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list, _ := s.data.Get()
	list = append(list, line)
	if len(list) > s.limit {
		list = list[len(list)-s.limit:]
	}
	if err := s.data.Set(list); err != nil {
		return 0, err
	}
	return len(p), nil
}
