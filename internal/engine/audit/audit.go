// Package audit appends one JSON line per confirm attempt.
package audit

import (
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
)

// Entry is one confirm attempt, stored or not.
type Entry struct {
	Timestamp        string   `json:"timestamp"`
	Kingdom          int      `json:"kingdom"`
	X                int      `json:"x"`
	Y                int      `json:"y"`
	Confirmed        bool     `json:"confirmed"`
	Stored           bool     `json:"stored"`
	InitialScore     float32  `json:"initial_score"`
	CalibrationScore *float32 `json:"calibration_score"`
	ScanPattern      string   `json:"scan_pattern"`
	ScanDurationSecs *float64 `json:"scan_duration_secs"`
}

// NewEntry stamps an entry with at in RFC 3339.
func NewEntry(at time.Time) Entry {
	return Entry{Timestamp: at.UTC().Format(time.RFC3339)}
}

// Recorder receives audit entries. Implementations never fail the caller.
type Recorder interface {
	Record(e Entry)
}

// FileRecorder appends entries to a JSONL file.
type FileRecorder struct {
	mu   sync.Mutex
	path string
}

func NewFileRecorder(path string) *FileRecorder {
	return &FileRecorder{path: path}
}

func (r *FileRecorder) Record(e Entry) {
	line, err := sonic.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode audit entry")
		return
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Error().Err(err).Str("path", r.path).Msg("Failed to open audit log")
		return
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		log.Error().Err(err).Str("path", r.path).Msg("Failed to write audit log")
	}
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(Entry) {}
