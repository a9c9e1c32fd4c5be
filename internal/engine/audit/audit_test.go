package audit

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestFileRecorderAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchanges.jsonl")
	r := NewFileRecorder(path)

	cal := float32(0.93)
	dur := 41.5
	first := NewEntry(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	first.Kingdom, first.X, first.Y = 111, 506, 638
	first.Confirmed, first.Stored = true, true
	first.InitialScore = 0.985
	first.CalibrationScore = &cal
	first.ScanPattern = "grid"
	first.ScanDurationSecs = &dur
	r.Record(first)

	second := NewEntry(time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC))
	second.Kingdom = 112
	second.ScanPattern = "single"
	r.Record(second)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := sonic.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	if lines[0]["timestamp"] != "2026-03-01T12:00:00Z" {
		t.Errorf("timestamp = %v", lines[0]["timestamp"])
	}
	if lines[0]["confirmed"] != true || lines[0]["stored"] != true {
		t.Errorf("flags = %v/%v", lines[0]["confirmed"], lines[0]["stored"])
	}
	if lines[0]["scan_duration_secs"] != 41.5 {
		t.Errorf("scan_duration_secs = %v", lines[0]["scan_duration_secs"])
	}
	for _, key := range []string{"calibration_score", "scan_duration_secs"} {
		v, ok := lines[1][key]
		if !ok || v != nil {
			t.Errorf("%s = %v (present %v), want null", key, v, ok)
		}
	}
}

func TestFileRecorderBadPathDoesNotPanic(t *testing.T) {
	r := NewFileRecorder(filepath.Join(t.TempDir(), "missing", "dir", "log.jsonl"))
	r.Record(NewEntry(time.Now()))
}
