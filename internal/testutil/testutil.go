// Package testutil provides shared performance builders and skip
// helpers for tests.
//
// The builders construct small normalized performances without the
// per-test boilerplate of track and change-list literals. The skip
// helpers call t.Skip with a clear reason when a named fixture is
// absent, so tests remain runnable in partial checkouts.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Natooz/MIDITok/internal/event"
	"github.com/Natooz/MIDITok/internal/smfio"
)

// Note builds a single note.
func Note(pitch, velocity int, start, end int64) event.Note {
	return event.Note{Pitch: pitch, Velocity: velocity, Start: start, End: end}
}

// Performance builds a single-track performance at the given resolution.
func Performance(resolution int, notes ...event.Note) *event.Performance {
	return &event.Performance{
		Resolution: resolution,
		Tracks:     []event.Track{{Program: 0, Notes: notes}},
	}
}

// MultiTrackPerformance builds one track per program, in order, each
// holding the corresponding note slice.
func MultiTrackPerformance(resolution int, programs []int, notes ...[]event.Note) *event.Performance {
	p := &event.Performance{Resolution: resolution}
	for i, program := range programs {
		var ns []event.Note
		if i < len(notes) {
			ns = notes[i]
		}
		p.Tracks = append(p.Tracks, event.Track{Program: program, Notes: ns})
	}
	return p
}

// WithTempo appends a tempo change and returns the same performance for
// chaining in test setup.
func WithTempo(p *event.Performance, tick int64, bpm float64) *event.Performance {
	p.Tempos = append(p.Tempos, event.TempoChange{Tick: tick, BPM: bpm})
	return p
}

// WithTimeSignature appends a meter change and returns the same
// performance for chaining in test setup.
func WithTimeSignature(p *event.Performance, tick int64, num, den int) *event.Performance {
	p.TimeSignatures = append(p.TimeSignatures, event.TimeSignatureChange{
		Tick: tick, Numerator: num, Denominator: den,
	})
	return p
}

// RequireFixture skips the test if the named file does not exist.
func RequireFixture(tb testing.TB, path string) {
	tb.Helper()

	_, err := os.Stat(path)
	if err != nil {
		tb.Skipf("fixture not available at %q: %v", path, err)
	}
}

// WriteTempSMF renders a performance to a temporary MIDI file and
// returns its path. The file lives in the test's temp directory and is
// cleaned up automatically.
func WriteTempSMF(tb testing.TB, p *event.Performance) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "performance.mid")
	if err := smfio.WriteFile(path, p); err != nil {
		tb.Fatalf("write temp smf: %v", err)
	}
	return path
}
