// Package event holds the normalized performance representation consumed
// and produced by the tokenization engine: per-track note lists plus the
// global tempo and time-signature change lists, all expressed in ticks.
package event

import (
	"errors"
	"fmt"
	"sort"
)

// Defaults used when no change precedes a queried tick.
const (
	DefaultBPM         = 120.0
	DefaultNumerator   = 4
	DefaultDenominator = 4
)

// ErrMalformed reports an input performance that violates the structural
// invariants (note end before start, unsorted change lists, bad resolution).
// It aborts the whole encode; per-value range anomalies do not.
var ErrMalformed = errors.New("malformed performance")

// Note is a single played note. End is exclusive and must be greater
// than Start.
type Note struct {
	Pitch    int   `json:"pitch"`
	Velocity int   `json:"velocity"`
	Start    int64 `json:"start"`
	End      int64 `json:"end"`
}

// Duration returns the note length in ticks.
func (n Note) Duration() int64 { return n.End - n.Start }

// TempoChange sets the tempo, in beats per minute, from Tick onward.
type TempoChange struct {
	Tick int64   `json:"tick"`
	BPM  float64 `json:"bpm"`
}

// TimeSignatureChange sets the meter from Tick onward.
type TimeSignatureChange struct {
	Tick        int64 `json:"tick"`
	Numerator   int   `json:"numerator"`
	Denominator int   `json:"denominator"`
}

// Track is one instrument voice. Program is the General MIDI program
// number in [0,127], or -1 for a drum track.
type Track struct {
	Program int    `json:"program"`
	Notes   []Note `json:"notes"`
}

// Performance aggregates everything one encode pass consumes: per-track
// notes plus the global tempo and time-signature sequences, at a given
// resolution in ticks per quarter note.
type Performance struct {
	Resolution     int                   `json:"resolution"`
	Tracks         []Track               `json:"tracks"`
	Tempos         []TempoChange         `json:"tempos,omitempty"`
	TimeSignatures []TimeSignatureChange `json:"time_signatures,omitempty"`
}

// NoteCount returns the total number of notes across all tracks.
func (p *Performance) NoteCount() int {
	n := 0
	for _, t := range p.Tracks {
		n += len(t.Notes)
	}
	return n
}

// Clone returns a deep copy. Encode passes normalize a clone so the
// caller's performance is never mutated.
func (p *Performance) Clone() *Performance {
	out := &Performance{
		Resolution:     p.Resolution,
		Tracks:         make([]Track, len(p.Tracks)),
		Tempos:         append([]TempoChange(nil), p.Tempos...),
		TimeSignatures: append([]TimeSignatureChange(nil), p.TimeSignatures...),
	}
	for i, t := range p.Tracks {
		out.Tracks[i] = Track{Program: t.Program, Notes: append([]Note(nil), t.Notes...)}
	}
	return out
}

// Normalize sorts notes within each track by (start, pitch) and the
// change lists by tick, deduplicating changes that share a tick so the
// later entry wins. It mutates the receiver.
func (p *Performance) Normalize() {
	for i := range p.Tracks {
		notes := p.Tracks[i].Notes
		sort.SliceStable(notes, func(a, b int) bool {
			if notes[a].Start != notes[b].Start {
				return notes[a].Start < notes[b].Start
			}
			return notes[a].Pitch < notes[b].Pitch
		})
	}
	sort.SliceStable(p.Tempos, func(a, b int) bool { return p.Tempos[a].Tick < p.Tempos[b].Tick })
	p.Tempos = dedupTempos(p.Tempos)
	sort.SliceStable(p.TimeSignatures, func(a, b int) bool {
		return p.TimeSignatures[a].Tick < p.TimeSignatures[b].Tick
	})
	p.TimeSignatures = dedupTimeSignatures(p.TimeSignatures)
}

// dedupTempos keeps the last change at each tick. Input must be sorted.
func dedupTempos(in []TempoChange) []TempoChange {
	if len(in) < 2 {
		return in
	}
	out := in[:0]
	for i, tc := range in {
		if i+1 < len(in) && in[i+1].Tick == tc.Tick {
			continue
		}
		out = append(out, tc)
	}
	return out
}

func dedupTimeSignatures(in []TimeSignatureChange) []TimeSignatureChange {
	if len(in) < 2 {
		return in
	}
	out := in[:0]
	for i, ts := range in {
		if i+1 < len(in) && in[i+1].Tick == ts.Tick {
			continue
		}
		out = append(out, ts)
	}
	return out
}

// Validate checks the structural invariants of a normalized performance.
// It reports the first violation wrapped in ErrMalformed. Pitch and
// velocity range checks are not done here; those belong to the
// vocabulary's out-of-range policy.
func (p *Performance) Validate() error {
	if p.Resolution <= 0 {
		return fmt.Errorf("%w: resolution %d, want > 0", ErrMalformed, p.Resolution)
	}
	for ti, tr := range p.Tracks {
		var prev *Note
		for ni := range tr.Notes {
			n := &tr.Notes[ni]
			if n.Start < 0 {
				return fmt.Errorf("%w: track %d note %d starts at tick %d", ErrMalformed, ti, ni, n.Start)
			}
			if n.End <= n.Start {
				return fmt.Errorf("%w: track %d note %d ends at tick %d, starts at %d", ErrMalformed, ti, ni, n.End, n.Start)
			}
			if prev != nil && (n.Start < prev.Start || (n.Start == prev.Start && n.Pitch < prev.Pitch)) {
				return fmt.Errorf("%w: track %d notes not ordered at index %d", ErrMalformed, ti, ni)
			}
			prev = n
		}
	}
	for i, tc := range p.Tempos {
		if tc.Tick < 0 || tc.BPM <= 0 {
			return fmt.Errorf("%w: tempo change %d (tick %d, %g bpm)", ErrMalformed, i, tc.Tick, tc.BPM)
		}
		if i > 0 && tc.Tick <= p.Tempos[i-1].Tick {
			return fmt.Errorf("%w: tempo changes not strictly ascending at index %d", ErrMalformed, i)
		}
	}
	for i, ts := range p.TimeSignatures {
		if ts.Tick < 0 || ts.Numerator <= 0 || ts.Denominator <= 0 {
			return fmt.Errorf("%w: time signature %d (tick %d, %d/%d)", ErrMalformed, i, ts.Tick, ts.Numerator, ts.Denominator)
		}
		if i > 0 && ts.Tick <= p.TimeSignatures[i-1].Tick {
			return fmt.Errorf("%w: time signatures not strictly ascending at index %d", ErrMalformed, i)
		}
	}
	return nil
}

// TempoAt returns the tempo active at tick: the latest change at or
// before it, or DefaultBPM when none precedes.
func (p *Performance) TempoAt(tick int64) float64 {
	bpm := DefaultBPM
	for _, tc := range p.Tempos {
		if tc.Tick > tick {
			break
		}
		bpm = tc.BPM
	}
	return bpm
}

// TimeSignatureAt returns the meter active at tick, defaulting to 4/4.
func (p *Performance) TimeSignatureAt(tick int64) (numerator, denominator int) {
	numerator, denominator = DefaultNumerator, DefaultDenominator
	for _, ts := range p.TimeSignatures {
		if ts.Tick > tick {
			break
		}
		numerator, denominator = ts.Numerator, ts.Denominator
	}
	return numerator, denominator
}
