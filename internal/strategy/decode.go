package strategy

import (
	"sort"

	"github.com/Natooz/MIDITok/internal/event"
)

// perfBuilder accumulates decoded notes and changes and assembles the
// output performance. Tracks are keyed by an arbitrary integer: the
// program number for merged-stream strategies, an ordinal for
// track-separated ones.
type perfBuilder struct {
	cfg    Config
	tracks map[int]*event.Track
	order  []int
	tempos []event.TempoChange
	sigs   []event.TimeSignatureChange
}

func newPerfBuilder(cfg Config) *perfBuilder {
	return &perfBuilder{cfg: cfg, tracks: make(map[int]*event.Track)}
}

func (pb *perfBuilder) track(key, program int) *event.Track {
	tr, ok := pb.tracks[key]
	if !ok {
		tr = &event.Track{Program: program}
		pb.tracks[key] = tr
		pb.order = append(pb.order, key)
	}
	return tr
}

func (pb *perfBuilder) addNote(key, program int, n event.Note) {
	tr := pb.track(key, program)
	tr.Notes = append(tr.Notes, n)
}

func (pb *perfBuilder) addTempo(tick int64, bpm float64) {
	// Identical consecutive tempi and same-tick repeats collapse.
	if n := len(pb.tempos); n > 0 {
		last := pb.tempos[n-1]
		if last.BPM == bpm {
			return
		}
		if last.Tick == tick {
			pb.tempos[n-1].BPM = bpm
			return
		}
	}
	pb.tempos = append(pb.tempos, event.TempoChange{Tick: tick, BPM: bpm})
}

func (pb *perfBuilder) addSignature(tick int64, sig TimeSig) {
	if n := len(pb.sigs); n > 0 {
		last := pb.sigs[n-1]
		if last.Numerator == sig.Numerator && last.Denominator == sig.Denominator {
			return
		}
		if last.Tick == tick {
			pb.sigs[n-1].Numerator = sig.Numerator
			pb.sigs[n-1].Denominator = sig.Denominator
			return
		}
	}
	pb.sigs = append(pb.sigs, event.TimeSignatureChange{
		Tick: tick, Numerator: sig.Numerator, Denominator: sig.Denominator,
	})
}

func (pb *perfBuilder) build() *event.Performance {
	p := &event.Performance{
		Resolution:     pb.cfg.Resolution,
		Tempos:         pb.tempos,
		TimeSignatures: pb.sigs,
	}
	if len(pb.order) == 0 {
		// A decode that produced no notes still yields a playable
		// single-track performance.
		p.Tracks = []event.Track{{Program: 0}}
	} else {
		keys := append([]int(nil), pb.order...)
		sort.Ints(keys)
		for _, k := range keys {
			p.Tracks = append(p.Tracks, *pb.tracks[k])
		}
	}
	p.Normalize()
	return p
}
