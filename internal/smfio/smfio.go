// Package smfio converts Standard MIDI Files to the engine's normalized
// performance representation and back. It is the file-format
// collaborator around the tokenization core; the core itself never
// touches files.
package smfio

import (
	"fmt"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/Natooz/MIDITok/internal/event"
)

const drumChannel = 9 // zero-based General MIDI percussion channel

// ReadFile parses an SMF file into a performance. Note-ons are matched
// to note-offs first in, first out per (track, channel, key); notes
// left open at end of track are dropped. Tempo and meter events from
// all tracks merge into the global change lists.
func ReadFile(path string) (*event.Performance, error) {
	s, err := smf.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read smf: %w", err)
	}
	return fromSMF(s)
}

func fromSMF(s *smf.SMF) (*event.Performance, error) {
	metric, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("smf: unsupported time format %v", s.TimeFormat)
	}
	p := &event.Performance{Resolution: int(metric.Resolution())}

	type chanKey struct{ track, channel int }
	type openNote struct {
		tick     int64
		velocity int
	}
	tracks := make(map[chanKey]*event.Track)
	var order []chanKey
	open := make(map[chanKey]map[int][]openNote)
	programs := make(map[chanKey]int)

	trackFor := func(k chanKey) *event.Track {
		tr, ok := tracks[k]
		if !ok {
			program := 0
			if pr, okp := programs[k]; okp {
				program = pr
			}
			if k.channel == drumChannel {
				program = -1
			}
			tr = &event.Track{Program: program}
			tracks[k] = tr
			order = append(order, k)
		}
		return tr
	}

	for ti, tr := range s.Tracks {
		var tick int64
		for _, ev := range tr {
			tick += int64(ev.Delta)
			msg := ev.Message

			var ch, key, vel uint8
			var bpm float64
			var num, den uint8
			switch {
			case msg.GetNoteStart(&ch, &key, &vel):
				k := chanKey{ti, int(ch)}
				trackFor(k)
				if open[k] == nil {
					open[k] = make(map[int][]openNote)
				}
				open[k][int(key)] = append(open[k][int(key)], openNote{tick: tick, velocity: int(vel)})
			case msg.GetNoteEnd(&ch, &key):
				k := chanKey{ti, int(ch)}
				if q := open[k][int(key)]; len(q) > 0 {
					on := q[0]
					open[k][int(key)] = q[1:]
					if tick > on.tick {
						trackFor(k).Notes = append(trackFor(k).Notes, event.Note{
							Pitch:    int(key),
							Velocity: on.velocity,
							Start:    on.tick,
							End:      tick,
						})
					}
				}
			case msg.GetProgramChange(&ch, &vel):
				k := chanKey{ti, int(ch)}
				programs[k] = int(vel)
				if tr, okt := tracks[k]; okt && k.channel != drumChannel {
					tr.Program = int(vel)
				}
			case msg.GetMetaTempo(&bpm):
				p.Tempos = append(p.Tempos, event.TempoChange{Tick: tick, BPM: bpm})
			case msg.GetMetaMeter(&num, &den):
				p.TimeSignatures = append(p.TimeSignatures, event.TimeSignatureChange{
					Tick: tick, Numerator: int(num), Denominator: int(den),
				})
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].track != order[j].track {
			return order[i].track < order[j].track
		}
		return order[i].channel < order[j].channel
	})
	for _, k := range order {
		if len(tracks[k].Notes) > 0 {
			p.Tracks = append(p.Tracks, *tracks[k])
		}
	}
	p.Normalize()
	return p, nil
}

// WriteFile renders a performance to an SMF1 file: one file track per
// performance track, global changes on the first. Channels are assigned
// in track order, skipping the drum channel for melodic tracks and
// pinning drum tracks (program -1) to it.
func WriteFile(path string, p *event.Performance) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(p.Resolution)

	nextChannel := 0
	channelFor := func(tr event.Track) uint8 {
		if tr.Program < 0 {
			return drumChannel
		}
		ch := nextChannel % 16
		if ch == drumChannel {
			nextChannel++
			ch = nextChannel % 16
		}
		nextChannel++
		return uint8(ch)
	}

	type timedMsg struct {
		tick int64
		ord  int
		msg  smf.Message
	}

	for ti, tr := range p.Tracks {
		var msgs []timedMsg
		if ti == 0 {
			for _, tc := range p.Tempos {
				msgs = append(msgs, timedMsg{tick: tc.Tick, ord: 0, msg: smf.MetaTempo(tc.BPM)})
			}
			for _, ts := range p.TimeSignatures {
				msgs = append(msgs, timedMsg{tick: ts.Tick, ord: 0, msg: smf.MetaMeter(uint8(ts.Numerator), uint8(ts.Denominator))})
			}
		}
		ch := channelFor(tr)
		if tr.Program >= 0 {
			msgs = append(msgs, timedMsg{tick: 0, ord: 0, msg: smf.Message(midi.ProgramChange(ch, uint8(tr.Program)))})
		}
		for _, n := range tr.Notes {
			msgs = append(msgs, timedMsg{tick: n.Start, ord: 2, msg: smf.Message(midi.NoteOn(ch, uint8(n.Pitch), uint8(clampVelocity(n.Velocity))))})
			msgs = append(msgs, timedMsg{tick: n.End, ord: 1, msg: smf.Message(midi.NoteOff(ch, uint8(n.Pitch)))})
		}
		sort.SliceStable(msgs, func(i, j int) bool {
			if msgs[i].tick != msgs[j].tick {
				return msgs[i].tick < msgs[j].tick
			}
			return msgs[i].ord < msgs[j].ord
		})

		var track smf.Track
		var prev int64
		for _, m := range msgs {
			track.Add(uint32(m.tick-prev), m.msg)
			prev = m.tick
		}
		track.Close(0)
		s.Add(track)
	}

	if err := s.WriteFile(path); err != nil {
		return fmt.Errorf("write smf: %w", err)
	}
	return nil
}

func clampVelocity(v int) int {
	if v < 1 {
		return 1
	}
	if v > 127 {
		return 127
	}
	return v
}
