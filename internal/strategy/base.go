package strategy

import (
	"fmt"
	"sort"

	"github.com/Natooz/MIDITok/internal/event"
	"github.com/Natooz/MIDITok/internal/grid"
	"github.com/Natooz/MIDITok/internal/vocab"
)

// base carries the config and the bin tables derived from it. Every
// strategy embeds one; the tables are computed once at construction and
// never mutated afterwards.
type base struct {
	cfg      Config
	velBins  []int
	durBins  []int // duration/time-shift values, in grid steps
	bpmBins  []float64
	sigIndex map[TimeSig]int
}

// Config returns the strategy's effective configuration.
func (b *base) Config() Config { return b.cfg }

func newBase(cfg Config) base {
	b := base{
		cfg:      cfg,
		velBins:  vocab.LinearBins(cfg.VelocityMin, cfg.VelocityMax, cfg.VelocityBins),
		durBins:  vocab.LinearBins(1, cfg.DurationSteps, cfg.DurationBins),
		sigIndex: make(map[TimeSig]int, len(cfg.TimeSignatures)),
	}
	if cfg.UseTempos {
		b.bpmBins = vocab.LinearBinsF(cfg.TempoMin, cfg.TempoMax, cfg.TempoBins)
	}
	for i, ts := range cfg.TimeSignatures {
		if _, ok := b.sigIndex[ts]; !ok {
			b.sigIndex[ts] = i
		}
	}
	return b
}

// velocityValue maps a raw velocity to its bin's representative value.
func (b *base) velocityValue(v int) int {
	return b.velBins[vocab.NearestBin(b.velBins, vocab.Clamp(v, b.cfg.VelocityMin, b.cfg.VelocityMax))]
}

// durationValue maps a step count to its bin's representative value.
func (b *base) durationValue(steps int) int {
	if steps < 1 {
		steps = 1
	}
	return b.durBins[vocab.NearestBin(b.durBins, vocab.Clamp(steps, 1, b.cfg.DurationSteps))]
}

// noteEvent is one note after quantization and range handling, ready for
// a strategy to serialize.
type noteEvent struct {
	tick     int64
	endTick  int64
	pitch    int
	velocity int // bin representative
	steps    int // duration bin representative, in grid steps
	program  int
	track    int
}

// prepareNotes merges all tracks into one tick-ordered note list,
// quantizes onsets and durations to the grid, and applies the
// out-of-range policies. Dropped notes and clipped values each produce a
// diagnostic carrying the note's index in its source track.
func (b *base) prepareNotes(p *event.Performance, g *grid.TimeGrid) ([]noteEvent, []vocab.Diagnostic) {
	var notes []noteEvent
	var diags []vocab.Diagnostic

	for ti, tr := range p.Tracks {
		for ni, n := range tr.Notes {
			pitch := n.Pitch
			if pitch < b.cfg.PitchMin || pitch > b.cfg.PitchMax {
				if b.cfg.PitchPolicy == vocab.PolicyDrop {
					diags = append(diags, vocab.Diagnostic{
						Kind:    vocab.DiagNoteDropped,
						Index:   ni,
						Message: fmt.Sprintf("track %d: pitch %d outside [%d,%d]", ti, pitch, b.cfg.PitchMin, b.cfg.PitchMax),
					})
					continue
				}
				clipped := vocab.Clamp(pitch, b.cfg.PitchMin, b.cfg.PitchMax)
				diags = append(diags, vocab.Diagnostic{
					Kind:    vocab.DiagOutOfRange,
					Index:   ni,
					Message: fmt.Sprintf("track %d: pitch %d clipped to %d", ti, pitch, clipped),
				})
				pitch = clipped
			}

			velocity := n.Velocity
			if velocity < b.cfg.VelocityMin || velocity > b.cfg.VelocityMax {
				if b.cfg.VelocityPolicy == vocab.PolicyDrop {
					diags = append(diags, vocab.Diagnostic{
						Kind:    vocab.DiagNoteDropped,
						Index:   ni,
						Message: fmt.Sprintf("track %d: velocity %d outside [%d,%d]", ti, velocity, b.cfg.VelocityMin, b.cfg.VelocityMax),
					})
					continue
				}
				diags = append(diags, vocab.Diagnostic{
					Kind:    vocab.DiagOutOfRange,
					Index:   ni,
					Message: fmt.Sprintf("track %d: velocity %d clipped", ti, velocity),
				})
			}

			start := g.Quantize(n.Start)
			step := g.StepTicks(start)
			steps := int((n.End - start + step/2) / step)
			if steps < 1 {
				steps = 1
			}
			if steps > b.cfg.DurationSteps {
				if b.cfg.DurationPolicy == vocab.PolicyDrop {
					diags = append(diags, vocab.Diagnostic{
						Kind:    vocab.DiagNoteDropped,
						Index:   ni,
						Message: fmt.Sprintf("track %d: duration %d steps exceeds %d", ti, steps, b.cfg.DurationSteps),
					})
					continue
				}
				diags = append(diags, vocab.Diagnostic{
					Kind:    vocab.DiagOutOfRange,
					Index:   ni,
					Message: fmt.Sprintf("track %d: duration %d steps clipped to %d", ti, steps, b.cfg.DurationSteps),
				})
				steps = b.cfg.DurationSteps
			}
			steps = b.durationValue(steps)

			notes = append(notes, noteEvent{
				tick:     start,
				endTick:  start + int64(steps)*step,
				pitch:    pitch,
				velocity: b.velocityValue(velocity),
				steps:    steps,
				program:  tr.Program,
				track:    ti,
			})
		}
	}

	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].tick != notes[j].tick {
			return notes[i].tick < notes[j].tick
		}
		if notes[i].pitch != notes[j].pitch {
			return notes[i].pitch < notes[j].pitch
		}
		return notes[i].program < notes[j].program
	})
	return notes, diags
}

// tempoEvents bins the performance's tempo changes. The token value is
// the bin index; the representative BPM comes back from the same table
// on decode.
func (b *base) tempoEvents(p *event.Performance, g *grid.TimeGrid) []Event {
	if !b.cfg.UseTempos {
		return nil
	}
	out := make([]Event, 0, len(p.Tempos))
	for _, tc := range p.Tempos {
		out = append(out, Event{
			Tok:  vocab.Token{Family: vocab.FamilyTempo, Value: vocab.NearestBinF(b.bpmBins, tc.BPM)},
			Tick: g.Quantize(tc.Tick),
		})
	}
	return out
}

// timeSignatureEvents maps signature changes to indices into the allowed
// set. Changes outside the set are skipped with a diagnostic.
func (b *base) timeSignatureEvents(p *event.Performance, g *grid.TimeGrid) ([]Event, []vocab.Diagnostic) {
	if !b.cfg.UseTimeSignatures {
		return nil, nil
	}
	var out []Event
	var diags []vocab.Diagnostic
	for i, ts := range p.TimeSignatures {
		idx, ok := b.sigIndex[TimeSig{ts.Numerator, ts.Denominator}]
		if !ok {
			diags = append(diags, vocab.Diagnostic{
				Kind:    vocab.DiagOutOfRange,
				Index:   i,
				Message: fmt.Sprintf("time signature %d/%d not in configured set, skipped", ts.Numerator, ts.Denominator),
			})
			continue
		}
		out = append(out, Event{
			Tok:  vocab.Token{Family: vocab.FamilyTimeSignature, Value: idx},
			Tick: g.Quantize(ts.Tick),
		})
	}
	return out, diags
}

// tempoBPM returns the representative BPM of a tempo bin index.
func (b *base) tempoBPM(bin int) (float64, bool) {
	if bin < 0 || bin >= len(b.bpmBins) {
		return 0, false
	}
	return b.bpmBins[bin], true
}

// timeSignature returns the meter of a signature set index.
func (b *base) timeSignature(idx int) (TimeSig, bool) {
	if idx < 0 || idx >= len(b.cfg.TimeSignatures) {
		return TimeSig{}, false
	}
	return b.cfg.TimeSignatures[idx], true
}

// newGrid builds the time grid an encode pass uses, following the
// performance's signature changes when the strategy keeps them.
func (b *base) newGrid(p *event.Performance) (*grid.TimeGrid, error) {
	sigs := p.TimeSignatures
	if !b.cfg.UseTimeSignatures {
		sigs = nil
	}
	return grid.New(b.cfg.Resolution, b.cfg.PositionsPerBar, sigs)
}

// barTicks returns the bar length in ticks of a meter at the config's
// resolution, and the matching position step length.
func (b *base) barTicks(sig TimeSig) (bar, step int64) {
	bar = int64(b.cfg.Resolution) * 4 * int64(sig.Numerator) / int64(sig.Denominator)
	step = bar / int64(b.cfg.PositionsPerBar)
	if step == 0 {
		step = 1
	}
	return bar, step
}

// decodeState tracks the running timeline of a sequential decode:
// current bar, the tick where it starts, and the active meter.
type decodeState struct {
	b        *base
	bar      int
	barStart int64
	sig      TimeSig
	barLen   int64
	stepLen  int64
}

func (b *base) newDecodeState() *decodeState {
	s := &decodeState{b: b, sig: TimeSig{event.DefaultNumerator, event.DefaultDenominator}}
	s.barLen, s.stepLen = b.barTicks(s.sig)
	return s
}

// advanceBar moves to the start of the next bar.
func (s *decodeState) advanceBar() {
	s.bar++
	s.barStart += s.barLen
}

// seekBar moves forward to an absolute bar index. Bars never move
// backwards; a stale index is ignored.
func (s *decodeState) seekBar(bar int) {
	for s.bar < bar {
		s.advanceBar()
	}
}

// setSignature switches the meter from the start of the current bar.
func (s *decodeState) setSignature(sig TimeSig) {
	s.sig = sig
	s.barLen, s.stepLen = s.b.barTicks(sig)
}

// tickAt returns the tick of a position within the current bar.
func (s *decodeState) tickAt(position int) int64 {
	return s.barStart + int64(position)*s.stepLen
}
