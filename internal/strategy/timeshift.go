package strategy

import (
	"fmt"
	"sort"

	"github.com/Natooz/MIDITok/internal/event"
	"github.com/Natooz/MIDITok/internal/graph"
	"github.com/Natooz/MIDITok/internal/grid"
	"github.com/Natooz/MIDITok/internal/vocab"
)

// timeShift renders the performance as a stream of NoteOn, Velocity and
// NoteOff messages, moving time with relative TimeShift tokens instead
// of bar markers. Note ends are recovered on decode by matching each
// NoteOff to the oldest open NoteOn of the same pitch, first in first
// out.
type timeShift struct {
	base
}

func (s *timeShift) Kind() Kind     { return TimeShift }
func (s *timeShift) Compound() bool { return false }

func (s *timeShift) BuildVocabulary() *vocab.Vocabulary {
	b := vocab.NewBuilder().AddSpecial(s.cfg.Special)
	b.AddRange(vocab.FamilyNoteOn, s.cfg.PitchMin, s.cfg.PitchMax)
	b.AddRange(vocab.FamilyNoteOff, s.cfg.PitchMin, s.cfg.PitchMax)
	b.AddValues(vocab.FamilyVelocity, s.velBins)
	b.AddValues(vocab.FamilyTimeShift, s.durBins)
	if s.cfg.UsePrograms {
		b.AddRange(vocab.FamilyProgram, -1, 127)
	}
	if s.cfg.UseTempos {
		b.AddRange(vocab.FamilyTempo, 0, len(s.bpmBins)-1)
	}
	if s.cfg.UseTimeSignatures {
		b.AddRange(vocab.FamilyTimeSignature, 0, len(s.cfg.TimeSignatures)-1)
	}
	return b.Build()
}

func (s *timeShift) BuildTransitionGraph() *graph.TransitionGraph {
	g := graph.New()
	g.Allow(vocab.FamilyNoteOn, vocab.FamilyVelocity)
	g.Allow(vocab.FamilyVelocity, vocab.FamilyNoteOn, vocab.FamilyNoteOff, vocab.FamilyTimeShift)
	g.Allow(vocab.FamilyNoteOff, vocab.FamilyNoteOn, vocab.FamilyNoteOff, vocab.FamilyTimeShift)
	g.Allow(vocab.FamilyTimeShift, vocab.FamilyNoteOn, vocab.FamilyNoteOff, vocab.FamilyTimeShift)
	if s.cfg.UsePrograms {
		g.Allow(vocab.FamilyProgram, vocab.FamilyNoteOn, vocab.FamilyNoteOff)
		for _, from := range []vocab.Family{vocab.FamilyVelocity, vocab.FamilyNoteOff, vocab.FamilyTimeShift} {
			g.Allow(from, vocab.FamilyProgram)
		}
	}
	if s.cfg.UseTempos {
		g.Allow(vocab.FamilyTimeShift, vocab.FamilyTempo)
		g.Allow(vocab.FamilyTempo, vocab.FamilyNoteOn, vocab.FamilyNoteOff, vocab.FamilyTimeShift)
		if s.cfg.UsePrograms {
			g.Allow(vocab.FamilyTempo, vocab.FamilyProgram)
		}
	}
	if s.cfg.UseTimeSignatures {
		g.Allow(vocab.FamilyTimeShift, vocab.FamilyTimeSignature)
		g.Allow(vocab.FamilyTimeSignature, vocab.FamilyNoteOn, vocab.FamilyNoteOff, vocab.FamilyTimeShift)
		if s.cfg.UseTempos {
			g.Allow(vocab.FamilyTimeSignature, vocab.FamilyTempo)
			g.Allow(vocab.FamilyTempo, vocab.FamilyTimeSignature)
		}
		if s.cfg.UsePrograms {
			g.Allow(vocab.FamilyTimeSignature, vocab.FamilyProgram)
		}
	}
	return g
}

// onOffItem is one point on the message timeline before shifts are
// inserted. Kind order at an equal tick: signature, tempo, note off,
// note on. Offs precede ons so a repeated pitch is released before it is
// struck again.
type onOffItem struct {
	tick    int64
	kind    int
	tok     vocab.Token
	pitch   int
	value   int
	program int
}

func (s *timeShift) InjectTimeEvents(p *event.Performance, g *grid.TimeGrid) ([]Event, []vocab.Diagnostic) {
	notes, diags := s.prepareNotes(p, g)
	trimOverlaps(notes, g)
	sigs, sigDiags := s.timeSignatureEvents(p, g)
	diags = append(diags, sigDiags...)

	items := make([]onOffItem, 0, 2*len(notes)+len(sigs))
	for _, ev := range sigs {
		items = append(items, onOffItem{tick: ev.Tick, kind: 0, tok: ev.Tok})
	}
	for _, ev := range s.tempoEvents(p, g) {
		items = append(items, onOffItem{tick: ev.Tick, kind: 1, tok: ev.Tok})
	}
	for _, n := range notes {
		items = append(items, onOffItem{tick: n.endTick, kind: 2, pitch: n.pitch, program: n.program})
		items = append(items, onOffItem{tick: n.tick, kind: 3, pitch: n.pitch, value: n.velocity, program: n.program})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].tick != items[j].tick {
			return items[i].tick < items[j].tick
		}
		return items[i].kind < items[j].kind
	})

	var out []Event
	prevTick := int64(0)
	for _, it := range items {
		out = s.appendShifts(out, g, prevTick, it.tick)
		prevTick = it.tick
		switch it.kind {
		case 0, 1:
			out = append(out, Event{Tok: it.tok, Tick: it.tick})
		case 2:
			if s.cfg.UsePrograms {
				out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyProgram, Value: it.program}, Tick: it.tick})
			}
			out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyNoteOff, Value: it.pitch}, Tick: it.tick})
		case 3:
			if s.cfg.UsePrograms {
				out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyProgram, Value: it.program}, Tick: it.tick})
			}
			out = append(out,
				Event{Tok: vocab.Token{Family: vocab.FamilyNoteOn, Value: it.pitch}, Tick: it.tick},
				Event{Tok: vocab.Token{Family: vocab.FamilyVelocity, Value: it.value}, Tick: it.tick},
			)
		}
	}
	return out, diags
}

// appendShifts emits the TimeShift tokens covering (from, to), greedily
// using the largest bin value that fits. The smallest bin is one step,
// so any whole-step delta decomposes exactly.
func (s *timeShift) appendShifts(out []Event, g *grid.TimeGrid, from, to int64) []Event {
	for from < to {
		steps := g.StepsBetween(from, to)
		if steps == 0 {
			break
		}
		v := s.durBins[0]
		for _, b := range s.durBins {
			if b > steps {
				break
			}
			v = b
		}
		out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyTimeShift, Value: v}, Tick: from})
		from += int64(v) * g.StepTicks(from)
	}
	return out
}

// trimOverlaps shortens a note when the same pitch on the same program
// is struck again before it ends. Matching offs FIFO during decode would
// otherwise swap the two durations.
func trimOverlaps(notes []noteEvent, g *grid.TimeGrid) {
	last := make(map[[2]int]int)
	for i := range notes {
		key := [2]int{notes[i].program, notes[i].pitch}
		if j, ok := last[key]; ok && notes[j].endTick > notes[i].tick && notes[j].tick < notes[i].tick {
			notes[j].endTick = notes[i].tick
			notes[j].steps = g.StepsBetween(notes[j].tick, notes[j].endTick)
			if notes[j].steps < 1 {
				notes[j].steps = 1
			}
		}
		last[key] = i
	}
}

func (s *timeShift) TokensFromEvents(events []Event, voc *vocab.Vocabulary) Tokens {
	return Tokens{IDs: idsFromEvents(events, voc)}
}

type openNote struct {
	tick     int64
	velocity int
}

func (s *timeShift) TokensToEvents(toks Tokens, voc *vocab.Vocabulary) (*event.Performance, []vocab.Diagnostic) {
	pb := newPerfBuilder(s.cfg)
	g := s.BuildTransitionGraph()
	st := s.newDecodeState()

	var diags []vocab.Diagnostic
	prev := vocab.FamilyPad
	tick := int64(0)
	curProgram := 0
	pendingOn := -1 // pitch awaiting its Velocity token
	open := make(map[[2]int][]openNote)

	for i, id := range toks.IDs {
		tok, ok := voc.TokenAt(id)
		if !ok {
			diags = append(diags, vocab.Diagnostic{
				Kind: vocab.DiagInvalidTokenID, Index: i,
				Message: fmt.Sprintf("id %d outside vocabulary of %d", id, voc.Len()),
			})
			continue
		}
		switch tok.Family {
		case vocab.FamilyPad, vocab.FamilySOS, vocab.FamilyEOS, vocab.FamilyMask, vocab.FamilyUnk:
			continue
		}
		if !g.Allows(prev, tok.Family) {
			diags = append(diags, vocab.Diagnostic{
				Kind: vocab.DiagTransitionViolation, Index: i,
				Message: fmt.Sprintf("%s may not follow %s", tok.Family, prev),
			})
			continue
		}
		prev = tok.Family

		switch tok.Family {
		case vocab.FamilyTimeShift:
			tick += int64(tok.Value) * st.stepLen
			pendingOn = -1
		case vocab.FamilyTimeSignature:
			if sig, ok := s.timeSignature(tok.Value); ok {
				st.setSignature(sig)
				pb.addSignature(tick, sig)
			}
		case vocab.FamilyTempo:
			if bpm, ok := s.tempoBPM(tok.Value); ok {
				pb.addTempo(tick, bpm)
			}
		case vocab.FamilyProgram:
			curProgram = tok.Value
		case vocab.FamilyNoteOn:
			pendingOn = tok.Value
		case vocab.FamilyVelocity:
			if pendingOn >= 0 {
				key := [2]int{curProgram, pendingOn}
				open[key] = append(open[key], openNote{tick: tick, velocity: tok.Value})
				pendingOn = -1
			}
		case vocab.FamilyNoteOff:
			key := [2]int{curProgram, tok.Value}
			if q := open[key]; len(q) > 0 {
				on := q[0]
				open[key] = q[1:]
				if tick > on.tick {
					trackKey := 0
					if s.cfg.UsePrograms {
						trackKey = curProgram
					}
					pb.addNote(trackKey, trackKey, event.Note{
						Pitch:    tok.Value,
						Velocity: on.velocity,
						Start:    on.tick,
						End:      tick,
					})
				}
			}
			pendingOn = -1
		}
	}
	return pb.build(), diags
}
