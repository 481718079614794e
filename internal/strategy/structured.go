package strategy

import (
	"fmt"

	"github.com/Natooz/MIDITok/internal/event"
	"github.com/Natooz/MIDITok/internal/graph"
	"github.com/Natooz/MIDITok/internal/grid"
	"github.com/Natooz/MIDITok/internal/vocab"
)

// structured emits a rigid cycle per note: TimeShift, Pitch, Velocity,
// Duration, with a zero-valued shift for simultaneous notes. The fixed
// pattern means position within the cycle is implicit; there are no bar
// or position markers, and tempo or time-signature changes are not
// representable. Gaps longer than the largest shift collapse to it.
type structured struct {
	base
}

func (s *structured) Kind() Kind     { return Structured }
func (s *structured) Compound() bool { return false }

func (s *structured) BuildVocabulary() *vocab.Vocabulary {
	b := vocab.NewBuilder().AddSpecial(s.cfg.Special)
	b.AddRange(vocab.FamilyPitch, s.cfg.PitchMin, s.cfg.PitchMax)
	b.AddValues(vocab.FamilyVelocity, s.velBins)
	b.AddValues(vocab.FamilyDuration, s.durBins)
	b.Add(vocab.Token{Family: vocab.FamilyTimeShift, Value: 0})
	b.AddValues(vocab.FamilyTimeShift, s.durBins)
	if s.cfg.UsePrograms {
		b.AddRange(vocab.FamilyProgram, -1, 127)
	}
	return b.Build()
}

func (s *structured) BuildTransitionGraph() *graph.TransitionGraph {
	g := graph.New()
	g.Allow(vocab.FamilyPitch, vocab.FamilyVelocity)
	g.Allow(vocab.FamilyVelocity, vocab.FamilyDuration)
	g.Allow(vocab.FamilyDuration, vocab.FamilyTimeShift)
	if s.cfg.UsePrograms {
		g.Allow(vocab.FamilyTimeShift, vocab.FamilyProgram)
		g.Allow(vocab.FamilyProgram, vocab.FamilyPitch)
	} else {
		g.Allow(vocab.FamilyTimeShift, vocab.FamilyPitch)
	}
	return g
}

func (s *structured) InjectTimeEvents(p *event.Performance, g *grid.TimeGrid) ([]Event, []vocab.Diagnostic) {
	notes, diags := s.prepareNotes(p, g)

	var out []Event
	prevTick := int64(0)
	for _, n := range notes {
		shift := 0
		if steps := g.StepsBetween(prevTick, n.tick); steps > 0 {
			shift = s.durationValue(steps)
		}
		out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyTimeShift, Value: shift}, Tick: n.tick})
		if s.cfg.UsePrograms {
			out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyProgram, Value: n.program}, Tick: n.tick})
		}
		out = append(out,
			Event{Tok: vocab.Token{Family: vocab.FamilyPitch, Value: n.pitch}, Tick: n.tick},
			Event{Tok: vocab.Token{Family: vocab.FamilyVelocity, Value: n.velocity}, Tick: n.tick},
			Event{Tok: vocab.Token{Family: vocab.FamilyDuration, Value: n.steps}, Tick: n.tick},
		)
		prevTick = n.tick
	}
	return out, diags
}

func (s *structured) TokensFromEvents(events []Event, voc *vocab.Vocabulary) Tokens {
	return Tokens{IDs: idsFromEvents(events, voc)}
}

func (s *structured) TokensToEvents(toks Tokens, voc *vocab.Vocabulary) (*event.Performance, []vocab.Diagnostic) {
	pb := newPerfBuilder(s.cfg)
	g := s.BuildTransitionGraph()
	st := s.newDecodeState()

	var diags []vocab.Diagnostic
	prev := vocab.FamilyPad
	tick := int64(0)
	curProgram := 0
	pendingPitch, pendingVel := -1, -1

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
			pendingPitch, pendingVel = -1, -1
		case vocab.FamilyProgram:
			curProgram = tok.Value
		case vocab.FamilyPitch:
			pendingPitch, pendingVel = tok.Value, -1
		case vocab.FamilyVelocity:
			pendingVel = tok.Value
		case vocab.FamilyDuration:
			if pendingPitch >= 0 && pendingVel >= 0 {
				key := 0
				if s.cfg.UsePrograms {
					key = curProgram
				}
				pb.addNote(key, key, event.Note{
					Pitch:    pendingPitch,
					Velocity: pendingVel,
					Start:    tick,
					End:      tick + int64(tok.Value)*st.stepLen,
				})
			}
			pendingPitch, pendingVel = -1, -1
		}
	}
	return pb.build(), diags
}
