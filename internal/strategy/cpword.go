package strategy

import (
	"fmt"

	"github.com/Natooz/MIDITok/internal/event"
	"github.com/Natooz/MIDITok/internal/graph"
	"github.com/Natooz/MIDITok/internal/grid"
	"github.com/Natooz/MIDITok/internal/vocab"
)

// compoundWord groups the tokens of one timestep into a fixed-width
// word, one slot per family with an ignore sentinel filling unused
// slots. Three word classes exist: a bar marker, a position marker
// (optionally carrying the current tempo), and a note. The class is the
// word's first non-ignore slot.
type compoundWord struct {
	base
}

func (s *compoundWord) Kind() Kind     { return CompoundWord }
func (s *compoundWord) Compound() bool { return true }

// Slot order of a compound word. Optional slots (program, tempo) are
// appended when enabled, so disabled features cost no width.
const (
	cpSlotBar = iota
	cpSlotPosition
	cpSlotPitch
	cpSlotVelocity
	cpSlotDuration
	cpSlotFixed // count of always-present slots
)

func (s *compoundWord) width() int {
	w := cpSlotFixed
	if s.cfg.UsePrograms {
		w++
	}
	if s.cfg.UseTempos {
		w++
	}
	return w
}

func (s *compoundWord) programSlot() int { return cpSlotFixed }

func (s *compoundWord) tempoSlot() int {
	if s.cfg.UsePrograms {
		return cpSlotFixed + 1
	}
	return cpSlotFixed
}

func (s *compoundWord) slotOf(f vocab.Family) int {
	switch f {
	case vocab.FamilyBar:
		return cpSlotBar
	case vocab.FamilyPosition:
		return cpSlotPosition
	case vocab.FamilyPitch:
		return cpSlotPitch
	case vocab.FamilyVelocity:
		return cpSlotVelocity
	case vocab.FamilyDuration:
		return cpSlotDuration
	case vocab.FamilyProgram:
		return s.programSlot()
	case vocab.FamilyTempo:
		return s.tempoSlot()
	default:
		return -1
	}
}

func (s *compoundWord) BuildVocabulary() *vocab.Vocabulary {
	b := vocab.NewBuilder().AddSpecial(s.cfg.Special)
	b.Add(vocab.Token{Family: vocab.FamilyIgnore})
	b.Add(vocab.Token{Family: vocab.FamilyBar, Value: 0})
	b.AddRange(vocab.FamilyPosition, 0, s.cfg.PositionsPerBar-1)
	b.AddRange(vocab.FamilyPitch, s.cfg.PitchMin, s.cfg.PitchMax)
	b.AddValues(vocab.FamilyVelocity, s.velBins)
	b.AddValues(vocab.FamilyDuration, s.durBins)
	if s.cfg.UsePrograms {
		b.AddRange(vocab.FamilyProgram, -1, 127)
	}
	if s.cfg.UseTempos {
		b.AddRange(vocab.FamilyTempo, 0, len(s.bpmBins)-1)
	}
	return b.Build()
}

func (s *compoundWord) BuildTransitionGraph() *graph.TransitionGraph {
	g := graph.New()
	g.Allow(vocab.FamilyBar, vocab.FamilyBar, vocab.FamilyPosition)
	g.Allow(vocab.FamilyPosition, vocab.FamilyPitch)
	g.Allow(vocab.FamilyPitch, vocab.FamilyPitch, vocab.FamilyPosition, vocab.FamilyBar)
	return g
}

func (s *compoundWord) InjectTimeEvents(p *event.Performance, g *grid.TimeGrid) ([]Event, []vocab.Diagnostic) {
	notes, diags := s.prepareNotes(p, g)
	tempos := s.tempoEvents(p, g)

	var out []Event
	word := -1
	curBar, curPos := -1, -1
	curTempo := vocab.NearestBinF(s.bpmBins, event.DefaultBPM)
	nextTempo := 0

	for _, n := range notes {
		// Tempo changes apply from the first position at or after them.
		for nextTempo < len(tempos) && tempos[nextTempo].Tick <= n.tick {
			curTempo = tempos[nextTempo].Tok.Value
			curPos = -1 // force a fresh position word carrying the tempo
			nextTempo++
		}
		bar, pos := g.TickToGrid(n.tick)
		for curBar < bar {
			curBar++
			curPos = -1
			word++
			out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyBar}, Tick: g.GridToTick(curBar, 0), WordIndex: word})
		}
		if curPos != pos {
			curPos = pos
			word++
			out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyPosition, Value: pos}, Tick: n.tick, WordIndex: word})
			if s.cfg.UseTempos {
				out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyTempo, Value: curTempo}, Tick: n.tick, WordIndex: word})
			}
		}
		word++
		out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyPitch, Value: n.pitch}, Tick: n.tick, WordIndex: word})
		out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyVelocity, Value: n.velocity}, Tick: n.tick, WordIndex: word})
		out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyDuration, Value: n.steps}, Tick: n.tick, WordIndex: word})
		if s.cfg.UsePrograms {
			out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyProgram, Value: n.program}, Tick: n.tick, WordIndex: word})
		}
	}
	return out, diags
}

func (s *compoundWord) TokensFromEvents(events []Event, voc *vocab.Vocabulary) Tokens {
	width := s.width()
	ignore := voc.MustID(vocab.Token{Family: vocab.FamilyIgnore})

	var words [][]int
	for _, ev := range events {
		for len(words) <= ev.WordIndex {
			word := make([]int, width)
			for i := range word {
				word[i] = ignore
			}
			words = append(words, word)
		}
		slot := s.slotOf(ev.Tok.Family)
		if slot < 0 {
			continue
		}
		if id, ok := voc.ID(ev.Tok); ok {
			words[ev.WordIndex][slot] = id
		}
	}
	return Tokens{Words: words}
}

func (s *compoundWord) TokensToEvents(toks Tokens, voc *vocab.Vocabulary) (*event.Performance, []vocab.Diagnostic) {
	pb := newPerfBuilder(s.cfg)
	g := s.BuildTransitionGraph()
	st := s.newDecodeState()

	var diags []vocab.Diagnostic
	prev := vocab.FamilyPad
	started := false
	curPos := 0

	slotToken := func(word []int, slot, wi int) (vocab.Token, bool) {
		if slot < 0 || slot >= len(word) {
			return vocab.Token{}, false
		}
		tok, ok := voc.TokenAt(word[slot])
		if !ok {
			diags = append(diags, vocab.Diagnostic{
				Kind: vocab.DiagInvalidTokenID, Index: wi,
				Message: fmt.Sprintf("slot %d id %d outside vocabulary of %d", slot, word[slot], voc.Len()),
			})
			return vocab.Token{}, false
		}
		return tok, tok.Family != vocab.FamilyIgnore
	}

	for wi, word := range toks.Words {
		class := vocab.FamilyIgnore
		for slot := range word {
			if tok, ok := slotToken(word, slot, wi); ok {
				class = tok.Family
				break
			}
		}
		switch class {
		case vocab.FamilyIgnore, vocab.FamilyPad, vocab.FamilySOS, vocab.FamilyEOS, vocab.FamilyMask, vocab.FamilyUnk:
			continue
		}
		if !g.Allows(prev, class) {
			diags = append(diags, vocab.Diagnostic{
				Kind: vocab.DiagTransitionViolation, Index: wi,
				Message: fmt.Sprintf("%s word may not follow %s", class, prev),
			})
			continue
		}
		prev = class

		switch class {
		case vocab.FamilyBar:
			if started {
				st.advanceBar()
			}
			started = true
			curPos = 0
		case vocab.FamilyPosition:
			tok, _ := slotToken(word, cpSlotPosition, wi)
			curPos = tok.Value
			if s.cfg.UseTempos {
				if tt, ok := slotToken(word, s.tempoSlot(), wi); ok && tt.Family == vocab.FamilyTempo {
					if bpm, ok := s.tempoBPM(tt.Value); ok {
						pb.addTempo(st.tickAt(curPos), bpm)
					}
				}
			}
		case vocab.FamilyPitch:
			pitch, _ := slotToken(word, cpSlotPitch, wi)
			vel, velOK := slotToken(word, cpSlotVelocity, wi)
			dur, durOK := slotToken(word, cpSlotDuration, wi)
			if !velOK || !durOK || vel.Family != vocab.FamilyVelocity || dur.Family != vocab.FamilyDuration {
				diags = append(diags, vocab.Diagnostic{
					Kind: vocab.DiagTransitionViolation, Index: wi,
					Message: "note word missing velocity or duration slot",
				})
				continue
			}
			key := 0
			if s.cfg.UsePrograms {
				if pt, ok := slotToken(word, s.programSlot(), wi); ok && pt.Family == vocab.FamilyProgram {
					key = pt.Value
				}
			}
			start := st.tickAt(curPos)
			pb.addNote(key, key, event.Note{
				Pitch:    pitch.Value,
				Velocity: vel.Value,
				Start:    start,
				End:      start + int64(dur.Value)*st.stepLen,
			})
		}
	}
	return pb.build(), diags
}
