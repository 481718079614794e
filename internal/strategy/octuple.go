package strategy

import (
	"fmt"

	"github.com/Natooz/MIDITok/internal/event"
	"github.com/Natooz/MIDITok/internal/graph"
	"github.com/Natooz/MIDITok/internal/grid"
	"github.com/Natooz/MIDITok/internal/vocab"
)

// octuple encodes each note as one word: pitch, velocity, duration,
// program and its absolute (bar, position) coordinate, plus the current
// tempo bin when tempos are enabled. Every slot is present in every
// word, so no ignore sentinel is needed; time lives entirely inside the
// words and the sequence holds exactly one word per note.
type octuple struct {
	base
}

func (s *octuple) Kind() Kind     { return Octuple }
func (s *octuple) Compound() bool { return true }

const (
	octSlotPitch = iota
	octSlotVelocity
	octSlotDuration
	octSlotProgram
	octSlotPosition
	octSlotBar
	octSlotFixed
)

func (s *octuple) width() int {
	if s.cfg.UseTempos {
		return octSlotFixed + 1
	}
	return octSlotFixed
}

func (s *octuple) BuildVocabulary() *vocab.Vocabulary {
	b := vocab.NewBuilder().AddSpecial(s.cfg.Special)
	b.AddRange(vocab.FamilyPitch, s.cfg.PitchMin, s.cfg.PitchMax)
	b.AddValues(vocab.FamilyVelocity, s.velBins)
	b.AddValues(vocab.FamilyDuration, s.durBins)
	b.AddRange(vocab.FamilyProgram, -1, 127)
	b.AddRange(vocab.FamilyPosition, 0, s.cfg.PositionsPerBar-1)
	b.AddRange(vocab.FamilyBar, 0, s.cfg.MaxBarEmbedding-1)
	if s.cfg.UseTempos {
		b.AddRange(vocab.FamilyTempo, 0, len(s.bpmBins)-1)
	}
	return b.Build()
}

func (s *octuple) BuildTransitionGraph() *graph.TransitionGraph {
	// Every word is a note word.
	return graph.New().Allow(vocab.FamilyPitch, vocab.FamilyPitch)
}

func (s *octuple) InjectTimeEvents(p *event.Performance, g *grid.TimeGrid) ([]Event, []vocab.Diagnostic) {
	notes, diags := s.prepareNotes(p, g)
	tempos := s.tempoEvents(p, g)

	var out []Event
	word := 0
	curTempo := vocab.NearestBinF(s.bpmBins, event.DefaultBPM)
	nextTempo := 0
	for _, n := range notes {
		for nextTempo < len(tempos) && tempos[nextTempo].Tick <= n.tick {
			curTempo = tempos[nextTempo].Tok.Value
			nextTempo++
		}
		bar, pos := g.TickToGrid(n.tick)
		if bar >= s.cfg.MaxBarEmbedding {
			diags = append(diags, vocab.Diagnostic{
				Kind: vocab.DiagNoteDropped, Index: word,
				Message: fmt.Sprintf("bar %d beyond embedding limit %d", bar, s.cfg.MaxBarEmbedding),
			})
			continue
		}
		out = append(out,
			Event{Tok: vocab.Token{Family: vocab.FamilyPitch, Value: n.pitch}, Tick: n.tick, WordIndex: word},
			Event{Tok: vocab.Token{Family: vocab.FamilyVelocity, Value: n.velocity}, Tick: n.tick, WordIndex: word},
			Event{Tok: vocab.Token{Family: vocab.FamilyDuration, Value: n.steps}, Tick: n.tick, WordIndex: word},
			Event{Tok: vocab.Token{Family: vocab.FamilyProgram, Value: n.program}, Tick: n.tick, WordIndex: word},
			Event{Tok: vocab.Token{Family: vocab.FamilyPosition, Value: pos}, Tick: n.tick, WordIndex: word},
			Event{Tok: vocab.Token{Family: vocab.FamilyBar, Value: bar}, Tick: n.tick, WordIndex: word},
		)
		if s.cfg.UseTempos {
			out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyTempo, Value: curTempo}, Tick: n.tick, WordIndex: word})
		}
		word++
	}
	return out, diags
}

func (s *octuple) slotOf(f vocab.Family) int {
	switch f {
	case vocab.FamilyPitch:
		return octSlotPitch
	case vocab.FamilyVelocity:
		return octSlotVelocity
	case vocab.FamilyDuration:
		return octSlotDuration
	case vocab.FamilyProgram:
		return octSlotProgram
	case vocab.FamilyPosition:
		return octSlotPosition
	case vocab.FamilyBar:
		return octSlotBar
	case vocab.FamilyTempo:
		return octSlotFixed
	default:
		return -1
	}
}

func (s *octuple) TokensFromEvents(events []Event, voc *vocab.Vocabulary) Tokens {
	width := s.width()
	var words [][]int
	for _, ev := range events {
		for len(words) <= ev.WordIndex {
			words = append(words, make([]int, width))
		}
		if slot := s.slotOf(ev.Tok.Family); slot >= 0 {
			words[ev.WordIndex][slot] = voc.MustID(ev.Tok)
		}
	}
	return Tokens{Words: words}
}

func (s *octuple) TokensToEvents(toks Tokens, voc *vocab.Vocabulary) (*event.Performance, []vocab.Diagnostic) {
	pb := newPerfBuilder(s.cfg)
	st := s.newDecodeState()

	var diags []vocab.Diagnostic
	for wi, word := range toks.Words {
		fields := make(map[vocab.Family]int, len(word))
		ok := true
		for slot, id := range word {
			tok, found := voc.TokenAt(id)
			if !found {
				diags = append(diags, vocab.Diagnostic{
					Kind: vocab.DiagInvalidTokenID, Index: wi,
					Message: fmt.Sprintf("slot %d id %d outside vocabulary of %d", slot, id, voc.Len()),
				})
				ok = false
				break
			}
			fields[tok.Family] = tok.Value
		}
		if !ok {
			continue
		}
		pitch, hasPitch := fields[vocab.FamilyPitch]
		vel, hasVel := fields[vocab.FamilyVelocity]
		dur, hasDur := fields[vocab.FamilyDuration]
		bar, hasBar := fields[vocab.FamilyBar]
		pos, hasPos := fields[vocab.FamilyPosition]
		if !hasPitch || !hasVel || !hasDur || !hasBar || !hasPos {
			diags = append(diags, vocab.Diagnostic{
				Kind: vocab.DiagTransitionViolation, Index: wi,
				Message: "word missing a required note field",
			})
			continue
		}
		start := int64(bar)*st.barLen + int64(pos)*st.stepLen
		program := 0
		if p, okp := fields[vocab.FamilyProgram]; okp {
			program = p
		}
		pb.addNote(program, program, event.Note{
			Pitch:    pitch,
			Velocity: vel,
			Start:    start,
			End:      start + int64(dur)*st.stepLen,
		})
		if t, okt := fields[vocab.FamilyTempo]; okt {
			if bpm, okb := s.tempoBPM(t); okb {
				pb.addTempo(start, bpm)
			}
		}
	}
	return pb.build(), diags
}
