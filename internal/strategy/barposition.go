package strategy

import (
	"fmt"
	"sort"

	"github.com/Natooz/MIDITok/internal/event"
	"github.com/Natooz/MIDITok/internal/graph"
	"github.com/Natooz/MIDITok/internal/grid"
	"github.com/Natooz/MIDITok/internal/vocab"
)

// barPosition marks time explicitly: a Bar token opens every bar, a
// Position token selects the grid slot inside it, and each note follows
// as Pitch, Velocity, Duration. Tempo and time-signature changes ride
// the same stream.
type barPosition struct {
	base
}

func (s *barPosition) Kind() Kind     { return BarPosition }
func (s *barPosition) Compound() bool { return false }

// BuildVocabulary enumerates, in order: special tokens, Bar, Position,
// Pitch, Velocity, Duration, then Program, Tempo and TimeSig when
// enabled.
func (s *barPosition) BuildVocabulary() *vocab.Vocabulary {
	b := vocab.NewBuilder().AddSpecial(s.cfg.Special)
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
	if s.cfg.UseTimeSignatures {
		b.AddRange(vocab.FamilyTimeSignature, 0, len(s.cfg.TimeSignatures)-1)
	}
	return b.Build()
}

func (s *barPosition) BuildTransitionGraph() *graph.TransitionGraph {
	g := graph.New()
	g.Allow(vocab.FamilyBar, vocab.FamilyBar, vocab.FamilyPosition)
	g.Allow(vocab.FamilyPosition, vocab.FamilyPitch)
	g.Allow(vocab.FamilyPitch, vocab.FamilyVelocity)
	g.Allow(vocab.FamilyVelocity, vocab.FamilyDuration)
	g.Allow(vocab.FamilyDuration, vocab.FamilyPitch, vocab.FamilyPosition, vocab.FamilyBar)
	if s.cfg.UsePrograms {
		g.Allow(vocab.FamilyPosition, vocab.FamilyProgram)
		g.Allow(vocab.FamilyDuration, vocab.FamilyProgram)
		g.Allow(vocab.FamilyProgram, vocab.FamilyPitch)
	}
	if s.cfg.UseTempos {
		g.Allow(vocab.FamilyPosition, vocab.FamilyTempo)
		g.Allow(vocab.FamilyTempo, vocab.FamilyPitch, vocab.FamilyPosition, vocab.FamilyBar)
		if s.cfg.UsePrograms {
			g.Allow(vocab.FamilyTempo, vocab.FamilyProgram)
		}
	}
	if s.cfg.UseTimeSignatures {
		g.Allow(vocab.FamilyBar, vocab.FamilyTimeSignature)
		g.Allow(vocab.FamilyTimeSignature, vocab.FamilyPosition, vocab.FamilyBar)
	}
	return g
}

// mergeItem interleaves notes and global changes for the encode walk.
// Kind order at an equal tick: time signature, tempo, note.
type mergeItem struct {
	tick int64
	kind int // 0 signature, 1 tempo, 2 note
	sig  Event
	note noteEvent
}

func (s *barPosition) mergedStream(p *event.Performance, g *grid.TimeGrid) ([]mergeItem, []vocab.Diagnostic) {
	notes, diags := s.prepareNotes(p, g)
	sigs, sigDiags := s.timeSignatureEvents(p, g)
	diags = append(diags, sigDiags...)

	items := make([]mergeItem, 0, len(notes)+len(sigs))
	for _, ev := range sigs {
		items = append(items, mergeItem{tick: ev.Tick, kind: 0, sig: ev})
	}
	for _, ev := range s.tempoEvents(p, g) {
		items = append(items, mergeItem{tick: ev.Tick, kind: 1, sig: ev})
	}
	for _, n := range notes {
		items = append(items, mergeItem{tick: n.tick, kind: 2, note: n})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].tick != items[j].tick {
			return items[i].tick < items[j].tick
		}
		return items[i].kind < items[j].kind
	})
	return items, diags
}

func (s *barPosition) InjectTimeEvents(p *event.Performance, g *grid.TimeGrid) ([]Event, []vocab.Diagnostic) {
	items, diags := s.mergedStream(p, g)

	var out []Event
	curBar, curPos := -1, -1
	for _, it := range items {
		bar, pos := g.TickToGrid(it.tick)
		for curBar < bar {
			curBar++
			curPos = -1
			out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyBar}, Tick: g.GridToTick(curBar, 0)})
		}
		switch it.kind {
		case 0:
			out = append(out, Event{Tok: it.sig.Tok, Tick: it.tick})
		case 1:
			if curPos != pos {
				curPos = pos
				out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyPosition, Value: pos}, Tick: it.tick})
			}
			out = append(out, Event{Tok: it.sig.Tok, Tick: it.tick})
		case 2:
			if curPos != pos {
				curPos = pos
				out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyPosition, Value: pos}, Tick: it.tick})
			}
			out = append(out, s.noteEvents(it.note)...)
		}
	}
	return out, diags
}

func (s *barPosition) noteEvents(n noteEvent) []Event {
	evs := make([]Event, 0, 4)
	if s.cfg.UsePrograms {
		evs = append(evs, Event{Tok: vocab.Token{Family: vocab.FamilyProgram, Value: n.program}, Tick: n.tick})
	}
	return append(evs,
		Event{Tok: vocab.Token{Family: vocab.FamilyPitch, Value: n.pitch}, Tick: n.tick},
		Event{Tok: vocab.Token{Family: vocab.FamilyVelocity, Value: n.velocity}, Tick: n.tick},
		Event{Tok: vocab.Token{Family: vocab.FamilyDuration, Value: n.steps}, Tick: n.tick},
	)
}

func (s *barPosition) TokensFromEvents(events []Event, voc *vocab.Vocabulary) Tokens {
	return Tokens{IDs: idsFromEvents(events, voc)}
}

// TokensToEvents walks the id sequence sequentially, maintaining the
// running (bar, position) timeline. Unknown ids and illegal adjacencies
// are skipped with a diagnostic; decode then resynchronizes on the next
// recognizable token.
func (s *barPosition) TokensToEvents(toks Tokens, voc *vocab.Vocabulary) (*event.Performance, []vocab.Diagnostic) {
	pb := newPerfBuilder(s.cfg)
	g := s.BuildTransitionGraph()
	st := s.newDecodeState()

	var diags []vocab.Diagnostic
	prev := vocab.FamilyPad
	started := false
	curPos := 0
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
		case vocab.FamilyBar:
			if started {
				st.advanceBar()
			}
			started = true
			curPos = 0
		case vocab.FamilyTimeSignature:
			if sig, ok := s.timeSignature(tok.Value); ok {
				st.setSignature(sig)
				pb.addSignature(st.barStart, sig)
			}
		case vocab.FamilyPosition:
			curPos = tok.Value
		case vocab.FamilyTempo:
			if bpm, ok := s.tempoBPM(tok.Value); ok {
				pb.addTempo(st.tickAt(curPos), bpm)
			}
		case vocab.FamilyProgram:
			curProgram = tok.Value
		case vocab.FamilyPitch:
			pendingPitch, pendingVel = tok.Value, -1
		case vocab.FamilyVelocity:
			pendingVel = tok.Value
		case vocab.FamilyDuration:
			if pendingPitch >= 0 && pendingVel >= 0 {
				start := st.tickAt(curPos)
				key := 0
				if s.cfg.UsePrograms {
					key = curProgram
				}
				pb.addNote(key, key, event.Note{
					Pitch:    pendingPitch,
					Velocity: pendingVel,
					Start:    start,
					End:      start + int64(tok.Value)*st.stepLen,
				})
			}
			pendingPitch, pendingVel = -1, -1
		}
	}
	return pb.build(), diags
}
