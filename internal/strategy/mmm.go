package strategy

import (
	"fmt"

	"github.com/Natooz/MIDITok/internal/event"
	"github.com/Natooz/MIDITok/internal/graph"
	"github.com/Natooz/MIDITok/internal/grid"
	"github.com/Natooz/MIDITok/internal/vocab"
)

// multiTrack tokenizes each track independently with the bar/position
// strategy and concatenates the per-track streams, bracketing each with
// Track-Start and Track-End tokens and naming its instrument with a
// Program token right after the opening bracket. Global tempo and
// time-signature changes ride the first track's stream only.
type multiTrack struct {
	base
	inner *barPosition
}

func newMultiTrack(cfg Config) *multiTrack {
	innerCfg := cfg
	innerCfg.Strategy = BarPosition
	innerCfg.UsePrograms = false
	return &multiTrack{base: newBase(cfg), inner: &barPosition{base: newBase(innerCfg)}}
}

func (s *multiTrack) Kind() Kind     { return MultiTrack }
func (s *multiTrack) Compound() bool { return false }

func (s *multiTrack) BuildVocabulary() *vocab.Vocabulary {
	b := vocab.NewBuilder().AddSpecial(s.cfg.Special)
	b.AddValues(vocab.FamilyTrack, []int{vocab.TrackStart, vocab.TrackEnd})
	b.AddRange(vocab.FamilyProgram, -1, 127)
	b.Add(vocab.Token{Family: vocab.FamilyBar, Value: 0})
	b.AddRange(vocab.FamilyPosition, 0, s.cfg.PositionsPerBar-1)
	b.AddRange(vocab.FamilyPitch, s.cfg.PitchMin, s.cfg.PitchMax)
	b.AddValues(vocab.FamilyVelocity, s.velBins)
	b.AddValues(vocab.FamilyDuration, s.durBins)
	if s.cfg.UseTempos {
		b.AddRange(vocab.FamilyTempo, 0, len(s.bpmBins)-1)
	}
	if s.cfg.UseTimeSignatures {
		b.AddRange(vocab.FamilyTimeSignature, 0, len(s.cfg.TimeSignatures)-1)
	}
	return b.Build()
}

func (s *multiTrack) BuildTransitionGraph() *graph.TransitionGraph {
	g := s.inner.BuildTransitionGraph()
	g.Allow(vocab.FamilyTrack, vocab.FamilyProgram, vocab.FamilyTrack)
	g.Allow(vocab.FamilyProgram, vocab.FamilyBar, vocab.FamilyTrack)
	g.Allow(vocab.FamilyBar, vocab.FamilyTrack)
	g.Allow(vocab.FamilyDuration, vocab.FamilyTrack)
	if s.cfg.UseTempos {
		g.Allow(vocab.FamilyTempo, vocab.FamilyTrack)
	}
	if s.cfg.UseTimeSignatures {
		// A signature change after the last note leaves TimeSignature as
		// the final token before the closing bracket.
		g.Allow(vocab.FamilyTimeSignature, vocab.FamilyTrack)
	}
	return g
}

func (s *multiTrack) InjectTimeEvents(p *event.Performance, g *grid.TimeGrid) ([]Event, []vocab.Diagnostic) {
	var out []Event
	var diags []vocab.Diagnostic

	for ti, tr := range p.Tracks {
		sub := &event.Performance{
			Resolution: p.Resolution,
			Tracks:     []event.Track{tr},
		}
		if ti == 0 {
			sub.Tempos = p.Tempos
			sub.TimeSignatures = p.TimeSignatures
		}
		trackEvents, trackDiags := s.inner.InjectTimeEvents(sub, g)
		diags = append(diags, trackDiags...)

		out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyTrack, Value: vocab.TrackStart}},
			Event{Tok: vocab.Token{Family: vocab.FamilyProgram, Value: tr.Program}})
		out = append(out, trackEvents...)
		out = append(out, Event{Tok: vocab.Token{Family: vocab.FamilyTrack, Value: vocab.TrackEnd}})
	}
	return out, diags
}

func (s *multiTrack) TokensFromEvents(events []Event, voc *vocab.Vocabulary) Tokens {
	return Tokens{IDs: idsFromEvents(events, voc)}
}

func (s *multiTrack) TokensToEvents(toks Tokens, voc *vocab.Vocabulary) (*event.Performance, []vocab.Diagnostic) {
	innerVoc := s.inner.BuildVocabulary()
	out := &event.Performance{Resolution: s.cfg.Resolution}
	var diags []vocab.Diagnostic

	var segment []int
	segmentStart := 0
	program := 0
	inTrack := false

	flush := func() {
		if !inTrack {
			return
		}
		ids := make([]int, 0, len(segment))
		for off, id := range segment {
			tok, ok := voc.TokenAt(id)
			if !ok {
				diags = append(diags, vocab.Diagnostic{
					Kind: vocab.DiagInvalidTokenID, Index: segmentStart + off,
					Message: fmt.Sprintf("id %d outside vocabulary of %d", id, voc.Len()),
				})
				continue
			}
			if tok.Family == vocab.FamilyProgram && len(ids) == 0 {
				program = tok.Value
				continue
			}
			if innerID, ok := innerVoc.ID(tok); ok {
				ids = append(ids, innerID)
			}
		}
		sub, subDiags := s.inner.TokensToEvents(Tokens{IDs: ids}, innerVoc)
		for _, d := range subDiags {
			d.Index += segmentStart
			diags = append(diags, d)
		}
		out.Tracks = append(out.Tracks, event.Track{Program: program, Notes: sub.Tracks[0].Notes})
		if len(out.Tempos) == 0 {
			out.Tempos = sub.Tempos
		}
		if len(out.TimeSignatures) == 0 {
			out.TimeSignatures = sub.TimeSignatures
		}
		segment, program, inTrack = nil, 0, false
	}

	for i, id := range toks.IDs {
		tok, ok := voc.TokenAt(id)
		if ok && tok.Family == vocab.FamilyTrack {
			switch tok.Value {
			case vocab.TrackStart:
				flush()
				inTrack = true
				segment = nil
				segmentStart = i + 1
			case vocab.TrackEnd:
				flush()
			}
			continue
		}
		if inTrack {
			segment = append(segment, id)
		}
	}
	flush()

	if len(out.Tracks) == 0 {
		out.Tracks = []event.Track{{Program: 0}}
	}
	out.Normalize()
	return out, diags
}
