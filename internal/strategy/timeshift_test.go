package strategy

import (
	"testing"

	"github.com/Natooz/MIDITok/internal/event"
	"github.com/Natooz/MIDITok/internal/vocab"
)

func TestTimeShift_EncodeSingleNote(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = TimeShift
	s := mustStrategy(t, cfg)
	g := mustTestGrid(t, cfg, nil)

	p := singleNotePerf(60, 80, 0, 480)
	events, diags := s.InjectTimeEvents(p, g)
	if len(diags) != 0 {
		t.Fatalf("diagnostics = %v; want none", diags)
	}

	checkFamilies(t, events, []vocab.Family{
		vocab.FamilyNoteOn, vocab.FamilyVelocity, vocab.FamilyTimeShift, vocab.FamilyNoteOff,
	})
	if events[0].Tok.Value != 60 || events[3].Tok.Value != 60 {
		t.Errorf("on/off pitches = %d, %d; want 60, 60", events[0].Tok.Value, events[3].Tok.Value)
	}
	if events[2].Tok.Value != 4 {
		t.Errorf("shift = %d steps; want 4", events[2].Tok.Value)
	}
}

func TestTimeShift_ShiftDecomposition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = TimeShift
	s := mustStrategy(t, cfg)
	g := mustTestGrid(t, cfg, nil)

	// A 100-step silence cannot be covered by one token; the largest bin
	// is 64 steps, so the gap decomposes greedily into 64 + 36.
	p := &event.Performance{
		Resolution: 480,
		Tracks: []event.Track{{Notes: []event.Note{
			{Pitch: 60, Velocity: 80, Start: 0, End: 120},
			{Pitch: 62, Velocity: 80, Start: 12120, End: 12240},
		}}},
	}
	events, _ := s.InjectTimeEvents(p, g)

	var shifts []int
	for _, ev := range events {
		if ev.Tok.Family == vocab.FamilyTimeShift {
			shifts = append(shifts, ev.Tok.Value)
		}
	}
	want := []int{1, 64, 36, 1}
	if len(shifts) != len(want) {
		t.Fatalf("shifts = %v; want %v", shifts, want)
	}
	for i := range want {
		if shifts[i] != want[i] {
			t.Fatalf("shifts = %v; want %v", shifts, want)
		}
	}
}

func TestTimeShift_RoundTrip(t *testing.T) {
	cfg := exactConfig(TimeShift)
	s := mustStrategy(t, cfg)
	g := mustTestGrid(t, cfg, nil)

	p := &event.Performance{
		Resolution: 480,
		Tracks: []event.Track{{Notes: []event.Note{
			{Pitch: 60, Velocity: 80, Start: 0, End: 480},
			{Pitch: 62, Velocity: 90, Start: 960, End: 1080},
			{Pitch: 72, Velocity: 64, Start: 1080, End: 2040},
		}}},
	}

	events, diags := s.InjectTimeEvents(p, g)
	if len(diags) != 0 {
		t.Fatalf("encode diagnostics = %v; want none", diags)
	}
	voc := s.BuildVocabulary()
	got, decDiags := s.TokensToEvents(s.TokensFromEvents(events, voc), voc)
	if len(decDiags) != 0 {
		t.Fatalf("decode diagnostics = %v; want none", decDiags)
	}
	checkNotesEqual(t, got.Tracks[0].Notes, p.Tracks[0].Notes)
}

func TestTimeShift_OverlapTrimmed(t *testing.T) {
	cfg := exactConfig(TimeShift)
	s := mustStrategy(t, cfg)
	g := mustTestGrid(t, cfg, nil)

	// The same pitch restruck mid-note: the first note is shortened to the
	// restrike so off matching stays first in, first out.
	p := &event.Performance{
		Resolution: 480,
		Tracks: []event.Track{{Notes: []event.Note{
			{Pitch: 60, Velocity: 80, Start: 0, End: 960},
			{Pitch: 60, Velocity: 90, Start: 480, End: 960},
		}}},
	}

	events, _ := s.InjectTimeEvents(p, g)
	voc := s.BuildVocabulary()
	got, diags := s.TokensToEvents(s.TokensFromEvents(events, voc), voc)
	if len(diags) != 0 {
		t.Fatalf("decode diagnostics = %v; want none", diags)
	}
	checkNotesEqual(t, got.Tracks[0].Notes, []event.Note{
		{Pitch: 60, Velocity: 80, Start: 0, End: 480},
		{Pitch: 60, Velocity: 90, Start: 480, End: 960},
	})
}

func TestTimeShift_ZeroLengthNoteNotEmitted(t *testing.T) {
	cfg := exactConfig(TimeShift)
	s := mustStrategy(t, cfg)
	voc := s.BuildVocabulary()

	// An off with no time advanced since its on would be a zero-length
	// note; decode swallows it.
	toks := Tokens{IDs: []int{
		voc.MustID(vocab.Token{Family: vocab.FamilyNoteOn, Value: 60}),
		voc.MustID(vocab.Token{Family: vocab.FamilyVelocity, Value: 80}),
		voc.MustID(vocab.Token{Family: vocab.FamilyNoteOff, Value: 60}),
	}}
	got, diags := s.TokensToEvents(toks, voc)
	if len(diags) != 0 {
		t.Fatalf("diagnostics = %v; want none", diags)
	}
	if n := got.NoteCount(); n != 0 {
		t.Fatalf("decoded %d notes; want 0", n)
	}
}
