// Package strategy implements the tokenization strategies sharing the
// engine: event preparation, per-strategy vocabulary and transition
// graph construction, and the encode/decode pair mapping prepared events
// to token ids and back.
//
// Strategies form a closed set of variants behind one contract. Simple
// variants emit a flat id sequence; compound variants emit fixed-width
// words, one id per family slot, with an ignore sentinel for absent
// slots.
package strategy

import (
	"fmt"

	"github.com/Natooz/MIDITok/internal/event"
	"github.com/Natooz/MIDITok/internal/graph"
	"github.com/Natooz/MIDITok/internal/grid"
	"github.com/Natooz/MIDITok/internal/vocab"
)

// Kind selects a tokenization strategy.
type Kind int

const (
	// BarPosition marks time with explicit Bar and Position tokens
	// (REMI-style).
	BarPosition Kind = iota
	// TimeShift moves time with relative shift tokens between NoteOn and
	// NoteOff events (MIDI-like).
	TimeShift
	// Structured repeats a rigid Pitch, Velocity, Duration, TimeShift
	// cycle with no bar markers.
	Structured
	// CompoundWord groups one token per family into a fixed-width word
	// per timestep.
	CompoundWord
	// Octuple encodes each note as one word carrying pitch, velocity,
	// duration, program, position and absolute bar index.
	Octuple
	// MultiTrack tokenizes tracks independently with BarPosition and
	// concatenates them between track boundary tokens (MMM-style).
	MultiTrack
)

var kindNames = map[Kind]string{
	BarPosition:  "bar-position",
	TimeShift:    "time-shift",
	Structured:   "structured",
	CompoundWord: "compound-word",
	Octuple:      "octuple",
	MultiTrack:   "multi-track",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts a config string to a Kind. The literature names of
// the variants are accepted as aliases.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "bar-position", "remi":
		return BarPosition, nil
	case "time-shift", "midi-like", "midilike":
		return TimeShift, nil
	case "structured":
		return Structured, nil
	case "compound-word", "cpword":
		return CompoundWord, nil
	case "octuple":
		return Octuple, nil
	case "multi-track", "mmm":
		return MultiTrack, nil
	default:
		return BarPosition, fmt.Errorf("unknown strategy %q", s)
	}
}

// Tokens is the output of one encode pass: a flat id sequence for simple
// strategies, or fixed-width words for compound ones. Exactly one of the
// two fields is populated.
type Tokens struct {
	IDs   []int
	Words [][]int
}

// Len returns the number of steps in the sequence.
func (t Tokens) Len() int {
	if t.Words != nil {
		return len(t.Words)
	}
	return len(t.IDs)
}

// Strategy is the contract every variant implements. Vocabulary and
// graph construction are deterministic in the config; encode and decode
// are pure given their inputs and may run concurrently against the same
// read-only vocabulary.
type Strategy interface {
	Kind() Kind
	// Compound reports whether the strategy emits words rather than a
	// flat id stream.
	Compound() bool
	// Config returns the effective configuration, with the features the
	// strategy cannot represent forced off.
	Config() Config
	// BuildVocabulary enumerates the strategy's token families in a
	// fixed, documented order.
	BuildVocabulary() *vocab.Vocabulary
	// BuildTransitionGraph declares the legal family adjacencies of the
	// strategy's output.
	BuildTransitionGraph() *graph.TransitionGraph
	// InjectTimeEvents turns a normalized performance into the ordered
	// pre-token event sequence, inserting the strategy's time markers.
	InjectTimeEvents(p *event.Performance, g *grid.TimeGrid) ([]Event, []vocab.Diagnostic)
	// TokensFromEvents maps pre-token events to concrete ids.
	TokensFromEvents(events []Event, voc *vocab.Vocabulary) Tokens
	// TokensToEvents reconstructs a performance from ids, skipping
	// malformed tokens and recording a diagnostic for each.
	TokensToEvents(toks Tokens, voc *vocab.Vocabulary) (*event.Performance, []vocab.Diagnostic)
}

// Event is one pre-token event: a token plus the tick it represents.
// Compound strategies group consecutive events sharing WordIndex into
// one word.
type Event struct {
	Tok       vocab.Token
	Tick      int64
	WordIndex int
}

// New returns the strategy for cfg.Strategy. The config must already be
// validated.
func New(cfg Config) (Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Strategy {
	case Structured:
		// The rigid cycle leaves no slot for global change tokens.
		cfg.UseTempos = false
		cfg.UseTimeSignatures = false
	case CompoundWord, Octuple:
		// Word timelines assume a constant bar length.
		cfg.UseTimeSignatures = false
	}
	b := newBase(cfg)
	switch cfg.Strategy {
	case BarPosition:
		return &barPosition{base: b}, nil
	case TimeShift:
		return &timeShift{base: b}, nil
	case Structured:
		return &structured{base: b}, nil
	case CompoundWord:
		return &compoundWord{base: b}, nil
	case Octuple:
		return &octuple{base: b}, nil
	case MultiTrack:
		return newMultiTrack(cfg), nil
	default:
		return nil, fmt.Errorf("unknown strategy kind %d", cfg.Strategy)
	}
}
