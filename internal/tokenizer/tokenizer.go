// Package tokenizer is the engine facade: it owns the configuration,
// builds the strategy's vocabulary and transition graph once, and runs
// the encode and decode paths. Encode and decode are pure functions of
// (input, config, cached vocabulary); a Tokenizer is safe for
// concurrent use once constructed.
package tokenizer

import (
	"errors"
	"fmt"

	"github.com/Natooz/MIDITok/internal/event"
	"github.com/Natooz/MIDITok/internal/graph"
	"github.com/Natooz/MIDITok/internal/grid"
	"github.com/Natooz/MIDITok/internal/strategy"
	"github.com/Natooz/MIDITok/internal/vocab"
)

// Config re-exports the strategy configuration; the facade is the
// package callers interact with.
type Config = strategy.Config

// Diagnostic re-exports the recoverable-anomaly record.
type Diagnostic = vocab.Diagnostic

// DefaultConfig returns the documented default configuration.
func DefaultConfig() Config { return strategy.DefaultConfig() }

// Hard failure sentinels. Per-token anomalies are diagnostics instead.
var (
	ErrMalformedPerformance = event.ErrMalformed
	ErrInvalidConfig        = strategy.ErrInvalidConfig
	// ErrTransitionViolation surfaces an illegal adjacency as a hard
	// failure when the config requests strict decoding.
	ErrTransitionViolation = errors.New("transition violation")
)

// Tokenizer binds a configuration to its strategy, vocabulary and
// transition graph. Vocabulary and graph are built once in New and
// treated as immutable afterwards.
type Tokenizer struct {
	cfg   Config
	strat strategy.Strategy
	voc   *vocab.Vocabulary
	graph *graph.TransitionGraph
}

// New validates the config and builds the tokenizer. The returned
// value is ready for concurrent Encode/Decode calls.
func New(cfg Config) (*Tokenizer, error) {
	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	strat, err := strategy.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Tokenizer{
		cfg:   strat.Config(),
		strat: strat,
		voc:   strat.BuildVocabulary(),
		graph: strat.BuildTransitionGraph(),
	}, nil
}

// Config returns the effective configuration, features the strategy
// cannot represent forced off.
func (t *Tokenizer) Config() Config { return t.cfg }

// Vocabulary returns the cached vocabulary. Read only.
func (t *Tokenizer) Vocabulary() *vocab.Vocabulary { return t.voc }

// Graph returns the cached transition graph. Read only.
func (t *Tokenizer) Graph() *graph.TransitionGraph { return t.graph }

// VocabSize returns the number of ids in the vocabulary.
func (t *Tokenizer) VocabSize() int { return t.voc.Len() }

// Encode converts a performance to a token sequence. The input is not
// mutated. Structural problems fail with ErrMalformedPerformance;
// per-note anomalies are absorbed per the configured policies and
// returned as diagnostics alongside the sequence.
func (t *Tokenizer) Encode(p *event.Performance) (Sequence, []Diagnostic, error) {
	perf := p.Clone()
	perf.Normalize()
	if err := perf.Validate(); err != nil {
		return Sequence{}, nil, err
	}
	if perf.Resolution != t.cfg.Resolution {
		return Sequence{}, nil, fmt.Errorf("%w: performance resolution %d, tokenizer configured for %d",
			ErrMalformedPerformance, perf.Resolution, t.cfg.Resolution)
	}

	sigs := perf.TimeSignatures
	if !t.cfg.UseTimeSignatures {
		sigs = nil
	}
	g, err := grid.New(t.cfg.Resolution, t.cfg.PositionsPerBar, sigs)
	if err != nil {
		return Sequence{}, nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	events, diags := t.strat.InjectTimeEvents(perf, g)
	toks := t.strat.TokensFromEvents(events, t.voc)
	return Sequence{Config: t.cfg, IDs: toks.IDs, Words: toks.Words}, diags, nil
}

// Decode reconstructs a performance from a token sequence. Malformed
// tokens are skipped with a diagnostic and decode resynchronizes on the
// next recognizable one; in strict mode the first illegal adjacency
// fails the call with ErrTransitionViolation instead.
func (t *Tokenizer) Decode(seq Sequence) (*event.Performance, []Diagnostic, error) {
	toks := seq.Tokens()
	if t.cfg.Strict {
		if ok, idx := t.Validate(toks); !ok {
			return nil, nil, fmt.Errorf("%w at index %d", ErrTransitionViolation, idx)
		}
	}
	perf, diags := t.strat.TokensToEvents(toks, t.voc)
	return perf, diags, nil
}

// Validate checks the sequence's family adjacencies against the cached
// transition graph. It returns true, or false plus the index of the
// first offending token.
func (t *Tokenizer) Validate(toks strategy.Tokens) (bool, int) {
	return t.graph.Validate(strategy.SequenceFamilies(toks, t.voc))
}
