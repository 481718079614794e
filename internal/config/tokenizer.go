package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Natooz/MIDITok/internal/strategy"
	"github.com/Natooz/MIDITok/internal/tokenizer"
)

// ParseTimeSignature parses a "num/den" string such as "3/4".
func ParseTimeSignature(raw string) (strategy.TimeSig, error) {
	num, den, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok {
		return strategy.TimeSig{}, fmt.Errorf("invalid time signature %q (expected num/den)", raw)
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return strategy.TimeSig{}, fmt.Errorf("invalid time signature %q: %v", raw, err)
	}
	d, err := strconv.Atoi(strings.TrimSpace(den))
	if err != nil {
		return strategy.TimeSig{}, fmt.Errorf("invalid time signature %q: %v", raw, err)
	}
	if n <= 0 || d <= 0 {
		return strategy.TimeSig{}, fmt.Errorf("invalid time signature %q", raw)
	}
	return strategy.TimeSig{Numerator: n, Denominator: d}, nil
}

// ToEngine converts the loaded settings to a resolved engine
// configuration, parsing the strategy, policy, and time signature
// strings along the way.
func (c TokenizerConfig) ToEngine() (tokenizer.Config, error) {
	cfg := tokenizer.Config{
		StrategyName:       c.Strategy,
		Resolution:         c.Resolution,
		PositionsPerBar:    c.PositionsPerBar,
		PitchMin:           c.PitchMin,
		PitchMax:           c.PitchMax,
		VelocityMin:        c.VelocityMin,
		VelocityMax:        c.VelocityMax,
		VelocityBins:       c.VelocityBins,
		DurationSteps:      c.DurationSteps,
		DurationBins:       c.DurationBins,
		MaxBarEmbedding:    c.MaxBarEmbedding,
		PitchPolicyName:    c.PitchPolicy,
		VelocityPolicyName: c.VelocityPolicy,
		DurationPolicyName: c.DurationPolicy,
		UseTempos:          c.UseTempos,
		TempoMin:           c.TempoMin,
		TempoMax:           c.TempoMax,
		TempoBins:          c.TempoBins,
		UseTimeSignatures:  c.UseTimeSignatures,
		UsePrograms:        c.UsePrograms,
		Special:            c.Special,
		Strict:             c.Strict,
	}
	for _, raw := range c.TimeSignatures {
		ts, err := ParseTimeSignature(raw)
		if err != nil {
			return tokenizer.Config{}, err
		}
		cfg.TimeSignatures = append(cfg.TimeSignatures, ts)
	}
	if err := cfg.Resolve(); err != nil {
		return tokenizer.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return tokenizer.Config{}, err
	}
	return cfg, nil
}
