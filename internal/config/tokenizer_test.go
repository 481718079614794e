package config

import (
	"testing"

	"github.com/Natooz/MIDITok/internal/strategy"
	"github.com/Natooz/MIDITok/internal/vocab"
)

func TestParseTimeSignature(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    strategy.TimeSig
		wantErr bool
	}{
		{"common time", "4/4", strategy.TimeSig{Numerator: 4, Denominator: 4}, false},
		{"compound meter", "12/8", strategy.TimeSig{Numerator: 12, Denominator: 8}, false},
		{"surrounding spaces", " 3/4 ", strategy.TimeSig{Numerator: 3, Denominator: 4}, false},
		{"missing slash", "44", strategy.TimeSig{}, true},
		{"non-numeric numerator", "x/4", strategy.TimeSig{}, true},
		{"zero denominator", "4/0", strategy.TimeSig{}, true},
		{"negative numerator", "-3/4", strategy.TimeSig{}, true},
		{"empty", "", strategy.TimeSig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeSignature(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseTimeSignature(%q) = %v; want error", tt.input, got)
				}

				return
			}

			if err != nil {
				t.Errorf("ParseTimeSignature(%q) unexpected error: %v", tt.input, err)
				return
			}

			if got != tt.want {
				t.Errorf("ParseTimeSignature(%q) = %v; want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestToEngine(t *testing.T) {
	cfg := DefaultConfig().Tokenizer
	cfg.Strategy = "mmm"
	cfg.VelocityBins = 64
	cfg.PitchPolicy = "clip"

	engine, err := cfg.ToEngine()
	if err != nil {
		t.Fatalf("ToEngine() error = %v", err)
	}

	if engine.Strategy != strategy.MultiTrack {
		t.Errorf("Strategy = %v; want MultiTrack", engine.Strategy)
	}

	if engine.StrategyName != "multi-track" {
		t.Errorf("StrategyName = %q; want %q", engine.StrategyName, "multi-track")
	}

	if engine.VelocityBins != 64 {
		t.Errorf("VelocityBins = %d; want 64", engine.VelocityBins)
	}

	if engine.PitchPolicy != vocab.PolicyClip {
		t.Errorf("PitchPolicy = %v; want PolicyClip", engine.PitchPolicy)
	}

	if len(engine.TimeSignatures) != 6 {
		t.Fatalf("len(TimeSignatures) = %d; want 6", len(engine.TimeSignatures))
	}

	if engine.TimeSignatures[0] != (strategy.TimeSig{Numerator: 4, Denominator: 4}) {
		t.Errorf("TimeSignatures[0] = %v; want 4/4", engine.TimeSignatures[0])
	}
}

func TestToEngine_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TokenizerConfig)
	}{
		{"unknown strategy", func(c *TokenizerConfig) { c.Strategy = "nonsense" }},
		{"unknown policy", func(c *TokenizerConfig) { c.DurationPolicy = "truncate" }},
		{"bad time signature", func(c *TokenizerConfig) { c.TimeSignatures = []string{"4-4"} }},
		{"zero resolution", func(c *TokenizerConfig) { c.Resolution = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig().Tokenizer
			tt.mutate(&cfg)
			if _, err := cfg.ToEngine(); err == nil {
				t.Error("ToEngine() succeeded; want error")
			}
		})
	}
}
