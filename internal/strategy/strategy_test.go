package strategy

import (
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "bar-position", want: BarPosition},
		{in: "remi", want: BarPosition},
		{in: "time-shift", want: TimeShift},
		{in: "midi-like", want: TimeShift},
		{in: "structured", want: Structured},
		{in: "compound-word", want: CompoundWord},
		{in: "cpword", want: CompoundWord},
		{in: "octuple", want: Octuple},
		{in: "multi-track", want: MultiTrack},
		{in: "mmm", want: MultiTrack},
		{in: "polka", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseKind(%q) = %v; want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKind(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %v; want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero resolution", func(c *Config) { c.Resolution = 0 }},
		{"zero positions per bar", func(c *Config) { c.PositionsPerBar = 0 }},
		{"inverted pitch range", func(c *Config) { c.PitchMin = 80; c.PitchMax = 60 }},
		{"pitch above midi range", func(c *Config) { c.PitchMax = 200 }},
		{"zero velocity bins", func(c *Config) { c.VelocityBins = 0 }},
		{"zero duration steps", func(c *Config) { c.DurationSteps = 0 }},
		{"zero max bar embedding", func(c *Config) { c.MaxBarEmbedding = 0 }},
		{"tempos enabled without bins", func(c *Config) { c.TempoBins = 0 }},
		{"signatures enabled with empty set", func(c *Config) { c.TimeSignatures = nil }},
		{"zero denominator signature", func(c *Config) { c.TimeSignatures = []TimeSig{{4, 0}} }},
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v; want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfigResolve(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StrategyName = "midi-like"
	cfg.PitchPolicyName = ""
	cfg.VelocityPolicyName = "drop"
	if err := cfg.Resolve(); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Strategy != TimeShift || cfg.StrategyName != "time-shift" {
		t.Errorf("strategy = %v %q; want TimeShift \"time-shift\"", cfg.Strategy, cfg.StrategyName)
	}
	if cfg.PitchPolicyName != "drop" {
		t.Errorf("empty pitch policy resolved to %q; want \"drop\"", cfg.PitchPolicyName)
	}
	if cfg.VelocityPolicyName != "drop" {
		t.Errorf("velocity policy = %q; want \"drop\"", cfg.VelocityPolicyName)
	}

	cfg = DefaultConfig()
	cfg.DurationPolicyName = "truncate"
	if err := cfg.Resolve(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Resolve() with bad policy = %v; want ErrInvalidConfig", err)
	}
}

func TestNew_DisablesUnrepresentableFeatures(t *testing.T) {
	tests := []struct {
		kind          Kind
		wantTempo     bool
		wantSignature bool
	}{
		{BarPosition, true, true},
		{TimeShift, true, true},
		{Structured, false, false},
		{CompoundWord, true, false},
		{Octuple, true, false},
		{MultiTrack, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Strategy = tt.kind
			s := mustStrategy(t, cfg)
			eff := s.Config()
			if eff.UseTempos != tt.wantTempo || eff.UseTimeSignatures != tt.wantSignature {
				t.Errorf("UseTempos = %v, UseTimeSignatures = %v; want %v, %v",
					eff.UseTempos, eff.UseTimeSignatures, tt.wantTempo, tt.wantSignature)
			}
		})
	}
}
