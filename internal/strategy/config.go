package strategy

import (
	"errors"
	"fmt"

	"github.com/Natooz/MIDITok/internal/vocab"
)

// ErrInvalidConfig reports an unusable tokenizer configuration. It is a
// hard failure, surfaced before any encode or decode work starts.
var ErrInvalidConfig = errors.New("invalid tokenizer config")

// TimeSig is one allowed meter in a configuration.
type TimeSig struct {
	Numerator   int `json:"numerator" mapstructure:"numerator"`
	Denominator int `json:"denominator" mapstructure:"denominator"`
}

func (t TimeSig) String() string { return fmt.Sprintf("%d/%d", t.Numerator, t.Denominator) }

// Config parameterizes one tokenizer: the grid, the family bounds and
// bin counts, the out-of-range policies, and the special tokens to
// reserve. It is persisted alongside token sequences so a decode can
// rebuild the identical vocabulary.
type Config struct {
	Strategy        Kind   `json:"-"`
	StrategyName    string `json:"strategy" mapstructure:"strategy"`
	Resolution      int    `json:"resolution" mapstructure:"resolution"`
	PositionsPerBar int    `json:"positions_per_bar" mapstructure:"positions_per_bar"`

	PitchMin int `json:"pitch_min" mapstructure:"pitch_min"`
	PitchMax int `json:"pitch_max" mapstructure:"pitch_max"`

	VelocityMin  int `json:"velocity_min" mapstructure:"velocity_min"`
	VelocityMax  int `json:"velocity_max" mapstructure:"velocity_max"`
	VelocityBins int `json:"velocity_bins" mapstructure:"velocity_bins"`

	// DurationSteps is the longest representable duration or time shift,
	// in grid steps. DurationBins values are spread over [1, DurationSteps].
	DurationSteps int `json:"duration_steps" mapstructure:"duration_steps"`
	DurationBins  int `json:"duration_bins" mapstructure:"duration_bins"`

	// MaxBarEmbedding bounds the absolute bar index of compound
	// strategies that carry one (Octuple).
	MaxBarEmbedding int `json:"max_bar_embedding" mapstructure:"max_bar_embedding"`

	PitchPolicy    vocab.Policy `json:"-"`
	VelocityPolicy vocab.Policy `json:"-"`
	DurationPolicy vocab.Policy `json:"-"`
	// PolicyNames are the serialized forms of the three policies.
	PitchPolicyName    string `json:"pitch_policy" mapstructure:"pitch_policy"`
	VelocityPolicyName string `json:"velocity_policy" mapstructure:"velocity_policy"`
	DurationPolicyName string `json:"duration_policy" mapstructure:"duration_policy"`

	UseTempos bool    `json:"use_tempos" mapstructure:"use_tempos"`
	TempoMin  float64 `json:"tempo_min" mapstructure:"tempo_min"`
	TempoMax  float64 `json:"tempo_max" mapstructure:"tempo_max"`
	TempoBins int     `json:"tempo_bins" mapstructure:"tempo_bins"`

	UseTimeSignatures bool      `json:"use_time_signatures" mapstructure:"use_time_signatures"`
	TimeSignatures    []TimeSig `json:"time_signatures" mapstructure:"time_signatures"`

	// UsePrograms merges all tracks into one stream with Program tokens
	// identifying the instrument of each note.
	UsePrograms bool `json:"use_programs" mapstructure:"use_programs"`

	Special vocab.SpecialTokens `json:"special_tokens" mapstructure:"special_tokens"`

	// Strict upgrades transition violations during decode from
	// diagnostics to hard failures.
	Strict bool `json:"-" mapstructure:"strict"`
}

// DefaultConfig returns the documented defaults: piano-range pitches
// dropped when out of range, velocities and durations clipped.
func DefaultConfig() Config {
	return Config{
		Strategy:           BarPosition,
		StrategyName:       BarPosition.String(),
		Resolution:         480,
		PositionsPerBar:    16,
		PitchMin:           21,
		PitchMax:           108,
		VelocityMin:        1,
		VelocityMax:        127,
		VelocityBins:       32,
		DurationSteps:      64,
		DurationBins:       64,
		MaxBarEmbedding:    256,
		PitchPolicy:        vocab.PolicyDrop,
		VelocityPolicy:     vocab.PolicyClip,
		DurationPolicy:     vocab.PolicyClip,
		PitchPolicyName:    vocab.PolicyDrop.String(),
		VelocityPolicyName: vocab.PolicyClip.String(),
		DurationPolicyName: vocab.PolicyClip.String(),
		UseTempos:          true,
		TempoMin:           40,
		TempoMax:           250,
		TempoBins:          32,
		UseTimeSignatures:  true,
		TimeSignatures: []TimeSig{
			{4, 4}, {2, 4}, {3, 4}, {6, 8}, {2, 2}, {12, 8},
		},
		UsePrograms: false,
		Special:     vocab.SpecialTokens{Pad: true, SOS: true, EOS: true, Unk: true},
	}
}

// Resolve fills the derived fields from their serialized names. It is
// called after unmarshalling a persisted or flag-assembled config.
func (c *Config) Resolve() error {
	var err error
	if c.StrategyName != "" {
		if c.Strategy, err = ParseKind(c.StrategyName); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	c.StrategyName = c.Strategy.String()
	if c.PitchPolicy, err = vocab.ParsePolicy(c.PitchPolicyName); err != nil {
		return fmt.Errorf("%w: pitch: %v", ErrInvalidConfig, err)
	}
	if c.VelocityPolicy, err = vocab.ParsePolicy(c.VelocityPolicyName); err != nil {
		return fmt.Errorf("%w: velocity: %v", ErrInvalidConfig, err)
	}
	if c.DurationPolicy, err = vocab.ParsePolicy(c.DurationPolicyName); err != nil {
		return fmt.Errorf("%w: duration: %v", ErrInvalidConfig, err)
	}
	if c.PitchPolicyName == "" {
		c.PitchPolicy = vocab.PolicyDrop
	}
	c.PitchPolicyName = c.PitchPolicy.String()
	c.VelocityPolicyName = c.VelocityPolicy.String()
	c.DurationPolicyName = c.DurationPolicy.String()
	return nil
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	switch {
	case c.Resolution <= 0:
		return fmt.Errorf("%w: resolution %d", ErrInvalidConfig, c.Resolution)
	case c.PositionsPerBar <= 0:
		return fmt.Errorf("%w: positions per bar %d", ErrInvalidConfig, c.PositionsPerBar)
	case c.PitchMin < 0 || c.PitchMax > 127 || c.PitchMin > c.PitchMax:
		return fmt.Errorf("%w: pitch range [%d,%d]", ErrInvalidConfig, c.PitchMin, c.PitchMax)
	case c.VelocityMin < 0 || c.VelocityMax > 127 || c.VelocityMin > c.VelocityMax:
		return fmt.Errorf("%w: velocity range [%d,%d]", ErrInvalidConfig, c.VelocityMin, c.VelocityMax)
	case c.VelocityBins <= 0:
		return fmt.Errorf("%w: velocity bins %d", ErrInvalidConfig, c.VelocityBins)
	case c.DurationSteps <= 0 || c.DurationBins <= 0:
		return fmt.Errorf("%w: duration steps %d bins %d", ErrInvalidConfig, c.DurationSteps, c.DurationBins)
	case c.MaxBarEmbedding <= 0:
		return fmt.Errorf("%w: max bar embedding %d", ErrInvalidConfig, c.MaxBarEmbedding)
	}
	if c.UseTempos && (c.TempoBins <= 0 || c.TempoMin <= 0 || c.TempoMax < c.TempoMin) {
		return fmt.Errorf("%w: tempo range [%g,%g] bins %d", ErrInvalidConfig, c.TempoMin, c.TempoMax, c.TempoBins)
	}
	if c.UseTimeSignatures && len(c.TimeSignatures) == 0 {
		return fmt.Errorf("%w: empty time signature set", ErrInvalidConfig)
	}
	for _, ts := range c.TimeSignatures {
		if ts.Numerator <= 0 || ts.Denominator <= 0 {
			return fmt.Errorf("%w: time signature %s", ErrInvalidConfig, ts)
		}
	}
	return nil
}
