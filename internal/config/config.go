package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Natooz/MIDITok/internal/vocab"
)

type Config struct {
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Server    ServerConfig    `mapstructure:"server"`
	LogLevel  string          `mapstructure:"log_level"`
}

// TokenizerConfig is the file/flag/env facing form of the engine
// configuration. Strategy, policies, and time signatures stay strings
// here; ToEngine parses them.
type TokenizerConfig struct {
	Strategy        string `mapstructure:"strategy"`
	Resolution      int    `mapstructure:"resolution"`
	PositionsPerBar int    `mapstructure:"positions_per_bar"`

	PitchMin int `mapstructure:"pitch_min"`
	PitchMax int `mapstructure:"pitch_max"`

	VelocityMin  int `mapstructure:"velocity_min"`
	VelocityMax  int `mapstructure:"velocity_max"`
	VelocityBins int `mapstructure:"velocity_bins"`

	DurationSteps int `mapstructure:"duration_steps"`
	DurationBins  int `mapstructure:"duration_bins"`

	MaxBarEmbedding int `mapstructure:"max_bar_embedding"`

	PitchPolicy    string `mapstructure:"pitch_policy"`
	VelocityPolicy string `mapstructure:"velocity_policy"`
	DurationPolicy string `mapstructure:"duration_policy"`

	UseTempos bool    `mapstructure:"use_tempos"`
	TempoMin  float64 `mapstructure:"tempo_min"`
	TempoMax  float64 `mapstructure:"tempo_max"`
	TempoBins int     `mapstructure:"tempo_bins"`

	UseTimeSignatures bool     `mapstructure:"use_time_signatures"`
	TimeSignatures    []string `mapstructure:"time_signatures"`

	UsePrograms bool `mapstructure:"use_programs"`

	Special vocab.SpecialTokens `mapstructure:"special_tokens"`

	Strict bool `mapstructure:"strict"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Tokenizer: TokenizerConfig{
			Strategy:          "bar-position",
			Resolution:        480,
			PositionsPerBar:   16,
			PitchMin:          21,
			PitchMax:          108,
			VelocityMin:       1,
			VelocityMax:       127,
			VelocityBins:      32,
			DurationSteps:     64,
			DurationBins:      64,
			MaxBarEmbedding:   256,
			PitchPolicy:       "drop",
			VelocityPolicy:    "clip",
			DurationPolicy:    "clip",
			UseTempos:         true,
			TempoMin:          40,
			TempoMax:          250,
			TempoBins:         32,
			UseTimeSignatures: true,
			TimeSignatures:    []string{"4/4", "2/4", "3/4", "6/8", "2/2", "12/8"},
			UsePrograms:       false,
			Special:           vocab.SpecialTokens{Pad: true, SOS: true, EOS: true, Unk: true},
			Strict:            false,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         2,
			ShutdownTimeout: 30,
			MaxBodyBytes:    4 << 20,
			RequestTimeout:  60,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("strategy", defaults.Tokenizer.Strategy, "Tokenization strategy (bar-position|time-shift|structured|compound-word|octuple|multi-track)")
	fs.Int("resolution", defaults.Tokenizer.Resolution, "Ticks per quarter note of the time grid")
	fs.Int("positions-per-bar", defaults.Tokenizer.PositionsPerBar, "Grid positions per 4/4 bar")
	fs.Int("pitch-min", defaults.Tokenizer.PitchMin, "Lowest representable MIDI pitch")
	fs.Int("pitch-max", defaults.Tokenizer.PitchMax, "Highest representable MIDI pitch")
	fs.Int("velocity-bins", defaults.Tokenizer.VelocityBins, "Number of velocity bins")
	fs.Int("duration-steps", defaults.Tokenizer.DurationSteps, "Longest duration or time shift, in grid steps")
	fs.Int("duration-bins", defaults.Tokenizer.DurationBins, "Number of duration bins")
	fs.String("pitch-policy", defaults.Tokenizer.PitchPolicy, "Out-of-range pitch policy (clip|drop)")
	fs.String("velocity-policy", defaults.Tokenizer.VelocityPolicy, "Out-of-range velocity policy (clip|drop)")
	fs.String("duration-policy", defaults.Tokenizer.DurationPolicy, "Out-of-range duration policy (clip|drop)")
	fs.Bool("use-tempos", defaults.Tokenizer.UseTempos, "Emit tempo tokens")
	fs.Int("tempo-bins", defaults.Tokenizer.TempoBins, "Number of tempo bins")
	fs.Bool("use-time-signatures", defaults.Tokenizer.UseTimeSignatures, "Emit time signature tokens")
	fs.StringSlice("time-signatures", defaults.Tokenizer.TimeSignatures, "Allowed time signatures (num/den)")
	fs.Bool("use-programs", defaults.Tokenizer.UsePrograms, "Emit program tokens and merge tracks")
	fs.Bool("strict", defaults.Tokenizer.Strict, "Fail decode on transition violations")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.String("listen-addr", defaults.Server.ListenAddr, "HTTP listen address (alias for --server-listen-addr)")
	fs.Int("workers", defaults.Server.Workers, "Max concurrent tokenization requests")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.Int64("server-max-body-bytes", defaults.Server.MaxBodyBytes, "Maximum HTTP request body size in bytes")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("MIDITOK")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("miditok")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("tokenizer.strategy", c.Tokenizer.Strategy)
	v.SetDefault("tokenizer.resolution", c.Tokenizer.Resolution)
	v.SetDefault("tokenizer.positions_per_bar", c.Tokenizer.PositionsPerBar)
	v.SetDefault("tokenizer.pitch_min", c.Tokenizer.PitchMin)
	v.SetDefault("tokenizer.pitch_max", c.Tokenizer.PitchMax)
	v.SetDefault("tokenizer.velocity_min", c.Tokenizer.VelocityMin)
	v.SetDefault("tokenizer.velocity_max", c.Tokenizer.VelocityMax)
	v.SetDefault("tokenizer.velocity_bins", c.Tokenizer.VelocityBins)
	v.SetDefault("tokenizer.duration_steps", c.Tokenizer.DurationSteps)
	v.SetDefault("tokenizer.duration_bins", c.Tokenizer.DurationBins)
	v.SetDefault("tokenizer.max_bar_embedding", c.Tokenizer.MaxBarEmbedding)
	v.SetDefault("tokenizer.pitch_policy", c.Tokenizer.PitchPolicy)
	v.SetDefault("tokenizer.velocity_policy", c.Tokenizer.VelocityPolicy)
	v.SetDefault("tokenizer.duration_policy", c.Tokenizer.DurationPolicy)
	v.SetDefault("tokenizer.use_tempos", c.Tokenizer.UseTempos)
	v.SetDefault("tokenizer.tempo_min", c.Tokenizer.TempoMin)
	v.SetDefault("tokenizer.tempo_max", c.Tokenizer.TempoMax)
	v.SetDefault("tokenizer.tempo_bins", c.Tokenizer.TempoBins)
	v.SetDefault("tokenizer.use_time_signatures", c.Tokenizer.UseTimeSignatures)
	v.SetDefault("tokenizer.time_signatures", c.Tokenizer.TimeSignatures)
	v.SetDefault("tokenizer.use_programs", c.Tokenizer.UsePrograms)
	v.SetDefault("tokenizer.special_tokens.pad", c.Tokenizer.Special.Pad)
	v.SetDefault("tokenizer.special_tokens.sos", c.Tokenizer.Special.SOS)
	v.SetDefault("tokenizer.special_tokens.eos", c.Tokenizer.Special.EOS)
	v.SetDefault("tokenizer.special_tokens.mask", c.Tokenizer.Special.Mask)
	v.SetDefault("tokenizer.special_tokens.unk", c.Tokenizer.Special.Unk)
	v.SetDefault("tokenizer.strict", c.Tokenizer.Strict)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", c.Server.MaxBodyBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("log_level", c.LogLevel)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("tokenizer.strategy", "strategy")
	v.RegisterAlias("tokenizer.resolution", "resolution")
	v.RegisterAlias("tokenizer.positions_per_bar", "positions-per-bar")
	v.RegisterAlias("tokenizer.pitch_min", "pitch-min")
	v.RegisterAlias("tokenizer.pitch_max", "pitch-max")
	v.RegisterAlias("tokenizer.velocity_bins", "velocity-bins")
	v.RegisterAlias("tokenizer.duration_steps", "duration-steps")
	v.RegisterAlias("tokenizer.duration_bins", "duration-bins")
	v.RegisterAlias("tokenizer.pitch_policy", "pitch-policy")
	v.RegisterAlias("tokenizer.velocity_policy", "velocity-policy")
	v.RegisterAlias("tokenizer.duration_policy", "duration-policy")
	v.RegisterAlias("tokenizer.use_tempos", "use-tempos")
	v.RegisterAlias("tokenizer.tempo_bins", "tempo-bins")
	v.RegisterAlias("tokenizer.use_time_signatures", "use-time-signatures")
	v.RegisterAlias("tokenizer.time_signatures", "time-signatures")
	v.RegisterAlias("tokenizer.use_programs", "use-programs")
	v.RegisterAlias("tokenizer.strict", "strict")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.listen_addr", "listen-addr")
	v.RegisterAlias("server.workers", "workers")
	v.RegisterAlias("server.shutdown_timeout", "server-shutdown-timeout")
	v.RegisterAlias("server.max_body_bytes", "server-max-body-bytes")
	v.RegisterAlias("server.request_timeout", "server-request-timeout")
	v.RegisterAlias("log_level", "log-level")
}
