// Package config loads harness settings: built-in defaults, then an optional
// TOML file, then environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/Zereker/wirecheck"
)

// Environment overrides.
const (
	EnvLogLevel      = "WIRECHECK_LOG_LEVEL"
	EnvLogFile       = "WIRECHECK_LOG_FILE"
	EnvLogNoColor    = "WIRECHECK_LOG_NOCOLOR"
	EnvArbitrarySize = "WIRECHECK_ARBITRARY_SIZE"
)

// Config holds everything the command needs besides the address.
type Config struct {
	BlockSize     int
	MaxPayload    int
	ArbitrarySize int64
	LengthMin     int
	LengthMax     int
	StepMin       int
	StepMax       int
	IdleTimeout   time.Duration
	Steps         []string
	Log           Log
}

// Log configures the log sink. An empty File means the command picks one per role.
type Log struct {
	Level   string
	File    string
	NoColor bool
}

type fileConfig struct {
	BlockSize     int      `toml:"block_size"`
	MaxPayload    int      `toml:"max_payload"`
	ArbitrarySize int64    `toml:"arbitrary_size"`
	LengthMin     int      `toml:"length_min"`
	LengthMax     int      `toml:"length_max"`
	StepMin       int      `toml:"step_min"`
	StepMax       int      `toml:"step_max"`
	IdleTimeout   string   `toml:"idle_timeout"`
	Steps         []string `toml:"steps"`
	Log           struct {
		Level   string `toml:"level"`
		File    string `toml:"file"`
		NoColor bool   `toml:"no_color"`
	} `toml:"log"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		BlockSize:     wirecheck.BlockSize,
		MaxPayload:    1024 * 1024,
		ArbitrarySize: wirecheck.DefaultArbitrarySize,
		LengthMin:     1024,
		LengthMax:     2048,
		StepMin:       2,
		StepMax:       60,
		Steps: []string{
			wirecheck.StepAck,
			wirecheck.StepLinear,
			wirecheck.StepQuadratic,
			wirecheck.StepArbitrary,
			wirecheck.StepPing,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path, if non-empty, over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	if meta.IsDefined("block_size") {
		cfg.BlockSize = raw.BlockSize
	}
	if meta.IsDefined("max_payload") {
		cfg.MaxPayload = raw.MaxPayload
	}
	if meta.IsDefined("arbitrary_size") {
		cfg.ArbitrarySize = raw.ArbitrarySize
	}
	if meta.IsDefined("length_min") {
		cfg.LengthMin = raw.LengthMin
	}
	if meta.IsDefined("length_max") {
		cfg.LengthMax = raw.LengthMax
	}
	if meta.IsDefined("step_min") {
		cfg.StepMin = raw.StepMin
	}
	if meta.IsDefined("step_max") {
		cfg.StepMax = raw.StepMax
	}
	if meta.IsDefined("idle_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.IdleTimeout))
		if err != nil {
			return errors.Wrap(err, "parse idle_timeout")
		}
		cfg.IdleTimeout = d
	}
	if meta.IsDefined("steps") {
		cfg.Steps = normalizeSteps(raw.Steps)
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return errors.Errorf("load config: unknown key %q", undecoded[0].String())
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Log.File = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.Log.NoColor = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvArbitrarySize)); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "parse %s", EnvArbitrarySize)
		}
		cfg.ArbitrarySize = n
	}
	return nil
}

// Validate rejects sizes and ranges the harness cannot run with.
func (c Config) Validate() error {
	if c.BlockSize <= 0 {
		return errors.New("block_size must be positive")
	}
	if c.MaxPayload <= 0 {
		return errors.New("max_payload must be positive")
	}
	if c.ArbitrarySize < 0 {
		return errors.New("arbitrary_size must not be negative")
	}
	if c.LengthMin < 0 || c.LengthMin > c.LengthMax {
		return errors.Errorf("length range [%d, %d] is invalid", c.LengthMin, c.LengthMax)
	}
	if c.StepMin > c.StepMax {
		return errors.Errorf("step range [%d, %d] is invalid", c.StepMin, c.StepMax)
	}
	if c.IdleTimeout < 0 {
		return errors.New("idle_timeout must not be negative")
	}
	if len(c.Steps) == 0 {
		return errors.New("steps must not be empty")
	}
	if _, err := c.Suite(); err != nil {
		return err
	}
	return nil
}

// Suite builds the exchange sequence named by Steps.
func (c Config) Suite() (wirecheck.Suite, error) {
	return wirecheck.ParseSuite(c.Steps, c.ArbitrarySize)
}

// ConnOptions returns the connection options these settings imply.
func (c Config) ConnOptions() []wirecheck.Option {
	return []wirecheck.Option{
		wirecheck.BlockSizeOption(c.BlockSize),
		wirecheck.MaxPayloadOption(c.MaxPayload),
		wirecheck.IdleTimeoutOption(c.IdleTimeout),
		wirecheck.SequenceLengthOption(c.LengthMin, c.LengthMax),
		wirecheck.StepOption(c.StepMin, c.StepMax),
	}
}

func normalizeSteps(in []string) []string {
	out := make([]string, 0, len(in))
	for _, step := range in {
		v := strings.ToLower(strings.TrimSpace(step))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
