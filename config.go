package lunar

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/xirelogy/go-lunar/internal/stdlib"
)

// Config collects VM settings, typically loaded from a lunar.toml file.
type Config struct {
	// InstructionLimit caps instructions per run (0 for unlimited).
	InstructionLimit int `toml:"instruction_limit"`
	// MaxCallDepth caps nested script frames (0 for the default).
	MaxCallDepth int `toml:"max_call_depth"`
	// Timeout bounds each run; zero means no deadline.
	Timeout Duration `toml:"timeout"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `toml:"log_level"`
	// LogFormat is text or json.
	LogFormat string `toml:"log_format"`
	// StorePath names a sqlite file backing the shared store.
	StorePath string `toml:"store_path"`
	// Libraries lists the standard libraries to open; empty opens all.
	Libraries []string `toml:"libraries"`
}

// Duration is a time.Duration decoded from strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() Config {
	return Config{LogLevel: "warn", LogFormat: "text"}
}

// LoadConfig parses a TOML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg, err := ParseConfig(string(data))
	if err != nil {
		return Config{}, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes TOML text on top of DefaultConfig and validates it.
func ParseConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot be honoured.
func (c Config) Validate() error {
	if c.InstructionLimit < 0 {
		return fmt.Errorf("instruction_limit must not be negative")
	}
	if c.MaxCallDepth < 0 {
		return fmt.Errorf("max_call_depth must not be negative")
	}
	if c.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	for _, name := range c.Libraries {
		if !slices.Contains(stdlib.Names, name) {
			return fmt.Errorf("unknown library %q", name)
		}
	}
	return nil
}

// Level parses LogLevel; empty means warn.
func (c Config) Level() (slog.Level, error) {
	if c.LogLevel == "" {
		return slog.LevelWarn, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return lvl, nil
}

// NewLogger builds the slog logger described by the configuration.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := c.Level()
	if err != nil {
		lvl = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
