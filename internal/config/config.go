package config

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds every hookline setting.
type Config struct {
	Hooks HooksConfig `toml:"hooks" yaml:"hooks"`
	Lua   LuaConfig   `toml:"lua" yaml:"lua"`
	Log   LogConfig   `toml:"log" yaml:"log"`
	Admin AdminConfig `toml:"admin" yaml:"admin"`
}

// HooksConfig selects the hook directory and how it is run.
type HooksConfig struct {
	// Dir is the directory scanned for hook files.
	Dir string `toml:"dir" yaml:"dir"`
	// Watch reloads hook files when they change.
	Watch bool `toml:"watch" yaml:"watch"`
	// RunTimeout bounds a whole execution started from the CLI.
	RunTimeout Duration `toml:"run_timeout" yaml:"run_timeout"`
}

// LuaConfig configures the Lua states hook files run in.
type LuaConfig struct {
	// Timeout bounds each call into a hook file.
	Timeout Duration `toml:"timeout" yaml:"timeout"`
	// Capabilities are granted to every hook file's sandbox.
	Capabilities []string `toml:"capabilities" yaml:"capabilities"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	// File enables a rotated log file in addition to stderr.
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" yaml:"compress"`
}

// AdminConfig configures the admin HTTP server used in watch mode.
// An empty Addr disables it.
type AdminConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Hooks: HooksConfig{
			Dir:        "hooks",
			RunTimeout: Duration(30 * time.Second),
		},
		Lua: LuaConfig{
			Timeout: Duration(5 * time.Second),
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Validate checks settings that cannot be checked by decoding alone.
func (c *Config) Validate() error {
	if c.Hooks.Dir == "" {
		return fmt.Errorf("%w: hooks.dir is empty", ErrValidationFailed)
	}
	if c.Hooks.RunTimeout < 0 {
		return fmt.Errorf("%w: hooks.run_timeout is negative", ErrValidationFailed)
	}
	if c.Lua.Timeout < 0 {
		return fmt.Errorf("%w: lua.timeout is negative", ErrValidationFailed)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrValidationFailed, err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log.format %q is not console or json", ErrValidationFailed, c.Log.Format)
	}
	return nil
}

// Duration is a time.Duration written as a string such as "5s".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}
