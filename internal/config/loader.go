package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileSystem abstracts file reads for testing.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

type osFS struct{}

func (osFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// DefaultFS returns the operating system file system.
func DefaultFS() FileSystem {
	return osFS{}
}

// EnvPrefix prefixes every environment variable hookline reads.
const EnvPrefix = "HOOKLINE_"

// Load resolves defaults, the file at path and the environment into a
// validated Config. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := DecodeFile(DefaultFS(), path, cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DecodeFile decodes the file at path over cfg. Keys absent from the file
// keep their current values. The format follows the file extension.
func DecodeFile(fsys FileSystem, path string, cfg *Config) error {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return decodeTOML(path, data, cfg)
	case ".yaml", ".yml":
		return decodeYAML(path, data, cfg)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func decodeTOML(path string, data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	err := dec.Decode(cfg)
	if err == nil {
		return nil
	}

	pe := &ParseError{Path: path, Message: err.Error(), Err: err}
	var de *toml.DecodeError
	var se *toml.StrictMissingError
	switch {
	case errors.As(err, &de):
		pe.Line, pe.Column = de.Position()
	case errors.As(err, &se) && len(se.Errors) > 0:
		pe.Line, pe.Column = se.Errors[0].Position()
	}
	return pe
}

func decodeYAML(path string, data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return nil
}

// envSetters maps environment variables to the setting they override.
var envSetters = map[string]func(*Config, string) error{
	EnvPrefix + "HOOKS_DIR": func(c *Config, v string) error {
		c.Hooks.Dir = v
		return nil
	},
	EnvPrefix + "HOOKS_WATCH": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.Hooks.Watch = b
		return err
	},
	EnvPrefix + "HOOKS_RUN_TIMEOUT": func(c *Config, v string) error {
		return c.Hooks.RunTimeout.UnmarshalText([]byte(v))
	},
	EnvPrefix + "LUA_TIMEOUT": func(c *Config, v string) error {
		return c.Lua.Timeout.UnmarshalText([]byte(v))
	},
	EnvPrefix + "LUA_CAPABILITIES": func(c *Config, v string) error {
		c.Lua.Capabilities = splitList(v)
		return nil
	},
	EnvPrefix + "LOG_LEVEL": func(c *Config, v string) error {
		c.Log.Level = v
		return nil
	},
	EnvPrefix + "LOG_FORMAT": func(c *Config, v string) error {
		c.Log.Format = v
		return nil
	},
	EnvPrefix + "LOG_FILE": func(c *Config, v string) error {
		c.Log.File = v
		return nil
	},
	EnvPrefix + "ADMIN_ADDR": func(c *Config, v string) error {
		c.Admin.Addr = v
		return nil
	},
}

// ApplyEnv overrides cfg from environment variables found by lookup.
// Empty values are treated as set.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for name, set := range envSetters {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := set(cfg, v); err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrValidationFailed, name, v, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
