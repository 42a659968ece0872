package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// MemFS is an in-memory file system for testing.
type MemFS struct {
	files map[string][]byte
}

func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

func (m *MemFS) AddFile(path string, content string) {
	m.files[path] = []byte(content)
}

func (m *MemFS) ReadFile(path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestDecodeFile_TOML(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/hookline.toml", `
[hooks]
dir = "/srv/hooks"
watch = true

[lua]
timeout = "250ms"
capabilities = ["filesystem.read"]

[log]
level = "debug"
`)

	cfg := Default()
	if err := DecodeFile(memfs, "/hookline.toml", cfg); err != nil {
		t.Fatalf("DecodeFile() error = %v", err)
	}

	if cfg.Hooks.Dir != "/srv/hooks" || !cfg.Hooks.Watch {
		t.Errorf("Hooks = %+v", cfg.Hooks)
	}
	if cfg.Lua.Timeout.Std() != 250*time.Millisecond {
		t.Errorf("Lua.Timeout = %v, want 250ms", cfg.Lua.Timeout)
	}
	if !reflect.DeepEqual(cfg.Lua.Capabilities, []string{"filesystem.read"}) {
		t.Errorf("Lua.Capabilities = %v", cfg.Lua.Capabilities)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Log.Format != "console" || cfg.Hooks.RunTimeout.Std() != 30*time.Second {
		t.Errorf("defaults lost: %+v %+v", cfg.Log, cfg.Hooks)
	}
}

func TestDecodeFile_YAML(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/hookline.yml", `
hooks:
  dir: ./plugins
  run_timeout: 1m
log:
  format: json
admin:
  addr: 127.0.0.1:9090
`)

	cfg := Default()
	if err := DecodeFile(memfs, "/hookline.yml", cfg); err != nil {
		t.Fatalf("DecodeFile() error = %v", err)
	}
	if cfg.Hooks.Dir != "./plugins" || cfg.Hooks.RunTimeout.Std() != time.Minute {
		t.Errorf("Hooks = %+v", cfg.Hooks)
	}
	if cfg.Log.Format != "json" || cfg.Admin.Addr != "127.0.0.1:9090" {
		t.Errorf("Log = %+v Admin = %+v", cfg.Log, cfg.Admin)
	}
}

func TestDecodeFile_EmptyYAML(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/empty.yaml", "")

	cfg := Default()
	if err := DecodeFile(memfs, "/empty.yaml", cfg); err != nil {
		t.Fatalf("DecodeFile() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("empty file changed config: %+v", cfg)
	}
}

func TestDecodeFile_Errors(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/bad.toml", "[hooks\ndir = 1")
	memfs.AddFile("/unknown.toml", "[hooks]\ndirectory = \"x\"")
	memfs.AddFile("/unknown.yaml", "hooks:\n  directory: x\n")
	memfs.AddFile("/duration.toml", "[lua]\ntimeout = \"soon\"")
	memfs.AddFile("/hookline.json", "{}")

	tests := []struct {
		path    string
		wantErr error
		parse   bool
	}{
		{"/missing.toml", ErrFileNotFound, false},
		{"/hookline.json", ErrUnsupportedFormat, false},
		{"/bad.toml", nil, true},
		{"/unknown.toml", nil, true},
		{"/unknown.yaml", nil, true},
		{"/duration.toml", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := DecodeFile(memfs, tt.path, Default())
			if err == nil {
				t.Fatal("DecodeFile() error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeFile() error = %v, want %v", err, tt.wantErr)
			}
			var pe *ParseError
			if tt.parse && !errors.As(err, &pe) {
				t.Errorf("DecodeFile() error = %T %v, want *ParseError", err, err)
			}
		})
	}
}

func TestParseError_Position(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/bad.toml", "[log]\nlevel = \n")

	err := DecodeFile(memfs, "/bad.toml", Default())
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if pe.Line == 0 {
		t.Errorf("Line = 0, want a position")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"HOOKLINE_HOOKS_DIR":        "/env/hooks",
		"HOOKLINE_HOOKS_WATCH":      "true",
		"HOOKLINE_LUA_CAPABILITIES": "filesystem.read, unsafe",
		"HOOKLINE_LOG_LEVEL":        "warn",
		"HOOKLINE_ADMIN_ADDR":       ":0",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := ApplyEnv(cfg, lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Hooks.Dir != "/env/hooks" || !cfg.Hooks.Watch {
		t.Errorf("Hooks = %+v", cfg.Hooks)
	}
	if !reflect.DeepEqual(cfg.Lua.Capabilities, []string{"filesystem.read", "unsafe"}) {
		t.Errorf("Lua.Capabilities = %v", cfg.Lua.Capabilities)
	}
	if cfg.Log.Level != "warn" || cfg.Admin.Addr != ":0" {
		t.Errorf("Log.Level = %q Admin.Addr = %q", cfg.Log.Level, cfg.Admin.Addr)
	}

	env = map[string]string{"HOOKLINE_HOOKS_WATCH": "maybe"}
	if err := ApplyEnv(Default(), lookup); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("ApplyEnv() error = %v, want ErrValidationFailed", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty dir", func(c *Config) { c.Hooks.Dir = "" }},
		{"negative run timeout", func(c *Config) { c.Hooks.RunTimeout = -1 }},
		{"negative lua timeout", func(c *Config) { c.Lua.Timeout = -1 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrValidationFailed) {
				t.Errorf("Validate() error = %v, want ErrValidationFailed", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hookline.toml")
	if err := os.WriteFile(path, []byte("[hooks]\ndir = \"from-file\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOOKLINE_LOG_LEVEL", "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Hooks.Dir != "from-file" || cfg.Log.Level != "error" {
		t.Errorf("cfg = %+v", cfg)
	}

	t.Setenv("HOOKLINE_LOG_LEVEL", "nope")
	if _, err := Load(""); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("Load() error = %v, want ErrValidationFailed", err)
	}
}
