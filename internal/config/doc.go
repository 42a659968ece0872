// Package config loads hookline settings.
//
// Settings are resolved in layers, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Command Line Flags      │  ← Highest priority (applied by cmd/hookctl)
//	├─────────────────────────────┤
//	│  3. Environment Variables   │  ← HOOKLINE_*
//	├─────────────────────────────┤
//	│  2. Config File             │  ← hookline.toml or hookline.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Default()
//	└─────────────────────────────┘
//
// TOML files are decoded with go-toml/v2 and YAML files with yaml.v3. Both
// decoders reject unknown keys so typos surface as errors.
//
// Example hookline.toml:
//
//	[hooks]
//	dir = "./hooks"
//	watch = true
//
//	[lua]
//	timeout = "2s"
//	capabilities = ["filesystem.read"]
//
//	[log]
//	level = "debug"
//	file = "/var/log/hookline.log"
//
//	[admin]
//	addr = "127.0.0.1:9090"
package config
