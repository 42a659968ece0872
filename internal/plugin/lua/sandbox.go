package lua

import (
	"fmt"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Capability represents a permission that can be granted to hook files.
type Capability string

// Available capabilities.
const (
	CapabilityFileRead Capability = "filesystem.read"
	CapabilityUnsafe   Capability = "unsafe" // Full Lua stdlib access
)

// ParseCapability converts a configuration token into a Capability.
func ParseCapability(s string) (Capability, error) {
	switch c := Capability(s); c {
	case CapabilityFileRead, CapabilityUnsafe:
		return c, nil
	default:
		return "", fmt.Errorf("unknown lua capability %q", s)
	}
}

// Sandbox restricts Lua execution to safe operations.
type Sandbox struct {
	L *lua.LState

	modules      map[string]bool
	capabilities map[Capability]bool
}

// builtinModules are the stdlib modules require may return.
var builtinModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// NewSandbox creates a sandbox for L. modules are the preloaded module names
// require is allowed to resolve.
func NewSandbox(L *lua.LState, modules ...string) *Sandbox {
	s := &Sandbox{
		L:            L,
		modules:      make(map[string]bool, len(modules)),
		capabilities: make(map[Capability]bool),
	}
	for _, m := range modules {
		s.modules[m] = true
	}
	return s
}

// Install removes file loading functions and replaces require.
func (s *Sandbox) Install() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		s.L.SetGlobal(name, lua.LNil)
	}
	s.installSafeRequire()
}

// installSafeRequire clears package search paths and replaces require with a
// whitelist of builtin and preloaded modules.
func (s *Sandbox) installSafeRequire() {
	if pkg, ok := s.L.GetGlobal("package").(*lua.LTable); ok {
		s.L.SetField(pkg, "path", lua.LString(""))
		s.L.SetField(pkg, "cpath", lua.LString(""))
	}

	original := s.L.GetGlobal("require")
	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !builtinModules[name] && !s.modules[name] {
			if err := s.CheckCapability(CapabilityUnsafe); err != nil {
				L.RaiseError("module %q is not available: %v", name, err)
				return 0
			}
		}
		L.Push(original)
		L.Push(lua.LString(name))
		L.Call(1, 1)
		return 1
	}))
}

// Grant enables a capability and installs the functions it unlocks.
func (s *Sandbox) Grant(c Capability) {
	if s.capabilities[c] {
		return
	}
	s.capabilities[c] = true

	switch c {
	case CapabilityFileRead:
		s.injectFileReadAPI()
	case CapabilityUnsafe:
		lua.OpenIo(s.L)
		lua.OpenOs(s.L)
		lua.OpenDebug(s.L)
	}
}

// HasCapability returns true if the capability is granted.
func (s *Sandbox) HasCapability(c Capability) bool {
	return s.capabilities[c]
}

// CheckCapability returns an error if the capability is not granted.
func (s *Sandbox) CheckCapability(c Capability) error {
	if !s.capabilities[c] {
		return &CapabilityError{Capability: c}
	}
	return nil
}

// injectFileReadAPI installs a read-only io table.
func (s *Sandbox) injectFileReadAPI() {
	io := s.L.NewTable()

	s.L.SetField(io, "readfile", s.L.NewFunction(func(L *lua.LState) int {
		data, err := os.ReadFile(L.CheckString(1))
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LString(data))
		return 1
	}))

	s.L.SetField(io, "lines", s.L.NewFunction(func(L *lua.LState) int {
		data, err := os.ReadFile(L.CheckString(1))
		if err != nil {
			L.RaiseError("cannot open file: %s", err.Error())
			return 0
		}
		lines := strings.Split(strings.TrimSuffix(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n"), "\n")
		if len(data) == 0 {
			lines = nil
		}
		idx := 0
		L.Push(L.NewFunction(func(L *lua.LState) int {
			if idx >= len(lines) {
				return 0
			}
			L.Push(lua.LString(lines[idx]))
			idx++
			return 1
		}))
		return 1
	}))

	s.L.SetGlobal("io", io)
}
