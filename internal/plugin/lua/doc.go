// Package lua provides the sandboxed Lua runtime used to evaluate hook files.
//
// Each hook file runs in its own State. The State wraps gopher-lua with:
//   - a restricted standard library (no io, os, debug or package loading)
//   - a whitelist-based require
//   - a per-call execution timeout enforced through the LState context
//   - a mutex, since an LState must not be used from two goroutines at once
//
// # State
//
//	state, err := lua.NewState(lua.WithExecutionTimeout(2 * time.Second))
//	if err != nil {
//	    return err
//	}
//	defer state.Close()
//
//	exported, err := state.Load("audit-pre-10.lua")
//
// # Bridge
//
// Bridge converts values between Go and Lua. Tables with contiguous integer
// keys starting at 1 become []any; other tables become map[string]any.
//
// # Capabilities
//
// Hook files get no filesystem or process access unless granted:
//
//	state.Sandbox().Grant(lua.CapabilityFileRead)
package lua
